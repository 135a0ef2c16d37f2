// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"fmt"
	"math"
	"sort"

	"github.com/suprsokr/go-rscache/opcodes"
)

// IndexEntry describes one archive: where it lives, its checksum, and the
// sub ids of its members in physical slot order.
type IndexEntry struct {
	Major         int
	Minor         int
	CRC           uint32
	Version       uint32
	SubIndexCount int
	SubIndices    []int

	// Optional fields, nil when the index does not carry them
	UncompressedCRC  *uint32
	Size             *uint32
	UncompressedSize *uint32
	Name             *int32
}

// Slot returns the physical slot of the member with sub id subID, or -1.
func (e *IndexEntry) Slot(subID int) int {
	for i, id := range e.SubIndices {
		if id == subID {
			return i
		}
	}
	return -1
}

// IndexFile is the decoded index of one major: its present entries sorted
// by minor. Minors may be sparse.
type IndexFile []*IndexEntry

// NewIndexFile returns an index holding entries. A later entry replaces an
// earlier one with the same minor.
func NewIndexFile(entries ...*IndexEntry) IndexFile {
	var f IndexFile
	for _, e := range entries {
		f.set(e)
	}
	return f
}

func (f IndexFile) search(minor int) (int, bool) {
	i := sort.Search(len(f), func(i int) bool { return f[i].Minor >= minor })
	return i, i < len(f) && f[i].Minor == minor
}

// Entry returns the entry for minor.
func (f IndexFile) Entry(minor int) (*IndexEntry, bool) {
	i, ok := f.search(minor)
	if !ok {
		return nil, false
	}
	return f[i], true
}

// Entries returns the entries in minor order.
func (f IndexFile) Entries() []*IndexEntry {
	return append([]*IndexEntry(nil), f...)
}

func (f *IndexFile) set(e *IndexEntry) {
	i, ok := f.search(e.Minor)
	if ok {
		(*f)[i] = e
		return
	}
	*f = append(*f, nil)
	copy((*f)[i+1:], (*f)[i:])
	(*f)[i] = e
}

// Record field names used by index schemas
const (
	indexListField = "indices"
	rootListField  = "majors"
)

// DecodeIndexFile decodes the index file of major with parser and shapes the
// result. The root index (major 255) lists one single member archive per
// major; its entries without a crc are absent.
func DecodeIndexFile(major int, data []byte, parser *opcodes.Parser) (IndexFile, error) {
	rec, err := parser.Read(data)
	if err != nil {
		return nil, fmt.Errorf("decode index %d: %w", major, err)
	}
	if major == MajorIndex {
		return shapeRootIndex(rec)
	}

	list, err := recordList(rec, indexListField)
	if err != nil {
		return nil, fmt.Errorf("index %d: %w", major, err)
	}
	var index IndexFile
	for i, r := range list {
		e, err := shapeEntry(major, r)
		if err != nil {
			return nil, fmt.Errorf("index %d entry %d: %w", major, i, err)
		}
		index.set(e)
	}
	return index, nil
}

func shapeRootIndex(rec opcodes.Record) (IndexFile, error) {
	list, err := recordList(rec, rootListField)
	if err != nil {
		return nil, fmt.Errorf("root index: %w", err)
	}
	var index IndexFile
	for i, r := range list {
		crc, _ := r.Int("crc")
		if crc == 0 {
			continue
		}
		minor := int64(i)
		if m, ok := r.Int("minor"); ok {
			minor = m
		}
		if minor < 0 || minor >= MajorIndex {
			return nil, fmt.Errorf("root index entry %d: %w: major %d out of range", i, ErrMalformedArchive, minor)
		}
		version, _ := r.Int("version")
		index.set(&IndexEntry{
			Major:         MajorIndex,
			Minor:         int(minor),
			CRC:           uint32(crc),
			Version:       uint32(version),
			SubIndexCount: 1,
			SubIndices:    []int{0},
		})
	}
	return index, nil
}

func shapeEntry(major int, r opcodes.Record) (*IndexEntry, error) {
	minor, ok := r.Int("minor")
	if !ok {
		return nil, fmt.Errorf("%w: missing minor", ErrMalformedArchive)
	}
	if minor < 0 || minor > math.MaxInt32 {
		return nil, fmt.Errorf("%w: minor %d out of range", ErrMalformedArchive, minor)
	}
	crc, _ := r.Int("crc")
	version, _ := r.Int("version")

	e := &IndexEntry{
		Major:   major,
		Minor:   int(minor),
		CRC:     uint32(crc),
		Version: uint32(version),
	}

	if v, ok := r.Get("subindices"); ok {
		ids, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: subindices is %T", ErrMalformedArchive, v)
		}
		e.SubIndices = make([]int, len(ids))
		for i, id := range ids {
			n, ok := opcodes.Int64(id)
			if !ok {
				return nil, fmt.Errorf("%w: subindex %d is %T", ErrMalformedArchive, i, id)
			}
			e.SubIndices[i] = int(n)
		}
	} else {
		e.SubIndices = []int{0}
	}
	e.SubIndexCount = len(e.SubIndices)
	if n, ok := r.Int("subindexcount"); ok && int(n) != e.SubIndexCount {
		return nil, fmt.Errorf("%w: subindexcount %d with %d subindices", ErrMalformedArchive, n, e.SubIndexCount)
	}

	e.UncompressedCRC = optionalUint32(r, "uncompressed_crc")
	e.Size = optionalUint32(r, "size")
	e.UncompressedSize = optionalUint32(r, "uncompressed_size")
	if n, ok := r.Int("name"); ok {
		name := int32(n)
		e.Name = &name
	}
	return e, nil
}

func optionalUint32(r opcodes.Record, name string) *uint32 {
	n, ok := r.Int(name)
	if !ok {
		return nil
	}
	v := uint32(n)
	return &v
}

func recordList(rec opcodes.Record, name string) ([]opcodes.Record, error) {
	v, ok := rec.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: no %q field", ErrMalformedArchive, name)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T", ErrMalformedArchive, name, v)
	}
	out := make([]opcodes.Record, len(list))
	for i, item := range list {
		r, ok := item.(opcodes.Record)
		if !ok {
			return nil, fmt.Errorf("%w: %q item %d is %T", ErrMalformedArchive, name, i, item)
		}
		out[i] = r
	}
	return out, nil
}

// EncodeIndexFile encodes index for major with parser, the inverse of
// DecodeIndexFile. Fields the schema does not declare are dropped.
func EncodeIndexFile(major int, index IndexFile, parser *opcodes.Parser) ([]byte, error) {
	field := indexListField
	if major == MajorIndex {
		field = rootListField
	}

	var list []any
	if major == MajorIndex {
		// root entries are positional, absent majors keep a zero crc
		n := 0
		if len(index) > 0 {
			n = index[len(index)-1].Minor + 1
		}
		if n > MajorIndex {
			return nil, fmt.Errorf("encode root index: %w: major %d out of range", ErrMalformedArchive, n-1)
		}
		list = make([]any, n)
		for i := range list {
			e, ok := index.Entry(i)
			if !ok {
				e = &IndexEntry{Minor: i}
			}
			list[i] = opcodes.Record{
				{Name: "minor", Value: int64(e.Minor)},
				{Name: "crc", Value: int64(e.CRC)},
				{Name: "version", Value: int64(e.Version)},
			}
		}
	} else {
		for _, e := range index.Entries() {
			list = append(list, entryRecord(e))
		}
	}

	out, err := parser.Write(opcodes.Record{{Name: field, Value: list}})
	if err != nil {
		return nil, fmt.Errorf("encode index %d: %w", major, err)
	}
	return out, nil
}

func entryRecord(e *IndexEntry) opcodes.Record {
	ids := make([]any, len(e.SubIndices))
	for i, id := range e.SubIndices {
		ids[i] = int64(id)
	}
	rec := opcodes.Record{
		{Name: "minor", Value: int64(e.Minor)},
		{Name: "crc", Value: int64(e.CRC)},
		{Name: "version", Value: int64(e.Version)},
		{Name: "subindexcount", Value: int64(e.SubIndexCount)},
		{Name: "subindices", Value: ids},
	}
	if e.Name != nil {
		rec.Set("name", int64(*e.Name))
	}
	if e.UncompressedCRC != nil {
		rec.Set("uncompressed_crc", int64(*e.UncompressedCRC))
	}
	if e.Size != nil {
		rec.Set("size", int64(*e.Size))
	}
	if e.UncompressedSize != nil {
		rec.Set("uncompressed_size", int64(*e.UncompressedSize))
	}
	return rec
}
