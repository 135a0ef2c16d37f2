// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Cache format constants
const (
	// Marker byte closing a trailing footer (one chunk)
	footerMarker = 0x01

	// Version byte opening a leading header
	headerVersion = 0x01

	// Leading header size before the per-member end offsets
	headerPrefixSize = 1 + 4

	// Major holding the index files of all other majors
	MajorIndex = 255
)

// ErrMalformedArchive is returned when archive framing is inconsistent with
// the buffer it describes.
var ErrMalformedArchive = errors.New("rscache: malformed archive")

// Layout selects the byte layout used to frame a multi-member archive.
type Layout int

const (
	// LayoutNetwork stores members first, then a trailing footer of
	// big-endian size deltas and a marker byte. Used on the wire and in
	// flat-file caches.
	LayoutNetwork Layout = 0

	// LayoutHeader stores a version byte, the offset of the first member
	// and one cumulative end offset per member in front of the data. Used
	// by the database-backed client cache.
	LayoutHeader Layout = 1
)

// String returns the name of a layout.
func (l Layout) String() string {
	switch l {
	case LayoutNetwork:
		return "network"
	case LayoutHeader:
		return "header"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// ParseLayout parses a layout name as returned by Layout.String.
func ParseLayout(name string) (Layout, error) {
	switch name {
	case "network", "":
		return LayoutNetwork, nil
	case "header", "sqlite":
		return LayoutHeader, nil
	default:
		return 0, fmt.Errorf("unknown archive layout: %q", name)
	}
}

// SubFile is one unpacked member of an archive.
type SubFile struct {
	Offset int    // Offset of the member inside the packed archive
	Size   int    // Size of the member in bytes
	Buffer []byte // Member bytes, aliasing the packed archive
	FileID int    // Sub index taken from the owning IndexEntry
}

// Pack frames files using the layout. A single member is stored unframed.
func (l Layout) Pack(files [][]byte) []byte {
	if l == LayoutHeader {
		return packHeader(files)
	}
	return packNetwork(files)
}

// Unpack splits data into members, fileIDs giving the sub index of each
// physical slot.
func (l Layout) Unpack(data []byte, fileIDs []int) ([]SubFile, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("%w: no sub files listed", ErrMalformedArchive)
	}
	if len(fileIDs) == 1 {
		return []SubFile{{Offset: 0, Size: len(data), Buffer: data, FileID: fileIDs[0]}}, nil
	}
	if l == LayoutHeader {
		return unpackHeader(data, fileIDs)
	}
	return unpackNetwork(data, fileIDs)
}

// networkFooter builds the trailing footer for files
func networkFooter(files [][]byte) []byte {
	if len(files) == 1 {
		return nil
	}
	footer := make([]byte, len(files)*4+1)
	lastSize := 0
	for i, f := range files {
		binary.BigEndian.PutUint32(footer[i*4:], uint32(int32(len(f)-lastSize)))
		lastSize = len(f)
	}
	footer[len(footer)-1] = footerMarker
	return footer
}

// packNetwork concatenates files followed by the trailing footer
func packNetwork(files [][]byte) []byte {
	footer := networkFooter(files)
	total := len(footer)
	for _, f := range files {
		total += len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range files {
		out = append(out, f...)
	}
	return append(out, footer...)
}

// unpackNetwork reads the trailing footer and slices members from the front
func unpackNetwork(data []byte, fileIDs []int) ([]SubFile, error) {
	footerSize := len(fileIDs)*4 + 1
	if len(data) < footerSize {
		return nil, fmt.Errorf("%w: %d bytes too small for footer of %d members", ErrMalformedArchive, len(data), len(fileIDs))
	}

	markerPos := len(data) - 1
	if marker := data[markerPos]; marker != footerMarker {
		logger().Warn("unexpected archive footer marker", "marker", marker, "members", len(fileIDs))
	}

	footerStart := len(data) - footerSize
	files := make([]SubFile, len(fileIDs))
	scan := 0
	size := 0
	for i := range fileIDs {
		size += int(int32(binary.BigEndian.Uint32(data[footerStart+i*4:])))
		if size < 0 || scan+size > footerStart {
			return nil, fmt.Errorf("%w: member %d size %d at offset %d exceeds data of %d bytes", ErrMalformedArchive, i, size, scan, footerStart)
		}
		files[i] = SubFile{
			Offset: scan,
			Size:   size,
			Buffer: data[scan : scan+size],
			FileID: fileIDs[i],
		}
		scan += size
	}
	return files, nil
}

// leadingHeader builds the leading header for files
func leadingHeader(files [][]byte) []byte {
	if len(files) == 1 {
		return nil
	}
	size := headerPrefixSize + len(files)*4
	header := make([]byte, size)
	header[0] = headerVersion
	offset := uint32(size)
	binary.BigEndian.PutUint32(header[1:], offset)
	for i, f := range files {
		offset += uint32(len(f))
		binary.BigEndian.PutUint32(header[headerPrefixSize+i*4:], offset)
	}
	return header
}

// packHeader writes the leading header followed by all files
func packHeader(files [][]byte) []byte {
	header := leadingHeader(files)
	total := len(header)
	for _, f := range files {
		total += len(f)
	}
	out := make([]byte, 0, total)
	out = append(out, header...)
	for _, f := range files {
		out = append(out, f...)
	}
	return out
}

// unpackHeader slices members using consecutive header offsets
func unpackHeader(data []byte, fileIDs []int) ([]SubFile, error) {
	headerSize := headerPrefixSize + len(fileIDs)*4
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes too small for header of %d members", ErrMalformedArchive, len(data), len(fileIDs))
	}

	start := int(binary.BigEndian.Uint32(data[1:]))
	files := make([]SubFile, len(fileIDs))
	for i := range fileIDs {
		end := int(binary.BigEndian.Uint32(data[headerPrefixSize+i*4:]))
		if start > end || end > len(data) {
			return nil, fmt.Errorf("%w: member %d spans %d-%d in %d bytes", ErrMalformedArchive, i, start, end, len(data))
		}
		files[i] = SubFile{
			Offset: start,
			Size:   end - start,
			Buffer: data[start:end],
			FileID: fileIDs[i],
		}
		start = end
	}
	return files, nil
}
