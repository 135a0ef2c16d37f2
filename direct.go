// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"context"
	"fmt"

	"github.com/suprsokr/go-rscache/opcodes"
)

// DirectOptions configures a DirectSource.
type DirectOptions struct {
	Layout      Layout      // Framing of multi-member archives
	Compression Compression // Used when writing containers
	RequireCRC  bool        // Verify stored containers against index crcs
}

// DirectSource is a Source reading raw containers from a FileStore. Index
// files are stored in major 255 under the minor of the major they describe;
// the root index is (255, 255).
type DirectSource struct {
	store FileStore
	index *opcodes.Parser
	opts  DirectOptions
}

// NewDirectSource returns a Source over store. index decodes index files.
func NewDirectSource(store FileStore, index *opcodes.Parser, opts DirectOptions) *DirectSource {
	return &DirectSource{store: store, index: index, opts: opts}
}

func (s *DirectSource) GetFile(ctx context.Context, major, minor int, crc uint32) ([]byte, error) {
	raw, err := s.store.Get(ctx, major, minor)
	if err != nil {
		return nil, err
	}
	if crc != 0 && s.opts.RequireCRC {
		if got := CRC32(raw); got != crc {
			return nil, fmt.Errorf("%w: container %d.%d has crc %08x, index lists %08x", ErrChecksum, major, minor, got, crc)
		}
	}
	data, err := Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("decompress container %d.%d: %w", major, minor, err)
	}
	return data, nil
}

func (s *DirectSource) GetFileArchive(ctx context.Context, entry *IndexEntry) ([]SubFile, error) {
	data, err := s.GetFile(ctx, entry.Major, entry.Minor, entry.CRC)
	if err != nil {
		return nil, err
	}
	files, err := s.opts.Layout.Unpack(data, entry.SubIndices)
	if err != nil {
		return nil, fmt.Errorf("unpack archive %d.%d: %w", entry.Major, entry.Minor, err)
	}
	return files, nil
}

func (s *DirectSource) GetIndexFile(ctx context.Context, major int) (IndexFile, error) {
	var crc uint32
	if major != MajorIndex && s.opts.RequireCRC {
		root, err := s.GetIndexFile(ctx, MajorIndex)
		if err != nil {
			return nil, fmt.Errorf("read root index: %w", err)
		}
		entry, ok := root.Entry(major)
		if !ok {
			return nil, notFound(MajorIndex, major)
		}
		crc = entry.CRC
	}

	data, err := s.GetFile(ctx, MajorIndex, major, crc)
	if err != nil {
		return nil, err
	}
	return DecodeIndexFile(major, data, s.index)
}

func (s *DirectSource) WriteFile(ctx context.Context, major, minor int, data []byte) error {
	packed, err := Compress(data, s.opts.Compression)
	if err != nil {
		return fmt.Errorf("compress container %d.%d: %w", major, minor, err)
	}
	return s.store.Put(ctx, major, minor, packed)
}

func (s *DirectSource) WriteFileArchive(ctx context.Context, entry *IndexEntry, files [][]byte) error {
	if len(files) != len(entry.SubIndices) {
		return fmt.Errorf("%w: %d members for %d subindices", ErrMalformedArchive, len(files), len(entry.SubIndices))
	}
	return s.WriteFile(ctx, entry.Major, entry.Minor, s.opts.Layout.Pack(files))
}

func (s *DirectSource) Close() error {
	return s.store.Close()
}
