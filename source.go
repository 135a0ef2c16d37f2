// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"context"
	"fmt"
)

// Source is the capability set of a cache: raw containers, unpacked
// archives and decoded index files, readable and writable.
type Source interface {
	// GetFile returns the decompressed container at (major, minor). crc is
	// the expected checksum of the stored bytes, 0 when unknown.
	GetFile(ctx context.Context, major, minor int, crc uint32) ([]byte, error)

	// GetFileArchive returns the members of the archive described by entry,
	// in slot order.
	GetFileArchive(ctx context.Context, entry *IndexEntry) ([]SubFile, error)

	// GetIndexFile returns the index of major.
	GetIndexFile(ctx context.Context, major int) (IndexFile, error)

	// WriteFile stores data as the container at (major, minor).
	WriteFile(ctx context.Context, major, minor int, data []byte) error

	// WriteFileArchive packs files and stores them as the archive described
	// by entry.
	WriteFileArchive(ctx context.Context, entry *IndexEntry, files [][]byte) error

	Close() error
}

// GetIndexEntry returns the index entry of archive (major, minor).
func GetIndexEntry(ctx context.Context, src Source, major, minor int) (*IndexEntry, error) {
	index, err := src.GetIndexFile(ctx, major)
	if err != nil {
		return nil, err
	}
	entry, ok := index.Entry(minor)
	if !ok {
		return nil, notFound(major, minor)
	}
	return entry, nil
}

// GetArchiveByID returns the members of archive (major, minor).
func GetArchiveByID(ctx context.Context, src Source, major, minor int) ([]SubFile, error) {
	entry, err := GetIndexEntry(ctx, src, major, minor)
	if err != nil {
		return nil, err
	}
	return src.GetFileArchive(ctx, entry)
}

// GetFileByID returns the logical file fileID of major. The holding archive
// is located with addr; within it the member is matched by sub id, or by the
// flat file id for indices that list flat ids.
func GetFileByID(ctx context.Context, src Source, addr *Addressing, major, fileID int) ([]byte, error) {
	pos := addr.FileIDToArchiveMinor(major, fileID)
	entry, err := GetIndexEntry(ctx, src, major, pos.Minor)
	if err != nil {
		return nil, err
	}

	slot := entry.Slot(pos.SubID)
	if slot < 0 {
		slot = entry.Slot(fileID)
	}
	if slot < 0 {
		return nil, &NotFoundError{Major: major, Minor: pos.Minor, FileID: fileID}
	}

	files, err := src.GetFileArchive(ctx, entry)
	if err != nil {
		return nil, err
	}
	if slot >= len(files) {
		return nil, fmt.Errorf("%w: archive %d.%d has %d members, slot %d", ErrMalformedArchive, major, pos.Minor, len(files), slot)
	}
	return files[slot].Buffer, nil
}
