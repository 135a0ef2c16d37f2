// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("rscache: not found")

	// ErrReadOnly is returned by stores opened without write access.
	ErrReadOnly = errors.New("rscache: store is read only")

	// ErrUnsupportedCompression is returned for container compressions
	// that cannot be decoded, or encoded, by this package.
	ErrUnsupportedCompression = errors.New("rscache: unsupported compression")

	// ErrChecksum is returned when a stored container does not match the
	// crc its index lists.
	ErrChecksum = errors.New("rscache: checksum mismatch")
)

// NotFoundError reports a missing index entry, archive or logical file.
// FileID is -1 when the lookup was not by logical file id.
type NotFoundError struct {
	Major  int
	Minor  int
	FileID int
}

func (e *NotFoundError) Error() string {
	if e.FileID >= 0 {
		return fmt.Sprintf("rscache: file %d not found in archive %d.%d", e.FileID, e.Major, e.Minor)
	}
	return fmt.Sprintf("rscache: archive %d.%d not found", e.Major, e.Minor)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(major, minor int) error {
	return &NotFoundError{Major: major, Minor: minor, FileID: -1}
}
