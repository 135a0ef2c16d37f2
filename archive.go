// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"fmt"
)

// Archive is the in-memory, unpacked form of one archive: an ordered list of
// member buffers. Member buffers are treated as immutable; operations that
// change bytes replace the member with a fresh copy.
type Archive struct {
	files [][]byte
}

// NewArchive creates an archive over files. The slice is copied, the member
// buffers are not.
func NewArchive(files [][]byte) *Archive {
	return &Archive{files: append([][]byte(nil), files...)}
}

// ArchiveFromSubFiles creates an archive from unpacked sub files, in slot order.
func ArchiveFromSubFiles(subs []SubFile) *Archive {
	files := make([][]byte, len(subs))
	for i, s := range subs {
		files[i] = s.Buffer
	}
	return &Archive{files: files}
}

// Len returns the number of members.
func (a *Archive) Len() int {
	return len(a.files)
}

// File returns member i.
func (a *Archive) File(i int) []byte {
	return a.files[i]
}

// Files returns the member buffers in slot order.
func (a *Archive) Files() [][]byte {
	return append([][]byte(nil), a.files...)
}

// Replace sets member i to data.
func (a *Archive) Replace(i int, data []byte) error {
	if i < 0 || i >= len(a.files) {
		return fmt.Errorf("member %d out of range for %d members", i, len(a.files))
	}
	a.files[i] = data
	return nil
}

// Pack frames the archive using layout.
func (a *Archive) Pack(layout Layout) []byte {
	return layout.Pack(a.files)
}

// framing returns the bytes the layout places before and after the members
func (a *Archive) framing(layout Layout) (head, tail []byte) {
	if layout == LayoutHeader {
		return leadingHeader(a.files), nil
	}
	return nil, networkFooter(a.files)
}

// ForgeCRC patches 4 bytes inside member gapFile at gapOffset so that the
// archive packed with layout has CRC-32 wanted. The patched member is a new
// buffer; all other members and the original buffer are left untouched.
// The patch should be placed somewhere the consumer ignores, such as padding.
func (a *Archive) ForgeCRC(layout Layout, wanted uint32, gapFile, gapOffset int) error {
	if gapFile < 0 || gapFile >= len(a.files) {
		return fmt.Errorf("gap member %d out of range for %d members", gapFile, len(a.files))
	}
	gap := a.files[gapFile]
	if gapOffset < 0 || gapOffset+4 > len(gap) {
		return fmt.Errorf("gap offset %d out of range for member %d of %d bytes", gapOffset, gapFile, len(gap))
	}

	head, tail := a.framing(layout)

	front := UpdateCRC32(0, head)
	for i := 0; i < gapFile; i++ {
		front = UpdateCRC32(front, a.files[i])
	}
	front = UpdateCRC32(front, gap[:gapOffset])

	back := BackwardCRC32(wanted, tail)
	for i := len(a.files) - 1; i > gapFile; i-- {
		back = BackwardCRC32(back, a.files[i])
	}
	back = BackwardCRC32(back, gap[gapOffset+4:])

	patched := make([]byte, len(gap))
	copy(patched, gap)
	copy(patched[gapOffset:], forgeBytes(front, back))

	files := append([][]byte(nil), a.files...)
	files[gapFile] = patched
	if got := CRC32(layout.Pack(files)); got != wanted {
		logger().Error("forged archive crc did not match", "wanted", wanted, "got", got, "member", gapFile, "offset", gapOffset)
		return fmt.Errorf("%w: wanted 0x%08X, got 0x%08X", ErrForgeMismatch, wanted, got)
	}

	logger().Debug("forged archive crc", "member", gapFile, "offset", gapOffset, "crc", wanted)
	a.files = files
	return nil
}
