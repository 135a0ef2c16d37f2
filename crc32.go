// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// crcPoly is the reflected CRC-32 polynomial (IEEE 802.3).
const crcPoly = 0xEDB88320

// crc32Table advances the register by one byte, crc32Reverse undoes that step.
var crc32Table, crc32Reverse = func() (fwd, rev [256]uint32) {
	for i := 0; i < 256; i++ {
		crc := uint32(i)
		for j := 0; j < 8; j++ {
			if crc&1 == 1 {
				crc = (crc >> 1) ^ crcPoly
			} else {
				crc >>= 1
			}
		}
		fwd[i] = crc
	}
	// The top byte of fwd[i] is unique per i, so it identifies which table
	// entry a forward step mixed in.
	for i := 0; i < 256; i++ {
		top := fwd[i] >> 24
		rev[top] = (fwd[i] << 8) ^ uint32(i)
	}
	return fwd, rev
}()

// ErrForgeMismatch is returned when a forged buffer does not carry the
// requested checksum. It indicates a bug and the result must not be written.
var ErrForgeMismatch = errors.New("rscache: forged crc did not match")

// CRC32 computes the IEEE CRC-32 of data.
func CRC32(data []byte) uint32 {
	return UpdateCRC32(0, data)
}

// UpdateCRC32 continues a CRC-32 computation, crc being the checksum of the
// bytes preceding data.
func UpdateCRC32(crc uint32, data []byte) uint32 {
	c := ^crc
	for _, v := range data {
		c = crc32Table[(c^uint32(v))&0xFF] ^ (c >> 8)
	}
	return ^c
}

// BackwardCRC32 undoes UpdateCRC32: it returns the checksum that, continued
// over data, produces crc.
func BackwardCRC32(crc uint32, data []byte) uint32 {
	c := ^crc
	for i := len(data) - 1; i >= 0; i-- {
		c = (c << 8) ^ crc32Reverse[c>>24] ^ uint32(data[i])
	}
	return ^c
}

// forgeBytes returns the 4 bytes that carry a checksum of front to back.
func forgeBytes(front, back uint32) []byte {
	var fwd [4]byte
	binary.LittleEndian.PutUint32(fwd[:], front)
	patch := make([]byte, 4)
	binary.LittleEndian.PutUint32(patch, BackwardCRC32(back, fwd[:]))
	return patch
}

// Forge returns a copy of data with a 4-byte patch at pos so that the CRC-32
// of the result equals wanted. With insert the patch is spliced in and the
// result grows by 4 bytes, otherwise the 4 bytes at pos are overwritten.
func Forge(data []byte, wanted uint32, pos int, insert bool) ([]byte, error) {
	end := pos
	if !insert {
		end = pos + 4
	}
	if pos < 0 || end > len(data) {
		return nil, fmt.Errorf("forge position %d out of range for %d bytes", pos, len(data))
	}

	front := UpdateCRC32(0, data[:pos])
	back := BackwardCRC32(wanted, data[end:])

	result := make([]byte, 0, pos+4+len(data)-end)
	result = append(result, data[:pos]...)
	result = append(result, forgeBytes(front, back)...)
	result = append(result, data[end:]...)

	if got := CRC32(result); got != wanted {
		logger().Error("forged crc did not match", "wanted", wanted, "got", got, "pos", pos)
		return nil, fmt.Errorf("%w: wanted 0x%08X, got 0x%08X", ErrForgeMismatch, wanted, got)
	}
	return result, nil
}
