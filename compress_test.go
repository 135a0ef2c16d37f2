// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("container payload "), 100)

	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionZlib, CompressionLZMA} {
		t.Run(c.String(), func(t *testing.T) {
			packed, err := Compress(data, c)
			require.NoError(t, err)
			assert.Equal(t, byte(c), packed[0])

			out, err := Decompress(packed)
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}

	t.Run("empty", func(t *testing.T) {
		packed, err := Compress(nil, CompressionGzip)
		require.NoError(t, err)
		out, err := Decompress(packed)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestContainerHeaders(t *testing.T) {
	data := []byte("abc")

	none, err := Compress(data, CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 3, 'a', 'b', 'c'}, none)

	gz, err := Compress(data, CompressionGzip)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(gz)-9), binary.BigEndian.Uint32(gz[1:]))
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(gz[5:]))
	assert.Equal(t, []byte{0x1F, 0x8B}, gz[9:11])

	zl, err := Compress(data, CompressionZlib)
	require.NoError(t, err)
	assert.Equal(t, []byte("ZLB\x01"), zl[:4])
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(zl[4:]))
}

// bzip2 stream of "hello hello hello bzip2 container" without its BZh9 magic
var bzip2Body = []byte{
	0x31, 0x41, 0x59, 0x26, 0x53, 0x59, 0x90, 0x95, 0xc3, 0x56, 0x00, 0x00, 0x07, 0x19, 0x80, 0x40,
	0x00, 0x10, 0x00, 0x3a, 0x65, 0xd4, 0x10, 0x20, 0x00, 0x21, 0x94, 0xd3, 0x41, 0xa6, 0x35, 0x0a,
	0x60, 0x00, 0x3c, 0xd8, 0x13, 0x6e, 0x20, 0xd3, 0x0b, 0xea, 0xa2, 0x8a, 0x96, 0x2b, 0x2f, 0x0b,
	0xe2, 0xee, 0x48, 0xa7, 0x0a, 0x12, 0x12, 0x12, 0xb8, 0x6a, 0xc0,
}

func TestDecompressBzip2(t *testing.T) {
	want := []byte("hello hello hello bzip2 container")

	container := []byte{byte(CompressionBzip2)}
	container = binary.BigEndian.AppendUint32(container, uint32(len(bzip2Body)))
	container = binary.BigEndian.AppendUint32(container, uint32(len(want)))
	container = append(container, bzip2Body...)

	out, err := Decompress(container)
	require.NoError(t, err)
	assert.Equal(t, want, out)

	_, err = Compress(want, CompressionBzip2)
	assert.True(t, errors.Is(err, ErrUnsupportedCompression))
}

// lzma stream of "lzma lzma lzma container payload" with an end marker,
// 64 KiB dictionary, after its 5 props bytes
var lzmaProps = []byte{0x5d, 0x00, 0x00, 0x01, 0x00}

var lzmaBody = []byte{
	0x00, 0x36, 0x1e, 0x89, 0xdd, 0x7d, 0x4d, 0x87, 0xee, 0x2a, 0xd6, 0x7b, 0x2c, 0xea, 0xee, 0x26,
	0x40, 0x3f, 0xd9, 0x7d, 0xcc, 0x54, 0x89, 0xee, 0xdd, 0x59, 0x08, 0xf8, 0x19, 0xff, 0xfb, 0x74,
	0x00, 0x00,
}

func TestDecompressLZMA(t *testing.T) {
	want := []byte("lzma lzma lzma container payload")

	container := []byte{byte(CompressionLZMA)}
	container = binary.BigEndian.AppendUint32(container, uint32(len(lzmaProps)+len(lzmaBody)))
	container = binary.BigEndian.AppendUint32(container, uint32(len(want)))
	container = append(container, lzmaProps...)
	container = append(container, lzmaBody...)

	out, err := Decompress(container)
	require.NoError(t, err)
	assert.Equal(t, want, out)

	packed, err := Compress(want, CompressionLZMA)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(packed)-9), binary.BigEndian.Uint32(packed[1:]))
	assert.Equal(t, uint32(len(want)), binary.BigEndian.Uint32(packed[5:]))
}

func TestDecompressDeclaredSize(t *testing.T) {
	for _, c := range []Compression{CompressionGzip, CompressionLZMA} {
		t.Run(c.String(), func(t *testing.T) {
			packed, err := Compress([]byte("abc"), c)
			require.NoError(t, err)

			// a corrupt size field must not be trusted for allocation
			binary.BigEndian.PutUint32(packed[5:], 0xFFFFFFFF)
			_, err = Decompress(packed)
			assert.Error(t, err)
		})
	}

	packed, err := Compress([]byte("abc"), CompressionZlib)
	require.NoError(t, err)
	binary.BigEndian.PutUint32(packed[4:], 0xFFFFFFFF)
	_, err = Decompress(packed)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
}

func TestDecompressErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short lzma", []byte{3, 0, 0, 0, 0, 0, 0, 0, 0}, ErrMalformedArchive},
		{"lzma dictionary", []byte{3, 0, 0, 0, 5, 0xFF, 0xFF, 0xFF, 0xFF, 0x5D, 0xFF, 0xFF, 0xFF, 0xFF}, ErrMalformedArchive},
		{"unknown", []byte{0x42, 0, 0}, ErrUnsupportedCompression},
		{"short none", []byte{0, 0, 0}, ErrMalformedArchive},
		{"none overrun", []byte{0, 0, 0, 0, 9, 'a'}, ErrMalformedArchive},
		{"gzip overrun", []byte{2, 0, 0, 1, 0, 0, 0, 0, 1, 0x1F}, ErrMalformedArchive},
		{"bad zlib magic", []byte("ZLX\x01\x00\x00\x00\x01"), ErrMalformedArchive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decompress(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := Decompress(nil)
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "gzip": CompressionGzip, "zlib": CompressionZlib, "bzip2": CompressionBzip2, "lzma": CompressionLZMA} {
		got, err := ParseCompression(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("brotli")
	assert.True(t, errors.Is(err, ErrUnsupportedCompression))
}
