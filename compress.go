// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/ulikunitz/xz/lzma"
)

// Compression identifies how a stored container is compressed. The value is
// the container's first byte.
type Compression byte

// Compression type constants
const (
	CompressionNone  Compression = 0x00 // [0][u32 size][data]
	CompressionBzip2 Compression = 0x01 // [1][u32 packed][u32 size][bzip2 without magic]
	CompressionGzip  Compression = 0x02 // [2][u32 packed][u32 size][gzip]
	CompressionLZMA  Compression = 0x03 // [3][u32 packed][u32 size][5 byte lzma props][lzma]
	CompressionZlib  Compression = 0x5A // "ZLB\x01"[u32 size][zlib], sqlite blobs
)

var zlibMagic = []byte("ZLB\x01")

// bzip2 containers drop the stream magic; it is restored before decoding
var bzip2Magic = []byte("BZh9")

// maxLZMADict bounds the dictionary a container may ask the decoder for
const maxLZMADict = 1 << 28

// preallocLimit caps the buffer reserved up front for a declared size
const preallocLimit = 1 << 20

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionBzip2:
		return "bzip2"
	case CompressionGzip:
		return "gzip"
	case CompressionLZMA:
		return "lzma"
	case CompressionZlib:
		return "zlib"
	default:
		return fmt.Sprintf("compression(0x%02X)", byte(c))
	}
}

// ParseCompression returns the compression named s.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "bzip2", "bz2":
		return CompressionBzip2, nil
	case "gzip":
		return CompressionGzip, nil
	case "lzma":
		return CompressionLZMA, nil
	case "zlib":
		return CompressionZlib, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCompression, s)
	}
}

// Compress wraps data in a container of type c. bzip2 is decode only.
func Compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		out := make([]byte, 5, 5+len(data))
		out[0] = byte(CompressionNone)
		binary.BigEndian.PutUint32(out[1:], uint32(len(data)))
		return append(out, data...), nil

	case CompressionGzip:
		var buf bytes.Buffer
		buf.Write(make([]byte, 9))
		w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("create gzip writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		out := buf.Bytes()
		out[0] = byte(CompressionGzip)
		binary.BigEndian.PutUint32(out[1:], uint32(len(out)-9))
		binary.BigEndian.PutUint32(out[5:], uint32(len(data)))
		return out, nil

	case CompressionZlib:
		var buf bytes.Buffer
		buf.Write(zlibMagic)
		buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(data))))
		w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("create zlib writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("zlib write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zlib close: %w", err)
		}
		return buf.Bytes(), nil

	case CompressionLZMA:
		var buf bytes.Buffer
		cfg := lzma.WriterConfig{SizeInHeader: true, Size: int64(len(data))}
		w, err := cfg.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("create lzma writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lzma write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lzma close: %w", err)
		}
		// the classic header is 5 props bytes and a u64 size; containers keep the props
		stream := buf.Bytes()
		out := make([]byte, 9, 9+len(stream)-8)
		out[0] = byte(CompressionLZMA)
		binary.BigEndian.PutUint32(out[1:], uint32(len(stream)-8))
		binary.BigEndian.PutUint32(out[5:], uint32(len(data)))
		out = append(out, stream[:5]...)
		return append(out, stream[13:]...), nil

	default:
		return nil, fmt.Errorf("%w: cannot compress with %s", ErrUnsupportedCompression, c)
	}
}

// Decompress unwraps a stored container, detecting its compression from the
// first byte.
func Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty compressed data")
	}

	c := Compression(data[0])
	switch c {
	case CompressionNone:
		if len(data) < 5 {
			return nil, fmt.Errorf("%w: truncated container header", ErrMalformedArchive)
		}
		size := binary.BigEndian.Uint32(data[1:])
		if uint64(size) > uint64(len(data)-5) {
			return nil, fmt.Errorf("%w: container declares %d bytes, has %d", ErrMalformedArchive, size, len(data)-5)
		}
		return append([]byte(nil), data[5:5+size]...), nil

	case CompressionBzip2, CompressionGzip, CompressionLZMA:
		if len(data) < 9 {
			return nil, fmt.Errorf("%w: truncated container header", ErrMalformedArchive)
		}
		packed := binary.BigEndian.Uint32(data[1:])
		size := binary.BigEndian.Uint32(data[5:])
		if uint64(packed) > uint64(len(data)-9) {
			return nil, fmt.Errorf("%w: container declares %d packed bytes, has %d", ErrMalformedArchive, packed, len(data)-9)
		}
		body := data[9 : 9+packed]
		switch c {
		case CompressionBzip2:
			return decompressBzip2(body, size)
		case CompressionLZMA:
			return decompressLZMA(body, size)
		}
		return decompressGzip(body, size)

	case CompressionZlib:
		if len(data) < 8 || !bytes.Equal(data[:4], zlibMagic) {
			return nil, fmt.Errorf("%w: bad zlib container magic", ErrMalformedArchive)
		}
		return decompressZlib(data[8:], binary.BigEndian.Uint32(data[4:]))

	default:
		return nil, fmt.Errorf("%w: type 0x%02X", ErrUnsupportedCompression, byte(c))
	}
}

// readSized reads exactly size bytes from r. The buffer grows with what r
// actually yields rather than with the declared size.
func readSized(r io.Reader, size uint32, name string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(min(size, preallocLimit)))
	n, err := buf.ReadFrom(io.LimitReader(r, int64(size)))
	if err != nil {
		return nil, fmt.Errorf("%s decompress: %w", name, err)
	}
	if n < int64(size) {
		return nil, fmt.Errorf("%s decompress: %w after %d of %d bytes", name, io.ErrUnexpectedEOF, n, size)
	}
	return buf.Bytes(), nil
}

func decompressGzip(data []byte, size uint32) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer r.Close()
	return readSized(r, size, "gzip")
}

func decompressZlib(data []byte, size uint32) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create zlib reader: %w", err)
	}
	defer r.Close()
	return readSized(r, size, "zlib")
}

func decompressBzip2(data []byte, size uint32) ([]byte, error) {
	stream := io.MultiReader(bytes.NewReader(bzip2Magic), bytes.NewReader(data))
	return readSized(bzip2.NewReader(stream), size, "bzip2")
}

// decompressLZMA decodes props followed by a raw lzma stream. The classic
// header is rebuilt with the container's size, and the dictionary is never
// larger than the output needs.
func decompressLZMA(data []byte, size uint32) ([]byte, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: truncated lzma properties", ErrMalformedArchive)
	}
	dict := binary.LittleEndian.Uint32(data[1:5])
	dict = min(dict, max(size, lzma.MinDictCap))
	if dict > maxLZMADict {
		return nil, fmt.Errorf("%w: lzma dictionary of %d bytes", ErrMalformedArchive, dict)
	}

	header := make([]byte, 13)
	header[0] = data[0]
	binary.LittleEndian.PutUint32(header[1:], dict)
	binary.LittleEndian.PutUint64(header[5:], uint64(size))

	cfg := lzma.ReaderConfig{DictCap: lzma.MinDictCap}
	r, err := cfg.NewReader(io.MultiReader(bytes.NewReader(header), bytes.NewReader(data[5:])))
	if err != nil {
		return nil, fmt.Errorf("create lzma reader: %w", err)
	}
	return readSized(r, size, "lzma")
}
