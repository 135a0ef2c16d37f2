// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package opcodes

import (
	"fmt"
	"strings"
)

// reader is a forward-only cursor over a byte slice
type reader struct {
	data  []byte
	pos   int
	depth int
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) need(n int) error {
	if n < 0 || r.remaining() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrOutOfRange, n, r.pos, r.remaining())
	}
	return nil
}

func (r *reader) readByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// decode reads one value of schema n
func (p *Parser) decode(r *reader, n Node) (any, error) {
	if r.depth >= maxDepth {
		return nil, fmt.Errorf("%w: types nest deeper than %d", ErrSchema, maxDepth)
	}
	r.depth++
	defer func() { r.depth-- }()

	switch t := n.(type) {
	case Alias:
		target, err := p.types.resolve(t.Name)
		if err != nil {
			return nil, err
		}
		return p.decode(r, target)

	case Bool:
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		return b == 1, nil

	case Int:
		return decodeInt(r, t)

	case String:
		return decodeString(r, t)

	case Switch:
		at := r.pos + t.Offset
		if at < 0 || at >= len(r.data) {
			return nil, fmt.Errorf("%w: switch tag at offset %d outside %d bytes", ErrOutOfRange, at, len(r.data))
		}
		tag := r.data[at]
		c, ok := t.Cases[tag]
		if !ok {
			return nil, fmt.Errorf("%w: 0x%02X at offset %d", ErrUnknownTag, tag, at)
		}
		return p.decode(r, c)

	case Value:
		return t.Value, nil

	case Array:
		count, err := decodeInt(r, countType)
		if err != nil {
			return nil, fmt.Errorf("array count: %w", err)
		}
		list := make([]any, 0, count)
		for i := int64(0); i < count; i++ {
			v, err := p.decode(r, t.Elem)
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
			list = append(list, v)
		}
		return list, nil

	case Map:
		count, err := r.readByte()
		if err != nil {
			return nil, fmt.Errorf("map count: %w", err)
		}
		pairs := make([]Pair, 0, count)
		for i := 0; i < int(count); i++ {
			k, err := p.decode(r, t.Key)
			if err != nil {
				return nil, fmt.Errorf("map key %d: %w", i, err)
			}
			v, err := p.decode(r, t.Elem)
			if err != nil {
				return nil, fmt.Errorf("map value %d: %w", i, err)
			}
			pairs = append(pairs, Pair{Key: k, Value: v})
		}
		return pairs, nil

	case Struct:
		rec := make(Record, 0, len(t.Fields))
		for _, f := range t.Fields {
			v, err := p.decode(r, f.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			rec = append(rec, Field{Name: f.Name, Value: v})
		}
		return rec, nil

	case Tuple:
		list := make([]any, 0, len(t.Elems))
		for i, e := range t.Elems {
			v, err := p.decode(r, e)
			if err != nil {
				return nil, fmt.Errorf("tuple element %d: %w", i, err)
			}
			list = append(list, v)
		}
		return list, nil

	default:
		return nil, fmt.Errorf("%w: unsupported node %T", ErrSchema, n)
	}
}

// decodeInt reads a fixed or variable width integer
func decodeInt(r *reader, t Int) (int64, error) {
	width := t.Bytes
	if !t.Smart {
		b, err := r.take(width)
		if err != nil {
			return 0, err
		}
		return intFromBytes(b, !t.Unsigned, t.LittleEndian), nil
	}

	if err := r.need(1); err != nil {
		return 0, err
	}
	first := r.data[r.pos]
	if first&0x80 == 0 {
		width >>= 1
	}
	b, err := r.take(width)
	if err != nil {
		return 0, err
	}

	var buf [8]byte
	copy(buf[:], b)
	buf[0] = first & 0x7F
	if !t.Unsigned && first&0x40 != 0 {
		buf[0] |= 0x80
	}
	return intFromBytes(buf[:width], !t.Unsigned, false), nil
}

// intFromBytes assembles an integer, sign extending when signed
func intFromBytes(b []byte, signed, littleEndian bool) int64 {
	var u uint64
	if littleEndian {
		for i := len(b) - 1; i >= 0; i-- {
			u = u<<8 | uint64(b[i])
		}
	} else {
		for _, v := range b {
			u = u<<8 | uint64(v)
		}
	}
	bits := uint(len(b)) * 8
	if signed && bits < 64 && u&(1<<(bits-1)) != 0 {
		u |= ^uint64(0) << bits
	}
	return int64(u)
}

// decodeString reads a latin1 string
func decodeString(r *reader, t String) (string, error) {
	var raw []byte
	if t.Length > 0 {
		b, err := r.take(t.Length)
		if err != nil {
			return "", err
		}
		raw = b
		for i, c := range b {
			if c == 0 {
				raw = b[:i]
				break
			}
		}
	} else {
		end := -1
		for i := r.pos; i < len(r.data); i++ {
			if r.data[i] == 0 {
				end = i
				break
			}
		}
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated string at offset %d", ErrOutOfRange, r.pos)
		}
		raw = r.data[r.pos:end]
		r.pos = end + 1
	}
	return latin1String(raw), nil
}

func latin1String(b []byte) string {
	var s strings.Builder
	s.Grow(len(b))
	for _, c := range b {
		s.WriteRune(rune(c))
	}
	return s.String()
}
