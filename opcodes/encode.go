// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package opcodes

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// encode appends the wire form of v under schema n to buf
func (p *Parser) encode(buf []byte, n Node, v any, depth int) ([]byte, error) {
	if depth >= maxDepth {
		return nil, fmt.Errorf("%w: types nest deeper than %d", ErrSchema, maxDepth)
	}
	depth++
	switch t := n.(type) {
	case Alias:
		target, err := p.types.resolve(t.Name)
		if err != nil {
			return nil, err
		}
		return p.encode(buf, target, v, depth)

	case Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: bool expected, got %T", ErrValue, v)
		}
		if b {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil

	case Int:
		i, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return encodeInt(buf, t, i)

	case String:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: string expected, got %T", ErrValue, v)
		}
		return encodeString(buf, t, s)

	case Switch:
		return p.encodeSwitch(buf, t, v, depth)

	case Value:
		return buf, nil

	case Array:
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: list expected, got %T", ErrValue, v)
		}
		buf, err := encodeInt(buf, countType, int64(len(list)))
		if err != nil {
			return nil, fmt.Errorf("array count: %w", err)
		}
		for i, e := range list {
			if buf, err = p.encode(buf, t.Elem, e, depth); err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
		}
		return buf, nil

	case Map:
		pairs, err := toPairs(v)
		if err != nil {
			return nil, err
		}
		if len(pairs) > math.MaxUint8 {
			return nil, fmt.Errorf("%w: map of %d entries exceeds one byte count", ErrValue, len(pairs))
		}
		buf = append(buf, byte(len(pairs)))
		for i, pair := range pairs {
			if buf, err = p.encode(buf, t.Key, pair.Key, depth); err != nil {
				return nil, fmt.Errorf("map key %d: %w", i, err)
			}
			if buf, err = p.encode(buf, t.Elem, pair.Value, depth); err != nil {
				return nil, fmt.Errorf("map value %d: %w", i, err)
			}
		}
		return buf, nil

	case Struct:
		rec, ok := v.(Record)
		if !ok {
			return nil, fmt.Errorf("%w: record expected, got %T", ErrValue, v)
		}
		var err error
		for _, f := range t.Fields {
			fv, ok := rec.Get(f.Name)
			if !ok {
				return nil, fmt.Errorf("%w: missing field %s", ErrValue, f.Name)
			}
			if buf, err = p.encode(buf, f.Type, fv, depth); err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		return buf, nil

	case Tuple:
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: list expected, got %T", ErrValue, v)
		}
		if len(list) != len(t.Elems) {
			return nil, fmt.Errorf("%w: tuple of %d elements, got %d", ErrValue, len(t.Elems), len(list))
		}
		var err error
		for i, e := range t.Elems {
			if buf, err = p.encode(buf, e, list[i], depth); err != nil {
				return nil, fmt.Errorf("tuple element %d: %w", i, err)
			}
		}
		return buf, nil

	default:
		return nil, fmt.Errorf("%w: unsupported node %T", ErrSchema, n)
	}
}

// encodeSwitch encodes v with the first case, in tag order, whose output
// carries that case's tag at the switch offset
func (p *Parser) encodeSwitch(buf []byte, t Switch, v any, depth int) ([]byte, error) {
	tags := make([]int, 0, len(t.Cases))
	for tag := range t.Cases {
		tags = append(tags, int(tag))
	}
	sort.Ints(tags)

	start := len(buf)
	for _, tag := range tags {
		out, err := p.encode(buf[:start:start], t.Cases[byte(tag)], v, depth)
		if errors.Is(err, ErrSchema) {
			return nil, err
		}
		if err != nil {
			continue
		}
		at := start + t.Offset
		if at >= 0 && at < len(out) && out[at] == byte(tag) {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: no switch case encodes %T with a matching tag", ErrValue, v)
}

// encodeInt appends a fixed or variable width integer
func encodeInt(buf []byte, t Int, v int64) ([]byte, error) {
	width := t.Bytes
	if !t.Smart {
		if !intFits(v, width*8, t.Unsigned) {
			return nil, fmt.Errorf("%w: %d does not fit %d byte int", ErrValue, v, width)
		}
		return appendInt(buf, uint64(v), width, t.LittleEndian), nil
	}

	// one bit is spent on the continuation flag
	flag := uint64(1)
	if intFits(v, width/2*8-1, t.Unsigned) {
		width /= 2
		flag = 0
	} else if !intFits(v, width*8-1, t.Unsigned) {
		return nil, fmt.Errorf("%w: %d does not fit %d byte variable int", ErrValue, v, t.Bytes)
	}
	bits := uint(width) * 8
	u := uint64(v)&(1<<(bits-1)-1) | flag<<(bits-1)
	return appendInt(buf, u, width, false), nil
}

// intFits reports whether v is representable in bits bits
func intFits(v int64, bits int, unsigned bool) bool {
	if bits >= 64 {
		// unsigned 64 bit values arrive reinterpreted as int64
		return true
	}
	if unsigned {
		return v >= 0 && uint64(v) < 1<<uint(bits)
	}
	limit := int64(1) << uint(bits-1)
	return v >= -limit && v < limit
}

func appendInt(buf []byte, u uint64, width int, littleEndian bool) []byte {
	for i := 0; i < width; i++ {
		shift := uint(width-1-i) * 8
		if littleEndian {
			shift = uint(i) * 8
		}
		buf = append(buf, byte(u>>shift))
	}
	return buf
}

// encodeString appends a latin1 string
func encodeString(buf []byte, t String, s string) ([]byte, error) {
	raw := make([]byte, 0, len(s))
	for _, c := range s {
		if c > 0xFF {
			return nil, fmt.Errorf("%w: %q is not latin1", ErrValue, c)
		}
		if c == 0 {
			return nil, fmt.Errorf("%w: string contains a null byte", ErrValue)
		}
		raw = append(raw, byte(c))
	}
	if t.Length == 0 {
		buf = append(buf, raw...)
		return append(buf, 0), nil
	}
	if len(raw) > t.Length {
		return nil, fmt.Errorf("%w: string of %d bytes exceeds fixed length %d", ErrValue, len(raw), t.Length)
	}
	buf = append(buf, raw...)
	for i := len(raw); i < t.Length; i++ {
		buf = append(buf, 0)
	}
	return buf, nil
}

// toInt64 accepts the integer representations produced by decoding and by
// JSON input
func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrValue, t)
		}
		return int64(t), nil
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrValue, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: integer expected, got %T", ErrValue, v)
	}
}

// toPairs accepts []Pair or a list of {key, value} records
func toPairs(v any) ([]Pair, error) {
	switch t := v.(type) {
	case []Pair:
		return t, nil
	case []any:
		pairs := make([]Pair, len(t))
		for i, e := range t {
			rec, ok := e.(Record)
			if !ok {
				return nil, fmt.Errorf("%w: map entry %d must be a {key, value} object", ErrValue, i)
			}
			key, okKey := rec.Get("key")
			val, okVal := rec.Get("value")
			if !okKey || !okVal {
				return nil, fmt.Errorf("%w: map entry %d must be a {key, value} object", ErrValue, i)
			}
			pairs[i] = Pair{Key: key, Value: val}
		}
		return pairs, nil
	default:
		return nil, fmt.Errorf("%w: map expected, got %T", ErrValue, v)
	}
}
