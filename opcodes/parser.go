// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package opcodes

import (
	"fmt"
	"sort"
)

// Parser decodes and encodes opcode-tagged records with a fixed schema.
// A Parser is safe for concurrent use.
type Parser struct {
	types      *resolver
	ops        Opcodes
	byName     map[string]byte
	terminated bool
}

// Option configures a Parser.
type Option func(*Parser)

// ZeroTerminated makes a 0x00 opcode end the record when the opcode table
// does not define opcode 0. Write then appends the terminator.
func ZeroTerminated() Option {
	return func(p *Parser) {
		_, defined := p.ops[0]
		p.terminated = !defined
	}
}

// NewParser validates every type reachable from ops and returns a Parser.
// Unresolved names, alias cycles and chains longer than 1024 hops are
// reported here rather than during decoding.
func NewParser(typedef Typedef, ops Opcodes, opts ...Option) (*Parser, error) {
	p := &Parser{
		types:  newResolver(typedef),
		ops:    ops,
		byName: make(map[string]byte, len(ops)),
	}
	for _, opt := range opts {
		opt(p)
	}

	walked := make(map[string]struct{})
	for _, code := range sortedCodes(ops) {
		op := ops[code]
		if op.Name == "" {
			return nil, fmt.Errorf("%w: opcode 0x%02X has no name", ErrSchema, code)
		}
		if prev, dup := p.byName[op.Name]; dup {
			return nil, fmt.Errorf("%w: opcodes 0x%02X and 0x%02X share name %q", ErrSchema, prev, code, op.Name)
		}
		p.byName[op.Name] = code
		if err := p.types.check(op.Type, walked); err != nil {
			return nil, fmt.Errorf("opcode 0x%02X (%s): %w", code, op.Name, err)
		}
	}
	return p, nil
}

// Read decodes data as a sequence of opcode-tagged fields until the input is
// exhausted, or up to the terminator for a ZeroTerminated parser. A repeated
// opcode overwrites the earlier value in place.
func (p *Parser) Read(data []byte) (Record, error) {
	r := &reader{data: data}
	rec := Record{}
	var path []Step

	fail := func(err error) (Record, error) {
		return nil, &DecodeError{Offset: r.pos, Path: path, Partial: rec, Err: err}
	}

	for r.remaining() > 0 {
		at := r.pos
		code, _ := r.readByte()
		if code == 0 && p.terminated {
			if r.remaining() > 0 {
				return fail(fmt.Errorf("%w: %d bytes after terminator", ErrOutOfRange, r.remaining()))
			}
			break
		}
		path = append(path, Step{Opcode: code, Offset: at})

		op, ok := p.ops[code]
		if !ok {
			r.pos = at
			return fail(fmt.Errorf("%w: 0x%02X at offset %d", ErrUnknownOpcode, code, at))
		}
		v, err := p.decode(r, op.Type)
		if err != nil {
			return fail(fmt.Errorf("opcode %s: %w", op.Name, err))
		}
		rec.Set(op.Name, v)
	}
	return rec, nil
}

// Write encodes rec in field order, each field prefixed by its opcode.
func (p *Parser) Write(rec Record) ([]byte, error) {
	var buf []byte
	for _, f := range rec {
		code, ok := p.byName[f.Name]
		if !ok {
			return nil, &EncodeError{Path: []string{f.Name}, Err: fmt.Errorf("%w: no opcode named %q", ErrUnknownOpcode, f.Name)}
		}
		buf = append(buf, code)
		out, err := p.encode(buf, p.ops[code].Type, f.Value, 0)
		if err != nil {
			return nil, &EncodeError{Path: []string{f.Name}, Err: err}
		}
		buf = out
	}
	if p.terminated {
		buf = append(buf, 0)
	}
	return buf, nil
}

// DecodeValue decodes a single value of schema n from the start of data and
// reports how many bytes it consumed.
func (p *Parser) DecodeValue(n Node, data []byte) (any, int, error) {
	r := &reader{data: data}
	v, err := p.decode(r, n)
	if err != nil {
		return nil, r.pos, err
	}
	return v, r.pos, nil
}

// EncodeValue encodes a single value of schema n.
func (p *Parser) EncodeValue(n Node, v any) ([]byte, error) {
	return p.encode(nil, n, v, 0)
}

// Opcode returns the opcode registered under name.
func (p *Parser) Opcode(name string) (byte, bool) {
	code, ok := p.byName[name]
	return code, ok
}

func sortedCodes(ops Opcodes) []byte {
	codes := make([]byte, 0, len(ops))
	for c := range ops {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
