// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package opcodes

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownOpcode   = errors.New("opcodes: unknown opcode")
	ErrUnknownTag      = errors.New("opcodes: unknown switch tag")
	ErrUnresolvedAlias = errors.New("opcodes: unresolved type name")
	ErrAliasLoop       = errors.New("opcodes: alias chain does not terminate")
	ErrOutOfRange      = errors.New("opcodes: read out of range")
	ErrSchema          = errors.New("opcodes: invalid schema")
	ErrValue           = errors.New("opcodes: value does not fit schema")
)

// Step is one opcode read while decoding a record.
type Step struct {
	Opcode byte
	Offset int // Offset of the opcode byte
}

// DecodeError reports a failed Parser.Read together with the path taken so
// far and what was decoded before the failure.
type DecodeError struct {
	Offset  int    // Cursor position when decoding failed
	Path    []Step // Opcodes read, in order
	Partial Record // Fields decoded before the failure
	Err     error
}

func (e *DecodeError) Error() string {
	var path strings.Builder
	for i, s := range e.Path {
		if i > 0 {
			path.WriteString(" ")
		}
		fmt.Fprintf(&path, "0x%02X@%d", s.Opcode, s.Offset)
	}
	return fmt.Sprintf("decode failed at offset %d after [%s]: %v", e.Offset, path.String(), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError reports a failed Parser.Write with the field path that failed.
type EncodeError struct {
	Path []string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", strings.Join(e.Path, "."), e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
