// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package opcodes

// Node is a schema node. The set of implementations is closed.
type Node interface {
	node()
}

// Bool is one byte, 1 meaning true and 0 meaning false.
type Bool struct{}

// Int is an integer of Bytes bytes.
//
// A Smart int uses the top bit of its first byte as a continuation flag: when
// clear only Bytes/2 bytes are read, when set all Bytes are read with the flag
// masked off. A signed Smart int takes its sign from the second highest bit of
// the first byte. Smart ints are always big endian.
type Int struct {
	Bytes        int
	Unsigned     bool
	LittleEndian bool
	Smart        bool
}

// String is a latin1 string, null terminated when Length is 0 and
// occupying exactly Length bytes otherwise.
type String struct {
	Length int
}

// Switch peeks the byte at Offset relative to the cursor and decodes the
// case registered for it. The cursor is not moved by the peek.
type Switch struct {
	Offset int
	Cases  map[byte]Node
}

// Value is a constant spliced into the decoded record. It has no wire
// representation.
type Value struct {
	Value any
}

// Array is a variable unsigned short count followed by that many elements.
type Array struct {
	Elem Node
}

// Map is a one byte count followed by that many key/value pairs.
type Map struct {
	Key  Node
	Elem Node
}

// StructField is a named member of a Struct.
type StructField struct {
	Name string
	Type Node
}

// Struct is a fixed, ordered list of named fields.
type Struct struct {
	Fields []StructField
}

// Tuple is a positional list of nodes decoded into a []any.
type Tuple struct {
	Elems []Node
}

// Alias refers to a node of the typedef by name.
type Alias struct {
	Name string
}

func (Bool) node()   {}
func (Int) node()    {}
func (String) node() {}
func (Switch) node() {}
func (Value) node()  {}
func (Array) node()  {}
func (Map) node()    {}
func (Struct) node() {}
func (Tuple) node()  {}
func (Alias) node()  {}

// Typedef maps type names to schema nodes.
type Typedef map[string]Node

// Opcode names the field introduced by one opcode byte and its schema.
type Opcode struct {
	Name string
	Type Node
}

// Opcodes maps opcode bytes to the field they introduce.
type Opcodes map[byte]Opcode

// countType is the schema of array counts
var countType = Int{Bytes: 2, Unsigned: true, Smart: true}

// DefaultTypedef returns the primitive types shared by most record schemas.
// The returned map is a fresh copy and may be extended by the caller.
func DefaultTypedef() Typedef {
	return Typedef{
		"bool":   Bool{},
		"ubyte":  Int{Bytes: 1, Unsigned: true},
		"byte":   Int{Bytes: 1},
		"ushort": Int{Bytes: 2, Unsigned: true},
		"short":  Int{Bytes: 2},
		"uint":   Int{Bytes: 4, Unsigned: true},
		"int":    Int{Bytes: 4},
		"ulong":  Int{Bytes: 8, Unsigned: true},
		"long":   Int{Bytes: 8},

		"ushort le": Int{Bytes: 2, Unsigned: true, LittleEndian: true},
		"uint le":   Int{Bytes: 4, Unsigned: true, LittleEndian: true},

		"varushort": countType,
		"varshort":  Int{Bytes: 2, Smart: true},
		"varuint":   Int{Bytes: 4, Unsigned: true, Smart: true},
		"varint":    Int{Bytes: 4, Smart: true},

		"string": String{},

		"unsigned byte":           Alias{Name: "ubyte"},
		"unsigned short":          Alias{Name: "ushort"},
		"unsigned int":            Alias{Name: "uint"},
		"variable unsigned short": Alias{Name: "varushort"},
		"variable short":          Alias{Name: "varshort"},
		"variable unsigned int":   Alias{Name: "varuint"},
		"variable int":            Alias{Name: "varint"},
	}
}
