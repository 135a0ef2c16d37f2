// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package opcodes decodes and encodes self-describing binary records using a
schema supplied at runtime.

Most structured cache files are a sequence of opcodes: one tag byte naming a
field, followed by that field's value, repeated until the buffer is
exhausted. A [Parser] is built from a [Typedef] (named, reusable schema
nodes) and an [Opcodes] table (tag byte to field name and schema):

	typedef, err := opcodes.LoadTypedef(typedefFile)
	ops, err := opcodes.LoadOpcodes(itemsFile)
	parser, err := opcodes.NewParser(typedef, ops)

	record, err := parser.Read(data)
	name, _ := record.Get("name")

	data, err = parser.Write(record)

# Schema nodes

Schema nodes form a closed set of kinds: [Bool], [Int], [String], [Switch],
[Value], [Array], [Map], [Struct], [Tuple] and [Alias]. Aliases name other
nodes in the typedef and may chain; chains are resolved once, bounded to
1024 hops, and a cycle or unknown name is an error.

# Values

Decoded values use a small set of Go types: bool, int64, string, []any for
arrays and tuples, []Pair for maps and [Record] for structs and opcode
records. Records keep field order so that re-encoding is byte identical.

# Errors

Decoding never skips bytes it does not understand. A failed [Parser.Read]
returns a [*DecodeError] holding the opcodes read so far with their byte
offsets and the partially decoded record, which is what you need when
reverse engineering a format that drifted.
*/
package opcodes
