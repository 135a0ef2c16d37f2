// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package opcodes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

// LoadTypedef reads a typedef file: a JSON object (comments and trailing
// commas allowed) mapping type names to type definitions.
//
// A definition is one of
//
//	"other name"                                     alias
//	{"primitive": "int", "bytes": 2, "unsigned": true,
//	 "readmode": "fixed"|"smart", "endianness": "big"|"little"}
//	{"primitive": "string", "encoding": "latin1", "termination": null|n}
//	{"primitive": "bool"}
//	{"primitive": "value", "value": v}
//	["array", def]
//	["map", keydef, valuedef]
//	["struct", ["name", def], ...]
//	["switch", offset, {"tag": def, ...}]
//	[def, def, ...]                                   tuple
func LoadTypedef(r io.Reader) (Typedef, error) {
	raw, err := readJSONC(r)
	if err != nil {
		return nil, err
	}
	var defs map[string]any
	if err := unmarshalNumbers(raw, &defs); err != nil {
		return nil, fmt.Errorf("parse typedef: %w", err)
	}
	td := make(Typedef, len(defs))
	for name, def := range defs {
		n, err := parseNode(def)
		if err != nil {
			return nil, fmt.Errorf("typedef %q: %w", name, err)
		}
		td[name] = n
	}
	return td, nil
}

// LoadOpcodes reads an opcode table: a JSON object keyed by opcode byte in
// decimal or 0x hex, each value {"name": field, "read": def}. Keys starting
// with "$" are ignored.
func LoadOpcodes(r io.Reader) (Opcodes, error) {
	raw, err := readJSONC(r)
	if err != nil {
		return nil, err
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse opcodes: %w", err)
	}

	ops := make(Opcodes, len(entries))
	for key, msg := range entries {
		if strings.HasPrefix(key, "$") {
			continue
		}
		code, err := parseTag(key)
		if err != nil {
			return nil, fmt.Errorf("opcode key %q: %w", key, err)
		}
		var entry struct {
			Name string `json:"name"`
			Read any    `json:"read"`
		}
		if err := unmarshalNumbers(msg, &entry); err != nil {
			return nil, fmt.Errorf("opcode %q: %w", key, err)
		}
		if entry.Name == "" {
			return nil, fmt.Errorf("%w: opcode %q has no name", ErrSchema, key)
		}
		n, err := parseNode(entry.Read)
		if err != nil {
			return nil, fmt.Errorf("opcode %q (%s): %w", key, entry.Name, err)
		}
		if _, dup := ops[code]; dup {
			return nil, fmt.Errorf("%w: opcode 0x%02X defined twice", ErrSchema, code)
		}
		ops[code] = Opcode{Name: entry.Name, Type: n}
	}
	return ops, nil
}

func readJSONC(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return jsonc.ToJSON(data), nil
}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// parseTag accepts a byte written in decimal or with a 0x prefix
func parseTag(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

func parseNode(def any) (Node, error) {
	switch t := def.(type) {
	case string:
		return Alias{Name: t}, nil
	case map[string]any:
		return parsePrimitive(t)
	case []any:
		return parseComposite(t)
	default:
		return nil, fmt.Errorf("%w: unexpected definition %v", ErrSchema, def)
	}
}

func parsePrimitive(obj map[string]any) (Node, error) {
	kind, _ := obj["primitive"].(string)
	switch kind {
	case "bool":
		return Bool{}, nil
	case "value":
		v, ok := obj["value"]
		if !ok {
			return nil, fmt.Errorf("%w: value primitive without value", ErrSchema)
		}
		return Value{Value: normalizeConst(v)}, nil
	case "string":
		if enc, ok := obj["encoding"].(string); ok && enc != "latin1" {
			return nil, fmt.Errorf("%w: unsupported string encoding %q", ErrSchema, enc)
		}
		var s String
		if term, ok := obj["termination"]; ok && term != nil {
			n, err := toInt64(term)
			if err != nil {
				return nil, fmt.Errorf("%w: string termination: %v", ErrSchema, err)
			}
			s.Length = int(n)
		}
		return s, nil
	case "int":
		bytesN, err := toInt64(obj["bytes"])
		if err != nil {
			return nil, fmt.Errorf("%w: int bytes: %v", ErrSchema, err)
		}
		unsigned, _ := obj["unsigned"].(bool)
		n := Int{Bytes: int(bytesN), Unsigned: unsigned}
		switch mode, _ := obj["readmode"].(string); mode {
		case "", "fixed":
		case "smart":
			n.Smart = true
		default:
			return nil, fmt.Errorf("%w: unsupported int readmode %q", ErrSchema, mode)
		}
		switch end, _ := obj["endianness"].(string); end {
		case "", "big":
		case "little":
			n.LittleEndian = true
		default:
			return nil, fmt.Errorf("%w: unknown endianness %q", ErrSchema, end)
		}
		return n, checkInt(n)
	default:
		return nil, fmt.Errorf("%w: unsupported primitive %q", ErrSchema, kind)
	}
}

func parseComposite(list []any) (Node, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: empty definition list", ErrSchema)
	}
	head, _ := list[0].(string)
	switch head {
	case "array":
		if len(list) != 2 {
			return nil, fmt.Errorf("%w: array takes one element type", ErrSchema)
		}
		elem, err := parseNode(list[1])
		if err != nil {
			return nil, fmt.Errorf("array: %w", err)
		}
		return Array{Elem: elem}, nil

	case "map":
		if len(list) != 3 {
			return nil, fmt.Errorf("%w: map takes a key and a value type", ErrSchema)
		}
		key, err := parseNode(list[1])
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		elem, err := parseNode(list[2])
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		return Map{Key: key, Elem: elem}, nil

	case "struct":
		s := Struct{Fields: make([]StructField, 0, len(list)-1)}
		for _, prop := range list[1:] {
			pair, ok := prop.([]any)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("%w: struct member must be [name, type]", ErrSchema)
			}
			name, ok := pair[0].(string)
			if !ok {
				return nil, fmt.Errorf("%w: struct member name must be a string", ErrSchema)
			}
			n, err := parseNode(pair[1])
			if err != nil {
				return nil, fmt.Errorf("struct member %s: %w", name, err)
			}
			s.Fields = append(s.Fields, StructField{Name: name, Type: n})
		}
		return s, nil

	case "switch":
		if len(list) != 3 {
			return nil, fmt.Errorf("%w: switch takes an offset and a case object", ErrSchema)
		}
		off, err := toInt64(list[1])
		if err != nil {
			return nil, fmt.Errorf("%w: switch offset: %v", ErrSchema, err)
		}
		cases, ok := list[2].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: switch cases must be an object", ErrSchema)
		}
		sw := Switch{Offset: int(off), Cases: make(map[byte]Node, len(cases))}
		keys := make([]string, 0, len(cases))
		for k := range cases {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tag, err := parseTag(k)
			if err != nil {
				return nil, fmt.Errorf("switch tag %q: %w", k, err)
			}
			n, err := parseNode(cases[k])
			if err != nil {
				return nil, fmt.Errorf("switch case %q: %w", k, err)
			}
			sw.Cases[tag] = n
		}
		return sw, nil

	default:
		tup := Tuple{Elems: make([]Node, 0, len(list))}
		for i, e := range list {
			n, err := parseNode(e)
			if err != nil {
				return nil, fmt.Errorf("tuple element %d: %w", i, err)
			}
			tup.Elems = append(tup.Elems, n)
		}
		return tup, nil
	}
}

// normalizeConst turns integral json numbers into int64 so constants match
// decoded values
func normalizeConst(v any) any {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}

// LoadFiles builds a Parser from a typedef file and an opcode table file.
func LoadFiles(typedefPath, opcodesPath string, opts ...Option) (*Parser, error) {
	return load(os.Open, typedefPath, opcodesPath, opts)
}

// LoadFS is LoadFiles reading from fsys.
func LoadFS(fsys fs.FS, typedefName, opcodesName string, opts ...Option) (*Parser, error) {
	return load(func(name string) (fs.File, error) { return fsys.Open(name) }, typedefName, opcodesName, opts)
}

func load[F io.ReadCloser](open func(string) (F, error), typedefName, opcodesName string, opts []Option) (*Parser, error) {
	tf, err := open(typedefName)
	if err != nil {
		return nil, fmt.Errorf("open typedef: %w", err)
	}
	defer tf.Close()
	typedef, err := LoadTypedef(tf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typedefName, err)
	}

	of, err := open(opcodesName)
	if err != nil {
		return nil, fmt.Errorf("open opcodes: %w", err)
	}
	defer of.Close()
	ops, err := LoadOpcodes(of)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opcodesName, err)
	}

	return NewParser(typedef, ops, opts...)
}
