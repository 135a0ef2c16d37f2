// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package opcodes

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const typedefJSONC = `{
	// primitives
	"unsigned byte": {"primitive": "int", "unsigned": true, "bytes": 1, "readmode": "fixed", "endianness": "big"},
	"unsigned short": {"primitive": "int", "unsigned": true, "bytes": 2, "readmode": "fixed", "endianness": "big"},
	"variable unsigned short": {"primitive": "int", "unsigned": true, "bytes": 2, "readmode": "smart", "endianness": "big"},
	"int le": {"primitive": "int", "unsigned": false, "bytes": 4, "readmode": "fixed", "endianness": "little"},
	"string": {"primitive": "string", "encoding": "latin1", "termination": null},
	"name8": {"primitive": "string", "encoding": "latin1", "termination": 8},
	"boolean": {"primitive": "bool"},
	"true": {"primitive": "value", "value": 1},

	/* composites */
	"ubyte": "unsigned byte",
	"color": ["struct", ["r", "ubyte"], ["g", "ubyte"], ["b", "ubyte"]],
	"colors": ["array", "color"],
	"params": ["map", "ubyte", "string"],
	"point": ["ubyte", "ubyte"],
	"tagged": ["switch", 0, {"0x01": ["ubyte", "unsigned short"], "2": ["ubyte", "string"]}],
}`

const opcodesJSONC = `{
	"$comment": "item definitions",
	"0x01": {"name": "model", "read": "variable unsigned short"},
	"2": {"name": "name", "read": "string"},
	"0x0a": {"name": "recolor", "read": "colors"},
	"12": {"name": "members", "read": "true"},
	"0x20": {"name": "at", "read": ["array", "point"]},
}`

func TestLoadTypedef(t *testing.T) {
	td, err := LoadTypedef(strings.NewReader(typedefJSONC))
	require.NoError(t, err)

	assert.Equal(t, Int{Bytes: 1, Unsigned: true}, td["unsigned byte"])
	assert.Equal(t, Int{Bytes: 2, Unsigned: true, Smart: true}, td["variable unsigned short"])
	assert.Equal(t, Int{Bytes: 4, LittleEndian: true}, td["int le"])
	assert.Equal(t, String{}, td["string"])
	assert.Equal(t, String{Length: 8}, td["name8"])
	assert.Equal(t, Bool{}, td["boolean"])
	assert.Equal(t, Value{Value: int64(1)}, td["true"])
	assert.Equal(t, Alias{Name: "unsigned byte"}, td["ubyte"])
	assert.Equal(t, Array{Elem: Alias{Name: "color"}}, td["colors"])
	assert.Equal(t, Map{Key: Alias{Name: "ubyte"}, Elem: Alias{Name: "string"}}, td["params"])
	assert.Equal(t, Tuple{Elems: []Node{Alias{Name: "ubyte"}, Alias{Name: "ubyte"}}}, td["point"])
	assert.Equal(t, Struct{Fields: []StructField{
		{Name: "r", Type: Alias{Name: "ubyte"}},
		{Name: "g", Type: Alias{Name: "ubyte"}},
		{Name: "b", Type: Alias{Name: "ubyte"}},
	}}, td["color"])

	sw, ok := td["tagged"].(Switch)
	require.True(t, ok)
	assert.Len(t, sw.Cases, 2)
	assert.Contains(t, sw.Cases, byte(0x01))
	assert.Contains(t, sw.Cases, byte(0x02))
}

func TestLoadOpcodes(t *testing.T) {
	td, err := LoadTypedef(strings.NewReader(typedefJSONC))
	require.NoError(t, err)
	ops, err := LoadOpcodes(strings.NewReader(opcodesJSONC))
	require.NoError(t, err)

	require.Len(t, ops, 5)
	assert.Equal(t, "model", ops[0x01].Name)
	assert.Equal(t, "recolor", ops[0x0A].Name)
	assert.Equal(t, "members", ops[12].Name)

	p, err := NewParser(td, ops)
	require.NoError(t, err)

	data := []byte{
		0x01, 0x80, 0xC8,
		0x02, 'm', 'a', 'c', 'e', 0x00,
		0x0A, 0x01, 0x10, 0x20, 0x30,
		0x0C,
		0x20, 0x01, 0x03, 0x04,
	}
	rec, err := p.Read(data)
	require.NoError(t, err)

	model, _ := rec.Int("model")
	assert.Equal(t, int64(200), model)
	members, _ := rec.Get("members")
	assert.Equal(t, int64(1), members)
	recolor, _ := rec.Get("recolor")
	assert.Equal(t, []any{Record{
		{Name: "r", Value: int64(0x10)},
		{Name: "g", Value: int64(0x20)},
		{Name: "b", Value: int64(0x30)},
	}}, recolor)

	out, err := p.Write(rec)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		typedef string
	}{
		{"unknown primitive", `{"x": {"primitive": "float", "bytes": 4}}`},
		{"bad readmode", `{"x": {"primitive": "int", "bytes": 2, "readmode": "sumtail"}}`},
		{"odd smart", `{"x": {"primitive": "int", "bytes": 3, "readmode": "smart"}}`},
		{"missing bytes", `{"x": {"primitive": "int"}}`},
		{"bad encoding", `{"x": {"primitive": "string", "encoding": "utf8"}}`},
		{"short map", `{"x": ["map", "a"]}`},
		{"bad struct member", `{"x": ["struct", "a"]}`},
		{"number definition", `{"x": 5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTypedef(strings.NewReader(tt.typedef))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchema), "got %v", err)
		})
	}

	t.Run("bad opcode key", func(t *testing.T) {
		_, err := LoadOpcodes(strings.NewReader(`{"0x100": {"name": "x", "read": "ubyte"}}`))
		assert.Error(t, err)
	})
	t.Run("duplicate opcode", func(t *testing.T) {
		_, err := LoadOpcodes(strings.NewReader(`{"10": {"name": "x", "read": "ubyte"}, "0x0a": {"name": "y", "read": "ubyte"}}`))
		assert.True(t, errors.Is(err, ErrSchema))
	})
	t.Run("unnamed opcode", func(t *testing.T) {
		_, err := LoadOpcodes(strings.NewReader(`{"1": {"read": "ubyte"}}`))
		assert.True(t, errors.Is(err, ErrSchema))
	})
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"defs/typedef.jsonc": {Data: []byte(typedefJSONC)},
		"defs/items.jsonc":   {Data: []byte(opcodesJSONC)},
	}
	p, err := LoadFS(fsys, "defs/typedef.jsonc", "defs/items.jsonc")
	require.NoError(t, err)

	rec, err := p.Read([]byte{0x02, 'h', 'i', 0x00, 0x0C})
	require.NoError(t, err)
	assert.Equal(t, Record{{Name: "name", Value: "hi"}, {Name: "members", Value: int64(1)}}, rec)

	_, err = LoadFS(fsys, "defs/typedef.jsonc", "defs/missing.jsonc")
	assert.Error(t, err)
}
