// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package opcodes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value any
}

// Record is an ordered set of named values.
type Record []Field

// Pair is one entry of a decoded Map.
type Pair struct {
	Key   any `json:"key"`
	Value any `json:"value"`
}

// Get returns the value stored under name.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Set stores v under name, replacing an existing value in place.
func (r *Record) Set(name string, v any) {
	for i := range *r {
		if (*r)[i].Name == name {
			(*r)[i].Value = v
			return
		}
	}
	*r = append(*r, Field{Name: name, Value: v})
}

// Int returns the value stored under name as an integer.
func (r Record) Int(name string) (int64, bool) {
	v, ok := r.Get(name)
	if !ok {
		return 0, false
	}
	return Int64(v)
}

// Int64 converts a decoded or JSON-read integer to int64.
func Int64(v any) (int64, bool) {
	i, err := toInt64(v)
	return i, err == nil
}

// Names returns the field names in order.
func (r Record) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// MarshalJSON encodes the record as a JSON object keeping field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", f.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping field order. Nested objects
// become Records, numbers become json.Number.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := readJSONValue(dec)
	if err != nil {
		return err
	}
	rec, ok := v.(Record)
	if !ok {
		return fmt.Errorf("json object expected, got %T", v)
	}
	*r = rec
	return nil
}

// readJSONValue reads one JSON value from dec, objects as Records
func readJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			rec := Record{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("json object key expected, got %v", keyTok)
				}
				val, err := readJSONValue(dec)
				if err != nil {
					return nil, err
				}
				rec = append(rec, Field{Name: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return rec, nil
		case '[':
			list := []any{}
			for dec.More() {
				val, err := readJSONValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		default:
			return nil, fmt.Errorf("unexpected json delimiter %v", t)
		}
	default:
		return t, nil
	}
}

// ReadRecordJSON reads one JSON object from r as a Record.
func ReadRecordJSON(r io.Reader) (Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := rec.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return rec, nil
}

// Plain converts a decoded value into plain maps and slices, for encoders
// that do not know about Record or Pair. Field order is lost.
func Plain(v any) any {
	switch t := v.(type) {
	case Record:
		m := make(map[string]any, len(t))
		for _, f := range t {
			m[f.Name] = Plain(f.Value)
		}
		return m
	case []any:
		list := make([]any, len(t))
		for i, e := range t {
			list[i] = Plain(e)
		}
		return list
	case []Pair:
		list := make([]any, len(t))
		for i, p := range t {
			list[i] = map[string]any{"key": Plain(p.Key), "value": Plain(p.Value)}
		}
		return list
	default:
		return v
	}
}
