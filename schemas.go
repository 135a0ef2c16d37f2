// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"embed"
	"io/fs"

	"github.com/suprsokr/go-rscache/opcodes"
)

//go:embed schemas/*.jsonc
var schemaFiles embed.FS

// File names of the built-in index schema
const (
	TypedefSchema = "typedef.jsonc"
	IndexSchema   = "cacheindex.jsonc"
)

// Schemas returns the built-in schema files.
func Schemas() fs.FS {
	sub, err := fs.Sub(schemaFiles, "schemas")
	if err != nil {
		panic(err)
	}
	return sub
}

// DefaultIndexParser returns the parser for the built-in index schema.
func DefaultIndexParser() (*opcodes.Parser, error) {
	return opcodes.LoadFS(Schemas(), TypedefSchema, IndexSchema)
}
