// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rscache "github.com/suprsokr/go-rscache"
)

// runCLI runs the tool and returns its stdout
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), err
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// testCache stores archive 7.3 with files 40 and 41 in a flat-file cache and
// returns a config file pointing at it
func testCache(t *testing.T) (configPath, cacheDir string) {
	t.Helper()
	t.Setenv("RSCACHE_CONFIG", "")
	dir := t.TempDir()
	cacheDir = filepath.Join(dir, "cache")

	store, err := rscache.OpenDirStore(cacheDir, false)
	require.NoError(t, err)
	parser, err := rscache.DefaultIndexParser()
	require.NoError(t, err)
	src := rscache.NewDirectSource(store, parser, rscache.DirectOptions{Compression: rscache.CompressionGzip})

	ctx := context.Background()
	entry := &rscache.IndexEntry{Major: 7, Minor: 3, CRC: 0x1234, Version: 5, SubIndexCount: 2, SubIndices: []int{40, 41}}
	require.NoError(t, src.WriteFileArchive(ctx, entry, [][]byte{[]byte("forty"), []byte("forty-one")}))

	index := rscache.NewIndexFile(entry)
	data, err := rscache.EncodeIndexFile(7, index, parser)
	require.NoError(t, err)
	require.NoError(t, src.WriteFile(ctx, rscache.MajorIndex, 7, data))

	configPath = writeFile(t, filepath.Join(dir, "rscache.yaml"), []byte(`
cache:
  dir: `+cacheDir+`
  compression: gzip
addressing:
  capacities:
    7: 12
log:
  level: error
`))
	return configPath, cacheDir
}

func TestUsageErrors(t *testing.T) {
	t.Setenv("RSCACHE_CONFIG", "")
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"explode"}},
		{"bad global flag", []string{"--nope", "index"}},
		{"index without major", []string{"index"}},
		{"index bad major", []string{"index", "seven"}},
		{"extract negative id", []string{"extract", "7", "-1"}},
		{"extract minor without dir", []string{"extract", "--minor", "3", "7"}},
		{"decode without schemas", []string{"decode", "file.bin"}},
		{"decode bad format", []string{"decode", "--typedef", "a", "--opcodes", "b", "--format", "xml", "f"}},
		{"pack without members", []string{"pack"}},
		{"pack bad layout", []string{"pack", "--layout", "zip", "a"}},
		{"unpack without count", []string{"unpack", "-o", "out", "archive"}},
		{"forge without crc", []string{"forge", "--offset", "0", "f"}},
		{"forge insert with member", []string{"forge", "--crc", "1", "--offset", "0", "--member", "0", "--insert", "f"}},
		{"import backend", []string{"import", "--backend", "tape", "dir"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			var usage *usageError
			require.True(t, errors.As(err, &usage), "got %v", err)
		})
	}
}

func TestHelp(t *testing.T) {
	out, err := runCLI(t, "--help")
	require.NoError(t, err)
	for name := range commands {
		assert.Contains(t, out, name)
	}
}

func TestPackUnpack(t *testing.T) {
	t.Setenv("RSCACHE_CONFIG", "")
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), []byte("first member"))
	b := writeFile(t, filepath.Join(dir, "b"), nil)
	c := writeFile(t, filepath.Join(dir, "c"), []byte("third"))

	for _, layout := range []string{"network", "header"} {
		t.Run(layout, func(t *testing.T) {
			archive := filepath.Join(dir, layout+".pack")
			_, err := runCLI(t, "pack", "--layout", layout, "-o", archive, a, b, c)
			require.NoError(t, err)

			out := filepath.Join(dir, layout+"-out")
			_, err = runCLI(t, "unpack", "--layout", layout, "--ids", "4,8,9", "-o", out, archive)
			require.NoError(t, err)

			for name, want := range map[string]string{"4.bin": "first member", "8.bin": "", "9.bin": "third"} {
				got, err := os.ReadFile(filepath.Join(out, name))
				require.NoError(t, err)
				assert.Equal(t, want, string(got))
			}
		})
	}
}

func TestForge(t *testing.T) {
	t.Setenv("RSCACHE_CONFIG", "")
	dir := t.TempDir()
	file := writeFile(t, filepath.Join(dir, "data"), bytes.Repeat([]byte{0xAB}, 32))

	out, err := runCLI(t, "forge", "--crc", "0xDEADBEEF", "--offset", "8", file)
	require.NoError(t, err)
	assert.Len(t, out, 32)
	assert.Equal(t, uint32(0xDEADBEEF), rscache.CRC32([]byte(out)))

	out, err = runCLI(t, "forge", "--crc", "0xDEADBEEF", "--offset", "32", "--insert", file)
	require.NoError(t, err)
	assert.Len(t, out, 36)
	assert.Equal(t, uint32(0xDEADBEEF), rscache.CRC32([]byte(out)))

	member := writeFile(t, filepath.Join(dir, "member"), make([]byte, 16))
	out, err = runCLI(t, "forge", "--crc", "12345", "--offset", "4", "--member", "1", "--layout", "network", file, member)
	require.NoError(t, err)
	assert.Equal(t, uint32(12345), rscache.CRC32([]byte(out)))

	_, err = runCLI(t, "forge", "--crc", "1", "--offset", "40", file)
	assert.Error(t, err)
}

func TestIndexAndExtract(t *testing.T) {
	cfg, _ := testCache(t)

	out, err := runCLI(t, "--config", cfg, "index", "7")
	require.NoError(t, err)
	assert.Equal(t, "3\tcrc=00001234\tversion=5\tfiles=[40 41]\n", out)

	out, err = runCLI(t, "--config", cfg, "index", "--json", "7")
	require.NoError(t, err)
	assert.Contains(t, out, `"SubIndices": [`)

	out, err = runCLI(t, "--config", cfg, "extract", "7", "41")
	require.NoError(t, err)
	assert.Equal(t, "forty-one", out)

	dir := filepath.Join(t.TempDir(), "members")
	_, err = runCLI(t, "--config", cfg, "extract", "--minor", "3", "-o", dir, "7")
	require.NoError(t, err)
	// sub ids 40 and 41 of minor 3 with capacity 12
	got, err := os.ReadFile(filepath.Join(dir, "77.bin"))
	require.NoError(t, err)
	assert.Equal(t, "forty-one", string(got))

	_, err = runCLI(t, "--config", cfg, "extract", "7", "42")
	assert.True(t, errors.Is(err, rscache.ErrNotFound))
}

func TestDecode(t *testing.T) {
	cfg, cacheDir := testCache(t)
	typedef := filepath.Join("..", "..", "schemas", "typedef.jsonc")
	ops := filepath.Join("..", "..", "schemas", "cacheindex.jsonc")

	// index containers are gzip packed, decode the payload
	raw, err := os.ReadFile(filepath.Join(cacheDir, "255", "7.dat"))
	require.NoError(t, err)
	payload, err := rscache.Decompress(raw)
	require.NoError(t, err)
	record := writeFile(t, filepath.Join(t.TempDir(), "index.bin"), payload)

	out, err := runCLI(t, "--config", cfg, "decode", "--typedef", typedef, "--opcodes", ops, record)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "{\n  \"indices\": ["), out)
	assert.Contains(t, out, `"crc": 4660`)

	out, err = runCLI(t, "--config", cfg, "decode", "--typedef", typedef, "--opcodes", ops, "--format", "cbor", record)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, cbor.Unmarshal([]byte(out), &decoded))
	assert.Contains(t, decoded, "indices")
}

func TestImportAndMetrics(t *testing.T) {
	_, cacheDir := testCache(t)
	dir := t.TempDir()
	cfg := writeFile(t, filepath.Join(dir, "pebble.yaml"), []byte(`
cache:
  dir: `+filepath.Join(dir, "db")+`
  backend: pebble
  compression: gzip
addressing:
  capacities:
    7: 12
log:
  level: error
`))

	_, err := runCLI(t, "--config", cfg, "import", cacheDir)
	require.NoError(t, err)

	metrics := filepath.Join(dir, "metrics.prom")
	out, err := runCLI(t, "--config", cfg, "--metrics-file", metrics, "extract", "7", "40")
	require.NoError(t, err)
	assert.Equal(t, "forty", out)

	text, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(text), `rscache_cache_requests_total{kind="archive",result="miss"} 1`)
	assert.Contains(t, string(text), "rscache_pebble_compactions_total")
}
