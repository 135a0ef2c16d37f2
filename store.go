// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FileStore holds raw stored containers by (major, minor). Get returns a
// *NotFoundError for missing containers.
type FileStore interface {
	Get(ctx context.Context, major, minor int) ([]byte, error)
	Put(ctx context.Context, major, minor int, data []byte) error
	Close() error
}

// Walker is implemented by stores that can enumerate their containers.
type Walker interface {
	Walk(ctx context.Context, fn func(major, minor int) error) error
}

// CopyStore copies every container of src into dst and returns the number
// copied.
func CopyStore(ctx context.Context, dst FileStore, src interface {
	FileStore
	Walker
}) (int, error) {
	n := 0
	err := src.Walk(ctx, func(major, minor int) error {
		data, err := src.Get(ctx, major, minor)
		if err != nil {
			return err
		}
		if err := dst.Put(ctx, major, minor, data); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

// DirStore keeps one file per container at <root>/<major>/<minor>.dat.
type DirStore struct {
	root     string
	readOnly bool
}

// OpenDirStore opens a flat-file store rooted at dir. A writable store creates
// dir if needed.
func OpenDirStore(dir string, readOnly bool) (*DirStore, error) {
	if readOnly {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("open cache dir: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("open cache dir: %s is not a directory", dir)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DirStore{root: dir, readOnly: readOnly}, nil
}

func (s *DirStore) path(major, minor int) string {
	return filepath.Join(s.root, strconv.Itoa(major), strconv.Itoa(minor)+".dat")
}

func (s *DirStore) Get(ctx context.Context, major, minor int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(major, minor))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(major, minor)
	}
	if err != nil {
		return nil, fmt.Errorf("read container %d.%d: %w", major, minor, err)
	}
	return data, nil
}

// Put writes data to a temp file and renames it over the container, so
// readers never observe a partial write.
func (s *DirStore) Put(ctx context.Context, major, minor int, data []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := s.path(major, minor)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create major dir: %w", err)
	}

	file, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := file.Name()
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write container %d.%d: %w", major, minor, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempPath, dst); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Walk calls fn for every container in major then minor order. Files not
// named like containers are skipped.
func (s *DirStore) Walk(ctx context.Context, fn func(major, minor int) error) error {
	majors, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("list cache dir: %w", err)
	}
	for _, dir := range sortedNumeric(majors, true) {
		files, err := os.ReadDir(filepath.Join(s.root, strconv.Itoa(dir)))
		if err != nil {
			return fmt.Errorf("list major %d: %w", dir, err)
		}
		for _, minor := range sortedNumeric(files, false) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(dir, minor); err != nil {
				return err
			}
		}
	}
	return nil
}

// sortedNumeric returns the numbers named by dir entries: directories "n" or
// files "n.dat"
func sortedNumeric(entries []os.DirEntry, dirs bool) []int {
	var out []int
	for _, e := range entries {
		if e.IsDir() != dirs {
			continue
		}
		name := e.Name()
		if !dirs {
			var ok bool
			if name, ok = strings.CutSuffix(name, ".dat"); !ok {
				continue
			}
		}
		n, err := strconv.Atoi(name)
		if err != nil || n < 0 {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func (s *DirStore) Close() error {
	return nil
}

// MemoryStore is a FileStore kept in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[[2]int][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[[2]int][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, major, minor int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[[2]int{major, minor}]
	if !ok {
		return nil, notFound(major, minor)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Put(_ context.Context, major, minor int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[[2]int{major, minor}] = append([]byte(nil), data...)
	return nil
}

// Walk calls fn for every container in major then minor order.
func (s *MemoryStore) Walk(ctx context.Context, fn func(major, minor int) error) error {
	s.mu.RLock()
	keys := make([][2]int, 0, len(s.files))
	for k := range s.files {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k[0], k[1]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored containers.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

func (s *MemoryStore) Close() error {
	return nil
}
