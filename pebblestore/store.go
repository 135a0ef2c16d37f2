// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package pebblestore keeps cache containers in a pebble database.
package pebblestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	rscache "github.com/suprsokr/go-rscache"
)

// Store is an rscache.FileStore backed by pebble. Keys are the big-endian
// major followed by the big-endian minor, so iteration runs in major then
// minor order.
type Store struct {
	db       *pebble.DB
	readOnly bool
}

// WriteOptions is used by Put.
var WriteOptions = pebble.Sync

// Open opens the database at dir, creating it unless readOnly.
func Open(dir string, readOnly bool) (*Store, error) {
	opts := &pebble.Options{
		ReadOnly:         readOnly,
		ErrorIfNotExists: readOnly,
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	return &Store{db: db, readOnly: readOnly}, nil
}

func key(major, minor int) []byte {
	k := binary.BigEndian.AppendUint32(make([]byte, 0, 8), uint32(major))
	return binary.BigEndian.AppendUint32(k, uint32(minor))
}

func (s *Store) Get(ctx context.Context, major, minor int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, closer, err := s.db.Get(key(major, minor))
	if closer != nil {
		defer closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, &rscache.NotFoundError{Major: major, Minor: minor, FileID: -1}
	}
	if err != nil {
		return nil, fmt.Errorf("read container %d.%d: %w", major, minor, err)
	}
	// val is only valid until closer is closed
	return append([]byte(nil), val...), nil
}

func (s *Store) Put(ctx context.Context, major, minor int, data []byte) error {
	if s.readOnly {
		return rscache.ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Set(key(major, minor), data, WriteOptions); err != nil {
		return fmt.Errorf("write container %d.%d: %w", major, minor, err)
	}
	return nil
}

// Walk calls fn for every container in major then minor order.
func (s *Store) Walk(ctx context.Context, fn func(major, minor int) error) error {
	it := s.db.NewIter(&pebble.IterOptions{})
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		k := it.Key()
		if len(k) != 8 {
			continue
		}
		major := int(binary.BigEndian.Uint32(k))
		minor := int(binary.BigEndian.Uint32(k[4:]))
		if err := fn(major, minor); err != nil {
			return err
		}
	}
	return it.Error()
}

// Metrics returns the database metrics.
func (s *Store) Metrics() *pebble.Metrics {
	return s.db.Metrics()
}

func (s *Store) Close() error {
	return s.db.Close()
}
