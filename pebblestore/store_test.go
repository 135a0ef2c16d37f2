// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pebblestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rscache "github.com/suprsokr/go-rscache"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	s, err := Open(dir, false)
	require.NoError(t, err)

	_, err = s.Get(ctx, 2, 10)
	var nf *rscache.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, 2, nf.Major)
	assert.Equal(t, 10, nf.Minor)

	require.NoError(t, s.Put(ctx, 2, 10, []byte("config")))
	require.NoError(t, s.Put(ctx, rscache.MajorIndex, 2, []byte("index")))
	require.NoError(t, s.Put(ctx, 2, 3, []byte("three")))
	require.NoError(t, s.Put(ctx, 2, 300, []byte("big minor")))

	data, err := s.Get(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("config"), data)

	var keys [][2]int
	require.NoError(t, s.Walk(ctx, func(major, minor int) error {
		keys = append(keys, [2]int{major, minor})
		return nil
	}))
	assert.Equal(t, [][2]int{{2, 3}, {2, 10}, {2, 300}, {rscache.MajorIndex, 2}}, keys)
	require.NoError(t, s.Close())

	ro, err := Open(dir, true)
	require.NoError(t, err)
	defer ro.Close()
	data, err = ro.Get(ctx, rscache.MajorIndex, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("index"), data)
	assert.True(t, errors.Is(ro.Put(ctx, 2, 11, nil), rscache.ErrReadOnly))
}

func TestOpenReadOnlyMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), true)
	assert.Error(t, err)
}

func TestStoreAsSource(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), false)
	require.NoError(t, err)

	src := rscache.NewDirectSource(s, nil, rscache.DirectOptions{Compression: rscache.CompressionGzip})
	defer src.Close()

	entry := &rscache.IndexEntry{Major: 5, Minor: 1, SubIndexCount: 2, SubIndices: []int{0, 1}}
	require.NoError(t, src.WriteFileArchive(ctx, entry, [][]byte{[]byte("a"), []byte("bc")}))

	subs, err := src.GetFileArchive(ctx, entry)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, []byte("bc"), subs[1].Buffer)
}

func TestCollector(t *testing.T) {
	s, err := Open(t.TempDir(), false)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Put(context.Background(), 1, 1, []byte("x")))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(s)))
	assert.Equal(t, 6, testutil.CollectAndCount(NewCollector(s)))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 6)
}
