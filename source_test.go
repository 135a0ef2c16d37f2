// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves fixed indices and archives and counts calls. When gate
// is set, GetFileArchive signals entered and blocks until gate is closed.
type fakeSource struct {
	mu           sync.Mutex
	indices      map[int]IndexFile
	archives     map[archiveKey][][]byte
	indexCalls   map[int]int
	archiveCalls map[archiveKey]int
	fail         map[archiveKey]error // returned once, then cleared

	gate    chan struct{}
	entered chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		indices:      make(map[int]IndexFile),
		archives:     make(map[archiveKey][][]byte),
		indexCalls:   make(map[int]int),
		archiveCalls: make(map[archiveKey]int),
		fail:         make(map[archiveKey]error),
	}
}

func (s *fakeSource) addArchive(major, minor int, subIndices []int, files [][]byte) *IndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &IndexEntry{Major: major, Minor: minor, SubIndexCount: len(subIndices), SubIndices: subIndices}
	idx := s.indices[major]
	idx.set(e)
	s.indices[major] = idx
	s.archives[archiveKey{major, minor}] = files
	return e
}

func (s *fakeSource) calls(major, minor int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archiveCalls[archiveKey{major, minor}]
}

func (s *fakeSource) GetFile(ctx context.Context, major, minor int, crc uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.archives[archiveKey{major, minor}]
	if !ok {
		return nil, notFound(major, minor)
	}
	return LayoutNetwork.Pack(files), nil
}

func (s *fakeSource) GetFileArchive(ctx context.Context, entry *IndexEntry) ([]SubFile, error) {
	key := archiveKey{entry.Major, entry.Minor}
	s.mu.Lock()
	s.archiveCalls[key]++
	gate, entered := s.gate, s.entered
	s.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[key]; ok {
		delete(s.fail, key)
		return nil, err
	}
	files, ok := s.archives[key]
	if !ok {
		return nil, notFound(entry.Major, entry.Minor)
	}
	subs := make([]SubFile, len(files))
	for i, f := range files {
		subs[i] = SubFile{Size: len(f), Buffer: f, FileID: entry.SubIndices[i]}
	}
	return subs, nil
}

func (s *fakeSource) GetIndexFile(ctx context.Context, major int) (IndexFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexCalls[major]++
	idx, ok := s.indices[major]
	if !ok {
		return nil, notFound(MajorIndex, major)
	}
	return idx, nil
}

func (s *fakeSource) WriteFile(ctx context.Context, major, minor int, data []byte) error {
	return nil
}

func (s *fakeSource) WriteFileArchive(ctx context.Context, entry *IndexEntry, files [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives[archiveKey{entry.Major, entry.Minor}] = files
	return nil
}

func (s *fakeSource) Close() error {
	return nil
}

func TestGetFileByIDFlatSubIndices(t *testing.T) {
	src := newFakeSource()
	src.addArchive(7, 3, []int{40, 41}, [][]byte{[]byte("member forty"), []byte("member forty-one")})

	addr := NewAddressing(map[int]int{7: 12})
	pos := addr.FileIDToArchiveMinor(7, 41)
	assert.Equal(t, 3, pos.Minor)

	entry, err := GetIndexEntry(context.Background(), src, 7, pos.Minor)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Slot(41))

	data, err := GetFileByID(context.Background(), src, addr, 7, 41)
	require.NoError(t, err)
	assert.Equal(t, []byte("member forty-one"), data)
}

func TestGetFileByIDSubIndices(t *testing.T) {
	src := newFakeSource()
	src.addArchive(MajorItems, 16, []int{0, 55, 56}, [][]byte{[]byte("a"), []byte("b"), []byte("c")})

	data, err := GetFileByID(context.Background(), src, NewAddressing(nil), MajorItems, 4151)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)

	subs, err := GetArchiveByID(context.Background(), src, MajorItems, 16)
	require.NoError(t, err)
	assert.Len(t, subs, 3)
}

func TestGetFileByIDNotFound(t *testing.T) {
	src := newFakeSource()
	src.addArchive(MajorItems, 16, []int{0, 55}, [][]byte{[]byte("a"), []byte("b")})
	addr := NewAddressing(nil)

	_, err := GetFileByID(context.Background(), src, addr, MajorItems, 4100)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, NotFoundError{Major: MajorItems, Minor: 16, FileID: 4100}, *nf)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = GetFileByID(context.Background(), src, addr, MajorItems, 9000)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = GetArchiveByID(context.Background(), src, MajorNPCs, 0)
	assert.True(t, errors.Is(err, ErrNotFound))
}
