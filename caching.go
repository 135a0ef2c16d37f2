// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

// Default archive memo bounds
const (
	DefaultMaxEntries  = 200
	DefaultKeepEntries = 150
)

// DefaultBypassMajors are never memoized: their archives are large and
// rarely read twice.
var DefaultBypassMajors = []int{MajorModels, MajorTexturesDDS, MajorTexturesPNG, MajorTexturesBMP}

// flight is a fetch that is running or has finished. Every caller asking
// for the same key while it is cached shares it.
type flight[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFlight[T any]() *flight[T] {
	return &flight[T]{done: make(chan struct{})}
}

func (f *flight[T]) finish(val T, err error) {
	f.val, f.err = val, err
	close(f.done)
}

func (f *flight[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type archiveKey struct {
	major, minor int
}

type archiveSlot struct {
	flight *flight[[]SubFile]
	stamp  uint64
}

// CachingSource wraps a Source, memoizing index files for its lifetime and
// a bounded set of recently used archives. Failed fetches are not cached.
//
// Memoized values are shared between callers and must not be modified.
type CachingSource struct {
	inner Source
	log   *slog.Logger

	maxEntries  int
	keepEntries int
	bypass      map[int]struct{}

	indices *xsync.MapOf[int, *flight[IndexFile]]

	mu       sync.Mutex
	archives map[archiveKey]*archiveSlot
	counter  uint64

	metrics *cacheMetrics
}

// CacheOption configures a CachingSource.
type CacheOption func(*CachingSource)

// WithLogger sets the logger used for sweep diagnostics.
func WithLogger(l *slog.Logger) CacheOption {
	return func(c *CachingSource) { c.log = l }
}

// WithLimits sets the archive memo bounds: once more than maxEntries archives
// are held, the keepEntries most recently used are kept.
func WithLimits(maxEntries, keepEntries int) CacheOption {
	return func(c *CachingSource) {
		if maxEntries > 0 {
			c.maxEntries = maxEntries
		}
		if keepEntries > 0 {
			c.keepEntries = keepEntries
		}
	}
}

// WithBypassMajors replaces the set of majors whose archives are never
// memoized.
func WithBypassMajors(majors ...int) CacheOption {
	return func(c *CachingSource) {
		c.bypass = make(map[int]struct{}, len(majors))
		for _, m := range majors {
			c.bypass[m] = struct{}{}
		}
	}
}

// WithMetrics registers request and eviction counters with reg.
func WithMetrics(reg prometheus.Registerer) CacheOption {
	return func(c *CachingSource) {
		c.metrics = newCacheMetrics(reg)
	}
}

// NewCachingSource wraps inner.
func NewCachingSource(inner Source, opts ...CacheOption) *CachingSource {
	c := &CachingSource{
		inner:       inner,
		maxEntries:  DefaultMaxEntries,
		keepEntries: DefaultKeepEntries,
		indices:     xsync.NewMapOf[int, *flight[IndexFile]](),
		archives:    make(map[archiveKey]*archiveSlot),
	}
	WithBypassMajors(DefaultBypassMajors...)(c)
	for _, opt := range opts {
		opt(c)
	}
	if c.keepEntries > c.maxEntries {
		c.keepEntries = c.maxEntries
	}
	return c
}

func (c *CachingSource) logger() *slog.Logger {
	if c.log != nil {
		return c.log
	}
	return logger()
}

func (c *CachingSource) GetFile(ctx context.Context, major, minor int, crc uint32) ([]byte, error) {
	return c.inner.GetFile(ctx, major, minor, crc)
}

// GetIndexFile returns the index of major, fetching it at most once at a
// time per major.
func (c *CachingSource) GetIndexFile(ctx context.Context, major int) (IndexFile, error) {
	f := newFlight[IndexFile]()
	if cached, loaded := c.indices.LoadOrStore(major, f); loaded {
		c.metrics.request("index", "hit")
		return cached.wait(ctx)
	}
	c.metrics.request("index", "miss")

	go func() {
		// a failed flight is dropped before anyone sees its error
		index, err := c.inner.GetIndexFile(context.WithoutCancel(ctx), major)
		if err != nil {
			c.indices.Compute(major, func(old *flight[IndexFile], loaded bool) (*flight[IndexFile], bool) {
				return old, loaded && old == f
			})
		}
		f.finish(index, err)
	}()
	return f.wait(ctx)
}

// GetFileArchive returns the members of entry's archive. Concurrent callers
// for the same archive share one fetch of the wrapped source. The fetch is
// not canceled with any one caller's ctx; each caller stops waiting when its
// own ctx is done.
func (c *CachingSource) GetFileArchive(ctx context.Context, entry *IndexEntry) ([]SubFile, error) {
	if _, skip := c.bypass[entry.Major]; skip {
		c.metrics.request("archive", "bypass")
		return c.inner.GetFileArchive(ctx, entry)
	}

	key := archiveKey{entry.Major, entry.Minor}
	c.mu.Lock()
	if slot, ok := c.archives[key]; ok {
		slot.stamp = c.nextStamp()
		f := slot.flight
		c.mu.Unlock()
		c.metrics.request("archive", "hit")
		return f.wait(ctx)
	}
	f := newFlight[[]SubFile]()
	c.archives[key] = &archiveSlot{flight: f, stamp: c.nextStamp()}
	if len(c.archives) > c.maxEntries {
		c.sweep()
	}
	c.mu.Unlock()
	c.metrics.request("archive", "miss")

	go func() {
		files, err := c.inner.GetFileArchive(context.WithoutCancel(ctx), entry)
		if err != nil {
			c.forget(key, f)
		}
		f.finish(files, err)
	}()
	return f.wait(ctx)
}

func (c *CachingSource) WriteFile(ctx context.Context, major, minor int, data []byte) error {
	if err := c.inner.WriteFile(ctx, major, minor, data); err != nil {
		return err
	}
	c.invalidate(major, minor)
	return nil
}

func (c *CachingSource) WriteFileArchive(ctx context.Context, entry *IndexEntry, files [][]byte) error {
	if err := c.inner.WriteFileArchive(ctx, entry, files); err != nil {
		return err
	}
	c.invalidate(entry.Major, entry.Minor)
	return nil
}

func (c *CachingSource) Close() error {
	return c.inner.Close()
}

// invalidate drops memoized state derived from container (major, minor)
func (c *CachingSource) invalidate(major, minor int) {
	c.mu.Lock()
	delete(c.archives, archiveKey{major, minor})
	c.mu.Unlock()
	if major == MajorIndex {
		c.indices.Delete(minor)
	}
}

// forget evicts key if it still holds f
func (c *CachingSource) forget(key archiveKey, f *flight[[]SubFile]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slot, ok := c.archives[key]; ok && slot.flight == f {
		delete(c.archives, key)
	}
}

// nextStamp returns a stamp above every stamp handed out so far.
// Callers hold c.mu.
func (c *CachingSource) nextStamp() uint64 {
	if c.counter == math.MaxUint64 {
		c.rebase()
	}
	c.counter++
	return c.counter
}

// rebase renumbers stamps 1..n preserving their order. Callers hold c.mu.
func (c *CachingSource) rebase() {
	slots := c.slotsByAge()
	for i, s := range slots {
		s.stamp = uint64(i + 1)
	}
	c.counter = uint64(len(slots))
}

// slotsByAge returns the held slots, least recently used first
func (c *CachingSource) slotsByAge() []*archiveSlot {
	slots := make([]*archiveSlot, 0, len(c.archives))
	for _, s := range c.archives {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].stamp < slots[j].stamp })
	return slots
}

// sweep keeps the keepEntries most recently used archives. Callers hold c.mu.
func (c *CachingSource) sweep() {
	keys := make([]archiveKey, 0, len(c.archives))
	for k := range c.archives {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.archives[keys[i]].stamp > c.archives[keys[j]].stamp
	})

	evicted := 0
	for _, k := range keys[c.keepEntries:] {
		delete(c.archives, k)
		evicted++
	}
	c.rebase()

	c.metrics.evicted(evicted)
	c.logger().Debug("archive cache swept", "evicted", evicted, "kept", len(c.archives))
}

// cacheMetrics is nil when no registerer was supplied
type cacheMetrics struct {
	requests  *prometheus.CounterVec
	evictions prometheus.Counter
}

func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	m := &cacheMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rscache",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rscache",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Archives dropped by sweeps.",
		}),
	}
	reg.MustRegister(m.requests, m.evictions)
	return m
}

func (m *cacheMetrics) request(kind, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, result).Inc()
}

func (m *cacheMetrics) evicted(n int) {
	if m == nil {
		return
	}
	m.evictions.Add(float64(n))
}
