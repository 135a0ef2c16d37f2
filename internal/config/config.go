// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package config loads the rscache tool configuration.
//
// Configuration is read from a single YAML file named by the --config flag
// or, failing that, the RSCACHE_CONFIG environment variable. With neither
// set the defaults are used.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	rscache "github.com/suprsokr/go-rscache"
	"github.com/suprsokr/go-rscache/opcodes"
	"github.com/suprsokr/go-rscache/pebblestore"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "RSCACHE_CONFIG"

// Store backends
const (
	BackendDir    = "dir"
	BackendPebble = "pebble"
)

// Config is the tool configuration.
type Config struct {
	Cache      CacheConfig      `yaml:"cache"`
	Schemas    SchemasConfig    `yaml:"schemas"`
	Addressing AddressingConfig `yaml:"addressing"`
	Caching    CachingConfig    `yaml:"caching"`
	Log        LogConfig        `yaml:"log"`
}

// CacheConfig locates the stored cache and says how containers are laid out.
type CacheConfig struct {
	// Dir is the store directory.
	Dir string `yaml:"dir"`

	// Backend is "dir" (one file per container) or "pebble".
	Backend string `yaml:"backend"`

	// Layout is the archive framing: "network" or "header".
	Layout string `yaml:"layout"`

	// Compression applied when writing containers: none, gzip, zlib or lzma.
	Compression string `yaml:"compression"`

	// RequireCRC verifies stored containers against their index crc.
	RequireCRC bool `yaml:"require_crc"`
}

// SchemasConfig locates index schema files. An empty Dir selects the
// built-in schema.
type SchemasConfig struct {
	Dir     string `yaml:"dir"`
	Typedef string `yaml:"typedef"`
	Index   string `yaml:"index"`
}

// AddressingConfig overrides per-major archive capacities.
type AddressingConfig struct {
	Capacities map[int]int `yaml:"capacities"`
}

// CachingConfig bounds the archive memo.
type CachingConfig struct {
	MaxEntries   int   `yaml:"max_entries"`
	KeepEntries  int   `yaml:"keep_entries"`
	BypassMajors []int `yaml:"bypass_majors"`
}

// LogConfig sets the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given. Loaded files
// are merged over it.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Dir:         "cache",
			Backend:     BackendDir,
			Layout:      rscache.LayoutNetwork.String(),
			Compression: rscache.CompressionNone.String(),
		},
		Schemas: SchemasConfig{
			Typedef: rscache.TypedefSchema,
			Index:   rscache.IndexSchema,
		},
		Caching: CachingConfig{
			MaxEntries:   rscache.DefaultMaxEntries,
			KeepEntries:  rscache.DefaultKeepEntries,
			BypassMajors: append([]int(nil), rscache.DefaultBypassMajors...),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the file at path, or at $RSCACHE_CONFIG when path is empty,
// and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

func (c *Config) expandVariables() {
	c.Cache.Dir = expandVars(c.Cache.Dir)
	c.Schemas.Dir = expandVars(c.Schemas.Dir)
}

// Validate checks the configuration, reporting every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir is required"))
	}
	if c.Cache.Backend != BackendDir && c.Cache.Backend != BackendPebble {
		errs = append(errs, fmt.Errorf("cache.backend must be %q or %q, got %q", BackendDir, BackendPebble, c.Cache.Backend))
	}
	if _, err := rscache.ParseLayout(c.Cache.Layout); err != nil {
		errs = append(errs, fmt.Errorf("cache.layout: %w", err))
	}
	if comp, err := rscache.ParseCompression(c.Cache.Compression); err != nil {
		errs = append(errs, fmt.Errorf("cache.compression: %w", err))
	} else if comp == rscache.CompressionBzip2 {
		errs = append(errs, errors.New("cache.compression: bzip2 containers can be read but not written"))
	}
	if c.Schemas.Dir != "" && (c.Schemas.Typedef == "" || c.Schemas.Index == "") {
		errs = append(errs, errors.New("schemas.typedef and schemas.index are required with schemas.dir"))
	}
	for major, capacity := range c.Addressing.Capacities {
		if major < 0 || major > rscache.MajorIndex {
			errs = append(errs, fmt.Errorf("addressing.capacities: major %d out of range", major))
		}
		// 0 resets a major to one file per archive
		if capacity < 0 {
			errs = append(errs, fmt.Errorf("addressing.capacities: major %d has capacity %d", major, capacity))
		}
	}
	if c.Caching.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("caching.max_entries must be positive, got %d", c.Caching.MaxEntries))
	}
	if c.Caching.KeepEntries <= 0 || c.Caching.KeepEntries > c.Caching.MaxEntries {
		errs = append(errs, fmt.Errorf("caching.keep_entries must be in 1..%d, got %d", c.Caching.MaxEntries, c.Caching.KeepEntries))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// LogLevel returns the configured level. Call after Validate.
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

// DirectOptions returns the options for a DirectSource over the store.
func (c *Config) DirectOptions() rscache.DirectOptions {
	layout, _ := rscache.ParseLayout(c.Cache.Layout)
	comp, _ := rscache.ParseCompression(c.Cache.Compression)
	return rscache.DirectOptions{Layout: layout, Compression: comp, RequireCRC: c.Cache.RequireCRC}
}

// NewAddressing returns the addressing with configured capacities.
func (c *Config) NewAddressing() *rscache.Addressing {
	return rscache.NewAddressing(c.Addressing.Capacities)
}

// CacheOptions returns the CachingSource options for the configured bounds.
func (c *Config) CacheOptions() []rscache.CacheOption {
	return []rscache.CacheOption{
		rscache.WithLimits(c.Caching.MaxEntries, c.Caching.KeepEntries),
		rscache.WithBypassMajors(c.Caching.BypassMajors...),
	}
}

// IndexParser loads the index schema.
func (c *Config) IndexParser() (*opcodes.Parser, error) {
	if c.Schemas.Dir == "" {
		return rscache.DefaultIndexParser()
	}
	return opcodes.LoadFS(os.DirFS(c.Schemas.Dir), c.Schemas.Typedef, c.Schemas.Index)
}

// Store is a FileStore that can list its containers.
type Store interface {
	rscache.FileStore
	rscache.Walker
}

// OpenStore opens the configured backend at dir, or at cache.dir when dir
// is empty.
func (c *Config) OpenStore(dir string, readOnly bool) (Store, error) {
	if dir == "" {
		dir = c.Cache.Dir
	}
	if c.Cache.Backend == BackendPebble {
		s, err := pebblestore.Open(dir, readOnly)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := rscache.OpenDirStore(dir, readOnly)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSource opens the store and wraps it in a caching DirectSource. With a
// non-nil reg the cache metrics, and pebble metrics for that backend, are
// registered with it.
func (c *Config) OpenSource(readOnly bool, reg prometheus.Registerer, opts ...rscache.CacheOption) (*rscache.CachingSource, error) {
	parser, err := c.IndexParser()
	if err != nil {
		return nil, fmt.Errorf("load index schema: %w", err)
	}
	store, err := c.OpenStore("", readOnly)
	if err != nil {
		return nil, err
	}
	opts = append(c.CacheOptions(), opts...)
	if reg != nil {
		opts = append(opts, rscache.WithMetrics(reg))
		if ps, ok := store.(*pebblestore.Store); ok {
			if err := reg.Register(pebblestore.NewCollector(ps)); err != nil {
				store.Close()
				return nil, fmt.Errorf("register pebble metrics: %w", err)
			}
		}
	}
	direct := rscache.NewDirectSource(store, parser, c.DirectOptions())
	return rscache.NewCachingSource(direct, opts...), nil
}
