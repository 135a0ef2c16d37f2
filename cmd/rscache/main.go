// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// rscache inspects and edits a stored game cache: it lists index files,
// extracts and decodes logical files, packs and unpacks archives, forges
// archive checksums and copies caches between store backends.
//
// Usage:
//
//	rscache [--config file] [--metrics-file file] <command> [flags] [args]
//
// The config file (or $RSCACHE_CONFIG) selects the store, layout and
// compression; see internal/config.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	rscache "github.com/suprsokr/go-rscache"
	"github.com/suprsokr/go-rscache/internal/config"
)

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err == nil {
		return
	}
	var usage *usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		printUsage(os.Stderr)
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// usageError reports bad command line arguments
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// env is what every command runs with
type env struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	stdout   io.Writer
}

type command struct {
	summary string
	run     func(e *env, args []string) error
}

var commands = map[string]command{
	"index":   {"list the entries of an index file", runIndex},
	"extract": {"write a logical file or a whole archive", runExtract},
	"decode":  {"decode a record with an opcode schema", runDecode},
	"pack":    {"pack member files into an archive", runPack},
	"unpack":  {"split an archive into member files", runUnpack},
	"forge":   {"patch a file or archive to a chosen crc", runForge},
	"import":  {"copy every container of another store", runImport},
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: rscache [--config file] [--metrics-file file] <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var configPath, metricsFile string
	flags := pflag.NewFlagSet("rscache", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.SetInterspersed(false)
	flags.StringVar(&configPath, "config", "", "config file (default $"+config.EnvVar+")")
	flags.StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this file on exit")
	help := flags.BoolP("help", "h", false, "show help")

	if err := flags.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if *help {
		printUsage(stdout)
		return nil
	}
	rest := flags.Args()
	if len(rest) == 0 {
		return usagef("no command given")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return usagef("unknown command %q", rest[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	rscache.SetLogger(logger)

	e := &env{cfg: cfg, log: logger, registry: prometheus.NewRegistry(), stdout: stdout}
	err = cmd.run(e, rest[1:])

	if metricsFile != "" {
		if werr := prometheus.WriteToTextfile(metricsFile, e.registry); werr != nil {
			logger.Error("write metrics", "file", metricsFile, "error", werr)
		}
	}
	return err
}

// newFlags returns a flag set for a subcommand whose parse errors are
// usage errors
func newFlags(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	return flags
}

func parseFlags(flags *pflag.FlagSet, args []string) error {
	if err := flags.Parse(args); err != nil {
		return usagef("%s: %v", flags.Name(), err)
	}
	return nil
}

// openSource opens the configured cache behind a CachingSource
func (e *env) openSource(readOnly bool) (*rscache.CachingSource, error) {
	return e.cfg.OpenSource(readOnly, e.registry, rscache.WithLogger(e.log))
}
