// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fxamacker/cbor/v2"

	rscache "github.com/suprsokr/go-rscache"
	"github.com/suprsokr/go-rscache/opcodes"
)

func parseInts(names []string, args []string) ([]int, error) {
	if len(args) != len(names) {
		return nil, usagef("expected arguments: %v", names)
	}
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 {
			return nil, usagef("%s must be a non-negative integer, got %q", names[i], a)
		}
		out[i] = n
	}
	return out, nil
}

// rscache index <major>
func runIndex(e *env, args []string) error {
	flags := newFlags("index")
	asJSON := flags.Bool("json", false, "print entries as JSON")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	nums, err := parseInts([]string{"major"}, flags.Args())
	if err != nil {
		return err
	}

	src, err := e.openSource(true)
	if err != nil {
		return err
	}
	defer src.Close()

	index, err := src.GetIndexFile(context.Background(), nums[0])
	if err != nil {
		return err
	}
	entries := index.Entries()
	if *asJSON {
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, entry := range entries {
		fmt.Fprintf(e.stdout, "%d\tcrc=%08x\tversion=%d\tfiles=%v\n", entry.Minor, entry.CRC, entry.Version, entry.SubIndices)
	}
	return nil
}

// rscache extract <major> <fileid> | --minor n <major>
func runExtract(e *env, args []string) error {
	flags := newFlags("extract")
	out := flags.StringP("output", "o", "", "output file, or directory with --minor (default stdout)")
	minor := flags.Int("minor", -1, "extract every member of this archive instead of one file")
	if err := parseFlags(flags, args); err != nil {
		return err
	}

	ctx := context.Background()
	if *minor >= 0 {
		nums, err := parseInts([]string{"major"}, flags.Args())
		if err != nil {
			return err
		}
		if *out == "" {
			return usagef("extract --minor needs an output directory")
		}
		src, err := e.openSource(true)
		if err != nil {
			return err
		}
		defer src.Close()

		subs, err := rscache.GetArchiveByID(ctx, src, nums[0], *minor)
		if err != nil {
			return err
		}
		addr := e.cfg.NewAddressing()
		members := make([][]byte, len(subs))
		names := make([]string, len(subs))
		for i, sub := range subs {
			members[i] = sub.Buffer
			names[i] = strconv.Itoa(addr.ArchiveToFileID(nums[0], *minor, sub.FileID)) + ".bin"
		}
		return writeMembers(*out, names, members)
	}

	nums, err := parseInts([]string{"major", "fileid"}, flags.Args())
	if err != nil {
		return err
	}
	src, err := e.openSource(true)
	if err != nil {
		return err
	}
	defer src.Close()

	data, err := rscache.GetFileByID(ctx, src, e.cfg.NewAddressing(), nums[0], nums[1])
	if err != nil {
		return err
	}
	return e.writeOutput(*out, data)
}

// rscache decode --typedef f --opcodes f (<file> | --major m --fileid n)
func runDecode(e *env, args []string) error {
	flags := newFlags("decode")
	typedef := flags.String("typedef", "", "typedef schema file")
	ops := flags.String("opcodes", "", "opcode table file")
	format := flags.String("format", "json", "output format: json or cbor")
	out := flags.StringP("output", "o", "", "output file (default stdout)")
	major := flags.Int("major", -1, "read the record from the cache instead of a file")
	fileID := flags.Int("fileid", -1, "logical file id, with --major")
	terminated := flags.Bool("zero-terminated", false, "stop at a 0x00 opcode when the table does not define it")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if *typedef == "" || *ops == "" {
		return usagef("decode needs --typedef and --opcodes")
	}
	if *format != "json" && *format != "cbor" {
		return usagef("unknown format %q", *format)
	}

	var data []byte
	switch {
	case *major >= 0:
		if *fileID < 0 || flags.NArg() != 0 {
			return usagef("decode --major needs --fileid and no file argument")
		}
		src, err := e.openSource(true)
		if err != nil {
			return err
		}
		defer src.Close()
		data, err = rscache.GetFileByID(context.Background(), src, e.cfg.NewAddressing(), *major, *fileID)
		if err != nil {
			return err
		}
	case flags.NArg() == 1:
		var err error
		if data, err = os.ReadFile(flags.Arg(0)); err != nil {
			return fmt.Errorf("read record: %w", err)
		}
	default:
		return usagef("decode needs one file argument or --major and --fileid")
	}

	var popts []opcodes.Option
	if *terminated {
		popts = append(popts, opcodes.ZeroTerminated())
	}
	parser, err := opcodes.LoadFiles(*typedef, *ops, popts...)
	if err != nil {
		return err
	}
	rec, err := parser.Read(data)
	if err != nil {
		return err
	}
	encoded, err := encodeRecord(rec, *format)
	if err != nil {
		return err
	}
	return e.writeOutput(*out, encoded)
}

var cborMode cbor.EncMode

func init() {
	var err error
	cborMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cbor encoder initialization failed: " + err.Error())
	}
}

func encodeRecord(rec opcodes.Record, format string) ([]byte, error) {
	if format == "cbor" {
		return cborMode.Marshal(opcodes.Plain(rec))
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// rscache pack -o archive member...
func runPack(e *env, args []string) error {
	flags := newFlags("pack")
	out := flags.StringP("output", "o", "", "output archive (default stdout)")
	layoutName := flags.String("layout", "", "archive layout (default from config)")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return usagef("pack needs at least one member file")
	}
	layout, err := e.layout(*layoutName)
	if err != nil {
		return err
	}
	members, err := readFiles(flags.Args())
	if err != nil {
		return err
	}
	return e.writeOutput(*out, rscache.NewArchive(members).Pack(layout))
}

// rscache unpack --count n -o dir archive
func runUnpack(e *env, args []string) error {
	flags := newFlags("unpack")
	out := flags.StringP("output", "o", "", "output directory")
	layoutName := flags.String("layout", "", "archive layout (default from config)")
	count := flags.Int("count", 0, "number of members, ids 0..count-1")
	ids := flags.IntSlice("ids", nil, "sub ids of the members in slot order")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if flags.NArg() != 1 || *out == "" {
		return usagef("unpack needs -o dir and one archive file")
	}
	fileIDs := *ids
	if len(fileIDs) == 0 {
		if *count <= 0 {
			return usagef("unpack needs --count or --ids")
		}
		fileIDs = make([]int, *count)
		for i := range fileIDs {
			fileIDs[i] = i
		}
	}
	layout, err := e.layout(*layoutName)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	subs, err := layout.Unpack(data, fileIDs)
	if err != nil {
		return err
	}
	names := make([]string, len(subs))
	members := make([][]byte, len(subs))
	for i, sub := range subs {
		names[i] = strconv.Itoa(sub.FileID) + ".bin"
		members[i] = sub.Buffer
	}
	return writeMembers(*out, names, members)
}

// rscache forge --crc c --offset n [--member i] file...
func runForge(e *env, args []string) error {
	flags := newFlags("forge")
	out := flags.StringP("output", "o", "", "output file (default stdout)")
	wanted := flags.Uint32("crc", 0, "wanted crc-32, decimal or 0x hex")
	offset := flags.Int("offset", -1, "byte offset of the 4-byte patch")
	insert := flags.Bool("insert", false, "insert the patch instead of overwriting 4 bytes")
	member := flags.Int("member", -1, "treat the files as archive members and patch this one")
	layoutName := flags.String("layout", "", "archive layout with --member (default from config)")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if !flags.Changed("crc") || *offset < 0 {
		return usagef("forge needs --crc and --offset")
	}
	if flags.NArg() == 0 {
		return usagef("forge needs a file")
	}
	if *member < 0 && flags.NArg() != 1 {
		return usagef("forge without --member takes one file")
	}
	if *member >= 0 && *insert {
		return usagef("--insert cannot be used with --member")
	}

	files, err := readFiles(flags.Args())
	if err != nil {
		return err
	}

	if *member < 0 {
		forged, err := rscache.Forge(files[0], *wanted, *offset, *insert)
		if err != nil {
			return err
		}
		return e.writeOutput(*out, forged)
	}

	layout, err := e.layout(*layoutName)
	if err != nil {
		return err
	}
	archive := rscache.NewArchive(files)
	if err := archive.ForgeCRC(layout, *wanted, *member, *offset); err != nil {
		return err
	}
	packed := archive.Pack(layout)
	e.log.Info("forged archive", "crc", fmt.Sprintf("%08x", rscache.CRC32(packed)), "members", archive.Len())
	return e.writeOutput(*out, packed)
}

// rscache import [--backend b] <dir>
func runImport(e *env, args []string) error {
	flags := newFlags("import")
	backend := flags.String("backend", "dir", "backend of the store being imported: dir or pebble")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return usagef("import needs the directory of the store to copy")
	}

	from := *e.cfg
	from.Cache.Backend = *backend
	if err := from.Validate(); err != nil {
		return usagef("import: %v", err)
	}
	src, err := from.OpenStore(flags.Arg(0), true)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := e.cfg.OpenStore("", false)
	if err != nil {
		return err
	}
	defer dst.Close()

	n, err := rscache.CopyStore(context.Background(), dst, src)
	if err != nil {
		return fmt.Errorf("import after %d containers: %w", n, err)
	}
	e.log.Info("imported store", "from", flags.Arg(0), "containers", n)
	return nil
}

func (e *env) layout(name string) (rscache.Layout, error) {
	if name == "" {
		name = e.cfg.Cache.Layout
	}
	layout, err := rscache.ParseLayout(name)
	if err != nil {
		return 0, usagef("%v", err)
	}
	return layout, nil
}

func (e *env) writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := e.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func readFiles(paths []string) ([][]byte, error) {
	files := make([][]byte, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read member: %w", err)
		}
		files[i] = data
	}
	return files, nil
}

func writeMembers(dir string, names []string, members [][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for i, data := range members {
		if err := os.WriteFile(filepath.Join(dir, names[i]), data, 0o644); err != nil {
			return fmt.Errorf("write member: %w", err)
		}
	}
	return nil
}
