// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package rscache reads, writes and re-packs a content-addressed game cache.

A cache is organised in two levels. A major is a category table (items,
NPCs, models, ...) and a minor is one archive inside it. An archive packs one
or more members, each identified by a sub id listed in the major's index
file. The root index, major 255, lists every major.

# Features

  - Two archive layouts: the network layout with a trailing size footer and
    the header layout used by database backed caches
  - Logical file id addressing for majors that group several files into one
    archive
  - CRC-32 forging, to make a modified archive carry a chosen checksum
  - Container compression: gzip and zlib read and write, bzip2 read only
  - A caching decorator that shares in-flight fetches and bounds the number
    of archives it keeps
  - Flat-file, in-memory and pebble backed stores

# Basic Usage

Reading a logical file from a flat-file cache:

	store, err := rscache.OpenDirStore("cache", true)
	if err != nil {
		log.Fatal(err)
	}
	indexParser, err := rscache.DefaultIndexParser()
	if err != nil {
		log.Fatal(err)
	}
	src := rscache.NewCachingSource(rscache.NewDirectSource(store, indexParser, rscache.DirectOptions{}))
	defer src.Close()

	item, err := rscache.GetFileByID(ctx, src, rscache.NewAddressing(nil), rscache.MajorItems, 4151)

Re-packing an archive with a chosen checksum:

	archive := rscache.NewArchive(files)
	if err := archive.ForgeCRC(rscache.LayoutNetwork, 0xDEADBEEF, 1, 10); err != nil {
		log.Fatal(err)
	}
	packed := archive.Pack(rscache.LayoutNetwork)

Index files and most records are opcode encoded; see package opcodes for the
schema driven codec.

# Limitations

  - bzip2 containers can be read but not written
  - Encrypted containers are not supported
  - Nothing is downloaded; stores must already hold the containers
*/
package rscache
