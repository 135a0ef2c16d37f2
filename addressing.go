// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package rscache

import "math"

// Well known majors
const (
	MajorConfig       = 2
	MajorMapsquares   = 5
	MajorObjects      = 16
	MajorEnums        = 17
	MajorNPCs         = 18
	MajorItems        = 19
	MajorSequences    = 20
	MajorSpotanims    = 21
	MajorStructs      = 22
	MajorMaterials    = 26
	MajorModels       = 47
	MajorTexturesDDS  = 52
	MajorTexturesPNG  = 53
	MajorTexturesBMP  = 54
	MajorAchievements = 57
)

// singleArchive is the capacity of majors that keep every file in minor 0
const singleArchive = math.MaxInt32

// DefaultCapacities lists the number of logical files per archive for majors
// that group several files into one archive. Majors not listed hold one
// file per archive.
var DefaultCapacities = map[int]int{
	MajorObjects:      256,
	MajorEnums:        256,
	MajorNPCs:         128,
	MajorItems:        256,
	MajorSequences:    128,
	MajorSpotanims:    256,
	MajorStructs:      32,
	MajorMaterials:    singleArchive,
	MajorAchievements: 128,
}

// FilePosition is the physical location of a logical file.
type FilePosition struct {
	Major int
	Minor int
	SubID int
}

// Addressing maps logical file ids to (major, minor, sub id) positions.
// The zero value uses DefaultCapacities.
type Addressing struct {
	capacities map[int]int
}

// NewAddressing returns an addressing scheme using DefaultCapacities with
// the given overrides applied. A capacity below 1 removes the major from the
// table so it falls back to one file per archive.
func NewAddressing(overrides map[int]int) *Addressing {
	caps := make(map[int]int, len(DefaultCapacities)+len(overrides))
	for major, c := range DefaultCapacities {
		caps[major] = c
	}
	for major, c := range overrides {
		if c < 1 {
			delete(caps, major)
			continue
		}
		caps[major] = c
	}
	return &Addressing{capacities: caps}
}

// defaultAddressing backs the package level helpers
var defaultAddressing = NewAddressing(nil)

// Capacity returns the number of logical files per archive of major.
func (a *Addressing) Capacity(major int) int {
	caps := DefaultCapacities
	if a != nil && a.capacities != nil {
		caps = a.capacities
	}
	if c, ok := caps[major]; ok {
		return c
	}
	return 1
}

// FileIDToArchiveMinor locates the archive holding fileID.
func (a *Addressing) FileIDToArchiveMinor(major, fileID int) FilePosition {
	c := a.Capacity(major)
	return FilePosition{Major: major, Minor: fileID / c, SubID: fileID % c}
}

// ArchiveToFileID returns the logical file id of sub file subID in minor.
func (a *Addressing) ArchiveToFileID(major, minor, subID int) int {
	return minor*a.Capacity(major) + subID
}

// FileIDToArchiveMinor locates fileID using DefaultCapacities.
func FileIDToArchiveMinor(major, fileID int) FilePosition {
	return defaultAddressing.FileIDToArchiveMinor(major, fileID)
}

// ArchiveToFileID returns the logical file id using DefaultCapacities.
func ArchiveToFileID(major, minor, subID int) int {
	return defaultAddressing.ArchiveToFileID(major, minor, subID)
}
