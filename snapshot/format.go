// Package snapshot implements Glint's on-disk index format (spec §6.3): a
// magic-prefixed, versioned, optionally zstd-compressed record dump with a
// trailing CRC32C footer. Loading a snapshot is meant to be faster than a
// full volume rescan.
package snapshot

import "hash/crc32"

// Magic is the 8-byte file signature (spec §6.3: `GLNTIDX\0`).
var Magic = [8]byte{'G', 'L', 'N', 'T', 'I', 'D', 'X', 0}

// FormatVersion is bumped on incompatible layout changes; a mismatch on
// load is a SnapshotIncompatible error, never a silent best-effort parse.
const FormatVersion uint32 = 1

const (
	FlagCompressed uint32 = 1 << 0
)

// castagnoliTable backs CRC32C, the Castagnoli polynomial variant used by
// the footer checksum (spec §6.3). CRC32C has hardware acceleration on
// modern CPUs via SSE4.2/ARM CRC instructions, which Go's crc32 package
// uses automatically when available; no third-party library in the
// examined pack offers a CRC32C implementation, so this is the one
// deliberate standard-library choice in this package (see DESIGN.md).
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Volume is the per-volume section of a snapshot (spec §6.3).
type Volume struct {
	Letter  byte
	Label   string
	Serial  uint64
	LastUSN uint64
	Records []Record
}

// Record is one packed-column row as persisted on disk. It mirrors
// index.FileRecord but lives in this package to keep the wire format
// independent of the in-memory layout.
type Record struct {
	ID        uint64
	ParentID  uint64
	Flags     uint32
	Size      uint64
	MTime     uint64
	ExtHash   uint64
	NameIndex int
	Name      string
}
