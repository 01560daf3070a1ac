// Package backend defines Glint's abstraction over a host filesystem's
// volume, file, and watch operations (spec §4.1). It is the only seam
// between the rest of the core and the underlying OS — the NTFS, traversal,
// and mock backends are interchangeable implementations registered by name,
// modeled on rclone's fs.Register/fs.RegInfo plugin registry
// (backend/local/local.go's `fs.Register(fsi)` pattern).
package backend

import (
	"context"
	"time"
)

// VolumeInfo identifies a mounted volume the backend can enumerate.
// Immutable for the lifetime of a given mount (spec §3).
type VolumeInfo struct {
	// Letter is the drive letter or equivalent identifier ("C:").
	Letter string
	Label  string
	Size   uint64
	Serial uint64
	// ClusterSize is the allocation unit size in bytes.
	ClusterSize uint32
}

// RecordFlags mirrors FileRecord.flags from spec §3.
type RecordFlags uint8

const (
	FlagIsDirectory RecordFlags = 1 << iota
	FlagIsHidden
	FlagIsSystem
	FlagIsReparsePoint
	FlagIsDeletedTombstone
)

// RawRecord is a backend-level record before path reconstruction (spec §4.1).
// A single MFT entry can carry more than one $FILE_NAME attribute (NTFS
// hardlinks); such an entry is emitted as one RawRecord per Win32 name,
// sharing ID but distinguished by NameIndex (spec §4.2, §9 Open Question (b)).
type RawRecord struct {
	ID        uint64
	ParentID  uint64
	Name      string
	NameIndex int
	Flags     RecordFlags
	Size      uint64
	// MTime is a Windows FILETIME: 100ns ticks since 1601-01-01 UTC.
	MTime uint64
}

// ChangeReason is the USN journal reason bitmask (spec §4.4).
type ChangeReason uint32

const (
	ReasonCreate ChangeReason = 1 << iota
	ReasonRenameOldName
	ReasonRenameNewName
	ReasonDataChange
	ReasonClose
	ReasonDelete
)

func (r ChangeReason) Has(flag ChangeReason) bool { return r&flag != 0 }

// RawChangeEvent is one entry read from the change journal (spec §4.4).
type RawChangeEvent struct {
	USN       uint64
	FileID    uint64
	ParentID  uint64
	Name      string
	Reason    ChangeReason
	Timestamp time.Time
}

// ProgressSink receives {phase, volume, processed, total} tuples at >= 10Hz
// during a full scan (spec §6.1).
type ProgressSink func(phase string, volume string, processed, total uint64)

// RecordStream is the lazy, finite, non-restartable sequence full_scan
// produces. Next returns (record, true, nil) for each live record, then
// (zero, false, nil) at end of stream, or (zero, false, err) on failure.
// A read error on a run of clusters fails the whole scan with Io (spec
// §4.2's "Failure semantics"); per-record corruption is instead reported
// through Warnings and the scan continues.
type RecordStream interface {
	Next(ctx context.Context) (RawRecord, bool, error)
	// Warnings returns the corrupt-record count observed so far (spec
	// §4.2: "logged and skipped; the scan continues").
	Warnings() uint64
	Close() error
}

// WatchHandle streams change events from a previously opened watch.
type WatchHandle interface {
	Events() <-chan RawChangeEvent
	Errors() <-chan error
	Close() error
}

// Backend is the capability set spec §9 calls "{list_volumes, full_scan,
// open_watch, resolve_parent}", realized as an interface rather than the
// spec's {Ntfs, Traversal, Mock} closed variant set so new backends can be
// added without touching callers.
type Backend interface {
	// Name identifies the backend for registry lookup and logging.
	Name() string

	ListVolumes(ctx context.Context) ([]VolumeInfo, error)

	// FullScan produces every live record on volume. The returned stream
	// is lazy and non-restartable.
	FullScan(ctx context.Context, volume VolumeInfo, progress ProgressSink) (RecordStream, error)

	// OpenWatch begins streaming change events from sinceUSN; sinceUSN==0
	// means "current tail".
	OpenWatch(ctx context.Context, volume VolumeInfo, sinceUSN uint64) (WatchHandle, error)

	// ResolveParent is an on-demand lookup used by the path resolver when
	// it encounters a forward reference it hasn't seen yet.
	ResolveParent(ctx context.Context, volume VolumeInfo, id uint64) (RawRecord, bool, error)
}
