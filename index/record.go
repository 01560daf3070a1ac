// Package index implements Glint's in-memory, shard-partitioned index
// (spec §4.6): compact packed-column storage, parallel shard search, and
// the single-writer/shared-reader locking discipline spec §5 requires.
package index

import "github.com/padiauj/glint/backend"

// RecordID identifies a record globally: spec §3 states "(volume, id) is
// globally unique", so the index keys on the pair rather than id alone.
type RecordID struct {
	Volume string
	ID     uint64
	// NameIndex disambiguates hardlinks that share an id but have distinct
	// Win32 names (spec §4.2 edge policy, §8: "deduplicated by
	// (volume, id, name_index)").
	NameIndex int
}

// FileRecord is the indexed unit (spec §3).
type FileRecord struct {
	Volume    string
	ID        uint64
	ParentID  uint64
	NameIndex int
	Name      string
	Flags     backend.RecordFlags
	Size      uint64
	MTime     uint64
	ExtHash   uint64
}

// RecordID returns the record's globally-unique key.
func (r FileRecord) RecordID() RecordID {
	return RecordID{Volume: r.Volume, ID: r.ID, NameIndex: r.NameIndex}
}

func (r FileRecord) IsDir() bool       { return r.Flags&backend.FlagIsDirectory != 0 }
func (r FileRecord) IsTombstone() bool { return r.Flags&backend.FlagIsDeletedTombstone != 0 }

// ResultRow is the shape returned from a query (spec §6.1).
type ResultRow struct {
	Name     string
	FullPath string
	Size     uint64
	MTime    uint64
	IsDir    bool
}
