package index

import (
	"sync"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/internal/exthash"
)

// shard is an append-mostly bucket of FileRecords sharing a hash of id
// (spec §3). Columns are stored as parallel slices with a shared name
// arena, matching spec §4.6's "packed column-ish layout" for cache-friendly
// linear scans.
type shard struct {
	mu sync.RWMutex

	ids       []uint64
	parentIDs []uint64
	nameIdx   []int
	volumes   []string
	flags     []backend.RecordFlags
	sizes     []uint64
	mtimes    []uint64
	extHashes []uint64

	nameOff []uint32
	nameLen []uint32
	names   []byte // arena; names[nameOff[i] : nameOff[i]+nameLen[i]]

	tombstones int
}

func newShard() *shard {
	return &shard{}
}

// append adds r as a new local record, returning its local index. Caller
// must hold the write lock.
func (s *shard) append(r FileRecord) int {
	local := len(s.ids)
	s.ids = append(s.ids, r.ID)
	s.parentIDs = append(s.parentIDs, r.ParentID)
	s.nameIdx = append(s.nameIdx, r.NameIndex)
	s.volumes = append(s.volumes, r.Volume)
	s.flags = append(s.flags, r.Flags)
	s.sizes = append(s.sizes, r.Size)
	s.mtimes = append(s.mtimes, r.MTime)
	ext := r.ExtHash
	if ext == 0 {
		ext = exthash.Of(r.Name)
	}
	s.extHashes = append(s.extHashes, ext)

	s.nameOff = append(s.nameOff, uint32(len(s.names)))
	s.nameLen = append(s.nameLen, uint32(len(r.Name)))
	s.names = append(s.names, r.Name...)
	return local
}

func (s *shard) name(local int) string {
	off, ln := s.nameOff[local], s.nameLen[local]
	return string(s.names[off : off+ln])
}

func (s *shard) record(local int) FileRecord {
	return FileRecord{
		Volume:    s.volumes[local],
		ID:        s.ids[local],
		ParentID:  s.parentIDs[local],
		NameIndex: s.nameIdx[local],
		Name:      s.name(local),
		Flags:     s.flags[local],
		Size:      s.sizes[local],
		MTime:     s.mtimes[local],
		ExtHash:   s.extHashes[local],
	}
}

func (s *shard) isTombstone(local int) bool {
	return s.flags[local]&backend.FlagIsDeletedTombstone != 0
}

// len returns the number of (including tombstoned) records in the shard.
// Caller must hold at least a read lock.
func (s *shard) len() int { return len(s.ids) }

// tombstoneFraction is used to decide when to compact (spec §4.6: "removed
// when the fraction of tombstoned records in a shard exceeds 20%").
func (s *shard) tombstoneFraction() float64 {
	if len(s.ids) == 0 {
		return 0
	}
	return float64(s.tombstones) / float64(len(s.ids))
}

// compact rewrites the shard into a new arena, dropping tombstones. Caller
// must hold the write lock.
func (s *shard) compact() {
	fresh := newShard()
	for i := range s.ids {
		if s.isTombstone(i) {
			continue
		}
		fresh.append(s.record(i))
	}
	*s = *fresh
}
