package index

import (
	"hash/fnv"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"

	"github.com/padiauj/glint/internal/exthash"
)

// DefaultShardCount matches spec §4.6: "S = max(8, cpu_count)".
func DefaultShardCount() int {
	n := runtime.NumCPU()
	if n < 8 {
		return 8
	}
	return n
}

type parentKey struct {
	Volume string
	ID     uint64
}

// MutationKind is the kind of a single coalesced change applied to the
// index by the indexer orchestrator (spec §4.6 "Mutation", fed from the
// journal package's coalesced output).
type MutationKind int

const (
	MutCreate MutationKind = iota
	MutRename
	MutDataChange
	MutDelete
)

// Mutation is one entry in a batch applied through Index.Apply.
type Mutation struct {
	Kind     MutationKind
	Volume   string
	ID       uint64
	ParentID uint64
	Name     string
	Size     uint64
	MTime    uint64
	// HasStats is true when Size/MTime were actually re-resolved from the
	// backend for a MutDataChange mutation. backend.RawChangeEvent carries
	// neither (spec §4.4's USN_RECORD_V2 has no size/mtime fields), so
	// without this a failed re-resolution would otherwise look identical to
	// a legitimate "the file shrank to 0 bytes at time zero" mutation and
	// applyOne would zero out the record's real stats.
	HasStats bool
}

// Index is the set of shards plus auxiliary lookup tables described in
// spec §3: "id → (shard_idx, local_idx)" and "parent_id → list of child
// local refs". It is versioned by a monotone generation counter.
type Index struct {
	mu sync.Mutex // guards idIndex, children, roots — not shard contents

	shards []*shard

	idIndex  map[RecordID]locRef
	children map[parentKey][]RecordID

	rootIDs   map[string]uint64 // volume -> root record id
	rootPaths map[string]string // volume -> mount path, e.g. `C:\`

	generation atomic.Uint64

	pathCache *lru.Cache // RecordID -> resolved path string
}

type locRef struct {
	shard int
	local int
}

// New builds an empty index with numShards shards (DefaultShardCount() if
// numShards <= 0) and a path cache bounded to pathCacheSize entries.
func New(numShards, pathCacheSize int) *Index {
	if numShards <= 0 {
		numShards = DefaultShardCount()
	}
	if pathCacheSize <= 0 {
		pathCacheSize = 1 << 20
	}
	cache, _ := lru.New(pathCacheSize)

	idx := &Index{
		shards:    make([]*shard, numShards),
		idIndex:   make(map[RecordID]locRef),
		children:  make(map[parentKey][]RecordID),
		rootIDs:   make(map[string]uint64),
		rootPaths: make(map[string]string),
		pathCache: cache,
	}
	for i := range idx.shards {
		idx.shards[i] = newShard()
	}
	return idx
}

// Generation returns the current version counter, incremented once per
// applied batch (spec §3).
func (idx *Index) Generation() uint64 { return idx.generation.Load() }

// NumShards returns the shard count, used by search to size its worker pool.
func (idx *Index) NumShards() int { return len(idx.shards) }

// SetRoot records volume's root record id and mount path (e.g. `C:\`),
// needed to terminate path-resolution walks (spec §4.3 "Root resolution").
func (idx *Index) SetRoot(volume string, rootID uint64, mountPath string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rootIDs[volume] = rootID
	idx.rootPaths[volume] = mountPath
}

func (idx *Index) shardFor(volume string, id uint64) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(volume))
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(id >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	return int(h.Sum64() % uint64(len(idx.shards)))
}

// Load bulk-inserts records produced by a full scan + path resolution pass
// (spec §4.8 "Scanning" state). It is not used for USN-driven mutation;
// see Apply.
func (idx *Index) Load(records []FileRecord) {
	if len(records) == 0 {
		return
	}
	byShard := make(map[int][]FileRecord)
	for _, r := range records {
		s := idx.shardFor(r.Volume, r.ID)
		byShard[s] = append(byShard[s], r)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for s, recs := range byShard {
		shard := idx.shards[s]
		shard.mu.Lock()
		for _, r := range recs {
			local := shard.append(r)
			rid := r.RecordID()
			idx.idIndex[rid] = locRef{shard: s, local: local}
			pk := parentKey{Volume: r.Volume, ID: r.ParentID}
			idx.children[pk] = append(idx.children[pk], rid)
		}
		shard.mu.Unlock()
	}
	idx.generation.Add(1)
}

// Apply applies a coalesced batch of USN-driven mutations, acquiring
// per-shard exclusive locks in shard-index order to apply the batch (spec
// §4.6 "Mutation": "acquires per-shard exclusive locks in id-order").
// idx.mu is held for the whole batch, so ResolvePath (and with it every
// Search) waits until the batch has been applied.
func (idx *Index) Apply(muts []Mutation) {
	if len(muts) == 0 {
		return
	}

	byShard := make(map[int][]Mutation)
	structural := false
	for _, m := range muts {
		s := idx.shardFor(m.Volume, m.ID)
		byShard[s] = append(byShard[s], m)
		if m.Kind != MutDataChange {
			structural = true
		}
	}

	shards := make([]int, 0, len(byShard))
	for s := range byShard {
		shards = append(shards, s)
	}
	sortInts(shards)

	idx.mu.Lock()
	for _, s := range shards {
		shard := idx.shards[s]
		shard.mu.Lock()
		for _, m := range byShard[s] {
			idx.applyOne(shard, s, m)
		}
		if shard.tombstoneFraction() > 0.20 {
			idx.compactLocked(s, shard)
		}
		shard.mu.Unlock()
	}
	idx.mu.Unlock()

	if structural {
		idx.pathCache.Purge()
	}
	idx.generation.Add(1)
}

// applyOne mutates a single shard. Caller holds idx.mu and shard.mu.
func (idx *Index) applyOne(shard *shard, shardIdx int, m Mutation) {
	rid := RecordID{Volume: m.Volume, ID: m.ID, NameIndex: 0}
	ref, exists := idx.idIndex[rid]

	switch m.Kind {
	case MutCreate:
		if exists {
			return
		}
		local := shard.append(FileRecord{
			Volume: m.Volume, ID: m.ID, ParentID: m.ParentID,
			Name: m.Name, Size: m.Size, MTime: m.MTime,
		})
		idx.idIndex[rid] = locRef{shard: shardIdx, local: local}
		pk := parentKey{Volume: m.Volume, ID: m.ParentID}
		idx.children[pk] = append(idx.children[pk], rid)

	case MutRename:
		if !exists {
			return
		}
		oldParent := shard.parentIDs[ref.local]
		shard.parentIDs[ref.local] = m.ParentID
		shard.nameOff[ref.local] = uint32(len(shard.names))
		shard.nameLen[ref.local] = uint32(len(m.Name))
		shard.names = append(shard.names, m.Name...)
		shard.extHashes[ref.local] = exthash.Of(m.Name)
		if oldParent != m.ParentID {
			oldKey := parentKey{Volume: m.Volume, ID: oldParent}
			idx.removeChild(oldKey, rid)
			newKey := parentKey{Volume: m.Volume, ID: m.ParentID}
			idx.children[newKey] = append(idx.children[newKey], rid)
		}

	case MutDataChange:
		if !exists {
			return
		}
		if !m.HasStats {
			// the orchestrator couldn't re-resolve real Size/MTime for this
			// event (backend.RawChangeEvent carries neither); leave the
			// record's existing stats alone instead of zeroing them out.
			return
		}
		shard.sizes[ref.local] = m.Size
		shard.mtimes[ref.local] = m.MTime

	case MutDelete:
		if !exists {
			return
		}
		if !shard.isTombstone(ref.local) {
			shard.flags[ref.local] |= tombstoneFlag
			shard.tombstones++
		}
	}
}

func (idx *Index) removeChild(pk parentKey, rid RecordID) {
	list := idx.children[pk]
	for i, c := range list {
		if c == rid {
			idx.children[pk] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// compactLocked rewrites shardIdx's arena, dropping tombstones and fixing
// up idIndex/children. Caller holds idx.mu and shard.mu.
func (idx *Index) compactLocked(shardIdx int, shard *shard) {
	old := make([]FileRecord, shard.len())
	for i := range old {
		old[i] = shard.record(i)
	}
	shard.compact()

	for i := range old {
		if old[i].IsTombstone() {
			delete(idx.idIndex, old[i].RecordID())
			idx.removeChild(parentKey{Volume: old[i].Volume, ID: old[i].ParentID}, old[i].RecordID())
		}
	}
	for local, r := range func() []FileRecord {
		out := make([]FileRecord, shard.len())
		for i := range out {
			out[i] = shard.record(i)
		}
		return out
	}() {
		idx.idIndex[r.RecordID()] = locRef{shard: shardIdx, local: local}
	}
}

const tombstoneFlag = 1 << 4 // same value as backend.FlagIsDeletedTombstone

// ResolvePath reconstructs the full path for a record id by walking parent
// references, memoizing in the bounded path cache (spec §4.6: "the full
// path is recomputed from parent_id on demand via a bounded path cache").
// Cycles or chains deeper than pathresolve.MaxDepth resolve to the
// synthetic <orphan> prefix, mirroring the ingest-time resolver's rule.
func (idx *Index) ResolvePath(volume string, id uint64) (string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.resolvePathLocked(volume, id, 0)
}

const maxResolveDepth = 4096
const orphanPrefix = "<orphan>"

func (idx *Index) resolvePathLocked(volume string, id uint64, depth int) (string, bool) {
	rid := RecordID{Volume: volume, ID: id, NameIndex: 0}
	if cached, ok := idx.pathCache.Get(rid); ok {
		return cached.(string), true
	}
	if rootID, ok := idx.rootIDs[volume]; ok && rootID == id {
		p := idx.rootPaths[volume]
		idx.pathCache.Add(rid, p)
		return p, true
	}

	ref, ok := idx.idIndex[rid]
	if !ok {
		return "", false
	}
	shard := idx.shards[ref.shard]
	shard.mu.RLock()
	name := shard.name(ref.local)
	parentID := shard.parentIDs[ref.local]
	shard.mu.RUnlock()

	if depth >= maxResolveDepth || parentID == id {
		p := orphanPrefix + `\` + name
		idx.pathCache.Add(rid, p)
		return p, true
	}

	parentPath, ok := idx.resolvePathLocked(volume, parentID, depth+1)
	if !ok {
		parentPath, ok = orphanPrefix, true
	}
	p := strings.TrimRight(parentPath, `\`) + `\` + name
	idx.pathCache.Add(rid, p)
	return p, true
}

// RecordsForVolume returns every live (non-tombstoned) record belonging to
// volume, in shard-then-local order. Used by the snapshot writer (spec
// §6.3 groups records per volume on disk).
func (idx *Index) RecordsForVolume(volume string) []FileRecord {
	var out []FileRecord
	for _, s := range idx.shards {
		s.mu.RLock()
		for i := 0; i < s.len(); i++ {
			if s.isTombstone(i) {
				continue
			}
			r := s.record(i)
			if r.Volume == volume {
				out = append(out, r)
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// Volumes returns every volume letter currently tracked via SetRoot, used
// by the snapshot writer to enumerate sections (spec §6.3).
func (idx *Index) Volumes() []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]string, 0, len(idx.rootPaths))
	for v := range idx.rootPaths {
		out = append(out, v)
	}
	return out
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
