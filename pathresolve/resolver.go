// Package pathresolve reconstructs full paths from a stream of records
// carrying only parent references (spec §4.3), tolerating forward
// references and cycles in a partially-read table.
package pathresolve

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/padiauj/glint/backend"
)

// MaxDepth bounds a parent-chain walk; exceeding it (or revisiting an id)
// marks the record orphaned (spec §4.3, §3 invariant: "≤ 4096 hops").
const MaxDepth = 4096

// OrphanPrefix is the synthetic path prefix orphaned records are indexed
// under so they remain searchable (spec §4.3).
const OrphanPrefix = "<orphan>"

// Resolved pairs a raw record with its fully-qualified path.
type Resolved struct {
	Record backend.RawRecord
	Path   string
	Orphan bool
}

// pendingKey identifies one not-yet-resolved record. Hardlinked files can
// share an ID across several $FILE_NAME instances (spec §4.2, §9 Open
// Question (b)), distinguished only by NameIndex, so ID alone isn't unique
// enough to key pending resolution state.
type pendingKey struct {
	ID        uint64
	NameIndex int
}

// Resolver incrementally resolves RawRecord parent chains into paths. Feed
// and Finalize serialize on an internal mutex, but the order records come
// out in follows the order of Feed calls — spec §5 assigns exactly one
// path-resolver goroutine to keep resolution deterministic.
//
// names and parents are keyed by plain record ID rather than pendingKey:
// they exist purely to let other records' walk() climb the ancestor chain,
// and NTFS disallows directory hardlinks, so a record that produces more
// than one pending entry is necessarily a non-directory file that can never
// itself be an ancestor — the single-entry overwrite these maps see across
// a hardlink's Feed calls is harmless.
type Resolver struct {
	mu sync.Mutex

	names   map[uint64]string
	parents map[uint64]uint64

	// deferred maps a missing parent id to the pending entries waiting on it.
	deferred map[uint64][]pendingKey
	pending  map[pendingKey]backend.RawRecord

	cache *lru.Cache // id -> resolved path string, bounded
}

// New creates a resolver whose volume root is rootID, rooted at mountPath
// (e.g. `C:\`). cacheSize bounds the memoized path-prefix LRU (spec §4.3:
// "memoizing resolved path prefixes in an LRU of bounded size").
func New(rootID uint64, mountPath string, cacheSize int) *Resolver {
	if cacheSize <= 0 {
		cacheSize = 65536
	}
	cache, _ := lru.New(cacheSize)
	r := &Resolver{
		names:    map[uint64]string{rootID: mountPath},
		parents:  map[uint64]uint64{rootID: rootID},
		deferred: make(map[uint64][]pendingKey),
		pending:  make(map[pendingKey]backend.RawRecord),
		cache:    cache,
	}
	cache.Add(rootID, mountPath)
	return r
}

// Feed registers rec and returns every record (rec itself, plus any
// previously-deferred dependents it unblocks) that can now be resolved.
func (r *Resolver) Feed(rec backend.RawRecord) []Resolved {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.names[rec.ID] = rec.Name
	r.parents[rec.ID] = rec.ParentID
	key := pendingKey{ID: rec.ID, NameIndex: rec.NameIndex}
	r.pending[key] = rec

	var out []Resolved
	queue := []pendingKey{key}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]

		resolved, ok := r.tryResolve(k)
		if !ok {
			continue
		}
		out = append(out, resolved)

		unblocked := r.deferred[k.ID]
		delete(r.deferred, k.ID)
		queue = append(queue, unblocked...)
	}
	return out
}

// tryResolve attempts to resolve k. If its parent chain is incomplete it
// defers k (keyed by the first missing ancestor) and returns ok=false.
func (r *Resolver) tryResolve(k pendingKey) (Resolved, bool) {
	rec, isPending := r.pending[k]
	if !isPending {
		return Resolved{}, false
	}

	p, orphan, missing, complete := r.walk(k.ID, false)
	if !complete {
		r.deferred[missing] = append(r.deferred[missing], k)
		return Resolved{}, false
	}

	delete(r.pending, k)
	r.cache.Add(k.ID, p)
	return Resolved{Record: rec, Path: p, Orphan: orphan}, true
}

// Finalize resolves every record still pending once the full-scan stream
// has ended, guaranteeing no non-tombstone record is silently dropped (spec
// §3: every record ends up resolved, root-reachable or orphaned — and spec
// §4.1's purpose for resolve_parent: "on-demand lookup for forward
// references during path resolution"). resolveParent is given one pass to
// fill in any ancestor ids that never showed up in the scanned stream
// (mirroring backend.Backend.ResolveParent's signature minus ctx/volume,
// which the caller closes over); whatever is still unresolved afterward — a
// deleted or corrupt-and-skipped ancestor that will never arrive — is
// orphaned under OrphanPrefix rather than left stuck forever.
func (r *Resolver) Finalize(resolveParent func(id uint64) (backend.RawRecord, bool, error)) ([]Resolved, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if resolveParent != nil && len(r.pending) > 0 {
		if err := r.resolveMissingAncestors(resolveParent); err != nil {
			return nil, err
		}
	}

	var out []Resolved
	for k, rec := range r.pending {
		p, orphan, _, _ := r.walk(k.ID, true)
		delete(r.pending, k)
		r.cache.Add(k.ID, p)
		out = append(out, Resolved{Record: rec, Path: p, Orphan: orphan})
	}
	r.deferred = make(map[uint64][]pendingKey)
	return out, nil
}

// resolveMissingAncestors asks resolveParent for each ancestor id currently
// blocking a pending record, folding anything it finds back into names and
// parents so the next pass can climb one hop further — a chain of several
// missing ancestors is walked one at a time. It stops once a pass makes no
// progress, either because resolveParent can't find an id (genuinely gone)
// or because every id it could find has already been tried.
func (r *Resolver) resolveMissingAncestors(resolveParent func(id uint64) (backend.RawRecord, bool, error)) error {
	tried := make(map[uint64]bool)
	for {
		missingIDs := r.collectMissingAncestors()
		progressed := false
		for _, id := range missingIDs {
			if tried[id] {
				continue
			}
			tried[id] = true

			rec, ok, err := resolveParent(id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			r.names[rec.ID] = rec.Name
			r.parents[rec.ID] = rec.ParentID
			progressed = true
		}
		if !progressed {
			return nil
		}
	}
}

// collectMissingAncestors walks every still-pending record's chain (without
// the Finalize orphan fallback) and returns the distinct ancestor ids
// blocking them.
func (r *Resolver) collectMissingAncestors() []uint64 {
	seen := make(map[uint64]bool)
	var ids []uint64
	for k := range r.pending {
		_, _, missing, complete := r.walk(k.ID, false)
		if complete || seen[missing] {
			continue
		}
		seen[missing] = true
		ids = append(ids, missing)
	}
	return ids
}

// walk resolves id's full path by following parent references toward a
// known root or a cache hit. With finalize=false, complete=false means the
// chain is blocked on "missing" (an ancestor id not yet seen) and the
// caller should defer and retry later; with finalize=true a missing
// ancestor is instead folded into the synthetic <orphan> prefix so the walk
// always completes. orphan=true also covers a cycle or depth overrun either
// way.
func (r *Resolver) walk(id uint64, finalize bool) (resolvedPath string, orphan bool, missing uint64, complete bool) {
	var segments []string // leaf-to-root order, reversed before joining
	visited := make(map[uint64]bool)
	cur := id

	for depth := 0; depth < MaxDepth; depth++ {
		// id's own cache entry is used only for a self-referencing root: a
		// hardlinked file shares its id across names with different paths.
		if depth > 0 || r.parents[cur] == cur {
			if cached, found := r.cache.Get(cur); found {
				s := cached.(string)
				return joinReversed(s, segments), strings.HasPrefix(s, OrphanPrefix), 0, true
			}
		}
		name, haveName := r.names[cur]
		if !haveName {
			if finalize {
				return joinReversed(OrphanPrefix, segments), true, 0, true
			}
			return "", false, cur, false
		}
		if visited[cur] {
			return joinReversed(OrphanPrefix, segments), true, 0, true
		}
		visited[cur] = true

		parent, haveParent := r.parents[cur]
		if !haveParent {
			if finalize {
				return joinReversed(OrphanPrefix, segments), true, 0, true
			}
			return "", false, cur, false
		}
		if parent == cur {
			// cur is a self-referencing root; its name is the mount path.
			return joinReversed(name, segments), false, 0, true
		}
		segments = append(segments, name)
		cur = parent
	}
	return joinReversed(OrphanPrefix, segments), true, 0, true
}

// joinReversed joins prefix with segments (collected leaf-to-root) restored
// to root-to-leaf order, using NTFS's backslash separator — the standard
// library's "path" package assumes "/" and would mangle `C:\` paths.
func joinReversed(prefix string, segments []string) string {
	if len(segments) == 0 {
		return prefix
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(prefix, `\`))
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteByte('\\')
		b.WriteString(segments[i])
	}
	return b.String()
}
