package index

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/padiauj/glint/internal/glinterr"
	"github.com/padiauj/glint/query"
)

// cancelCheckInterval is how often a shard worker checks its context
// between records (spec §5: "workers check it between records in coarse
// batches (every 4096 records)").
const cancelCheckInterval = 4096

// volumeOrder ranks volumes. Search accepts one but does not consult it
// when sorting.
type volumeOrder func(volume string) int

// Search runs m against every shard concurrently using one goroutine per
// shard, merges the per-shard capped result vectors, and truncates to
// limit. If limit > 0 the merge returns the first limit results in
// unspecified scan order without sorting (spec §4.6 "Ordering": "explicitly
// unstable"); if limit <= 0 (no --limit given) results are sorted ascending
// by full path alone, which for drive-letter paths also groups them by
// volume letter; order plays no part.
func (idx *Index) Search(ctx context.Context, m *query.Matcher, limit int, order volumeOrder) ([]ResultRow, error) {
	if order == nil {
		order = defaultVolumeOrder
	}
	maxResults := limit
	if maxResults <= 0 {
		maxResults = 1 << 20 // effectively unbounded per-shard cap; spec's "max_results" default
	}

	g, gctx := errgroup.WithContext(ctx)
	perShard := make([][]ResultRow, len(idx.shards))

	for i, s := range idx.shards {
		i, s := i, s
		g.Go(func() error {
			rows, err := idx.scanShard(gctx, s, m, maxResults)
			if err != nil {
				return err
			}
			perShard[i] = rows
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []ResultRow
	for _, rows := range perShard {
		merged = append(merged, rows...)
	}

	if limit > 0 {
		if len(merged) > limit {
			merged = merged[:limit]
		}
		return merged, nil
	}

	sort.Slice(merged, func(a, b int) bool {
		return merged[a].FullPath < merged[b].FullPath
	})
	return merged, nil
}

// scanShard snapshots the shard's records under a single read lock, then
// matches against the snapshot. Path resolution is done after the lock is
// released: Index.ResolvePath may re-enter this same shard's lock while
// walking parent references, and Go's sync.RWMutex does not guarantee a
// goroutine can recursively RLock a mutex a pending writer is waiting on.
func (idx *Index) scanShard(ctx context.Context, s *shard, m *query.Matcher, maxResults int) ([]ResultRow, error) {
	s.mu.RLock()
	records := make([]FileRecord, 0, s.len())
	for i := 0; i < s.len(); i++ {
		if s.isTombstone(i) {
			continue
		}
		records = append(records, s.record(i))
	}
	s.mu.RUnlock()

	var out []ResultRow
	for i, rec := range records {
		if i%cancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return nil, glinterr.New(glinterr.Cancelled, "search cancelled")
			default:
			}
		}

		path, _ := idx.ResolvePath(rec.Volume, rec.ID)

		cand := query.Candidate{
			Name:    rec.Name,
			Path:    path,
			IsDir:   rec.IsDir(),
			ExtHash: rec.ExtHash,
		}
		if !m.Matches(cand) {
			continue
		}

		out = append(out, ResultRow{
			Name:     rec.Name,
			FullPath: path,
			Size:     rec.Size,
			MTime:    rec.MTime,
			IsDir:    rec.IsDir(),
		})
		if len(out) >= maxResults {
			break
		}
	}
	return out, nil
}

func defaultVolumeOrder(volume string) int {
	if len(volume) == 0 {
		return 0
	}
	return int(volume[0])
}
