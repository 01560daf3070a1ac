// Package glint is the root Core API facade consumed by the reference CLI
// and any future TUI/GUI shell (spec §6.1), the way rclone's top-level
// `fs` package is the single surface its `cmd/` tree and backends both
// build on.
package glint

import (
	"context"
	"log/slog"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/index"
	"github.com/padiauj/glint/internal/config"
	"github.com/padiauj/glint/internal/glinterr"
	"github.com/padiauj/glint/orchestrator"
	"github.com/padiauj/glint/query"
)

// ResultRow is the shape returned from Query (spec §6.1).
type ResultRow = index.ResultRow

// Progress is a {phase, volume, processed, total} tuple (spec §6.1).
type Progress = orchestrator.Progress

// Core is the facade spec §6.1 describes: build_index, load_index,
// save_index, start_watch, stop_watch, query, plus the observable
// properties exposed through Handle. Spec §9's design note ("the handle,
// not the index, is shared") means callers hold a *Core and a *Handle, never
// the index directly.
type Core struct {
	cfg    *config.Config
	back   backend.Backend
	idx    *index.Index
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// Options configures New.
type Options struct {
	BackendName   string // registered backend.Backend name, e.g. "ntfs" or "traversal"
	Config        *config.Config
	Logger        *slog.Logger
	NumShards     int
	PathCacheSize int
}

// New constructs a Core bound to the named backend. An empty BackendName
// defaults to "ntfs".
func New(opts Options) (*Core, error) {
	if opts.BackendName == "" {
		opts.BackendName = "ntfs"
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}

	back, err := backend.Find(opts.BackendName)
	if err != nil {
		return nil, err
	}

	idx := index.New(opts.NumShards, opts.PathCacheSize)
	orch := orchestrator.New(back, idx, opts.Logger)

	return &Core{
		cfg:    opts.Config,
		back:   back,
		idx:    idx,
		orch:   orch,
		logger: opts.Logger,
	}, nil
}

// Handle returns the observable-properties object (spec §6.1).
func (c *Core) Handle() *orchestrator.Handle { return c.orch.Handle() }

// BuildIndex runs a full scan of volumes end to end: Scanning then
// Persisting to path, landing in Watching (spec §6.1 "build_index").
func (c *Core) BuildIndex(ctx context.Context, volumes []backend.VolumeInfo, snapshotPath string) error {
	if err := c.orch.FullScan(ctx, volumes); err != nil {
		return err
	}
	return c.orch.Persist(snapshotPath, c.cfg.CompressIndex)
}

// LoadIndex loads a snapshot from path, landing in Watching on success or
// Scanning on failure (spec §6.1 "load_index").
func (c *Core) LoadIndex(path string) error {
	return c.orch.LoadSnapshot(path)
}

// SaveIndex persists the current index to path (spec §6.1 "save_index").
func (c *Core) SaveIndex(path string) error {
	return c.orch.SaveSnapshot(path, c.cfg.CompressIndex)
}

// StartWatch begins live USN/fsnotify tailing for volumes (spec §6.1
// "start_watch").
func (c *Core) StartWatch(ctx context.Context, volumes []backend.VolumeInfo) error {
	return c.orch.StartWatch(ctx, volumes)
}

// StopWatch stops all active watches (spec §6.1 "stop_watch").
func (c *Core) StopWatch() error {
	return c.orch.StopWatch()
}

// Shutdown stops watching and persists a final snapshot (spec §4.8
// Stopping state).
func (c *Core) Shutdown(snapshotPath string) error {
	return c.orch.Shutdown(snapshotPath, c.cfg.CompressIndex)
}

// ListVolumes enumerates candidate volumes from the bound backend, applying
// the configured include/exclude allow lists (spec §6.4 "volumes.include /
// volumes.exclude").
func (c *Core) ListVolumes(ctx context.Context) ([]backend.VolumeInfo, error) {
	all, err := c.back.ListVolumes(ctx)
	if err != nil {
		return nil, err
	}
	return filterVolumes(all, c.cfg.VolumesInclude, c.cfg.VolumesExclude), nil
}

func filterVolumes(all []backend.VolumeInfo, include, exclude []string) []backend.VolumeInfo {
	if len(include) == 0 && len(exclude) == 0 {
		return all
	}
	excluded := make(map[string]bool, len(exclude))
	for _, v := range exclude {
		excluded[v] = true
	}
	included := make(map[string]bool, len(include))
	for _, v := range include {
		included[v] = true
	}

	var out []backend.VolumeInfo
	for _, v := range all {
		if excluded[v.Letter] {
			continue
		}
		if len(included) > 0 && !included[v.Letter] {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Query compiles text and runs it against the index, capped at limit
// (spec §6.1 "query(text, filters, limit, cancel)"). An empty query returns
// no rows. limit <= 0 returns results sorted ascending by path, capped at
// the configured MaxResults; limit > 0 returns up to limit results in
// unspecified order.
func (c *Core) Query(ctx context.Context, text string, limit int) ([]ResultRow, error) {
	ast, err := query.Parse(text)
	if err != nil {
		return nil, err
	}
	if len(ast.Terms) == 0 {
		return nil, nil
	}
	matcher, err := query.Compile(ast)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		return c.idx.Search(ctx, matcher, limit, nil)
	}
	rows, err := c.idx.Search(ctx, matcher, 0, nil)
	if err != nil {
		return nil, err
	}
	if max := c.cfg.MaxResults; max > 0 && len(rows) > max {
		rows = rows[:max]
	}
	return rows, nil
}

// IsSupported reports whether err does not carry the Unsupported kind (a
// nil err counts as supported). Nothing in this module acts on it:
// cmd/glint picks its backend by GOOS and never falls back to traversal.
func IsSupported(err error) bool {
	return !glinterr.Is(err, glinterr.Unsupported)
}
