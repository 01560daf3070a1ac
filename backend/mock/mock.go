// Package mock provides an in-memory backend.Backend for tests, the way
// rclone's fstest/mockfs and memory backends stand in for a real remote.
package mock

import (
	"context"
	"sync"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/internal/glinterr"
)

func init() {
	backend.Register("mock", func() (backend.Backend, error) {
		return New(), nil
	})
}

// Backend is a fully in-memory backend whose contents are set directly by
// tests via AddVolume/AddRecord/PushEvent rather than read from any OS.
type Backend struct {
	mu      sync.Mutex
	volumes []backend.VolumeInfo
	records map[string][]backend.RawRecord // keyed by volume letter
	watches map[string][]*watch
}

// New returns an empty mock backend.
func New() *Backend {
	return &Backend{
		records: make(map[string][]backend.RawRecord),
		watches: make(map[string][]*watch),
	}
}

func (b *Backend) Name() string { return "mock" }

// AddVolume registers a synthetic volume.
func (b *Backend) AddVolume(v backend.VolumeInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volumes = append(b.volumes, v)
}

// AddRecord appends a record to volume's full-scan stream.
func (b *Backend) AddRecord(volumeLetter string, r backend.RawRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[volumeLetter] = append(b.records[volumeLetter], r)
}

// PushEvent delivers ev to every open watch on volumeLetter.
func (b *Backend) PushEvent(volumeLetter string, ev backend.RawChangeEvent) {
	b.mu.Lock()
	watches := append([]*watch(nil), b.watches[volumeLetter]...)
	b.mu.Unlock()
	for _, w := range watches {
		w.events <- ev
	}
}

// PushJournalLost delivers a JournalLost error to every open watch.
func (b *Backend) PushJournalLost(volumeLetter string) {
	b.mu.Lock()
	watches := append([]*watch(nil), b.watches[volumeLetter]...)
	b.mu.Unlock()
	for _, w := range watches {
		w.errs <- glinterr.New(glinterr.JournalLost, "mock journal lost")
	}
}

func (b *Backend) ListVolumes(ctx context.Context) ([]backend.VolumeInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.VolumeInfo(nil), b.volumes...), nil
}

func (b *Backend) FullScan(ctx context.Context, vol backend.VolumeInfo, progress backend.ProgressSink) (backend.RecordStream, error) {
	b.mu.Lock()
	records := append([]backend.RawRecord(nil), b.records[vol.Letter]...)
	b.mu.Unlock()
	return &stream{records: records, progress: progress, volume: vol.Letter}, nil
}

type stream struct {
	records  []backend.RawRecord
	idx      int
	warnings uint64
	progress backend.ProgressSink
	volume   string
}

func (s *stream) Next(ctx context.Context) (backend.RawRecord, bool, error) {
	select {
	case <-ctx.Done():
		return backend.RawRecord{}, false, glinterr.New(glinterr.Cancelled, "scan cancelled")
	default:
	}
	if s.idx >= len(s.records) {
		if s.progress != nil {
			s.progress("scan", s.volume, uint64(len(s.records)), uint64(len(s.records)))
		}
		return backend.RawRecord{}, false, nil
	}
	r := s.records[s.idx]
	s.idx++
	if s.progress != nil {
		s.progress("scan", s.volume, uint64(s.idx), uint64(len(s.records)))
	}
	return r, true, nil
}

func (s *stream) Warnings() uint64 { return s.warnings }
func (s *stream) Close() error     { return nil }

type watch struct {
	events chan backend.RawChangeEvent
	errs   chan error
	closed chan struct{}
}

func (w *watch) Events() <-chan backend.RawChangeEvent { return w.events }
func (w *watch) Errors() <-chan error                  { return w.errs }
func (w *watch) Close() error {
	select {
	case <-w.closed:
	default:
		close(w.closed)
	}
	return nil
}

func (b *Backend) OpenWatch(ctx context.Context, vol backend.VolumeInfo, sinceUSN uint64) (backend.WatchHandle, error) {
	w := &watch{
		events: make(chan backend.RawChangeEvent, 4096),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	b.watches[vol.Letter] = append(b.watches[vol.Letter], w)
	b.mu.Unlock()
	return w, nil
}

func (b *Backend) ResolveParent(ctx context.Context, vol backend.VolumeInfo, id uint64) (backend.RawRecord, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.records[vol.Letter] {
		if r.ID == id {
			return r, true, nil
		}
	}
	return backend.RawRecord{}, false, nil
}
