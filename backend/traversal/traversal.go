// Package traversal implements a slower, cross-platform Backend built on
// filepath.WalkDir and fsnotify, used when the orchestrator downgrades from
// the NTFS fast path (spec §4.1: "the orchestrator downgrades Unsupported
// to a slower directory-traversal mode if the backend advertises one").
// The watch side forwards fsnotify events one by one; batching happens
// downstream in the journal coalescer.
package traversal

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/unicode/norm"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/internal/glinterr"
)

func init() {
	backend.Register("traversal", func() (backend.Backend, error) {
		return &Backend{}, nil
	})
}

// Backend walks directory trees with os.ReadDir instead of reading $MFT
// directly, trading speed for portability. It assigns synthetic record ids
// since the host filesystem (or WSL/non-NTFS mount) may not expose NTFS's
// real MFT index numbers.
type Backend struct {
	mu      sync.Mutex
	nextID  uint64
	pathIDs map[string]uint64 // path -> assigned id, stable across a watch session
}

func (b *Backend) Name() string { return "traversal" }

// ListVolumes always returns an Unsupported error: the traversal backend has
// no notion of drive enumeration, so callers supply roots themselves
// (VolumeInfo.Letter is reused to carry an arbitrary root path for this
// backend).
func (b *Backend) ListVolumes(ctx context.Context) ([]backend.VolumeInfo, error) {
	return nil, glinterr.New(glinterr.Unsupported, "traversal backend requires explicit volume roots")
}

func (b *Backend) idFor(path string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pathIDs == nil {
		b.pathIDs = make(map[string]uint64)
	}
	if id, ok := b.pathIDs[path]; ok {
		return id
	}
	b.nextID++
	id := b.nextID
	b.pathIDs[path] = id
	return id
}

// FullScan walks volume.Letter (used here as the root path) depth-first,
// assigning synthetic ids and parent ids derived from directory nesting.
func (b *Backend) FullScan(ctx context.Context, volume backend.VolumeInfo, progress backend.ProgressSink) (backend.RecordStream, error) {
	root := volume.Letter
	info, err := os.Stat(root)
	if err != nil {
		return nil, glinterr.Wrapf(glinterr.Io, err, "stat root %s", root)
	}
	if !info.IsDir() {
		return nil, glinterr.Newf(glinterr.Io, "%s is not a directory", root)
	}

	rootID := b.idFor(root)

	stream := &walkStream{
		backend:  b,
		root:     root,
		rootID:   rootID,
		progress: progress,
		volume:   root,
		records:  make(chan backend.RawRecord, 256),
		done:     make(chan struct{}),
	}
	go stream.walk(ctx)
	return stream, nil
}

type walkStream struct {
	backend  *Backend
	root     string
	rootID   uint64
	progress backend.ProgressSink
	volume   string

	records  chan backend.RawRecord
	done     chan struct{}
	warnings atomic.Uint64
	closeErr error
}

func (s *walkStream) walk(ctx context.Context) {
	defer close(s.records)

	var processed uint64
	_ = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.warnings.Add(1)
			return nil // spec §4.2: per-record errors are counted, not fatal
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		id := s.backend.idFor(path)
		var parentID uint64
		if path == s.root {
			parentID = id // root self-reference, spec §3
		} else {
			parentID = s.backend.idFor(filepath.Dir(path))
		}

		info, err := d.Info()
		if err != nil {
			s.warnings.Add(1)
			return nil
		}

		var flags backend.RecordFlags
		if d.IsDir() {
			flags |= backend.FlagIsDirectory
		}
		if info.Mode()&os.ModeSymlink != 0 {
			flags |= backend.FlagIsReparsePoint
		}
		name := norm.NFC.String(filepath.Base(path))
		if len(name) > 0 && name[0] == '.' {
			flags |= backend.FlagIsHidden
		}

		rec := backend.RawRecord{
			ID:       id,
			ParentID: parentID,
			Name:     name,
			Flags:    flags,
			Size:     uint64(info.Size()),
			MTime:    toFiletime(info.ModTime()),
		}

		select {
		case s.records <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}

		processed++
		if s.progress != nil && processed%256 == 0 {
			s.progress("scanning", s.volume, processed, 0)
		}
		return nil
	})
}

func (s *walkStream) Next(ctx context.Context) (backend.RawRecord, bool, error) {
	select {
	case rec, ok := <-s.records:
		if !ok {
			return backend.RawRecord{}, false, nil
		}
		return rec, true, nil
	case <-ctx.Done():
		return backend.RawRecord{}, false, glinterr.New(glinterr.Cancelled, "full scan cancelled")
	}
}

func (s *walkStream) Warnings() uint64 { return s.warnings.Load() }
func (s *walkStream) Close() error     { return s.closeErr }

// windowsEpochDelta is the number of 100-ns ticks between the Windows
// FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01), needed to
// express a Go time.Time as a FILETIME (spec §3: "mtime: 64-bit Windows
// FILETIME") even on a backend that has no native FILETIME of its own.
const windowsEpochDelta = 116444736000000000

func toFiletime(t time.Time) uint64 {
	return uint64(t.UnixNano()/100) + windowsEpochDelta
}

func (b *Backend) ResolveParent(ctx context.Context, volume backend.VolumeInfo, id uint64) (backend.RawRecord, bool, error) {
	b.mu.Lock()
	var path string
	for p, pid := range b.pathIDs {
		if pid == id {
			path = p
			break
		}
	}
	b.mu.Unlock()
	if path == "" {
		return backend.RawRecord{}, false, nil
	}

	info, err := os.Lstat(path)
	if err != nil {
		return backend.RawRecord{}, false, nil
	}
	var flags backend.RecordFlags
	if info.IsDir() {
		flags |= backend.FlagIsDirectory
	}
	parentID := id
	if path != volume.Letter {
		parentID = b.idFor(filepath.Dir(path))
	}
	return backend.RawRecord{
		ID:       id,
		ParentID: parentID,
		Name:     norm.NFC.String(filepath.Base(path)),
		Flags:    flags,
		Size:     uint64(info.Size()),
		MTime:    toFiletime(info.ModTime()),
	}, true, nil
}

// OpenWatch starts an fsnotify watcher over the root directory and forwards
// each fsnotify event as one RawChangeEvent as soon as it arrives; this
// backend does no batching of its own.
func (b *Backend) OpenWatch(ctx context.Context, volume backend.VolumeInfo, sinceUSN uint64) (backend.WatchHandle, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, glinterr.Wrap(glinterr.Io, err, "create fsnotify watcher")
	}

	root := volume.Letter
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
	if err != nil {
		_ = watcher.Close()
		return nil, glinterr.Wrap(glinterr.Io, err, "start watching")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	handle := &watchHandle{
		backend: b,
		root:    root,
		events:  make(chan backend.RawChangeEvent, 65536),
		errs:    make(chan error, 8),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go handle.run(watchCtx, watcher)
	return handle, nil
}

type watchHandle struct {
	backend *Backend
	root    string
	events  chan backend.RawChangeEvent
	errs    chan error
	cancel  context.CancelFunc
	done    chan struct{}
	usn     atomic.Uint64
}

func (w *watchHandle) Events() <-chan backend.RawChangeEvent { return w.events }
func (w *watchHandle) Errors() <-chan error                  { return w.errs }
func (w *watchHandle) Close() error {
	w.cancel()
	<-w.done
	return nil
}

func (w *watchHandle) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(w.done)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.translate(watcher, ev)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			case <-ctx.Done():
			}
		}
	}
}

func (w *watchHandle) translate(watcher *fsnotify.Watcher, ev fsnotify.Event) {
	id := w.backend.idFor(ev.Name)
	parentID := w.backend.idFor(filepath.Dir(ev.Name))
	name := norm.NFC.String(filepath.Base(ev.Name))

	var reason backend.ChangeReason
	switch {
	case ev.Has(fsnotify.Create):
		reason = backend.ReasonCreate | backend.ReasonClose
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = watcher.Add(ev.Name)
		}
	case ev.Has(fsnotify.Remove):
		reason = backend.ReasonDelete | backend.ReasonClose
	case ev.Has(fsnotify.Rename):
		reason = backend.ReasonDelete | backend.ReasonClose
	case ev.Has(fsnotify.Write):
		reason = backend.ReasonDataChange | backend.ReasonClose
	default:
		return
	}

	usn := w.usn.Add(1)
	change := backend.RawChangeEvent{
		USN:       usn,
		FileID:    id,
		ParentID:  parentID,
		Name:      name,
		Reason:    reason,
		Timestamp: time.Now(),
	}

	select {
	case w.events <- change:
	default:
		select {
		case w.errs <- glinterr.New(glinterr.JournalLost, "traversal watch event channel full"):
		default:
		}
	}
}
