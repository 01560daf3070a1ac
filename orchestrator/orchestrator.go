package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/index"
	"github.com/padiauj/glint/internal/glinterr"
	"github.com/padiauj/glint/internal/glog"
	"github.com/padiauj/glint/journal"
	"github.com/padiauj/glint/pathresolve"
	"github.com/padiauj/glint/snapshot"
)

// DefaultShutdownGrace is the window shutdown waits for workers to observe
// cancellation before they're abandoned (spec §5: "default 5 s").
const DefaultShutdownGrace = 5 * time.Second

// Orchestrator runs the state machine in state.go, coordinating the
// backend, pathresolve, index, journal, and snapshot packages into the
// scan-then-watch pipeline spec §4.8 describes.
type Orchestrator struct {
	mu sync.Mutex

	back   backend.Backend
	idx    *index.Index
	handle *Handle
	logger *slog.Logger

	shutdownGrace time.Duration

	watches map[string]*activeWatch // volume letter -> running watch
}

type activeWatch struct {
	id     uuid.UUID
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an orchestrator over an already-constructed backend and index.
// logger defaults to glog.Default if nil.
func New(b backend.Backend, idx *index.Index, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = glog.Default
	}
	return &Orchestrator{
		back:          b,
		idx:           idx,
		handle:        NewHandle(),
		logger:        logger,
		shutdownGrace: DefaultShutdownGrace,
		watches:       make(map[string]*activeWatch),
	}
}

// Handle returns the observable properties object for this orchestrator.
func (o *Orchestrator) Handle() *Handle { return o.handle }

// FullScan drives the Scanning state: each volume is streamed through a
// dedicated path resolver (spec §5: "a single path-resolver thread
// assembles paths") into the index, one volume at a time (spec §4.8).
func (o *Orchestrator) FullScan(ctx context.Context, volumes []backend.VolumeInfo) error {
	o.handle.setState(Scanning)
	o.handle.setStatus("scanning")

	var total int64
	for _, vol := range volumes {
		o.handle.setScanning(vol.Letter, len(volumes))
		o.handle.setStatus(fmt.Sprintf("scanning %s", vol.Letter))

		count, err := o.scanOneVolume(ctx, vol)
		if err != nil {
			o.handle.isIndexing.Store(false)
			o.logger.Error("full scan failed", "volume", vol.Letter, "err", err)
			return err
		}
		total += count
	}

	o.handle.setIdleAfterScan(total)
	if _, err := transition(Scanning, EventScanComplete); err != nil {
		return err
	}
	o.handle.setState(Persisting)
	return nil
}

func (o *Orchestrator) scanOneVolume(ctx context.Context, vol backend.VolumeInfo) (int64, error) {
	stream, err := o.back.FullScan(ctx, vol, o.handle.onProgress)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	rootID := rootRecordID(o.back.Name())
	resolver := pathresolve.New(rootID, vol.Letter, 0)
	o.idx.SetRoot(vol.Letter, rootID, vol.Letter)

	const batchSize = 4096
	batch := make([]index.FileRecord, 0, batchSize)
	var count int64

	for {
		raw, ok, err := stream.Next(ctx)
		if err != nil {
			return count, err
		}
		if !ok {
			break
		}

		for _, resolved := range resolver.Feed(raw) {
			fr := toFileRecord(vol.Letter, resolved)
			batch = append(batch, fr)
			count++
			if len(batch) >= batchSize {
				o.idx.Load(batch)
				batch = batch[:0]
			}
		}
	}

	// A record whose ancestor never appeared in the scanned stream (deleted,
	// corrupt-and-skipped, or otherwise absent) would otherwise sit in the
	// resolver forever; Finalize gives resolve_parent one pass to fill in
	// any such ancestor before orphaning what's still stuck (spec §3: every
	// non-tombstone record ends up resolved).
	final, err := resolver.Finalize(func(id uint64) (backend.RawRecord, bool, error) {
		return o.back.ResolveParent(ctx, vol, id)
	})
	if err != nil {
		return count, err
	}
	for _, resolved := range final {
		fr := toFileRecord(vol.Letter, resolved)
		batch = append(batch, fr)
		count++
	}

	if len(batch) > 0 {
		o.idx.Load(batch)
	}

	if warnings := stream.Warnings(); warnings > 0 {
		o.logger.Warn("full scan skipped corrupt records", "volume", vol.Letter, "count", warnings)
	}
	return count, nil
}

// rootRecordID returns the record id the named backend uses for a volume's
// root directory: NTFS fixes this at 5 by convention, while the traversal
// backend assigns its root the first synthetic id it hands out.
func rootRecordID(backendName string) uint64 {
	if backendName == "ntfs" {
		return 5
	}
	return 1
}

func toFileRecord(volume string, r pathresolve.Resolved) index.FileRecord {
	flags := r.Record.Flags
	if r.Orphan {
		flags |= backend.FlagIsHidden // orphaned records stay searchable but visually distinct; spec §4.3
	}
	return index.FileRecord{
		Volume:    volume,
		ID:        r.Record.ID,
		ParentID:  r.Record.ParentID,
		Name:      r.Record.Name,
		NameIndex: r.Record.NameIndex,
		Flags:     flags,
		Size:      r.Record.Size,
		MTime:     r.Record.MTime,
	}
}

// Persist moves Persisting -> Watching after a snapshot write, per spec
// §4.8's single outgoing edge from Persisting.
func (o *Orchestrator) Persist(path string, compress bool) error {
	if err := o.SaveSnapshot(path, compress); err != nil {
		return err
	}
	if _, err := transition(Persisting, EventPersisted); err != nil {
		return err
	}
	o.handle.setState(Watching)
	o.handle.setStatus("watching")
	return nil
}

// StartWatch opens a USN/fsnotify watch on each volume and begins applying
// coalesced mutations to the index. JournalLost on any volume transitions
// the whole orchestrator back to Scanning and triggers a rescan of that
// volume only (spec §4.8, §4.4 "Truncation recovery").
func (o *Orchestrator) StartWatch(ctx context.Context, volumes []backend.VolumeInfo) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, vol := range volumes {
		if _, already := o.watches[vol.Letter]; already {
			continue
		}
		watchCtx, cancel := context.WithCancel(ctx)
		aw := &activeWatch{id: uuid.New(), cancel: cancel, done: make(chan struct{})}
		o.watches[vol.Letter] = aw

		go o.runWatch(watchCtx, vol, aw)
	}
	return nil
}

func (o *Orchestrator) runWatch(ctx context.Context, vol backend.VolumeInfo, aw *activeWatch) {
	defer close(aw.done)

	wh, err := o.back.OpenWatch(ctx, vol, 0)
	if err != nil {
		o.logger.Error("open watch failed", "volume", vol.Letter, "watch_id", aw.id, "err", err)
		return
	}
	defer wh.Close()

	coalescer := journal.NewCoalescer(vol.Letter)
	applyBatch := func(muts []index.Mutation) {
		if len(muts) == 0 {
			return
		}
		o.resolveDataChangeStats(ctx, vol, muts)
		o.idx.Apply(muts)
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- coalescer.Run(ctx, wh.Events(), applyBatch)
	}()

	for {
		select {
		case <-ctx.Done():
			<-runDone
			return
		case err := <-wh.Errors():
			if glinterr.Is(err, glinterr.JournalLost) {
				glog.Critical(ctx, o.logger, "journal lost, rescan required", "volume", vol.Letter, "watch_id", aw.id)
				o.handleJournalLost(ctx, vol)
				return
			}
			o.logger.Warn("watch error", "volume", vol.Letter, "err", err)
		case err := <-runDone:
			if err != nil && !glinterr.Is(err, glinterr.Cancelled) {
				o.logger.Error("journal coalescer stopped unexpectedly", "volume", vol.Letter, "err", err)
			}
			return
		}
	}
}

// resolveDataChangeStats fills in the real Size/MTime for every
// MutDataChange mutation in muts by looking the record up on the backend:
// backend.RawChangeEvent carries neither (spec §4.4's USN_RECORD_V2 has no
// size/mtime fields), so applyOne has nothing to write unless something
// re-resolves them first. A lookup failure leaves the mutation's zero value
// in place, and index.applyOne then skips the write rather than clobbering
// the record's last-known stats (see index/index.go's MutDataChange case).
func (o *Orchestrator) resolveDataChangeStats(ctx context.Context, vol backend.VolumeInfo, muts []index.Mutation) {
	for i := range muts {
		if muts[i].Kind != index.MutDataChange {
			continue
		}
		rec, ok, err := o.back.ResolveParent(ctx, vol, muts[i].ID)
		if err != nil || !ok {
			continue
		}
		muts[i].Size = rec.Size
		muts[i].MTime = rec.MTime
		muts[i].HasStats = true
	}
}

func (o *Orchestrator) handleJournalLost(ctx context.Context, vol backend.VolumeInfo) {
	if _, err := transition(Watching, EventJournalLost); err != nil {
		o.logger.Error("invalid state transition on journal loss", "err", err)
		return
	}
	o.handle.setState(Scanning)
	if _, err := o.scanOneVolume(ctx, vol); err != nil {
		o.logger.Error("rescan after journal loss failed", "volume", vol.Letter, "err", err)
		return
	}
	o.handle.setState(Watching)
}

// StopWatch cancels every active watch and waits up to the shutdown grace
// period for each to finish (spec §5: "abandoned after grace, process exit
// assumed").
func (o *Orchestrator) StopWatch() error {
	o.mu.Lock()
	watches := o.watches
	o.watches = make(map[string]*activeWatch)
	o.mu.Unlock()

	deadline := time.After(o.shutdownGrace)
	for letter, aw := range watches {
		aw.cancel()
		select {
		case <-aw.done:
		case <-deadline:
			o.logger.Warn("watch did not stop within grace period", "volume", letter, "watch_id", aw.id)
		}
	}
	return nil
}

// SaveSnapshot writes the current index contents to path (spec §6.3).
func (o *Orchestrator) SaveSnapshot(path string, compress bool) error {
	volumes := o.snapshotVolumes()
	f, err := os.Create(path)
	if err != nil {
		return glinterr.Wrapf(glinterr.Io, err, "create snapshot %s", path)
	}
	defer f.Close()
	return snapshot.Write(f, volumes, compress)
}

func (o *Orchestrator) snapshotVolumes() []snapshot.Volume {
	letters := o.idx.Volumes()
	out := make([]snapshot.Volume, 0, len(letters))
	for _, letter := range letters {
		records := o.idx.RecordsForVolume(letter)
		sv := snapshot.Volume{Letter: letter[0]}
		for _, r := range records {
			sv.Records = append(sv.Records, snapshot.Record{
				ID:        r.ID,
				ParentID:  r.ParentID,
				Flags:     uint32(r.Flags),
				Size:      r.Size,
				MTime:     r.MTime,
				ExtHash:   r.ExtHash,
				NameIndex: r.NameIndex,
				Name:      r.Name,
			})
		}
		out = append(out, sv)
	}
	return out
}

// LoadSnapshot moves Idle -> Loading -> Watching on success (spec §4.8). A
// read failure or incompatible format transitions to Scanning instead so
// the caller can fall back to a full rescan; a file rejected as
// SnapshotIncompatible is deleted.
func (o *Orchestrator) LoadSnapshot(path string) error {
	o.handle.setState(Loading)
	o.handle.setStatus("loading snapshot")

	f, err := os.Open(path)
	if err != nil {
		_, _ = transition(Loading, EventLoadFailed)
		o.handle.setState(Scanning)
		return glinterr.Wrapf(glinterr.Io, err, "open snapshot %s", path)
	}
	defer f.Close()

	volumes, err := snapshot.Read(f)
	if err != nil {
		if glinterr.Is(err, glinterr.SnapshotIncompatible) {
			_ = f.Close()
			_ = os.Remove(path)
		}
		_, _ = transition(Loading, EventLoadFailed)
		o.handle.setState(Scanning)
		return err
	}

	var total int64
	for _, v := range volumes {
		letter := string(v.Letter) + ":"
		o.idx.SetRoot(letter, rootRecordID(o.back.Name()), letter)
		records := make([]index.FileRecord, 0, len(v.Records))
		for _, r := range v.Records {
			records = append(records, index.FileRecord{
				Volume:    letter,
				ID:        r.ID,
				ParentID:  r.ParentID,
				NameIndex: r.NameIndex,
				Name:      r.Name,
				Flags:     backend.RecordFlags(r.Flags),
				Size:      r.Size,
				MTime:     r.MTime,
				ExtHash:   r.ExtHash,
			})
		}
		o.idx.Load(records)
		total += int64(len(records))
	}

	o.handle.setIdleAfterScan(total)
	if _, err := transition(Loading, EventScanComplete); err != nil {
		return err
	}
	o.handle.setState(Watching)
	o.handle.setStatus("watching")
	return nil
}

// Shutdown stops all watches and persists a final snapshot, the terminal
// Stopping transition from spec §4.8's table.
func (o *Orchestrator) Shutdown(path string, compress bool) error {
	o.handle.setState(Stopping)
	if err := o.StopWatch(); err != nil {
		return err
	}
	return o.SaveSnapshot(path, compress)
}
