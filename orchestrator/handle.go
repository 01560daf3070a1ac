package orchestrator

import (
	"sync"
	"sync/atomic"
)

// Progress is one update delivered to Handle subscribers, matching spec
// §6.1's "{phase, volume, processed, total}" progress sink tuple.
type Progress struct {
	Phase     string
	Volume    string
	Processed uint64
	Total     uint64
}

// Handle exposes the orchestrator's observable properties from spec §6.1 as
// atomics plus a subscriber list, so a CLI/TUI/GUI consumer can poll or
// subscribe without taking a lock on the orchestrator itself. Spec §9's
// design note ("the handle, not the index, is shared") is realized by
// having glint.Core hand callers this struct rather than a reference into
// the live index.
type Handle struct {
	isIndexing         atomic.Bool
	indexProgress      atomic.Int64 // 0-100
	indexCount         atomic.Int64
	indexTotalVolumes  atomic.Int64
	indexCurrentVolume atomic.Value // string
	statusMessage      atomic.Value // string
	state              atomic.Value // State

	subMu sync.Mutex
	subs  []func(Progress)
}

// NewHandle returns a Handle in its zero (Idle, not indexing) state.
func NewHandle() *Handle {
	h := &Handle{}
	h.indexCurrentVolume.Store("")
	h.statusMessage.Store("")
	h.state.Store(Idle)
	return h
}

func (h *Handle) IsIndexing() bool     { return h.isIndexing.Load() }
func (h *Handle) IndexProgress() int   { return int(h.indexProgress.Load()) }
func (h *Handle) IndexCount() int64    { return h.indexCount.Load() }
func (h *Handle) TotalVolumes() int    { return int(h.indexTotalVolumes.Load()) }
func (h *Handle) CurrentVolume() string {
	return h.indexCurrentVolume.Load().(string)
}
func (h *Handle) StatusMessage() string {
	return h.statusMessage.Load().(string)
}
func (h *Handle) State() State {
	return h.state.Load().(State)
}

// Subscribe registers fn to receive every future progress update. It
// returns an unsubscribe function.
func (h *Handle) Subscribe(fn func(Progress)) func() {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.subs = append(h.subs, fn)
	idx := len(h.subs) - 1
	return func() {
		h.subMu.Lock()
		defer h.subMu.Unlock()
		h.subs[idx] = nil
	}
}

func (h *Handle) notify(p Progress) {
	h.subMu.Lock()
	subs := append([]func(Progress){}, h.subs...)
	h.subMu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(p)
		}
	}
}

func (h *Handle) setState(s State) { h.state.Store(s) }

func (h *Handle) setStatus(msg string) { h.statusMessage.Store(msg) }

func (h *Handle) setScanning(volume string, total int) {
	h.isIndexing.Store(true)
	h.indexCurrentVolume.Store(volume)
	h.indexTotalVolumes.Store(int64(total))
}

func (h *Handle) onProgress(phase, volume string, processed, total uint64) {
	h.indexCurrentVolume.Store(volume)
	if total > 0 {
		h.indexProgress.Store(int64(processed * 100 / total))
	}
	h.notify(Progress{Phase: phase, Volume: volume, Processed: processed, Total: total})
}

func (h *Handle) setIdleAfterScan(count int64) {
	h.isIndexing.Store(false)
	h.indexProgress.Store(100)
	h.indexCount.Store(count)
}
