// Package journal coalesces raw USN change events into index mutation
// batches (spec §4.4). The accumulate-then-flush shape is grounded on
// rclone's backend/local changenotify_windows.go: a select loop over an
// event channel and a ticker, folding events into a per-key map between
// ticks instead of reacting to every individual event.
package journal

import (
	"context"
	"time"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/index"
	"github.com/padiauj/glint/internal/glinterr"
)

// DefaultWindow is the coalescing window (spec §4.4: "default 100 ms").
const DefaultWindow = 100 * time.Millisecond

// DefaultFlushEvents caps a window by event count instead of just time
// (spec §4.8: "at most every 100 ms OR 4096 events, whichever first").
const DefaultFlushEvents = 4096

// pending tracks the highest-priority change seen for one file id within
// the current coalescing window. kind is nil until some event sets it,
// since MutationKind's zero value (MutCreate) would otherwise be
// indistinguishable from an actual create.
type pending struct {
	kind       *index.MutationKind
	parentID   uint64
	name       string
	size       uint64
	mtime      uint64
	renameFrom string // name from RENAME_OLD_NAME; only keeps the entry alive past a bare CLOSE
}

// priority ranks mutation kinds for coalescing (spec §4.4: "DELETE (drops
// all prior), RENAME_NEW (supersedes name), CREATE, DATA_CHANGE"). A nil
// kind (nothing observed yet) ranks below all of them.
func priority(k *index.MutationKind) int {
	if k == nil {
		return -1
	}
	switch *k {
	case index.MutDelete:
		return 3
	case index.MutRename:
		return 2
	case index.MutCreate:
		return 1
	default:
		return 0
	}
}

func kindPtr(k index.MutationKind) *index.MutationKind { return &k }

// Coalescer folds a stream of backend.RawChangeEvent into batches of
// index.Mutation, flushed on a timer or an event-count threshold.
type Coalescer struct {
	Volume      string
	Window      time.Duration
	FlushEvents int

	byID map[uint64]*pending
	lastUSN uint64
}

// NewCoalescer builds a coalescer for volume with spec-default tuning.
func NewCoalescer(volume string) *Coalescer {
	return &Coalescer{
		Volume:      volume,
		Window:      DefaultWindow,
		FlushEvents: DefaultFlushEvents,
		byID:        make(map[uint64]*pending),
	}
}

// Run drains events until ctx is cancelled or the channel closes, invoking
// flush with each coalesced batch. It never returns JournalLost itself;
// that is the backend's responsibility when it detects a wrapped or reset
// journal (spec §4.4 "Truncation recovery").
func (c *Coalescer) Run(ctx context.Context, events <-chan backend.RawChangeEvent, flush func([]index.Mutation)) error {
	ticker := time.NewTicker(c.Window)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			c.flushNow(flush)
			return glinterr.New(glinterr.Cancelled, "journal coalescer stopped")

		case ev, ok := <-events:
			if !ok {
				c.flushNow(flush)
				return nil
			}
			c.observe(ev)
			count++
			if count >= c.FlushEvents {
				c.flushNow(flush)
				count = 0
			}

		case <-ticker.C:
			if count > 0 {
				c.flushNow(flush)
				count = 0
			}
		}
	}
}

// observe folds one raw event into the pending map, applying the
// coalescing priority rule. RENAME_NEW_NAME alone sets the rename's new
// name and parent; RENAME_OLD_NAME only records the old name. Pending
// mutations go out at the next flush whether or not a CLOSE has arrived.
func (c *Coalescer) observe(ev backend.RawChangeEvent) {
	c.lastUSN = ev.USN
	p, ok := c.byID[ev.FileID]
	if !ok {
		p = &pending{}
		c.byID[ev.FileID] = p
	}

	switch {
	case ev.Reason.Has(backend.ReasonDelete):
		if priority(kindPtr(index.MutDelete)) >= priority(p.kind) {
			p.kind = kindPtr(index.MutDelete)
		}

	case ev.Reason.Has(backend.ReasonRenameOldName):
		p.renameFrom = ev.Name

	case ev.Reason.Has(backend.ReasonRenameNewName):
		if priority(kindPtr(index.MutRename)) >= priority(p.kind) {
			p.kind = kindPtr(index.MutRename)
			p.parentID = ev.ParentID
			p.name = ev.Name
		}

	case ev.Reason.Has(backend.ReasonCreate):
		if priority(kindPtr(index.MutCreate)) >= priority(p.kind) {
			p.kind = kindPtr(index.MutCreate)
			p.parentID = ev.ParentID
			p.name = ev.Name
		}

	case ev.Reason.Has(backend.ReasonDataChange):
		if p.kind == nil {
			p.kind = kindPtr(index.MutDataChange)
		}
		// a CREATE or RENAME already pending wins the kind; USN events carry
		// neither size nor mtime (resolveDataChangeStats re-resolves both
		// from the backend before the mutation reaches the index).
		p.parentID = ev.ParentID
	}

	if ev.Reason.Has(backend.ReasonClose) && p.kind == nil && p.renameFrom == "" {
		// a bare CLOSE with nothing else pending carries no mutation
		delete(c.byID, ev.FileID)
	}
}

// flushNow drains the pending map into one mutation batch, highest
// coalescing priority already resolved per id by observe.
func (c *Coalescer) flushNow(flush func([]index.Mutation)) {
	if len(c.byID) == 0 {
		return
	}
	muts := make([]index.Mutation, 0, len(c.byID))
	for id, p := range c.byID {
		if p.kind == nil {
			continue // e.g. a lone RENAME_OLD_NAME
		}
		muts = append(muts, index.Mutation{
			Kind:     *p.kind,
			Volume:   c.Volume,
			ID:       id,
			ParentID: p.parentID,
			Name:     p.name,
			Size:     p.size,
			MTime:    p.mtime,
		})
	}
	c.byID = make(map[uint64]*pending)
	flush(muts)
}

// LastUSN returns the highest USN observed so far, used to resume a watch
// after a restart.
func (c *Coalescer) LastUSN() uint64 { return c.lastUSN }
