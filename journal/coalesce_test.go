package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/index"
)

func TestCoalesceCreateThenDataChangeYieldsOneCreate(t *testing.T) {
	c := NewCoalescer("C:")
	c.observe(backend.RawChangeEvent{FileID: 1, ParentID: 5, Name: "a.txt", Reason: backend.ReasonCreate})
	c.observe(backend.RawChangeEvent{FileID: 1, ParentID: 5, Name: "a.txt", Reason: backend.ReasonDataChange})
	c.observe(backend.RawChangeEvent{FileID: 1, Reason: backend.ReasonClose})

	var got []index.Mutation
	c.flushNow(func(m []index.Mutation) { got = m })

	require.Len(t, got, 1)
	assert.Equal(t, index.MutCreate, got[0].Kind)
}

func TestCoalesceDeleteWinsOverEverything(t *testing.T) {
	c := NewCoalescer("C:")
	c.observe(backend.RawChangeEvent{FileID: 2, ParentID: 5, Name: "b.txt", Reason: backend.ReasonCreate})
	c.observe(backend.RawChangeEvent{FileID: 2, Reason: backend.ReasonDelete})

	var got []index.Mutation
	c.flushNow(func(m []index.Mutation) { got = m })

	require.Len(t, got, 1)
	assert.Equal(t, index.MutDelete, got[0].Kind)
}

func TestCoalesceRenamePairYieldsOneRename(t *testing.T) {
	c := NewCoalescer("C:")
	c.observe(backend.RawChangeEvent{FileID: 3, Name: "old.txt", Reason: backend.ReasonRenameOldName})
	c.observe(backend.RawChangeEvent{FileID: 3, ParentID: 9, Name: "new.txt", Reason: backend.ReasonRenameNewName})
	c.observe(backend.RawChangeEvent{FileID: 3, Reason: backend.ReasonClose})

	var got []index.Mutation
	c.flushNow(func(m []index.Mutation) { got = m })

	require.Len(t, got, 1)
	assert.Equal(t, index.MutRename, got[0].Kind)
	assert.Equal(t, "new.txt", got[0].Name)
	assert.EqualValues(t, 9, got[0].ParentID)
}

func TestCoalesceDataChangeAloneCarriesNoStats(t *testing.T) {
	c := NewCoalescer("C:")
	c.observe(backend.RawChangeEvent{FileID: 6, ParentID: 5, Reason: backend.ReasonDataChange})
	c.observe(backend.RawChangeEvent{FileID: 6, Reason: backend.ReasonClose})

	var got []index.Mutation
	c.flushNow(func(m []index.Mutation) { got = m })

	require.Len(t, got, 1)
	assert.Equal(t, index.MutDataChange, got[0].Kind)
	assert.False(t, got[0].HasStats, "USN_RECORD_V2 carries no size/mtime; the orchestrator fills these in before Apply")
}

func TestBareCloseWithNothingPendingProducesNoMutation(t *testing.T) {
	c := NewCoalescer("C:")
	c.observe(backend.RawChangeEvent{FileID: 4, Reason: backend.ReasonClose})

	var got []index.Mutation
	c.flushNow(func(m []index.Mutation) { got = m })
	assert.Empty(t, got)
}

func TestRunFlushesOnEventCountThreshold(t *testing.T) {
	c := NewCoalescer("C:")
	c.Window = time.Hour // effectively disable the ticker for this test
	c.FlushEvents = 2

	events := make(chan backend.RawChangeEvent, 4)
	events <- backend.RawChangeEvent{FileID: 1, Reason: backend.ReasonCreate}
	events <- backend.RawChangeEvent{FileID: 2, Reason: backend.ReasonCreate}
	close(events)

	flushes := 0
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Run(ctx, events, func(m []index.Mutation) { flushes++ })
	require.NoError(t, err)
	assert.GreaterOrEqual(t, flushes, 1)
}
