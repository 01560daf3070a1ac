package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTableMatchesSpecEdges(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		want State
	}{
		{Idle, EventSnapshotFound, Loading},
		{Idle, EventSnapshotMissing, Scanning},
		{Loading, EventScanComplete, Watching},
		{Loading, EventLoadFailed, Scanning},
		{Scanning, EventScanComplete, Persisting},
		{Persisting, EventPersisted, Watching},
		{Watching, EventJournalLost, Scanning},
		{Watching, EventShutdown, Stopping},
		{Stopping, EventShutdown, Stopping},
	}
	for _, c := range cases {
		got, err := transition(c.from, c.ev)
		assert.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestTransitionRejectsInvalidEvent(t *testing.T) {
	_, err := transition(Idle, EventJournalLost)
	assert.Error(t, err)

	_, err = transition(Persisting, EventScanComplete)
	assert.Error(t, err)
}

func TestChoicesListsEveryState(t *testing.T) {
	assert.Len(t, Choices(), 6)
}

func TestStateStringIsHumanReadable(t *testing.T) {
	assert.Equal(t, "watching", Watching.String())
	assert.Equal(t, "unknown", State(99).String())
}
