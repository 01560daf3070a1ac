package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/backend/mock"
	"github.com/padiauj/glint/index"
)

func buildMockVolume(b *mock.Backend, letter string) {
	b.AddVolume(backend.VolumeInfo{Letter: letter})
	b.AddRecord(letter, backend.RawRecord{ID: 1, ParentID: 1, Name: "", Flags: backend.FlagIsDirectory})
	b.AddRecord(letter, backend.RawRecord{ID: 2, ParentID: 1, Name: "top.txt", Size: 5})
	b.AddRecord(letter, backend.RawRecord{ID: 3, ParentID: 1, Name: "sub", Flags: backend.FlagIsDirectory})
	b.AddRecord(letter, backend.RawRecord{ID: 4, ParentID: 3, Name: "nested.txt", Size: 9})
}

func TestFullScanThenPersistReachesWatching(t *testing.T) {
	b := mock.New()
	buildMockVolume(b, "M:")

	idx := index.New(4, 0)
	o := New(b, idx, nil)

	err := o.FullScan(context.Background(), []backend.VolumeInfo{{Letter: "M:"}})
	require.NoError(t, err)
	assert.Equal(t, Persisting, o.Handle().State())
	assert.EqualValues(t, 4, o.Handle().IndexCount())

	path, err := os.CreateTemp(t.TempDir(), "snap")
	require.NoError(t, err)
	snapPath := path.Name()
	require.NoError(t, path.Close())

	require.NoError(t, o.Persist(snapPath, false))
	assert.Equal(t, Watching, o.Handle().State())

	full, ok := idx.ResolvePath("M:", 4)
	require.True(t, ok)
	assert.Equal(t, `M:\sub\nested.txt`, full)
}

func TestSaveThenLoadSnapshotRoundTrips(t *testing.T) {
	b := mock.New()
	buildMockVolume(b, "M:")

	idx := index.New(4, 0)
	o := New(b, idx, nil)
	require.NoError(t, o.FullScan(context.Background(), []backend.VolumeInfo{{Letter: "M:"}}))

	snapPath := filepath.Join(t.TempDir(), "glint.idx")
	require.NoError(t, o.SaveSnapshot(snapPath, true))

	idx2 := index.New(4, 0)
	o2 := New(mock.New(), idx2, nil)
	require.NoError(t, o2.LoadSnapshot(snapPath))
	assert.Equal(t, Watching, o2.Handle().State())
	assert.EqualValues(t, 4, o2.Handle().IndexCount())
}

func TestLoadSnapshotFallsBackToScanningOnCorruptFile(t *testing.T) {
	snapPath := filepath.Join(t.TempDir(), "bad.idx")
	require.NoError(t, os.WriteFile(snapPath, []byte("not a snapshot"), 0o644))

	idx := index.New(4, 0)
	o := New(mock.New(), idx, nil)

	err := o.LoadSnapshot(snapPath)
	assert.Error(t, err)
	assert.Equal(t, Scanning, o.Handle().State())
}

func TestWatchAppliesCreateMutation(t *testing.T) {
	b := mock.New()
	buildMockVolume(b, "M:")

	idx := index.New(4, 0)
	o := New(b, idx, nil)
	require.NoError(t, o.FullScan(context.Background(), []backend.VolumeInfo{{Letter: "M:"}}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, o.StartWatch(ctx, []backend.VolumeInfo{{Letter: "M:"}}))

	b.PushEvent("M:", backend.RawChangeEvent{
		USN: 1, FileID: 99, ParentID: 1, Name: "created.txt",
		Reason: backend.ReasonCreate | backend.ReasonClose, Timestamp: time.Now(),
	})

	require.Eventually(t, func() bool {
		path, ok := idx.ResolvePath("M:", 99)
		return ok && path == `M:\created.txt`
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJournalLossTriggersRescanAndReturnsToWatching(t *testing.T) {
	b := mock.New()
	buildMockVolume(b, "M:")

	idx := index.New(4, 0)
	o := New(b, idx, nil)
	require.NoError(t, o.FullScan(context.Background(), []backend.VolumeInfo{{Letter: "M:"}}))
	o.handle.setState(Watching)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, o.StartWatch(ctx, []backend.VolumeInfo{{Letter: "M:"}}))

	b.PushJournalLost("M:")

	require.Eventually(t, func() bool {
		return o.Handle().State() == Watching
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopWatchCancelsActiveWatches(t *testing.T) {
	b := mock.New()
	buildMockVolume(b, "M:")

	idx := index.New(4, 0)
	o := New(b, idx, nil)
	require.NoError(t, o.FullScan(context.Background(), []backend.VolumeInfo{{Letter: "M:"}}))

	require.NoError(t, o.StartWatch(context.Background(), []backend.VolumeInfo{{Letter: "M:"}}))
	o.shutdownGrace = 200 * time.Millisecond
	require.NoError(t, o.StopWatch())
	assert.Empty(t, o.watches)
}
