package traversal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padiauj/glint/backend"
)

func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nested.txt"), []byte("world"), 0o644))
	return root
}

func drain(t *testing.T, stream backend.RecordStream) []backend.RawRecord {
	t.Helper()
	ctx := context.Background()
	var out []backend.RawRecord
	for {
		rec, ok, err := stream.Next(ctx)
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}

func TestFullScanWalksDirectoryTree(t *testing.T) {
	root := writeTree(t)
	b := &Backend{}

	stream, err := b.FullScan(context.Background(), backend.VolumeInfo{Letter: root}, nil)
	require.NoError(t, err)

	records := drain(t, stream)
	names := make(map[string]backend.RawRecord)
	for _, r := range records {
		names[r.Name] = r
	}

	assert.Contains(t, names, "sub")
	assert.Contains(t, names, "top.txt")
	assert.Contains(t, names, "nested.txt")
	assert.True(t, names["sub"].Flags&backend.FlagIsDirectory != 0)
	assert.False(t, names["top.txt"].Flags&backend.FlagIsDirectory != 0)
	assert.Equal(t, uint64(5), names["top.txt"].Size)

	nested := names["nested.txt"]
	sub := names["sub"]
	assert.Equal(t, sub.ID, nested.ParentID)
}

func TestFullScanRejectsNonDirectoryRoot(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	b := &Backend{}
	_, err := b.FullScan(context.Background(), backend.VolumeInfo{Letter: file}, nil)
	assert.Error(t, err)
}

func TestResolveParentFindsKnownPath(t *testing.T) {
	root := writeTree(t)
	b := &Backend{}

	stream, err := b.FullScan(context.Background(), backend.VolumeInfo{Letter: root}, nil)
	require.NoError(t, err)
	records := drain(t, stream)

	var topID uint64
	for _, r := range records {
		if r.Name == "top.txt" {
			topID = r.ID
		}
	}
	require.NotZero(t, topID)

	rec, ok, err := b.ResolveParent(context.Background(), backend.VolumeInfo{Letter: root}, topID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "top.txt", rec.Name)
}

func TestResolveParentUnknownIDReturnsNotFound(t *testing.T) {
	b := &Backend{}
	_, ok, err := b.ResolveParent(context.Background(), backend.VolumeInfo{Letter: t.TempDir()}, 9999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenWatchDeliversCreateEvent(t *testing.T) {
	root := writeTree(t)
	b := &Backend{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := b.OpenWatch(ctx, backend.VolumeInfo{Letter: root}, 0)
	require.NoError(t, err)
	defer handle.Close()

	newFile := filepath.Join(root, "created.txt")
	require.NoError(t, os.WriteFile(newFile, []byte("x"), 0o644))

	select {
	case ev := <-handle.Events():
		assert.Equal(t, "created.txt", ev.Name)
		assert.True(t, ev.Reason.Has(backend.ReasonCreate))
	case err := <-handle.Errors():
		t.Fatalf("unexpected watch error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for create event")
	}
}

func TestListVolumesIsUnsupported(t *testing.T) {
	b := &Backend{}
	_, err := b.ListVolumes(context.Background())
	assert.Error(t, err)
}
