package pathresolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padiauj/glint/backend"
)

const rootID = 5

func TestResolveSimpleChain(t *testing.T) {
	r := New(rootID, `C:\`, 1024)

	resolved := r.Feed(backend.RawRecord{ID: 10, ParentID: rootID, Name: "proj", Flags: backend.FlagIsDirectory})
	require.Len(t, resolved, 1)
	assert.Equal(t, `C:\proj`, resolved[0].Path)

	resolved = r.Feed(backend.RawRecord{ID: 11, ParentID: 10, Name: "README.md"})
	require.Len(t, resolved, 1)
	assert.Equal(t, `C:\proj\README.md`, resolved[0].Path)
	assert.False(t, resolved[0].Orphan)
}

func TestForwardReferenceIsDeferredThenReleased(t *testing.T) {
	r := New(rootID, `C:\`, 1024)

	// Child arrives before its parent directory record.
	resolved := r.Feed(backend.RawRecord{ID: 20, ParentID: 15, Name: "child.txt"})
	assert.Empty(t, resolved, "child should be deferred until parent 15 is known")

	resolved = r.Feed(backend.RawRecord{ID: 15, ParentID: rootID, Name: "dir"})
	require.Len(t, resolved, 2, "parent resolves and releases the deferred child")

	paths := map[uint64]string{}
	for _, res := range resolved {
		paths[res.Record.ID] = res.Path
	}
	assert.Equal(t, `C:\dir`, paths[15])
	assert.Equal(t, `C:\dir\child.txt`, paths[20])
}

func TestCycleProducesOrphan(t *testing.T) {
	r := New(rootID, `C:\`, 1024)

	// 30 -> 31 -> 30 is a cycle never reaching the root.
	r.Feed(backend.RawRecord{ID: 30, ParentID: 31, Name: "a"})
	resolved := r.Feed(backend.RawRecord{ID: 31, ParentID: 30, Name: "b"})

	require.NotEmpty(t, resolved)
	for _, res := range resolved {
		assert.True(t, res.Orphan)
		assert.Contains(t, res.Path, OrphanPrefix)
	}
}

func TestDeepChainWithinBudgetResolves(t *testing.T) {
	r := New(rootID, `C:\`, 1024)
	parent := uint64(rootID)
	var last []Resolved
	for i := uint64(100); i < 100+100; i++ {
		last = r.Feed(backend.RawRecord{ID: i, ParentID: parent, Name: "d"})
		parent = i
		require.Len(t, last, 1)
		assert.False(t, last[0].Orphan)
	}
}

func TestFeedResolvesEachHardlinkNameToItsOwnPath(t *testing.T) {
	r := New(rootID, `C:\`, 1024)

	// Same ID, two Win32 names (a hardlink); the second name must resolve
	// to its own path, not the one already cached for the first.
	first := r.Feed(backend.RawRecord{ID: 50, ParentID: rootID, Name: "report.txt", NameIndex: 0})
	require.Len(t, first, 1)
	assert.Equal(t, `C:\report.txt`, first[0].Path)

	second := r.Feed(backend.RawRecord{ID: 50, ParentID: rootID, Name: "alias.txt", NameIndex: 1})
	require.Len(t, second, 1)
	assert.Equal(t, `C:\alias.txt`, second[0].Path)
}

func TestFinalizeOrphansRecordWhoseAncestorNeverArrives(t *testing.T) {
	r := New(rootID, `C:\`, 1024)

	resolved := r.Feed(backend.RawRecord{ID: 60, ParentID: 999, Name: "stuck.txt"})
	assert.Empty(t, resolved, "ancestor 999 never shows up in the stream")

	final, err := r.Finalize(nil)
	require.NoError(t, err)
	require.Len(t, final, 1)
	assert.True(t, final[0].Orphan)
	assert.Contains(t, final[0].Path, OrphanPrefix)
}

func TestFinalizeUsesResolveParentToFillMissingAncestor(t *testing.T) {
	r := New(rootID, `C:\`, 1024)

	resolved := r.Feed(backend.RawRecord{ID: 61, ParentID: 70, Name: "found.txt"})
	assert.Empty(t, resolved)

	final, err := r.Finalize(func(id uint64) (backend.RawRecord, bool, error) {
		if id == 70 {
			return backend.RawRecord{ID: 70, ParentID: rootID, Name: "dir", Flags: backend.FlagIsDirectory}, true, nil
		}
		return backend.RawRecord{}, false, nil
	})
	require.NoError(t, err)
	require.Len(t, final, 1, "resolveParent fills in ancestor 70's name/parent; only 61 was ever pending")
	assert.Equal(t, `C:\dir\found.txt`, final[0].Path)
	assert.False(t, final[0].Orphan)
}

func TestCachedPrefixReused(t *testing.T) {
	r := New(rootID, `C:\`, 1024)
	r.Feed(backend.RawRecord{ID: 40, ParentID: rootID, Name: "shared"})
	resolved := r.Feed(backend.RawRecord{ID: 41, ParentID: 40, Name: "leaf1.txt"})
	require.Len(t, resolved, 1)
	assert.Equal(t, `C:\shared\leaf1.txt`, resolved[0].Path)

	resolved = r.Feed(backend.RawRecord{ID: 42, ParentID: 40, Name: "leaf2.txt"})
	require.Len(t, resolved, 1)
	assert.Equal(t, `C:\shared\leaf2.txt`, resolved[0].Path)
}
