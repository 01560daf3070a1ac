package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padiauj/glint/query"
)

func mustMatcher(t *testing.T, q string) *query.Matcher {
	t.Helper()
	ast, err := query.Parse(q)
	require.NoError(t, err)
	m, err := query.Compile(ast)
	require.NoError(t, err)
	return m
}

func TestLoadAndResolvePath(t *testing.T) {
	idx := New(4, 0)
	idx.SetRoot("C:", 5, `C:\`)

	idx.Load([]FileRecord{
		{Volume: "C:", ID: 5, ParentID: 5, Name: "", ExtHash: 0},
		{Volume: "C:", ID: 10, ParentID: 5, Name: "proj"},
		{Volume: "C:", ID: 11, ParentID: 10, Name: "README.md"},
	})

	p, ok := idx.ResolvePath("C:", 11)
	require.True(t, ok)
	assert.Equal(t, `C:\proj\README.md`, p)
}

func TestSearchSubstringAcrossShards(t *testing.T) {
	idx := New(4, 0)
	idx.SetRoot("C:", 5, `C:\`)
	idx.Load([]FileRecord{
		{Volume: "C:", ID: 5, ParentID: 5, Name: ""},
		{Volume: "C:", ID: 10, ParentID: 5, Name: "proj", Flags: 1},
		{Volume: "C:", ID: 11, ParentID: 10, Name: "README.md"},
		{Volume: "C:", ID: 12, ParentID: 5, Name: "readme.txt"},
		{Volume: "C:", ID: 13, ParentID: 5, Name: "other.txt"},
	})

	m := mustMatcher(t, "readme")
	rows, err := idx.Search(context.Background(), m, 0, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, `C:\proj\README.md`, rows[0].FullPath)
	assert.Equal(t, `C:\readme.txt`, rows[1].FullPath)
}

func TestApplyDeleteThenCompactDropsRecord(t *testing.T) {
	idx := New(1, 0)
	idx.SetRoot("C:", 5, `C:\`)

	var records []FileRecord
	records = append(records, FileRecord{Volume: "C:", ID: 5, ParentID: 5})
	for i := uint64(100); i < 110; i++ {
		records = append(records, FileRecord{Volume: "C:", ID: i, ParentID: 5, Name: "f"})
	}
	idx.Load(records)

	var muts []Mutation
	for i := uint64(100); i < 103; i++ {
		muts = append(muts, Mutation{Kind: MutDelete, Volume: "C:", ID: i})
	}
	idx.Apply(muts)

	_, ok := idx.idIndex[RecordID{Volume: "C:", ID: 100}]
	assert.False(t, ok)
}

func TestApplyRenameMovesParent(t *testing.T) {
	idx := New(2, 0)
	idx.SetRoot("C:", 5, `C:\`)
	idx.Load([]FileRecord{
		{Volume: "C:", ID: 5, ParentID: 5},
		{Volume: "C:", ID: 20, ParentID: 5, Name: "a"},
		{Volume: "C:", ID: 21, ParentID: 5, Name: "b"},
		{Volume: "C:", ID: 22, ParentID: 20, Name: "child.txt"},
	})

	idx.Apply([]Mutation{
		{Kind: MutRename, Volume: "C:", ID: 22, ParentID: 21, Name: "child.txt"},
	})

	p, ok := idx.ResolvePath("C:", 22)
	require.True(t, ok)
	assert.Equal(t, `C:\b\child.txt`, p)
}

func TestApplyDataChangeWithoutStatsLeavesSizeAndMTimeAlone(t *testing.T) {
	idx := New(1, 0)
	idx.SetRoot("C:", 5, `C:\`)
	idx.Load([]FileRecord{
		{Volume: "C:", ID: 5, ParentID: 5},
		{Volume: "C:", ID: 40, ParentID: 5, Name: "f.txt", Size: 1234, MTime: 9999},
	})

	idx.Apply([]Mutation{
		{Kind: MutDataChange, Volume: "C:", ID: 40, Size: 0, MTime: 0, HasStats: false},
	})

	ref := idx.idIndex[RecordID{Volume: "C:", ID: 40}]
	shard := idx.shards[ref.shard]
	assert.EqualValues(t, 1234, shard.sizes[ref.local])
	assert.EqualValues(t, 9999, shard.mtimes[ref.local])
}

func TestApplyDataChangeWithStatsUpdatesSizeAndMTime(t *testing.T) {
	idx := New(1, 0)
	idx.SetRoot("C:", 5, `C:\`)
	idx.Load([]FileRecord{
		{Volume: "C:", ID: 5, ParentID: 5},
		{Volume: "C:", ID: 41, ParentID: 5, Name: "f.txt", Size: 1234, MTime: 9999},
	})

	idx.Apply([]Mutation{
		{Kind: MutDataChange, Volume: "C:", ID: 41, Size: 5000, MTime: 10000, HasStats: true},
	})

	ref := idx.idIndex[RecordID{Volume: "C:", ID: 41}]
	shard := idx.shards[ref.shard]
	assert.EqualValues(t, 5000, shard.sizes[ref.local])
	assert.EqualValues(t, 10000, shard.mtimes[ref.local])
}

func TestSearchLimitCapsResultCount(t *testing.T) {
	idx := New(1, 0)
	idx.SetRoot("C:", 5, `C:\`)
	idx.Load([]FileRecord{
		{Volume: "C:", ID: 5, ParentID: 5},
		{Volume: "C:", ID: 30, ParentID: 5, Name: "a.txt"},
		{Volume: "C:", ID: 31, ParentID: 5, Name: "b.txt"},
	})

	m := mustMatcher(t, "")
	rows, err := idx.Search(context.Background(), m, 1, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
