package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padiauj/glint/internal/exthash"
)

func compile(t *testing.T, q string) *Matcher {
	t.Helper()
	ast, err := Parse(q)
	require.NoError(t, err)
	m, err := Compile(ast)
	require.NoError(t, err)
	return m
}

func TestSubstringQuery(t *testing.T) {
	m := compile(t, "readme")

	assert.True(t, m.Matches(Candidate{Name: "README.md", Path: `C:\proj\README.md`}))
	assert.True(t, m.Matches(Candidate{Name: "readme.txt", Path: `C:\readme.txt`}))
	assert.False(t, m.Matches(Candidate{Name: "other.txt", Path: `C:\other.txt`}))
}

func TestWildcardQuery(t *testing.T) {
	star := compile(t, "*.rs")
	assert.True(t, star.Matches(Candidate{Name: "a.rs"}))
	assert.True(t, star.Matches(Candidate{Name: "ab.rs"}))
	assert.False(t, star.Matches(Candidate{Name: "a.txt"}))

	single := compile(t, "a?.rs")
	assert.False(t, single.Matches(Candidate{Name: "a.rs"}))
	assert.True(t, single.Matches(Candidate{Name: "ab.rs"}))
	assert.False(t, single.Matches(Candidate{Name: "abc.rs"}))
}

func TestExtensionFilter(t *testing.T) {
	m := compile(t, "config ext:toml,ini")

	mk := func(name string) Candidate {
		return Candidate{Name: name, ExtHash: exthash.Of(name)}
	}

	assert.True(t, m.Matches(mk("config.toml")))
	assert.True(t, m.Matches(mk("config.ini")))
	assert.False(t, m.Matches(mk("config.yaml")))
}

func TestTypeFilter(t *testing.T) {
	m := compile(t, "dir:")
	assert.True(t, m.Matches(Candidate{Name: "proj", IsDir: true}))
	assert.False(t, m.Matches(Candidate{Name: "proj", IsDir: false}))
}

func TestPathPrefixFilter(t *testing.T) {
	m := compile(t, `in:C:\proj`)
	assert.True(t, m.Matches(Candidate{Path: `C:\proj\README.md`}))
	assert.False(t, m.Matches(Candidate{Path: `C:\other\README.md`}))
}

func TestPathShiftAppliesToNextTermOnly(t *testing.T) {
	m := compile(t, `path: proj readme`)
	// "proj" matches the full path; "readme" is back to matching the name.
	assert.True(t, m.Matches(Candidate{Name: "readme.md", Path: `C:\proj\readme.md`}))
	assert.False(t, m.Matches(Candidate{Name: "other.md", Path: `C:\proj\other.md`}))
}

func TestRegexQuery(t *testing.T) {
	m := compile(t, `r/^test_.*\.go$/`)
	assert.True(t, m.Matches(Candidate{Name: "test_foo.go"}))
	assert.False(t, m.Matches(Candidate{Name: "foo_test.go"}))
}

func TestEmptyQueryMatchesEverything(t *testing.T) {
	m := compile(t, "")
	assert.True(t, m.Matches(Candidate{Name: "anything"}))
}

func TestEmptyQueryWithExtensionFilterMatchesByFilterAlone(t *testing.T) {
	m := compile(t, "ext:rs")
	assert.True(t, m.Matches(Candidate{Name: "main.rs", ExtHash: exthash.Of("main.rs")}))
	assert.False(t, m.Matches(Candidate{Name: "main.go", ExtHash: exthash.Of("main.go")}))
}

func TestInvalidRegexReturnsInvalidQuery(t *testing.T) {
	ast, err := Parse(`r/(unclosed/`)
	require.NoError(t, err)
	_, err = Compile(ast)
	require.Error(t, err)
}

func TestExtWithNoValueIsInvalidQuery(t *testing.T) {
	_, err := Parse("ext:")
	require.Error(t, err)
}
