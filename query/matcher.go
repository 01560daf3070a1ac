package query

import (
	"regexp"
	"strings"

	"github.com/padiauj/glint/internal/exthash"
	"github.com/padiauj/glint/internal/glinterr"
)

// Candidate is the minimal record shape a compiled Matcher tests against.
// The index package's shard-local records satisfy this via a small adapter
// so the matcher has no dependency on the index's storage layout.
type Candidate struct {
	Name    string
	Path    string // full reconstructed path; resolved by the caller before matching
	IsDir   bool
	ExtHash uint64
}

// preFilter is the cheap stage (spec §4.5): extension hash, type bit, and
// path-prefix length check. It never allocates and never does string
// comparisons against the candidate's name.
type preFilter struct {
	extHashes map[uint64]struct{} // nil means "no extension filter"
	wantType  TypeFilter
	prefixLen int // if > 0, candidate path must be at least this long
	prefix    string
}

func (f *preFilter) pass(c Candidate) bool {
	if f.extHashes != nil {
		if _, ok := f.extHashes[c.ExtHash]; !ok {
			return false
		}
	}
	switch f.wantType {
	case TypeFile:
		if c.IsDir {
			return false
		}
	case TypeDir:
		if !c.IsDir {
			return false
		}
	}
	if f.prefixLen > 0 && len(c.Path) < f.prefixLen {
		return false
	}
	return true
}

// expensiveTerm is the costly per-candidate stage: substring, glob, or
// regex, each applied to either Name or Path depending on MatchPath.
type expensiveTerm interface {
	match(c Candidate) bool
}

type substringMatcher struct {
	needle    string // already lower-cased
	matchPath bool
}

func (m *substringMatcher) match(c Candidate) bool {
	target := c.Name
	if m.matchPath {
		target = c.Path
	}
	return strings.Contains(strings.ToLower(target), m.needle)
}

type globMatcher struct {
	pattern   string
	matchPath bool
}

func (m *globMatcher) match(c Candidate) bool {
	target := c.Name
	if m.matchPath {
		target = c.Path
	}
	return globMatch(strings.ToLower(m.pattern), strings.ToLower(target))
}

// globMatch implements `*`/`?` glob matching without regex backtracking:
// a standard two-pointer scan with a single backtrack point (spec §4.5:
// "glob matchers without regex backtracking where possible"), O(n*m) worst
// case but with none of RE2's state-machine construction overhead for the
// overwhelmingly common single-`*` case.
func globMatch(pattern, name string) bool {
	var pIdx, nIdx, star, matched int
	star = -1
	for nIdx < len(name) {
		if pIdx < len(pattern) && (pattern[pIdx] == '?' || pattern[pIdx] == name[nIdx]) {
			pIdx++
			nIdx++
			continue
		}
		if pIdx < len(pattern) && pattern[pIdx] == '*' {
			star = pIdx
			matched = nIdx
			pIdx++
			continue
		}
		if star != -1 {
			pIdx = star + 1
			matched++
			nIdx = matched
			continue
		}
		return false
	}
	for pIdx < len(pattern) && pattern[pIdx] == '*' {
		pIdx++
	}
	return pIdx == len(pattern)
}

type regexMatcher struct {
	re        *regexp.Regexp
	matchPath bool
}

func (m *regexMatcher) match(c Candidate) bool {
	target := c.Name
	if m.matchPath {
		target = c.Path
	}
	return m.re.MatchString(target)
}

// Matcher is a compiled query: a cheap pre-filter plus the remaining
// expensive per-candidate terms, all implicitly AND-ed (spec §4.5).
type Matcher struct {
	pre   preFilter
	terms []expensiveTerm
}

// Matches reports whether c satisfies every term. Index shards call this
// once per record during a scan (spec §4.6).
func (m *Matcher) Matches(c Candidate) bool {
	if !m.pre.pass(c) {
		return false
	}
	for _, t := range m.terms {
		if !t.match(c) {
			return false
		}
	}
	return true
}

// Compile turns an AST into a Matcher. Regex terms are the only ones that
// can fail to compile; a bad pattern surfaces as InvalidQuery.
func Compile(ast *AST) (*Matcher, error) {
	m := &Matcher{pre: preFilter{wantType: TypeAny}}

	for _, term := range ast.Terms {
		switch term.Kind {
		case TermExtSet:
			if m.pre.extHashes == nil {
				m.pre.extHashes = make(map[uint64]struct{}, len(term.Extensions))
			}
			for _, ext := range term.Extensions {
				m.pre.extHashes[exthash.OfExt(ext)] = struct{}{}
			}

		case TermTypeFilter:
			m.pre.wantType = term.Type

		case TermPathPrefix:
			m.pre.prefixLen = len(term.Prefix)
			m.pre.prefix = term.Prefix
			m.terms = append(m.terms, &pathPrefixMatcher{prefix: strings.ToLower(term.Prefix)})

		case TermLiteral:
			m.terms = append(m.terms, &substringMatcher{
				needle:    strings.ToLower(term.Text),
				matchPath: term.MatchPath,
			})

		case TermWildcard:
			m.terms = append(m.terms, &globMatcher{pattern: term.Text, matchPath: term.MatchPath})

		case TermRegex:
			re, err := regexp.Compile(term.Text)
			if err != nil {
				return nil, glinterr.Wrapf(glinterr.InvalidQuery, err, "compile regex %q", term.Text)
			}
			m.terms = append(m.terms, &regexMatcher{re: re, matchPath: term.MatchPath})
		}
	}

	return m, nil
}

type pathPrefixMatcher struct {
	prefix string
}

func (m *pathPrefixMatcher) match(c Candidate) bool {
	return strings.HasPrefix(strings.ToLower(c.Path), m.prefix)
}
