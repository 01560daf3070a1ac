package query

import (
	"strings"

	"github.com/padiauj/glint/internal/glinterr"
)

type token struct {
	text   string
	offset int
}

func tokenize(input string) []token {
	var tokens []token
	start := -1
	for i, r := range input {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if start >= 0 {
				tokens = append(tokens, token{text: input[start:i], offset: start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{text: input[start:], offset: start})
	}
	return tokens
}

// Parse compiles query text into an AST per spec §4.5's grammar. An empty
// query parses to an empty AST without error; a Matcher compiled from it
// accepts every candidate, and glint.Core.Query returns no rows for it.
func Parse(input string) (*AST, error) {
	tokens := tokenize(input)
	ast := &AST{}

	pathShift := false
	for _, tok := range tokens {
		text := tok.text
		switch {
		case text == "path:":
			pathShift = true
			continue

		case strings.HasPrefix(text, "ext:"):
			list := strings.TrimPrefix(text, "ext:")
			if list == "" {
				return nil, glinterr.InvalidQueryAt(tok.offset, "ext: requires at least one extension")
			}
			var exts []string
			for _, e := range strings.Split(list, ",") {
				e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
				if e != "" {
					exts = append(exts, e)
				}
			}
			ast.Terms = append(ast.Terms, Term{Kind: TermExtSet, Extensions: exts})

		case text == "file:":
			ast.Terms = append(ast.Terms, Term{Kind: TermTypeFilter, Type: TypeFile})

		case text == "dir:":
			ast.Terms = append(ast.Terms, Term{Kind: TermTypeFilter, Type: TypeDir})

		case strings.HasPrefix(text, "in:"):
			prefix := strings.TrimPrefix(text, "in:")
			if prefix == "" {
				return nil, glinterr.InvalidQueryAt(tok.offset, "in: requires a path prefix")
			}
			ast.Terms = append(ast.Terms, Term{Kind: TermPathPrefix, Prefix: prefix})

		case strings.HasPrefix(text, "r/") && len(text) >= 3 && strings.HasSuffix(text, "/"):
			pattern := text[2 : len(text)-1]
			ast.Terms = append(ast.Terms, Term{Kind: TermRegex, Text: pattern, MatchPath: pathShift})
			pathShift = false

		case strings.ContainsAny(text, "*?"):
			ast.Terms = append(ast.Terms, Term{Kind: TermWildcard, Text: text, MatchPath: pathShift})
			pathShift = false

		default:
			ast.Terms = append(ast.Terms, Term{Kind: TermLiteral, Text: text, MatchPath: pathShift})
			pathShift = false
		}
	}

	return ast, nil
}
