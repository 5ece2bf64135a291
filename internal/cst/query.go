package cst

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// Span is a half-open byte interval in a source buffer together with
// the text it covers.
type Span struct {
	Start int
	End   int
	Text  string
}

// Query is a compiled tree-sitter S-expression query. Predicates
// (#eq?, #match?) are honored during matching.
type Query struct {
	q    *sitter.Query
	expr string
}

// CompileQuery compiles an S-expression query against the Rust grammar.
func CompileQuery(expr string) (*Query, error) {
	q, err := sitter.NewQuery([]byte(expr), rust.GetLanguage())
	if err != nil {
		return nil, fmt.Errorf("compile query %q: %w", expr, err)
	}
	return &Query{q: q, expr: expr}, nil
}

// Close releases the compiled query.
func (q *Query) Close() {
	q.q.Close()
}

// Expr returns the query source.
func (q *Query) Expr() string {
	return q.expr
}

// QueryMatch is one query result: the overall span covering every
// capture, plus the individual captures by name.
type QueryMatch struct {
	Span
	Captures map[string]Span
}

// Matches runs the query over the whole tree. The overall span of each
// match stretches from the earliest capture start to the latest capture
// end.
func (q *Query) Matches(s *Source) []QueryMatch {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q.q, s.Root())

	var out []QueryMatch
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, s.src)
		if m == nil || len(m.Captures) == 0 {
			continue
		}

		start, end := -1, -1
		caps := make(map[string]Span, len(m.Captures))
		for _, c := range m.Captures {
			cs, ce := int(c.Node.StartByte()), int(c.Node.EndByte())
			if start == -1 || cs < start {
				start = cs
			}
			if ce > end {
				end = ce
			}
			caps[q.q.CaptureNameForId(c.Index)] = Span{Start: cs, End: ce, Text: s.Text(c.Node)}
		}
		out = append(out, QueryMatch{
			Span:     Span{Start: start, End: end, Text: string(s.src[start:end])},
			Captures: caps,
		})
	}
	return out
}

// FindUnique runs the query and requires exactly one match.
func (q *Query) FindUnique(s *Source) (QueryMatch, error) {
	matches := q.Matches(s)
	switch len(matches) {
	case 0:
		return QueryMatch{}, &NoMatchError{Query: q.expr}
	case 1:
		return matches[0], nil
	default:
		return QueryMatch{}, &AmbiguousMatchError{Query: q.expr, Count: len(matches)}
	}
}

// captureNodes returns the node bound to the named capture in each
// match. Used by the locator, which needs tree access for span
// extension.
func (q *Query) captureNodes(s *Source, name string) []*sitter.Node {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q.q, s.Root())

	var out []*sitter.Node
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, s.src)
		if m == nil || len(m.Captures) == 0 {
			continue
		}
		for _, c := range m.Captures {
			if q.q.CaptureNameForId(c.Index) == name {
				out = append(out, c.Node)
			}
		}
	}
	return out
}
