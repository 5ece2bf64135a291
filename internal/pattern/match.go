package pattern

import (
	"context"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"patchsmith/internal/cst"
	"patchsmith/internal/logging"
)

// Match is one occurrence of a pattern in a source file. Captures map
// metavariable names to the byte spans they bound; a sequence variable
// that matched nothing carries a span with Start == End == -1.
type Match struct {
	Start    int
	End      int
	Text     string
	Captures map[string]cst.Span
}

// Span returns the matched region as a cst.Span.
func (m Match) Span() cst.Span {
	return cst.Span{Start: m.Start, End: m.End, Text: m.Text}
}

// FindAll returns every occurrence of the pattern in the source, in
// document order. Nested occurrences are all reported.
func (p *Pattern) FindAll(s *cst.Source) []Match {
	return p.findWithin(s, 0, len(s.Bytes()))
}

// FindInRange returns occurrences fully contained in [start, end).
func (p *Pattern) FindInRange(s *cst.Source, start, end int) []Match {
	return p.findWithin(s, start, end)
}

// FindUnique returns the single occurrence of the pattern, failing
// with cst.NoMatchError or cst.AmbiguousMatchError otherwise.
func (p *Pattern) FindUnique(s *cst.Source) (Match, error) {
	matches := p.FindAll(s)
	switch len(matches) {
	case 0:
		return Match{}, &cst.NoMatchError{Query: p.src}
	case 1:
		return matches[0], nil
	default:
		return Match{}, &cst.AmbiguousMatchError{Query: p.src, Count: len(matches)}
	}
}

// FindUniqueInRange is FindUnique restricted to [start, end).
func (p *Pattern) FindUniqueInRange(s *cst.Source, start, end int) (Match, error) {
	matches := p.findWithin(s, start, end)
	switch len(matches) {
	case 0:
		return Match{}, &cst.NoMatchError{Query: p.src}
	case 1:
		return matches[0], nil
	default:
		return Match{}, &cst.AmbiguousMatchError{Query: p.src, Count: len(matches)}
	}
}

// Has reports whether the pattern occurs at least once.
func (p *Pattern) Has(s *cst.Source) bool {
	return len(p.FindAll(s)) > 0
}

// FindInConstruct restricts matching to the span of a located
// construct, e.g. one function body inside a larger file.
func FindInConstruct(ctx context.Context, s *cst.Source, target cst.Target, p *Pattern) ([]Match, error) {
	span, err := cst.Locate(ctx, s.Bytes(), target)
	if err != nil {
		return nil, err
	}
	return p.FindInRange(s, span.Start, span.End), nil
}

func (p *Pattern) findWithin(s *cst.Source, start, end int) []Match {
	timer := logging.StartTimer(logging.CategoryPattern, "find")
	defer timer.Stop()

	var out []Match
	if len(p.roots) == 1 {
		p.walkSingle(s, s.Root(), start, end, &out)
	} else {
		p.walkSequence(s, s.Root(), start, end, &out)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	logging.PatternDebug("pattern %q matched %d time(s)", p.src, len(out))
	return out
}

func (p *Pattern) walkSingle(s *cst.Source, n *sitter.Node, start, end int, out *[]Match) {
	if n == nil {
		return
	}
	if int(n.EndByte()) <= start || int(n.StartByte()) >= end {
		return
	}
	if n.IsNamed() && int(n.StartByte()) >= start && int(n.EndByte()) <= end {
		m := newMatcher(p, s)
		if m.matchNode(p.roots[0], n) {
			*out = append(*out, m.materialize(n, n))
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		p.walkSingle(s, n.Child(i), start, end, out)
	}
}

// walkSequence matches a multi-item pattern against contiguous runs of
// named siblings. The longest run starting at each position wins.
func (p *Pattern) walkSequence(s *cst.Source, n *sitter.Node, start, end int, out *[]Match) {
	if n == nil {
		return
	}
	if int(n.EndByte()) <= start || int(n.StartByte()) >= end {
		return
	}
	kids := filteredChildren(n)
	for lo := 0; lo < len(kids); lo++ {
		if int(kids[lo].StartByte()) < start {
			continue
		}
		for hi := len(kids); hi > lo; hi-- {
			if int(kids[hi-1].EndByte()) > end {
				continue
			}
			m := newMatcher(p, s)
			if m.matchSeq(p.roots, kids[lo:hi]) {
				*out = append(*out, m.materialize(kids[lo], kids[hi-1]))
				break
			}
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		p.walkSequence(s, n.Child(i), start, end, out)
	}
}

type matcher struct {
	pat      *Pattern
	src      []byte
	bindings map[string][]*sitter.Node
}

func newMatcher(p *Pattern, s *cst.Source) *matcher {
	return &matcher{pat: p, src: s.Bytes(), bindings: make(map[string][]*sitter.Node)}
}

func (m *matcher) materialize(first, last *sitter.Node) Match {
	start, end := int(first.StartByte()), int(last.EndByte())
	caps := make(map[string]cst.Span, len(m.bindings))
	for name, nodes := range m.bindings {
		caps[name] = m.captureSpan(nodes)
	}
	return Match{
		Start:    start,
		End:      end,
		Text:     string(m.src[start:end]),
		Captures: caps,
	}
}

func (m *matcher) captureSpan(nodes []*sitter.Node) cst.Span {
	if len(nodes) == 0 {
		return cst.Span{Start: -1, End: -1}
	}
	start := int(nodes[0].StartByte())
	end := int(nodes[len(nodes)-1].EndByte())
	return cst.Span{Start: start, End: end, Text: string(m.src[start:end])}
}

// matchNode compares one pattern node against one target node.
func (m *matcher) matchNode(pn, tn *sitter.Node) bool {
	if name, kind, ok := m.pat.asMetavar(pn); ok {
		switch kind {
		case varAnon:
			return tn.IsNamed()
		case varSingle:
			if !tn.IsNamed() {
				return false
			}
			return m.bind(name, []*sitter.Node{tn})
		case varMulti:
			// A sequence variable in single-node position matches a
			// sequence of one.
			return m.bind(name, []*sitter.Node{tn})
		}
	}
	// An expression pattern that parsed as a statement without a
	// semicolon still matches a bare tail expression.
	if pn.Type() == "expression_statement" && pn.ChildCount() == 1 && tn.Type() != "expression_statement" {
		return m.matchNode(pn.Child(0), tn)
	}
	if pn.Type() != tn.Type() {
		return false
	}
	pk := filteredChildren(pn)
	tk := filteredChildren(tn)
	if len(pk) == 0 && len(tk) == 0 {
		return m.pat.text(pn) == tn.Content(m.src)
	}
	return m.matchSeq(pk, tk)
}

// matchSeq aligns a pattern child list with a target child list,
// backtracking over how many siblings each sequence variable consumes.
func (m *matcher) matchSeq(ps, ts []*sitter.Node) bool {
	if len(ps) == 0 {
		return len(ts) == 0
	}
	head := ps[0]
	if name, kind, ok := m.pat.asMetavar(head); ok && kind == varMulti {
		// Greedy: prefer the longest consumption first so trailing
		// sequence variables swallow everything they can.
		for take := len(ts); take >= 0; take-- {
			saved := m.snapshot()
			if m.bind(name, ts[:take]) && m.matchSeq(ps[1:], ts[take:]) {
				return true
			}
			m.restore(saved)
		}
		return false
	}
	if len(ts) == 0 {
		return false
	}
	saved := m.snapshot()
	if m.matchNode(head, ts[0]) && m.matchSeq(ps[1:], ts[1:]) {
		return true
	}
	m.restore(saved)
	return false
}

// bind records a capture, enforcing that repeated occurrences of the
// same metavariable bound structurally equal nodes.
func (m *matcher) bind(name string, nodes []*sitter.Node) bool {
	prev, seen := m.bindings[name]
	if !seen {
		m.bindings[name] = nodes
		return true
	}
	if len(prev) != len(nodes) {
		return false
	}
	for i := range prev {
		if !m.structEqual(prev[i], nodes[i]) {
			return false
		}
	}
	return true
}

func (m *matcher) snapshot() map[string][]*sitter.Node {
	saved := make(map[string][]*sitter.Node, len(m.bindings))
	for k, v := range m.bindings {
		saved[k] = v
	}
	return saved
}

func (m *matcher) restore(saved map[string][]*sitter.Node) {
	m.bindings = saved
}

// structEqual compares two target nodes ignoring comments and
// whitespace. Leaves compare by text.
func (m *matcher) structEqual(a, b *sitter.Node) bool {
	if a.Type() != b.Type() {
		return false
	}
	ac := filteredChildren(a)
	bc := filteredChildren(b)
	if len(ac) != len(bc) {
		return false
	}
	if len(ac) == 0 {
		return a.Content(m.src) == b.Content(m.src)
	}
	for i := range ac {
		if !m.structEqual(ac[i], bc[i]) {
			return false
		}
	}
	return true
}

// filteredChildren returns all children except comments, which both
// sides of a match are allowed to disagree on.
func filteredChildren(n *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, int(n.ChildCount()))
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "line_comment", "block_comment":
			continue
		}
		out = append(out, c)
	}
	return out
}
