// Package pattern implements structural pattern matching over Rust
// syntax trees. A pattern is a source fragment with metavariables:
// $NAME binds one named node, $$$NAME binds a contiguous sequence of
// sibling nodes, and $_ matches one node without binding. Matching is
// CST-structural: whitespace and comments never have to align.
package pattern

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"patchsmith/internal/cst"
)

// Metavariables are rewritten onto this rune before parsing; it lexes
// as a Rust identifier, so a pattern stays grammatical source text.
const expando = "µ" // µ

var metavarRe = regexp.MustCompile(`\$(\$\$)?([A-Z_][A-Z0-9_]*)`)

type varKind int

const (
	varSingle varKind = iota + 1
	varMulti
	varAnon
)

// CompileError reports a pattern that does not parse as Rust source
// once its metavariables are rewritten.
type CompileError struct {
	Pattern   string
	Locations []cst.ErrorLocation
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("pattern %q does not parse", e.Pattern)
}

// MissingCaptureError reports a replace-capture against a name the
// pattern never bound.
type MissingCaptureError struct {
	Name string
}

func (e *MissingCaptureError) Error() string {
	return fmt.Sprintf("pattern has no capture named %q", e.Name)
}

// Pattern is a compiled structural pattern. Compiled patterns are
// immutable and may be shared; see Get for the process-wide cache.
type Pattern struct {
	src    string
	psrc   []byte
	parsed *cst.Source
	roots  []*sitter.Node
}

// Compile parses the pattern. The fragment may be one or more items,
// statements, a bare expression, or a type; each form is attempted in
// turn until one parses cleanly. Multi-item patterns match a
// contiguous run of siblings.
func Compile(pat string) (*Pattern, error) {
	rewritten := metavarRe.ReplaceAllStringFunc(pat, func(tok string) string {
		sub := metavarRe.FindStringSubmatch(tok)
		if sub[1] != "" {
			return expando + expando + expando + sub[2]
		}
		return expando + sub[2]
	})

	var firstLocs []cst.ErrorLocation
	for i, attempt := range compileAttempts {
		psrc := []byte(attempt.wrap(rewritten))
		parsed, err := cst.Parse(context.Background(), psrc)
		if err != nil {
			return nil, fmt.Errorf("compile pattern: %w", err)
		}
		if parsed.HasErrors() {
			if i == 0 {
				firstLocs = parsed.ErrorLocations()
			}
			parsed.Close()
			continue
		}
		p := &Pattern{src: pat, psrc: psrc, parsed: parsed}
		p.roots = attempt.roots(parsed)
		if len(p.roots) == 0 {
			parsed.Close()
			continue
		}
		return p, nil
	}
	return nil, &CompileError{Pattern: pat, Locations: firstLocs}
}

// compileAttempts mirrors the snippet categories: a fragment that is
// not already a well-formed item or statement list is retried inside
// an expression, statement, or type alias wrapper.
var compileAttempts = []struct {
	wrap  func(string) string
	roots func(*cst.Source) []*sitter.Node
}{
	{
		wrap:  func(s string) string { return s },
		roots: topLevelRoots,
	},
	{
		wrap:  func(s string) string { return "fn __pattern__() { let _ = (" + s + "); }" },
		roots: expressionRoot,
	},
	{
		wrap:  func(s string) string { return "fn __pattern__() {\n" + s + "\n}" },
		roots: statementRoots,
	},
	{
		wrap:  func(s string) string { return "type __Pattern__ = " + s + ";" },
		roots: typeRoot,
	},
}

// topLevelRoots strips the source_file wrapper. A pattern written with
// a trailing semicolon keeps its expression_statement node, so it
// matches whole statements, semicolon included; a bare expression
// never parses cleanly here and falls through to the expression
// wrapper instead.
func topLevelRoots(parsed *cst.Source) []*sitter.Node {
	root := parsed.Root()
	named := make([]*sitter.Node, 0, int(root.NamedChildCount()))
	for i := 0; i < int(root.NamedChildCount()); i++ {
		named = append(named, root.NamedChild(i))
	}
	return named
}

func wrapperBody(parsed *cst.Source) *sitter.Node {
	root := parsed.Root()
	if root.NamedChildCount() != 1 {
		return nil
	}
	fn := root.NamedChild(0)
	if fn.Type() != "function_item" {
		return nil
	}
	return fn.ChildByFieldName("body")
}

func expressionRoot(parsed *cst.Source) []*sitter.Node {
	body := wrapperBody(parsed)
	if body == nil || body.NamedChildCount() != 1 {
		return nil
	}
	let := body.NamedChild(0)
	if let.Type() != "let_declaration" {
		return nil
	}
	val := let.ChildByFieldName("value")
	if val == nil || val.Type() != "parenthesized_expression" || val.NamedChildCount() != 1 {
		return nil
	}
	return []*sitter.Node{val.NamedChild(0)}
}

func statementRoots(parsed *cst.Source) []*sitter.Node {
	body := wrapperBody(parsed)
	if body == nil || body.NamedChildCount() == 0 {
		return nil
	}
	out := make([]*sitter.Node, 0, int(body.NamedChildCount()))
	for i := 0; i < int(body.NamedChildCount()); i++ {
		out = append(out, body.NamedChild(i))
	}
	return out
}

func typeRoot(parsed *cst.Source) []*sitter.Node {
	root := parsed.Root()
	if root.NamedChildCount() != 1 {
		return nil
	}
	item := root.NamedChild(0)
	if item.Type() != "type_item" {
		return nil
	}
	ty := item.ChildByFieldName("type")
	if ty == nil {
		return nil
	}
	return []*sitter.Node{ty}
}

// Close releases the pattern's tree. Cached patterns are shared and
// must not be closed by callers.
func (p *Pattern) Close() {
	if p.parsed != nil {
		p.parsed.Close()
		p.parsed = nil
	}
}

// Source returns the original pattern text.
func (p *Pattern) Source() string {
	return p.src
}

func (p *Pattern) text(n *sitter.Node) string {
	return n.Content(p.psrc)
}

// asMetavar reports whether a pattern node stands for a metavariable.
// Wrapper punctuation (a trailing semicolon from statement position)
// is tolerated.
func (p *Pattern) asMetavar(n *sitter.Node) (string, varKind, bool) {
	txt := strings.TrimSpace(p.text(n))
	txt = strings.TrimSuffix(txt, ";")
	txt = strings.TrimSpace(txt)
	return metavarToken(txt)
}

func metavarToken(txt string) (string, varKind, bool) {
	if !strings.HasPrefix(txt, expando) {
		return "", 0, false
	}
	kind := varSingle
	name := strings.TrimPrefix(txt, expando)
	if strings.HasPrefix(name, expando+expando) {
		kind = varMulti
		name = strings.TrimPrefix(name, expando+expando)
	}
	if name == "_" {
		if kind == varMulti {
			return "", 0, false
		}
		return name, varAnon, true
	}
	if !isMetaName(name) {
		return "", 0, false
	}
	return name, kind, true
}

func isMetaName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
