// Package cst parses Rust source into concrete syntax trees and builds
// the low-level span machinery on top of them: tree-sitter queries, the
// structural locator for named constructs, and parse validation of
// edited buffers and replacement snippets.
package cst

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// Parser wraps a tree-sitter parser configured for the Rust grammar.
// Instances are reusable but not safe for concurrent use; use the
// package pool for shared access.
type Parser struct {
	p *sitter.Parser
}

// NewParser creates a parser for Rust source.
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(rust.GetLanguage())
	return &Parser{p: p}
}

// Close releases the underlying parser.
func (p *Parser) Close() {
	p.p.Close()
}

// Parse produces a Source owning both the input bytes and the tree.
func (p *Parser) Parse(ctx context.Context, src []byte) (*Source, error) {
	tree, err := p.p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse rust source: %w", err)
	}
	return &Source{src: src, tree: tree}, nil
}

// Source couples a parsed tree with the bytes it was parsed from. The
// tree borrows the bytes, so the two are acquired and released together.
type Source struct {
	src  []byte
	tree *sitter.Tree
}

// Close releases the tree. The Source must not be used afterwards.
func (s *Source) Close() {
	if s.tree != nil {
		s.tree.Close()
		s.tree = nil
	}
}

// Root returns the root node.
func (s *Source) Root() *sitter.Node {
	return s.tree.RootNode()
}

// Bytes returns the source buffer.
func (s *Source) Bytes() []byte {
	return s.src
}

// Text returns the source text covered by a node.
func (s *Source) Text(n *sitter.Node) string {
	return n.Content(s.src)
}

// HasErrors reports whether the tree contains error or missing nodes.
func (s *Source) HasErrors() bool {
	return s.Root().HasError()
}

const (
	maxErrorLocations = 50
	maxErrorDepth     = 1000
	errorContext      = 20
)

// ErrorLocations walks the tree and describes every error and missing
// node, capped so heavily malformed input stays cheap to report.
func (s *Source) ErrorLocations() []ErrorLocation {
	var out []ErrorLocation
	s.collectErrors(s.Root(), &out, 0)
	return out
}

func (s *Source) collectErrors(n *sitter.Node, out *[]ErrorLocation, depth int) {
	if depth > maxErrorDepth || len(*out) >= maxErrorLocations {
		return
	}
	if n.IsError() || n.IsMissing() {
		start := int(n.StartByte())
		point := n.StartPoint()
		lo := start - errorContext
		if lo < 0 {
			lo = 0
		}
		hi := int(n.EndByte()) + errorContext
		if hi > len(s.src) {
			hi = len(s.src)
		}
		*out = append(*out, ErrorLocation{
			Offset:  start,
			Line:    int(point.Row) + 1,
			Column:  int(point.Column),
			Missing: n.IsMissing(),
			Kind:    n.Type(),
			Context: string(s.src[lo:hi]),
		})
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		s.collectErrors(n.Child(i), out, depth+1)
	}
}
