package cst

import (
	"context"
	"fmt"
)

// SnippetKind is the syntactic category a replacement snippet must
// occupy at its destination.
type SnippetKind int

const (
	SnippetItem SnippetKind = iota + 1
	SnippetStatement
	SnippetExpression
	SnippetType
	SnippetFile
)

func (k SnippetKind) String() string {
	switch k {
	case SnippetItem:
		return "item"
	case SnippetStatement:
		return "statement"
	case SnippetExpression:
		return "expression"
	case SnippetType:
		return "type"
	case SnippetFile:
		return "file"
	default:
		return "unknown"
	}
}

// wrap embeds the snippet in a file-level construct that makes its
// category parse on its own.
func (k SnippetKind) wrap(snippet string) string {
	switch k {
	case SnippetStatement:
		return "fn __snippet__() {\n" + snippet + "\n}"
	case SnippetExpression:
		return "fn __snippet__() { let _ = (" + snippet + "); }"
	case SnippetType:
		return "type __Snippet__ = " + snippet + ";"
	default:
		return snippet
	}
}

// ValidateSyntax parses src and fails if the tree contains errors.
func ValidateSyntax(ctx context.Context, src []byte) error {
	s, err := Parse(ctx, src)
	if err != nil {
		return err
	}
	defer s.Close()
	if s.HasErrors() {
		return &SyntaxErrors{Locations: s.ErrorLocations()}
	}
	return nil
}

// ValidateSnippet checks that snippet parses as the given category.
func ValidateSnippet(ctx context.Context, snippet string, kind SnippetKind) error {
	wrapped := kind.wrap(snippet)
	s, err := Parse(ctx, []byte(wrapped))
	if err != nil {
		return err
	}
	defer s.Close()
	if s.HasErrors() {
		return &SnippetError{Kind: kind, Locations: s.ErrorLocations()}
	}
	return nil
}

// ValidateEdit parses the edited buffer and fails only on parse errors
// that were not already present in the original. Errors are compared by
// their surrounding context rather than by offset, since the edit
// shifts everything after it.
func ValidateEdit(ctx context.Context, original, edited []byte) error {
	es, err := Parse(ctx, edited)
	if err != nil {
		return err
	}
	defer es.Close()
	if !es.HasErrors() {
		return nil
	}
	editedErrs := es.ErrorLocations()

	os, err := Parse(ctx, original)
	if err != nil {
		return err
	}
	defer os.Close()

	known := map[string]int{}
	for _, l := range os.ErrorLocations() {
		known[errorKey(l)]++
	}

	var introduced []ErrorLocation
	for _, l := range editedErrs {
		k := errorKey(l)
		if known[k] > 0 {
			known[k]--
			continue
		}
		introduced = append(introduced, l)
	}
	if len(introduced) > 0 {
		return &ParseIntroducedError{Locations: introduced}
	}
	return nil
}

func errorKey(l ErrorLocation) string {
	return fmt.Sprintf("%v|%s|%s", l.Missing, l.Kind, l.Context)
}
