package cst

import (
	"fmt"
	"strings"
)

// ErrorLocation pinpoints one error or missing node in a parse.
type ErrorLocation struct {
	Offset  int
	Line    int
	Column  int
	Missing bool
	Kind    string
	Context string
}

func (l ErrorLocation) String() string {
	if l.Missing {
		return fmt.Sprintf("%d:%d missing %q near %q", l.Line, l.Column, l.Kind, l.Context)
	}
	return fmt.Sprintf("%d:%d syntax error near %q", l.Line, l.Column, l.Context)
}

func formatLocations(locs []ErrorLocation) string {
	parts := make([]string, len(locs))
	for i, l := range locs {
		parts[i] = l.String()
	}
	return strings.Join(parts, "; ")
}

// NoMatchError reports a locator query with zero matches.
type NoMatchError struct {
	Query string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no match for %s", e.Query)
}

// AmbiguousMatchError reports a locator query with more than one match.
type AmbiguousMatchError struct {
	Query string
	Count int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous match for %s: %d matches, expected exactly one", e.Query, e.Count)
}

// SyntaxErrors reports parse errors in a source buffer.
type SyntaxErrors struct {
	Locations []ErrorLocation
}

func (e *SyntaxErrors) Error() string {
	return fmt.Sprintf("source has %d parse errors: %s", len(e.Locations), formatLocations(e.Locations))
}

// ParseIntroducedError reports parse errors present in an edited buffer
// but absent from its pre-image.
type ParseIntroducedError struct {
	Locations []ErrorLocation
}

func (e *ParseIntroducedError) Error() string {
	return fmt.Sprintf("edit introduces %d parse errors: %s", len(e.Locations), formatLocations(e.Locations))
}

// SnippetError reports replacement text that does not parse as the
// syntactic category it is meant to occupy.
type SnippetError struct {
	Kind      SnippetKind
	Locations []ErrorLocation
}

func (e *SnippetError) Error() string {
	return fmt.Sprintf("snippet does not parse as %s: %s", e.Kind, formatLocations(e.Locations))
}
