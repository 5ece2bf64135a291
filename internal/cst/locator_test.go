package cst

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const locatorSource = `use std::collections::HashMap;

const MAX_DEPTH: usize = 16;

static GLOBAL: u8 = 0;

/// Resolver entry point.
#[inline]
pub fn resolve(input: &str) -> String {
    input.to_string()
}

fn helper() {}

pub struct Point {
    x: i32,
    y: i32,
}

enum Shape {
    Circle,
    Square,
}

impl Point {
    fn new() -> Self {
        Point { x: 0, y: 0 }
    }
}

impl Clone for Point {
    fn clone(&self) -> Self {
        Point { x: self.x, y: self.y }
    }
}

mod inner {
    pub fn hidden() {}
}
`

func locate(t *testing.T, target Target) (Span, error) {
	t.Helper()
	return Locate(context.Background(), []byte(locatorSource), target)
}

func TestLocate_Selectors(t *testing.T) {
	tests := []struct {
		name       string
		target     Target
		wantPrefix string
		wantSuffix string
	}{
		{
			name:       "function",
			target:     Target{Kind: TargetFunction, Name: "helper"},
			wantPrefix: "fn helper()",
			wantSuffix: "{}",
		},
		{
			name:       "struct",
			target:     Target{Kind: TargetStruct, Name: "Point"},
			wantPrefix: "pub struct Point",
			wantSuffix: "}",
		},
		{
			name:       "enum",
			target:     Target{Kind: TargetEnum, Name: "Shape"},
			wantPrefix: "enum Shape",
			wantSuffix: "}",
		},
		{
			name:       "const",
			target:     Target{Kind: TargetConst, Name: "MAX_DEPTH"},
			wantPrefix: "const MAX_DEPTH",
			wantSuffix: ";",
		},
		{
			name:       "static",
			target:     Target{Kind: TargetStatic, Name: "GLOBAL"},
			wantPrefix: "static GLOBAL",
			wantSuffix: ";",
		},
		{
			name:       "module",
			target:     Target{Kind: TargetModule, Name: "inner"},
			wantPrefix: "mod inner",
			wantSuffix: "}",
		},
		{
			name:       "use declaration",
			target:     Target{Kind: TargetUse, Name: "std::collections::HashMap"},
			wantPrefix: "use std::collections::HashMap",
			wantSuffix: ";",
		},
		{
			name:       "trait impl",
			target:     Target{Kind: TargetImpl, Name: "Point", Trait: "Clone"},
			wantPrefix: "impl Clone for Point",
			wantSuffix: "}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, err := locate(t, tt.target)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(span.Text, tt.wantPrefix),
				"span %q should start with %q", span.Text, tt.wantPrefix)
			assert.True(t, strings.HasSuffix(span.Text, tt.wantSuffix),
				"span %q should end with %q", span.Text, tt.wantSuffix)
			assert.Equal(t, locatorSource[span.Start:span.End], span.Text)
		})
	}
}

func TestLocate_IncludesAttributesAndDocs(t *testing.T) {
	span, err := locate(t, Target{Kind: TargetFunction, Name: "resolve"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(span.Text, "/// Resolver entry point."),
		"span should start at the doc comment, got %q", span.Text)
	assert.Contains(t, span.Text, "#[inline]")
	assert.True(t, strings.HasSuffix(span.Text, "}"))
}

func TestLocate_NoMatch(t *testing.T) {
	_, err := locate(t, Target{Kind: TargetFunction, Name: "vanished"})
	var nm *NoMatchError
	require.ErrorAs(t, err, &nm)
}

func TestLocate_AmbiguousImpl(t *testing.T) {
	// Both the inherent impl and the Clone impl target Point.
	_, err := locate(t, Target{Kind: TargetImpl, Name: "Point"})
	var am *AmbiguousMatchError
	require.ErrorAs(t, err, &am)
	assert.Equal(t, 2, am.Count)
}

func TestLocate_AmbiguousFunctions(t *testing.T) {
	src := "fn f() {}\nmod a {\n    fn f() {}\n}\n"
	_, err := Locate(context.Background(), []byte(src), Target{Kind: TargetFunction, Name: "f"})
	var am *AmbiguousMatchError
	require.ErrorAs(t, err, &am)
	assert.Equal(t, 2, am.Count)
}

func TestLocateIn_RestrictsToEnclosing(t *testing.T) {
	src := []byte("fn f() {}\nmod a {\n    fn g() {}\n}\n")
	ctx := context.Background()

	mod, err := Locate(ctx, src, Target{Kind: TargetModule, Name: "a"})
	require.NoError(t, err)

	inside, err := LocateIn(ctx, src, Target{Kind: TargetFunction, Name: "g"}, mod)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(inside.Text, "fn g()"))

	_, err = LocateIn(ctx, src, Target{Kind: TargetFunction, Name: "f"}, mod)
	var nm *NoMatchError
	require.ErrorAs(t, err, &nm)
}

func TestLocateIn_DisambiguatesByScope(t *testing.T) {
	src := []byte("fn f() { top(); }\nmod a {\n    fn f() { nested(); }\n}\n")
	ctx := context.Background()

	_, err := Locate(ctx, src, Target{Kind: TargetFunction, Name: "f"})
	var am *AmbiguousMatchError
	require.ErrorAs(t, err, &am)

	mod, err := Locate(ctx, src, Target{Kind: TargetModule, Name: "a"})
	require.NoError(t, err)

	span, err := LocateIn(ctx, src, Target{Kind: TargetFunction, Name: "f"}, mod)
	require.NoError(t, err)
	assert.Contains(t, span.Text, "nested()")
}

func TestQuery_FindUniqueWithPredicates(t *testing.T) {
	s := parseSource(t, locatorSource)

	q, err := CompileQuery(`((function_item name: (identifier) @name) @fn (#eq? @name "helper"))`)
	require.NoError(t, err)
	defer q.Close()

	m, err := q.FindUnique(s)
	require.NoError(t, err)
	assert.Equal(t, "fn helper() {}", m.Text)
	assert.Equal(t, "helper", m.Captures["name"].Text)
}

func TestQuery_MatchPredicate(t *testing.T) {
	s := parseSource(t, locatorSource)

	q, err := CompileQuery(`((function_item name: (identifier) @name) @fn (#match? @name "^h"))`)
	require.NoError(t, err)
	defer q.Close()

	matches := q.Matches(s)
	// helper and inner::hidden both start with h.
	require.Len(t, matches, 2)
}

func TestQuery_CompileError(t *testing.T) {
	_, err := CompileQuery("((unbalanced")
	require.Error(t, err)
}
