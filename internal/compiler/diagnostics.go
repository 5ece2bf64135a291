// Package compiler bridges cargo's JSON diagnostics and the edit
// system. It runs `cargo check --message-format=json`, collects
// error-level diagnostics whose spans fall inside the workspace, and
// turns machine-applicable suggestions plus a few well-understood
// error codes into edits.
package compiler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Applicability mirrors rustc's confidence grades for a suggested
// replacement. Only MachineApplicable suggestions are safe to apply
// without review.
type Applicability string

const (
	MachineApplicable Applicability = "MachineApplicable"
	MaybeIncorrect    Applicability = "MaybeIncorrect"
	HasPlaceholders   Applicability = "HasPlaceholders"
	Unspecified       Applicability = "Unspecified"
)

// Diagnostic is one error-level compiler message with the spans and
// suggestions pre-resolved against the workspace root.
type Diagnostic struct {
	// Code is the rustc error code ("E0063"), empty when the
	// compiler emitted none.
	Code    string
	Message string
	Level   string
	// Spans keeps only locations inside the workspace; stdlib,
	// registry, and generated paths are dropped during parsing.
	Spans       []Span
	Suggestions []Suggestion
	// Rendered is the human-readable report as rustc printed it.
	Rendered string
}

// Span is a source location with byte offsets into the file as the
// compiler saw it.
type Span struct {
	File        string
	ByteStart   int
	ByteEnd     int
	LineStart   int
	LineEnd     int
	ColumnStart int
	ColumnEnd   int
	Primary     bool
	// InMacro marks spans that sit inside a macro expansion, where
	// byte offsets do not correspond to on-disk text.
	InMacro bool
	// Text is the first source line the compiler attached, empty
	// when it attached none.
	Text string
}

// Suggestion is a compiler-proposed replacement for a byte range.
type Suggestion struct {
	File          string
	ByteStart     int
	ByteEnd       int
	Replacement   string
	Applicability Applicability
	Message       string
}

// HasCode reports whether the diagnostic carries the given error code.
func (d *Diagnostic) HasCode(code string) bool {
	return d.Code != "" && d.Code == code
}

// HasMachineApplicableFix reports whether at least one suggestion is
// safe to apply automatically.
func (d *Diagnostic) HasMachineApplicableFix() bool {
	for _, s := range d.Suggestions {
		if s.Applicability == MachineApplicable {
			return true
		}
	}
	return false
}

// MachineApplicable returns the suggestions rustc marked as safe to
// apply without review, in the order they appeared.
func (d *Diagnostic) MachineApplicable() []Suggestion {
	var out []Suggestion
	for _, s := range d.Suggestions {
		if s.Applicability == MachineApplicable {
			out = append(out, s)
		}
	}
	return out
}

// PrimarySpan returns the primary span, falling back to the first
// span when the compiler marked none.
func (d *Diagnostic) PrimarySpan() (Span, bool) {
	for _, s := range d.Spans {
		if s.Primary {
			return s, true
		}
	}
	if len(d.Spans) > 0 {
		return d.Spans[0], true
	}
	return Span{}, false
}

// Wire shapes for the cargo message envelope. Only the fields the
// parser reads are declared.
type checkMessage struct {
	Reason  string          `json:"reason"`
	Message *wireDiagnostic `json:"message"`
}

type wireDiagnostic struct {
	Message  string           `json:"message"`
	Code     *wireCode        `json:"code"`
	Level    string           `json:"level"`
	Spans    []wireSpan       `json:"spans"`
	Children []wireDiagnostic `json:"children"`
	Rendered *string          `json:"rendered"`
}

type wireCode struct {
	Code string `json:"code"`
}

type wireSpan struct {
	FileName                string         `json:"file_name"`
	ByteStart               int            `json:"byte_start"`
	ByteEnd                 int            `json:"byte_end"`
	LineStart               int            `json:"line_start"`
	LineEnd                 int            `json:"line_end"`
	ColumnStart             int            `json:"column_start"`
	ColumnEnd               int            `json:"column_end"`
	IsPrimary               bool           `json:"is_primary"`
	Text                    []wireText     `json:"text"`
	SuggestedReplacement    *string        `json:"suggested_replacement"`
	SuggestionApplicability *string        `json:"suggestion_applicability"`
	Expansion               *wireExpansion `json:"expansion"`
}

type wireText struct {
	Text string `json:"text"`
}

type wireExpansion struct {
	MacroDeclName string `json:"macro_decl_name"`
}

// ParseCheckOutput reads `cargo check --message-format=json` output
// line by line and returns the error-level diagnostics. Lines that do
// not start with '{' are skipped: proc macros and build scripts print
// freely to the same stream. Malformed JSON lines are skipped too.
func ParseCheckOutput(r io.Reader, workspaceRoot string) ([]Diagnostic, error) {
	sc := bufio.NewScanner(r)
	// Rendered diagnostics can be very large on a single line.
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var diags []Diagnostic
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var msg checkMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		if msg.Reason != "compiler-message" || msg.Message == nil {
			continue
		}
		if msg.Message.Level != "error" {
			continue
		}
		diags = append(diags, fromWire(msg.Message, workspaceRoot))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cargo output: %w", err)
	}
	return diags, nil
}

func fromWire(d *wireDiagnostic, root string) Diagnostic {
	out := Diagnostic{
		Message: d.Message,
		Level:   d.Level,
	}
	if d.Code != nil {
		out.Code = d.Code.Code
	}
	if d.Rendered != nil {
		out.Rendered = *d.Rendered
	}

	for _, ws := range d.Spans {
		if span, ok := spanFromWire(ws, root); ok {
			out.Spans = append(out.Spans, span)
		}
	}

	// Suggestions live on child diagnostics ("help: try ...") and,
	// rarely, on the main diagnostic's own spans.
	collectSuggestions(d.Children, root, &out.Suggestions)
	for _, ws := range d.Spans {
		if ws.SuggestedReplacement == nil {
			continue
		}
		span, ok := spanFromWire(ws, root)
		if !ok {
			continue
		}
		out.Suggestions = append(out.Suggestions, Suggestion{
			File:          span.File,
			ByteStart:     span.ByteStart,
			ByteEnd:       span.ByteEnd,
			Replacement:   *ws.SuggestedReplacement,
			Applicability: applicabilityFromWire(ws.SuggestionApplicability),
			Message:       d.Message,
		})
	}
	return out
}

func collectSuggestions(children []wireDiagnostic, root string, out *[]Suggestion) {
	for _, child := range children {
		for _, ws := range child.Spans {
			if ws.SuggestedReplacement == nil {
				continue
			}
			span, ok := spanFromWire(ws, root)
			if !ok {
				continue
			}
			*out = append(*out, Suggestion{
				File:          span.File,
				ByteStart:     span.ByteStart,
				ByteEnd:       span.ByteEnd,
				Replacement:   *ws.SuggestedReplacement,
				Applicability: applicabilityFromWire(ws.SuggestionApplicability),
				Message:       child.Message,
			})
		}
		collectSuggestions(child.Children, root, out)
	}
}

func applicabilityFromWire(s *string) Applicability {
	if s == nil {
		return Unspecified
	}
	switch Applicability(*s) {
	case MachineApplicable, MaybeIncorrect, HasPlaceholders:
		return Applicability(*s)
	default:
		return Unspecified
	}
}

// spanFromWire resolves a span's path against the workspace root and
// drops spans pointing outside it: stdlib and registry sources, the
// rustup toolchain, and anything under target/.
func spanFromWire(w wireSpan, root string) (Span, bool) {
	name := w.FileName
	if strings.Contains(name, "target/") ||
		strings.Contains(name, ".cargo/registry") ||
		strings.Contains(name, ".rustup") {
		return Span{}, false
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	} else {
		path = filepath.Clean(path)
	}
	if !insideRoot(root, path) {
		return Span{}, false
	}

	span := Span{
		File:        path,
		ByteStart:   w.ByteStart,
		ByteEnd:     w.ByteEnd,
		LineStart:   w.LineStart,
		LineEnd:     w.LineEnd,
		ColumnStart: w.ColumnStart,
		ColumnEnd:   w.ColumnEnd,
		Primary:     w.IsPrimary,
		InMacro:     w.Expansion != nil,
	}
	if len(w.Text) > 0 {
		span.Text = w.Text[0].Text
	}
	return span, true
}

func insideRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
