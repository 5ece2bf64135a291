// Package edit implements the byte-span replacement primitive. An Edit
// carries a target file, a half-open span, replacement text, and a
// witness for the bytes it expects to replace. Edits are produced by
// the locators and consumed exactly once; every write is atomic.
package edit

import (
	"fmt"
	"os"
	"unicode/utf8"

	"patchsmith/internal/logging"
	"patchsmith/internal/safety"
)

// Outcome classifies the result of applying one edit.
type Outcome int

const (
	// Applied means the file was mutated.
	Applied Outcome = iota + 1
	// AlreadyApplied means the span already held the replacement text.
	AlreadyApplied
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case AlreadyApplied:
		return "already-applied"
	default:
		return "unknown"
	}
}

// Result is the outcome of one edit against one file.
type Result struct {
	File    string
	Outcome Outcome
	// BytesChanged is the net growth of the file: len(new) - len(old).
	// Zero for AlreadyApplied.
	BytesChanged int
}

// Edit is a single byte-range replacement with pre-verification.
type Edit struct {
	File    string
	Start   int
	End     int
	NewText string
	Verify  Verification
}

// New builds an edit over the half-open span [start, end).
func New(file string, start, end int, newText string, verify Verification) *Edit {
	return &Edit{File: file, Start: start, End: end, NewText: newText, Verify: verify}
}

// NewFromBefore builds an edit whose witness is derived from the text
// currently expected in the span.
func NewFromBefore(file string, start, end int, newText, before string) *Edit {
	return New(file, start, end, newText, NewVerification(before))
}

// Inverse returns the edit that restores before over the span this edit
// produced, witnessed by this edit's replacement text.
func (e *Edit) Inverse(before string) *Edit {
	return New(e.File, e.Start, e.Start+len(e.NewText), before, NewVerification(e.NewText))
}

// validate checks the span bounds and replacement encoding.
func (e *Edit) validate(content []byte) error {
	if e.Start < 0 || e.Start > e.End || e.End > len(content) {
		return &RangeError{File: e.File, Start: e.Start, End: e.End, FileLen: len(content)}
	}
	if !utf8.ValidString(e.NewText) {
		return fmt.Errorf("replacement for %s: %w", e.File, ErrInvalidUTF8)
	}
	return nil
}

// verifyWitness checks the bytes currently in the span against the
// witness. Callers check idempotency first: a span that already holds
// the replacement no longer matches a witness of the old text.
func (e *Edit) verifyWitness(content []byte) error {
	current := string(content[e.Start:e.End])
	if !e.Verify.Matches(current) {
		return &MismatchError{File: e.File, Expected: e.Verify.describe(), Actual: current}
	}
	return nil
}

// applied reports whether the span already holds the replacement text.
func (e *Edit) applied(content []byte) bool {
	return string(content[e.Start:e.End]) == e.NewText
}

// splice returns the file content with the span replaced.
func (e *Edit) splice(content []byte) []byte {
	out := make([]byte, 0, len(content)-(e.End-e.Start)+len(e.NewText))
	out = append(out, content[:e.Start]...)
	out = append(out, e.NewText...)
	out = append(out, content[e.End:]...)
	return out
}

// Apply validates the edit through the guard and performs it. The file
// is written atomically; if the span already equals the replacement,
// nothing is written and AlreadyApplied is returned.
func (e *Edit) Apply(guard *safety.WorkspaceGuard) (Result, error) {
	path, err := guard.Validate(e.File)
	if err != nil {
		return Result{}, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := e.validate(content); err != nil {
		return Result{}, err
	}
	if e.applied(content) {
		logging.EditDebug("edit already applied: %s [%d, %d)", e.File, e.Start, e.End)
		return Result{File: e.File, Outcome: AlreadyApplied}, nil
	}
	if err := e.verifyWitness(content); err != nil {
		return Result{}, err
	}

	out := e.splice(content)
	if !utf8.Valid(out) {
		return Result{}, fmt.Errorf("%s: %w", e.File, ErrInvalidUTF8)
	}

	if err := atomicWrite(path, out); err != nil {
		return Result{}, err
	}
	logging.EditDebug("applied edit: %s [%d, %d) %+d bytes", e.File, e.Start, e.End,
		len(e.NewText)-(e.End-e.Start))
	return Result{
		File:         e.File,
		Outcome:      Applied,
		BytesChanged: len(e.NewText) - (e.End - e.Start),
	}, nil
}
