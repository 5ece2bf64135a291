package edit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// Witnesses above this size are stored as hashes rather than literal text.
const exactMatchLimit = 1024

type verificationKind int

const (
	verifyNone verificationKind = iota
	verifyExact
	verifyHash
)

// Verification is the before-text witness of an edit: either the exact
// bytes expected in the span, or a 64-bit XXH3 of them for large spans.
// The zero value performs no verification.
type Verification struct {
	kind verificationKind
	text string
	sum  uint64
}

// NoVerification skips the before-text check entirely.
var NoVerification = Verification{}

// NewVerification derives a witness from the expected span text,
// selecting exact match for small spans and a hash beyond 1 KiB.
func NewVerification(before string) Verification {
	if len(before) > exactMatchLimit {
		return Verification{kind: verifyHash, sum: xxh3.HashString(before)}
	}
	return Verification{kind: verifyExact, text: before}
}

// ExactMatch builds a witness that requires the span to equal text.
func ExactMatch(text string) Verification {
	return Verification{kind: verifyExact, text: text}
}

// HashVerification builds a witness from a known 64-bit XXH3 digest.
func HashVerification(sum uint64) Verification {
	return Verification{kind: verifyHash, sum: sum}
}

// ParseHashHex builds a hash witness from a hex-encoded 64-bit digest,
// the encoding used by patch files. An optional 0x prefix is accepted.
func ParseHashHex(s string) (Verification, error) {
	sum, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return Verification{}, fmt.Errorf("parse hash witness %q: %w", s, err)
	}
	return HashVerification(sum), nil
}

// Matches reports whether the witness was derived from current.
func (v Verification) Matches(current string) bool {
	switch v.kind {
	case verifyExact:
		return v.text == current
	case verifyHash:
		return v.sum == xxh3.HashString(current)
	default:
		return true
	}
}

// IsSet reports whether the witness actually verifies anything.
func (v Verification) IsSet() bool {
	return v.kind != verifyNone
}

func (v Verification) String() string {
	switch v.kind {
	case verifyExact:
		return fmt.Sprintf("exact(%q)", preview(v.text))
	case verifyHash:
		return fmt.Sprintf("xxh3(%016x)", v.sum)
	default:
		return "none"
	}
}

// describe renders the expectation for mismatch diagnostics.
func (v Verification) describe() string {
	switch v.kind {
	case verifyExact:
		return v.text
	case verifyHash:
		return fmt.Sprintf("content with xxh3 %016x", v.sum)
	default:
		return ""
	}
}
