package edit

import (
	"errors"
	"fmt"
)

// ErrInvalidUTF8 reports that applying an edit would leave the file with
// byte content that is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("edit would produce invalid UTF-8")

// RangeError reports a byte span that does not fit the target file.
type RangeError struct {
	File    string
	Start   int
	End     int
	FileLen int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid byte range [%d, %d) for %s (file is %d bytes)",
		e.Start, e.End, e.File, e.FileLen)
}

// MismatchError reports that the bytes currently in the span do not
// satisfy the edit's verification witness. Expected and Actual hold
// truncated previews for diagnostics.
type MismatchError struct {
	File     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("before-text mismatch in %s: expected %q, found %q",
		e.File, preview(e.Expected), preview(e.Actual))
}

// OverlapError reports two edits in one file batch whose spans intersect.
type OverlapError struct {
	File   string
	AStart int
	AEnd   int
	BStart int
	BEnd   int
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping edits in %s: [%d, %d) and [%d, %d)",
		e.File, e.AStart, e.AEnd, e.BStart, e.BEnd)
}

const previewLen = 60

func preview(s string) string {
	if len(s) <= previewLen {
		return s
	}
	return s[:previewLen] + "..."
}
