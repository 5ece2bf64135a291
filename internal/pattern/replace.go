package pattern

import (
	"fmt"

	"patchsmith/internal/edit"
)

// Substitute expands $NAME and $$$NAME references in a replacement
// template with the text the match captured. Unbound references stay
// literal so a typo is visible in the output rather than silently
// erased.
func Substitute(template string, m Match) string {
	return metavarRe.ReplaceAllStringFunc(template, func(tok string) string {
		sub := metavarRe.FindStringSubmatch(tok)
		cap, ok := m.Captures[sub[2]]
		if !ok {
			return tok
		}
		return cap.Text
	})
}

// ReplaceMatch builds an edit replacing the whole matched span with the
// expanded template. The edit carries a witness over the matched text,
// so it fails closed if the file shifted since matching.
func ReplaceMatch(file string, m Match, template string) *edit.Edit {
	return edit.NewFromBefore(file, m.Start, m.End, Substitute(template, m), m.Text)
}

// Delete builds an edit removing the matched span.
func Delete(file string, m Match) *edit.Edit {
	return edit.NewFromBefore(file, m.Start, m.End, "", m.Text)
}

// ReplaceCapture builds an edit replacing only the span one
// metavariable captured, leaving the rest of the match untouched.
// Template references in newText are expanded against the same match.
func ReplaceCapture(file string, m Match, name, newText string) (*edit.Edit, error) {
	cap, ok := m.Captures[name]
	if !ok {
		return nil, &MissingCaptureError{Name: name}
	}
	if cap.Start < 0 {
		return nil, fmt.Errorf("capture %q matched an empty sequence and has no span", name)
	}
	return edit.NewFromBefore(file, cap.Start, cap.End, Substitute(newText, m), cap.Text), nil
}
