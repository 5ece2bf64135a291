package compiler

import (
	"fmt"
	"os"
	"strings"

	"patchsmith/internal/edit"
	"patchsmith/internal/logging"
	"patchsmith/internal/safety"
)

// Autofix turns a diagnostic into edits. Machine-applicable
// suggestions win when present: the compiler already knows the exact
// replacement. Otherwise the error code selects a strategy; E0063
// (missing struct field) is the one code with a hand-rolled fix, since
// it is what upstream bumps most commonly break. Diagnostics nothing
// can repair return a NoFixError.
func Autofix(diag *Diagnostic, guard *safety.WorkspaceGuard) ([]*edit.Edit, error) {
	if suggestions := diag.MachineApplicable(); len(suggestions) > 0 {
		var edits []*edit.Edit
		for _, s := range suggestions {
			e, err := suggestionEdit(s, guard)
			if err != nil {
				logging.CompilerDebug("skipping suggestion for %s: %v", s.File, err)
				continue
			}
			edits = append(edits, e)
		}
		if len(edits) > 0 {
			logging.Compiler("autofix %s: %d compiler suggestion(s)", diag.Code, len(edits))
			return edits, nil
		}
	}

	switch diag.Code {
	case "E0063":
		return fixMissingField(diag, guard)
	default:
		return nil, &NoFixError{Code: diag.Code, Reason: "no strategy for this error code"}
	}
}

// AutofixAll attempts every diagnostic and splits the outcome into the
// combined edits and the diagnostics nothing could repair.
func AutofixAll(diags []Diagnostic, guard *safety.WorkspaceGuard) ([]*edit.Edit, []Diagnostic) {
	var edits []*edit.Edit
	var unfixable []Diagnostic
	for i := range diags {
		fixes, err := Autofix(&diags[i], guard)
		if err != nil {
			logging.CompilerDebug("diagnostic %s unfixed: %v", diags[i].Code, err)
			unfixable = append(unfixable, diags[i])
			continue
		}
		edits = append(edits, fixes...)
	}
	return edits, unfixable
}

// suggestionEdit converts one compiler suggestion into an edit whose
// witness is the text currently occupying the span.
func suggestionEdit(s Suggestion, guard *safety.WorkspaceGuard) (*edit.Edit, error) {
	path, err := guard.Validate(s.File)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.File, err)
	}
	if s.ByteStart < 0 || s.ByteEnd < s.ByteStart || s.ByteEnd > len(content) {
		return nil, &edit.RangeError{File: s.File, Start: s.ByteStart, End: s.ByteEnd, FileLen: len(content)}
	}
	before := string(content[s.ByteStart:s.ByteEnd])
	return edit.NewFromBefore(s.File, s.ByteStart, s.ByteEnd, s.Replacement, before), nil
}

// fixMissingField repairs E0063 by appending the missing field to the
// struct initializer the primary span points at, with a default value
// inferred from the field name.
func fixMissingField(diag *Diagnostic, guard *safety.WorkspaceGuard) ([]*edit.Edit, error) {
	field, _, ok := parseMissingFieldMessage(diag.Message)
	if !ok {
		return nil, &NoFixError{Code: diag.Code, Reason: fmt.Sprintf("unparseable message %q", diag.Message)}
	}

	span, ok := diag.PrimarySpan()
	if !ok {
		return nil, &NoFixError{Code: diag.Code, Reason: "diagnostic has no source span"}
	}
	// Offsets inside macro expansions do not map to on-disk bytes.
	if span.InMacro {
		return nil, &NoFixError{Code: diag.Code, Reason: "span is inside a macro expansion"}
	}

	path, err := guard.Validate(span.File)
	if err != nil {
		return nil, &NoFixError{Code: diag.Code, Reason: err.Error()}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", span.File, err)
	}

	point, ok := findInitializerInsertPoint(string(content), span.ByteStart, span.ByteEnd)
	if !ok {
		return nil, &NoFixError{Code: diag.Code, Reason: "initializer closing brace not found"}
	}

	value := inferFieldDefault(field)
	var init string
	switch {
	case point.needsComma:
		init = fmt.Sprintf(",\n%s%s: %s", point.fieldIndent, field, value)
	case point.emptyStruct:
		init = fmt.Sprintf("\n%s%s: %s,\n%s", point.fieldIndent, field, value, point.braceIndent)
	default:
		init = fmt.Sprintf("\n%s%s: %s,", point.fieldIndent, field, value)
	}

	logging.Compiler("autofix E0063: %s: %s = %s", span.File, field, value)
	e := edit.New(span.File, point.insertAt, point.insertAt, init, edit.ExactMatch(""))
	return []*edit.Edit{e}, nil
}

// parseMissingFieldMessage extracts the field and struct names from an
// E0063 message of the form
//
//	missing field `name` in initializer of `path::Struct`
func parseMissingFieldMessage(message string) (field, structName string, ok bool) {
	const fieldMark = "missing field `"
	const structMark = "in initializer of `"

	i := strings.Index(message, fieldMark)
	if i < 0 {
		return "", "", false
	}
	rest := message[i+len(fieldMark):]
	j := strings.IndexByte(rest, '`')
	if j < 0 {
		return "", "", false
	}
	field = rest[:j]

	i = strings.Index(message, structMark)
	if i < 0 {
		return "", "", false
	}
	rest = message[i+len(structMark):]
	j = strings.IndexByte(rest, '`')
	if j < 0 {
		return "", "", false
	}
	return field, rest[:j], true
}

// insertPoint describes where and how to splice a new field into a
// struct initializer.
type insertPoint struct {
	insertAt    int
	needsComma  bool
	emptyStruct bool
	fieldIndent string
	braceIndent string
}

// findInitializerInsertPoint locates the initializer's closing brace by
// brace counting from just before the span. String literals are skipped
// so braces inside them do not unbalance the count. The span rustc
// reports for E0063 covers the initializer expression, so the window is
// padded a little on both sides rather than trusting it exactly.
func findInitializerInsertPoint(content string, spanStart, spanEnd int) (insertPoint, bool) {
	searchStart := spanStart - 50
	if searchStart < 0 {
		searchStart = 0
	}
	searchEnd := spanEnd + 500
	if searchEnd > len(content) {
		searchEnd = len(content)
	}
	region := content[searchStart:searchEnd]

	depth := 0
	inString := false
	escaped := false
	opening, closing := -1, -1

scan:
	for i, c := range region {
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				if opening < 0 {
					opening = searchStart + i
				}
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					closing = searchStart + i
					break scan
				}
			}
		}
	}
	if opening < 0 || closing < 0 {
		return insertPoint{}, false
	}

	body := content[opening+1 : closing]
	empty := strings.TrimSpace(body) == ""

	needsComma := false
	if !empty {
		trimmed := strings.TrimRight(body, " \t\r\n")
		needsComma = !strings.HasSuffix(trimmed, ",")
	}

	fieldIndent, braceIndent := detectIndentation(content, opening, closing)
	return insertPoint{
		insertAt:    closing,
		needsComma:  needsComma,
		emptyStruct: empty,
		fieldIndent: fieldIndent,
		braceIndent: braceIndent,
	}, true
}

// detectIndentation reads the indent off an existing `field: value`
// line inside the initializer, falling back to the closing brace's
// indent plus four spaces when the body has none.
func detectIndentation(content string, opening, closing int) (fieldIndent, braceIndent string) {
	braceIndent = lineIndent(content, closing)

	for _, line := range strings.Split(content[opening+1:closing], "\n") {
		if !strings.Contains(line, ":") || strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if indent != "" {
			return indent, braceIndent
		}
	}
	return braceIndent + "    ", braceIndent
}

// lineIndent returns the leading whitespace of the line containing the
// byte offset.
func lineIndent(content string, offset int) string {
	start := strings.LastIndexByte(content[:offset], '\n') + 1
	rest := content[start:]
	return rest[:len(rest)-len(strings.TrimLeft(rest, " \t"))]
}

// inferFieldDefault guesses an initializer value from the field name
// alone. The type is unknown at this point, so the guesses lean toward
// None: new upstream fields are usually optional.
func inferFieldDefault(field string) string {
	switch {
	case strings.HasSuffix(field, "_level"),
		strings.HasSuffix(field, "_limit"),
		strings.HasSuffix(field, "_timeout"),
		strings.HasSuffix(field, "_override"),
		strings.HasSuffix(field, "_config"),
		strings.HasSuffix(field, "_policy"),
		strings.HasPrefix(field, "optional_"),
		strings.HasPrefix(field, "maybe_"),
		strings.Contains(field, "sandbox"):
		return "None"

	case strings.HasPrefix(field, "is_"),
		strings.HasPrefix(field, "has_"),
		strings.HasPrefix(field, "can_"),
		strings.HasPrefix(field, "should_"),
		strings.HasPrefix(field, "enable"),
		strings.HasPrefix(field, "disable"),
		strings.HasSuffix(field, "_enabled"),
		strings.HasSuffix(field, "_disabled"),
		strings.HasSuffix(field, "_allowed"):
		return "false"

	// Plurals read as collections; "ss" endings (class, address) do not.
	case strings.HasSuffix(field, "s") && !strings.HasSuffix(field, "ss"):
		return "Vec::new()"

	case strings.HasSuffix(field, "_count"),
		strings.HasSuffix(field, "_size"),
		strings.HasSuffix(field, "_index"):
		return "0"

	case strings.HasSuffix(field, "_name"),
		strings.HasSuffix(field, "_path"),
		strings.HasSuffix(field, "_url"),
		strings.HasSuffix(field, "_message"):
		return "String::new()"
	}
	return "None"
}
