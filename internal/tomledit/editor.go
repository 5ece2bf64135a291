// Package tomledit plans format-preserving edits to TOML files. Each
// operation yields a single byte-span edit computed against the raw
// text, so comments, blank lines, key order, and quoting outside the
// span survive untouched. Every planned result must re-parse as valid
// TOML before it becomes an edit.
package tomledit

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"

	"patchsmith/internal/edit"
	"patchsmith/internal/logging"
)

// Plan is the outcome of planning one operation: a single edit, or a
// no-op carrying the reason none was needed.
type Plan struct {
	Edit   *edit.Edit
	Reason string
}

// IsNoOp reports whether the plan requires no change.
func (p Plan) IsNoOp() bool { return p.Edit == nil }

func noop(format string, args ...any) Plan {
	return Plan{Reason: fmt.Sprintf(format, args...)}
}

type sectionInfo struct {
	path SectionPath
	// headerStart is the byte offset of the opening bracket.
	headerStart int
	// headerLineEnd is the end of the header line, newline included.
	headerLineEnd int
	// body runs from the end of the header line to the start of the
	// next header (or EOF), trailing blank lines included.
	bodyStart int
	bodyEnd   int
}

// Editor plans edits against one TOML document. The document is
// scanned once at construction and never mutated; plans are computed
// against that fixed pre-image.
type Editor struct {
	file     string
	content  string
	sections []sectionInfo
}

// NewEditor parses and scans a TOML document.
func NewEditor(file, content string) (*Editor, error) {
	if err := ValidateDocument(content); err != nil {
		return nil, err
	}
	sections, err := scanSections(content)
	if err != nil {
		return nil, err
	}
	logging.TomlDebug("scanned %s: %d section(s)", file, len(sections))
	return &Editor{file: file, content: content, sections: sections}, nil
}

// Content returns the document text the editor plans against.
func (e *Editor) Content() string { return e.content }

// ValidateDocument parses content as TOML, reporting a SyntaxError on
// failure. Duplicate tables and keys are rejected along with malformed
// syntax.
func ValidateDocument(content string) error {
	var doc map[string]any
	if err := toml.Unmarshal([]byte(content), &doc); err != nil {
		return &SyntaxError{Message: err.Error()}
	}
	return nil
}

// PlanInsertSection inserts a new section at the resolved position.
// With EnsureAbsent, an existing section downgrades to a no-op;
// without it the duplicate is caught by the mandatory re-parse.
func (e *Editor) PlanInsertSection(q Query, text string, pos Positioning, c Constraints) (Plan, error) {
	if c.EnsureAbsent {
		if _, err := e.findSection(q.Section); err == nil {
			return noop("section already present: %s", q.Section), nil
		}
	}
	if err := validateSectionSnippet(text); err != nil {
		return Plan{}, err
	}
	pt, err := e.resolveInsertion(pos)
	if err != nil {
		return Plan{}, err
	}
	return e.planAnchoredInsert(pt, text)
}

// PlanAppendSection inserts at end of file, downgrading to a no-op if
// the section already exists.
func (e *Editor) PlanAppendSection(q Query, text string) (Plan, error) {
	if _, err := e.findSection(q.Section); err == nil {
		return noop("section already present: %s", q.Section), nil
	}
	if err := validateSectionSnippet(text); err != nil {
		return Plan{}, err
	}
	pt := insertionPoint{anchorStart: len(e.content), anchorEnd: len(e.content)}
	return e.planAnchoredInsert(pt, text)
}

// planAnchoredInsert frames the section text and splices it in front
// of the anchor. When the anchor is the following section's header
// line, the edit replaces that line with the framed text plus the
// original header, and the witness pins the header as the pre-image.
func (e *Editor) planAnchoredInsert(pt insertionPoint, text string) (Plan, error) {
	newText := normalizeInsertion(text, e.content, pt.anchorStart, pt.anchorText)
	newText += pt.anchorText

	ed := edit.NewFromBefore(e.file, pt.anchorStart, pt.anchorEnd, newText, pt.anchorText)
	if err := e.reparseWith(ed); err != nil {
		return Plan{}, err
	}
	logging.TomlDebug("planned section insert in %s at [%d, %d)", e.file, ed.Start, ed.End)
	return Plan{Edit: ed}, nil
}

// PlanReplaceValue replaces the value span of one key-value line,
// keeping the key, equals sign, and trailing comment. A missing
// section or key is a no-op unless EnsurePresent makes it an error.
func (e *Editor) PlanReplaceValue(q Query, value string, c Constraints) (Plan, error) {
	if q.Key == nil {
		return Plan{}, &PositioningError{Message: "replace_value requires a key query"}
	}
	if err := validateValueSnippet(value); err != nil {
		return Plan{}, err
	}

	info, err := e.findSection(q.Section)
	if err != nil {
		if c.EnsurePresent {
			return Plan{}, err
		}
		return noop("section missing: %s", q.Section), nil
	}
	span, err := e.findKeySpan(info, *q.Key)
	if err != nil {
		if c.EnsurePresent {
			return Plan{}, err
		}
		return noop("key missing: %s.%s", q.Section, q.Key), nil
	}

	current := e.content[span.valueStart:span.valueEnd]
	if err := validateValueSnippet(current); err != nil {
		return Plan{}, &UnsupportedError{
			Message: fmt.Sprintf("value of %s.%s does not fit on one line", q.Section, q.Key),
		}
	}
	if strings.TrimSpace(current) == strings.TrimSpace(value) {
		return noop("value already matches: %s.%s", q.Section, q.Key), nil
	}

	ed := edit.NewFromBefore(e.file, span.valueStart, span.valueEnd, value, current)
	if err := e.reparseWith(ed); err != nil {
		return Plan{}, err
	}
	logging.TomlDebug("planned value replace for %s.%s in %s", q.Section, q.Key, e.file)
	return Plan{Edit: ed}, nil
}

// PlanReplaceKey renames the key token of one key-value line.
func (e *Editor) PlanReplaceKey(q Query, newKey string, c Constraints) (Plan, error) {
	if q.Key == nil {
		return Plan{}, &PositioningError{Message: "replace_key requires a key query"}
	}
	if _, err := ParseKeyPath(newKey); err != nil {
		return Plan{}, err
	}

	info, err := e.findSection(q.Section)
	if err != nil {
		if c.EnsurePresent {
			return Plan{}, err
		}
		return noop("section missing: %s", q.Section), nil
	}
	span, err := e.findKeySpan(info, *q.Key)
	if err != nil {
		if c.EnsurePresent {
			return Plan{}, err
		}
		return noop("key missing: %s.%s", q.Section, q.Key), nil
	}

	current := e.content[span.keyStart:span.keyEnd]
	if strings.TrimSpace(current) == strings.TrimSpace(newKey) {
		return noop("key already matches: %s.%s", q.Section, q.Key), nil
	}

	ed := edit.NewFromBefore(e.file, span.keyStart, span.keyEnd, newKey, current)
	if err := e.reparseWith(ed); err != nil {
		return Plan{}, err
	}
	logging.TomlDebug("planned key rename %s.%s -> %s in %s", q.Section, q.Key, newKey, e.file)
	return Plan{Edit: ed}, nil
}

// PlanDeleteSection removes the section from its header through the
// start of the next header, so survivors keep at most one blank line
// between them.
func (e *Editor) PlanDeleteSection(q Query, c Constraints) (Plan, error) {
	info, err := e.findSection(q.Section)
	if err != nil {
		if c.EnsurePresent {
			return Plan{}, err
		}
		return noop("section missing: %s", q.Section), nil
	}

	current := e.content[info.headerStart:info.bodyEnd]
	ed := edit.NewFromBefore(e.file, info.headerStart, info.bodyEnd, "", current)
	if err := e.reparseWith(ed); err != nil {
		return Plan{}, err
	}
	logging.TomlDebug("planned section delete of %s in %s", q.Section, e.file)
	return Plan{Edit: ed}, nil
}

// SectionExists reports whether path resolves to exactly one section.
func (e *Editor) SectionExists(path string) bool {
	parsed, err := ParseSectionPath(path)
	if err != nil {
		return false
	}
	_, err = e.findSection(parsed)
	return err == nil
}

// Value returns the raw value text of a key inside a section.
func (e *Editor) Value(section, key string) (string, bool) {
	sp, err := ParseSectionPath(section)
	if err != nil {
		return "", false
	}
	kp, err := ParseKeyPath(key)
	if err != nil {
		return "", false
	}
	info, err := e.findSection(sp)
	if err != nil {
		return "", false
	}
	span, err := e.findKeySpan(info, kp)
	if err != nil {
		return "", false
	}
	return e.content[span.valueStart:span.valueEnd], true
}

func (e *Editor) findSection(path SectionPath) (*sectionInfo, error) {
	var found *sectionInfo
	count := 0
	for i := range e.sections {
		if e.sections[i].path.Equal(path) {
			if found == nil {
				found = &e.sections[i]
			}
			count++
		}
	}
	switch count {
	case 0:
		return nil, &SectionNotFoundError{Path: path.String()}
	case 1:
		return found, nil
	default:
		return nil, &AmbiguousError{Kind: "section", Path: path.String()}
	}
}

func (e *Editor) nextSection(current *sectionInfo) *sectionInfo {
	var next *sectionInfo
	for i := range e.sections {
		s := &e.sections[i]
		if s.headerStart <= current.headerStart {
			continue
		}
		if next == nil || s.headerStart < next.headerStart {
			next = s
		}
	}
	return next
}

type insertionPoint struct {
	anchorStart int
	anchorEnd   int
	anchorText  string
}

func (e *Editor) resolveInsertion(pos Positioning) (insertionPoint, error) {
	switch pos.kind {
	case positionAfter:
		section, err := e.findSection(pos.anchor)
		if err != nil {
			return insertionPoint{}, err
		}
		if next := e.nextSection(section); next != nil {
			return e.anchorAt(next), nil
		}
		return insertionPoint{anchorStart: len(e.content), anchorEnd: len(e.content)}, nil
	case positionBefore:
		section, err := e.findSection(pos.anchor)
		if err != nil {
			return insertionPoint{}, err
		}
		return e.anchorAt(section), nil
	case positionAtBeginning:
		if len(e.sections) > 0 {
			return e.anchorAt(&e.sections[0]), nil
		}
		return insertionPoint{}, nil
	default:
		return insertionPoint{anchorStart: len(e.content), anchorEnd: len(e.content)}, nil
	}
}

func (e *Editor) anchorAt(s *sectionInfo) insertionPoint {
	return insertionPoint{
		anchorStart: s.headerStart,
		anchorEnd:   s.headerLineEnd,
		anchorText:  e.content[s.headerStart:s.headerLineEnd],
	}
}

// reparseWith applies the edit to an in-memory copy and parses the
// result. A plan whose outcome does not parse is discarded.
func (e *Editor) reparseWith(ed *edit.Edit) error {
	var b strings.Builder
	b.Grow(len(e.content) + len(ed.NewText) - (ed.End - ed.Start))
	b.WriteString(e.content[:ed.Start])
	b.WriteString(ed.NewText)
	b.WriteString(e.content[ed.End:])
	return ValidateDocument(b.String())
}

// normalizeInsertion frames section text: a trailing newline, a blank
// line separating it from a preceding section, and a blank line before
// a following section header.
func normalizeInsertion(text, content string, byteStart int, expectedBefore string) string {
	result := text
	if !strings.HasSuffix(result, "\n") {
		result += "\n"
	}

	if byteStart > 0 {
		before := content[:byteStart]
		needed := 0
		if strings.HasPrefix(strings.TrimLeftFunc(result, unicode.IsSpace), "[") {
			switch {
			case strings.HasSuffix(before, "\n\n"):
				needed = 0
			case strings.HasSuffix(before, "\n"):
				needed = 1
			default:
				needed = 2
			}
		} else if !strings.HasSuffix(before, "\n") {
			needed = 1
		}
		result = strings.Repeat("\n", needed) + result
	}

	if strings.HasPrefix(strings.TrimLeftFunc(expectedBefore, unicode.IsSpace), "[") && !strings.HasSuffix(result, "\n\n") {
		result += "\n"
	}

	return result
}

func validateSectionSnippet(text string) error {
	return ValidateDocument(text)
}

func validateValueSnippet(value string) error {
	return ValidateDocument("key = " + value)
}
