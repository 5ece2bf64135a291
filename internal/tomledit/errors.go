package tomledit

import "fmt"

// SyntaxError reports TOML that does not parse, either in the input
// document, a snippet, or a planned result.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid TOML syntax: %s", e.Message)
}

// PathError reports a malformed dotted section or key path.
type PathError struct {
	Input   string
	Message string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Input, e.Message)
}

// SectionNotFoundError reports a section path with no match.
type SectionNotFoundError struct {
	Path string
}

func (e *SectionNotFoundError) Error() string {
	return fmt.Sprintf("section not found: %s", e.Path)
}

// KeyNotFoundError reports a key absent from its section.
type KeyNotFoundError struct {
	Section string
	Key     string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key not found: %s.%s", e.Section, e.Key)
}

// AmbiguousError reports a path resolving to more than one entry,
// such as a repeated array-of-tables header.
type AmbiguousError struct {
	Kind string
	Path string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous match for %s: %s", e.Kind, e.Path)
}

// PositioningError reports conflicting or invalid positioning
// directives.
type PositioningError struct {
	Message string
}

func (e *PositioningError) Error() string {
	return fmt.Sprintf("invalid positioning: %s", e.Message)
}

// UnsupportedError reports a TOML construct the editor cannot safely
// rewrite, such as a value spanning multiple lines.
type UnsupportedError struct {
	Message string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported TOML construct: %s", e.Message)
}
