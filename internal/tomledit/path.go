package tomledit

import (
	"slices"
	"strings"
	"unicode"
)

// SectionPath is a dotted table path. Bare segments name standard
// tables; quoted segments (`target."cfg(unix)"`) are taken literally,
// dots included.
type SectionPath struct {
	parts []string
}

// ParseSectionPath parses a dotted path such as `profile.release` or
// `target."x86_64-unknown-linux-gnu"`.
func ParseSectionPath(input string) (SectionPath, error) {
	parts, err := parseDottedPath(input)
	if err != nil {
		return SectionPath{}, err
	}
	if len(parts) == 0 {
		return SectionPath{}, &PathError{Input: input, Message: "empty section path"}
	}
	return SectionPath{parts: parts}, nil
}

func (p SectionPath) Parts() []string { return p.parts }

func (p SectionPath) Equal(o SectionPath) bool { return slices.Equal(p.parts, o.parts) }

func (p SectionPath) IsZero() bool { return len(p.parts) == 0 }

func (p SectionPath) String() string { return strings.Join(p.parts, ".") }

// KeyPath is a dotted key path resolving to a leaf inside a section.
type KeyPath struct {
	parts []string
}

// ParseKeyPath parses a dotted key such as `opt-level` or
// `metadata."build.flags"`.
func ParseKeyPath(input string) (KeyPath, error) {
	parts, err := parseDottedPath(input)
	if err != nil {
		return KeyPath{}, err
	}
	if len(parts) == 0 {
		return KeyPath{}, &PathError{Input: input, Message: "empty key path"}
	}
	return KeyPath{parts: parts}, nil
}

func (p KeyPath) Parts() []string { return p.parts }

func (p KeyPath) Equal(o KeyPath) bool { return slices.Equal(p.parts, o.parts) }

func (p KeyPath) String() string { return strings.Join(p.parts, ".") }

// Query names either a whole section or one key inside it.
type Query struct {
	Section SectionPath
	// Key is nil for section queries.
	Key *KeyPath
}

// SectionQuery selects the byte range of a section: header through the
// start of the next header (or EOF).
func SectionQuery(section SectionPath) Query {
	return Query{Section: section}
}

// KeyQuery selects one key-value line inside a section.
func KeyQuery(section SectionPath, key KeyPath) Query {
	return Query{Section: section, Key: &key}
}

func parseDottedPath(input string) ([]string, error) {
	var parts []string
	var current strings.Builder
	inQuotes := false
	var quote rune

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if inQuotes {
			if ch == quote {
				inQuotes = false
				continue
			}
			if quote == '"' && ch == '\\' && i+1 < len(runes) {
				i++
				switch runes[i] {
				case 'n':
					current.WriteRune('\n')
				case 't':
					current.WriteRune('\t')
				case 'r':
					current.WriteRune('\r')
				default:
					current.WriteRune(runes[i])
				}
				continue
			}
			current.WriteRune(ch)
			continue
		}

		switch {
		case ch == '.':
			if current.Len() == 0 {
				return nil, &PathError{Input: input, Message: "empty path segment"}
			}
			parts = append(parts, current.String())
			current.Reset()
		case ch == '"' || ch == '\'':
			if current.Len() != 0 {
				return nil, &PathError{Input: input, Message: "unexpected quote inside segment"}
			}
			inQuotes = true
			quote = ch
		case unicode.IsSpace(ch):
			return nil, &PathError{Input: input, Message: "whitespace not allowed in path"}
		default:
			current.WriteRune(ch)
		}
	}

	if inQuotes {
		return nil, &PathError{Input: input, Message: "unterminated quoted segment"}
	}
	if current.Len() != 0 {
		parts = append(parts, current.String())
	}
	return parts, nil
}
