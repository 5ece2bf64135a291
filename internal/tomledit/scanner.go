package tomledit

import (
	"fmt"
	"strings"
	"unicode"
)

// scanSections records the byte layout of every [section] and
// [[array-of-tables]] header. Array entries share their path, which
// is how repeated paths later surface as AmbiguousError.
func scanSections(content string) ([]sectionInfo, error) {
	var sections []sectionInfo
	last := -1

	for start := 0; start < len(content); {
		lineEnd := len(content)
		if nl := strings.IndexByte(content[start:], '\n'); nl >= 0 {
			lineEnd = start + nl + 1
		}
		line := content[start:lineEnd]

		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || !strings.HasPrefix(trimmed, "[") {
			start = lineEnd
			continue
		}

		headerStart := start + (len(line) - len(trimmed))
		path, err := parseHeader(trimmed)
		if err != nil {
			return nil, err
		}

		if last >= 0 {
			sections[last].bodyEnd = headerStart
		}
		sections = append(sections, sectionInfo{
			path:          path,
			headerStart:   headerStart,
			headerLineEnd: lineEnd,
			bodyStart:     lineEnd,
			bodyEnd:       lineEnd,
		})
		last = len(sections) - 1
		start = lineEnd
	}

	if last >= 0 {
		sections[last].bodyEnd = len(content)
	}
	return sections, nil
}

func parseHeader(line string) (SectionPath, error) {
	trimmed := strings.TrimSpace(line)
	openLen, closeSeq := 1, "]"
	if strings.HasPrefix(trimmed, "[[") {
		openLen, closeSeq = 2, "]]"
	}

	closePos := strings.Index(trimmed, closeSeq)
	if closePos < 0 {
		return SectionPath{}, &SyntaxError{Message: fmt.Sprintf("unterminated section header: %s", trimmed)}
	}
	if closePos < openLen {
		return SectionPath{}, &SyntaxError{Message: fmt.Sprintf("invalid section header: %s", trimmed)}
	}
	return ParseSectionPath(trimmed[openLen:closePos])
}

type keySpan struct {
	keyStart   int
	keyEnd     int
	valueStart int
	valueEnd   int
}

// findKeySpan locates one key-value line inside a section body.
func (e *Editor) findKeySpan(section *sectionInfo, key KeyPath) (keySpan, error) {
	var matches []parsedKeyLine

	for start := section.bodyStart; start < section.bodyEnd; {
		lineEnd := section.bodyEnd
		if nl := strings.IndexByte(e.content[start:lineEnd], '\n'); nl >= 0 {
			lineEnd = start + nl + 1
		}
		line := e.content[start:lineEnd]

		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "[") {
			start = lineEnd
			continue
		}

		kl, err := parseKeyLine(line, start)
		if err != nil {
			return keySpan{}, err
		}
		if kl != nil && kl.path.Equal(key) {
			matches = append(matches, *kl)
		}
		start = lineEnd
	}

	switch len(matches) {
	case 0:
		return keySpan{}, &KeyNotFoundError{Section: section.path.String(), Key: key.String()}
	case 1:
		m := matches[0]
		return keySpan{keyStart: m.keyStart, keyEnd: m.keyEnd, valueStart: m.valueStart, valueEnd: m.valueEnd}, nil
	default:
		return keySpan{}, &AmbiguousError{Kind: "key", Path: section.path.String() + "." + key.String()}
	}
}

type parsedKeyLine struct {
	path       KeyPath
	keyStart   int
	keyEnd     int
	valueStart int
	valueEnd   int
}

// parseKeyLine splits one line into key and value spans, tracking
// quoting so '=' and '#' inside strings are not mistaken for the
// assignment or a comment. The value span excludes the trailing
// comment and surrounding whitespace. Returns nil for non-key lines.
func parseKeyLine(line string, lineOffset int) (*parsedKeyLine, error) {
	raw := strings.TrimSuffix(line, "\n")

	inDouble, inSingle, escape := false, false, false
	eqPos := -1
keyScan:
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if escape {
			escape = false
			continue
		}
		if inDouble {
			switch ch {
			case '\\':
				escape = true
			case '"':
				inDouble = false
			}
			continue
		}
		if inSingle {
			if ch == '\'' {
				inSingle = false
			}
			continue
		}
		switch ch {
		case '"':
			inDouble = true
		case '\'':
			inSingle = true
		case '=':
			eqPos = i
			break keyScan
		case '#':
			return nil, nil
		}
	}
	if eqPos < 0 {
		return nil, nil
	}

	keyRaw := raw[:eqPos]
	keyTrimmed := strings.TrimSpace(keyRaw)
	if keyTrimmed == "" {
		return nil, nil
	}
	path, err := ParseKeyPath(keyTrimmed)
	if err != nil {
		return nil, err
	}

	keyStart := lineOffset + strings.Index(keyRaw, keyTrimmed)
	keyEnd := keyStart + len(keyTrimmed)

	valueStart := eqPos + 1
	for valueStart < len(raw) && (raw[valueStart] == ' ' || raw[valueStart] == '\t') {
		valueStart++
	}

	inDouble, inSingle, escape = false, false, false
	commentPos := -1
valueScan:
	for i := valueStart; i < len(raw); i++ {
		ch := raw[i]
		if escape {
			escape = false
			continue
		}
		if inDouble {
			switch ch {
			case '\\':
				escape = true
			case '"':
				inDouble = false
			}
			continue
		}
		if inSingle {
			if ch == '\'' {
				inSingle = false
			}
			continue
		}
		switch ch {
		case '"':
			inDouble = true
		case '\'':
			inSingle = true
		case '#':
			commentPos = i
			break valueScan
		}
	}

	valueEnd := len(raw)
	if commentPos >= 0 {
		valueEnd = commentPos
	}
	for valueEnd > valueStart && (raw[valueEnd-1] == ' ' || raw[valueEnd-1] == '\t') {
		valueEnd--
	}

	return &parsedKeyLine{
		path:       path,
		keyStart:   keyStart,
		keyEnd:     keyEnd,
		valueStart: lineOffset + valueStart,
		valueEnd:   lineOffset + valueEnd,
	}, nil
}
