package tomledit

// Constraints adjust how plans treat missing or present targets.
// EnsureAbsent turns "already there" into a no-op for inserts;
// EnsurePresent turns "missing" into a hard failure for replace and
// delete operations, which otherwise no-op.
type Constraints struct {
	EnsureAbsent  bool
	EnsurePresent bool
}

type positionKind int

const (
	positionAtEnd positionKind = iota
	positionAtBeginning
	positionAfter
	positionBefore
)

// Positioning places an inserted section relative to the document or
// to an existing section.
type Positioning struct {
	kind   positionKind
	anchor SectionPath
}

// AtEnd positions after the last byte of the file. The default.
func AtEnd() Positioning { return Positioning{kind: positionAtEnd} }

// AtBeginning positions just before the first section header, after
// any leading comments and blank lines.
func AtBeginning() Positioning { return Positioning{kind: positionAtBeginning} }

// AfterSection positions at the end of the named section.
func AfterSection(anchor SectionPath) Positioning {
	return Positioning{kind: positionAfter, anchor: anchor}
}

// BeforeSection positions at the header of the named section.
func BeforeSection(anchor SectionPath) Positioning {
	return Positioning{kind: positionBefore, anchor: anchor}
}

// ResolvePositioning folds the four optional patch-file directives
// into one Positioning. More than one directive is an error; none
// defaults to AtEnd.
func ResolvePositioning(after, before *SectionPath, atEnd, atBeginning bool) (Positioning, error) {
	count := 0
	if after != nil {
		count++
	}
	if before != nil {
		count++
	}
	if atEnd {
		count++
	}
	if atBeginning {
		count++
	}
	if count > 1 {
		return Positioning{}, &PositioningError{Message: "only one positioning directive is allowed"}
	}
	switch {
	case after != nil:
		return AfterSection(*after), nil
	case before != nil:
		return BeforeSection(*before), nil
	case atBeginning:
		return AtBeginning(), nil
	default:
		return AtEnd(), nil
	}
}
