// Package patch loads declarative patch configurations and applies
// them to a workspace. A patch names a file, a query that locates one
// spot in it, and an operation to perform there; the applicator turns
// each patch into a byte-span edit, verifies it, and writes batches
// atomically with per-patch isolation.
package patch

import (
	"fmt"
	"strings"
)

// Query type tags as they appear in patch files.
const (
	QueryToml       = "toml"
	QueryAstGrep    = "ast-grep"
	QueryTreeSitter = "tree-sitter"
	QueryText       = "text"
)

// Operation type tags as they appear in patch files.
const (
	OpInsertSection  = "insert-section"
	OpAppendSection  = "append-section"
	OpReplaceValue   = "replace-value"
	OpDeleteSection  = "delete-section"
	OpReplaceKey     = "replace-key"
	OpReplace        = "replace"
	OpReplaceCapture = "replace-capture"
	OpDelete         = "delete"
)

// Verify method tags.
const (
	VerifyExactMatch = "exact_match"
	VerifyHash       = "hash"
)

// PatchConfig is one parsed patch file: shared metadata plus an ordered
// sequence of patch definitions.
type PatchConfig struct {
	Meta    Metadata          `toml:"meta"`
	Patches []PatchDefinition `toml:"patches"`
}

// Metadata carries config-wide settings.
type Metadata struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	// VersionRange gates the whole config against the workspace
	// version. Empty means the config applies to every version.
	VersionRange string `toml:"version_range"`
	// WorkspaceRelative controls how patch file paths resolve.
	// Unset defaults to true.
	WorkspaceRelative *bool `toml:"workspace_relative"`
}

// IsWorkspaceRelative reports whether patch paths resolve against the
// workspace root.
func (m Metadata) IsWorkspaceRelative() bool {
	return m.WorkspaceRelative == nil || *m.WorkspaceRelative
}

// PatchDefinition is a single patch: where to look, what to do there.
type PatchDefinition struct {
	ID         string       `toml:"id"`
	File       string       `toml:"file"`
	Query      Query        `toml:"query"`
	Operation  Operation    `toml:"operation"`
	Verify     *Verify      `toml:"verify"`
	Constraint *Constraints `toml:"constraint"`
}

// FunctionContext returns the optional function name that scopes this
// patch's query, or empty when unconstrained.
func (p *PatchDefinition) FunctionContext() string {
	if p.Constraint == nil {
		return ""
	}
	return p.Constraint.FunctionContext
}

// Query selects the location a patch operates on. Type picks the
// locator; the remaining fields belong to one locator each.
type Query struct {
	Type string `toml:"type"`
	// Pattern is the source pattern for ast-grep queries, or the
	// S-expression for tree-sitter queries.
	Pattern string `toml:"pattern"`
	// Search is the exact text a text query looks for.
	Search string `toml:"search"`
	// Section and Key are dotted paths for toml queries.
	Section       string `toml:"section"`
	Key           string `toml:"key"`
	EnsureAbsent  bool   `toml:"ensure_absent"`
	EnsurePresent bool   `toml:"ensure_present"`
}

// IsKeyQuery reports whether the query names a TOML key.
func (q Query) IsKeyQuery() bool { return q.Type == QueryToml && q.Key != "" }

// IsSectionQuery reports whether the query names a TOML section.
func (q Query) IsSectionQuery() bool { return q.Type == QueryToml && q.Section != "" }

// IsCodeQuery reports whether the query locates source code.
func (q Query) IsCodeQuery() bool {
	return q.Type == QueryAstGrep || q.Type == QueryTreeSitter
}

// Operation says what to do at the queried location. Type picks the
// operation; the remaining fields belong to one operation each.
type Operation struct {
	Type string `toml:"type"`
	// Text is the replacement or section body for replace,
	// replace-capture, insert-section, and append-section.
	Text    string `toml:"text"`
	Capture string `toml:"capture"`
	Value   string `toml:"value"`
	NewKey  string `toml:"new_key"`
	// InsertComment, when set on a delete, replaces the deleted span
	// with a marker comment that later runs recognize as "already
	// applied".
	InsertComment string `toml:"insert_comment"`
	Positioning
}

// Positioning places an inserted section. At most one directive may be
// set; none means at_end.
type Positioning struct {
	AfterSection  string `toml:"after_section"`
	BeforeSection string `toml:"before_section"`
	AtEnd         bool   `toml:"at_end"`
	AtBeginning   bool   `toml:"at_beginning"`
}

func (p Positioning) validate() error {
	count := 0
	if p.AfterSection != "" {
		count++
	}
	if p.BeforeSection != "" {
		count++
	}
	if p.AtEnd {
		count++
	}
	if p.AtBeginning {
		count++
	}
	if count > 1 {
		return fmt.Errorf("only one positioning directive is allowed")
	}
	return nil
}

// Constraints tighten a patch beyond its query: presence constraints
// for TOML targets, and an enclosing function for code patterns.
type Constraints struct {
	EnsureAbsent  bool `toml:"ensure_absent"`
	EnsurePresent bool `toml:"ensure_present"`
	// FunctionContext restricts pattern matching to the body of the
	// named function.
	FunctionContext string `toml:"function_context"`
}

// Verify is an author-supplied witness for the bytes a patch expects
// to replace, checked against the pre-image before the edit lands.
type Verify struct {
	Method       string `toml:"method"`
	ExpectedText string `toml:"expected_text"`
	// Algorithm names the digest for hash witnesses; xxh3 is the only
	// defined value and the default.
	Algorithm string `toml:"algorithm"`
	// Expected is the hex-encoded 64-bit digest.
	Expected string `toml:"expected"`
}

// ValidationIssue is one problem found in a patch config. Field is set
// for missing required fields, Message for invalid combinations.
type ValidationIssue struct {
	PatchID string
	Field   string
	Message string
}

func (i ValidationIssue) String() string {
	switch {
	case i.Field != "" && i.PatchID != "":
		return fmt.Sprintf("patch '%s' missing required field '%s'", i.PatchID, i.Field)
	case i.Field != "":
		return fmt.Sprintf("patch missing required field '%s'", i.Field)
	case i.PatchID != "":
		return fmt.Sprintf("patch '%s' has invalid configuration: %s", i.PatchID, i.Message)
	default:
		return i.Message
	}
}

// ValidationError collects every issue in a config so authors can fix
// them in one pass.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "\n")
}

// Validate checks structural invariants: the patch list is non-empty,
// ids are unique, required fields are present, and each operation is
// paired with a query type that can serve it.
func (c *PatchConfig) Validate() error {
	var issues []ValidationIssue
	missing := func(id, field string) {
		issues = append(issues, ValidationIssue{PatchID: id, Field: field})
	}
	combo := func(id, msg string) {
		issues = append(issues, ValidationIssue{PatchID: id, Message: msg})
	}

	if len(c.Patches) == 0 {
		issues = append(issues, ValidationIssue{Message: "patch config contains no patches"})
	}

	seen := make(map[string]bool, len(c.Patches))
	for i := range c.Patches {
		p := &c.Patches[i]

		if strings.TrimSpace(p.ID) == "" {
			missing("", "id")
		} else if seen[p.ID] {
			combo(p.ID, "duplicate patch id")
		} else {
			seen[p.ID] = true
		}
		if strings.TrimSpace(p.File) == "" {
			missing(p.ID, "file")
		}

		validateQuery(p, missing, combo)
		validateOperation(p, missing, combo)

		if v := p.Verify; v != nil {
			switch v.Method {
			case VerifyExactMatch:
				if v.ExpectedText == "" {
					missing(p.ID, "verify.expected_text")
				}
			case VerifyHash:
				if strings.TrimSpace(v.Expected) == "" {
					missing(p.ID, "verify.expected")
				}
				if v.Algorithm != "" && v.Algorithm != "xxh3" {
					combo(p.ID, fmt.Sprintf("unknown hash algorithm '%s'", v.Algorithm))
				}
			default:
				combo(p.ID, fmt.Sprintf("unknown verify method '%s'", v.Method))
			}
		}

		if con := p.Constraint; con != nil {
			if con.EnsureAbsent && con.EnsurePresent {
				combo(p.ID, "ensure_absent and ensure_present cannot both be true")
			}
			if con.FunctionContext != "" && !p.Query.IsCodeQuery() {
				combo(p.ID, "function_context requires a pattern query")
			}
		}
	}

	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

func validateQuery(p *PatchDefinition, missing func(string, string), combo func(string, string)) {
	q := &p.Query
	switch q.Type {
	case QueryToml:
		if q.Section == "" && q.Key == "" {
			missing(p.ID, "query.section")
		}
		if q.Section == "" && q.Key != "" {
			combo(p.ID, "toml query with key requires section")
		}
		if q.EnsureAbsent && q.EnsurePresent {
			combo(p.ID, "ensure_absent and ensure_present cannot both be true")
		}
	case QueryAstGrep, QueryTreeSitter:
		if strings.TrimSpace(q.Pattern) == "" {
			missing(p.ID, "query.pattern")
		}
	case QueryText:
		if strings.TrimSpace(q.Search) == "" {
			missing(p.ID, "query.search")
		}
	default:
		combo(p.ID, fmt.Sprintf("unknown query type '%s'", q.Type))
	}
}

func validateOperation(p *PatchDefinition, missing func(string, string), combo func(string, string)) {
	op := &p.Operation
	switch op.Type {
	case OpInsertSection:
		if strings.TrimSpace(op.Text) == "" {
			missing(p.ID, "operation.text")
		}
		if err := op.Positioning.validate(); err != nil {
			combo(p.ID, err.Error())
		}
		if !p.Query.IsSectionQuery() {
			combo(p.ID, "insert_section requires toml section query")
		}
	case OpAppendSection:
		if strings.TrimSpace(op.Text) == "" {
			missing(p.ID, "operation.text")
		}
		if !p.Query.IsSectionQuery() {
			combo(p.ID, "append_section requires toml section query")
		}
	case OpReplaceValue:
		if strings.TrimSpace(op.Value) == "" {
			missing(p.ID, "operation.value")
		}
		if !p.Query.IsKeyQuery() {
			combo(p.ID, "replace_value requires toml key query")
		}
	case OpReplaceKey:
		if strings.TrimSpace(op.NewKey) == "" {
			missing(p.ID, "operation.new_key")
		}
		if !p.Query.IsKeyQuery() {
			combo(p.ID, "replace_key requires toml key query")
		}
	case OpDeleteSection:
		if !p.Query.IsSectionQuery() {
			combo(p.ID, "delete_section requires toml section query")
		}
	case OpReplace:
		if strings.TrimSpace(op.Text) == "" {
			missing(p.ID, "operation.text")
		}
		if p.Query.Type == QueryToml {
			combo(p.ID, "replace requires a code or text query")
		}
	case OpReplaceCapture:
		if strings.TrimSpace(op.Capture) == "" {
			missing(p.ID, "operation.capture")
		}
		if strings.TrimSpace(op.Text) == "" {
			missing(p.ID, "operation.text")
		}
		if !p.Query.IsCodeQuery() {
			combo(p.ID, "replace_capture requires a pattern query")
		}
	case OpDelete:
		if p.Query.Type == QueryToml {
			combo(p.ID, "delete requires a code or text query")
		}
	default:
		combo(p.ID, fmt.Sprintf("unknown operation type '%s'", op.Type))
	}

	if p.Query.Type == QueryText && op.Type != OpReplace && op.Type != "" {
		combo(p.ID, "text query only supports the replace operation")
	}
}
