package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"patchsmith/internal/cst"
	"patchsmith/internal/edit"
	"patchsmith/internal/logging"
	"patchsmith/internal/pattern"
	"patchsmith/internal/safety"
	"patchsmith/internal/tomledit"
)

// UnsupportedOperationError reports an operation paired with a query
// type that cannot serve it. Config validation rejects these up front;
// the applicator keeps the check as a backstop for hand-built configs.
type UnsupportedOperationError struct {
	PatchID   string
	Operation string
	Query     string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("patch '%s': operation '%s' is not supported for '%s' queries",
		e.PatchID, e.Operation, e.Query)
}

// Options tune a run without changing its semantics.
type Options struct {
	// DryRun plans and validates every patch but writes nothing.
	DryRun bool
	// Diff attaches a unified diff of each patch's effect to its
	// result.
	Diff bool
}

// Applicator turns a patch config into edits against one workspace.
// Every file operation goes through its guard; patches are processed
// sequentially and isolated from each other's failures.
type Applicator struct {
	guard   *safety.WorkspaceGuard
	version string
	opts    Options
}

// NewApplicator builds an applicator rooted at workspaceRoot.
// workspaceVersion feeds the config-level version gate.
func NewApplicator(workspaceRoot, workspaceVersion string, opts Options) (*Applicator, error) {
	guard, err := safety.NewWorkspaceGuard(workspaceRoot)
	if err != nil {
		return nil, err
	}
	return &Applicator{guard: guard, version: workspaceVersion, opts: opts}, nil
}

// Guard exposes the workspace guard, shared with callers that perform
// their own reads (version detection, watch mode).
func (a *Applicator) Guard() *safety.WorkspaceGuard { return a.guard }

// ApplyPatches applies a patch configuration to a workspace and
// returns one result per patch, in declaration order.
func ApplyPatches(ctx context.Context, cfg *PatchConfig, workspaceRoot, workspaceVersion string) (*Report, error) {
	a, err := NewApplicator(workspaceRoot, workspaceVersion, Options{})
	if err != nil {
		return nil, err
	}
	return a.Apply(ctx, cfg), nil
}

// Apply runs every patch in cfg to a terminal status. A patch moves
// through version gate, path resolution, locate, plan, and verify; the
// planned edits for each file are simulated and re-validated in memory
// before the file is rewritten once, atomically. A failed patch never
// aborts the run, and a failed file batch leaves that file untouched.
func (a *Applicator) Apply(ctx context.Context, cfg *PatchConfig) *Report {
	report := &Report{
		RunID:            uuid.NewString(),
		Workspace:        a.guard.Root(),
		WorkspaceVersion: a.version,
		DryRun:           a.opts.DryRun,
		StartedAt:        time.Now(),
	}
	logging.Patch("run %s: %d patches against %s (version %s, dry-run %v)",
		report.RunID, len(cfg.Patches), report.Workspace, a.version, a.opts.DryRun)
	logging.LogAudit(logging.AuditEvent{
		EventType: logging.AuditRunStart,
		RunID:     report.RunID,
		Message:   fmt.Sprintf("%s: %d patches", cfg.Meta.Name, len(cfg.Patches)),
	})

	report.Results = a.run(ctx, cfg)
	report.Duration = time.Since(report.StartedAt)

	for _, res := range report.Results {
		event := logging.AuditEvent{
			EventType:    logging.AuditPatchResult,
			RunID:        report.RunID,
			PatchID:      res.ID,
			File:         res.File,
			Status:       res.Status.String(),
			BytesChanged: res.BytesChanged,
		}
		if res.Err != nil {
			event.Error = res.Err.Error()
		}
		logging.LogAudit(event)
	}
	logging.LogAudit(logging.AuditEvent{
		EventType:  logging.AuditRunEnd,
		RunID:      report.RunID,
		DurationMs: report.Duration.Milliseconds(),
		Message:    report.Summary(),
	})
	logging.Patch("run %s: %s in %v", report.RunID, report.Summary(), report.Duration)
	return report
}

func (a *Applicator) run(ctx context.Context, cfg *PatchConfig) []PatchResult {
	results := make([]PatchResult, len(cfg.Patches))

	// The version range lives on the config, so the gate is decided
	// once. Skips never touch any target file.
	ok, err := MatchesVersion(a.version, cfg.Meta.VersionRange)
	if err != nil {
		for i := range cfg.Patches {
			results[i] = failedResult(cfg.Patches[i].ID, "", err)
		}
		return results
	}
	if !ok {
		reason := fmt.Sprintf("workspace version %s does not satisfy '%s'",
			a.version, strings.TrimSpace(cfg.Meta.VersionRange))
		for i := range cfg.Patches {
			results[i] = PatchResult{ID: cfg.Patches[i].ID, Status: StatusSkippedVersion, Reason: reason}
		}
		return results
	}

	// Group patches by resolved target so each file is read once and
	// rewritten at most once.
	type fileGroup struct {
		display string
		path    string
		indices []int
	}
	var groups []*fileGroup
	byPath := map[string]*fileGroup{}
	for i := range cfg.Patches {
		p := &cfg.Patches[i]
		target := p.File
		if cfg.Meta.IsWorkspaceRelative() && !filepath.IsAbs(target) {
			target = filepath.Join(a.guard.Root(), target)
		}
		canon, err := a.guard.Validate(target)
		if err != nil {
			results[i] = failedResult(p.ID, target, err)
			continue
		}
		g := byPath[canon]
		if g == nil {
			g = &fileGroup{display: target, path: canon}
			byPath[canon] = g
			groups = append(groups, g)
		}
		g.indices = append(g.indices, i)
	}

	for _, g := range groups {
		a.processFile(ctx, cfg, g.display, g.path, g.indices, results)
	}
	return results
}

// processFile plans every patch targeting one file, simulates the
// surviving edits as a batch, validates the would-be content, and only
// then writes. Failures before the write mark the affected patches
// failed and leave the file untouched.
func (a *Applicator) processFile(ctx context.Context, cfg *PatchConfig, display, path string, indices []int, results []PatchResult) {
	raw, err := os.ReadFile(path)
	if err != nil {
		for _, idx := range indices {
			results[idx] = failedResult(cfg.Patches[idx].ID, display, fmt.Errorf("read target: %w", err))
		}
		return
	}
	content := string(raw)

	var kept []int
	var edits []*edit.Edit
	for _, idx := range indices {
		p := &cfg.Patches[idx]
		ed, already, err := a.computeEdit(ctx, p, display, content)
		switch {
		case err != nil:
			logging.PatchWarn("patch %s failed to plan: %v", p.ID, err)
			results[idx] = failedResult(p.ID, display, err)
		case ed == nil:
			results[idx] = PatchResult{ID: p.ID, File: display, Status: StatusAlreadyApplied, Reason: already}
		default:
			kept = append(kept, idx)
			edits = append(edits, ed)
		}
	}
	if len(edits) == 0 {
		return
	}

	// Simulate the whole batch in memory. Overlaps, stale witnesses,
	// and newly introduced parse errors all surface here, before any
	// byte reaches disk.
	out, outcomes, err := edit.Splice(raw, edits)
	if err != nil {
		failBatch(cfg, kept, display, err, results)
		return
	}
	if err := a.validatePostImage(ctx, display, raw, out); err != nil {
		failBatch(cfg, kept, display, err, results)
		return
	}

	diffs := make([]string, len(edits))
	if a.opts.Diff {
		for i, ed := range edits {
			single, _, err := edit.Splice(raw, []*edit.Edit{ed})
			if err == nil {
				diffs[i] = unifiedDiff(display, content, string(single))
			}
		}
	}

	if a.opts.DryRun {
		for i, idx := range kept {
			res := PatchResult{ID: cfg.Patches[idx].ID, File: display, Diff: diffs[i]}
			if outcomes[i] == edit.AlreadyApplied {
				res.Status = StatusAlreadyApplied
				res.Reason = "span already holds the replacement"
			} else {
				res.Status = StatusApplied
				res.BytesChanged = len(edits[i].NewText) - (edits[i].End - edits[i].Start)
			}
			results[idx] = res
		}
		return
	}

	applied, err := edit.ApplyBatch(edits, a.guard)
	if err != nil {
		failBatch(cfg, kept, display, err, results)
		return
	}
	for i, idx := range kept {
		res := PatchResult{ID: cfg.Patches[idx].ID, File: display, Diff: diffs[i]}
		if applied[i].Outcome == edit.AlreadyApplied {
			res.Status = StatusAlreadyApplied
			res.Reason = "span already holds the replacement"
		} else {
			res.Status = StatusApplied
			res.BytesChanged = applied[i].BytesChanged
		}
		results[idx] = res
	}
	logging.PatchDebug("file %s: %d edits in batch", display, len(edits))
}

// failBatch marks every planned patch of one file failed. The batch is
// all-or-nothing per file: a stale witness or overlap anywhere in it
// means the file stays untouched.
func failBatch(cfg *PatchConfig, kept []int, display string, err error, results []PatchResult) {
	for _, idx := range kept {
		results[idx] = failedResult(cfg.Patches[idx].ID, display, err)
	}
}

// validatePostImage re-validates a file's would-be content by type:
// Rust sources must not gain parse errors, TOML documents must still
// parse. Other file types pass through.
func (a *Applicator) validatePostImage(ctx context.Context, path string, before, after []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rs":
		return cst.ValidateEdit(ctx, before, after)
	case ".toml":
		return tomledit.ValidateDocument(string(after))
	default:
		return nil
	}
}

// computeEdit resolves one patch to either a planned edit, an
// already-applied reason, or an error. No file I/O happens here.
func (a *Applicator) computeEdit(ctx context.Context, p *PatchDefinition, file, content string) (*edit.Edit, string, error) {
	timer := logging.StartTimer(logging.CategoryPatch, "plan "+p.ID)
	defer timer.Stop()

	switch p.Query.Type {
	case QueryText:
		return a.planText(p, file, content)
	case QueryAstGrep:
		return a.planPattern(ctx, p, file, content)
	case QueryTreeSitter:
		return a.planCstQuery(ctx, p, file, content)
	case QueryToml:
		return a.planToml(p, file, content)
	default:
		return nil, "", &UnsupportedOperationError{PatchID: p.ID, Operation: p.Operation.Type, Query: p.Query.Type}
	}
}

// planText locates an exact text occurrence. Only replace is defined
// for text queries; idempotency is detected by the replacement text
// already being present.
func (a *Applicator) planText(p *PatchDefinition, file, content string) (*edit.Edit, string, error) {
	if p.Operation.Type != OpReplace {
		return nil, "", &UnsupportedOperationError{PatchID: p.ID, Operation: p.Operation.Type, Query: QueryText}
	}
	search := p.Query.Search
	count := strings.Count(content, search)
	if count == 0 {
		if strings.Contains(content, p.Operation.Text) {
			return nil, "replacement text already present", nil
		}
		return nil, "", &cst.NoMatchError{Query: fmt.Sprintf("text %q", search)}
	}
	if count > 1 {
		return nil, "", &cst.AmbiguousMatchError{Query: fmt.Sprintf("text %q", search), Count: count}
	}
	start := strings.Index(content, search)
	ed := edit.NewFromBefore(file, start, start+len(search), p.Operation.Text, search)
	return a.overrideWitness(p, ed)
}

// planPattern matches an ast-grep style pattern and applies a code
// operation to its unique match.
func (a *Applicator) planPattern(ctx context.Context, p *PatchDefinition, file, content string) (*edit.Edit, string, error) {
	pat, err := pattern.Get(p.Query.Pattern)
	if err != nil {
		return nil, "", err
	}
	src, err := cst.Parse(ctx, []byte(content))
	if err != nil {
		return nil, "", err
	}
	defer src.Close()

	var matches []pattern.Match
	if fc := p.FunctionContext(); fc != "" {
		matches, err = pattern.FindInConstruct(ctx, src, cst.Target{Kind: cst.TargetFunction, Name: fc}, pat)
		if err != nil {
			var nm *cst.NoMatchError
			if errors.As(err, &nm) && p.Operation.Type == OpDelete {
				return a.planDeleteFallback(p, content)
			}
			return nil, "", err
		}
	} else {
		matches = pat.FindAll(src)
	}
	return a.planFromMatches(ctx, p, file, content, matches)
}

// planCstQuery runs a raw tree-sitter S-expression query. The overall
// match span covers every capture; individual captures are addressable
// by replace-capture.
func (a *Applicator) planCstQuery(ctx context.Context, p *PatchDefinition, file, content string) (*edit.Edit, string, error) {
	q, err := cst.CompileQuery(p.Query.Pattern)
	if err != nil {
		return nil, "", err
	}
	defer q.Close()

	src, err := cst.Parse(ctx, []byte(content))
	if err != nil {
		return nil, "", err
	}
	defer src.Close()

	found := q.Matches(src)
	if fc := p.FunctionContext(); fc != "" {
		span, err := cst.Locate(ctx, src.Bytes(), cst.Target{Kind: cst.TargetFunction, Name: fc})
		if err != nil {
			var nm *cst.NoMatchError
			if errors.As(err, &nm) && p.Operation.Type == OpDelete {
				return a.planDeleteFallback(p, content)
			}
			return nil, "", err
		}
		kept := found[:0]
		for _, qm := range found {
			if qm.Start >= span.Start && qm.End <= span.End {
				kept = append(kept, qm)
			}
		}
		found = kept
	}

	matches := make([]pattern.Match, len(found))
	for i, qm := range found {
		matches[i] = pattern.Match{Start: qm.Start, End: qm.End, Text: qm.Text, Captures: qm.Captures}
	}
	return a.planFromMatches(ctx, p, file, content, matches)
}

// planFromMatches enforces selector uniqueness and turns the single
// match into an edit for the patch's operation.
func (a *Applicator) planFromMatches(ctx context.Context, p *PatchDefinition, file, content string, matches []pattern.Match) (*edit.Edit, string, error) {
	if len(matches) == 0 {
		if p.Operation.Type == OpDelete {
			return a.planDeleteFallback(p, content)
		}
		return nil, "", &cst.NoMatchError{Query: p.Query.Pattern}
	}
	if len(matches) > 1 {
		return nil, "", &cst.AmbiguousMatchError{Query: p.Query.Pattern, Count: len(matches)}
	}
	m := matches[0]

	var ed *edit.Edit
	switch p.Operation.Type {
	case OpReplace:
		// Templates expand before any comparison: the match must be
		// judged against the text that would actually land in the file.
		newText := pattern.Substitute(p.Operation.Text, m)
		if m.Text == newText {
			return nil, "match already equals the replacement", nil
		}
		if err := validateReplacement(ctx, newText); err != nil {
			return nil, "", err
		}
		ed = pattern.ReplaceMatch(file, m, p.Operation.Text)
	case OpReplaceCapture:
		var err error
		ed, err = pattern.ReplaceCapture(file, m, p.Operation.Capture, p.Operation.Text)
		if err != nil {
			return nil, "", err
		}
	case OpDelete:
		if c := p.Operation.InsertComment; c != "" {
			ed = pattern.ReplaceMatch(file, m, c)
		} else {
			ed = pattern.Delete(file, m)
		}
	default:
		return nil, "", &UnsupportedOperationError{PatchID: p.ID, Operation: p.Operation.Type, Query: p.Query.Type}
	}
	return a.overrideWitness(p, ed)
}

// planDeleteFallback downgrades a no-match delete to already-applied:
// the marker comment proves an earlier run, and a vanished pattern
// means there is nothing left to delete either way.
func (a *Applicator) planDeleteFallback(p *PatchDefinition, content string) (*edit.Edit, string, error) {
	if c := p.Operation.InsertComment; c != "" && strings.Contains(content, c) {
		return nil, "deletion marker already present", nil
	}
	return nil, "pattern no longer matches", nil
}

// planToml plans a formatting-preserving TOML operation. Presence
// constraints merge from the query and the patch constraint block.
func (a *Applicator) planToml(p *PatchDefinition, file, content string) (*edit.Edit, string, error) {
	editor, err := tomledit.NewEditor(file, content)
	if err != nil {
		return nil, "", err
	}

	section, err := tomledit.ParseSectionPath(p.Query.Section)
	if err != nil {
		return nil, "", err
	}
	q := tomledit.SectionQuery(section)
	if p.Query.Key != "" {
		key, err := tomledit.ParseKeyPath(p.Query.Key)
		if err != nil {
			return nil, "", err
		}
		q = tomledit.KeyQuery(section, key)
	}

	cons := tomledit.Constraints{
		EnsureAbsent:  p.Query.EnsureAbsent,
		EnsurePresent: p.Query.EnsurePresent,
	}
	if c := p.Constraint; c != nil {
		cons.EnsureAbsent = cons.EnsureAbsent || c.EnsureAbsent
		cons.EnsurePresent = cons.EnsurePresent || c.EnsurePresent
	}

	var plan tomledit.Plan
	switch p.Operation.Type {
	case OpInsertSection, OpAppendSection:
		// Section creation is idempotent by presence: a section that
		// exists, whatever its body, counts as applied.
		if editor.SectionExists(p.Query.Section) {
			return nil, fmt.Sprintf("section [%s] already present", p.Query.Section), nil
		}
		if p.Operation.Type == OpAppendSection {
			plan, err = editor.PlanAppendSection(q, p.Operation.Text)
		} else {
			var pos tomledit.Positioning
			pos, err = resolvePositioning(p.Operation.Positioning)
			if err == nil {
				plan, err = editor.PlanInsertSection(q, p.Operation.Text, pos, cons)
			}
		}
	case OpReplaceValue:
		plan, err = editor.PlanReplaceValue(q, p.Operation.Value, cons)
	case OpReplaceKey:
		plan, err = editor.PlanReplaceKey(q, p.Operation.NewKey, cons)
	case OpDeleteSection:
		plan, err = editor.PlanDeleteSection(q, cons)
	default:
		return nil, "", &UnsupportedOperationError{PatchID: p.ID, Operation: p.Operation.Type, Query: QueryToml}
	}
	if err != nil {
		return nil, "", err
	}
	if plan.IsNoOp() {
		return nil, plan.Reason, nil
	}
	return a.overrideWitness(p, plan.Edit)
}

// overrideWitness swaps the edit's derived witness for the patch's
// verify block when one is declared. The witness is checked against
// the pre-image at splice time; the already-applied short-circuit runs
// first so idempotent re-runs survive a witness pinned to old text.
func (a *Applicator) overrideWitness(p *PatchDefinition, ed *edit.Edit) (*edit.Edit, string, error) {
	if p.Verify == nil {
		return ed, "", nil
	}
	switch p.Verify.Method {
	case VerifyExactMatch:
		ed.Verify = edit.ExactMatch(p.Verify.ExpectedText)
	case VerifyHash:
		v, err := edit.ParseHashHex(p.Verify.Expected)
		if err != nil {
			return nil, "", err
		}
		ed.Verify = v
	default:
		return nil, "", fmt.Errorf("patch '%s': unknown verify method '%s'", p.ID, p.Verify.Method)
	}
	return ed, "", nil
}

// replacementKinds are the syntactic categories a whole-match
// replacement may occupy, broadest first. Statement position accepts
// nested items and tail expressions, so most code passes there.
var replacementKinds = []cst.SnippetKind{
	cst.SnippetStatement,
	cst.SnippetExpression,
	cst.SnippetType,
	cst.SnippetFile,
}

// validateReplacement refuses replacement text that parses under none
// of the known categories. Capture splices skip this check: a capture
// may occupy fragment positions no category covers, and the post-image
// validation still guards the final file.
func validateReplacement(ctx context.Context, text string) error {
	var first error
	for _, kind := range replacementKinds {
		err := cst.ValidateSnippet(ctx, text, kind)
		if err == nil {
			return nil
		}
		if first == nil {
			first = err
		}
	}
	return first
}

func resolvePositioning(pos Positioning) (tomledit.Positioning, error) {
	var after, before *tomledit.SectionPath
	if pos.AfterSection != "" {
		p, err := tomledit.ParseSectionPath(pos.AfterSection)
		if err != nil {
			return tomledit.Positioning{}, err
		}
		after = &p
	}
	if pos.BeforeSection != "" {
		p, err := tomledit.ParseSectionPath(pos.BeforeSection)
		if err != nil {
			return tomledit.Positioning{}, err
		}
		before = &p
	}
	return tomledit.ResolvePositioning(after, before, pos.AtEnd, pos.AtBeginning)
}

func failedResult(id, file string, err error) PatchResult {
	return PatchResult{ID: id, File: file, Status: StatusFailed, Reason: err.Error(), Err: err}
}
