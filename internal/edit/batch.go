package edit

import (
	"fmt"
	"os"
	"sort"
	"unicode/utf8"

	"patchsmith/internal/logging"
	"patchsmith/internal/safety"
)

// Splice applies a batch of edits belonging to one file to content in
// memory. Edits are verified against the original content independently,
// checked for overlap, and spliced from the highest offset down so no
// edit invalidates another's span. The returned outcomes align with the
// input order; spans already holding their replacement are reported
// AlreadyApplied and skipped.
func Splice(content []byte, edits []*Edit) ([]byte, []Outcome, error) {
	outcomes := make([]Outcome, len(edits))
	if len(edits) == 0 {
		return content, outcomes, nil
	}

	for _, e := range edits {
		if err := e.validate(content); err != nil {
			return nil, nil, err
		}
	}

	order := make([]int, len(edits))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := edits[order[a]], edits[order[b]]
		if ea.Start != eb.Start {
			return ea.Start > eb.Start
		}
		return ea.End > eb.End
	})

	for i := 0; i+1 < len(order); i++ {
		hi, lo := edits[order[i]], edits[order[i+1]]
		if lo.End > hi.Start {
			return nil, nil, &OverlapError{
				File:   hi.File,
				AStart: lo.Start, AEnd: lo.End,
				BStart: hi.Start, BEnd: hi.End,
			}
		}
	}

	out := content
	changed := false
	for _, idx := range order {
		e := edits[idx]
		if e.applied(content) {
			outcomes[idx] = AlreadyApplied
			continue
		}
		if err := e.verifyWitness(content); err != nil {
			return nil, nil, err
		}
		outcomes[idx] = Applied
		out = e.splice(out)
		changed = true
	}

	if changed && !utf8.Valid(out) {
		return nil, nil, fmt.Errorf("%s: %w", edits[0].File, ErrInvalidUTF8)
	}
	return out, outcomes, nil
}

// ApplyBatch applies a batch of edits that may span several files. Edits
// are grouped by canonical path and each file is rewritten at most once,
// atomically. Results align with the input order. The first failing file
// aborts the batch; files already written stay written.
func ApplyBatch(edits []*Edit, guard *safety.WorkspaceGuard) ([]Result, error) {
	if len(edits) == 0 {
		return nil, nil
	}

	type group struct {
		path    string
		indices []int
	}
	byPath := map[string]*group{}
	var groups []*group
	for i, e := range edits {
		path, err := guard.Validate(e.File)
		if err != nil {
			return nil, err
		}
		g, ok := byPath[path]
		if !ok {
			g = &group{path: path}
			byPath[path] = g
			groups = append(groups, g)
		}
		g.indices = append(g.indices, i)
	}

	results := make([]Result, len(edits))
	for _, g := range groups {
		content, err := os.ReadFile(g.path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", g.path, err)
		}

		fileEdits := make([]*Edit, len(g.indices))
		for i, idx := range g.indices {
			fileEdits[i] = edits[idx]
		}
		out, outcomes, err := Splice(content, fileEdits)
		if err != nil {
			return nil, err
		}

		changed := false
		for i, idx := range g.indices {
			e := edits[idx]
			r := Result{File: e.File, Outcome: outcomes[i]}
			if outcomes[i] == Applied {
				r.BytesChanged = len(e.NewText) - (e.End - e.Start)
				changed = true
			}
			results[idx] = r
		}

		if changed {
			if err := atomicWrite(g.path, out); err != nil {
				return nil, err
			}
			logging.EditDebug("batch wrote %s: %d edits", g.path, len(g.indices))
		}
	}
	return results, nil
}
