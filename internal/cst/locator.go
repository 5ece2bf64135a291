package cst

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"patchsmith/internal/logging"
)

// TargetKind selects the construct category a Target names.
type TargetKind int

const (
	TargetFunction TargetKind = iota + 1
	TargetStruct
	TargetEnum
	TargetImpl
	TargetConst
	TargetStatic
	TargetModule
	TargetUse
)

func (k TargetKind) String() string {
	switch k {
	case TargetFunction:
		return "function"
	case TargetStruct:
		return "struct"
	case TargetEnum:
		return "enum"
	case TargetImpl:
		return "impl"
	case TargetConst:
		return "const"
	case TargetStatic:
		return "static"
	case TargetModule:
		return "module"
	case TargetUse:
		return "use"
	default:
		return "unknown"
	}
}

// Target names one construct in a source file: a function, struct,
// enum, impl block (optionally narrowed to one trait), const, static,
// module, or use declaration.
type Target struct {
	Kind TargetKind
	Name string
	// Trait narrows TargetImpl to the impl of one trait for the type.
	Trait string
}

func (t Target) String() string {
	if t.Kind == TargetImpl && t.Trait != "" {
		return fmt.Sprintf("impl %s for %s", t.Trait, t.Name)
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Name)
}

// query renders the target as a tree-sitter query with an @item capture
// covering the construct.
func (t Target) query() (string, error) {
	name := strconv.Quote(t.Name)
	switch t.Kind {
	case TargetFunction:
		return fmt.Sprintf(`((function_item name: (identifier) @name) @item (#eq? @name %s))`, name), nil
	case TargetStruct:
		return fmt.Sprintf(`((struct_item name: (type_identifier) @name) @item (#eq? @name %s))`, name), nil
	case TargetEnum:
		return fmt.Sprintf(`((enum_item name: (type_identifier) @name) @item (#eq? @name %s))`, name), nil
	case TargetImpl:
		if t.Trait != "" {
			return fmt.Sprintf(
				`((impl_item trait: (type_identifier) @trait type: (type_identifier) @type) @item (#eq? @trait %s) (#eq? @type %s))`,
				strconv.Quote(t.Trait), name), nil
		}
		return fmt.Sprintf(`((impl_item type: (type_identifier) @type) @item (#eq? @type %s))`, name), nil
	case TargetConst:
		return fmt.Sprintf(`((const_item name: (identifier) @name) @item (#eq? @name %s))`, name), nil
	case TargetStatic:
		return fmt.Sprintf(`((static_item name: (identifier) @name) @item (#eq? @name %s))`, name), nil
	case TargetModule:
		return fmt.Sprintf(`((mod_item name: (identifier) @name) @item (#eq? @name %s))`, name), nil
	case TargetUse:
		return fmt.Sprintf(`((use_declaration argument: (_) @path) @item (#eq? @path %s))`, name), nil
	default:
		return "", fmt.Errorf("unknown target kind %d", t.Kind)
	}
}

// Locate resolves a target to its span in src. The span covers the whole
// construct including attributes and doc comments immediately above it.
// Exactly one occurrence must exist.
func Locate(ctx context.Context, src []byte, target Target) (Span, error) {
	return locateWithin(ctx, src, target, nil)
}

// LocateIn resolves a target considering only occurrences that lie
// within the given enclosing span, so a name that is ambiguous at file
// scope can still be unique inside one module or impl block.
func LocateIn(ctx context.Context, src []byte, target Target, enclosing Span) (Span, error) {
	return locateWithin(ctx, src, target, &enclosing)
}

func locateWithin(ctx context.Context, src []byte, target Target, enclosing *Span) (Span, error) {
	timer := logging.StartTimer(logging.CategoryCST, "Locate")
	defer timer.Stop()

	expr, err := target.query()
	if err != nil {
		return Span{}, err
	}
	q, err := CompileQuery(expr)
	if err != nil {
		return Span{}, err
	}
	defer q.Close()

	s, err := Parse(ctx, src)
	if err != nil {
		return Span{}, err
	}
	defer s.Close()

	what := target.String()
	nodes := q.captureNodes(s, "item")
	if enclosing != nil {
		what = fmt.Sprintf("%s within [%d, %d)", target, enclosing.Start, enclosing.End)
		kept := nodes[:0]
		for _, n := range nodes {
			if int(n.StartByte()) >= enclosing.Start && int(n.EndByte()) <= enclosing.End {
				kept = append(kept, n)
			}
		}
		nodes = kept
	}
	switch len(nodes) {
	case 0:
		return Span{}, &NoMatchError{Query: what}
	case 1:
	default:
		return Span{}, &AmbiguousMatchError{Query: what, Count: len(nodes)}
	}

	node := nodes[0]
	start := extendOverLeadingTrivia(node, s)
	end := int(node.EndByte())
	return Span{Start: start, End: end, Text: string(src[start:end])}, nil
}

// extendOverLeadingTrivia walks preceding siblings and pulls attributes
// and outer doc comments into the construct's span, as long as only
// whitespace separates them from it.
func extendOverLeadingTrivia(n *sitter.Node, s *Source) int {
	start := int(n.StartByte())
	for prev := n.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		if !isLeadingTrivia(prev, s) {
			break
		}
		gap := s.src[prev.EndByte():start]
		if len(strings.TrimSpace(string(gap))) != 0 {
			break
		}
		start = int(prev.StartByte())
	}
	return start
}

func isLeadingTrivia(n *sitter.Node, s *Source) bool {
	switch n.Type() {
	case "attribute_item":
		return true
	case "line_comment":
		return strings.HasPrefix(s.Text(n), "///")
	case "block_comment":
		return strings.HasPrefix(s.Text(n), "/**")
	default:
		return false
	}
}
