package minify

import (
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"pyslim/internal/config"
	"pyslim/internal/errors"
	"pyslim/internal/graph"
	"pyslim/internal/parser"
)

// replacement substitutes source bytes [start, end) with text.
type replacement struct {
	start uint
	end   uint
	text  string
}

type Rewriter struct {
	planner *Planner
}

func NewRewriter(cfg config.Minify) *Rewriter {
	return &Rewriter{planner: NewPlanner(cfg)}
}

// RewriteModule produces the minified source of one reachable module:
// unreachable top-level functions and classes are removed, and locals of the
// surviving functions are renamed per plan. The output is deterministic and
// running the rewrite on its own output reproduces it.
func (rw *Rewriter) RewriteModule(file *parser.File, res *graph.Result) ([]byte, error) {
	pruned := pruneRanges(file, res)

	tree, err := parser.ParseTree(file.Source)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "reparse for rewrite failed").
			WithContext(errors.CtxPath, file.Path)
	}
	defer tree.Close()

	var repls []replacement
	for _, r := range pruned {
		repls = append(repls, replacement{start: r.start, end: r.end})
	}

	scopes := parser.BuildScopes(tree.RootNode(), file.Source)
	for _, plan := range rw.planner.PlanScopes(scopes) {
		if plan.Skipped || len(plan.Renames) == 0 {
			continue
		}
		if insidePruned(plan.Scope.Node, pruned) {
			continue
		}
		repls = append(repls, renameOccurrences(file.Source, plan)...)
	}

	return apply(file.Source, repls), nil
}

// pruneRanges returns the byte ranges of unreachable top-level definitions.
// Module variables always survive: they execute at import time.
func pruneRanges(file *parser.File, res *graph.Result) []replacement {
	var ranges []replacement
	for _, def := range file.Defs {
		if def.Kind == parser.KindVariable {
			continue
		}
		if res.SymbolReachable(file.Module, def.Name) {
			continue
		}
		end := def.EndByte
		// swallow the trailing blank lines of the removed block
		for end < uint(len(file.Source)) && file.Source[end] == '\n' {
			end++
		}
		ranges = append(ranges, replacement{start: def.StartByte, end: end})
	}
	return ranges
}

func insidePruned(node *sitter.Node, pruned []replacement) bool {
	for _, r := range pruned {
		if node.StartByte() >= r.start && node.EndByte() <= r.end {
			return true
		}
	}
	return false
}

// renameOccurrences walks one function subtree and yields a replacement for
// every identifier occurrence of a renamed local. Nested scopes, attribute
// names, and call keyword names are never touched.
func renameOccurrences(source []byte, plan *Plan) []replacement {
	var repls []replacement
	fn := plan.Scope.Node

	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		switch node.Kind() {
		case "identifier":
			name := string(source[node.StartByte():node.EndByte()])
			if replacement, ok := plan.Renames[name]; ok {
				repls = append(repls, newIdent(node, replacement))
			}
			return
		case "attribute":
			walk(node.ChildByFieldName("object"))
			return
		case "keyword_argument":
			walk(node.ChildByFieldName("value"))
			return
		case "function_definition", "class_definition", "lambda":
			// covered by the nested scope's own plan, if any
			return
		case "decorated_definition":
			for i := uint(0); i < node.ChildCount(); i++ {
				if node.Child(i).Kind() == "decorator" {
					walk(node.Child(i))
				}
			}
			return
		case "import_statement":
			repls = append(repls, rewriteImport(source, node, plan)...)
			return
		case "import_from_statement":
			repls = append(repls, rewriteFromImport(source, node, plan)...)
			return
		case "global_statement", "nonlocal_statement", "string":
			return
		}
		for i := uint(0); i < node.ChildCount(); i++ {
			walk(node.Child(i))
		}
	}

	// parameters and body, but never the function's own name
	walk(fn.ChildByFieldName("parameters"))
	walk(fn.ChildByFieldName("return_type"))
	walk(fn.ChildByFieldName("body"))
	return repls
}

func newIdent(node *sitter.Node, text string) replacement {
	return replacement{start: node.StartByte(), end: node.EndByte(), text: text}
}

// rewriteImport turns "import json" into "import json as b" when the bound
// name is renamed. Dotted and aliased imports were reserved at plan time.
func rewriteImport(source []byte, node *sitter.Node, plan *Plan) []replacement {
	var repls []replacement
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() != "dotted_name" && child.Kind() != "identifier" {
			continue
		}
		name := string(source[child.StartByte():child.EndByte()])
		if strings.Contains(name, ".") {
			continue
		}
		if replacement, ok := plan.Renames[name]; ok {
			repls = append(repls, newIdent(child, name+" as "+replacement))
		}
	}
	return repls
}

// rewriteFromImport aliases renamed from-import items in place.
func rewriteFromImport(source []byte, node *sitter.Node, plan *Plan) []replacement {
	var repls []replacement
	sawImport := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "import":
			sawImport = true
		case "dotted_name", "identifier":
			if !sawImport {
				continue
			}
			name := string(source[child.StartByte():child.EndByte()])
			if replacement, ok := plan.Renames[name]; ok {
				repls = append(repls, newIdent(child, name+" as "+replacement))
			}
		}
	}
	return repls
}

// apply performs replacements back to front so earlier offsets stay valid.
// Overlapping rename replacements inside pruned ranges are dropped.
func apply(source []byte, repls []replacement) []byte {
	if len(repls) == 0 {
		out := make([]byte, len(source))
		copy(out, source)
		return out
	}

	sort.Slice(repls, func(i, j int) bool {
		if repls[i].start != repls[j].start {
			return repls[i].start > repls[j].start
		}
		return repls[i].end > repls[j].end
	})

	out := make([]byte, len(source))
	copy(out, source)
	var lastStart = uint(len(out))
	for _, r := range repls {
		if r.end > lastStart {
			continue // swallowed by a wider replacement already applied
		}
		out = append(out[:r.start], append([]byte(r.text), out[r.end:]...)...)
		lastStart = r.start
	}
	return out
}
