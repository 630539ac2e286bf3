package parser

import (
	"strings"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// resourceLoadFuncs are the importlib.resources accessors that take a package
// and a resource name.
var resourceLoadFuncs = map[string]bool{
	"open_text":   true,
	"read_text":   true,
	"open_binary": true,
	"read_binary": true,
}

// reflectiveAttrs observe a definition's identity at runtime; definitions
// touching them keep their original names.
var reflectiveAttrs = map[string]bool{
	"__name__":     true,
	"__qualname__": true,
	"__dict__":     true,
}

var introspectionCalls = map[string]bool{
	"globals": true,
	"locals":  true,
	"vars":    true,
	"eval":    true,
	"exec":    true,
}

// PythonExtractor builds the source model for one module. Statement and
// expression kinds dispatch through an ExtractorEngine; kinds without a
// handler are glue nodes the engine descends through.
type PythonExtractor struct {
	engine *ExtractorEngine
}

func NewPythonExtractor() *PythonExtractor {
	e := &PythonExtractor{}
	consume := func(*ExtractionContext, *sitter.Node) bool { return true }
	scanExpr := func(ctx *ExtractionContext, node *sitter.Node) bool {
		e.scan(ctx, node, ctx.moduleSink(), true)
		return true
	}
	e.engine = NewExtractorEngine(map[string]NodeHandler{
		"import_statement": func(ctx *ExtractionContext, node *sitter.Node) bool {
			e.extractImport(ctx, node, ctx.Guard)
			return true
		},
		"import_from_statement": func(ctx *ExtractionContext, node *sitter.Node) bool {
			e.extractFromImport(ctx, node, ctx.Guard)
			return true
		},
		// __future__ directives carry no dependency
		"future_import_statement": consume,
		"function_definition":     e.topLevelDefinition,
		"class_definition":        e.topLevelDefinition,
		"decorated_definition": func(ctx *ExtractionContext, node *sitter.Node) bool {
			if inner := node.ChildByFieldName("definition"); inner != nil {
				ctx.File.Defs = append(ctx.File.Defs, e.definition(ctx, inner, node))
			}
			return true
		},
		"if_statement": func(ctx *ExtractionContext, node *sitter.Node) bool {
			e.extractIf(ctx, node, ctx.Guard)
			return true
		},
		"try_statement": func(ctx *ExtractionContext, node *sitter.Node) bool {
			e.extractTry(ctx, node)
			return true
		},
		"for_statement":   e.guardedLoop,
		"while_statement": e.guardedLoop,
		"with_statement":  e.guardedLoop,
		"expression_statement": func(ctx *ExtractionContext, node *sitter.Node) bool {
			e.extractExpressionStatement(ctx, node)
			return true
		},
		"comment": consume,
		// expression kinds route into the reference scanner
		"identifier":       scanExpr,
		"attribute":        scanExpr,
		"call":             scanExpr,
		"keyword_argument": scanExpr,
	})
	return e
}

func (e *PythonExtractor) Extract(root *sitter.Node, source []byte, filePath string) (*File, error) {
	file := &File{
		Path:     filePath,
		Source:   source,
		ParsedAt: time.Now(),
	}

	ctx := &ExtractionContext{Source: source, File: file}
	e.block(ctx, root, GuardNone)

	for _, imp := range file.Imports {
		if imp.Wildcard {
			file.Flags.HasWildcardImport = true
		}
		if imp.Dynamic {
			file.Flags.HasDynamicImport = true
		}
	}
	return file, nil
}

// block walks the statements of a module or suite under one import guard.
func (e *PythonExtractor) block(ctx *ExtractionContext, node *sitter.Node, guard GuardKind) {
	prev := ctx.Guard
	ctx.Guard = guard
	for i := uint(0); i < node.ChildCount(); i++ {
		e.engine.Walk(ctx, node.Child(i))
	}
	ctx.Guard = prev
}

func (e *PythonExtractor) topLevelDefinition(ctx *ExtractionContext, node *sitter.Node) bool {
	ctx.File.Defs = append(ctx.File.Defs, e.definition(ctx, node, node))
	return true
}

// guardedLoop treats loop and with bodies as conditionally executed and scans
// their headers at module level.
func (e *PythonExtractor) guardedLoop(ctx *ExtractionContext, node *sitter.Node) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == "block" {
			e.block(ctx, child, GuardConditional)
		} else {
			e.scan(ctx, child, ctx.moduleSink(), true)
		}
	}
	return true
}

func (e *PythonExtractor) extractTry(ctx *ExtractionContext, node *sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "block":
			e.block(ctx, child, GuardConditional)
		case "except_clause", "except_group_clause", "else_clause", "finally_clause":
			for j := uint(0); j < child.ChildCount(); j++ {
				if sub := child.Child(j); sub.Kind() == "block" {
					e.block(ctx, sub, GuardConditional)
				}
			}
		}
	}
}

func (e *PythonExtractor) extractIf(ctx *ExtractionContext, node *sitter.Node, guard GuardKind) {
	cond := node.ChildByFieldName("condition")
	condText := ctx.Text(cond)

	switch {
	case isMainGuard(condText):
		ctx.File.Flags.HasMainGuard = true
		if body := node.ChildByFieldName("consequence"); body != nil {
			e.block(ctx, body, guard)
		}
	case isTypeCheckingGuard(condText):
		if body := node.ChildByFieldName("consequence"); body != nil {
			e.block(ctx, body, GuardTypeChecking)
		}
		e.elseBranches(ctx, node, guard)
	default:
		e.scan(ctx, cond, ctx.moduleSink(), true)
		if body := node.ChildByFieldName("consequence"); body != nil {
			e.block(ctx, body, GuardConditional)
		}
		e.elseBranches(ctx, node, GuardConditional)
	}
}

func (e *PythonExtractor) elseBranches(ctx *ExtractionContext, node *sitter.Node, guard GuardKind) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "elif_clause":
			e.scan(ctx, child.ChildByFieldName("condition"), ctx.moduleSink(), true)
			if body := child.ChildByFieldName("consequence"); body != nil {
				e.block(ctx, body, guard)
			}
		case "else_clause":
			if body := child.ChildByFieldName("body"); body != nil {
				e.block(ctx, body, guard)
			}
		}
	}
}

func isMainGuard(cond string) bool {
	return strings.Contains(cond, "__name__") && strings.Contains(cond, "__main__")
}

func isTypeCheckingGuard(cond string) bool {
	return cond == "TYPE_CHECKING" || strings.HasSuffix(cond, ".TYPE_CHECKING")
}

func (e *PythonExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node, guard GuardKind) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)

		switch child.Kind() {
		case "dotted_name", "identifier":
			ctx.File.Imports = append(ctx.File.Imports, Import{
				Module:   ctx.Text(child),
				Guard:    guard,
				Location: ctx.Location(child),
			})
		case "aliased_import":
			var module, alias string
			for j := uint(0); j < child.ChildCount(); j++ {
				sub := child.Child(j)
				if sub.Kind() == "dotted_name" || sub.Kind() == "identifier" {
					if module == "" {
						module = ctx.Text(sub)
					} else {
						alias = ctx.Text(sub)
					}
				}
			}
			ctx.File.Imports = append(ctx.File.Imports, Import{
				Module:   module,
				Alias:    alias,
				Guard:    guard,
				Location: ctx.Location(child),
			})
		}
	}
}

func (e *PythonExtractor) extractFromImport(ctx *ExtractionContext, node *sitter.Node, guard GuardKind) {
	imp := Import{Guard: guard, Location: ctx.Location(node)}
	sawImport := false

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)

		switch child.Kind() {
		case "import":
			sawImport = true
		case "relative_import":
			for j := uint(0); j < child.ChildCount(); j++ {
				sub := child.Child(j)
				switch sub.Kind() {
				case "import_prefix":
					imp.Level = len(ctx.Text(sub))
				case "dotted_name":
					imp.Module = ctx.Text(sub)
				}
			}
		case "dotted_name", "identifier":
			if !sawImport {
				imp.Module = ctx.Text(child)
			} else {
				imp.Items = append(imp.Items, ImportItem{Name: ctx.Text(child)})
			}
		case "wildcard_import":
			imp.Wildcard = true
		case "aliased_import":
			var name, alias string
			for j := uint(0); j < child.ChildCount(); j++ {
				sub := child.Child(j)
				if sub.Kind() == "dotted_name" || sub.Kind() == "identifier" {
					if name == "" {
						name = ctx.Text(sub)
					} else {
						alias = ctx.Text(sub)
					}
				}
			}
			imp.Items = append(imp.Items, ImportItem{Name: name, Alias: alias})
		}
	}

	if imp.Module == "__future__" {
		return
	}
	ctx.File.Imports = append(ctx.File.Imports, imp)
}

func (e *PythonExtractor) extractExpressionStatement(ctx *ExtractionContext, node *sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "assignment":
			e.extractAssignment(ctx, node, child)
		case "augmented_assignment":
			e.scan(ctx, child, ctx.moduleSink(), true)
		default:
			e.scan(ctx, child, ctx.moduleSink(), true)
		}
	}
}

// extractAssignment records module-level variable bindings, including the
// __all__ export list. stmt is the enclosing statement node whose byte range
// the definitions share.
func (e *PythonExtractor) extractAssignment(ctx *ExtractionContext, stmt, node *sitter.Node) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")

	e.assignTargets(ctx, stmt, left)

	if right != nil {
		if left != nil && left.Kind() == "identifier" && ctx.Text(left) == "__all__" {
			if names, ok := stringListLiteral(ctx, right); ok {
				ctx.File.Exports = names
				ctx.File.HasAll = true
			}
		}
		// chained assignment: a = b = expr
		if right.Kind() == "assignment" {
			e.extractAssignment(ctx, stmt, right)
			return
		}
		e.scan(ctx, right, ctx.moduleSink(), true)
	}
	if annotation := node.ChildByFieldName("type"); annotation != nil {
		e.scan(ctx, annotation, ctx.moduleSink(), true)
	}
}

func (e *PythonExtractor) assignTargets(ctx *ExtractionContext, stmt, target *sitter.Node) {
	if target == nil {
		return
	}
	switch target.Kind() {
	case "identifier":
		name := ctx.Text(target)
		if name == "__all__" {
			return
		}
		ctx.File.Defs = append(ctx.File.Defs, Definition{
			Name:      name,
			Kind:      KindVariable,
			StartByte: stmt.StartByte(),
			EndByte:   stmt.EndByte(),
			Location:  ctx.Location(target),
		})
	case "pattern_list", "tuple_pattern", "list_pattern":
		for i := uint(0); i < target.ChildCount(); i++ {
			e.assignTargets(ctx, stmt, target.Child(i))
		}
	case "attribute", "subscript":
		// mutation of an existing object, not a new binding
		e.scan(ctx, target, ctx.moduleSink(), true)
	}
}

// stringListLiteral decodes a list or tuple of plain string literals.
func stringListLiteral(ctx *ExtractionContext, node *sitter.Node) ([]string, bool) {
	if node.Kind() != "list" && node.Kind() != "tuple" {
		return nil, false
	}
	var names []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() != "string" {
			continue
		}
		lit, ok := stringLiteral(ctx.Source, child)
		if !ok {
			return nil, false
		}
		names = append(names, lit)
	}
	return names, true
}

// stringLiteral decodes a plain string node. F-strings with interpolations
// are not literals.
func stringLiteral(source []byte, node *sitter.Node) (string, bool) {
	if node == nil || node.Kind() != "string" {
		return "", false
	}
	var sb strings.Builder
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "interpolation":
			return "", false
		case "string_content":
			sb.Write(source[child.StartByte():child.EndByte()])
		}
	}
	return sb.String(), true
}

// definition extracts a function or class. wrapper includes the
// decorated_definition node when present so pruning removes decorators too.
func (e *PythonExtractor) definition(ctx *ExtractionContext, node, wrapper *sitter.Node) Definition {
	def := Definition{
		Name:      ctx.Text(node.ChildByFieldName("name")),
		StartByte: wrapper.StartByte(),
		EndByte:   wrapper.EndByte(),
		Location:  ctx.Location(wrapper),
	}
	if node.Kind() == "class_definition" {
		def.Kind = KindClass
	} else {
		def.Kind = KindFunction
	}
	if wrapper.Kind() == "decorated_definition" {
		for i := uint(0); i < wrapper.ChildCount(); i++ {
			child := wrapper.Child(i)
			if child.Kind() != "decorator" {
				continue
			}
			dec := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ctx.Text(child)), "@"))
			if dec != "" {
				def.Decorators = append(def.Decorators, dec)
			}
		}
	}

	// referenced names roll up from the whole subtree, nested scopes
	// included; side effects (resource loads, dynamic imports) register once
	seen := make(map[string]bool)
	e.scan(ctx, wrapper, func(name string, _ Location) {
		if !seen[name] {
			seen[name] = true
			def.Refs = append(def.Refs, name)
		}
	}, true)
	def.Reflective = reflectiveSubtree(ctx.Source, node)

	e.nestedDefs(ctx, node.ChildByFieldName("body"), &def)
	if def.Kind == KindFunction && len(def.Nested) > 0 {
		ctx.File.Flags.HasNestedFunctions = true
	}
	return def
}

// nestedDefs collects definitions directly inside a suite, descending through
// control flow but not into further function or class bodies.
func (e *PythonExtractor) nestedDefs(ctx *ExtractionContext, body *sitter.Node, parent *Definition) {
	if body == nil {
		return
	}
	for i := uint(0); i < body.ChildCount(); i++ {
		child := body.Child(i)
		switch child.Kind() {
		case "function_definition", "class_definition":
			parent.Nested = append(parent.Nested, e.nestedDefinition(ctx, child, child))
		case "decorated_definition":
			if inner := child.ChildByFieldName("definition"); inner != nil {
				parent.Nested = append(parent.Nested, e.nestedDefinition(ctx, inner, child))
			}
		case "if_statement", "for_statement", "while_statement", "with_statement", "try_statement":
			e.nestedDefs(ctx, child, parent)
		case "block", "elif_clause", "else_clause", "except_clause", "finally_clause":
			e.nestedDefs(ctx, child, parent)
		}
	}
}

// nestedDefinition records a nested def without re-registering file-level
// side effects; the enclosing definition already scanned this subtree.
func (e *PythonExtractor) nestedDefinition(ctx *ExtractionContext, node, wrapper *sitter.Node) Definition {
	def := Definition{
		Name:      ctx.Text(node.ChildByFieldName("name")),
		StartByte: wrapper.StartByte(),
		EndByte:   wrapper.EndByte(),
		Location:  ctx.Location(wrapper),
	}
	if node.Kind() == "class_definition" {
		def.Kind = KindClass
	} else {
		def.Kind = KindFunction
	}
	seen := make(map[string]bool)
	e.scan(ctx, wrapper, func(name string, _ Location) {
		if !seen[name] {
			seen[name] = true
			def.Refs = append(def.Refs, name)
		}
	}, false)
	def.Reflective = reflectiveSubtree(ctx.Source, node)
	e.nestedDefs(ctx, node.ChildByFieldName("body"), &def)
	return def
}

// reflectiveSubtree reports whether a subtree observes runtime identity:
// dunder identity attributes or scope-introspection builtins.
func reflectiveSubtree(source []byte, node *sitter.Node) bool {
	found := false
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil || found {
			return
		}
		switch n.Kind() {
		case "attribute":
			if attr := n.ChildByFieldName("attribute"); attr != nil && reflectiveAttrs[nodeText(source, attr)] {
				found = true
				return
			}
		case "call":
			if fn := n.ChildByFieldName("function"); fn != nil && introspectionCalls[nodeText(source, fn)] {
				found = true
				return
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(node)
	return found
}

func (c *ExtractionContext) moduleSink() func(string, Location) {
	return func(name string, loc Location) {
		c.File.Refs = append(c.File.Refs, Reference{Name: name, Location: loc})
	}
}

// scan collects referenced names (including dotted chains) from an expression
// subtree. When sideEffects is set it also registers dynamic imports,
// resource loads, and opaque constructs on the file.
func (e *PythonExtractor) scan(ctx *ExtractionContext, node *sitter.Node, sink func(string, Location), sideEffects bool) {
	if node == nil {
		return
	}
	switch node.Kind() {
	case "identifier":
		sink(ctx.Text(node), ctx.Location(node))
		return
	case "attribute":
		if chain, ok := dottedChain(ctx.Source, node); ok {
			sink(chain, ctx.Location(node))
			return
		}
		e.scan(ctx, node.ChildByFieldName("object"), sink, sideEffects)
		return
	case "call":
		e.scanCall(ctx, node, sink, sideEffects)
		return
	case "keyword_argument":
		e.scan(ctx, node.ChildByFieldName("value"), sink, sideEffects)
		return
	case "comment":
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		e.scan(ctx, node.Child(i), sink, sideEffects)
	}
}

func (e *PythonExtractor) scanCall(ctx *ExtractionContext, node *sitter.Node, sink func(string, Location), sideEffects bool) {
	fn := node.ChildByFieldName("function")
	args := callArgs(node)
	fnChain, _ := dottedChain(ctx.Source, fn)
	loc := ctx.Location(node)

	switch {
	case fnChain == "__import__" || fnChain == "importlib.import_module" || fnChain == "import_module":
		if lit, ok := stringLiteral(ctx.Source, firstArg(args)); ok {
			if sideEffects {
				ctx.File.Imports = append(ctx.File.Imports, Import{
					Module:   lit,
					Dynamic:  true,
					Location: loc,
				})
			}
		} else if sideEffects {
			ctx.File.Opaques = append(ctx.File.Opaques, OpaqueConstruct{
				Kind:     OpaqueDynamicImport,
				Detail:   fnChain,
				Location: loc,
			})
			ctx.File.Flags.HasComputedImport = true
		}

	case isResourceLoad(fnChain, ctx.File):
		e.scanResourceLoad(ctx, fnChain, args, loc, sideEffects)

	case fnChain == "getattr" || fnChain == "setattr" || fnChain == "delattr":
		if lit, ok := stringLiteral(ctx.Source, nthArg(args, 1)); ok {
			sink(lit, loc)
		} else if sideEffects {
			ctx.File.Opaques = append(ctx.File.Opaques, OpaqueConstruct{
				Kind:     OpaqueReflection,
				Detail:   fnChain,
				Location: loc,
			})
			ctx.File.Flags.HasReflectiveAccess = true
		}

	case introspectionCalls[fnChain]:
		if sideEffects {
			ctx.File.Opaques = append(ctx.File.Opaques, OpaqueConstruct{
				Kind:     OpaqueReflection,
				Detail:   fnChain + "()",
				Location: loc,
			})
			ctx.File.Flags.HasReflectiveAccess = true
		}
	}

	e.scan(ctx, fn, sink, sideEffects)
	for _, arg := range args {
		e.scan(ctx, arg, sink, sideEffects)
	}
}

func (e *PythonExtractor) scanResourceLoad(ctx *ExtractionContext, fnChain string, args []*sitter.Node, loc Location, sideEffects bool) {
	if !sideEffects {
		return
	}
	pkg, pkgOK := stringLiteral(ctx.Source, firstArg(args))
	if !pkgOK {
		ctx.File.Opaques = append(ctx.File.Opaques, OpaqueConstruct{
			Kind:     OpaqueResource,
			Detail:   fnChain,
			Location: loc,
		})
		return
	}

	last := fnChain[strings.LastIndexByte(fnChain, '.')+1:]
	if last == "files" || (last == "path" && len(args) < 2) {
		// whole-package handle; any resource may be reached from it
		ctx.File.Resources = append(ctx.File.Resources, ResourceRef{
			Package:      pkg,
			ComputedName: true,
			Location:     loc,
		})
		return
	}

	if name, ok := stringLiteral(ctx.Source, nthArg(args, 1)); ok {
		ctx.File.Resources = append(ctx.File.Resources, ResourceRef{
			Package:  pkg,
			Name:     name,
			Location: loc,
		})
	} else {
		ctx.File.Resources = append(ctx.File.Resources, ResourceRef{
			Package:      pkg,
			ComputedName: true,
			Location:     loc,
		})
	}
}

// isResourceLoad matches importlib.resources accessors and pkgutil.get_data.
// Bare names count when the file imports them from importlib.resources.
func isResourceLoad(fnChain string, file *File) bool {
	if fnChain == "" {
		return false
	}
	segs := strings.Split(fnChain, ".")
	last := segs[len(segs)-1]

	if last == "get_data" {
		return len(segs) >= 2 && segs[len(segs)-2] == "pkgutil"
	}
	if !resourceLoadFuncs[last] && last != "files" && last != "path" {
		return false
	}
	if len(segs) >= 2 {
		return segs[len(segs)-2] == "resources"
	}
	// bare call: must have been imported from importlib.resources
	for _, imp := range file.Imports {
		if imp.Module != "importlib.resources" {
			continue
		}
		for _, item := range imp.Items {
			bound := item.Name
			if item.Alias != "" {
				bound = item.Alias
			}
			if bound == last {
				return true
			}
		}
	}
	return false
}

// dottedChain renders an identifier or attribute chain like "pkg.mod.attr".
// Chains rooted in calls or subscripts are not plain names.
func dottedChain(source []byte, node *sitter.Node) (string, bool) {
	if node == nil {
		return "", false
	}
	switch node.Kind() {
	case "identifier":
		return nodeText(source, node), true
	case "attribute":
		base, ok := dottedChain(source, node.ChildByFieldName("object"))
		if !ok {
			return "", false
		}
		attr := node.ChildByFieldName("attribute")
		if attr == nil {
			return "", false
		}
		return base + "." + nodeText(source, attr), true
	}
	return "", false
}

// callArgs returns the positional and keyword argument nodes of a call.
func callArgs(call *sitter.Node) []*sitter.Node {
	list := call.ChildByFieldName("arguments")
	if list == nil {
		return nil
	}
	var args []*sitter.Node
	for i := uint(0); i < list.ChildCount(); i++ {
		child := list.Child(i)
		switch child.Kind() {
		case "(", ")", ",", "comment":
		default:
			args = append(args, child)
		}
	}
	return args
}

func firstArg(args []*sitter.Node) *sitter.Node {
	return nthArg(args, 0)
}

func nthArg(args []*sitter.Node, i int) *sitter.Node {
	if i >= len(args) {
		return nil
	}
	return args[i]
}
