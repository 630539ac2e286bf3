package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

var pythonKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
	// soft keywords
	"match": true, "case": true,
}

func IsPythonKeyword(name string) bool {
	return pythonKeywords[name]
}

// FunctionScope is the symbol table of one function: its renameable locals in
// first-appearance order, the names that must keep their spelling, and the
// constructs that disable renaming for the scope. Node is only valid while
// the owning tree is open.
type FunctionScope struct {
	QualifiedName string
	Node          *sitter.Node
	// Locals are renameable bindings in first-appearance order.
	Locals []string
	// Excluded names are bound here but must not be renamed: captured by a
	// nested scope, declared global/nonlocal, or reserved spellings.
	Excluded map[string]bool
	// Seen holds every identifier text in the function subtree; replacement
	// names must not collide with any of them.
	Seen map[string]bool

	HasNestedFunctions bool
	HasImports         bool
	HasMatch           bool
	HasComprehension   bool
	HasLambda          bool
	Reflective         bool
}

// Renameable reports whether the scope is safe to rename at all.
func (s *FunctionScope) Renameable() bool {
	return !s.HasMatch && !s.HasComprehension && !s.HasLambda && !s.Reflective
}

// BuildScopes walks a module tree and produces a symbol table for every
// function, methods and nested functions included, in source order.
func BuildScopes(root *sitter.Node, source []byte) []*FunctionScope {
	b := &scopeBuilder{source: source}
	b.walk(root, nil, false)
	return b.scopes
}

type scopeBuilder struct {
	source []byte
	scopes []*FunctionScope
}

func (b *scopeBuilder) text(node *sitter.Node) string {
	return nodeText(b.source, node)
}

// walk locates definitions. inClass is true while inside a class body but
// outside any function, so directly contained functions are methods.
func (b *scopeBuilder) walk(node *sitter.Node, qual []string, inClass bool) {
	if node == nil {
		return
	}
	switch node.Kind() {
	case "function_definition":
		name := b.text(node.ChildByFieldName("name"))
		path := append(append([]string{}, qual...), name)
		b.scopes = append(b.scopes, b.buildFunction(node, path, inClass))
		b.walk(node.ChildByFieldName("body"), path, false)
		return
	case "class_definition":
		name := b.text(node.ChildByFieldName("name"))
		path := append(append([]string{}, qual...), name)
		b.walk(node.ChildByFieldName("body"), path, true)
		return
	case "lambda":
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		b.walk(node.Child(i), qual, inClass)
	}
}

func isStaticMethod(decorators []string) bool {
	for _, dec := range decorators {
		if dec == "staticmethod" || strings.HasSuffix(dec, ".staticmethod") {
			return true
		}
	}
	return false
}

func definitionDecorators(source []byte, node *sitter.Node) []string {
	parent := node.Parent()
	if parent == nil || parent.Kind() != "decorated_definition" {
		return nil
	}
	var decorators []string
	for i := uint(0); i < parent.ChildCount(); i++ {
		child := parent.Child(i)
		if child.Kind() != "decorator" {
			continue
		}
		dec := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(nodeText(source, child)), "@"))
		if dec != "" {
			decorators = append(decorators, dec)
		}
	}
	return decorators
}

func (b *scopeBuilder) buildFunction(fn *sitter.Node, qual []string, isMethod bool) *FunctionScope {
	scope := &FunctionScope{
		QualifiedName: strings.Join(qual, "."),
		Node:          fn,
		Excluded:      make(map[string]bool),
		Seen:          make(map[string]bool),
	}

	static := isStaticMethod(definitionDecorators(b.source, fn))
	params := fn.ChildByFieldName("parameters")
	first := true
	if params != nil {
		for i := uint(0); i < params.ChildCount(); i++ {
			name, ok := parameterName(b.source, params.Child(i))
			if !ok {
				continue
			}
			if first && isMethod && !static {
				// receiver parameter, whatever it is called
				scope.reserve(name)
			} else {
				scope.add(name)
			}
			first = false
			b.annotations(params.Child(i), scope)
		}
	}

	if body := fn.ChildByFieldName("body"); body != nil {
		b.collect(body, scope)
	}
	if ret := fn.ChildByFieldName("return_type"); ret != nil {
		b.note(ret, scope)
	}
	scope.Reflective = reflectiveSubtree(b.source, fn)
	return scope
}

// annotations records identifiers in a parameter's type annotation and
// default value so replacement names cannot collide with them.
func (b *scopeBuilder) annotations(param *sitter.Node, scope *FunctionScope) {
	if param == nil || param.Kind() == "identifier" {
		return
	}
	for i := uint(0); i < param.ChildCount(); i++ {
		child := param.Child(i)
		if child.Kind() == "identifier" && i == 0 {
			continue // the parameter name itself
		}
		b.note(child, scope)
	}
}

func parameterName(source []byte, node *sitter.Node) (string, bool) {
	if node == nil {
		return "", false
	}
	switch node.Kind() {
	case "identifier":
		return nodeText(source, node), true
	case "typed_parameter":
		if node.ChildCount() > 0 && node.Child(0).Kind() == "identifier" {
			return nodeText(source, node.Child(0)), true
		}
	case "default_parameter", "typed_default_parameter":
		if name := node.ChildByFieldName("name"); name != nil && name.Kind() == "identifier" {
			return nodeText(source, name), true
		}
	case "list_splat_pattern", "dictionary_splat_pattern":
		for i := uint(0); i < node.ChildCount(); i++ {
			if node.Child(i).Kind() == "identifier" {
				return nodeText(source, node.Child(i)), true
			}
		}
	}
	return "", false
}

// collect gathers bindings and flags from the function body without
// descending into nested function or class scopes.
func (b *scopeBuilder) collect(node *sitter.Node, scope *FunctionScope) {
	if node == nil {
		return
	}
	switch node.Kind() {
	case "function_definition", "class_definition":
		// the nested scope and its free variables all keep their spelling
		scope.HasNestedFunctions = true
		b.capture(node, scope)
		return
	case "lambda":
		scope.HasLambda = true
		b.capture(node, scope)
		return
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		scope.HasComprehension = true
		b.capture(node, scope)
		return
	case "match_statement":
		scope.HasMatch = true
		b.capture(node, scope)
		return
	case "assignment", "augmented_assignment":
		b.bindTargets(node.ChildByFieldName("left"), scope)
		b.collect(node.ChildByFieldName("right"), scope)
		b.note(node.ChildByFieldName("type"), scope)
		return
	case "named_expression":
		if name := node.ChildByFieldName("name"); name != nil {
			scope.add(b.text(name))
		}
		b.collect(node.ChildByFieldName("value"), scope)
		return
	case "for_statement":
		b.bindTargets(node.ChildByFieldName("left"), scope)
		b.collect(node.ChildByFieldName("right"), scope)
		b.collect(node.ChildByFieldName("body"), scope)
		b.collect(node.ChildByFieldName("alternative"), scope)
		return
	case "as_pattern":
		b.collect(node.Child(0), scope)
		if alias := node.ChildByFieldName("alias"); alias != nil {
			b.bindTargets(alias, scope)
		}
		return
	case "as_pattern_target":
		b.bindTargets(node, scope)
		return
	case "global_statement", "nonlocal_statement":
		for i := uint(0); i < node.ChildCount(); i++ {
			if node.Child(i).Kind() == "identifier" {
				scope.reserve(b.text(node.Child(i)))
			}
		}
		return
	case "import_statement":
		scope.HasImports = true
		b.functionImport(node, scope)
		return
	case "import_from_statement":
		scope.HasImports = true
		b.functionFromImport(node, scope)
		return
	case "keyword_argument":
		if name := node.ChildByFieldName("name"); name != nil {
			scope.Seen[b.text(name)] = true
		}
		b.collect(node.ChildByFieldName("value"), scope)
		return
	case "attribute":
		b.collect(node.ChildByFieldName("object"), scope)
		if attr := node.ChildByFieldName("attribute"); attr != nil {
			scope.Seen[b.text(attr)] = true
		}
		return
	case "identifier":
		scope.Seen[b.text(node)] = true
		return
	case "string":
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		b.collect(node.Child(i), scope)
	}
}

// bindTargets registers assignment-target identifiers as locals.
func (b *scopeBuilder) bindTargets(node *sitter.Node, scope *FunctionScope) {
	if node == nil {
		return
	}
	switch node.Kind() {
	case "identifier":
		scope.add(b.text(node))
	case "as_pattern_target", "pattern_list", "tuple_pattern", "list_pattern", "list_splat_pattern":
		for i := uint(0); i < node.ChildCount(); i++ {
			b.bindTargets(node.Child(i), scope)
		}
	case "attribute", "subscript":
		// writes through an existing object; not a new local
		b.collect(node, scope)
	}
}

// functionImport applies import-binding rules inside a function scope.
// A single-segment plain import is renameable because the rewriter can emit
// an "import x as y" form; dotted and aliased imports keep their binding.
func (b *scopeBuilder) functionImport(node *sitter.Node, scope *FunctionScope) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "dotted_name", "identifier":
			name := b.text(child)
			if strings.Contains(name, ".") {
				scope.reserve(name[:strings.IndexByte(name, '.')])
			} else {
				scope.add(name)
			}
		case "aliased_import":
			if alias := b.text(child.ChildByFieldName("alias")); alias != "" {
				scope.reserve(alias)
			}
		}
	}
}

func (b *scopeBuilder) functionFromImport(node *sitter.Node, scope *FunctionScope) {
	sawImport := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "import":
			sawImport = true
		case "dotted_name", "identifier":
			if sawImport {
				scope.add(b.text(child))
			}
		case "aliased_import":
			if alias := b.text(child.ChildByFieldName("alias")); alias != "" {
				scope.reserve(alias)
			}
		}
	}
}

// capture reserves every identifier in a nested scope's subtree. Names the
// nested scope reads from the enclosing function must keep their spelling,
// and over-reserving its own bindings only narrows renaming.
func (b *scopeBuilder) capture(node *sitter.Node, scope *FunctionScope) {
	if node == nil {
		return
	}
	if node.Kind() == "identifier" {
		scope.reserve(b.text(node))
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		b.capture(node.Child(i), scope)
	}
}

// note records identifiers for collision avoidance without binding them.
func (b *scopeBuilder) note(node *sitter.Node, scope *FunctionScope) {
	if node == nil {
		return
	}
	if node.Kind() == "identifier" {
		scope.Seen[b.text(node)] = true
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		b.note(node.Child(i), scope)
	}
}

func reservedSpelling(name string) bool {
	if pythonKeywords[name] || name == "_" || name == "self" || name == "cls" {
		return true
	}
	return strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

func (s *FunctionScope) add(name string) {
	if name == "" {
		return
	}
	s.Seen[name] = true
	if reservedSpelling(name) || s.Excluded[name] {
		return
	}
	for _, existing := range s.Locals {
		if existing == name {
			return
		}
	}
	s.Locals = append(s.Locals, name)
}

func (s *FunctionScope) reserve(name string) {
	if name == "" {
		return
	}
	s.Seen[name] = true
	s.Excluded[name] = true
	for i, existing := range s.Locals {
		if existing == name {
			s.Locals = append(s.Locals[:i], s.Locals[i+1:]...)
			break
		}
	}
}
