package parser

import (
	"testing"
)

func buildScopes(t *testing.T, code string) []*FunctionScope {
	t.Helper()
	tree, err := ParseTree([]byte(code))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tree.Close() })
	return BuildScopes(tree.RootNode(), []byte(code))
}

func scopeByName(scopes []*FunctionScope, name string) *FunctionScope {
	for _, s := range scopes {
		if s.QualifiedName == name {
			return s
		}
	}
	return nil
}

func hasLocal(s *FunctionScope, name string) bool {
	for _, local := range s.Locals {
		if local == name {
			return true
		}
	}
	return false
}

func TestBuildScopes_LocalsInAppearanceOrder(t *testing.T) {
	code := `
def process(items, limit):
    total = 0
    for item in items:
        total = total + item
    result = total * limit
    return result
`
	scopes := buildScopes(t, code)
	s := scopeByName(scopes, "process")
	if s == nil {
		t.Fatal("scope not built")
	}

	want := []string{"items", "limit", "total", "item", "result"}
	if len(s.Locals) != len(want) {
		t.Fatalf("locals = %v, want %v", s.Locals, want)
	}
	for i, name := range want {
		if s.Locals[i] != name {
			t.Errorf("locals[%d] = %s, want %s", i, s.Locals[i], name)
		}
	}
}

func TestBuildScopes_MethodReceiver(t *testing.T) {
	code := `
class Store:
    def put(self, key, value):
        self.data[key] = value

    def strange(this, key):
        return this.data[key]

    @staticmethod
    def normalize(key):
        return key.lower()

    @classmethod
    def create(cls, size):
        return cls(size)
`
	scopes := buildScopes(t, code)

	put := scopeByName(scopes, "Store.put")
	if put == nil {
		t.Fatal("method scope not built")
	}
	if hasLocal(put, "self") || !put.Excluded["self"] {
		t.Error("self must never be renameable")
	}
	if !hasLocal(put, "key") || !hasLocal(put, "value") {
		t.Errorf("method params missing: %v", put.Locals)
	}

	// the receiver is positional, not a spelling
	strange := scopeByName(scopes, "Store.strange")
	if hasLocal(strange, "this") || !strange.Excluded["this"] {
		t.Errorf("first method param must be reserved regardless of name: %v", strange.Locals)
	}

	static := scopeByName(scopes, "Store.normalize")
	if !hasLocal(static, "key") {
		t.Errorf("staticmethod first param is renameable: %v", static.Locals)
	}

	create := scopeByName(scopes, "Store.create")
	if hasLocal(create, "cls") {
		t.Error("cls must never be renameable")
	}
	if !hasLocal(create, "size") {
		t.Errorf("classmethod later params are renameable: %v", create.Locals)
	}
}

func TestBuildScopes_CapturedNamesReserved(t *testing.T) {
	code := `
def outer(prefix, count):
    def inner():
        return prefix * 2
    total = count + 1
    return inner, total
`
	scopes := buildScopes(t, code)
	outer := scopeByName(scopes, "outer")
	if outer == nil {
		t.Fatal("scope not built")
	}

	if !outer.HasNestedFunctions {
		t.Error("nested function not flagged")
	}
	if hasLocal(outer, "prefix") || !outer.Excluded["prefix"] {
		t.Error("captured name must keep its spelling")
	}
	if hasLocal(outer, "inner") {
		t.Error("nested def name is not renameable")
	}
	if !hasLocal(outer, "count") || !hasLocal(outer, "total") {
		t.Errorf("uncaptured locals stay renameable: %v", outer.Locals)
	}

	inner := scopeByName(scopes, "outer.inner")
	if inner == nil {
		t.Fatal("nested scope not built")
	}
}

func TestBuildScopes_GlobalAndNonlocal(t *testing.T) {
	code := `
def bump(step):
    global counter
    counter = counter + step
    return counter
`
	scopes := buildScopes(t, code)
	s := scopeByName(scopes, "bump")

	if hasLocal(s, "counter") || !s.Excluded["counter"] {
		t.Error("global declaration must reserve the name")
	}
	if !hasLocal(s, "step") {
		t.Errorf("step should stay renameable: %v", s.Locals)
	}
}

func TestBuildScopes_ConservativeConstructs(t *testing.T) {
	code := `
def with_match(value):
    match value:
        case [x]:
            return x
    return None

def with_comp(items):
    return [x * 2 for x in items]

def with_lambda(items):
    return sorted(items, key=lambda x: x.weight)

def plain(a):
    return a + 1
`
	scopes := buildScopes(t, code)

	if s := scopeByName(scopes, "with_match"); !s.HasMatch || s.Renameable() {
		t.Error("match statement must disable renaming")
	}
	if s := scopeByName(scopes, "with_comp"); !s.HasComprehension || s.Renameable() {
		t.Error("comprehension must disable renaming")
	}
	if s := scopeByName(scopes, "with_lambda"); !s.HasLambda || s.Renameable() {
		t.Error("lambda must disable renaming")
	}
	if s := scopeByName(scopes, "plain"); !s.Renameable() {
		t.Error("plain function should be renameable")
	}
}

func TestBuildScopes_FunctionImports(t *testing.T) {
	code := `
def encode(payload):
    import json
    import os.path
    import hashlib as h
    return json.dumps(payload)
`
	scopes := buildScopes(t, code)
	s := scopeByName(scopes, "encode")

	if !s.HasImports {
		t.Error("function-scope import not flagged")
	}
	if !hasLocal(s, "json") {
		t.Errorf("single-segment import is renameable via an alias: %v", s.Locals)
	}
	if hasLocal(s, "os") || !s.Excluded["os"] {
		t.Error("dotted import base must keep its spelling")
	}
	if hasLocal(s, "h") || !s.Excluded["h"] {
		t.Error("existing alias must keep its spelling")
	}
}

func TestBuildScopes_ReflectiveFunction(t *testing.T) {
	code := `
def introspect(obj):
    return vars(obj)

def named(fn):
    return fn.__name__
`
	scopes := buildScopes(t, code)

	if s := scopeByName(scopes, "introspect"); !s.Reflective || s.Renameable() {
		t.Error("vars() must disable renaming")
	}
	if s := scopeByName(scopes, "named"); !s.Reflective {
		t.Error("__name__ access must mark the scope reflective")
	}
}

func TestBuildScopes_ExceptAlias(t *testing.T) {
	code := `
def guarded(path):
    try:
        return open(path)
    except OSError as exc:
        raise RuntimeError(str(exc))
`
	scopes := buildScopes(t, code)
	s := scopeByName(scopes, "guarded")

	if !hasLocal(s, "exc") {
		t.Errorf("except alias binds a renameable local: %v", s.Locals)
	}
}

func TestBuildScopes_SeenBlocksCollisions(t *testing.T) {
	code := `
def f(value):
    a = helper(value)
    return a
`
	scopes := buildScopes(t, code)
	s := scopeByName(scopes, "f")

	if !s.Seen["a"] || !s.Seen["helper"] {
		t.Errorf("seen set incomplete: %v", s.Seen)
	}
	if !hasLocal(s, "value") || !hasLocal(s, "a") {
		t.Errorf("locals wrong: %v", s.Locals)
	}
}
