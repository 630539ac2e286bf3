package graph

import (
	"strings"

	"pyslim/internal/diag"
	"pyslim/internal/errors"
	"pyslim/internal/parser"
	"pyslim/internal/resolver"
)

// Result is the reachable set computed from the entry points.
type Result struct {
	// Modules maps every reachable module name to true.
	Modules map[string]bool
	// Symbols maps a module to its reachable top-level definition names.
	Symbols map[string]map[string]bool
	// Resources holds the file paths of packaged resources to retain.
	Resources map[string]bool
	// ResourceDirs holds dotted packages whose entire resource set is
	// retained because a load site computed its path.
	ResourceDirs map[string]bool
	// StaticOnly marks modules reached only through TYPE_CHECKING guards.
	StaticOnly map[string]bool
	// RetainDists lists distributions kept wholesale because an opaque
	// construct appeared inside them.
	RetainDists map[string]bool
	// RetainAll is set when a computed dynamic import makes every
	// distribution a potential target.
	RetainAll bool
}

func (res *Result) ModuleReachable(name string) bool {
	return res.Modules[name]
}

func (res *Result) SymbolReachable(module, symbol string) bool {
	return res.Symbols[module][symbol]
}

type workItem struct {
	module string
	symbol string // empty for module items
}

// Engine walks the dependency closure. Safe for a single analysis pass;
// build a fresh engine per run.
type Engine struct {
	reg    *Registry
	diags  *diag.Collector
	scopes map[string]map[string]resolver.Target
	result *Result
	queue  []workItem
}

func NewEngine(reg *Registry, diags *diag.Collector) *Engine {
	return &Engine{
		reg:    reg,
		diags:  diags,
		scopes: make(map[string]map[string]resolver.Target),
		result: &Result{
			Modules:      make(map[string]bool),
			Symbols:      make(map[string]map[string]bool),
			Resources:    make(map[string]bool),
			ResourceDirs: make(map[string]bool),
			StaticOnly:   make(map[string]bool),
			RetainDists:  make(map[string]bool),
		},
	}
}

// Analyze computes the closure from the entry modules.
func (e *Engine) Analyze(entries []string) (*Result, error) {
	if len(entries) == 0 {
		return nil, errors.New(errors.CodeInvalidPath, "no entry points")
	}
	for _, entry := range entries {
		if _, ok := e.reg.Module(entry); !ok {
			return nil, errors.New(errors.CodeInvalidPath, "entry point is not a known module").
				WithContext(errors.CtxModule, entry)
		}
		e.markModule(entry, false)
	}

	for len(e.queue) > 0 {
		item := e.queue[0]
		e.queue = e.queue[1:]
		if item.symbol == "" {
			e.processModule(item.module)
		} else {
			e.processSymbol(item.module, item.symbol)
		}
	}
	return e.result, nil
}

// markModule makes a module reachable, together with its package ancestors:
// importing a.b.c executes a and a.b first.
func (e *Engine) markModule(name string, static bool) {
	if name == "" {
		return
	}
	if parent := parentPackage(name); parent != "" {
		e.markModule(parent, static)
	}

	if e.result.Modules[name] {
		if !static && e.result.StaticOnly[name] {
			// promoted to a runtime dependency
			delete(e.result.StaticOnly, name)
		}
		return
	}
	e.result.Modules[name] = true
	if static {
		e.result.StaticOnly[name] = true
	}
	e.queue = append(e.queue, workItem{module: name})
}

func (e *Engine) markSymbol(module, symbol string) {
	if module == "" || symbol == "" {
		return
	}
	e.markModule(module, false)
	if e.result.Symbols[module] == nil {
		e.result.Symbols[module] = make(map[string]bool)
	}
	if e.result.Symbols[module][symbol] {
		return
	}
	e.result.Symbols[module][symbol] = true
	e.queue = append(e.queue, workItem{module: module, symbol: symbol})
}

func (e *Engine) scope(name string) map[string]resolver.Target {
	if scope, ok := e.scopes[name]; ok {
		return scope
	}
	file, ok := e.reg.Module(name)
	if !ok {
		return nil
	}
	scope := e.reg.Index.ModuleScope(file)
	e.scopes[name] = scope
	return scope
}

// processModule handles the import-time effects of a module: its imports
// run, its top-level statements run, and its variable bindings are created.
func (e *Engine) processModule(name string) {
	file, ok := e.reg.Module(name)
	if !ok {
		// namespace prefix without an __init__ module
		return
	}

	for _, imp := range file.Imports {
		e.processImport(file, imp)
	}
	for _, op := range file.Opaques {
		e.processOpaque(file, op)
	}
	for _, res := range file.Resources {
		e.processResource(file, res)
	}

	for _, def := range file.Defs {
		// variables and decorated definitions execute at import time
		if def.Kind == parser.KindVariable || len(def.Decorators) > 0 {
			e.markSymbol(name, def.Name)
		}
	}
	for _, ref := range file.Refs {
		e.resolveRef(name, ref.Name)
	}

	if names := file.Flags.Names(); len(names) > 0 {
		e.diags.Add(diag.ModuleFlags, diag.Location{File: file.Path},
			"module uses conservative constructs: %s", strings.Join(names, ", "))
	}
}

func (e *Engine) processImport(file *parser.File, imp parser.Import) {
	target, kind := e.reg.Index.ImportTarget(file, imp)
	static := imp.Guard == parser.GuardTypeChecking

	switch kind {
	case resolver.TargetStdlib:
		return
	case resolver.TargetUnknown:
		if imp.Guard == parser.GuardConditional {
			// optional dependency pattern; the fallback branch covers it
			return
		}
		e.diags.Add(diag.UnresolvedImport, diag.Location{
			File:   imp.Location.File,
			Line:   imp.Location.Line,
			Column: imp.Location.Column,
		}, "cannot resolve import %q", importDisplay(imp))
		return
	}

	e.markModule(target, static)

	if imp.Wildcard {
		e.markExports(target, static)
		return
	}
	if imp.Dynamic {
		// a literal dynamic import gives no static attribute information
		e.markExports(target, static)
		return
	}
	for _, item := range imp.Items {
		switch tgt := e.memberTarget(target, item.Name); tgt.Kind {
		case resolver.TargetModule:
			e.markModule(tgt.Module, static)
		case resolver.TargetSymbol:
			e.markSymbol(tgt.Module, tgt.Symbol)
		}
	}
}

func (e *Engine) memberTarget(module, name string) resolver.Target {
	sub := module + "." + name
	if e.reg.Index.HasModule(sub) {
		return resolver.Target{Kind: resolver.TargetModule, Module: sub}
	}
	return resolver.Target{Kind: resolver.TargetSymbol, Module: module, Symbol: name}
}

// markExports makes every public name of a module reachable. Re-exported
// bindings resolve through the module's own scope.
func (e *Engine) markExports(module string, static bool) {
	file, ok := e.reg.Module(module)
	if !ok {
		return
	}
	scope := e.scope(module)
	for _, name := range file.PublicNames() {
		if tgt, ok := e.reg.Index.ResolveName(scope, name); ok {
			switch tgt.Kind {
			case resolver.TargetModule:
				e.markModule(tgt.Module, static)
			case resolver.TargetSymbol:
				e.markSymbol(tgt.Module, tgt.Symbol)
			}
			continue
		}
		e.markSymbol(module, name)
	}
}

func (e *Engine) processOpaque(file *parser.File, op parser.OpaqueConstruct) {
	loc := diag.Location{File: op.Location.File, Line: op.Location.Line, Column: op.Location.Column}

	switch op.Kind {
	case parser.OpaqueDynamicImport:
		e.result.RetainAll = true
		e.diags.Add(diag.OpaqueConstruct, loc,
			"computed import target (%s); every distribution is retained", op.Detail)
	case parser.OpaqueReflection:
		e.retainEnclosing(file)
		e.diags.Add(diag.OpaqueConstruct, loc,
			"computed attribute access (%s); enclosing distribution is retained", op.Detail)
	case parser.OpaqueResource:
		e.retainEnclosing(file)
		e.diags.Add(diag.OpaqueConstruct, loc,
			"computed resource path (%s); enclosing distribution is retained", op.Detail)
	}
}

// retainEnclosing keeps everything around an opaque construct: the whole
// distribution for installed code, every symbol of the module for project
// code.
func (e *Engine) retainEnclosing(file *parser.File) {
	if file.Dist != "" {
		e.result.RetainDists[file.Dist] = true
		return
	}
	for _, def := range file.Defs {
		e.markSymbol(file.Module, def.Name)
	}
}

func (e *Engine) processResource(file *parser.File, res parser.ResourceRef) {
	e.markModule(res.Package, false)

	if res.ComputedName {
		e.result.ResourceDirs[res.Package] = true
		for _, r := range e.reg.ResourcesIn(res.Package) {
			e.result.Resources[r.Path] = true
		}
		return
	}
	for _, r := range e.reg.ResourcesIn(res.Package) {
		if r.Name == res.Name {
			e.result.Resources[r.Path] = true
			return
		}
	}
	e.diags.Add(diag.UnresolvedImport, diag.Location{
		File:   res.Location.File,
		Line:   res.Location.Line,
		Column: res.Location.Column,
	}, "resource %s/%s not found", res.Package, res.Name)
}

// processSymbol handles a definition becoming reachable: every name its
// body references resolves through the defining module's scope.
func (e *Engine) processSymbol(module, symbol string) {
	file, ok := e.reg.Module(module)
	if !ok {
		return
	}

	def := findDef(file, symbol)
	if def == nil {
		// a re-exported binding rather than a local definition
		scope := e.scope(module)
		if tgt, ok := e.reg.Index.ResolveName(scope, symbol); ok {
			switch tgt.Kind {
			case resolver.TargetModule:
				e.markModule(tgt.Module, false)
			case resolver.TargetSymbol:
				if tgt.Module != module || tgt.Symbol != symbol {
					e.markSymbol(tgt.Module, tgt.Symbol)
				}
			}
		}
		return
	}

	for _, ref := range def.Refs {
		e.resolveRef(module, ref)
	}
}

// resolveRef resolves a referenced name against a module's scope. Names not
// bound at module level (locals, builtins) carry no dependency.
func (e *Engine) resolveRef(module, name string) {
	scope := e.scope(module)
	tgt, ok := e.reg.Index.ResolveName(scope, name)
	if !ok {
		return
	}
	switch tgt.Kind {
	case resolver.TargetModule:
		e.markModule(tgt.Module, false)
	case resolver.TargetSymbol:
		e.markSymbol(tgt.Module, tgt.Symbol)
	}
}

func findDef(file *parser.File, name string) *parser.Definition {
	for i := range file.Defs {
		if file.Defs[i].Name == name {
			return &file.Defs[i]
		}
	}
	return nil
}

func parentPackage(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return ""
}

func importDisplay(imp parser.Import) string {
	if imp.Level > 0 {
		return strings.Repeat(".", imp.Level) + imp.Module
	}
	return imp.Module
}
