// Package resolver maps import statements and referenced names onto the
// modules and symbols of the analyzed codebase.
package resolver

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pyslim/internal/parser"
)

type TargetKind int

const (
	// TargetModule binds a name to a whole module.
	TargetModule TargetKind = iota
	// TargetSymbol binds a name to a definition inside a module.
	TargetSymbol
	// TargetStdlib is an interpreter-provided module; outside the analysis.
	TargetStdlib
	// TargetUnknown could not be resolved to anything known.
	TargetUnknown
)

type Target struct {
	Kind   TargetKind
	Module string
	Symbol string
}

// Index is the module table of a run: every parsed module by its dotted
// name. It is populated once during registry merge and read-only afterwards.
type Index struct {
	modules map[string]*parser.File
	// packages holds names that exist as package prefixes even when no
	// __init__.py module was parsed for them (namespace packages).
	packages map[string]bool
}

func NewIndex() *Index {
	return &Index{
		modules:  make(map[string]*parser.File),
		packages: make(map[string]bool),
	}
}

func (ix *Index) Add(file *parser.File) {
	ix.modules[file.Module] = file
	parts := strings.Split(file.Module, ".")
	for i := 1; i < len(parts); i++ {
		ix.packages[strings.Join(parts[:i], ".")] = true
	}
}

func (ix *Index) Module(name string) (*parser.File, bool) {
	file, ok := ix.modules[name]
	return file, ok
}

// HasModule reports whether a dotted name names a parsed module or a
// package prefix (including namespace packages without __init__.py).
func (ix *Index) HasModule(name string) bool {
	if _, ok := ix.modules[name]; ok {
		return true
	}
	return ix.packages[name]
}

// Modules returns every indexed module name, sorted.
func (ix *Index) Modules() []string {
	names := make([]string, 0, len(ix.modules))
	for name := range ix.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Submodules returns the immediate children of a package, sorted.
func (ix *Index) Submodules(pkg string) []string {
	prefix := pkg + "."
	var names []string
	for name := range ix.modules {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if !strings.Contains(rest, ".") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ModuleName derives a dotted module name from a file path under a project
// root, skipping leading directories that are not packages.
func ModuleName(projectRoot, filePath string) string {
	rel, err := filepath.Rel(projectRoot, filePath)
	if err != nil {
		return ""
	}

	parts := strings.Split(rel, string(os.PathSeparator))

	// Remove non-package prefixes (dirs without __init__.py)
	packageStart := 0
	for i := 0; i < len(parts)-1; i++ {
		checkPath := filepath.Join(projectRoot, filepath.Join(parts[:i+1]...), "__init__.py")
		if _, err := os.Stat(checkPath); os.IsNotExist(err) {
			packageStart = i + 1
		} else {
			break
		}
	}

	parts = parts[packageStart:]
	parts[len(parts)-1] = strings.TrimSuffix(parts[len(parts)-1], ".py")
	if parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, ".")
}

func isPackageModule(file *parser.File) bool {
	return strings.HasSuffix(filepath.Base(file.Path), "__init__.py")
}

// ImportTarget resolves an import statement to the absolute dotted name it
// loads and classifies it against the index.
func (ix *Index) ImportTarget(from *parser.File, imp parser.Import) (string, TargetKind) {
	name := imp.Module
	if imp.Level > 0 {
		base := relativeBase(from, imp.Level)
		switch {
		case base == "":
			name = imp.Module
		case imp.Module == "":
			name = base
		default:
			name = base + "." + imp.Module
		}
	}
	return name, ix.classify(name)
}

// relativeBase computes the package an N-dot relative import starts from.
// One dot means the containing package; an __init__ module is its own
// containing package.
func relativeBase(from *parser.File, level int) string {
	parts := strings.Split(from.Module, ".")
	if !isPackageModule(from) {
		parts = parts[:len(parts)-1]
	}
	drop := level - 1
	if drop >= len(parts) {
		return ""
	}
	return strings.Join(parts[:len(parts)-drop], ".")
}

func (ix *Index) classify(name string) TargetKind {
	if name == "" {
		return TargetUnknown
	}
	if ix.HasModule(name) {
		return TargetModule
	}
	if IsStdlib(name) {
		return TargetStdlib
	}
	return TargetUnknown
}

// scopeEntry is one binding in source order.
type scopeEntry struct {
	line   int
	name   string
	target Target
}

// ModuleScope builds the top-level name bindings of a module. Bindings are
// applied in textual order, so a later binding of the same name wins, which
// matches interpreter behavior for straight-line module bodies.
func (ix *Index) ModuleScope(file *parser.File) map[string]Target {
	var entries []scopeEntry

	for _, imp := range file.Imports {
		entries = append(entries, ix.importBindings(file, imp)...)
	}
	for _, def := range file.Defs {
		entries = append(entries, scopeEntry{
			line:   def.Location.Line,
			name:   def.Name,
			target: Target{Kind: TargetSymbol, Module: file.Module, Symbol: def.Name},
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].line < entries[j].line })

	scope := make(map[string]Target, len(entries))
	for _, entry := range entries {
		scope[entry.name] = entry.target
	}
	return scope
}

func (ix *Index) importBindings(file *parser.File, imp parser.Import) []scopeEntry {
	target, kind := ix.ImportTarget(file, imp)
	line := imp.Location.Line

	if imp.Wildcard {
		return ix.wildcardBindings(target, kind, line)
	}

	if len(imp.Items) == 0 {
		// plain import binds the first segment unless aliased
		bound := imp.BoundName()
		module := target
		if imp.Alias == "" {
			module = firstSegment(target)
		}
		return []scopeEntry{{
			line:   line,
			name:   bound,
			target: Target{Kind: moduleKind(kind), Module: module},
		}}
	}

	entries := make([]scopeEntry, 0, len(imp.Items))
	for _, item := range imp.Items {
		bound := item.Name
		if item.Alias != "" {
			bound = item.Alias
		}
		entries = append(entries, scopeEntry{
			line:   line,
			name:   bound,
			target: ix.memberTarget(target, kind, item.Name),
		})
	}
	return entries
}

// wildcardBindings expands "from X import *" into one binding per public
// name of X.
func (ix *Index) wildcardBindings(target string, kind TargetKind, line int) []scopeEntry {
	if kind != TargetModule {
		return nil
	}
	src, ok := ix.Module(target)
	if !ok {
		return nil
	}
	var entries []scopeEntry
	for _, name := range src.PublicNames() {
		entries = append(entries, scopeEntry{
			line:   line,
			name:   name,
			target: ix.memberTarget(target, kind, name),
		})
	}
	return entries
}

// memberTarget resolves "from M import name": a submodule when one exists,
// otherwise a symbol of M.
func (ix *Index) memberTarget(module string, kind TargetKind, name string) Target {
	switch kind {
	case TargetStdlib:
		return Target{Kind: TargetStdlib, Module: module}
	case TargetUnknown:
		return Target{Kind: TargetUnknown, Module: module, Symbol: name}
	}
	sub := module + "." + name
	if ix.HasModule(sub) {
		return Target{Kind: TargetModule, Module: sub}
	}
	return Target{Kind: TargetSymbol, Module: module, Symbol: name}
}

func moduleKind(kind TargetKind) TargetKind {
	if kind == TargetModule {
		return TargetModule
	}
	return kind
}

// ResolveName resolves a possibly dotted reference against a module scope:
// "helper" finds the binding directly, "pkg.mod.attr" follows module
// bindings through the chain.
func (ix *Index) ResolveName(scope map[string]Target, name string) (Target, bool) {
	parts := strings.Split(name, ".")
	target, ok := scope[parts[0]]
	if !ok {
		return Target{}, false
	}

	for _, part := range parts[1:] {
		switch target.Kind {
		case TargetModule:
			sub := target.Module + "." + part
			if ix.HasModule(sub) {
				target = Target{Kind: TargetModule, Module: sub}
				continue
			}
			target = Target{Kind: TargetSymbol, Module: target.Module, Symbol: part}
		case TargetSymbol:
			// attribute of a symbol: the symbol itself is the dependency
			return target, true
		default:
			return target, true
		}
	}
	return target, true
}

func firstSegment(name string) string {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}
