package parser

import (
	"strings"
	"time"
)

// File is the source model for a single Python module: imports, top-level
// definitions, referenced names, and resource-load sites, annotated with the
// flags the rewriter's conservative branches consume.
type File struct {
	Path      string
	Module    string // fully-qualified dotted path, assigned at registry merge
	Dist      string // owning distribution name; empty for project files
	Source    []byte
	Imports   []Import
	Defs      []Definition
	Refs      []Reference // names referenced by module-level executable code
	Resources []ResourceRef
	Opaques   []OpaqueConstruct
	Exports   []string // __all__ entries when declared
	HasAll    bool
	Flags     Flags
	ParsedAt  time.Time
}

type GuardKind int

const (
	GuardNone GuardKind = iota
	// GuardConditional marks imports inside if/try blocks; they are treated
	// as unconditionally present for reachability.
	GuardConditional
	// GuardTypeChecking marks TYPE_CHECKING-guarded imports: resolved and
	// retained, but static-only at runtime.
	GuardTypeChecking
)

type Import struct {
	Module   string // dotted target as written, without leading dots
	Level    int    // leading-dot count for relative imports
	Alias    string // alias for a plain "import x as y"
	Items    []ImportItem
	Wildcard bool
	Dynamic  bool // __import__/importlib.import_module with a literal argument
	Guard    GuardKind
	Location Location
}

type ImportItem struct {
	Name  string
	Alias string
}

// BoundName returns the name the import binds in the importing scope.
func (imp Import) BoundName() string {
	if imp.Alias != "" {
		return imp.Alias
	}
	if i := strings.IndexByte(imp.Module, '.'); i >= 0 {
		return imp.Module[:i]
	}
	return imp.Module
}

type DefinitionKind int

const (
	KindFunction DefinitionKind = iota
	KindClass
	KindVariable
)

type Definition struct {
	Name       string
	Kind       DefinitionKind
	Decorators []string
	Nested     []Definition
	// StartByte/EndByte span the whole definition including its decorators,
	// so pruning removes the decorated_definition wrapper in one excision.
	StartByte uint
	EndByte   uint
	// Refs holds every name (including dotted attribute chains) referenced
	// anywhere in the definition subtree. Closures roll up into their
	// enclosing definition: a reachable definition retains its nested scopes
	// in full.
	Refs       []string
	Reflective bool // own name observed through runtime introspection
	Location   Location
}

type Reference struct {
	Name     string // possibly dotted ("used_pkg.greet")
	Location Location
}

// ResourceRef records a packaged-resource load site. An empty Name with
// ComputedName set retains the package's entire resource directory.
type ResourceRef struct {
	Package      string // dotted resource package as written; empty if computed
	Name         string // literal file name; empty if computed
	ComputedName bool
	Location     Location
}

type OpaqueKind int

const (
	// OpaqueDynamicImport is a module-loading call with a computed target;
	// the import target is unknowable, so every candidate distribution is
	// retained.
	OpaqueDynamicImport OpaqueKind = iota
	// OpaqueReflection is dynamic attribute access with a computed name;
	// retains the enclosing distribution.
	OpaqueReflection
	// OpaqueResource is a resource load with a computed path; retains the
	// enclosing distribution's resource files.
	OpaqueResource
)

type OpaqueConstruct struct {
	Kind     OpaqueKind
	Detail   string
	Location Location
}

type Flags struct {
	HasNestedFunctions  bool
	HasDynamicImport    bool
	HasComputedImport   bool
	HasWildcardImport   bool
	HasReflectiveAccess bool
	HasMainGuard        bool
}

// Names lists the conservative-behavior flags that are set, in a stable
// order, for the diagnostics stream. The main-guard marker is structural,
// not conservative, and is not reported.
func (f Flags) Names() []string {
	var names []string
	if f.HasNestedFunctions {
		names = append(names, "nested-functions")
	}
	if f.HasDynamicImport {
		names = append(names, "dynamic-import")
	}
	if f.HasComputedImport {
		names = append(names, "computed-import")
	}
	if f.HasWildcardImport {
		names = append(names, "wildcard-import")
	}
	if f.HasReflectiveAccess {
		names = append(names, "reflective-access")
	}
	return names
}

type Location struct {
	File   string
	Line   int
	Column int
}

// PublicNames returns the names a wildcard import would bind when the module
// declares no __all__: its non-underscore-prefixed top-level names.
func (f *File) PublicNames() []string {
	if f.HasAll {
		return f.Exports
	}
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name == "" || name[0] == '_' || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}
	for _, def := range f.Defs {
		add(def.Name)
	}
	for _, imp := range f.Imports {
		if imp.Wildcard {
			continue
		}
		if len(imp.Items) == 0 {
			add(imp.BoundName())
			continue
		}
		for _, item := range imp.Items {
			if item.Alias != "" {
				add(item.Alias)
			} else {
				add(item.Name)
			}
		}
	}
	return names
}

// HasWildcard reports whether the module contains any wildcard import.
func (f *File) HasWildcard() bool {
	for _, imp := range f.Imports {
		if imp.Wildcard {
			return true
		}
	}
	return false
}
