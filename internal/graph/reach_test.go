package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyslim/internal/diag"
	"pyslim/internal/dist"
	"pyslim/internal/parser"
)

type fakeModule struct {
	name   string
	path   string
	dist   string
	source string
}

func buildRegistry(t *testing.T, modules []fakeModule, dists ...dist.Distribution) *Registry {
	t.Helper()
	reg := NewRegistry()
	p := parser.NewParser()
	for _, m := range modules {
		file, err := p.ParseFile(m.path, []byte(m.source))
		require.NoError(t, err)
		file.Module = m.name
		file.Dist = m.dist
		require.NoError(t, reg.AddFile(file))
	}
	for _, d := range dists {
		require.NoError(t, reg.AddDistribution(d))
	}
	reg.Seal()
	return reg
}

func analyze(t *testing.T, reg *Registry, entries ...string) (*Result, *diag.Collector) {
	t.Helper()
	diags := diag.NewCollector()
	res, err := NewEngine(reg, diags).Analyze(entries)
	require.NoError(t, err)
	return res, diags
}

func TestAnalyze_TransitiveSymbols(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
import used_pkg

print(used_pkg.greet("world"))
`},
		{name: "used_pkg", path: "used_pkg/__init__.py", dist: "used_pkg", source: `
from .core import greet
`},
		{name: "used_pkg.core", path: "used_pkg/core.py", dist: "used_pkg", source: `
from .fmt import decorate

def greet(name):
    return decorate(name)

def farewell(name):
    return name
`},
		{name: "used_pkg.fmt", path: "used_pkg/fmt.py", dist: "used_pkg", source: `
def decorate(s):
    return "*" + s + "*"

def unused(s):
    return s
`},
		{name: "unused_pkg", path: "unused_pkg/__init__.py", dist: "unused_pkg", source: `
def never():
    pass
`},
	})

	res, diags := analyze(t, reg, "main")

	assert.True(t, res.ModuleReachable("main"))
	assert.True(t, res.ModuleReachable("used_pkg"))
	assert.True(t, res.ModuleReachable("used_pkg.core"))
	assert.True(t, res.ModuleReachable("used_pkg.fmt"))
	assert.False(t, res.ModuleReachable("unused_pkg"))

	assert.True(t, res.SymbolReachable("used_pkg.core", "greet"))
	assert.True(t, res.SymbolReachable("used_pkg.fmt", "decorate"))
	assert.False(t, res.SymbolReachable("used_pkg.core", "farewell"),
		"unreferenced sibling must stay unreachable")
	assert.False(t, res.SymbolReachable("used_pkg.fmt", "unused"))

	assert.Empty(t, diags.Records())
}

func TestAnalyze_WildcardImport(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
from util import *

exported()
`},
		{name: "util", path: "util.py", source: `
__all__ = ["exported", "also_exported"]

def exported():
    pass

def also_exported():
    pass

def _internal():
    pass
`},
	})

	res, _ := analyze(t, reg, "main")

	assert.True(t, res.SymbolReachable("util", "exported"))
	assert.True(t, res.SymbolReachable("util", "also_exported"),
		"every __all__ name is reachable through a wildcard")
	assert.False(t, res.SymbolReachable("util", "_internal"))
}

func TestAnalyze_SubmoduleWildcard(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
from pkg import *

child.run()
`},
		{name: "pkg", path: "pkg/__init__.py", source: `
from . import child

__all__ = ["child"]
`},
		{name: "pkg.child", path: "pkg/child.py", source: `
def run():
    pass

def idle():
    pass
`},
	})

	res, _ := analyze(t, reg, "main")

	assert.True(t, res.ModuleReachable("pkg.child"))
	assert.True(t, res.SymbolReachable("pkg.child", "run"))
	assert.False(t, res.SymbolReachable("pkg.child", "idle"))
}

func TestAnalyze_DynamicLiteralImport(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
import importlib

plugin = importlib.import_module("plugins.default")
plugin.activate()
`},
		{name: "plugins", path: "plugins/__init__.py", source: ""},
		{name: "plugins.default", path: "plugins/default.py", source: `
def activate():
    pass
`},
	})

	res, _ := analyze(t, reg, "main")

	assert.True(t, res.ModuleReachable("plugins.default"))
	assert.True(t, res.SymbolReachable("plugins.default", "activate"),
		"a dynamically imported module keeps its public surface")
}

func TestAnalyze_ComputedImportRetainsEverything(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
import importlib

def load(name):
    return importlib.import_module(name)

load("whatever")
`},
	})

	res, diags := analyze(t, reg, "main")

	assert.True(t, res.RetainAll)
	assert.Equal(t, 1, diags.CountByKind()[diag.OpaqueConstruct])
}

func TestAnalyze_OpaqueReflectionRetainsDistribution(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
import plugin_host

plugin_host.dispatch("x")
`},
		{name: "plugin_host", path: "plugin_host/__init__.py", dist: "plugin_host", source: `
def dispatch(name):
    return getattr(handlers, name)
`},
	})

	res, _ := analyze(t, reg, "main")

	assert.True(t, res.RetainDists["plugin_host"])
	assert.False(t, res.RetainAll)
}

func TestAnalyze_UnresolvedImportDiagnostic(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
import not_installed
`},
	})

	_, diags := analyze(t, reg, "main")

	records := diags.Records()
	require.Len(t, records, 1)
	assert.Equal(t, diag.UnresolvedImport, records[0].Kind)
	assert.Equal(t, "main.py", records[0].Location.File)
}

func TestAnalyze_ConditionalMissingImportTolerated(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
try:
    import fast_impl
except ImportError:
    fast_impl = None
`},
	})

	_, diags := analyze(t, reg, "main")
	assert.Empty(t, diags.Records(), "guarded optional imports are not errors")
}

func TestAnalyze_TypeCheckingStaticOnly(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
from typing import TYPE_CHECKING

if TYPE_CHECKING:
    import typehelp

def annotate(x):
    return x
`},
		{name: "typehelp", path: "typehelp.py", source: `
class Hint:
    pass
`},
	})

	res, _ := analyze(t, reg, "main")

	assert.True(t, res.ModuleReachable("typehelp"), "type-only imports stay resolvable")
	assert.True(t, res.StaticOnly["typehelp"])
}

func TestAnalyze_Resources(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
from importlib import resources

def banner():
    return resources.read_text("assets", "banner.txt")

banner()
`},
		{name: "assets", path: "assets/__init__.py", dist: "assets", source: ""},
	}, dist.Distribution{
		Name: "assets",
		Kind: dist.KindPackage,
		Resources: []dist.Resource{
			{Package: "assets", Name: "banner.txt", Path: "/site/assets/banner.txt"},
			{Package: "assets", Name: "other.txt", Path: "/site/assets/other.txt"},
		},
	})

	res, _ := analyze(t, reg, "main")

	assert.True(t, res.Resources["/site/assets/banner.txt"])
	assert.False(t, res.Resources["/site/assets/other.txt"],
		"unreferenced resources are not retained")
}

func TestAnalyze_ComputedResourceNameRetainsDirectory(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
from importlib import resources

def load(name):
    return resources.read_text("assets", name)

load("welcome.txt")
`},
		{name: "assets", path: "assets/__init__.py", dist: "assets", source: ""},
	}, dist.Distribution{
		Name: "assets",
		Kind: dist.KindPackage,
		Resources: []dist.Resource{
			{Package: "assets", Name: "welcome.txt", Path: "/site/assets/welcome.txt"},
			{Package: "assets", Name: "goodbye.txt", Path: "/site/assets/goodbye.txt"},
		},
	})

	res, _ := analyze(t, reg, "main")

	assert.True(t, res.ResourceDirs["assets"])
	assert.True(t, res.Resources["/site/assets/welcome.txt"])
	assert.True(t, res.Resources["/site/assets/goodbye.txt"])
}

func TestAnalyze_ModuleFlagDiagnostics(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
from util import *

def outer():
    def inner():
        pass
    return inner

exported()
`},
		{name: "util", path: "util.py", source: `
def exported():
    pass
`},
	})

	_, diags := analyze(t, reg, "main")

	var flagged []diag.Record
	for _, rec := range diags.Records() {
		if rec.Kind == diag.ModuleFlags {
			flagged = append(flagged, rec)
		}
	}
	require.Len(t, flagged, 1, "only the flag-bearing module is reported")
	assert.Equal(t, "main.py", flagged[0].Location.File)
	assert.Contains(t, flagged[0].Message, "nested-functions")
	assert.Contains(t, flagged[0].Message, "wildcard-import")
}

func TestAnalyze_PackageInitExecutes(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: `
import pkg.leaf
`},
		{name: "pkg", path: "pkg/__init__.py", source: `
from .registry import register

register("pkg")
`},
		{name: "pkg.registry", path: "pkg/registry.py", source: `
def register(name):
    pass
`},
		{name: "pkg.leaf", path: "pkg/leaf.py", source: ""},
	})

	res, _ := analyze(t, reg, "main")

	assert.True(t, res.ModuleReachable("pkg"), "importing a submodule executes the package __init__")
	assert.True(t, res.SymbolReachable("pkg.registry", "register"))
}

func TestAnalyze_UnknownEntryPoint(t *testing.T) {
	reg := buildRegistry(t, []fakeModule{
		{name: "main", path: "main.py", source: ""},
	})
	diags := diag.NewCollector()
	_, err := NewEngine(reg, diags).Analyze([]string{"missing"})
	require.Error(t, err)
}
