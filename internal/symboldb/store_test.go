package symboldb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyslim/internal/diag"
	"pyslim/internal/graph"
	"pyslim/internal/parser"
)

func parseModule(t *testing.T, module, path, source string) *parser.File {
	t.Helper()
	file, err := parser.NewParser().ParseFile(path, []byte(source))
	require.NoError(t, err)
	file.Module = module
	return file
}

func TestSaveAndLoadRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	reg := graph.NewRegistry()
	require.NoError(t, reg.AddFile(parseModule(t, "main", "/proj/main.py",
		"from util import helper\nhelper()\n")))
	require.NoError(t, reg.AddFile(parseModule(t, "util", "/proj/util.py",
		"def helper():\n    return 1\n\ndef unused():\n    return 2\n")))
	reg.Seal()

	diags := diag.NewCollector()
	engine := graph.NewEngine(reg, diags)
	result, err := engine.Analyze([]string{"main"})
	require.NoError(t, err)

	require.NoError(t, store.SaveRun(reg, result, diags, []string{"main"}))

	sum, err := store.LoadSummary(diags.RunID())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 2, sum.Reachable)
	assert.Equal(t, 0, sum.Diagnostics)

	names, err := store.ReachableSymbols(diags.RunID(), "util")
	require.NoError(t, err)
	assert.Equal(t, []string{"helper"}, names)
}

func TestSaveRunRecordsDiagnostics(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	reg := graph.NewRegistry()
	require.NoError(t, reg.AddFile(parseModule(t, "main", "/proj/main.py",
		"import missing_dep\n")))
	reg.Seal()

	diags := diag.NewCollector()
	result, err := graph.NewEngine(reg, diags).Analyze([]string{"main"})
	require.NoError(t, err)
	require.NoError(t, store.SaveRun(reg, result, diags, []string{"main"}))

	sum, err := store.LoadSummary(diags.RunID())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Diagnostics)
}

func TestOpenReusesExistingSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	first, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(dbPath)
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}

func TestOpenRejectsBadPaths(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)

	_, err = Open(t.TempDir())
	assert.Error(t, err)
}
