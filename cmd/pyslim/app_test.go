package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyslim/internal/config"
	"pyslim/internal/symboldb"
)

func writeFixture(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func fixtureProject(t *testing.T) (projRoot, siteRoot string) {
	projRoot = t.TempDir()
	writeFixture(t, projRoot, map[string]string{
		"main.py": "from app.core import greet\n" +
			"import used_pkg\n" +
			"\n" +
			"def main():\n" +
			"    print(greet(), used_pkg.helper())\n" +
			"\n" +
			"if __name__ == \"__main__\":\n" +
			"    main()\n",
		"app/__init__.py": "",
		"app/core.py": "def greet():\n" +
			"    return \"hello\"\n" +
			"\n" +
			"def unused():\n" +
			"    return \"never\"\n",
		"app/extra.py": "def orphan():\n    return 0\n",
	})

	siteRoot = t.TempDir()
	writeFixture(t, siteRoot, map[string]string{
		"used_pkg/__init__.py": "def helper():\n    return \"pkg\"\n",
		"used_pkg/data/banner.txt": "banner\n",
		"used_pkg-1.0.0.dist-info/METADATA": "Name: used_pkg\n",
		"unused_pkg/__init__.py": "def nobody():\n    return 1\n",
	})
	return projRoot, siteRoot
}

func newTestConfig(projRoot, siteRoot, outRoot string) *config.Config {
	cfg := config.Default()
	cfg.ProjectPaths = []string{projRoot}
	cfg.SitePackages = siteRoot
	cfg.OutputRoot = outRoot
	cfg.EntryPoints = []string{"main"}
	cfg.Workers = 2
	return cfg
}

func TestRunProducesSlimmedTree(t *testing.T) {
	projRoot, siteRoot := fixtureProject(t)
	outRoot := filepath.Join(t.TempDir(), "out")

	app, err := NewApp(newTestConfig(projRoot, siteRoot, outRoot))
	require.NoError(t, err)

	report, err := app.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Fatal)
	assert.Empty(t, report.Diags)

	assert.FileExists(t, filepath.Join(outRoot, "main.py"))
	assert.FileExists(t, filepath.Join(outRoot, "app", "__init__.py"))
	assert.FileExists(t, filepath.Join(outRoot, "used_pkg", "__init__.py"))
	assert.NoFileExists(t, filepath.Join(outRoot, "app", "extra.py"))
	assert.NoFileExists(t, filepath.Join(outRoot, "unused_pkg", "__init__.py"))

	core, err := os.ReadFile(filepath.Join(outRoot, "app", "core.py"))
	require.NoError(t, err)
	assert.Contains(t, string(core), "def greet")
	assert.NotContains(t, string(core), "def unused")
}

func TestRunAcceptsEntryPointPath(t *testing.T) {
	projRoot, siteRoot := fixtureProject(t)
	outRoot := filepath.Join(t.TempDir(), "out")

	cfg := newTestConfig(projRoot, siteRoot, outRoot)
	cfg.EntryPoints = []string{filepath.Join(projRoot, "main.py")}

	app, err := NewApp(cfg)
	require.NoError(t, err)

	report, err := app.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Fatal)
	assert.FileExists(t, filepath.Join(outRoot, "main.py"))
}

func TestRunRecordsRunInSymbolDB(t *testing.T) {
	projRoot, siteRoot := fixtureProject(t)
	outRoot := filepath.Join(t.TempDir(), "out")

	cfg := newTestConfig(projRoot, siteRoot, outRoot)
	cfg.SymbolDB = filepath.Join(t.TempDir(), "runs.db")

	app, err := NewApp(cfg)
	require.NoError(t, err)

	report, err := app.Run(context.Background())
	require.NoError(t, err)

	store, err := symboldb.Open(cfg.SymbolDB)
	require.NoError(t, err)
	defer store.Close()

	sum, err := store.LoadSummary(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.Modules, sum.Total)
	assert.Equal(t, report.Reachable, sum.Reachable)
}

func TestRunReportsSyntaxErrorAsFatal(t *testing.T) {
	projRoot, siteRoot := fixtureProject(t)
	writeFixture(t, projRoot, map[string]string{
		"broken.py": "def oops(:\n",
	})
	outRoot := filepath.Join(t.TempDir(), "out")

	app, err := NewApp(newTestConfig(projRoot, siteRoot, outRoot))
	require.NoError(t, err)

	report, err := app.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Fatal)
	assert.FileExists(t, filepath.Join(outRoot, "main.py"))
}

func TestRunHonorsExcludeGlobs(t *testing.T) {
	projRoot, siteRoot := fixtureProject(t)
	writeFixture(t, projRoot, map[string]string{
		".venv/ignored/__init__.py": "def nope(:\n",
	})
	outRoot := filepath.Join(t.TempDir(), "out")

	app, err := NewApp(newTestConfig(projRoot, siteRoot, outRoot))
	require.NoError(t, err)

	report, err := app.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Fatal)
}
