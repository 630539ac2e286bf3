package dist

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fakeSitePackages(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "used_pkg", "__init__.py"), "from .core import greet\n")
	writeFile(t, filepath.Join(root, "used_pkg", "core.py"), "def greet():\n    pass\n")
	writeFile(t, filepath.Join(root, "used_pkg", "data", "banner.txt"), "hello\n")
	writeFile(t, filepath.Join(root, "used_pkg-1.2.3.dist-info", "METADATA"), "Name: used-pkg\n")

	writeFile(t, filepath.Join(root, "single_mod.py"), "VALUE = 1\n")

	// namespace package: no __init__.py at the top
	writeFile(t, filepath.Join(root, "nsroot", "plugin_a", "__init__.py"), "")
	writeFile(t, filepath.Join(root, "nsroot", "plugin_a", "impl.py"), "def run():\n    pass\n")

	// noise that must be ignored
	writeFile(t, filepath.Join(root, "__pycache__", "junk.pyc"), "")
	writeFile(t, filepath.Join(root, "_virtualenv.py"), "")
	writeFile(t, filepath.Join(root, "site.pth"), "")
	writeFile(t, filepath.Join(root, "empty_dir", "README.md"), "no python here\n")

	return root
}

func TestScan(t *testing.T) {
	s, err := NewScanner(fakeSitePackages(t))
	if err != nil {
		t.Fatal(err)
	}
	dists, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}

	if len(dists) != 3 {
		names := make([]string, 0, len(dists))
		for _, d := range dists {
			names = append(names, d.Name)
		}
		t.Fatalf("expected 3 distributions, got %v", names)
	}

	byName := make(map[string]Distribution)
	for _, d := range dists {
		byName[d.Name] = d
	}

	used := byName["used_pkg"]
	if used.Kind != KindPackage {
		t.Errorf("used_pkg kind = %s", used.Kind)
	}
	if used.Version != "1.2.3" {
		t.Errorf("used_pkg version = %q", used.Version)
	}
	if len(used.Modules) != 2 {
		t.Fatalf("used_pkg modules = %+v", used.Modules)
	}
	if used.Modules[0].Name != "used_pkg" || used.Modules[1].Name != "used_pkg.core" {
		t.Errorf("module names wrong: %+v", used.Modules)
	}
	if len(used.Resources) != 1 || used.Resources[0].Package != "used_pkg.data" || used.Resources[0].Name != "banner.txt" {
		t.Errorf("resources wrong: %+v", used.Resources)
	}

	single := byName["single_mod"]
	if single.Kind != KindModule || len(single.Modules) != 1 {
		t.Errorf("single module dist wrong: %+v", single)
	}

	ns := byName["nsroot"]
	if ns.Kind != KindNamespace {
		t.Errorf("nsroot kind = %s", ns.Kind)
	}
	foundImpl := false
	for _, m := range ns.Modules {
		if m.Name == "nsroot.plugin_a.impl" {
			foundImpl = true
		}
	}
	if !foundImpl {
		t.Errorf("namespace modules wrong: %+v", ns.Modules)
	}
}

func TestNewScannerVenvRoot(t *testing.T) {
	venv := t.TempDir()
	site := filepath.Join(venv, "lib", "python3.12", "site-packages")
	writeFile(t, filepath.Join(site, "mod.py"), "X = 1\n")

	s, err := NewScanner(venv)
	if err != nil {
		t.Fatal(err)
	}
	if s.Root() != site {
		t.Errorf("venv root not resolved: %s", s.Root())
	}

	dists, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if len(dists) != 1 || dists[0].Name != "mod" {
		t.Errorf("venv scan wrong: %+v", dists)
	}
}

func TestNewScannerMissingPath(t *testing.T) {
	_, err := NewScanner(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestModuleName(t *testing.T) {
	cases := map[string]string{
		"pkg/sub/mod.py":      "pkg.sub.mod",
		"pkg/__init__.py":     "pkg",
		"pkg/sub/__init__.py": "pkg.sub",
		"top.py":              "top",
	}
	for rel, want := range cases {
		if got := ModuleName(rel); got != want {
			t.Errorf("ModuleName(%q) = %q, want %q", rel, got, want)
		}
	}
}
