// Package dist discovers installed distributions in a site-packages
// directory: regular packages, single-module distributions, and namespace
// package trees, together with their packaged resource files.
package dist

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pyslim/internal/errors"
)

type Kind int

const (
	KindPackage Kind = iota
	KindModule
	KindNamespace
)

func (k Kind) String() string {
	switch k {
	case KindPackage:
		return "package"
	case KindModule:
		return "module"
	case KindNamespace:
		return "namespace"
	}
	return "unknown"
}

// Distribution is one installable unit rooted in site-packages. Multiple
// namespace distributions may contribute to the same import name; they stay
// separate here and aggregate during resolution.
type Distribution struct {
	Name      string // top-level import name
	Version   string // from the matching dist-info, when present
	Path      string
	Kind      Kind
	Modules   []Module
	Resources []Resource
}

// Module is a single .py file with its fully-qualified dotted name.
type Module struct {
	Name string
	Path string
}

// Resource is a packaged non-Python file.
type Resource struct {
	Package string // dotted package containing the file
	Name    string
	Path    string
}

type Scanner struct {
	root string
}

// NewScanner prepares a scanner over a site-packages directory. A venv root
// is accepted too: lib/pythonX.Y/site-packages is located automatically.
func NewScanner(path string) (*Scanner, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidPath, "site-packages path does not exist").
			WithContext(errors.CtxPath, path)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.CodeInvalidPath, "site-packages path is not a directory").
			WithContext(errors.CtxPath, path)
	}
	return &Scanner{root: resolveSitePackages(path)}, nil
}

func (s *Scanner) Root() string {
	return s.root
}

// resolveSitePackages descends venv roots to lib/python*/site-packages.
func resolveSitePackages(path string) string {
	libPath := filepath.Join(path, "lib")
	entries, err := os.ReadDir(libPath)
	if err != nil {
		return path
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "python") {
			continue
		}
		sitePackages := filepath.Join(libPath, entry.Name(), "site-packages")
		if info, err := os.Stat(sitePackages); err == nil && info.IsDir() {
			return sitePackages
		}
	}
	return path
}

// Scan discovers every distribution under the root, sorted by name.
func (s *Scanner) Scan() ([]Distribution, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidPath, "cannot read site-packages").
			WithContext(errors.CtxPath, s.root)
	}

	versions := distInfoVersions(entries)
	var dists []Distribution

	for _, entry := range entries {
		name := entry.Name()
		if skipEntry(name) {
			continue
		}
		path := filepath.Join(s.root, name)

		if entry.IsDir() {
			d, ok, err := s.scanPackageDir(name, path)
			if err != nil {
				return nil, err
			}
			if ok {
				d.Version = versions[normalizeDistName(name)]
				dists = append(dists, d)
			}
			continue
		}

		if strings.HasSuffix(name, ".py") {
			stem := strings.TrimSuffix(name, ".py")
			dists = append(dists, Distribution{
				Name:    stem,
				Version: versions[normalizeDistName(stem)],
				Path:    path,
				Kind:    KindModule,
				Modules: []Module{{Name: stem, Path: path}},
			})
		}
	}

	sort.Slice(dists, func(i, j int) bool { return dists[i].Name < dists[j].Name })
	return dists, nil
}

func skipEntry(name string) bool {
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return true
	}
	if strings.HasSuffix(name, ".dist-info") || strings.HasSuffix(name, ".egg-info") {
		return true
	}
	switch name {
	case "__pycache__", "bin":
		return true
	}
	return strings.HasSuffix(name, ".pth") || strings.HasSuffix(name, ".virtualenv")
}

// scanPackageDir walks one top-level directory, collecting modules and
// resources. Directories with no Python anywhere are not distributions.
func (s *Scanner) scanPackageDir(name, path string) (Distribution, bool, error) {
	d := Distribution{Name: name, Path: path, Kind: KindNamespace}
	if _, err := os.Stat(filepath.Join(path, "__init__.py")); err == nil {
		d.Kind = KindPackage
	}

	err := filepath.WalkDir(path, func(p string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		base := entry.Name()
		if entry.IsDir() {
			if base == "__pycache__" || strings.HasPrefix(base, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		if strings.HasSuffix(base, ".py") {
			d.Modules = append(d.Modules, Module{
				Name: ModuleName(rel),
				Path: p,
			})
			return nil
		}
		if strings.HasSuffix(base, ".pyc") {
			return nil
		}
		d.Resources = append(d.Resources, Resource{
			Package: packageName(rel),
			Name:    base,
			Path:    p,
		})
		return nil
	})
	if err != nil {
		return Distribution{}, false, errors.Wrap(err, errors.CodeInvalidPath, "walking distribution failed").
			WithContext(errors.CtxDistribution, name)
	}

	if len(d.Modules) == 0 {
		return Distribution{}, false, nil
	}
	sort.Slice(d.Modules, func(i, j int) bool { return d.Modules[i].Name < d.Modules[j].Name })
	sort.Slice(d.Resources, func(i, j int) bool { return d.Resources[i].Path < d.Resources[j].Path })
	return d, true, nil
}

// ModuleName converts a path relative to a root into a dotted module name:
// "pkg/sub/mod.py" becomes "pkg.sub.mod" and "pkg/sub/__init__.py" becomes
// "pkg.sub".
func ModuleName(rel string) string {
	rel = strings.TrimSuffix(filepath.ToSlash(rel), ".py")
	parts := strings.Split(rel, "/")
	if len(parts) > 0 && parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, ".")
}

func packageName(rel string) string {
	dir := filepath.Dir(filepath.ToSlash(rel))
	if dir == "." {
		return ""
	}
	return strings.ReplaceAll(dir, "/", ".")
}

// distInfoVersions maps normalized distribution names to versions parsed
// from name-version.dist-info directory names.
func distInfoVersions(entries []os.DirEntry) map[string]string {
	versions := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasSuffix(name, ".dist-info") {
			continue
		}
		stem := strings.TrimSuffix(name, ".dist-info")
		i := strings.LastIndexByte(stem, '-')
		if i <= 0 {
			continue
		}
		versions[normalizeDistName(stem[:i])] = stem[i+1:]
	}
	return versions
}

// normalizeDistName applies PEP 503 style normalization so dist-info names
// match import names.
func normalizeDistName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "-", "_"))
}
