// Package graph owns the merged module registry and computes the reachable
// set of modules, symbols, and resources from the configured entry points.
package graph

import (
	"pyslim/internal/dist"
	"pyslim/internal/errors"
	"pyslim/internal/parser"
	"pyslim/internal/resolver"
)

// Registry is the merged view of everything a run parsed: project modules
// and distribution modules under one module table. It is built once, sealed,
// and read-only during analysis.
type Registry struct {
	Index *resolver.Index

	files     []*parser.File
	byModule  map[string]*parser.File
	dists     map[string]dist.Distribution
	resources map[string][]dist.Resource // dotted package -> resources
	sealed    bool
}

func NewRegistry() *Registry {
	return &Registry{
		Index:     resolver.NewIndex(),
		byModule:  make(map[string]*parser.File),
		dists:     make(map[string]dist.Distribution),
		resources: make(map[string][]dist.Resource),
	}
}

// AddFile merges one parsed module. The file's Module name must be set.
func (r *Registry) AddFile(file *parser.File) error {
	if r.sealed {
		return errors.New(errors.CodeInternal, "registry is sealed")
	}
	if file.Module == "" {
		return errors.New(errors.CodeInternal, "file has no module name").
			WithContext(errors.CtxPath, file.Path)
	}
	if _, exists := r.byModule[file.Module]; exists {
		// first writer wins; project files are added before dist files
		return nil
	}
	r.files = append(r.files, file)
	r.byModule[file.Module] = file
	r.Index.Add(file)
	return nil
}

// AddDistribution records distribution metadata and its resource files.
// The distribution's modules are parsed and added separately via AddFile.
func (r *Registry) AddDistribution(d dist.Distribution) error {
	if r.sealed {
		return errors.New(errors.CodeInternal, "registry is sealed")
	}
	r.dists[d.Name] = d
	for _, res := range d.Resources {
		r.resources[res.Package] = append(r.resources[res.Package], res)
	}
	return nil
}

// Seal freezes the registry; analysis runs against an immutable table.
func (r *Registry) Seal() {
	r.sealed = true
}

func (r *Registry) Module(name string) (*parser.File, bool) {
	file, ok := r.byModule[name]
	return file, ok
}

func (r *Registry) Files() []*parser.File {
	return r.files
}

func (r *Registry) Distribution(name string) (dist.Distribution, bool) {
	d, ok := r.dists[name]
	return d, ok
}

func (r *Registry) Distributions() map[string]dist.Distribution {
	return r.dists
}

// ResourcesIn returns the packaged resources directly inside a package.
func (r *Registry) ResourcesIn(pkg string) []dist.Resource {
	return r.resources[pkg]
}
