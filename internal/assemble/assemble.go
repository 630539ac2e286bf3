// Package assemble writes the slimmed output tree: rewritten modules under
// paths mirroring their dotted names, reachable resources copied verbatim,
// and placeholder package inits synthesized where pruning would otherwise
// break an import chain.
package assemble

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"pyslim/internal/diag"
	"pyslim/internal/errors"
	"pyslim/internal/fileproc"
	"pyslim/internal/graph"
	"pyslim/internal/minify"
	"pyslim/internal/parser"
)

type Assembler struct {
	reg        *graph.Registry
	result     *graph.Result
	rewriter   *minify.Rewriter
	diags      *diag.Collector
	outputRoot string
	workers    int
}

// Output summarizes what a run wrote.
type Output struct {
	ModulesWritten  int
	ModulesVerbatim int
	ResourcesCopied int
	Placeholders    int
	BytesIn         int64
	BytesOut        int64
}

func New(reg *graph.Registry, result *graph.Result, rewriter *minify.Rewriter, diags *diag.Collector, outputRoot string, workers int) *Assembler {
	return &Assembler{
		reg:        reg,
		result:     result,
		rewriter:   rewriter,
		diags:      diags,
		outputRoot: outputRoot,
		workers:    workers,
	}
}

// Run writes the output tree. Individual module failures are reported and do
// not cancel sibling writes.
func (a *Assembler) Run(ctx context.Context) (*Output, error) {
	if err := os.MkdirAll(a.outputRoot, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidPath, "cannot create output root").
			WithContext(errors.CtxPath, a.outputRoot)
	}

	modules, verbatim := a.selectModules()

	out := &Output{}
	var mu sync.Mutex
	written := make(map[string]bool) // relative output paths of written modules

	_, errs := fileproc.ForEachFile(ctx, modules, a.workers, func(name string) (struct{}, error) {
		file, _ := a.reg.Module(name)
		rel := moduleRelPath(file)

		content := file.Source
		usedVerbatim := verbatim[name]
		if !usedVerbatim {
			rewritten, err := a.rewriter.RewriteModule(file, a.result)
			if err != nil {
				// report and fall back to the original text; output must
				// stay runnable even when a rewrite fails
				a.diags.Add(diag.RewriteFailure, diag.Location{File: file.Path},
					"rewrite failed, emitting module verbatim: %v", err)
				usedVerbatim = true
			} else {
				content = rewritten
			}
		}

		if err := writeOutput(filepath.Join(a.outputRoot, rel), content); err != nil {
			return struct{}{}, err
		}

		mu.Lock()
		written[rel] = true
		out.ModulesWritten++
		if usedVerbatim {
			out.ModulesVerbatim++
		}
		out.BytesIn += int64(len(file.Source))
		out.BytesOut += int64(len(content))
		mu.Unlock()
		return struct{}{}, nil
	})
	if errs != nil {
		for _, pe := range errs.Errors {
			a.diags.Add(diag.RewriteFailure, diag.Location{File: pe.Path}, "write failed: %v", pe.Err)
		}
	}

	if err := a.copyResources(ctx, out); err != nil {
		return out, err
	}
	a.synthesizePlaceholders(written, out)
	return out, nil
}

// selectModules returns the reachable module names to emit and which of them
// must be copied verbatim because their distribution is retained wholesale.
func (a *Assembler) selectModules() ([]string, map[string]bool) {
	include := make(map[string]bool)
	verbatim := make(map[string]bool)

	for name := range a.result.Modules {
		if _, ok := a.reg.Module(name); ok {
			include[name] = true
		}
	}

	if a.result.RetainAll {
		// a computed import may target any module at all
		for _, file := range a.reg.Files() {
			include[file.Module] = true
			verbatim[file.Module] = true
		}
	} else {
		for distName, d := range a.reg.Distributions() {
			if !a.result.RetainDists[distName] {
				continue
			}
			for _, m := range d.Modules {
				include[m.Name] = true
				verbatim[m.Name] = true
			}
		}
	}

	names := make([]string, 0, len(include))
	for name := range include {
		if _, ok := a.reg.Module(name); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, verbatim
}

// moduleRelPath mirrors a module's dotted path: "a.b.c" becomes a/b/c.py,
// and a package init becomes a/b/__init__.py.
func moduleRelPath(file *parser.File) string {
	parts := strings.Split(file.Module, ".")
	if strings.HasSuffix(filepath.Base(file.Path), "__init__.py") {
		return filepath.Join(append(parts, "__init__.py")...)
	}
	parts[len(parts)-1] += ".py"
	return filepath.Join(parts...)
}

func (a *Assembler) copyResources(ctx context.Context, out *Output) error {
	var paths []string
	for path := range a.result.Resources {
		paths = append(paths, path)
	}
	for _, d := range a.reg.Distributions() {
		if !a.result.RetainAll && !a.result.RetainDists[d.Name] {
			continue
		}
		for _, r := range d.Resources {
			if !a.result.Resources[r.Path] {
				paths = append(paths, r.Path)
			}
		}
	}
	sort.Strings(paths)

	target := make(map[string]string, len(paths)) // source path -> relative output path
	for _, d := range a.reg.Distributions() {
		for _, r := range d.Resources {
			parts := strings.Split(r.Package, ".")
			target[r.Path] = filepath.Join(append(parts, r.Name)...)
		}
	}

	var mu sync.Mutex
	_, errs := fileproc.ForEachFile(ctx, paths, a.workers, func(path string) (struct{}, error) {
		rel, ok := target[path]
		if !ok {
			rel = filepath.Base(path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return struct{}{}, err
		}
		if err := writeOutput(filepath.Join(a.outputRoot, rel), data); err != nil {
			return struct{}{}, err
		}
		mu.Lock()
		out.ResourcesCopied++
		mu.Unlock()
		return struct{}{}, nil
	})
	if errs != nil {
		for _, pe := range errs.Errors {
			a.diags.Add(diag.RewriteFailure, diag.Location{File: pe.Path}, "resource copy failed: %v", pe.Err)
		}
	}
	return nil
}

// synthesizePlaceholders keeps import chains valid: every directory on the
// path to a written module needs an __init__.py unless the package is a
// namespace package, which never had one.
func (a *Assembler) synthesizePlaceholders(written map[string]bool, out *Output) {
	needed := make(map[string]string) // relative init path -> package dotted name
	for rel := range written {
		dir := filepath.Dir(rel)
		for dir != "." && dir != string(filepath.Separator) {
			initRel := filepath.Join(dir, "__init__.py")
			if !written[initRel] {
				needed[initRel] = strings.ReplaceAll(filepath.ToSlash(dir), "/", ".")
			}
			dir = filepath.Dir(dir)
		}
	}

	rels := make([]string, 0, len(needed))
	for rel := range needed {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	for _, rel := range rels {
		pkg := needed[rel]
		if a.isNamespacePackage(pkg) {
			continue
		}
		if err := writeOutput(filepath.Join(a.outputRoot, rel), nil); err != nil {
			a.diags.Add(diag.IncompletePackage, diag.Location{File: rel},
				"cannot synthesize package init: %v", err)
			continue
		}
		out.Placeholders++
		a.diags.Add(diag.IncompletePackage, diag.Location{File: rel},
			"package init for %s was not emitted; synthesized an empty placeholder", pkg)
	}
}

// isNamespacePackage reports whether a dotted package has no __init__ module
// anywhere in the registry.
func (a *Assembler) isNamespacePackage(pkg string) bool {
	if _, ok := a.reg.Module(pkg); ok {
		return false
	}
	return true
}

func writeOutput(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
