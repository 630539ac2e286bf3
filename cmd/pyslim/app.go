package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"pyslim/internal/assemble"
	"pyslim/internal/config"
	"pyslim/internal/diag"
	"pyslim/internal/dist"
	"pyslim/internal/errors"
	"pyslim/internal/fileproc"
	"pyslim/internal/graph"
	"pyslim/internal/minify"
	"pyslim/internal/parser"
	"pyslim/internal/resolver"
	"pyslim/internal/symboldb"
	"pyslim/internal/watcher"
)

type App struct {
	cfg          *config.Config
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
}

// RunReport is the outcome of one analysis pass.
type RunReport struct {
	RunID     string
	Modules   int
	Reachable int
	Output    *assemble.Output
	Diags     []diag.Record
	Fatal     bool
	Elapsed   time.Duration
}

func NewApp(cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}

	for _, pattern := range cfg.Exclude.Dirs {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad exclude dir pattern %q: %w", pattern, err)
		}
		app.excludeDirs = append(app.excludeDirs, g)
	}
	for _, pattern := range cfg.Exclude.Files {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad exclude file pattern %q: %w", pattern, err)
		}
		app.excludeFiles = append(app.excludeFiles, g)
	}

	return app, nil
}

// Run executes the full pipeline once: scan, parse, analyze, rewrite, write.
func (a *App) Run(ctx context.Context) (*RunReport, error) {
	start := time.Now()
	diags := diag.NewCollector()

	reg, err := a.buildRegistry(ctx, diags)
	if err != nil {
		return nil, err
	}

	entries, err := a.resolveEntries(reg)
	if err != nil {
		return nil, err
	}

	result, err := graph.NewEngine(reg, diags).Analyze(entries)
	if err != nil {
		return nil, err
	}

	rewriter := minify.NewRewriter(a.cfg.Minify)
	assembler := assemble.New(reg, result, rewriter, diags, a.cfg.OutputRoot, a.cfg.Workers)
	output, err := assembler.Run(ctx)
	if err != nil {
		return nil, err
	}

	if a.cfg.SymbolDB != "" {
		store, err := symboldb.Open(a.cfg.SymbolDB)
		if err != nil {
			return nil, err
		}
		saveErr := store.SaveRun(reg, result, diags, entries)
		if closeErr := store.Close(); saveErr == nil {
			saveErr = closeErr
		}
		if saveErr != nil {
			return nil, saveErr
		}
	}

	return &RunReport{
		RunID:     diags.RunID(),
		Modules:   len(reg.Files()),
		Reachable: len(result.Modules),
		Output:    output,
		Diags:     diags.Records(),
		Fatal:     diags.HasFatal(),
		Elapsed:   time.Since(start),
	}, nil
}

// buildRegistry parses the project trees and the configured site-packages
// into one sealed module table. Files that fail to parse are reported and
// left out; analysis continues without them.
func (a *App) buildRegistry(ctx context.Context, diags *diag.Collector) (*graph.Registry, error) {
	reg := graph.NewRegistry()

	for _, root := range a.cfg.ProjectPaths {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidPath, "cannot resolve project path").
				WithContext(errors.CtxPath, root)
		}
		paths, err := a.collectSources(absRoot)
		if err != nil {
			return nil, err
		}

		files, errs := fileproc.ParseFiles(ctx, paths, a.cfg.Workers, func(p *parser.Parser, path string) (*parser.File, error) {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			file, err := p.ParseFile(path, content)
			if err != nil {
				return nil, err
			}
			file.Module = resolver.ModuleName(absRoot, path)
			return file, nil
		})
		reportParseErrors(diags, errs)

		for _, file := range files {
			if file.Module == "" {
				continue
			}
			if err := reg.AddFile(file); err != nil {
				return nil, err
			}
		}
	}

	if a.cfg.SitePackages != "" {
		if err := a.addDistributions(ctx, reg, diags); err != nil {
			return nil, err
		}
	}

	reg.Seal()
	return reg, nil
}

func (a *App) addDistributions(ctx context.Context, reg *graph.Registry, diags *diag.Collector) error {
	scanner, err := dist.NewScanner(a.cfg.SitePackages)
	if err != nil {
		return err
	}
	dists, err := scanner.Scan()
	if err != nil {
		return err
	}

	for _, d := range dists {
		if err := reg.AddDistribution(d); err != nil {
			return err
		}

		paths := make([]string, 0, len(d.Modules))
		byPath := make(map[string]string, len(d.Modules))
		for _, m := range d.Modules {
			paths = append(paths, m.Path)
			byPath[m.Path] = m.Name
		}

		files, errs := fileproc.ParseFiles(ctx, paths, a.cfg.Workers, func(p *parser.Parser, path string) (*parser.File, error) {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			file, err := p.ParseFile(path, content)
			if err != nil {
				return nil, err
			}
			file.Module = byPath[path]
			file.Dist = d.Name
			return file, nil
		})
		reportParseErrors(diags, errs)

		for _, file := range files {
			if err := reg.AddFile(file); err != nil {
				return err
			}
		}
	}
	return nil
}

func reportParseErrors(diags *diag.Collector, errs *fileproc.ProcessingErrors) {
	if errs == nil {
		return
	}
	for _, pe := range errs.Errors {
		diags.Add(diag.SyntaxError, diag.Location{File: pe.Path}, "%v", pe.Err)
	}
}

// collectSources walks one project root for .py files, honoring the exclude
// globs against base names the same way the watcher does.
func (a *App) collectSources(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		base := filepath.Base(path)
		if d.IsDir() {
			if path != root {
				for _, g := range a.excludeDirs {
					if g.Match(base) {
						return filepath.SkipDir
					}
				}
			}
			return nil
		}
		if !strings.HasSuffix(base, ".py") {
			return nil
		}
		for _, g := range a.excludeFiles {
			if g.Match(base) {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidPath, "cannot walk project path").
			WithContext(errors.CtxPath, root)
	}
	return paths, nil
}

// resolveEntries accepts entry points as dotted module names or .py paths.
func (a *App) resolveEntries(reg *graph.Registry) ([]string, error) {
	entries := make([]string, 0, len(a.cfg.EntryPoints))
	for _, entry := range a.cfg.EntryPoints {
		if !strings.HasSuffix(entry, ".py") {
			entries = append(entries, entry)
			continue
		}
		abs, err := filepath.Abs(entry)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidPath, "cannot resolve entry point").
				WithContext(errors.CtxPath, entry)
		}
		module := ""
		for _, root := range a.cfg.ProjectPaths {
			absRoot, err := filepath.Abs(root)
			if err != nil {
				continue
			}
			if rel, err := filepath.Rel(absRoot, abs); err == nil && !strings.HasPrefix(rel, "..") {
				if name := resolver.ModuleName(absRoot, abs); name != "" {
					module = name
					break
				}
			}
		}
		if module == "" {
			return nil, errors.New(errors.CodeInvalidPath, "entry point is outside the project paths").
				WithContext(errors.CtxPath, entry)
		}
		entries = append(entries, module)
	}
	return entries, nil
}

// WatchAndRun re-executes the pipeline whenever project files change.
func (a *App) WatchAndRun(ctx context.Context) error {
	w, err := watcher.New(a.cfg.Watch.Debounce, a.cfg.Exclude.Dirs, a.cfg.Exclude.Files, func(paths []string) {
		slog.Info("change detected, re-running", "files", len(paths))
		report, err := a.Run(ctx)
		if err != nil {
			slog.Error("run failed", "error", err)
			return
		}
		a.PrintSummary(report)
	})
	if err != nil {
		return err
	}
	defer w.Close()

	roots := make([]string, 0, len(a.cfg.ProjectPaths))
	for _, root := range a.cfg.ProjectPaths {
		abs, err := filepath.Abs(root)
		if err != nil {
			return err
		}
		roots = append(roots, abs)
	}
	if err := w.Watch(roots); err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}

// PrintSummary writes the one-line result to stdout and replays the
// diagnostics stream on stderr through the logger.
func (a *App) PrintSummary(report *RunReport) {
	fmt.Printf("pyslim: %d/%d modules reachable, %d written (%d verbatim), %d resources, %d -> %d bytes in %s\n",
		report.Reachable, report.Modules,
		report.Output.ModulesWritten, report.Output.ModulesVerbatim,
		report.Output.ResourcesCopied,
		report.Output.BytesIn, report.Output.BytesOut,
		report.Elapsed.Round(time.Millisecond))

	slog.Debug("analysis complete",
		"run_id", report.RunID,
		"modules", report.Modules,
		"reachable", report.Reachable,
		"written", report.Output.ModulesWritten,
		"verbatim", report.Output.ModulesVerbatim,
		"resources", report.Output.ResourcesCopied,
		"placeholders", report.Output.Placeholders,
		"bytes_in", report.Output.BytesIn,
		"bytes_out", report.Output.BytesOut,
		"elapsed", report.Elapsed.Round(time.Millisecond),
	)
	for _, rec := range report.Diags {
		switch rec.Kind {
		case diag.SyntaxError:
			slog.Error(rec.String())
		case diag.ModuleFlags:
			slog.Debug(rec.String())
		default:
			slog.Warn(rec.String())
		}
	}
}
