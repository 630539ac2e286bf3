// Package fileproc runs per-file work across a bounded goroutine pool.
// Parsing dominates a run, and every file is independent until the registry
// merge, so the pool fans out and the caller merges in one place.
package fileproc

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"pyslim/internal/parser"
)

// ProcessingError is one file's failure.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// ProcessingErrors collects failures across workers.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

func (e *ProcessingErrors) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed (first: %v)", len(e.Errors), e.Errors[0])
}

// DefaultWorkerMultiplier scales NumCPU for the default pool size; parsing
// mixes file IO with CGO calls, so oversubscribing pays off.
const DefaultWorkerMultiplier = 2

func Workers(configured int) int {
	if configured > 0 {
		return configured
	}
	return runtime.NumCPU() * DefaultWorkerMultiplier
}

// ParseFiles parses every path with a per-goroutine parser and returns the
// successful results in arbitrary order plus the collected failures.
func ParseFiles[T any](ctx context.Context, paths []string, maxWorkers int, fn func(*parser.Parser, string) (T, error)) ([]T, *ProcessingErrors) {
	if len(paths) == 0 {
		return nil, nil
	}

	results := make([]T, 0, len(paths))
	errs := &ProcessingErrors{}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(Workers(maxWorkers))
	for _, path := range paths {
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				errs.Add(path, err)
				return
			}

			psr := parser.NewParser()
			result, err := fn(psr, path)
			if err != nil {
				errs.Add(path, err)
				return
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		})
	}
	p.Wait()

	if !errs.HasErrors() {
		return results, nil
	}
	return results, errs
}

// ForEachFile runs fn for every path without a parser; used for the rewrite
// and copy phases.
func ForEachFile[T any](ctx context.Context, paths []string, maxWorkers int, fn func(string) (T, error)) ([]T, *ProcessingErrors) {
	if len(paths) == 0 {
		return nil, nil
	}

	results := make([]T, 0, len(paths))
	errs := &ProcessingErrors{}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(Workers(maxWorkers))
	for _, path := range paths {
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				errs.Add(path, err)
				return
			}

			result, err := fn(path)
			if err != nil {
				errs.Add(path, err)
				return
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		})
	}
	p.Wait()

	if !errs.HasErrors() {
		return results, nil
	}
	return results, errs
}
