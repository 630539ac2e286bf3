package fileproc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"pyslim/internal/parser"
)

func TestParseFiles(t *testing.T) {
	paths := []string{"a.py", "b.py", "c.py"}

	results, errs := ParseFiles(context.Background(), paths, 2, func(_ *parser.Parser, path string) (string, error) {
		return strings.TrimSuffix(path, ".py"), nil
	})
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}

	sort.Strings(results)
	want := []string{"a", "b", "c"}
	if len(results) != len(want) {
		t.Fatalf("results = %v", results)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("results[%d] = %s, want %s", i, results[i], want[i])
		}
	}
}

func TestParseFilesCollectsErrors(t *testing.T) {
	paths := []string{"ok.py", "bad.py", "also_ok.py"}

	results, errs := ParseFiles(context.Background(), paths, 0, func(_ *parser.Parser, path string) (string, error) {
		if path == "bad.py" {
			return "", fmt.Errorf("boom")
		}
		return path, nil
	})

	if len(results) != 2 {
		t.Errorf("expected 2 results, got %v", results)
	}
	if errs == nil || !errs.HasErrors() {
		t.Fatal("expected collected errors")
	}
	if len(errs.Errors) != 1 || errs.Errors[0].Path != "bad.py" {
		t.Errorf("errors = %+v", errs.Errors)
	}
}

func TestParseFilesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, errs := ParseFiles(ctx, []string{"a.py", "b.py"}, 1, func(_ *parser.Parser, path string) (string, error) {
		return path, nil
	})

	if len(results) != 0 {
		t.Errorf("cancelled run should produce no results, got %v", results)
	}
	if errs == nil || len(errs.Errors) != 2 {
		t.Errorf("expected an error per path, got %+v", errs)
	}
}

func TestForEachFileEmpty(t *testing.T) {
	results, errs := ForEachFile(context.Background(), nil, 4, func(path string) (int, error) {
		return 0, nil
	})
	if results != nil || errs != nil {
		t.Error("empty input should short-circuit")
	}
}

func TestWorkers(t *testing.T) {
	if Workers(3) != 3 {
		t.Error("configured worker count ignored")
	}
	if Workers(0) <= 0 {
		t.Error("default worker count must be positive")
	}
}
