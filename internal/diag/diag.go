// Package diag carries the structured diagnostics stream: the sole channel
// for reporting reduced-confidence analysis decisions.
package diag

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type Kind string

const (
	SyntaxError       Kind = "SyntaxError"
	UnresolvedImport  Kind = "UnresolvedImport"
	OpaqueConstruct   Kind = "OpaqueConstruct"
	IncompletePackage Kind = "IncompletePackage"
	RewriteFailure    Kind = "RewriteFailure"
	// ModuleFlags reports the per-module metadata flags that drive the
	// rewriter's conservative branches.
	ModuleFlags Kind = "ModuleFlags"
)

type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.Line == 0 {
		return l.File
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

type Record struct {
	Kind     Kind
	Location Location
	Message  string
}

func (r Record) String() string {
	if r.Location.File == "" {
		return fmt.Sprintf("%s: %s", r.Kind, r.Message)
	}
	return fmt.Sprintf("%s: %s: %s", r.Kind, r.Location, r.Message)
}

// Collector accumulates records from concurrent analysis stages. Appends are
// idempotent with respect to final ordering: Records sorts by location then
// kind so output is stable across worker interleavings.
type Collector struct {
	mu      sync.Mutex
	runID   string
	records []Record
}

func NewCollector() *Collector {
	return &Collector{runID: uuid.NewString()}
}

func (c *Collector) RunID() string {
	return c.runID
}

func (c *Collector) Add(kind Kind, loc Location, format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, Record{
		Kind:     kind,
		Location: loc,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Record, len(c.records))
	copy(out, c.records)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Location.File != b.Location.File {
			return a.Location.File < b.Location.File
		}
		if a.Location.Line != b.Location.Line {
			return a.Location.Line < b.Location.Line
		}
		return a.Kind < b.Kind
	})
	return out
}

// HasFatal reports whether any per-file fatal record (SyntaxError) was
// collected; the run exit status reflects this.
func (c *Collector) HasFatal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.Kind == SyntaxError {
			return true
		}
	}
	return false
}

func (c *Collector) CountByKind() map[Kind]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[Kind]int)
	for _, r := range c.records {
		counts[r.Kind]++
	}
	return counts
}
