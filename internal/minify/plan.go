// Package minify rewrites reachable modules: unreachable top-level
// definitions are excised and function-local identifiers are renamed to
// short deterministic names where that is provably safe.
package minify

import (
	"pyslim/internal/config"
	"pyslim/internal/parser"
	"pyslim/internal/resolver"
)

// Plan is the rename decision for one function scope.
type Plan struct {
	QualifiedName string
	Scope         *parser.FunctionScope
	// Renames maps original local names to their replacements. Identity
	// assignments are omitted, so an already-minified scope plans empty.
	Renames map[string]string
	Skipped bool
	Reason  string
}

type Planner struct {
	rename   bool
	reserved map[string]bool
}

func NewPlanner(cfg config.Minify) *Planner {
	reserved := make(map[string]bool, len(cfg.ReservedNames))
	for _, name := range cfg.ReservedNames {
		reserved[name] = true
	}
	return &Planner{rename: cfg.Rename, reserved: reserved}
}

// PlanScopes assigns replacement names to every renameable scope,
// deterministically in first-appearance order.
func (p *Planner) PlanScopes(scopes []*parser.FunctionScope) []*Plan {
	plans := make([]*Plan, 0, len(scopes))
	for _, scope := range scopes {
		plans = append(plans, p.planScope(scope))
	}
	return plans
}

func (p *Planner) planScope(scope *parser.FunctionScope) *Plan {
	plan := &Plan{
		QualifiedName: scope.QualifiedName,
		Scope:         scope,
		Renames:       make(map[string]string),
	}

	if !p.rename {
		plan.Skipped = true
		plan.Reason = "renaming disabled"
		return plan
	}
	if reason := skipReason(scope); reason != "" {
		plan.Skipped = true
		plan.Reason = reason
		return plan
	}

	locals := make(map[string]bool, len(scope.Locals))
	for _, name := range scope.Locals {
		locals[name] = true
	}

	gen := &nameGenerator{}
	for _, local := range scope.Locals {
		if p.reserved[local] {
			continue
		}
		replacement := gen.next(func(candidate string) bool {
			// candidates may collide with other locals of this scope: all
			// occurrences are substituted in one pass, so swaps are safe as
			// long as the colliding local is renamed away itself. A reserved
			// local keeps its spelling, so handing it out would duplicate.
			if locals[candidate] {
				return p.reserved[candidate]
			}
			return scope.Seen[candidate] || scope.Excluded[candidate] ||
				p.reserved[candidate] || parser.IsPythonKeyword(candidate) ||
				resolver.IsBuiltin(candidate)
		})
		if replacement != local {
			plan.Renames[local] = replacement
		}
	}
	return plan
}

func skipReason(scope *parser.FunctionScope) string {
	switch {
	case scope.HasMatch:
		return "match statement binds pattern names"
	case scope.HasComprehension:
		return "comprehension scopes are not renamed"
	case scope.HasLambda:
		return "lambda scopes are not renamed"
	case scope.Reflective:
		return "scope observes runtime identity"
	}
	return ""
}

// nameGenerator yields a, b, ..., z, aa, ab, ... skipping avoided names.
type nameGenerator struct {
	counter int
}

func (g *nameGenerator) next(avoid func(string) bool) string {
	for {
		candidate := encodeIdentifier(g.counter)
		g.counter++
		if avoid(candidate) {
			continue
		}
		return candidate
	}
}

func encodeIdentifier(value int) string {
	var buf []byte
	for {
		buf = append(buf, byte('a'+value%26))
		value /= 26
		if value == 0 {
			break
		}
		value--
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}
