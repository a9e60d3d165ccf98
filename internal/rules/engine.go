package rules

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidecast/mediapipe/internal/database"
	"github.com/tidecast/mediapipe/internal/probe"
)

// Rule is the in-memory, structured counterpart to database.Rule: its
// ExprJSON/ActionsJSON text columns decoded into Expr/ActionConfig values
// (spec.md §3 "Rule").
type Rule struct {
	ID       string
	Name     string
	Enabled  bool
	Priority int
	Expr     Expr
	Actions  []ActionConfig
}

// FromDatabaseRule decodes a persisted database.Rule's JSON columns.
func FromDatabaseRule(r database.Rule) (Rule, error) {
	expr, err := UnmarshalExpr([]byte(r.ExprJSON))
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	var actions []ActionConfig
	if r.ActionsJSON != "" {
		if err := json.Unmarshal([]byte(r.ActionsJSON), &actions); err != nil {
			return Rule{}, fmt.Errorf("rule %s: unmarshal actions: %w", r.ID, err)
		}
	}
	return Rule{
		ID:       r.ID,
		Name:     r.Name,
		Enabled:  r.Enabled,
		Priority: r.Priority,
		Expr:     expr,
		Actions:  actions,
	}, nil
}

// Engine holds rules sorted by priority descending, stable (spec.md §4.E).
type Engine struct {
	rules []Rule
}

// New sorts rules by priority descending, stable, and returns an Engine.
func New(rules []Rule) *Engine {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &Engine{rules: sorted}
}

// FindMatchingRule returns the first enabled rule whose expression
// evaluates true, or nil (spec.md §4.E, §8 "Rule priority").
func (e *Engine) FindMatchingRule(info *probe.MediaInfo) *Rule {
	for i := range e.rules {
		r := &e.rules[i]
		if !r.Enabled {
			continue
		}
		if r.Expr.Evaluate(info) {
			return r
		}
	}
	return nil
}

// EvaluateAll returns every enabled, matching rule in priority order
// (spec.md §4.E).
func (e *Engine) EvaluateAll(info *probe.MediaInfo) []*Rule {
	var out []*Rule
	for i := range e.rules {
		r := &e.rules[i]
		if r.Enabled && r.Expr.Evaluate(info) {
			out = append(out, r)
		}
	}
	return out
}
