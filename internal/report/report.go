// Package report renders exploration results for humans and machines:
// aligned text for terminals, markdown for issue trackers, canonical
// JSON for archives and diffing. Rendering works off a plain Summary so
// the formats stay deterministic and testable against golden files.
package report

import (
	"sort"
	"time"

	"github.com/probemap/probemap/internal/agent"
	"github.com/probemap/probemap/internal/hypergraph"
)

// Summary is the flattened, render-ready view of one exploration run.
type Summary struct {
	RunID       string        `json:"run_id"`
	Outcome     string        `json:"outcome"`
	Duration    time.Duration `json:"duration_ms"`
	Steps       int           `json:"steps"`
	States      int           `json:"states"`
	Transitions int           `json:"transitions"`

	// ActionsUsed / ActionsTotal feed the registration-denominator
	// coverage metric.
	ActionsUsed   int     `json:"actions_used"`
	ActionsTotal  int     `json:"actions_total"`
	ActionPercent float64 `json:"action_coverage_percent"`

	// PairPercent is explored (state, action) pairs over all pairs the
	// discovered graph implies.
	PairPercent float64 `json:"pair_coverage_percent"`

	// Efficiency is unique states per step.
	Efficiency float64 `json:"efficiency"`

	// Actions lists per-action usage, sorted by name.
	Actions []ActionUsage `json:"actions"`

	// Violations holds the deduplicated list; ViolationsRecorded counts
	// every occurrence before dedup.
	Violations         []ViolationSummary `json:"violations"`
	ViolationsRecorded int                `json:"violations_recorded"`

	Dimensions hypergraph.DimensionCoverage `json:"dimension_coverage"`
}

// ActionUsage is one action's execution count.
type ActionUsage struct {
	Name string `json:"name"`
	Uses int    `json:"uses"`
}

// ViolationSummary is one deduplicated violation with its reproduction
// path flattened to action names.
type ViolationSummary struct {
	Invariant string   `json:"invariant"`
	Severity  string   `json:"severity"`
	Action    string   `json:"action"`
	StateID   string   `json:"state_id"`
	Message   string   `json:"message,omitempty"`
	Path      []string `json:"path"`
}

// Build flattens an exploration result into a Summary.
func Build(res *agent.ExplorationResult) Summary {
	s := Summary{
		RunID:       res.RunID,
		Outcome:     string(res.Outcome),
		Duration:    res.Duration(),
		Steps:       res.StepsTaken,
		States:      res.Graph.StateCount(),
		Transitions: res.Graph.TransitionCount(),

		ActionsUsed:   len(res.Graph.UsedActions()),
		ActionsTotal:  len(res.Graph.Actions()),
		ActionPercent: res.ActionCoveragePercent(),
		PairPercent:   res.CoveragePercent(),
		Efficiency:    res.ExplorationEfficiency(),

		ViolationsRecorded: len(res.Violations),
		Dimensions:         res.DimensionCoverage,
	}

	// List every registered action, not just the recorded ones: the
	// unused rows are the coverage gap.
	usage := res.Graph.ActionUsage()
	names := make([]string, 0, len(res.Graph.Actions()))
	for _, a := range res.Graph.Actions() {
		names = append(names, a.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		s.Actions = append(s.Actions, ActionUsage{Name: name, Uses: usage[name]})
	}

	for _, v := range res.UniqueViolations() {
		vs := ViolationSummary{
			Invariant: v.Invariant,
			Severity:  string(v.Severity),
			Action:    v.Action,
			StateID:   v.StateID,
			Message:   v.Message,
			Path:      make([]string, 0, len(v.Path)),
		}
		for _, tr := range v.Path {
			vs.Path = append(vs.Path, tr.Action)
		}
		s.Violations = append(s.Violations, vs)
	}

	return s
}

// shortID truncates a content hash for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
