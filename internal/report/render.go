package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/probemap/probemap/internal/canonical"
)

// printer accumulates the first write error so render code stays flat.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) f(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// Text renders the summary as aligned terminal output.
func Text(w io.Writer, s Summary) error {
	p := &printer{w: w}

	p.f("run:         %s\n", s.RunID)
	p.f("outcome:     %s\n", s.Outcome)
	p.f("duration:    %s\n", s.Duration)
	p.f("steps:       %d\n", s.Steps)
	p.f("states:      %d\n", s.States)
	p.f("transitions: %d\n", s.Transitions)
	p.f("\n")
	p.f("action coverage:  %.1f%% (%d/%d used)\n", s.ActionPercent, s.ActionsUsed, s.ActionsTotal)
	p.f("pair coverage:    %.1f%%\n", s.PairPercent)
	p.f("efficiency:       %.2f states/step\n", s.Efficiency)

	if len(s.Actions) > 0 {
		width := 0
		for _, a := range s.Actions {
			if len(a.Name) > width {
				width = len(a.Name)
			}
		}
		p.f("\nactions:\n")
		for _, a := range s.Actions {
			p.f("  %-*s  x%d\n", width, a.Name, a.Uses)
		}
	}

	if len(s.Violations) == 0 {
		p.f("\nviolations: none\n")
	} else {
		p.f("\nviolations: %d unique, %d recorded\n", len(s.Violations), s.ViolationsRecorded)
		for _, v := range s.Violations {
			p.f("  [%s] %s after %s at %s\n", v.Severity, v.Invariant, v.Action, shortID(v.StateID))
			if v.Message != "" {
				p.f("      %s\n", v.Message)
			}
			if len(v.Path) > 0 {
				p.f("      path: %s (%d steps)\n", strings.Join(v.Path, " -> "), len(v.Path))
			}
		}
	}

	if len(s.Dimensions.Dimensions) > 0 {
		p.f("\ndimensions: %d labeled states\n", s.Dimensions.TotalStates)
		for _, name := range sortedDimensions(s) {
			stats := s.Dimensions.Dimensions[name]
			if stats.TotalPossible > 0 {
				p.f("  %s: %d/%d values (%.1f%%) [%s]\n",
					name, stats.Observed, stats.TotalPossible, stats.CoveragePercent,
					strings.Join(stats.Values, " "))
			} else {
				p.f("  %s: %d values observed [%s]\n",
					name, stats.Observed, strings.Join(stats.Values, " "))
			}
		}
		if gap := s.Dimensions.Gap; gap != nil && len(gap.Missing) > 0 {
			p.f("  gap: %s x %s: %d unexplored combos\n",
				gap.DimensionA, gap.DimensionB, len(gap.Missing))
		}
	}

	return p.err
}

// Markdown renders the summary for issue trackers and run logs.
func Markdown(w io.Writer, s Summary) error {
	p := &printer{w: w}

	p.f("# Exploration run %s\n\n", s.RunID)
	p.f("- **Outcome:** %s\n", s.Outcome)
	p.f("- **Duration:** %s\n", s.Duration)
	p.f("- **Steps:** %d\n", s.Steps)
	p.f("- **States:** %d\n", s.States)
	p.f("- **Transitions:** %d\n", s.Transitions)
	p.f("- **Action coverage:** %.1f%% (%d/%d)\n", s.ActionPercent, s.ActionsUsed, s.ActionsTotal)
	p.f("- **Pair coverage:** %.1f%%\n", s.PairPercent)
	p.f("- **Efficiency:** %.2f states/step\n", s.Efficiency)

	if len(s.Actions) > 0 {
		p.f("\n## Actions\n\n")
		p.f("| Action | Uses |\n")
		p.f("|---|---:|\n")
		for _, a := range s.Actions {
			p.f("| %s | %d |\n", a.Name, a.Uses)
		}
	}

	p.f("\n## Violations\n\n")
	if len(s.Violations) == 0 {
		p.f("None.\n")
	} else {
		p.f("%d unique (%d recorded).\n\n", len(s.Violations), s.ViolationsRecorded)
		for _, v := range s.Violations {
			p.f("- **%s** (%s) after `%s` at `%s`\n", v.Invariant, v.Severity, v.Action, shortID(v.StateID))
			if v.Message != "" {
				p.f("  - %s\n", v.Message)
			}
			if len(v.Path) > 0 {
				p.f("  - reproduction: `%s` (%d steps)\n", strings.Join(v.Path, " -> "), len(v.Path))
			}
		}
	}

	if len(s.Dimensions.Dimensions) > 0 {
		p.f("\n## Dimension coverage\n\n")
		p.f("%d labeled states.\n\n", s.Dimensions.TotalStates)
		p.f("| Dimension | Observed | Total | Coverage | Values |\n")
		p.f("|---|---:|---:|---:|---|\n")
		for _, name := range sortedDimensions(s) {
			stats := s.Dimensions.Dimensions[name]
			if stats.TotalPossible > 0 {
				p.f("| %s | %d | %d | %.1f%% | %s |\n",
					name, stats.Observed, stats.TotalPossible, stats.CoveragePercent,
					strings.Join(stats.Values, ", "))
			} else {
				p.f("| %s | %d | - | - | %s |\n",
					name, stats.Observed, strings.Join(stats.Values, ", "))
			}
		}
		if gap := s.Dimensions.Gap; gap != nil && len(gap.Missing) > 0 {
			p.f("\nUnexplored %s x %s combos: %d\n",
				gap.DimensionA, gap.DimensionB, len(gap.Missing))
		}
	}

	return p.err
}

// JSON renders the summary as canonical JSON, stable under re-rendering
// so archives diff cleanly.
func JSON(s Summary) ([]byte, error) {
	return canonical.Marshal(s.toCanonicalMap())
}

// toCanonicalMap lowers the summary to the plain shapes canonical JSON
// accepts.
func (s Summary) toCanonicalMap() map[string]any {
	actions := make([]any, len(s.Actions))
	for i, a := range s.Actions {
		actions[i] = map[string]any{"name": a.Name, "uses": a.Uses}
	}

	violations := make([]any, len(s.Violations))
	for i, v := range s.Violations {
		entry := map[string]any{
			"invariant": v.Invariant,
			"severity":  v.Severity,
			"action":    v.Action,
			"state_id":  v.StateID,
			"path":      toAnySlice(v.Path),
		}
		if v.Message != "" {
			entry["message"] = v.Message
		}
		violations[i] = entry
	}

	dims := make(map[string]any, len(s.Dimensions.Dimensions))
	for name, stats := range s.Dimensions.Dimensions {
		dims[name] = map[string]any{
			"values":           toAnySlice(stats.Values),
			"observed":         stats.Observed,
			"total_possible":   stats.TotalPossible,
			"coverage_percent": stats.CoveragePercent,
		}
	}
	coverage := map[string]any{
		"total_states": s.Dimensions.TotalStates,
		"dimensions":   dims,
	}
	if gap := s.Dimensions.Gap; gap != nil {
		missing := make([]any, len(gap.Missing))
		for i, combo := range gap.Missing {
			missing[i] = []any{combo[0], combo[1]}
		}
		coverage["gap"] = map[string]any{
			"dimension_a": gap.DimensionA,
			"dimension_b": gap.DimensionB,
			"missing":     missing,
		}
	}

	return map[string]any{
		"run_id":                  s.RunID,
		"outcome":                 s.Outcome,
		"duration_ms":             int(s.Duration / time.Millisecond),
		"steps":                   s.Steps,
		"states":                  s.States,
		"transitions":             s.Transitions,
		"actions_used":            s.ActionsUsed,
		"actions_total":           s.ActionsTotal,
		"action_coverage_percent": s.ActionPercent,
		"pair_coverage_percent":   s.PairPercent,
		"efficiency":              s.Efficiency,
		"actions":                 actions,
		"violations":              violations,
		"violations_recorded":     s.ViolationsRecorded,
		"dimension_coverage":      coverage,
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func sortedDimensions(s Summary) []string {
	names := make([]string, 0, len(s.Dimensions.Dimensions))
	for name := range s.Dimensions.Dimensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
