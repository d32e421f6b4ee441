package hypergraph

import "sort"

// DimensionStats summarizes one dimension: which values were observed
// and, when the full value enum is known, how much of it was covered.
type DimensionStats struct {
	// Values are the observed values, sorted.
	Values []string `json:"values"`

	// Observed is len(Values).
	Observed int `json:"observed"`

	// TotalPossible is the size of the known value enum for this
	// dimension, 0 when no enum was supplied.
	TotalPossible int `json:"total_possible"`

	// CoveragePercent is Observed/TotalPossible as a percentage, 0 when
	// the total is unknown.
	CoveragePercent float64 `json:"coverage_percent"`
}

// ComboGap lists the value combinations of two dimensions never
// co-observed on any state.
type ComboGap struct {
	DimensionA string      `json:"dimension_a"`
	DimensionB string      `json:"dimension_b"`
	Missing    [][2]string `json:"missing"`
}

// DimensionCoverage is the per-run coverage summary over all indexed
// dimensions: a plain serializable structure for reporters to render.
type DimensionCoverage struct {
	// TotalStates is how many distinct states carry a label.
	TotalStates int `json:"total_states"`

	// Dimensions maps dimension name to its stats.
	Dimensions map[string]DimensionStats `json:"dimensions"`

	// Gap estimates unexplored combinations for the two most populous
	// dimensions (most observed values, ties by name). Nil when fewer
	// than two dimensions are indexed.
	Gap *ComboGap `json:"gap,omitempty"`
}

// UnexploredCombos returns the number of missing combinations in the
// estimated gap, 0 when no gap was computed.
func (c DimensionCoverage) UnexploredCombos() int {
	if c.Gap == nil {
		return 0
	}
	return len(c.Gap.Missing)
}

// ComputeCoverage builds the coverage summary for a hypergraph. The
// known map supplies, per dimension, the enum of all possible values
// when one exists; dimensions absent from it report a zero coverage
// percentage because their denominator is unknown.
func ComputeCoverage(hg *Hypergraph, known map[string][]string) DimensionCoverage {
	cov := DimensionCoverage{
		TotalStates: hg.StateCount(),
		Dimensions:  make(map[string]DimensionStats),
	}

	dims := hg.Dimensions()
	for _, dim := range dims {
		values := hg.ValuesFor(dim)
		stats := DimensionStats{
			Values:   values,
			Observed: len(values),
		}
		if enum, ok := known[dim]; ok && len(enum) > 0 {
			stats.TotalPossible = len(enum)
			stats.CoveragePercent = float64(stats.Observed) / float64(stats.TotalPossible) * 100
		}
		cov.Dimensions[dim] = stats
	}

	if a, b, ok := twoMostPopulous(cov.Dimensions); ok {
		cov.Gap = &ComboGap{
			DimensionA: a,
			DimensionB: b,
			Missing:    hg.UnexploredCombos(a, b),
		}
	}
	return cov
}

// twoMostPopulous picks the two dimensions with the most observed
// values, ties broken by name, returning them in (more, less) order.
func twoMostPopulous(dims map[string]DimensionStats) (string, string, bool) {
	if len(dims) < 2 {
		return "", "", false
	}

	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := names[i], names[j]
		if dims[a].Observed != dims[b].Observed {
			return dims[a].Observed > dims[b].Observed
		}
		return a < b
	})
	return names[0], names[1], true
}
