package hypergraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCoverage(t *testing.T) {
	h := New()
	h.Add("s1", edge(map[string]string{"auth": "admin", "resource": "present"}))
	h.Add("s2", edge(map[string]string{"auth": "admin", "resource": "absent"}))
	h.Add("s3", edge(map[string]string{"auth": "anonymous", "resource": "present"}))

	known := map[string][]string{
		"auth": {"admin", "user", "anonymous", "expired"},
	}
	cov := ComputeCoverage(h, known)

	assert.Equal(t, 3, cov.TotalStates)

	auth := cov.Dimensions["auth"]
	assert.Equal(t, []string{"admin", "anonymous"}, auth.Values)
	assert.Equal(t, 2, auth.Observed)
	assert.Equal(t, 4, auth.TotalPossible)
	assert.Equal(t, 50.0, auth.CoveragePercent)

	resource := cov.Dimensions["resource"]
	assert.Equal(t, 2, resource.Observed)
	assert.Equal(t, 0, resource.TotalPossible, "no enum supplied")
	assert.Equal(t, 0.0, resource.CoveragePercent, "unknown denominator reports zero")

	require.NotNil(t, cov.Gap)
	assert.Equal(t, "auth", cov.Gap.DimensionA, "ties on observed count break by name")
	assert.Equal(t, "resource", cov.Gap.DimensionB)
	assert.Equal(t, 1, cov.UnexploredCombos())
}

func TestComputeCoverageSingleDimension(t *testing.T) {
	h := New()
	h.Add("s1", edge(map[string]string{"auth": "admin"}))

	cov := ComputeCoverage(h, nil)
	assert.Nil(t, cov.Gap, "gap needs two dimensions")
	assert.Equal(t, 0, cov.UnexploredCombos())
}

func TestComputeCoverageEmpty(t *testing.T) {
	cov := ComputeCoverage(New(), nil)
	assert.Equal(t, 0, cov.TotalStates)
	assert.Empty(t, cov.Dimensions)
	assert.Nil(t, cov.Gap)
}

func TestComputeCoveragePicksMostPopulousPair(t *testing.T) {
	h := New()
	h.Add("s1", edge(map[string]string{"a": "1", "b": "x", "c": "only"}))
	h.Add("s2", edge(map[string]string{"a": "2", "b": "y", "c": "only"}))
	h.Add("s3", edge(map[string]string{"a": "3", "b": "x", "c": "only"}))

	cov := ComputeCoverage(h, nil)
	require.NotNil(t, cov.Gap)
	assert.Equal(t, "a", cov.Gap.DimensionA, "three observed values beats two")
	assert.Equal(t, "b", cov.Gap.DimensionB)
}
