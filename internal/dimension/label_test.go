package dimension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probemap/probemap/internal/state"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	schema, err := compileSchema(t, `
		dimension: auth: {
			system: "api"
			path:   "session.kind"
			values: ["anonymous", "user"]
		}
		dimension: cart: {
			system: "api"
			path:   "cart.size"
			bands: [
				{label: "empty", max: 0},
				{label: "small", max: 3},
				{label: "large"},
			]
		}
		dimension: db_rows: {
			system: "db"
			path:   "orders"
		}
	`)
	require.NoError(t, err)
	return schema
}

func TestLabelResolvesPathsAndBands(t *testing.T) {
	l := testSchema(t).Labeler()

	st := state.MustNew(
		state.NewObservation("api", map[string]any{
			"session": map[string]any{"kind": "user"},
			"cart":    map[string]any{"size": 2},
		}),
		state.NewObservation("db", map[string]any{"orders": 7}),
	)

	he, ok := l.Label(st)
	require.True(t, ok)
	assert.Equal(t, "user", he.Dimensions["auth"])
	assert.Equal(t, "small", he.Dimensions["cart"], "size 2 falls in the (0, 3] band")
	assert.Equal(t, "7", he.Dimensions["db_rows"], "numeric leaves stringify")
}

func TestLabelBandEdges(t *testing.T) {
	l := testSchema(t).Labeler()

	cases := map[int]string{
		0:   "empty",
		3:   "small",
		4:   "large",
		100: "large",
	}
	for size, want := range cases {
		st := state.MustNew(state.NewObservation("api", map[string]any{
			"cart": map[string]any{"size": size},
		}))
		he, ok := l.Label(st)
		require.True(t, ok)
		assert.Equal(t, want, he.Dimensions["cart"], "size %d", size)
	}
}

func TestLabelSkipsUnresolvableDimensions(t *testing.T) {
	l := testSchema(t).Labeler()

	// The session path dead-ends and the db system is absent entirely.
	st := state.MustNew(state.NewObservation("api", map[string]any{
		"session": "not-a-map",
		"cart":    map[string]any{"size": 0},
	}))

	he, ok := l.Label(st)
	require.True(t, ok)
	_, hasAuth := he.Dimensions["auth"]
	assert.False(t, hasAuth)
	_, hasDB := he.Dimensions["db_rows"]
	assert.False(t, hasDB)
	assert.Equal(t, "empty", he.Dimensions["cart"], "resolvable dimensions still label")
}

func TestLabelNothingResolves(t *testing.T) {
	l := testSchema(t).Labeler()

	st := state.MustNew(state.NewObservation("other", map[string]any{"x": 1}))
	_, ok := l.Label(st)
	assert.False(t, ok, "a state off every dimension gets no edge")
}

func TestLabelKeepsSurpriseValues(t *testing.T) {
	l := testSchema(t).Labeler()

	st := state.MustNew(state.NewObservation("api", map[string]any{
		"session": map[string]any{"kind": "service_account"},
	}))

	he, ok := l.Label(st)
	require.True(t, ok)
	assert.Equal(t, "service_account", he.Dimensions["auth"],
		"values outside the declared enum surface instead of vanishing")
}

func TestLabelStringifiesScalars(t *testing.T) {
	schema, err := compileSchema(t, `
		dimension: flag: {
			system: "api"
			path:   "enabled"
		}
		dimension: rate: {
			system: "api"
			path:   "rate"
		}
	`)
	require.NoError(t, err)
	l := schema.Labeler()

	st := state.MustNew(state.NewObservation("api", map[string]any{
		"enabled": true,
		"rate":    0.5,
	}))

	he, ok := l.Label(st)
	require.True(t, ok)
	assert.Equal(t, "true", he.Dimensions["flag"])
	assert.Equal(t, "0.5", he.Dimensions["rate"])
}
