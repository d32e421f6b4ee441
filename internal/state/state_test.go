package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStateDedupInvariant(t *testing.T) {
	// Identical {system: data} content must produce identical IDs, no
	// matter when the observations were taken or what metadata they carry.
	o1 := NewObservation("api", map[string]any{"cart": map[string]any{"items": []any{"A1"}, "total": 9.5}})
	o1.ObservedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	o2 := NewObservationWithMetadata("api",
		map[string]any{"cart": map[string]any{"items": []any{"A1"}, "total": 9.5}},
		map[string]any{"latency_ms": 12},
	)
	o2.ObservedAt = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	s1, err := New(o1)
	require.NoError(t, err)
	s2, err := New(o2)
	require.NoError(t, err)

	assert.Equal(t, s1.ID, s2.ID, "same data must collapse to the same state")
	assert.Len(t, s1.ID, 64, "SHA-256 hex is 64 characters")
}

func TestNewStateDifferentDataDifferentID(t *testing.T) {
	s1 := MustNew(NewObservation("api", map[string]any{"count": 1}))
	s2 := MustNew(NewObservation("api", map[string]any{"count": 2}))
	s3 := MustNew(NewObservation("db", map[string]any{"count": 1}))

	assert.NotEqual(t, s1.ID, s2.ID, "different data must produce different IDs")
	assert.NotEqual(t, s1.ID, s3.ID, "different system names must produce different IDs")
}

func TestNewStateMultiSystemOrderIndependent(t *testing.T) {
	api := NewObservation("api", map[string]any{"up": true})
	db := NewObservation("db", map[string]any{"rows": 3})

	s1 := MustNew(api, db)
	s2 := MustNew(db, api)

	assert.Equal(t, s1.ID, s2.ID, "observation order must not affect identity")
}

func TestNewStateRejectsDuplicateSystem(t *testing.T) {
	_, err := New(
		NewObservation("api", map[string]any{"a": 1}),
		NewObservation("api", map[string]any{"b": 2}),
	)
	assert.Error(t, err)
}

func TestNewStateRejectsEmptySystemName(t *testing.T) {
	_, err := New(NewObservation("", map[string]any{"a": 1}))
	assert.Error(t, err)
}

func TestObservationDataIsolated(t *testing.T) {
	data := map[string]any{"items": []any{"A1"}}
	obs := NewObservation("api", data)

	data["items"] = []any{"A1", "B2"}

	assert.Equal(t, []any{"A1"}, obs.Data["items"], "observation must deep-copy data")
}

func TestStateWithCheckpointIDCopyOnWrite(t *testing.T) {
	orig := MustNew(NewObservation("api", map[string]any{"a": 1}))

	upgraded := orig.WithCheckpointID("cp-1")

	assert.Empty(t, orig.CheckpointID, "original must stay untouched")
	assert.Equal(t, "cp-1", upgraded.CheckpointID)
	assert.Equal(t, orig.ID, upgraded.ID, "checkpoint does not change identity")
}

func TestStateWithHyperedgeCopyOnWrite(t *testing.T) {
	orig := MustNew(NewObservation("api", map[string]any{"a": 1}))

	labeled := orig.WithHyperedge(NewHyperedge(map[string]string{"auth": "admin"}))

	assert.Nil(t, orig.Hyperedge)
	require.NotNil(t, labeled.Hyperedge)
	assert.Equal(t, "admin", labeled.Hyperedge.Dimensions["auth"])
}

func TestTransitionIDTripleIdentity(t *testing.T) {
	t1 := NewTransition("s1", "add_item", "s2")
	t2 := NewTransition("s1", "add_item", "s2").WithDuration(42 * time.Millisecond)
	t3 := NewTransition("s1", "remove_item", "s2")

	assert.Equal(t, t1.ID, t2.ID, "timing metadata must not affect identity")
	assert.NotEqual(t, t1.ID, t3.ID, "different action must produce a different edge")
}
