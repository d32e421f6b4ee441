package env

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvSnapshotRestoreRoundTrip(t *testing.T) {
	e := New()
	e.Set("cart_id", "c-1")
	e.Set("items", []any{"A1", "B2"})

	snap := e.Snapshot()

	e.Set("cart_id", "c-2")
	e.Set("order_id", "o-9")
	e.Delete("items")

	e.Restore(snap)

	v, ok := e.GetString("cart_id")
	require.True(t, ok)
	assert.Equal(t, "c-1", v)
	assert.False(t, e.Has("order_id"), "keys set after the snapshot must be gone")
	assert.Equal(t, []string{"cart_id", "items"}, e.Keys())
}

func TestEnvSnapshotIsolation(t *testing.T) {
	e := New()
	e.Set("nested", map[string]any{"k": "v"})

	snap := e.Snapshot()
	snap["nested"].(map[string]any)["k"] = "mutated"

	got, _ := e.Get("nested")
	assert.Equal(t, "v", got.(map[string]any)["k"], "snapshot must be a deep copy")
}

func TestEnvHas(t *testing.T) {
	e := NewFrom(map[string]any{"a": 1, "b": 2})

	assert.True(t, e.Has("a"))
	assert.True(t, e.Has("a", "b"))
	assert.False(t, e.Has("a", "c"))
	assert.True(t, e.Has(), "empty key list is vacuously satisfied")
}

func TestEnvPick(t *testing.T) {
	e := NewFrom(map[string]any{"a": 1, "b": 2, "c": 3})

	picked := e.Pick("a", "c", "missing")
	assert.Equal(t, map[string]any{"a": 1, "c": 3}, picked)
}

func TestEnvConcurrentAccess(t *testing.T) {
	e := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				e.Set("key", n)
				e.Get("key")
				e.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	assert.True(t, e.Has("key"))
}
