// Package testutil provides deterministic checkpoint id generators for
// tests that assert on exact ids or need stable golden output.
package testutil

import (
	"fmt"
	"sync"
)

// FixedGenerator returns predetermined ids in order.
//
// This enables deterministic test execution and golden comparison: the
// same scenario with the same FixedGenerator produces byte-identical
// checkpoint ids.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := testutil.NewFixedGenerator("cp-1", "cp-2")
//	gen.Generate() // "cp-1"
//	gen.Generate() // "cp-2"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics when all ids have been consumed: a test drawing more ids than
// it declared is a test bug, and failing fast beats silent reuse.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("testutil: all %d fixed ids exhausted", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// CountingGenerator returns "prefix-1", "prefix-2", ... without bound.
// Useful when a test does not care about exact ids, only stability.
//
// Thread-safety: safe for concurrent use via internal mutex.
type CountingGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewCountingGenerator creates a counting generator. An empty prefix
// defaults to "cp".
func NewCountingGenerator(prefix string) *CountingGenerator {
	if prefix == "" {
		prefix = "cp"
	}
	return &CountingGenerator{prefix: prefix}
}

// Generate returns the next numbered id.
func (g *CountingGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
