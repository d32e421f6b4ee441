// Package world coordinates the rollback-capable systems under test plus
// the shared mutable env, guaranteeing that checkpoint, observe, and
// rollback act as a single logical unit across all of them.
package world

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/env"
	"github.com/probemap/probemap/internal/state"
)

// EnvSystem is the synthetic system name under which env keys configured
// via WithIdentityKeys appear in observations. Real systems cannot
// register under this name.
const EnvSystem = "env"

// Token is an opaque per-system checkpoint handle. Only the system that
// issued it can interpret it; the world stores and returns it verbatim.
type Token any

// System is the rollbackable-system contract implemented by adapters
// around the things under test: HTTP-backed observers, SQL savepoint
// adapters, directory snapshots, in-memory resource trackers.
//
// Rollback must fail for tokens the system did not issue.
type System interface {
	// Name identifies the system; unique within one world.
	Name() string

	// Observe returns a point-in-time snapshot of the system.
	Observe(ctx context.Context) (state.Observation, error)

	// Checkpoint saves the current position and returns an opaque token
	// that Rollback accepts later.
	Checkpoint(ctx context.Context, name string) (Token, error)

	// Rollback restores the position saved under token.
	Rollback(ctx context.Context, token Token) error
}

// Checkpoint bundles one atomic cross-system save point: one token per
// registered system plus a snapshot of the shared env.
type Checkpoint struct {
	ID          string
	Name        string
	Tokens      map[string]Token
	EnvSnapshot map[string]any
	CreatedAt   time.Time
}

// IDGenerator produces checkpoint ids.
// Implemented by UUIDv7Generator (production) and test fixtures.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 checkpoint ids, so ids
// order by creation time in logs and archives.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// World owns the registered systems and the shared env for one
// exploration run.
//
// Thread-safety model: every operation takes the world lock, so each
// checkpoint/observe/rollback/act is atomic on its own and at most one
// action is in flight at any time. Multi-operation sequences (rollback,
// then act, then observe) are NOT atomic as a group; callers running
// concurrent workers serialize whole steps at their own level.
type World struct {
	mu sync.Mutex

	systems []System
	byName  map[string]System
	env     *env.Env

	identityKeys []string
	checkpoints  map[string]Checkpoint
	idGen        IDGenerator
	logger       *slog.Logger
}

// Option configures a World at construction.
type Option func(*World)

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(w *World) {
		w.logger = logger
	}
}

// WithIdentityKeys names env keys that participate in state identity.
// When set, Observe adds a synthetic observation under EnvSystem holding
// those keys' current values, so env changes produce distinct states.
// Keys currently unset in the env are simply absent from the snapshot.
func WithIdentityKeys(keys ...string) Option {
	return func(w *World) {
		w.identityKeys = append(w.identityKeys, keys...)
	}
}

// WithIDGenerator replaces the checkpoint id source. The default
// generates UUIDv7; tests install fixed sequences.
func WithIDGenerator(gen IDGenerator) Option {
	return func(w *World) {
		w.idGen = gen
	}
}

// WithEnv seeds the shared env instead of starting empty.
func WithEnv(e *env.Env) Option {
	return func(w *World) {
		w.env = e
	}
}

// New creates a world with no systems registered.
func New(opts ...Option) *World {
	w := &World{
		byName:      make(map[string]System),
		env:         env.New(),
		checkpoints: make(map[string]Checkpoint),
		idGen:       UUIDv7Generator{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register adds a system. Registration order is checkpoint and rollback
// order. Fails on a duplicate or reserved name.
func (w *World) Register(sys System) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := sys.Name()
	if name == "" {
		return fmt.Errorf("register system: empty name")
	}
	if name == EnvSystem {
		return fmt.Errorf("register system: name %q is reserved for env observations", EnvSystem)
	}
	if _, dup := w.byName[name]; dup {
		return fmt.Errorf("register system: duplicate name %q", name)
	}
	w.systems = append(w.systems, sys)
	w.byName[name] = sys
	return nil
}

// Systems returns the registered system names in registration order.
func (w *World) Systems() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.systems))
	for _, sys := range w.systems {
		out = append(out, sys.Name())
	}
	return out
}

// Env returns the shared mutable env. Env has its own lock; reads and
// writes through it do not take the world lock.
func (w *World) Env() *env.Env {
	return w.env
}

// Checkpoint saves every registered system and then the env under one
// new checkpoint id. Systems checkpoint in registration order, env last,
// so env-derived observations stay consistent with system state.
//
// A failure after some systems have already checkpointed returns an
// AtomicityError naming the failed system and the completed ones; the
// partial bundle is discarded.
func (w *World) Checkpoint(ctx context.Context, name string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checkpointLocked(ctx, name)
}

func (w *World) checkpointLocked(ctx context.Context, name string) (string, error) {
	id := w.idGen.Generate()
	tokens := make(map[string]Token, len(w.systems))
	var completed []string

	for _, sys := range w.systems {
		token, err := sys.Checkpoint(ctx, name)
		if err != nil {
			return "", &AtomicityError{
				Op:           OpCheckpoint,
				CheckpointID: id,
				System:       sys.Name(),
				Completed:    completed,
				Err:          err,
			}
		}
		tokens[sys.Name()] = token
		completed = append(completed, sys.Name())
	}

	cp := Checkpoint{
		ID:          id,
		Name:        name,
		Tokens:      tokens,
		EnvSnapshot: w.env.Snapshot(),
		CreatedAt:   time.Now(),
	}
	w.checkpoints[id] = cp

	w.logger.Debug("checkpoint created",
		"checkpoint_id", id,
		"name", name,
		"systems", len(tokens))
	return id, nil
}

// Observe gathers one observation per registered system, in registration
// order, plus the synthetic env observation when identity keys are
// configured, and assembles a state. No checkpoint is attached.
func (w *World) Observe(ctx context.Context) (state.State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.observeLocked(ctx)
}

func (w *World) observeLocked(ctx context.Context) (state.State, error) {
	observations := make([]state.Observation, 0, len(w.systems)+1)
	for _, sys := range w.systems {
		obs, err := sys.Observe(ctx)
		if err != nil {
			return state.State{}, fmt.Errorf("observe %s: %w", sys.Name(), err)
		}
		observations = append(observations, obs)
	}

	if len(w.identityKeys) > 0 {
		observations = append(observations,
			state.NewObservation(EnvSystem, w.env.Pick(w.identityKeys...)))
	}

	st, err := state.New(observations...)
	if err != nil {
		return state.State{}, fmt.Errorf("assemble state: %w", err)
	}
	return st, nil
}

// ObserveAndCheckpoint checkpoints first, then observes, and returns the
// state carrying the new checkpoint id. Taking the checkpoint before
// observing guarantees the checkpoint really represents the returned
// state: nothing can mutate between the save and the snapshot because
// both happen under the world lock.
func (w *World) ObserveAndCheckpoint(ctx context.Context, name string) (state.State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id, err := w.checkpointLocked(ctx, name)
	if err != nil {
		return state.State{}, err
	}
	st, err := w.observeLocked(ctx)
	if err != nil {
		return state.State{}, err
	}
	return st.WithCheckpointID(id), nil
}

// Rollback restores every system from its token in the named bundle,
// in registration order, then restores the env snapshot. An id this
// world never issued fails with UnknownCheckpointError. A failure after
// some systems have already restored returns an AtomicityError: the
// world has diverged and the run cannot trust atomicity anymore.
func (w *World) Rollback(ctx context.Context, checkpointID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cp, ok := w.checkpoints[checkpointID]
	if !ok {
		return &UnknownCheckpointError{ID: checkpointID}
	}

	var completed []string
	for _, sys := range w.systems {
		token, ok := cp.Tokens[sys.Name()]
		if !ok {
			// System registered after the checkpoint was taken.
			return &AtomicityError{
				Op:           OpRollback,
				CheckpointID: checkpointID,
				System:       sys.Name(),
				Completed:    completed,
				Err:          fmt.Errorf("no token for system %q in checkpoint", sys.Name()),
			}
		}
		if err := sys.Rollback(ctx, token); err != nil {
			return &AtomicityError{
				Op:           OpRollback,
				CheckpointID: checkpointID,
				System:       sys.Name(),
				Completed:    completed,
				Err:          err,
			}
		}
		completed = append(completed, sys.Name())
	}

	w.env.Restore(cp.EnvSnapshot)

	w.logger.Debug("rolled back",
		"checkpoint_id", checkpointID,
		"name", cp.Name,
		"systems", len(completed))
	return nil
}

// LookupCheckpoint returns a stored checkpoint bundle.
func (w *World) LookupCheckpoint(id string) (Checkpoint, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp, ok := w.checkpoints[id]
	return cp, ok
}

// Act executes the action against this world's env. The world lock is
// held for the duration, so at most one action mutates the systems at a
// time.
func (w *World) Act(ctx context.Context, a *action.Action) (*action.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return a.Invoke(ctx, w.env)
}
