// Package wsfeed observes a WebSocket event feed. A background reader
// drains JSON events into a bounded in-memory window; the feed then
// behaves like any other rollbackable system: checkpoints copy the
// window and rollbacks restore it, so exploration can revisit branches
// in any order. The target's feed itself is append-only; rollback
// rewinds this adapter's view of it, nothing more.
package wsfeed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/probemap/probemap/internal/state"
	"github.com/probemap/probemap/internal/world"
)

const defaultCapacity = 256

// Feed watches one WebSocket endpoint.
type Feed struct {
	name     string
	conn     *websocket.Conn
	logger   *slog.Logger
	capacity int

	mu        sync.Mutex
	events    []map[string]any
	total     int
	saved     map[string]window
	nextToken int
	closed    bool
	readErr   error
	done      chan struct{}
}

// window is one checkpoint's copy of the buffered events.
type window struct {
	events []map[string]any
	total  int
}

// Option configures a Feed.
type Option func(*Feed)

// WithCapacity bounds the buffered window. Older events fall off the
// front; totals keep counting.
func WithCapacity(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.capacity = n
		}
	}
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Feed) {
		f.logger = logger
	}
}

// Dial connects to url and starts the background reader. Close releases
// the connection and stops the reader.
func Dial(ctx context.Context, name, url string, header http.Header, opts ...Option) (*Feed, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s feed at %s: %w", name, url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	f := &Feed{
		name:     name,
		conn:     conn,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		capacity: defaultCapacity,
		saved:    make(map[string]window),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}

	go f.read()
	return f, nil
}

// read drains events until the connection dies or Close fires.
func (f *Feed) read() {
	defer close(f.done)
	for {
		var event map[string]any
		if err := f.conn.ReadJSON(&event); err != nil {
			f.mu.Lock()
			if !f.closed {
				f.readErr = fmt.Errorf("%s feed reader: %w", f.name, err)
				f.logger.Warn("event feed reader stopped", "system", f.name, "error", err)
			}
			f.mu.Unlock()
			return
		}

		f.mu.Lock()
		f.events = append(f.events, event)
		f.total++
		if len(f.events) > f.capacity {
			f.events = f.events[len(f.events)-f.capacity:]
		}
		f.mu.Unlock()
		f.logger.Debug("event received", "system", f.name, "total", f.total)
	}
}

// Close stops the reader and releases the connection.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	err := f.conn.Close()
	<-f.done
	return err
}

// Name implements world.System.
func (f *Feed) Name() string { return f.name }

// Observe implements world.System: the running total plus the buffered
// window, in arrival order. A dead reader fails the observation rather
// than serving a stale view.
func (f *Feed) Observe(ctx context.Context) (state.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.usableLocked(); err != nil {
		return state.Observation{}, err
	}

	events := make([]any, len(f.events))
	for i, e := range f.events {
		events[i] = e
	}
	return state.NewObservation(f.name, map[string]any{
		"total":  f.total,
		"events": events,
	}), nil
}

// Checkpoint implements world.System by copying the buffered window.
func (f *Feed) Checkpoint(ctx context.Context, name string) (world.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.usableLocked(); err != nil {
		return nil, err
	}

	copied := make([]map[string]any, len(f.events))
	copy(copied, f.events)

	f.nextToken++
	token := fmt.Sprintf("%s-cp-%d", f.name, f.nextToken)
	f.saved[token] = window{events: copied, total: f.total}
	return token, nil
}

// Rollback implements world.System by restoring a checkpointed window.
// Events the feed delivered after the checkpoint disappear from this
// adapter's view; the next arrival appends after the restored window.
func (f *Feed) Rollback(ctx context.Context, token world.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, ok := token.(string)
	if !ok {
		return fmt.Errorf("rollback %s: foreign token %v", f.name, token)
	}
	saved, ok := f.saved[key]
	if !ok {
		return fmt.Errorf("rollback %s: unknown token %q", f.name, key)
	}

	f.events = make([]map[string]any, len(saved.events))
	copy(f.events, saved.events)
	f.total = saved.total
	return nil
}

// Count reports the total number of events the feed has delivered.
func (f *Feed) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

func (f *Feed) usableLocked() error {
	if f.closed {
		return fmt.Errorf("%s feed is closed", f.name)
	}
	if f.readErr != nil {
		return f.readErr
	}
	return nil
}
