package httpapi

import (
	"context"
	"fmt"

	"github.com/probemap/probemap/internal/state"
	"github.com/probemap/probemap/internal/world"
)

// Observer snapshots configured GET endpoints into one system
// observation. With snapshot endpoints configured it checkpoints through
// the target's admin API; without them the target is treated as
// stateless and checkpoint/rollback do nothing.
type Observer struct {
	system       string
	client       *Client
	endpoints    map[string]string
	snapshotPath string
	restorePath  string
}

// ObserverOption configures an Observer at construction.
type ObserverOption func(*Observer)

// WithSnapshotEndpoints enables real checkpointing. The snapshot
// endpoint receives POST {"name": ...} and must answer {"token": ...};
// the restore endpoint receives POST {"token": ...}.
func WithSnapshotEndpoints(snapshotPath, restorePath string) ObserverOption {
	return func(o *Observer) {
		o.snapshotPath = snapshotPath
		o.restorePath = restorePath
	}
}

// NewObserver creates an observer for one system. endpoints maps
// observation keys to the GET paths whose decoded bodies land under
// them.
func NewObserver(system string, client *Client, endpoints map[string]string, opts ...ObserverOption) *Observer {
	o := &Observer{system: system, client: client, endpoints: endpoints}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Name implements world.System.
func (o *Observer) Name() string { return o.system }

// Stateless reports whether the observer runs without snapshot
// endpoints.
func (o *Observer) Stateless() bool { return o.snapshotPath == "" }

// Observe fetches every configured endpoint. Any endpoint failing fails
// the whole observation; a half-observed state would dedup wrongly.
func (o *Observer) Observe(ctx context.Context) (state.Observation, error) {
	data := make(map[string]any, len(o.endpoints))
	for key, path := range o.endpoints {
		v, err := o.client.GetJSON(ctx, path)
		if err != nil {
			return state.Observation{}, fmt.Errorf("observe %s: %w", key, err)
		}
		data[key] = v
	}
	return state.NewObservation(o.system, data), nil
}

// statelessToken marks checkpoints of targets with nothing to save.
type statelessToken struct{}

type snapshotResponse struct {
	Token string `json:"token"`
}

// Checkpoint implements world.System.
func (o *Observer) Checkpoint(ctx context.Context, name string) (world.Token, error) {
	if o.Stateless() {
		return statelessToken{}, nil
	}

	var resp snapshotResponse
	if err := o.client.PostJSON(ctx, o.snapshotPath, map[string]string{"name": name}, &resp); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", o.system, err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("snapshot %s: endpoint returned no token", o.system)
	}
	return resp.Token, nil
}

// Rollback implements world.System.
func (o *Observer) Rollback(ctx context.Context, token world.Token) error {
	if o.Stateless() {
		if _, ok := token.(statelessToken); !ok {
			return fmt.Errorf("rollback %s: foreign token %v", o.system, token)
		}
		return nil
	}

	tok, ok := token.(string)
	if !ok {
		return fmt.Errorf("rollback %s: foreign token %v", o.system, token)
	}
	if err := o.client.PostJSON(ctx, o.restorePath, map[string]string{"token": tok}, nil); err != nil {
		return fmt.Errorf("restore %s: %w", o.system, err)
	}
	return nil
}
