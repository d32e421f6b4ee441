// Package config defines the YAML run configuration: the target under
// test, the exploration settings, declarative HTTP actions, and where to
// archive finished runs. The package is pure data; the CLI assembles the
// live world from it.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Strategy name constants accepted by exploration.strategy.
const (
	StrategyBFS      = "bfs"
	StrategyDFS      = "dfs"
	StrategyRandom   = "random"
	StrategyWeighted = "weighted"
	StrategyCoverage = "coverage"
	StrategyNovelty  = "novelty"
)

// KnownStrategies lists every accepted strategy name.
var KnownStrategies = []string{
	StrategyBFS, StrategyDFS, StrategyRandom,
	StrategyWeighted, StrategyCoverage, StrategyNovelty,
}

// Config is one run configuration file.
type Config struct {
	// Name identifies the run setup; it feeds logs and the archive.
	Name string `yaml:"name"`

	// Description explains what this configuration explores.
	Description string `yaml:"description,omitempty"`

	// Target describes the HTTP API under test.
	Target Target `yaml:"target"`

	// Exploration controls the driving loop.
	Exploration Exploration `yaml:"exploration,omitempty"`

	// DimensionSchema is the path to a CUE dimension schema. Relative
	// paths resolve against the config file location. Empty means no
	// dimension labeling.
	DimensionSchema string `yaml:"dimensions,omitempty"`

	// IdentityEnvKeys lists env keys that participate in state identity.
	IdentityEnvKeys []string `yaml:"identity_env_keys,omitempty"`

	// Observers describe the HTTP observation endpoints, one entry per
	// observed system.
	Observers []Observer `yaml:"observe"`

	// Actions are the declarative HTTP actions the agent may execute.
	Actions []Action `yaml:"actions"`

	// Archive configures run persistence. An empty path disables it.
	Archive Archive `yaml:"archive,omitempty"`
}

// Target describes the API under test.
type Target struct {
	// BaseURL prefixes every request and observation path.
	BaseURL string `yaml:"base_url"`

	// BearerTokenEnv optionally names an OS environment variable whose
	// value is sent as a bearer token on every request.
	BearerTokenEnv string `yaml:"bearer_token_env,omitempty"`

	// Timeout bounds each HTTP request. Zero means no per-request bound
	// beyond the run context.
	Timeout Duration `yaml:"timeout,omitempty"`
}

// Exploration controls the driving loop.
type Exploration struct {
	// Strategy picks the frontier order. Defaults to bfs.
	Strategy string `yaml:"strategy,omitempty"`

	// Seed makes the random strategy deterministic. Zero seeds from
	// entropy.
	Seed int64 `yaml:"seed,omitempty"`

	// MaxSteps bounds the run. Zero uses the engine default; negative
	// disables the budget.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Workers is the number of concurrent exploration workers.
	// Zero means one.
	Workers int `yaml:"workers,omitempty"`

	// StopOnViolation ends the run at the first invariant violation.
	StopOnViolation bool `yaml:"stop_on_violation,omitempty"`

	// Weights assigns per-action weights for the weighted strategy.
	// Unlisted actions default to weight 1.
	Weights map[string]float64 `yaml:"weights,omitempty"`
}

// Observer describes one observed system backed by HTTP GET endpoints.
type Observer struct {
	// System is the system name observations appear under.
	System string `yaml:"system"`

	// Endpoints maps observation keys to GET paths; each response's
	// decoded JSON body lands under its key in the observation data.
	Endpoints map[string]string `yaml:"endpoints"`

	// SnapshotPath optionally names an admin endpoint that saves the
	// target's state and returns a token; enables real checkpointing.
	SnapshotPath string `yaml:"snapshot_path,omitempty"`

	// RestorePath optionally names the admin endpoint that restores a
	// snapshot token. Required when SnapshotPath is set.
	RestorePath string `yaml:"restore_path,omitempty"`
}

// Action is one declarative HTTP action.
type Action struct {
	// Name uniquely identifies the action.
	Name string `yaml:"name"`

	// Method is the HTTP method.
	Method string `yaml:"method"`

	// Path is the request path; ${key} segments interpolate env values.
	Path string `yaml:"path"`

	// Body is the optional request body template, interpolated the same
	// way.
	Body string `yaml:"body,omitempty"`

	// Headers are extra request headers, values interpolated.
	Headers map[string]string `yaml:"headers,omitempty"`

	// ExpectStatus lists acceptable response statuses; empty accepts any.
	ExpectStatus []int `yaml:"expect_status,omitempty"`

	// ExpectFailure marks a negative test: the action must be rejected.
	// Mutually exclusive with ExpectStatus.
	ExpectFailure bool `yaml:"expect_failure,omitempty"`

	// RequiresEnv gates eligibility on env keys being present.
	RequiresEnv []string `yaml:"requires_env,omitempty"`

	// After gates eligibility on other actions having executed earlier
	// on the current path.
	After []string `yaml:"after,omitempty"`

	// Capture stores response fields into the env: env key to dot path
	// into the decoded JSON response body.
	Capture map[string]string `yaml:"capture,omitempty"`
}

// Archive configures run persistence.
type Archive struct {
	// Path is the SQLite database file. Empty disables archiving.
	Path string `yaml:"path,omitempty"`
}

// Duration wraps time.Duration so YAML can say "5s" or "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }
