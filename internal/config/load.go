package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a run configuration file. Unknown fields are
// rejected so typos surface instead of silently disabling features.
// Relative paths inside the file (dimension schema, archive) resolve
// against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	base := filepath.Dir(path)
	if cfg.DimensionSchema != "" && !filepath.IsAbs(cfg.DimensionSchema) {
		cfg.DimensionSchema = filepath.Join(base, cfg.DimensionSchema)
	}
	if cfg.Archive.Path != "" && !filepath.IsAbs(cfg.Archive.Path) {
		cfg.Archive.Path = filepath.Join(base, cfg.Archive.Path)
	}

	if cfg.DimensionSchema != "" {
		if _, err := os.Stat(cfg.DimensionSchema); os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s: dimension schema not found: %s", path, cfg.DimensionSchema)
		}
	}
	return cfg, nil
}

// Parse decodes and validates configuration bytes, applying defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Exploration.Strategy == "" {
		cfg.Exploration.Strategy = StrategyBFS
	}
	if cfg.Exploration.Workers == 0 {
		cfg.Exploration.Workers = 1
	}
	for i := range cfg.Actions {
		cfg.Actions[i].Method = strings.ToUpper(cfg.Actions[i].Method)
	}
}

var knownMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(cfg.Target.BaseURL) == "" {
		return fmt.Errorf("target.base_url is required")
	}
	if !slices.Contains(KnownStrategies, cfg.Exploration.Strategy) {
		return fmt.Errorf("exploration.strategy: unknown strategy %q (known: %s)",
			cfg.Exploration.Strategy, strings.Join(KnownStrategies, ", "))
	}
	if cfg.Exploration.Workers < 1 {
		return fmt.Errorf("exploration.workers must be at least 1")
	}
	for name, w := range cfg.Exploration.Weights {
		if w < 0 {
			return fmt.Errorf("exploration.weights[%s] must not be negative", name)
		}
	}

	if len(cfg.Observers) == 0 {
		return fmt.Errorf("observe list is required and must be non-empty")
	}
	seenSystems := make(map[string]bool)
	for i, obs := range cfg.Observers {
		if strings.TrimSpace(obs.System) == "" {
			return fmt.Errorf("observe[%d]: system is required", i)
		}
		if seenSystems[obs.System] {
			return fmt.Errorf("observe[%d]: duplicate system %q", i, obs.System)
		}
		seenSystems[obs.System] = true
		if len(obs.Endpoints) == 0 {
			return fmt.Errorf("observe[%d]: endpoints are required", i)
		}
		if obs.SnapshotPath != "" && obs.RestorePath == "" {
			return fmt.Errorf("observe[%d]: restore_path is required when snapshot_path is set", i)
		}
		if obs.RestorePath != "" && obs.SnapshotPath == "" {
			return fmt.Errorf("observe[%d]: snapshot_path is required when restore_path is set", i)
		}
	}

	if len(cfg.Actions) == 0 {
		return fmt.Errorf("actions list is required and must be non-empty")
	}
	names := make(map[string]bool, len(cfg.Actions))
	for i, act := range cfg.Actions {
		if strings.TrimSpace(act.Name) == "" {
			return fmt.Errorf("actions[%d]: name is required", i)
		}
		if names[act.Name] {
			return fmt.Errorf("actions[%d]: duplicate action name %q", i, act.Name)
		}
		names[act.Name] = true

		if !slices.Contains(knownMethods, act.Method) {
			return fmt.Errorf("actions[%d]: unknown method %q", i, act.Method)
		}
		if strings.TrimSpace(act.Path) == "" {
			return fmt.Errorf("actions[%d]: path is required", i)
		}
		if act.ExpectFailure && len(act.ExpectStatus) > 0 {
			return fmt.Errorf("actions[%d]: expect_failure and expect_status are mutually exclusive", i)
		}
		for key, path := range act.Capture {
			if strings.TrimSpace(path) == "" {
				return fmt.Errorf("actions[%d]: capture %q needs a response path", i, key)
			}
		}
	}

	// After clauses must reference declared actions, or eligibility would
	// gate on something that can never execute.
	for i, act := range cfg.Actions {
		for _, dep := range act.After {
			if !names[dep] {
				return fmt.Errorf("actions[%d]: after references unknown action %q", i, dep)
			}
		}
	}

	for name := range cfg.Exploration.Weights {
		if !names[name] {
			return fmt.Errorf("exploration.weights: unknown action %q", name)
		}
	}
	return nil
}
