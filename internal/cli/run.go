package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/agent"
	"github.com/probemap/probemap/internal/archive"
	"github.com/probemap/probemap/internal/config"
	"github.com/probemap/probemap/internal/dimension"
	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/hypergraph"
	"github.com/probemap/probemap/internal/report"
	"github.com/probemap/probemap/internal/state"
	"github.com/probemap/probemap/internal/strategy"
	"github.com/probemap/probemap/internal/system/httpapi"
	"github.com/probemap/probemap/internal/world"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Strategy        string
	MaxSteps        int
	Seed            int64
	StopOnViolation bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Explore a target API from a run configuration",
		Long: `Explore a stateful HTTP API from a declarative run configuration.

The config names the target, the observation endpoints, the action
model, and the exploration settings. The agent checkpoints the target,
fires actions, dedups the observed states by content, and renders the
discovered graph, coverage, and invariant violations as a report.
Flags override the exploration section of the config.

Exit codes:
  0 - Exploration finished without violations
  1 - Violations found, or the run aborted
  2 - Command error (bad config, unreachable target, archive failure)

Examples:
  probemap run ./probemap.yaml
  probemap run ./probemap.yaml --strategy novelty --max-steps 200
  probemap run ./probemap.yaml --format json > report.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExploration(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "override the configured strategy")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "override the configured step budget")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "override the configured random seed")
	cmd.Flags().BoolVar(&opts.StopOnViolation, "stop-on-violation", false, "stop at the first violation")

	return cmd
}

func runExploration(opts *RunOptions, configPath string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	applyOverrides(cfg, opts)

	w, g, err := assembleWorld(cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to assemble world", err)
	}

	agentOpts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithWorkers(cfg.Exploration.Workers),
	}
	if cfg.Exploration.MaxSteps != 0 {
		agentOpts = append(agentOpts, agent.WithMaxSteps(cfg.Exploration.MaxSteps))
	}
	if cfg.Exploration.StopOnViolation {
		agentOpts = append(agentOpts, agent.WithStopOnViolation())
	}

	var schema *dimension.Schema
	if cfg.DimensionSchema != "" {
		schema, err = dimension.LoadFile(cfg.DimensionSchema)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load dimension schema", err)
		}
		agentOpts = append(agentOpts,
			agent.WithLabeler(schema.Labeler()),
			agent.WithKnownDimensions(schema.KnownValues()),
			agent.WithInvariants(constraintInvariants(schema.Constraints)...))
	}

	hg := hypergraph.New()
	strat, err := buildStrategy(cfg.Exploration, hg, schema)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build strategy", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping exploration", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	logger.Info("exploration configured",
		"config", cfg.Name,
		"target", cfg.Target.BaseURL,
		"strategy", cfg.Exploration.Strategy,
		"actions", len(cfg.Actions))

	ag := agent.New(w, g, hg, strat, agentOpts...)
	res, err := ag.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "exploration aborted", err)
	}

	// A cancelled run still renders and archives: the partial graph is
	// what the user interrupted the run to look at.
	summary := report.Build(res)
	if err := renderSummary(cmd.OutOrStdout(), opts.Format, summary); err != nil {
		return WrapExitError(ExitCommandError, "failed to render report", err)
	}

	if cfg.Archive.Path != "" {
		// The run context may already be cancelled; archiving still has
		// to finish.
		if err := archiveRun(context.Background(), cfg.Archive.Path, res, logger); err != nil {
			return WrapExitError(ExitCommandError, "failed to archive run", err)
		}
	}

	if !res.Success() {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d invariant violation(s) found", len(summary.Violations)))
	}
	return nil
}

// applyOverrides folds the run command's flags into the loaded config.
func applyOverrides(cfg *config.Config, opts *RunOptions) {
	if opts.Strategy != "" {
		cfg.Exploration.Strategy = opts.Strategy
	}
	if opts.MaxSteps != 0 {
		cfg.Exploration.MaxSteps = opts.MaxSteps
	}
	if opts.Seed != 0 {
		cfg.Exploration.Seed = opts.Seed
	}
	if opts.StopOnViolation {
		cfg.Exploration.StopOnViolation = true
	}
}

// assembleWorld builds the HTTP client, registers one observer per
// configured system, and compiles the declarative actions into the
// exploration graph.
func assembleWorld(cfg *config.Config, logger *slog.Logger) (*world.World, *graph.Graph, error) {
	clientOpts := []httpapi.ClientOption{httpapi.WithLogger(logger)}
	if cfg.Target.Timeout > 0 {
		clientOpts = append(clientOpts, httpapi.WithTimeout(cfg.Target.Timeout.Std()))
	}
	if cfg.Target.BearerTokenEnv != "" {
		token := os.Getenv(cfg.Target.BearerTokenEnv)
		if token == "" {
			return nil, nil, fmt.Errorf("bearer token env %s is not set", cfg.Target.BearerTokenEnv)
		}
		clientOpts = append(clientOpts, httpapi.WithBearerToken(token))
	}
	client := httpapi.NewClient(cfg.Target.BaseURL, clientOpts...)

	w := world.New(
		world.WithLogger(logger),
		world.WithIdentityKeys(cfg.IdentityEnvKeys...))
	for _, o := range cfg.Observers {
		var obsOpts []httpapi.ObserverOption
		if o.SnapshotPath != "" {
			obsOpts = append(obsOpts, httpapi.WithSnapshotEndpoints(o.SnapshotPath, o.RestorePath))
		}
		if err := w.Register(httpapi.NewObserver(o.System, client, o.Endpoints, obsOpts...)); err != nil {
			return nil, nil, err
		}
	}

	actions := make([]*action.Action, 0, len(cfg.Actions))
	for _, a := range cfg.Actions {
		actions = append(actions, client.BuildAction(httpapi.ActionSpec{
			Name:          a.Name,
			Method:        a.Method,
			Path:          a.Path,
			Body:          a.Body,
			Headers:       a.Headers,
			ExpectStatus:  a.ExpectStatus,
			ExpectFailure: a.ExpectFailure,
			RequiresEnv:   a.RequiresEnv,
			After:         a.After,
			Capture:       a.Capture,
		}))
	}
	return w, graph.New(actions...), nil
}

// buildStrategy maps the configured strategy name to a constructor. The
// seed feeds the random and weighted strategies; zero seeds from entropy.
func buildStrategy(exp config.Exploration, hg *hypergraph.Hypergraph, schema *dimension.Schema) (strategy.Strategy, error) {
	var rng *rand.Rand
	if exp.Seed != 0 {
		rng = rand.New(rand.NewSource(exp.Seed))
	}

	switch exp.Strategy {
	case config.StrategyBFS:
		return strategy.NewBFS(), nil
	case config.StrategyDFS:
		return strategy.NewDFS(), nil
	case config.StrategyRandom:
		return strategy.NewRandom(rng), nil
	case config.StrategyWeighted:
		return strategy.NewWeighted(exp.Weights, rng), nil
	case config.StrategyCoverage:
		return strategy.NewCoverageGuided(), nil
	case config.StrategyNovelty:
		var constraints []hypergraph.Constraint
		if schema != nil {
			constraints = schema.Constraints
		}
		return strategy.NewDimensionNovelty(hg, constraints), nil
	}
	return nil, fmt.Errorf("unknown strategy %q (known: %s)",
		exp.Strategy, strings.Join(config.KnownStrategies, ", "))
}

// constraintInvariants turns the schema's invalid-combination rules into
// invariants, so a state labeled with a forbidden combination is recorded
// as a violation with a reproduction path.
func constraintInvariants(constraints []hypergraph.Constraint) []agent.Invariant {
	invs := make([]agent.Invariant, 0, len(constraints))
	for _, c := range constraints {
		invs = append(invs, agent.NewInvariant("constraint:"+c.Name, agent.SeverityError,
			func(st state.State) bool {
				if st.Hyperedge == nil {
					return true
				}
				return !c.Violates(*st.Hyperedge)
			}))
	}
	return invs
}

// archiveRun persists a finished run.
func archiveRun(ctx context.Context, path string, res *agent.ExplorationResult, logger *slog.Logger) error {
	arch, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := arch.Close(); closeErr != nil {
			logger.Error("error closing archive", "error", closeErr)
		}
	}()

	stats, err := arch.ArchiveRun(ctx, res)
	if err != nil {
		return err
	}
	logger.Info("run archived",
		"path", path,
		"states", stats.States,
		"transitions", stats.Transitions,
		"violations", stats.Violations)
	return nil
}
