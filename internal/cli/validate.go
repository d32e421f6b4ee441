package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/probemap/probemap/internal/config"
	"github.com/probemap/probemap/internal/dimension"
	"github.com/probemap/probemap/internal/world"
)

// ValidationIssue is one problem found in a run configuration.
type ValidationIssue struct {
	Source  string `json:"source"` // "config", "dimensions", "dimension.<name>"
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a run configuration without exploring",
		Long: `Validate a run configuration and its dimension schema without
touching the target.

Checks the YAML against the config schema, compiles the CUE dimension
schema when one is referenced, and cross-checks the two: every
dimension must read from a system an observer provides.

Exit codes:
  0 - Configuration valid
  1 - Validation errors found
  2 - Command error (config file not found)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, configPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return outputValidateError(formatter, ErrCodeNotFound,
			fmt.Sprintf("config file not found: %s", configPath))
	}

	formatter.VerboseLog("Validating config %s", configPath)

	var issues []ValidationIssue
	cfg, err := config.Load(configPath)
	if err != nil {
		issues = append(issues, ValidationIssue{Source: "config", Message: err.Error()})
	}

	if cfg != nil && cfg.DimensionSchema != "" {
		formatter.VerboseLog("Compiling dimension schema %s", cfg.DimensionSchema)
		schema, err := dimension.LoadFile(cfg.DimensionSchema)
		if err != nil {
			issues = append(issues, ValidationIssue{Source: "dimensions", Message: err.Error()})
		} else {
			issues = append(issues, crossCheck(cfg, schema)...)
		}
	}

	if len(issues) > 0 {
		return outputValidationIssues(formatter, issues)
	}

	formatter.VerboseLog("Found %d action(s), %d observer(s)", len(cfg.Actions), len(cfg.Observers))
	return outputValidateSuccess(formatter)
}

// crossCheck verifies the dimension schema against the config: a
// dimension reading a system nobody observes can never resolve, and an
// env-backed dimension needs identity keys to read from.
func crossCheck(cfg *config.Config, schema *dimension.Schema) []ValidationIssue {
	observed := make(map[string]bool, len(cfg.Observers))
	for _, o := range cfg.Observers {
		observed[o.System] = true
	}

	var issues []ValidationIssue
	for _, d := range schema.Dimensions {
		if d.System == world.EnvSystem {
			if len(cfg.IdentityEnvKeys) == 0 {
				issues = append(issues, ValidationIssue{
					Source:  "dimension." + d.Name,
					Message: "reads env observations, but identity_env_keys is empty",
				})
			}
			continue
		}
		if !observed[d.System] {
			issues = append(issues, ValidationIssue{
				Source:  "dimension." + d.Name,
				Message: fmt.Sprintf("reads system %q, which no observer provides", d.System),
			})
		}
	}
	return issues
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter) error {
	if formatter.Format == "json" {
		result := ValidationResult{Valid: true}
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, "✓ Configuration valid")
	return nil
}

// outputValidateError outputs a command-level error (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationIssues outputs validation errors (exit code 1).
func outputValidationIssues(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: issues,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeConfig,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Source, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
