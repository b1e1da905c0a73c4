package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/mend/internal/runner"
	"github.com/roach88/mend/internal/store"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database string
	RuleSet  string
	Builtin  bool

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs runner.RunIDGenerator
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply [rules-dir]",
		Short: "Apply a ruleset to a database",
		Long: `Apply a correction ruleset to a SQLite database.

All rules run in declaration order inside a single transaction. If any
rule fails, the whole transaction is rolled back and the database is
left untouched. Re-running against repaired data affects zero rows.

Example:
  mend apply --db ./app.db ./rules
  mend apply --db ./app.db --builtin
  mend apply --db ./app.db --ruleset tags_cleanup ./rules`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesDir := ""
			if len(args) > 0 {
				rulesDir = args[0]
			}
			return runApply(opts, rulesDir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.RuleSet, "ruleset", "", "ruleset name when the rules dir defines several")
	cmd.Flags().BoolVar(&opts.Builtin, "builtin", false, "use the builtin tags cleanup ruleset")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runApply(opts *ApplyOptions, rulesDir string, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	if rulesDir == "" && !opts.Builtin {
		return NewExitError(ExitCommandError, "either a rules directory or --builtin is required")
	}

	set, err := selectRuleSet(rulesDir, opts.RuleSet, opts.Builtin)
	if err != nil {
		return err
	}
	slog.Info("ruleset selected", "ruleset", set.Name, "rules", len(set.Rules))

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	var runnerOpts []runner.Option
	if opts.RunIDs != nil {
		runnerOpts = append(runnerOpts, runner.WithRunIDGenerator(opts.RunIDs))
	}
	r := runner.New(st, runnerOpts...)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, err := r.Run(cmd.Context(), set)
	if err != nil {
		reportRunError(formatter, err)
		return WrapExitError(ExitFailure, "repair run failed", err)
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode output", err)
		}
		return nil
	}

	printResult(cmd, result)
	return nil
}

// reportRunError prints a run failure with its rollback confirmation.
func reportRunError(formatter *OutputFormatter, err error) {
	var runErr *runner.RunError
	if errors.As(err, &runErr) {
		details := map[string]any{"rolled_back": true}
		if runErr.Code == runner.ErrCodeRuleExecution {
			details["rule"] = runErr.RuleIndex
			details["description"] = runErr.RuleDescription
		}
		_ = formatter.Error(string(runErr.Code), runErr.Error(), details)
		if formatter.Format != "json" {
			fmt.Fprintln(formatter.Writer, "Transaction rolled back. No changes were applied.")
		}
		return
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
}

// printResult renders a run report as text.
func printResult(cmd *cobra.Command, result *runner.RunResult) {
	out := cmd.OutOrStdout()

	verb := "applied"
	if result.DryRun {
		verb = "planned"
	}
	fmt.Fprintf(out, "Ruleset %s %s (run %s)\n", result.RuleSet, verb, result.RunID)
	for _, rr := range result.Results {
		fmt.Fprintf(out, "  [%2d] %-11s %s: %d row(s)\n", rr.Index, rr.Kind, rr.Description, rr.RowsAffected)
	}
	fmt.Fprintf(out, "Total: %d row(s) affected\n", result.TotalAffected)
}

// configureLogging sets the process-wide slog default.
func configureLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
