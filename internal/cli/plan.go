package cli

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/mend/internal/runner"
	"github.com/roach88/mend/internal/snapshot"
	"github.com/roach88/mend/internal/store"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Database string
	RuleSet  string
	Builtin  bool
	Digest   bool

	// RunIDs allows overriding the run ID generator (for testing).
	RunIDs runner.RunIDGenerator
}

// PlanOutput is the JSON payload of a plan run.
type PlanOutput struct {
	*runner.RunResult
	Digests map[string]string `json:"digests,omitempty"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan [rules-dir]",
		Short: "Dry-run a ruleset and report would-affect counts",
		Long: `Report how many rows each rule of a ruleset would affect, without
writing anything.

Counts are taken against the current, unrepaired state: a rule earlier
in the set may change what later rules match, so apply can report
different numbers for dependent rules.

With --digest, also prints a content digest per affected table; comparing
digests before and after an apply (or across repeated applies) verifies
atomicity and idempotence.

Example:
  mend plan --db ./app.db --builtin
  mend plan --db ./app.db --digest ./rules`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesDir := ""
			if len(args) > 0 {
				rulesDir = args[0]
			}
			return runPlan(opts, rulesDir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.RuleSet, "ruleset", "", "ruleset name when the rules dir defines several")
	cmd.Flags().BoolVar(&opts.Builtin, "builtin", false, "use the builtin tags cleanup ruleset")
	cmd.Flags().BoolVar(&opts.Digest, "digest", false, "print per-table content digests")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPlan(opts *PlanOptions, rulesDir string, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	if rulesDir == "" && !opts.Builtin {
		return NewExitError(ExitCommandError, "either a rules directory or --builtin is required")
	}

	set, err := selectRuleSet(rulesDir, opts.RuleSet, opts.Builtin)
	if err != nil {
		return err
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

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

	result, err := r.Plan(cmd.Context(), set)
	if err != nil {
		reportRunError(formatter, err)
		return WrapExitError(ExitFailure, "plan failed", err)
	}

	output := &PlanOutput{RunResult: result}
	if opts.Digest {
		// Digests are read inside one transaction so they describe a
		// single consistent view of the database.
		err := st.WithTx(cmd.Context(), func(tx *sql.Tx) error {
			digests, err := snapshot.DatabaseDigest(cmd.Context(), tx, set.Tables())
			if err != nil {
				return err
			}
			output.Digests = digests
			return nil
		})
		if err != nil {
			return WrapExitError(ExitFailure, "failed to digest tables", err)
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(output); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode output", err)
		}
		return nil
	}

	printResult(cmd, result)
	if opts.Digest {
		fmt.Fprintln(cmd.OutOrStdout(), "Table digests:")
		for _, table := range set.Tables() {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-22s %s\n", table, output.Digests[table])
		}
	}
	return nil
}
