package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/mend/internal/rules"
)

// ValidationResult holds validation results for one ruleset.
type ValidationResult struct {
	RuleSet string                  `json:"ruleset"`
	Rules   int                     `json:"rules"`
	Valid   bool                    `json:"valid"`
	Errors  []rules.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules-dir>",
		Short: "Validate ruleset documents without touching a database",
		Long: `Validate CUE ruleset documents without opening any database.

Performs syntax checking, ruleset compilation, and schema validation
(identifier grammar, thresholds, key arity) for every ruleset found.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // diagnostics go to stderr to keep JSON clean
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadRuleSets(rulesDir, LoadModeCollectAll)
	if len(loadErrors) > 0 {
		for _, err := range loadErrors {
			_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d load error(s) in %s", len(loadErrors), rulesDir))
	}
	formatter.VerboseLog("loaded %d ruleset(s) from %d file(s)", len(loadResult.Sets), loadResult.FileCount)

	var results []ValidationResult
	invalid := 0
	for _, set := range loadResult.Sets {
		errs := rules.Validate(set)
		results = append(results, ValidationResult{
			RuleSet: set.Name,
			Rules:   len(set.Rules),
			Valid:   len(errs) == 0,
			Errors:  errs,
		})
		if len(errs) > 0 {
			invalid++
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(results); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode output", err)
		}
	} else {
		for _, res := range results {
			if res.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "ruleset %s: OK (%d rules)\n", res.RuleSet, res.Rules)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ruleset %s: INVALID\n", res.RuleSet)
			for _, e := range res.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", e.Error())
			}
		}
	}

	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d ruleset(s) invalid", invalid, len(results)))
	}
	return nil
}

// loadErrorCode extracts the code from a LoadError, defaulting to E001.
func loadErrorCode(err error) string {
	if le, ok := err.(*LoadError); ok {
		return le.Code
	}
	return ErrCodeGeneric
}
