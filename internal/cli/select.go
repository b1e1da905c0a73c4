package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/mend/internal/rules"
)

// selectRuleSet resolves which ruleset a plan or apply run uses.
//
// With builtin set, the builtin tags cleanup set is returned and rulesDir is
// ignored. Otherwise rulesets are loaded from rulesDir; name picks one of
// them, and may be omitted only when the directory defines exactly one set.
// The chosen set is schema-validated before being handed to the runner.
func selectRuleSet(rulesDir, name string, builtin bool) (rules.RuleSet, error) {
	var set rules.RuleSet

	if builtin {
		set = rules.Builtin()
	} else {
		loadResult, loadErrors := LoadRuleSets(rulesDir, LoadModeFailFast)
		if len(loadErrors) > 0 {
			return rules.RuleSet{}, WrapExitError(ExitCommandError, "failed to load rulesets", loadErrors[0])
		}

		found := false
		switch {
		case name != "":
			for _, s := range loadResult.Sets {
				if s.Name == name {
					set = s
					found = true
					break
				}
			}
			if !found {
				return rules.RuleSet{}, NewExitError(ExitCommandError,
					fmt.Sprintf("ruleset %q not found, available: %s", name, setNames(loadResult.Sets)))
			}
		case len(loadResult.Sets) == 1:
			set = loadResult.Sets[0]
		default:
			return rules.RuleSet{}, NewExitError(ExitCommandError,
				fmt.Sprintf("multiple rulesets defined, pick one with --ruleset: %s", setNames(loadResult.Sets)))
		}
	}

	if errs := rules.Validate(set); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return rules.RuleSet{}, NewExitError(ExitFailure,
			fmt.Sprintf("ruleset %s is invalid:\n  %s", set.Name, strings.Join(msgs, "\n  ")))
	}

	return set, nil
}

func setNames(sets []rules.RuleSet) string {
	names := make([]string, 0, len(sets))
	for _, s := range sets {
		names = append(names, s.Name)
	}
	return strings.Join(names, ", ")
}
