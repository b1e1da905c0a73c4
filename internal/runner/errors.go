package runner

import (
	"errors"
	"fmt"
)

// RunError represents a failure detected during a repair run.
//
// Every failure aborts the whole run: the transaction is rolled back and no
// partial correction persists. There is no automatic retry; repair runs are
// re-invoked manually once the underlying cause is fixed.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// RuleIndex identifies the failing rule within the set (RULE_EXECUTION
	// only, -1 otherwise).
	RuleIndex int

	// RuleDescription is the failing rule's description (RULE_EXECUTION only).
	RuleDescription string

	// Err is the underlying driver error.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeConnection indicates the store could not be reached or opened.
	ErrCodeConnection RunErrorCode = "CONNECTION"

	// ErrCodeRuleExecution indicates a single rule's statement failed.
	ErrCodeRuleExecution RunErrorCode = "RULE_EXECUTION"

	// ErrCodeCommit indicates the transaction could not be finalized.
	ErrCodeCommit RunErrorCode = "COMMIT"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Code == ErrCodeRuleExecution {
		return fmt.Sprintf("%s: rule %d (%s): %s: %v",
			e.Code, e.RuleIndex, e.RuleDescription, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying driver error.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsConnectionError returns true if the error is a store connection error.
// Uses errors.As to handle wrapped errors.
func IsConnectionError(err error) bool {
	var re *RunError
	return errors.As(err, &re) && re.Code == ErrCodeConnection
}

// IsRuleExecutionError returns true if the error is a rule execution error.
func IsRuleExecutionError(err error) bool {
	var re *RunError
	return errors.As(err, &re) && re.Code == ErrCodeRuleExecution
}

// IsCommitError returns true if the error is a commit error.
func IsCommitError(err error) bool {
	var re *RunError
	return errors.As(err, &re) && re.Code == ErrCodeCommit
}
