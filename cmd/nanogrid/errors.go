package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/arthur-debert/nanogrid/nanogrid/chooser"
	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/gridfilter"
	"github.com/arthur-debert/nanogrid/nanogrid/persist"
)

// CLIError represents a user-friendly CLI error with context and suggestions
type CLIError struct {
	Operation   string   // The operation that failed (e.g., "filter", "read state")
	Cause       string   // The underlying cause
	Details     string   // Additional technical details
	Suggestions []string // Helpful suggestions for the user
	Underlying  error    // Original error for debugging
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var msg strings.Builder

	if e.Operation != "" {
		fmt.Fprintf(&msg, "Failed to %s", e.Operation)
	} else {
		msg.WriteString("Operation failed")
	}
	if e.Cause != "" {
		fmt.Fprintf(&msg, ": %s", e.Cause)
	}
	if e.Details != "" {
		fmt.Fprintf(&msg, " (%s)", e.Details)
	}
	if len(e.Suggestions) > 0 {
		msg.WriteString("\n\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			fmt.Fprintf(&msg, "\n  %d. %s", i+1, suggestion)
		}
	}
	return msg.String()
}

// Unwrap returns the underlying error for error chain compatibility
func (e *CLIError) Unwrap() error {
	return e.Underlying
}

// NewConfigError creates an error for configuration issues
func NewConfigError(operation, issue string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("configuration error: %s", issue),
		Suggestions: suggestions,
	}
}

// NewDataError creates an error for data files that cannot be loaded
func NewDataError(path string, underlying error) *CLIError {
	cause := "cannot load data file"
	if errors.Is(underlying, os.ErrNotExist) {
		cause = "data file not found"
	}
	return &CLIError{
		Operation:  "load " + path,
		Cause:      cause,
		Details:    underlying.Error(),
		Underlying: underlying,
		Suggestions: []string{
			"Data files are JSON or YAML documents with 'fields' and 'records'",
			CommonSuggestions.CheckData,
		},
	}
}

// NewFilterError creates an error for filters that cannot be applied
func NewFilterError(operation, query string, underlying error) *CLIError {
	suggestions := []string{
		"Use the form: <field> <op> <value>, e.g. \"status = open\"",
		"Operators: = != > >= < <= like, not like, begins, ends, includes, excludes",
		"Use --or to join conditions with OR, --json to pass a JSON filter",
	}
	if errors.Is(underlying, chooser.ErrNoFieldSpec) || errors.Is(underlying, gridfilter.ErrNoFieldSpec) {
		suggestions = append(suggestions, "Check field names match the data file's fields")
	}
	if errors.Is(underlying, filter.ErrInvalidOperator) {
		suggestions = append(suggestions, "Range fields take comparisons, tag fields take includes/excludes")
	}
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("invalid filter %q", query),
		Details:     underlying.Error(),
		Suggestions: suggestions,
		Underlying:  underlying,
	}
}

// NewStateError creates an error for persisted state backends
func NewStateError(operation string, underlying error) *CLIError {
	cause := "state operation failed"
	switch {
	case errors.Is(underlying, persist.ErrViewNotFound):
		cause = "view not found"
	case errors.Is(underlying, persist.ErrLockTimeout):
		cause = "state file is locked by another process"
	case errors.Is(underlying, persist.ErrUnknownProvider), errors.Is(underlying, persist.ErrServiceUnavailable):
		cause = "state backend misconfigured"
	case errors.Is(underlying, os.ErrPermission):
		cause = "insufficient permissions to access state file"
	}
	return &CLIError{
		Operation:   operation,
		Cause:       cause,
		Details:     underlying.Error(),
		Underlying:  underlying,
		Suggestions: []string{CommonSuggestions.CheckState, CommonSuggestions.CheckConfig},
	}
}

// WrapError wraps an existing error with CLI-friendly context
func WrapError(operation string, err error, suggestions ...string) error {
	if err == nil {
		return nil
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		if cliErr.Operation == "" {
			cliErr.Operation = operation
		}
		return cliErr
	}
	return &CLIError{
		Operation:   operation,
		Cause:       err.Error(),
		Suggestions: suggestions,
		Underlying:  err,
	}
}

// Common error messages and suggestions
var CommonSuggestions = struct {
	CheckData   string
	CheckState  string
	CheckConfig string
	RunHelp     string
}{
	CheckData:   "Verify --data points to a readable file",
	CheckState:  "Verify --state-backend and --state-file point to a usable store",
	CheckConfig: "Check your configuration file or NANOGRID_* environment variables",
	RunHelp:     "Run command with --help for usage information",
}
