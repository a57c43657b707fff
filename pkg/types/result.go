package types

import "time"

// ExecutionResult is the outcome of one executor invocation for a single
// action. Retries counts the additional attempts consumed after the first:
// zero on first-try success, equal to the configured maximum on exhaustion.
type ExecutionResult struct {
	Success  bool
	Data     map[string]any
	Err      error
	Duration time.Duration
	Retries  int
}

// ExtractResult is the structured outcome of an extract action. Fields that
// could not be read are reported in Errors rather than raised; Success is
// false only when no requested field could be read at all.
type ExtractResult struct {
	Success bool
	Data    map[string]string
	Errors  []string
}
