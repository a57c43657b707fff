package types

import "errors"

// Sentinel errors for the orchestration core. Callers match with errors.Is;
// wrapped forms carry the specific resource, run, or cause.
var (
	// ErrBusyResource is returned when a run is requested for a resource
	// whose lock is already held by another run.
	ErrBusyResource = errors.New("resource busy")

	// ErrActionTimeout is returned when a single action attempt exceeds the
	// configured per-action timeout.
	ErrActionTimeout = errors.New("action timed out")

	// ErrRetriesExhausted is returned when an action has failed on every
	// permitted attempt.
	ErrRetriesExhausted = errors.New("action failed after retries")

	// ErrAborted is returned when the run's cancellation signal was observed
	// before or during an action attempt. It is a distinct terminal
	// condition, not a retry failure.
	ErrAborted = errors.New("aborted")

	// ErrNoPendingApproval is returned by approve/reject when the run has no
	// live pending approval (already resolved, timed out, or never asked).
	ErrNoPendingApproval = errors.New("no pending approval")

	// ErrRunNotFound is returned when a run id does not match any active run.
	ErrRunNotFound = errors.New("run not found")

	// ErrSinkUnavailable is returned by transport adapters when event
	// delivery fails because the sink is gone. Adapters swallow and log it;
	// it never propagates into the orchestrator or executor call stack.
	ErrSinkUnavailable = errors.New("event sink unavailable")
)
