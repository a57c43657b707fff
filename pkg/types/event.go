package types

import "time"

// EventType defines the type of event emitted on the automation bus.
type EventType string

const (
	// EventTypeRunUpdate indicates a run's status or step index changed.
	EventTypeRunUpdate EventType = "run.update"

	// EventTypeRunFinished indicates a run entered a terminal state.
	EventTypeRunFinished EventType = "run.finished"

	// EventTypeRunStopped acknowledges an explicit stop request.
	EventTypeRunStopped EventType = "run.stopped"

	// EventTypeStepStarted indicates the executor began an action.
	EventTypeStepStarted EventType = "step.started"

	// EventTypeStepCompleted indicates an action finished successfully.
	EventTypeStepCompleted EventType = "step.completed"

	// EventTypeStepFailed indicates an action failed after all retries.
	EventTypeStepFailed EventType = "step.failed"

	// EventTypeStepRetrying indicates an attempt failed and a retry is scheduled.
	EventTypeStepRetrying EventType = "step.retrying"

	// EventTypeNeedsApproval indicates a run is suspended pending confirmation.
	EventTypeNeedsApproval EventType = "approval.requested"

	// EventTypeApprovalGranted indicates the pending approval was confirmed.
	EventTypeApprovalGranted EventType = "approval.granted"

	// EventTypeApprovalRejected indicates the pending approval was declined.
	EventTypeApprovalRejected EventType = "approval.rejected"

	// EventTypeApprovalTimeout indicates the pending approval expired unanswered.
	EventTypeApprovalTimeout EventType = "approval.timeout"
)

// Preview is the human-readable summary shown when asking for confirmation
// of a sensitive step: who the run is acting on and what it is about to do.
type Preview struct {
	Target  string
	Content string
}

// ApprovalRequest describes one pending confirmation. It exists only between
// gate entry and resolution; a run has at most one live request.
type ApprovalRequest struct {
	ApprovalID  string
	RunID       string
	ActionLabel string
	Preview     Preview
	Timeout     time.Duration
}

// AutomationEvent is the envelope flowing through the event bus. Events are
// immutable; the bus does not retain them beyond delivery.
type AutomationEvent struct {
	// Type indicates the kind of event.
	Type EventType

	// Timestamp is when the event was emitted.
	Timestamp time.Time

	// RunID correlates the event with a run.
	RunID string

	// StepIndex and StepName identify the step for step-level events.
	StepIndex int
	StepName  string

	// Status carries the run status for run-level events.
	Status RunStatus

	// Reason is the human-readable explanation for terminal run events.
	Reason string

	// Attempt is the attempt number for retry events (1-indexed).
	Attempt int

	// Error contains error information for failure and retry events.
	Error error

	// Duration is how long the action took, for step completion events.
	Duration time.Duration

	// Result holds the action's result payload for step completion events.
	Result map[string]any

	// Approval holds the request details for approval events.
	Approval *ApprovalRequest
}

// NewRunUpdateEvent creates a run update event.
func NewRunUpdateEvent(runID string, status RunStatus, stepIndex int) *AutomationEvent {
	return &AutomationEvent{
		Type:      EventTypeRunUpdate,
		Timestamp: time.Now(),
		RunID:     runID,
		Status:    status,
		StepIndex: stepIndex,
	}
}

// NewRunFinishedEvent creates a run finished event carrying the terminal
// status and its human-readable reason.
func NewRunFinishedEvent(runID string, status RunStatus, reason string) *AutomationEvent {
	return &AutomationEvent{
		Type:      EventTypeRunFinished,
		Timestamp: time.Now(),
		RunID:     runID,
		Status:    status,
		Reason:    reason,
	}
}

// NewRunStoppedEvent creates a stop acknowledgement event.
func NewRunStoppedEvent(runID string) *AutomationEvent {
	return &AutomationEvent{
		Type:      EventTypeRunStopped,
		Timestamp: time.Now(),
		RunID:     runID,
		Status:    RunStatusStopped,
	}
}

// NewStepStartedEvent creates a step started event.
func NewStepStartedEvent(runID string, stepIndex int, stepName string) *AutomationEvent {
	return &AutomationEvent{
		Type:      EventTypeStepStarted,
		Timestamp: time.Now(),
		RunID:     runID,
		StepIndex: stepIndex,
		StepName:  stepName,
	}
}

// NewStepCompletedEvent creates a step completed event.
func NewStepCompletedEvent(runID string, stepIndex int, stepName string, result map[string]any, duration time.Duration) *AutomationEvent {
	return &AutomationEvent{
		Type:      EventTypeStepCompleted,
		Timestamp: time.Now(),
		RunID:     runID,
		StepIndex: stepIndex,
		StepName:  stepName,
		Result:    result,
		Duration:  duration,
	}
}

// NewStepFailedEvent creates a step failed event.
func NewStepFailedEvent(runID string, stepIndex int, stepName string, err error) *AutomationEvent {
	return &AutomationEvent{
		Type:      EventTypeStepFailed,
		Timestamp: time.Now(),
		RunID:     runID,
		StepIndex: stepIndex,
		StepName:  stepName,
		Error:     err,
	}
}

// NewStepRetryingEvent creates a retry event for a failed attempt.
func NewStepRetryingEvent(runID string, stepIndex int, stepName string, attempt int, err error) *AutomationEvent {
	return &AutomationEvent{
		Type:      EventTypeStepRetrying,
		Timestamp: time.Now(),
		RunID:     runID,
		StepIndex: stepIndex,
		StepName:  stepName,
		Attempt:   attempt,
		Error:     err,
	}
}

// NewNeedsApprovalEvent creates an approval request event.
func NewNeedsApprovalEvent(req *ApprovalRequest) *AutomationEvent {
	return &AutomationEvent{
		Type:      EventTypeNeedsApproval,
		Timestamp: time.Now(),
		RunID:     req.RunID,
		Approval:  req,
	}
}

// NewApprovalGrantedEvent creates an approval granted event.
func NewApprovalGrantedEvent(runID, approvalID string) *AutomationEvent {
	return &AutomationEvent{
		Type:      EventTypeApprovalGranted,
		Timestamp: time.Now(),
		RunID:     runID,
		Approval:  &ApprovalRequest{ApprovalID: approvalID, RunID: runID},
	}
}

// NewApprovalRejectedEvent creates an approval rejected event.
func NewApprovalRejectedEvent(runID, approvalID string) *AutomationEvent {
	return &AutomationEvent{
		Type:      EventTypeApprovalRejected,
		Timestamp: time.Now(),
		RunID:     runID,
		Approval:  &ApprovalRequest{ApprovalID: approvalID, RunID: runID},
	}
}

// NewApprovalTimeoutEvent creates an approval timeout event.
func NewApprovalTimeoutEvent(runID, approvalID string) *AutomationEvent {
	return &AutomationEvent{
		Type:      EventTypeApprovalTimeout,
		Timestamp: time.Now(),
		RunID:     runID,
		Approval:  &ApprovalRequest{ApprovalID: approvalID, RunID: runID},
	}
}

// IsRunEvent returns true if this is any run-level lifecycle event.
func (e *AutomationEvent) IsRunEvent() bool {
	return e.Type == EventTypeRunUpdate ||
		e.Type == EventTypeRunFinished ||
		e.Type == EventTypeRunStopped
}

// IsStepEvent returns true if this is any step-level event.
func (e *AutomationEvent) IsStepEvent() bool {
	return e.Type == EventTypeStepStarted ||
		e.Type == EventTypeStepCompleted ||
		e.Type == EventTypeStepFailed ||
		e.Type == EventTypeStepRetrying
}

// IsApprovalEvent returns true if this is any approval-related event.
func (e *AutomationEvent) IsApprovalEvent() bool {
	return e.Type == EventTypeNeedsApproval ||
		e.Type == EventTypeApprovalGranted ||
		e.Type == EventTypeApprovalRejected ||
		e.Type == EventTypeApprovalTimeout
}
