package types

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusIdle            RunStatus = "idle"
	RunStatusRunning         RunStatus = "running"
	RunStatusPaused          RunStatus = "paused"
	RunStatusWaitingApproval RunStatus = "waiting_approval"
	RunStatusCompleted       RunStatus = "completed"
	RunStatusFailed          RunStatus = "failed"
	RunStatusStopped         RunStatus = "stopped"
)

// IsTerminal reports whether the status is a terminal state. A run in a
// terminal state is removed from the registry and its resource lock released.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusStopped
}

// StepStatus is the lifecycle state of a single step within a run.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Step is one named unit of a run. Steps are built by the caller and mutated
// only by the orchestrator as the run advances.
type Step struct {
	ID               string
	Name             string
	Description      string
	Action           Action
	RequiresApproval bool
	Status           StepStatus
}

// Run is one end-to-end execution of an ordered step sequence against a
// resource. It is owned exclusively by the orchestrator for its lifetime.
type Run struct {
	ID               string
	Type             string
	ResourceID       string
	Target           string
	Status           RunStatus
	Steps            []*Step
	CurrentStepIndex int
	Error            string
	StartedAt        time.Time
	EndedAt          time.Time
}

// CurrentStep returns the step at CurrentStepIndex, or nil when the run has
// no steps or the index is out of range.
func (r *Run) CurrentStep() *Step {
	if r.CurrentStepIndex < 0 || r.CurrentStepIndex >= len(r.Steps) {
		return nil
	}
	return r.Steps[r.CurrentStepIndex]
}

// Snapshot returns a copy of the run with its steps copied, safe to hand to
// subscribers and API responses while the orchestrator keeps mutating the
// original.
func (r *Run) Snapshot() *Run {
	steps := make([]*Step, len(r.Steps))
	for i, s := range r.Steps {
		copied := *s
		steps[i] = &copied
	}
	copied := *r
	copied.Steps = steps
	return &copied
}
