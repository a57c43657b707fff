// Package orchestrator drives runs through their step sequence: it acquires
// the resource lock, steps actions through the executor, parks at the
// approval gate for sensitive steps, and routes every terminal transition
// through a single release path so locks are never leaked.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/relay/pkg/automation/approval"
	"github.com/entrhq/relay/pkg/automation/executor"
	"github.com/entrhq/relay/pkg/automation/registry"
	"github.com/entrhq/relay/pkg/driver"
	"github.com/entrhq/relay/pkg/events"
	"github.com/entrhq/relay/pkg/logging"
	"github.com/entrhq/relay/pkg/types"
)

// Config controls orchestrator behavior.
type Config struct {
	// ApprovalTimeout bounds how long a run waits at the approval gate
	// before the request is treated as rejected.
	ApprovalTimeout time.Duration
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{ApprovalTimeout: 5 * time.Minute}
}

// runControl is the orchestrator's per-run handle: the cancellation signal,
// the pause gate, and the once that guarantees exactly one terminal
// transition regardless of which path reaches it first.
type runControl struct {
	run      *types.Run
	cancel   context.CancelFunc
	finished sync.Once

	pauseMu sync.Mutex
	paused  bool
	resume  chan struct{}
}

// Orchestrator is the top-level run state machine.
type Orchestrator struct {
	registry *registry.Registry
	executor *executor.Executor
	gate     *approval.Gate
	drivers  driver.Provider
	bus      *events.Bus
	cfg      Config
	log      *logging.Logger

	mu       sync.Mutex
	controls map[string]*runControl
}

// New creates an orchestrator. All collaborators are injected; the
// orchestrator owns no global state, so independent instances can coexist.
func New(reg *registry.Registry, exec *executor.Executor, gate *approval.Gate, drivers driver.Provider, bus *events.Bus, cfg Config, log *logging.Logger) *Orchestrator {
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = 5 * time.Minute
	}
	return &Orchestrator{
		registry: reg,
		executor: exec,
		gate:     gate,
		drivers:  drivers,
		bus:      bus,
		cfg:      cfg,
		log:      log,
		controls: make(map[string]*runControl),
	}
}

// StartRun creates a run for the ordered steps and begins executing it.
// The resource lock is acquired before the run exists; a held lock returns
// ErrBusyResource without side effects. The returned run is a snapshot.
func (o *Orchestrator) StartRun(runType, resourceID, target string, steps []*types.Step) (*types.Run, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("run needs at least one step")
	}
	for i, step := range steps {
		if step.Action == nil {
			return nil, fmt.Errorf("step %d (%s) has no action", i, step.Name)
		}
	}

	runID := uuid.New().String()
	if !o.registry.Acquire(resourceID, runID) {
		return nil, fmt.Errorf("%w: %s", types.ErrBusyResource, resourceID)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	drv, err := o.drivers.DriverFor(runCtx, resourceID)
	if err != nil {
		cancel()
		o.registry.Release(resourceID)
		return nil, fmt.Errorf("driver unavailable for %s: %w", resourceID, err)
	}

	run := &types.Run{
		ID:         runID,
		Type:       runType,
		ResourceID: resourceID,
		Target:     target,
		Status:     types.RunStatusRunning,
		Steps:      steps,
		StartedAt:  time.Now(),
	}
	for i, step := range steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}
		if i == 0 {
			step.Status = types.StepStatusRunning
		} else {
			step.Status = types.StepStatusPending
		}
	}

	rc := &runControl{run: run, cancel: cancel}

	o.mu.Lock()
	o.controls[runID] = rc
	o.mu.Unlock()
	o.registry.Register(run)

	o.publish(types.NewRunUpdateEvent(runID, types.RunStatusRunning, 0))
	if o.log != nil {
		o.log.Infof("run %s (%s) started on resource %s with %d steps", runID, runType, resourceID, len(steps))
	}

	go o.runLoop(runCtx, rc, drv)

	return o.snapshot(run), nil
}

// runLoop advances the run one step at a time until a terminal transition.
func (o *Orchestrator) runLoop(ctx context.Context, rc *runControl, drv driver.PageDriver) {
	run := rc.run

	for {
		if !rc.awaitResume(ctx) {
			o.finalize(rc, types.RunStatusStopped, "cancelled by user")
			return
		}

		o.mu.Lock()
		idx := run.CurrentStepIndex
		step := run.Steps[idx]
		o.mu.Unlock()

		if step.RequiresApproval {
			if !o.awaitApproval(ctx, rc, step) {
				return
			}
		}

		result := o.executor.Execute(ctx, drv, run.ID, idx, step.Name, step.Action)
		if !result.Success {
			if errors.Is(result.Err, types.ErrAborted) {
				o.finalize(rc, types.RunStatusStopped, "cancelled by user")
				return
			}
			o.mu.Lock()
			step.Status = types.StepStatusFailed
			o.mu.Unlock()
			o.finalize(rc, types.RunStatusFailed, result.Err.Error())
			return
		}

		o.mu.Lock()
		step.Status = types.StepStatusCompleted
		last := idx == len(run.Steps)-1
		if !last {
			run.CurrentStepIndex = idx + 1
			run.Steps[idx+1].Status = types.StepStatusRunning
		}
		o.mu.Unlock()

		if last {
			o.finalize(rc, types.RunStatusCompleted, "")
			return
		}
		o.publish(types.NewRunUpdateEvent(run.ID, types.RunStatusRunning, idx+1))
	}
}

// awaitApproval parks the run at the gate before a sensitive step. Returns
// false when the loop must not continue; the terminal transition has already
// been made in that case.
func (o *Orchestrator) awaitApproval(ctx context.Context, rc *runControl, step *types.Step) bool {
	run := rc.run
	o.setStatus(run, types.RunStatusWaitingApproval)

	approved, timedOut, err := o.gate.WaitForApproval(ctx, run.ID, step.Name, o.preview(run, step), o.cfg.ApprovalTimeout)
	if err != nil {
		o.finalize(rc, types.RunStatusStopped, "cancelled by user")
		return false
	}
	if !approved {
		reason := "rejected by user"
		if timedOut {
			reason = "approval timed out"
		}
		o.mu.Lock()
		step.Status = types.StepStatusSkipped
		o.mu.Unlock()
		o.finalize(rc, types.RunStatusStopped, reason)
		return false
	}

	o.setStatus(run, types.RunStatusRunning)
	return true
}

// finalize performs the run's single terminal transition: record status and
// reason, publish run.finished, and release the registry entry and resource
// lock. Every terminal path (complete, fail, stop, rejection, timeout)
// routes through here exactly once.
func (o *Orchestrator) finalize(rc *runControl, status types.RunStatus, reason string) {
	rc.finished.Do(func() {
		run := rc.run

		o.mu.Lock()
		run.Status = status
		run.Error = reason
		run.EndedAt = time.Now()
		delete(o.controls, run.ID)
		o.mu.Unlock()

		o.publish(types.NewRunFinishedEvent(run.ID, status, reason))
		o.registry.Unregister(run.ID)
		o.registry.Release(run.ResourceID)
		rc.cancel()

		if o.log != nil {
			o.log.Infof("run %s finished: %s %s", run.ID, status, reason)
		}
	})
}

// Stop transitions the run to Stopped regardless of its current state,
// resolving any pending approval with a rejection. Idempotent: stopping an
// unknown or already-terminal run acknowledges and does nothing else.
func (o *Orchestrator) Stop(runID string) error {
	o.mu.Lock()
	rc, ok := o.controls[runID]
	o.mu.Unlock()

	if ok {
		_ = o.gate.Reject(runID) // no pending approval is fine
		rc.cancel()
		o.finalize(rc, types.RunStatusStopped, "cancelled by user")
	}
	o.publish(types.NewRunStoppedEvent(runID))
	return nil
}

// StopAll stops every active run.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.controls))
	for id := range o.controls {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		_ = o.Stop(id)
	}
}

// Pause suspends step execution without altering any step's status. An
// in-flight action is allowed to finish; the pause takes effect at the next
// step boundary.
func (o *Orchestrator) Pause(runID string) error {
	o.mu.Lock()
	rc, ok := o.controls[runID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrRunNotFound, runID)
	}

	rc.pauseMu.Lock()
	if !rc.paused {
		rc.paused = true
		rc.resume = make(chan struct{})
	}
	rc.pauseMu.Unlock()

	// A run parked at the approval gate keeps reporting WaitingApproval;
	// the pause flag still takes effect at the next step boundary.
	if !o.isWaitingApproval(rc.run) {
		o.setStatus(rc.run, types.RunStatusPaused)
	}
	return nil
}

// Resume continues a paused run at the same step index.
func (o *Orchestrator) Resume(runID string) error {
	o.mu.Lock()
	rc, ok := o.controls[runID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrRunNotFound, runID)
	}

	rc.pauseMu.Lock()
	if rc.paused {
		rc.paused = false
		close(rc.resume)
	}
	rc.pauseMu.Unlock()

	if !o.isWaitingApproval(rc.run) {
		o.setStatus(rc.run, types.RunStatusRunning)
	}
	return nil
}

func (o *Orchestrator) isWaitingApproval(run *types.Run) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return run.Status == types.RunStatusWaitingApproval
}

// awaitResume blocks while the run is paused. Returns false when the
// cancellation signal fired instead of a resume.
func (rc *runControl) awaitResume(ctx context.Context) bool {
	for {
		rc.pauseMu.Lock()
		paused := rc.paused
		resume := rc.resume
		rc.pauseMu.Unlock()

		if !paused {
			return ctx.Err() == nil
		}
		select {
		case <-ctx.Done():
			return false
		case <-resume:
		}
	}
}

// Approve resolves the run's pending approval affirmatively.
func (o *Orchestrator) Approve(runID string) error {
	return o.gate.Approve(runID)
}

// Reject resolves the run's pending approval negatively.
func (o *Orchestrator) Reject(runID string) error {
	return o.gate.Reject(runID)
}

// GetRun returns a snapshot of an active run.
func (o *Orchestrator) GetRun(runID string) (*types.Run, error) {
	run, ok := o.registry.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrRunNotFound, runID)
	}
	return o.snapshot(run), nil
}

// ActiveRuns returns snapshots of all active runs.
func (o *Orchestrator) ActiveRuns() []*types.Run {
	live := o.registry.ActiveRuns()
	runs := make([]*types.Run, 0, len(live))
	for _, run := range live {
		runs = append(runs, o.snapshot(run))
	}
	return runs
}

// IsResourceBusy reports whether a resource's lock is currently held.
func (o *Orchestrator) IsResourceBusy(resourceID string) bool {
	return o.registry.IsResourceBusy(resourceID)
}

// setStatus records a non-terminal status change and publishes it. Terminal
// statuses are owned by finalize and never overwritten here.
func (o *Orchestrator) setStatus(run *types.Run, status types.RunStatus) {
	o.mu.Lock()
	if run.Status.IsTerminal() {
		o.mu.Unlock()
		return
	}
	run.Status = status
	idx := run.CurrentStepIndex
	o.mu.Unlock()
	o.publish(types.NewRunUpdateEvent(run.ID, status, idx))
}

// snapshot copies the run under the orchestrator's lock so callers never
// observe a half-updated step slice.
func (o *Orchestrator) snapshot(run *types.Run) *types.Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return run.Snapshot()
}

func (o *Orchestrator) preview(run *types.Run, step *types.Step) types.Preview {
	content := step.Description
	if content == "" {
		content = step.Name
	}
	return types.Preview{Target: run.Target, Content: content}
}

func (o *Orchestrator) publish(event *types.AutomationEvent) {
	if o.bus != nil {
		o.bus.Publish(event)
	}
}
