package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/relay/pkg/automation/approval"
	"github.com/entrhq/relay/pkg/automation/backoff"
	"github.com/entrhq/relay/pkg/automation/executor"
	"github.com/entrhq/relay/pkg/automation/registry"
	"github.com/entrhq/relay/pkg/driver"
	"github.com/entrhq/relay/pkg/events"
	"github.com/entrhq/relay/pkg/types"
)

// fakeDriver scripts step behavior. A nil onClick succeeds immediately.
type fakeDriver struct {
	onClick func(selector string) error
}

func (f *fakeDriver) Navigate(_ context.Context, _ string) error { return nil }

func (f *fakeDriver) Click(_ context.Context, selector string) error {
	if f.onClick != nil {
		return f.onClick(selector)
	}
	return nil
}

func (f *fakeDriver) Type(_ context.Context, _, _ string, _ time.Duration) error { return nil }
func (f *fakeDriver) Scroll(_ context.Context, _ string, _ int, _ string) error  { return nil }

func (f *fakeDriver) Extract(_ context.Context, _ []types.ExtractField) (map[string]string, error) {
	return map[string]string{}, nil
}

func (f *fakeDriver) Screenshot(_ context.Context, _ bool) ([]byte, error)               { return nil, nil }
func (f *fakeDriver) WaitForSelector(_ context.Context, _ string, _ time.Duration) error { return nil }
func (f *fakeDriver) WaitForTimeout(_ context.Context, _ time.Duration) error            { return nil }
func (f *fakeDriver) Hover(_ context.Context, _ string) error                            { return nil }
func (f *fakeDriver) Select(_ context.Context, _, _ string) error                        { return nil }
func (f *fakeDriver) CurrentURL() string                                                 { return "" }
func (f *fakeDriver) Title() (string, error)                                             { return "", nil }

type fakeProvider struct {
	drv driver.PageDriver
	err error
}

func (f *fakeProvider) DriverFor(_ context.Context, _ string) (driver.PageDriver, error) {
	return f.drv, f.err
}

type harness struct {
	orch     *Orchestrator
	bus      *events.Bus
	registry *registry.Registry
	finished chan *types.AutomationEvent
}

func newHarness(t *testing.T, drv driver.PageDriver, approvalTimeout time.Duration) *harness {
	t.Helper()

	bus := events.NewBus()
	reg := registry.New()
	exec := executor.New(bus, executor.Config{
		MaxRetries:    0,
		ActionTimeout: time.Second,
		Backoff:       backoff.NewConstant(0),
	}, nil)
	orch := New(reg, exec, approval.NewGate(bus), &fakeProvider{drv: drv}, bus, Config{ApprovalTimeout: approvalTimeout}, nil)

	finished := make(chan *types.AutomationEvent, 8)
	bus.Subscribe(func(e *types.AutomationEvent) bool {
		return e.Type == types.EventTypeRunFinished
	}, func(e *types.AutomationEvent) {
		finished <- e
	})

	return &harness{orch: orch, bus: bus, registry: reg, finished: finished}
}

func (h *harness) waitFinished(t *testing.T, runID string) *types.AutomationEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-h.finished:
			if e.RunID == runID {
				return e
			}
		case <-deadline:
			t.Fatalf("run %s never finished", runID)
			return nil
		}
	}
}

func navigateStep(name string) *types.Step {
	return &types.Step{Name: name, Action: types.NavigateAction{URL: "https://example.com/"}}
}

func clickStep(name string, approval bool) *types.Step {
	return &types.Step{Name: name, Action: types.ClickAction{Selector: "#go"}, RequiresApproval: approval}
}

func TestRunCompletes(t *testing.T) {
	h := newHarness(t, &fakeDriver{}, time.Minute)

	run, err := h.orch.StartRun("visit", "profile-1", "Ada", []*types.Step{
		navigateStep("open"),
		clickStep("press", false),
	})
	require.NoError(t, err)

	e := h.waitFinished(t, run.ID)
	assert.Equal(t, types.RunStatusCompleted, e.Status)
	assert.Empty(t, e.Reason)

	assert.False(t, h.registry.IsResourceBusy("profile-1"))
	assert.False(t, h.registry.IsActive(run.ID))

	_, err = h.orch.GetRun(run.ID)
	assert.ErrorIs(t, err, types.ErrRunNotFound)
}

func TestBusyResourceRefused(t *testing.T) {
	release := make(chan struct{})
	drv := &fakeDriver{onClick: func(string) error {
		<-release
		return nil
	}}
	h := newHarness(t, drv, time.Minute)

	run, err := h.orch.StartRun("visit", "profile-1", "", []*types.Step{clickStep("press", false)})
	require.NoError(t, err)

	_, err = h.orch.StartRun("visit", "profile-1", "", []*types.Step{navigateStep("open")})
	assert.ErrorIs(t, err, types.ErrBusyResource)

	// A different resource is unaffected.
	other, err := h.orch.StartRun("visit", "profile-2", "", []*types.Step{navigateStep("open")})
	require.NoError(t, err)
	h.waitFinished(t, other.ID)

	close(release)
	h.waitFinished(t, run.ID)
	assert.False(t, h.registry.IsResourceBusy("profile-1"))
}

func TestApprovalGrantedRunProceeds(t *testing.T) {
	h := newHarness(t, &fakeDriver{}, time.Minute)

	requested := make(chan string, 1)
	h.bus.Subscribe(func(e *types.AutomationEvent) bool {
		return e.Type == types.EventTypeNeedsApproval
	}, func(e *types.AutomationEvent) {
		requested <- e.RunID
	})

	run, err := h.orch.StartRun("message", "profile-1", "Ada", []*types.Step{
		navigateStep("open"),
		clickStep("send", true),
	})
	require.NoError(t, err)

	select {
	case runID := <-requested:
		snap, err := h.orch.GetRun(runID)
		require.NoError(t, err)
		assert.Equal(t, types.RunStatusWaitingApproval, snap.Status)
		require.NoError(t, h.orch.Approve(runID))
	case <-time.After(3 * time.Second):
		t.Fatal("approval never requested")
	}

	e := h.waitFinished(t, run.ID)
	assert.Equal(t, types.RunStatusCompleted, e.Status)
}

func TestApprovalRejectedStopsRun(t *testing.T) {
	clicked := false
	drv := &fakeDriver{onClick: func(string) error {
		clicked = true
		return nil
	}}
	h := newHarness(t, drv, time.Minute)

	requested := make(chan string, 1)
	h.bus.Subscribe(func(e *types.AutomationEvent) bool {
		return e.Type == types.EventTypeNeedsApproval
	}, func(e *types.AutomationEvent) {
		requested <- e.RunID
	})

	run, err := h.orch.StartRun("message", "profile-1", "Ada", []*types.Step{clickStep("send", true)})
	require.NoError(t, err)

	select {
	case runID := <-requested:
		require.NoError(t, h.orch.Reject(runID))
	case <-time.After(3 * time.Second):
		t.Fatal("approval never requested")
	}

	e := h.waitFinished(t, run.ID)
	assert.Equal(t, types.RunStatusStopped, e.Status)
	assert.Equal(t, "rejected by user", e.Reason)

	// The gated action never executed and the lock is free.
	assert.False(t, clicked)
	assert.False(t, h.registry.IsResourceBusy("profile-1"))
}

func TestApprovalTimeoutStopsRun(t *testing.T) {
	h := newHarness(t, &fakeDriver{}, 100*time.Millisecond)

	run, err := h.orch.StartRun("message", "profile-1", "Ada", []*types.Step{clickStep("send", true)})
	require.NoError(t, err)

	e := h.waitFinished(t, run.ID)
	assert.Equal(t, types.RunStatusStopped, e.Status)
	assert.Equal(t, "approval timed out", e.Reason)

	// Nothing pending remains for the run.
	assert.ErrorIs(t, h.orch.Approve(run.ID), types.ErrNoPendingApproval)
	assert.False(t, h.registry.IsResourceBusy("profile-1"))
}

func TestStopCancelsRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	drv := &fakeDriver{onClick: func(string) error {
		close(started)
		<-release
		return nil
	}}
	h := newHarness(t, drv, time.Minute)

	run, err := h.orch.StartRun("visit", "profile-1", "", []*types.Step{clickStep("press", false)})
	require.NoError(t, err)
	<-started

	require.NoError(t, h.orch.Stop(run.ID))
	close(release)

	e := h.waitFinished(t, run.ID)
	assert.Equal(t, types.RunStatusStopped, e.Status)
	assert.Equal(t, "cancelled by user", e.Reason)
	assert.False(t, h.registry.IsResourceBusy("profile-1"))
}

func TestStopWhileWaitingApproval(t *testing.T) {
	h := newHarness(t, &fakeDriver{}, time.Minute)

	requested := make(chan string, 1)
	h.bus.Subscribe(func(e *types.AutomationEvent) bool {
		return e.Type == types.EventTypeNeedsApproval
	}, func(e *types.AutomationEvent) {
		requested <- e.RunID
	})

	run, err := h.orch.StartRun("message", "profile-1", "Ada", []*types.Step{clickStep("send", true)})
	require.NoError(t, err)
	<-requested

	require.NoError(t, h.orch.Stop(run.ID))

	e := h.waitFinished(t, run.ID)
	assert.Equal(t, types.RunStatusStopped, e.Status)
	assert.False(t, h.registry.IsResourceBusy("profile-1"))
}

func TestStopUnknownRunIsIdempotent(t *testing.T) {
	h := newHarness(t, &fakeDriver{}, time.Minute)

	assert.NoError(t, h.orch.Stop("no-such-run"))
	assert.NoError(t, h.orch.Stop("no-such-run"))
}

func TestStepFailureFailsRun(t *testing.T) {
	drv := &fakeDriver{onClick: func(string) error {
		return errors.New("element vanished")
	}}
	h := newHarness(t, drv, time.Minute)

	run, err := h.orch.StartRun("visit", "profile-1", "", []*types.Step{clickStep("press", false)})
	require.NoError(t, err)

	e := h.waitFinished(t, run.ID)
	assert.Equal(t, types.RunStatusFailed, e.Status)
	assert.Contains(t, e.Reason, "element vanished")
	assert.False(t, h.registry.IsResourceBusy("profile-1"))
}

func TestPauseResume(t *testing.T) {
	firstStarted := make(chan struct{})
	proceed := make(chan struct{})
	secondStarted := make(chan struct{}, 1)
	step := 0
	drv := &fakeDriver{onClick: func(string) error {
		step++
		if step == 1 {
			close(firstStarted)
			<-proceed
		} else {
			secondStarted <- struct{}{}
		}
		return nil
	}}
	h := newHarness(t, drv, time.Minute)

	run, err := h.orch.StartRun("visit", "profile-1", "", []*types.Step{
		clickStep("first", false),
		clickStep("second", false),
	})
	require.NoError(t, err)

	// Pause while the first action is in flight; it is allowed to finish and
	// the pause takes effect at the step boundary.
	<-firstStarted
	require.NoError(t, h.orch.Pause(run.ID))
	close(proceed)

	// Paused at the step boundary: the second step must not start.
	select {
	case <-secondStarted:
		t.Fatal("second step ran while paused")
	case <-time.After(100 * time.Millisecond):
	}

	snap, err := h.orch.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusPaused, snap.Status)

	require.NoError(t, h.orch.Resume(run.ID))
	e := h.waitFinished(t, run.ID)
	assert.Equal(t, types.RunStatusCompleted, e.Status)
}

func TestPauseAtApprovalGateKeepsWaitingStatus(t *testing.T) {
	secondStarted := make(chan struct{}, 1)
	step := 0
	drv := &fakeDriver{onClick: func(string) error {
		step++
		if step == 2 {
			secondStarted <- struct{}{}
		}
		return nil
	}}
	h := newHarness(t, drv, time.Minute)

	requested := make(chan string, 1)
	h.bus.Subscribe(func(e *types.AutomationEvent) bool {
		return e.Type == types.EventTypeNeedsApproval
	}, func(e *types.AutomationEvent) {
		requested <- e.RunID
	})

	run, err := h.orch.StartRun("message", "profile-1", "Ada", []*types.Step{
		clickStep("send", true),
		clickStep("follow up", false),
	})
	require.NoError(t, err)
	<-requested

	// Pausing a run parked at the gate must not misreport its status.
	require.NoError(t, h.orch.Pause(run.ID))
	snap, err := h.orch.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusWaitingApproval, snap.Status)

	require.NoError(t, h.orch.Resume(run.ID))
	snap, err = h.orch.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusWaitingApproval, snap.Status)

	// The pause flag still holds the run at the next step boundary.
	require.NoError(t, h.orch.Pause(run.ID))
	require.NoError(t, h.orch.Approve(run.ID))

	select {
	case <-secondStarted:
		t.Fatal("second step ran while paused")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, h.orch.Resume(run.ID))
	e := h.waitFinished(t, run.ID)
	assert.Equal(t, types.RunStatusCompleted, e.Status)
}

func TestPauseUnknownRun(t *testing.T) {
	h := newHarness(t, &fakeDriver{}, time.Minute)

	assert.ErrorIs(t, h.orch.Pause("no-such-run"), types.ErrRunNotFound)
	assert.ErrorIs(t, h.orch.Resume("no-such-run"), types.ErrRunNotFound)
}

func TestStartRunValidation(t *testing.T) {
	h := newHarness(t, &fakeDriver{}, time.Minute)

	_, err := h.orch.StartRun("visit", "profile-1", "", nil)
	assert.Error(t, err)

	_, err = h.orch.StartRun("visit", "profile-1", "", []*types.Step{{Name: "no action"}})
	assert.Error(t, err)

	// Failed validation leaves no lock behind.
	assert.False(t, h.registry.IsResourceBusy("profile-1"))
}

func TestDriverFailureReleasesLock(t *testing.T) {
	bus := events.NewBus()
	reg := registry.New()
	exec := executor.New(bus, executor.DefaultConfig(), nil)
	provider := &fakeProvider{err: errors.New("browser launch failed")}
	orch := New(reg, exec, approval.NewGate(bus), provider, bus, DefaultConfig(), nil)

	_, err := orch.StartRun("visit", "profile-1", "", []*types.Step{navigateStep("open")})
	require.Error(t, err)
	assert.False(t, reg.IsResourceBusy("profile-1"))
}

func TestStopAll(t *testing.T) {
	release := make(chan struct{})
	drv := &fakeDriver{onClick: func(string) error {
		<-release
		return nil
	}}
	h := newHarness(t, drv, time.Minute)

	run1, err := h.orch.StartRun("visit", "profile-1", "", []*types.Step{clickStep("press", false)})
	require.NoError(t, err)
	run2, err := h.orch.StartRun("visit", "profile-2", "", []*types.Step{clickStep("press", false)})
	require.NoError(t, err)

	h.orch.StopAll()
	close(release)

	h.waitFinished(t, run1.ID)
	h.waitFinished(t, run2.ID)
	assert.Empty(t, h.orch.ActiveRuns())
}

func TestSnapshotsAreIsolated(t *testing.T) {
	release := make(chan struct{})
	drv := &fakeDriver{onClick: func(string) error {
		<-release
		return nil
	}}
	h := newHarness(t, drv, time.Minute)

	run, err := h.orch.StartRun("visit", "profile-1", "", []*types.Step{clickStep("press", false)})
	require.NoError(t, err)

	snap, err := h.orch.GetRun(run.ID)
	require.NoError(t, err)
	snap.Steps[0].Status = types.StepStatusFailed

	again, err := h.orch.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StepStatusRunning, again.Steps[0].Status)

	close(release)
	h.waitFinished(t, run.ID)
}
