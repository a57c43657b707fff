package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunStatusIsTerminal(t *testing.T) {
	terminal := []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusStopped}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), string(s))
	}

	live := []RunStatus{RunStatusIdle, RunStatusRunning, RunStatusPaused, RunStatusWaitingApproval}
	for _, s := range live {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestClickSelectorsOrder(t *testing.T) {
	a := ClickAction{Selector: "#primary", Fallbacks: []string{"#f1", "#f2"}}
	assert.Equal(t, []string{"#primary", "#f1", "#f2"}, a.Selectors())

	noFallbacks := ClickAction{Selector: "#only"}
	assert.Equal(t, []string{"#only"}, noFallbacks.Selectors())
}

func TestCurrentStep(t *testing.T) {
	run := &Run{Steps: []*Step{{Name: "a"}, {Name: "b"}}}

	assert.Equal(t, "a", run.CurrentStep().Name)

	run.CurrentStepIndex = 1
	assert.Equal(t, "b", run.CurrentStep().Name)

	run.CurrentStepIndex = 2
	assert.Nil(t, run.CurrentStep())

	empty := &Run{}
	assert.Nil(t, empty.CurrentStep())
}

func TestSnapshotIsolatesSteps(t *testing.T) {
	run := &Run{
		ID:     "run-1",
		Status: RunStatusRunning,
		Steps:  []*Step{{Name: "a", Status: StepStatusRunning}},
	}

	snap := run.Snapshot()
	snap.Status = RunStatusFailed
	snap.Steps[0].Status = StepStatusFailed

	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Equal(t, StepStatusRunning, run.Steps[0].Status)
}

func TestEventClassification(t *testing.T) {
	assert.True(t, NewRunFinishedEvent("r", RunStatusCompleted, "").IsRunEvent())
	assert.True(t, NewStepStartedEvent("r", 0, "s").IsStepEvent())
	assert.True(t, NewApprovalGrantedEvent("r", "a").IsApprovalEvent())

	e := NewStepCompletedEvent("r", 0, "s", nil, time.Second)
	assert.False(t, e.IsRunEvent())
	assert.False(t, e.IsApprovalEvent())
}
