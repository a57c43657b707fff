package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/relay/pkg/types"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewBus()

	var seen []types.EventType
	unsub := bus.Subscribe(nil, func(e *types.AutomationEvent) {
		seen = append(seen, e.Type)
	})
	defer unsub()

	bus.Publish(types.NewStepStartedEvent("run-1", 0, "open page"))
	bus.Publish(types.NewStepCompletedEvent("run-1", 0, "open page", nil, 0))
	bus.Publish(types.NewRunFinishedEvent("run-1", types.RunStatusCompleted, ""))

	require.Equal(t, []types.EventType{
		types.EventTypeStepStarted,
		types.EventTypeStepCompleted,
		types.EventTypeRunFinished,
	}, seen)
}

func TestSubscribePredicateFilters(t *testing.T) {
	bus := NewBus()

	var count int
	unsub := bus.Subscribe(func(e *types.AutomationEvent) bool {
		return e.IsApprovalEvent()
	}, func(e *types.AutomationEvent) {
		count++
	})
	defer unsub()

	bus.Publish(types.NewStepStartedEvent("run-1", 0, "step"))
	bus.Publish(types.NewApprovalGrantedEvent("run-1", "a-1"))

	assert.Equal(t, 1, count)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	var count int
	unsub := bus.Subscribe(nil, func(e *types.AutomationEvent) { count++ })

	bus.Publish(types.NewRunStoppedEvent("run-1"))
	unsub()
	bus.Publish(types.NewRunStoppedEvent("run-1"))

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, bus.SubscriberCount())

	// Second call is a no-op.
	unsub()
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()

	var delivered bool
	unsub1 := bus.Subscribe(nil, func(e *types.AutomationEvent) {
		panic("handler bug")
	})
	defer unsub1()
	unsub2 := bus.Subscribe(nil, func(e *types.AutomationEvent) {
		delivered = true
	})
	defer unsub2()

	require.NotPanics(t, func() {
		bus.Publish(types.NewRunStoppedEvent("run-1"))
	})
	assert.True(t, delivered)
}

func TestSubscribePattern(t *testing.T) {
	bus := NewBus()

	var seen []types.EventType
	unsub := bus.SubscribePattern("approval.*", func(e *types.AutomationEvent) {
		seen = append(seen, e.Type)
	})
	defer unsub()

	bus.Publish(types.NewStepStartedEvent("run-1", 0, "step"))
	bus.Publish(types.NewApprovalGrantedEvent("run-1", "a-1"))
	bus.Publish(types.NewApprovalRejectedEvent("run-1", "a-2"))

	require.Equal(t, []types.EventType{
		types.EventTypeApprovalGranted,
		types.EventTypeApprovalRejected,
	}, seen)
}

func TestSubscribePatternInvalidMatchesNothing(t *testing.T) {
	bus := NewBus()

	var count int
	unsub := bus.SubscribePattern("[invalid", func(e *types.AutomationEvent) { count++ })
	defer unsub()

	bus.Publish(types.NewRunStoppedEvent("run-1"))
	assert.Equal(t, 0, count)
}

func TestSubscribeRun(t *testing.T) {
	bus := NewBus()

	var count int
	unsub := bus.SubscribeRun("run-1", func(e *types.AutomationEvent) { count++ })
	defer unsub()

	bus.Publish(types.NewStepStartedEvent("run-1", 0, "step"))
	bus.Publish(types.NewStepStartedEvent("run-2", 0, "step"))

	assert.Equal(t, 1, count)
}

func TestPublishNilEvent(t *testing.T) {
	bus := NewBus()

	unsub := bus.Subscribe(nil, func(e *types.AutomationEvent) {
		t.Fatal("nil event must not be delivered")
	})
	defer unsub()

	bus.Publish(nil)
}
