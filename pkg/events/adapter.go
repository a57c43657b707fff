package events

import (
	"errors"

	"github.com/entrhq/relay/pkg/logging"
	"github.com/entrhq/relay/pkg/types"
)

// Sink is a transport surface that forwards bus events out of the process:
// an SSE stream, a UI program, a log file. The adapter owns the liveness
// check so emitters never have to care whether a UI is attached.
type Sink interface {
	// Alive reports whether the sink can currently accept events.
	Alive() bool

	// Deliver forwards one event. Returning types.ErrSinkUnavailable (or any
	// error) causes the event to be dropped for this sink only.
	Deliver(*types.AutomationEvent) error
}

// SinkAdapter bridges the bus to a Sink. Delivery failures are swallowed and
// logged; they never propagate back into the orchestrator or executor call
// stack.
type SinkAdapter struct {
	sink  Sink
	log   *logging.Logger
	unsub func()
}

// NewSinkAdapter subscribes the sink to every event on the bus and returns
// the adapter. Close detaches it.
func NewSinkAdapter(bus *Bus, sink Sink, log *logging.Logger) *SinkAdapter {
	a := &SinkAdapter{sink: sink, log: log}
	a.unsub = bus.Subscribe(nil, a.forward)
	return a
}

func (a *SinkAdapter) forward(event *types.AutomationEvent) {
	if !a.sink.Alive() {
		if a.log != nil {
			a.log.Debugf("dropping %s event for run %s: %v", event.Type, event.RunID, types.ErrSinkUnavailable)
		}
		return
	}

	if err := a.sink.Deliver(event); err != nil {
		if a.log != nil && !errors.Is(err, types.ErrSinkUnavailable) {
			a.log.Warnf("event delivery failed for run %s: %v", event.RunID, err)
		}
	}
}

// Close detaches the adapter from the bus. Safe to call multiple times.
func (a *SinkAdapter) Close() {
	if a.unsub != nil {
		a.unsub()
		a.unsub = nil
	}
}
