// Package approval implements the suspend/resolve protocol guarding
// sensitive steps: a run parks at the gate, an approval request is published
// for a human, and the run proceeds only on an affirmative answer.
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/relay/pkg/events"
	"github.com/entrhq/relay/pkg/types"
)

// decision is the resolution of one pending approval.
type decision struct {
	approved bool
	timedOut bool
}

// pendingApproval bundles the resolver and its timer as one unit, keyed by
// run id. Clearing the entry always stops the timer, so a stale timeout can
// never fire after a manual resolution.
type pendingApproval struct {
	approvalID string
	runID      string
	result     chan decision
	timer      *time.Timer
	once       sync.Once
}

func (p *pendingApproval) resolve(d decision) {
	p.once.Do(func() {
		p.timer.Stop()
		p.result <- d
	})
}

// Gate suspends runs pending human confirmation. A run has at most one live
// pending approval; requesting a second while one is pending is a
// programming error and is refused.
type Gate struct {
	mu      sync.Mutex
	pending map[string]*pendingApproval
	bus     *events.Bus
}

// NewGate creates an approval gate publishing on the given bus.
func NewGate(bus *events.Bus) *Gate {
	return &Gate{
		pending: make(map[string]*pendingApproval),
		bus:     bus,
	}
}

// WaitForApproval publishes an approval request for the run and blocks until
// it is approved, rejected, timed out, or the context is canceled. An
// expired request is indistinguishable downstream from an explicit reject:
// the fail-safe default is always "do not proceed".
//
// Returns (approved, timedOut, err). err is non-nil only for a canceled
// context or a duplicate request; in both cases approved is false.
func (g *Gate) WaitForApproval(ctx context.Context, runID, actionLabel string, preview types.Preview, timeout time.Duration) (bool, bool, error) {
	g.mu.Lock()
	if _, exists := g.pending[runID]; exists {
		g.mu.Unlock()
		return false, false, fmt.Errorf("run %s already has a pending approval", runID)
	}

	pa := &pendingApproval{
		approvalID: uuid.New().String(),
		runID:      runID,
		result:     make(chan decision, 1),
	}
	pa.timer = time.AfterFunc(timeout, func() {
		g.finish(runID, decision{approved: false, timedOut: true})
	})
	g.pending[runID] = pa
	g.mu.Unlock()

	g.publish(types.NewNeedsApprovalEvent(&types.ApprovalRequest{
		ApprovalID:  pa.approvalID,
		RunID:       runID,
		ActionLabel: actionLabel,
		Preview:     preview,
		Timeout:     timeout,
	}))

	select {
	case <-ctx.Done():
		// The run is being stopped; clear the entry so a later approve
		// returns NoPendingApproval instead of resolving into nothing.
		g.clear(runID)
		return false, false, types.ErrAborted

	case d := <-pa.result:
		switch {
		case d.timedOut:
			g.publish(types.NewApprovalTimeoutEvent(runID, pa.approvalID))
		case d.approved:
			g.publish(types.NewApprovalGrantedEvent(runID, pa.approvalID))
		default:
			g.publish(types.NewApprovalRejectedEvent(runID, pa.approvalID))
		}
		return d.approved, d.timedOut, nil
	}
}

// Approve resolves the run's pending approval affirmatively. Returns
// ErrNoPendingApproval if there is none.
func (g *Gate) Approve(runID string) error {
	return g.finish(runID, decision{approved: true})
}

// Reject resolves the run's pending approval negatively. Returns
// ErrNoPendingApproval if there is none.
func (g *Gate) Reject(runID string) error {
	return g.finish(runID, decision{approved: false})
}

// HasPending reports whether the run currently has a live pending approval.
func (g *Gate) HasPending(runID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[runID]
	return ok
}

// finish removes the entry and fires its resolver exactly once. The timer is
// stopped inside resolve, atomically with delivery.
func (g *Gate) finish(runID string, d decision) error {
	g.mu.Lock()
	pa, ok := g.pending[runID]
	if ok {
		delete(g.pending, runID)
	}
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w for run %s", types.ErrNoPendingApproval, runID)
	}
	pa.resolve(d)
	return nil
}

// clear drops the entry without delivering a decision, for the canceled
// context path where nobody is listening anymore.
func (g *Gate) clear(runID string) {
	g.mu.Lock()
	pa, ok := g.pending[runID]
	if ok {
		delete(g.pending, runID)
	}
	g.mu.Unlock()

	if ok {
		pa.once.Do(func() { pa.timer.Stop() })
	}
}

func (g *Gate) publish(event *types.AutomationEvent) {
	if g.bus != nil {
		g.bus.Publish(event)
	}
}
