// Package executor runs one atomic action against a page driver, enforcing
// the per-action timeout, the retry policy, and cooperative cancellation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/relay/pkg/automation/backoff"
	"github.com/entrhq/relay/pkg/driver"
	"github.com/entrhq/relay/pkg/events"
	"github.com/entrhq/relay/pkg/logging"
	"github.com/entrhq/relay/pkg/types"
)

// errMalformedAction marks programming errors (unknown action variants) that
// must fail fast instead of being retried.
var errMalformedAction = errors.New("malformed action")

// Config controls the executor's retry and timeout behavior. MaxRetries is
// the number of additional attempts after the first: an action runs at most
// MaxRetries+1 times.
type Config struct {
	MaxRetries    int
	ActionTimeout time.Duration
	Backoff       backoff.Strategy
}

// DefaultConfig returns the executor defaults: 2 retries, 30s per action,
// jittered exponential delay between attempts.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    2,
		ActionTimeout: 30 * time.Second,
		Backoff:       backoff.Default(),
	}
}

// Executor executes actions against a page driver and reports step-level
// events on the bus. It is stateless between invocations and safe for
// concurrent use by runs holding different resources.
type Executor struct {
	bus *events.Bus
	cfg Config
	log *logging.Logger
}

// New creates an executor. A nil backoff strategy falls back to the default.
func New(bus *events.Bus, cfg Config, log *logging.Logger) *Executor {
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.Default()
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 30 * time.Second
	}
	return &Executor{bus: bus, cfg: cfg, log: log}
}

// Execute runs the action to completion, retrying transient failures up to
// the configured maximum. The context is the run's cancellation signal: if
// it is already done before the first attempt the result is an immediate
// aborted failure with zero retries consumed; during an attempt it
// participates in the race against the action and the timeout.
func (e *Executor) Execute(ctx context.Context, drv driver.PageDriver, runID string, stepIndex int, stepName string, action types.Action) types.ExecutionResult {
	start := time.Now()
	e.publish(types.NewStepStartedEvent(runID, stepIndex, stepName))

	var lastErr error
	retries := e.cfg.MaxRetries
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			// Aborted is a distinct terminal condition, not retries
			// exhausted. Attempts already consumed still count.
			return e.fail(runID, stepIndex, stepName, start, attempt, types.ErrAborted)
		}

		payload, err := e.attempt(ctx, drv, action)
		if err == nil {
			duration := time.Since(start)
			e.publish(types.NewStepCompletedEvent(runID, stepIndex, stepName, payload, duration))
			return types.ExecutionResult{
				Success:  true,
				Data:     payload,
				Duration: duration,
				Retries:  attempt,
			}
		}

		if errors.Is(err, types.ErrAborted) {
			return e.fail(runID, stepIndex, stepName, start, attempt, types.ErrAborted)
		}

		lastErr = err
		if errors.Is(err, errMalformedAction) {
			// Fail fast: report only the attempts actually consumed.
			retries = attempt
			break
		}

		if attempt < e.cfg.MaxRetries {
			e.publish(types.NewStepRetryingEvent(runID, stepIndex, stepName, attempt+1, err))
			if e.log != nil {
				e.log.Debugf("run %s step %d attempt %d failed, retrying: %v", runID, stepIndex, attempt+1, err)
			}
			if !e.sleep(ctx, e.cfg.Backoff.Delay(attempt+1)) {
				return e.fail(runID, stepIndex, stepName, start, attempt, types.ErrAborted)
			}
		}
	}

	err := lastErr
	if !errors.Is(err, errMalformedAction) {
		err = fmt.Errorf("%w: %v", types.ErrRetriesExhausted, lastErr)
	}
	return e.fail(runID, stepIndex, stepName, start, retries, err)
}

// attempt races one execution of the action against the per-action timeout
// and the run's cancellation signal, taking whichever settles first. The
// action goroutine is left to finish on its own if it loses the race; the
// drained channel keeps it from leaking.
func (e *Executor) attempt(ctx context.Context, drv driver.PageDriver, action types.Action) (map[string]any, error) {
	type outcome struct {
		data map[string]any
		err  error
	}

	timer := time.NewTimer(e.cfg.ActionTimeout)
	defer timer.Stop()

	done := make(chan outcome, 1)
	go func() {
		data, err := e.dispatch(ctx, drv, action)
		done <- outcome{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, types.ErrAborted
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v", types.ErrActionTimeout, e.cfg.ActionTimeout)
	case o := <-done:
		return o.data, o.err
	}
}

// sleep waits for the retry delay, returning false if the cancellation
// signal fired first.
func (e *Executor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) fail(runID string, stepIndex int, stepName string, start time.Time, retries int, err error) types.ExecutionResult {
	if !errors.Is(err, types.ErrAborted) {
		e.publish(types.NewStepFailedEvent(runID, stepIndex, stepName, err))
	}
	return types.ExecutionResult{
		Success:  false,
		Err:      err,
		Duration: time.Since(start),
		Retries:  retries,
	}
}

func (e *Executor) publish(event *types.AutomationEvent) {
	if e.bus != nil {
		e.bus.Publish(event)
	}
}
