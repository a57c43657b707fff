package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/relay/pkg/automation/backoff"
	"github.com/entrhq/relay/pkg/events"
	"github.com/entrhq/relay/pkg/types"
)

// fakeDriver scripts driver behavior per test. Unset functions succeed.
type fakeDriver struct {
	navigate func(url string) error
	click    func(selector string) error
	extract  func(fields []types.ExtractField) (map[string]string, error)

	clickCalls []string
}

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	if f.navigate != nil {
		return f.navigate(url)
	}
	return nil
}

func (f *fakeDriver) Click(_ context.Context, selector string) error {
	f.clickCalls = append(f.clickCalls, selector)
	if f.click != nil {
		return f.click(selector)
	}
	return nil
}

func (f *fakeDriver) Type(_ context.Context, _, _ string, _ time.Duration) error { return nil }
func (f *fakeDriver) Scroll(_ context.Context, _ string, _ int, _ string) error  { return nil }

func (f *fakeDriver) Extract(_ context.Context, fields []types.ExtractField) (map[string]string, error) {
	if f.extract != nil {
		return f.extract(fields)
	}
	return map[string]string{}, nil
}

func (f *fakeDriver) Screenshot(_ context.Context, _ bool) ([]byte, error)              { return []byte{1}, nil }
func (f *fakeDriver) WaitForSelector(_ context.Context, _ string, _ time.Duration) error { return nil }
func (f *fakeDriver) WaitForTimeout(_ context.Context, _ time.Duration) error            { return nil }
func (f *fakeDriver) Hover(_ context.Context, _ string) error                            { return nil }
func (f *fakeDriver) Select(_ context.Context, _, _ string) error                        { return nil }
func (f *fakeDriver) CurrentURL() string                                                 { return "https://example.com/" }
func (f *fakeDriver) Title() (string, error)                                             { return "Example", nil }

func newTestExecutor(bus *events.Bus, maxRetries int) *Executor {
	return New(bus, Config{
		MaxRetries:    maxRetries,
		ActionTimeout: time.Second,
		Backoff:       backoff.NewConstant(time.Millisecond),
	}, nil)
}

func TestExecuteSucceedsFirstTry(t *testing.T) {
	exec := newTestExecutor(events.NewBus(), 2)
	drv := &fakeDriver{}

	result := exec.Execute(context.Background(), drv, "run-1", 0, "open", types.NavigateAction{URL: "https://example.com/"})

	require.True(t, result.Success)
	assert.Equal(t, 0, result.Retries)
	assert.Equal(t, "https://example.com/", result.Data["url"])
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	bus := events.NewBus()
	var retryAttempts []int
	bus.Subscribe(func(e *types.AutomationEvent) bool {
		return e.Type == types.EventTypeStepRetrying
	}, func(e *types.AutomationEvent) {
		retryAttempts = append(retryAttempts, e.Attempt)
	})

	exec := newTestExecutor(bus, 3)
	calls := 0
	drv := &fakeDriver{click: func(string) error {
		calls++
		if calls <= 2 {
			return errors.New("element not ready")
		}
		return nil
	}}

	result := exec.Execute(context.Background(), drv, "run-1", 0, "press", types.ClickAction{Selector: "#go"})

	require.True(t, result.Success)
	assert.Equal(t, 2, result.Retries)
	assert.Equal(t, []int{1, 2}, retryAttempts)
}

func TestExecuteRetriesExhausted(t *testing.T) {
	exec := newTestExecutor(events.NewBus(), 2)
	drv := &fakeDriver{click: func(string) error {
		return errors.New("element never appears")
	}}

	result := exec.Execute(context.Background(), drv, "run-1", 0, "press", types.ClickAction{Selector: "#go"})

	require.False(t, result.Success)
	assert.ErrorIs(t, result.Err, types.ErrRetriesExhausted)
	assert.Equal(t, 2, result.Retries)
	assert.Len(t, drv.clickCalls, 3)
}

func TestExecuteAbortedBeforeFirstAttempt(t *testing.T) {
	exec := newTestExecutor(events.NewBus(), 2)
	drv := &fakeDriver{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := exec.Execute(ctx, drv, "run-1", 0, "open", types.NavigateAction{URL: "https://example.com/"})

	require.False(t, result.Success)
	assert.ErrorIs(t, result.Err, types.ErrAborted)
	assert.Equal(t, 0, result.Retries)
	assert.Empty(t, drv.clickCalls)
}

func TestExecuteAbortedMidAction(t *testing.T) {
	exec := newTestExecutor(events.NewBus(), 2)

	started := make(chan struct{})
	drv := &fakeDriver{navigate: func(string) error {
		close(started)
		time.Sleep(200 * time.Millisecond)
		return nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result := exec.Execute(ctx, drv, "run-1", 0, "open", types.NavigateAction{URL: "https://example.com/"})

	require.False(t, result.Success)
	assert.ErrorIs(t, result.Err, types.ErrAborted)
}

func TestExecuteActionTimeout(t *testing.T) {
	exec := New(events.NewBus(), Config{
		MaxRetries:    0,
		ActionTimeout: 30 * time.Millisecond,
		Backoff:       backoff.NewConstant(0),
	}, nil)

	drv := &fakeDriver{navigate: func(string) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	}}

	result := exec.Execute(context.Background(), drv, "run-1", 0, "open", types.NavigateAction{URL: "https://example.com/"})

	require.False(t, result.Success)
	assert.ErrorIs(t, result.Err, types.ErrRetriesExhausted)
	assert.Contains(t, result.Err.Error(), "timed out")
}

func TestClickUsesFallbacksInOrder(t *testing.T) {
	exec := newTestExecutor(events.NewBus(), 0)
	drv := &fakeDriver{click: func(selector string) error {
		if selector == "#fallback-2" {
			return nil
		}
		return fmt.Errorf("no element matches %s", selector)
	}}

	result := exec.Execute(context.Background(), drv, "run-1", 0, "press", types.ClickAction{
		Selector:  "#primary",
		Fallbacks: []string{"#fallback-1", "#fallback-2"},
	})

	require.True(t, result.Success)
	assert.Equal(t, "#fallback-2", result.Data["selector"])
	assert.Equal(t, []string{"#primary", "#fallback-1", "#fallback-2"}, drv.clickCalls)
}

func TestClickAggregatesAllFailures(t *testing.T) {
	exec := newTestExecutor(events.NewBus(), 0)
	drv := &fakeDriver{click: func(selector string) error {
		return errors.New("not found")
	}}

	result := exec.Execute(context.Background(), drv, "run-1", 0, "press", types.ClickAction{
		Selector:  "#primary",
		Fallbacks: []string{"#fallback"},
	})

	require.False(t, result.Success)
	assert.Contains(t, result.Err.Error(), "all 2 click selectors failed")
	assert.Contains(t, result.Err.Error(), "#primary")
	assert.Contains(t, result.Err.Error(), "#fallback")
}

func TestExtractPartialSucceedsWithErrors(t *testing.T) {
	exec := newTestExecutor(events.NewBus(), 0)
	drv := &fakeDriver{extract: func([]types.ExtractField) (map[string]string, error) {
		return map[string]string{"name": "Ada"}, nil
	}}

	result := exec.Execute(context.Background(), drv, "run-1", 0, "read", types.ExtractAction{
		Fields: []types.ExtractField{
			{Name: "name", Selector: ".name"},
			{Name: "title", Selector: ".title"},
		},
	})

	require.True(t, result.Success)
	data := result.Data["data"].(map[string]string)
	assert.Equal(t, "Ada", data["name"])
	errs := result.Data["errors"].([]string)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "title")
}

func TestExtractNoFieldsFoundFails(t *testing.T) {
	exec := newTestExecutor(events.NewBus(), 0)
	drv := &fakeDriver{extract: func([]types.ExtractField) (map[string]string, error) {
		return map[string]string{}, nil
	}}

	result := exec.Execute(context.Background(), drv, "run-1", 0, "read", types.ExtractAction{
		Fields: []types.ExtractField{{Name: "name", Selector: ".name"}},
	})

	require.False(t, result.Success)
	assert.Contains(t, result.Err.Error(), "extraction found none")
}

// bogusAction is an Action variant the dispatcher does not know.
type bogusAction struct{}

func (bogusAction) Kind() types.ActionKind { return "bogus" }

func TestMalformedActionFailsFast(t *testing.T) {
	bus := events.NewBus()
	var retries int
	bus.Subscribe(func(e *types.AutomationEvent) bool {
		return e.Type == types.EventTypeStepRetrying
	}, func(*types.AutomationEvent) { retries++ })

	exec := newTestExecutor(bus, 3)
	result := exec.Execute(context.Background(), &fakeDriver{}, "run-1", 0, "bad", bogusAction{})

	require.False(t, result.Success)
	assert.ErrorIs(t, result.Err, errMalformedAction)
	assert.Equal(t, 0, retries)
	// One attempt ran; no extra attempts were consumed.
	assert.Equal(t, 0, result.Retries)
}

func TestExecutePublishesStepEvents(t *testing.T) {
	bus := events.NewBus()
	var seen []types.EventType
	bus.Subscribe(nil, func(e *types.AutomationEvent) {
		seen = append(seen, e.Type)
	})

	exec := newTestExecutor(bus, 0)
	exec.Execute(context.Background(), &fakeDriver{}, "run-1", 0, "open", types.NavigateAction{URL: "https://example.com/"})

	require.Equal(t, []types.EventType{
		types.EventTypeStepStarted,
		types.EventTypeStepCompleted,
	}, seen)
}
