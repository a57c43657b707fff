// Package console is the terminal surface where a human watches runs and
// answers approval requests. It subscribes to the event bus and renders a
// live feed plus the queue of pending confirmations.
package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/relay/pkg/events"
	"github.com/entrhq/relay/pkg/types"
)

const feedSize = 12

// Controller is the slice of the orchestrator the console drives.
type Controller interface {
	Approve(runID string) error
	Reject(runID string) error
	Stop(runID string) error
}

// eventMsg wraps a bus event for the bubbletea update loop.
type eventMsg struct {
	event *types.AutomationEvent
}

// keyMap defines the console's key bindings.
type keyMap struct {
	Approve key.Binding
	Reject  key.Binding
	Stop    key.Binding
	Up      key.Binding
	Down    key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Approve: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "approve")),
		Reject:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reject")),
		Stop:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop run")),
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	feedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Model is the console's bubbletea model.
type Model struct {
	controller Controller
	eventCh    chan *types.AutomationEvent
	unsub      func()

	pending  []*types.ApprovalRequest
	selected int
	feed     []string
	keys     keyMap
	err      string
}

// New creates a console attached to the bus and controller.
func New(bus *events.Bus, controller Controller) *Model {
	m := &Model{
		controller: controller,
		eventCh:    make(chan *types.AutomationEvent, 64),
		keys:       defaultKeyMap(),
	}
	m.unsub = bus.Subscribe(nil, func(e *types.AutomationEvent) {
		select {
		case m.eventCh <- e:
		default:
			// Feed is cosmetic; never block the publisher.
		}
	})
	return m
}

// Init starts listening for bus events.
func (m *Model) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return eventMsg{event: <-m.eventCh}
	}
}

// Update handles key presses and incoming bus events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.apply(msg.event)
		return m, m.waitForEvent()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.unsub != nil {
				m.unsub()
			}
			return m, tea.Quit

		case key.Matches(msg, m.keys.Up):
			if m.selected > 0 {
				m.selected--
			}

		case key.Matches(msg, m.keys.Down):
			if m.selected < len(m.pending)-1 {
				m.selected++
			}

		case key.Matches(msg, m.keys.Approve):
			m.decide(true)

		case key.Matches(msg, m.keys.Reject):
			m.decide(false)

		case key.Matches(msg, m.keys.Stop):
			if req := m.selectedRequest(); req != nil {
				if err := m.controller.Stop(req.RunID); err != nil {
					m.err = err.Error()
				}
			}
		}
	}
	return m, nil
}

func (m *Model) selectedRequest() *types.ApprovalRequest {
	if m.selected < 0 || m.selected >= len(m.pending) {
		return nil
	}
	return m.pending[m.selected]
}

func (m *Model) decide(approve bool) {
	req := m.selectedRequest()
	if req == nil {
		return
	}

	var err error
	if approve {
		err = m.controller.Approve(req.RunID)
	} else {
		err = m.controller.Reject(req.RunID)
	}
	if err != nil {
		m.err = err.Error()
		// The gate may have already resolved (timeout); drop the stale entry.
		m.removePending(req.RunID)
	}
}

// apply folds one bus event into the console state.
func (m *Model) apply(e *types.AutomationEvent) {
	switch e.Type {
	case types.EventTypeNeedsApproval:
		if e.Approval != nil {
			m.pending = append(m.pending, e.Approval)
		}
	case types.EventTypeApprovalGranted, types.EventTypeApprovalRejected, types.EventTypeApprovalTimeout:
		m.removePending(e.RunID)
	}

	m.feed = append(m.feed, formatEvent(e))
	if len(m.feed) > feedSize {
		m.feed = m.feed[len(m.feed)-feedSize:]
	}
}

func (m *Model) removePending(runID string) {
	kept := m.pending[:0]
	for _, req := range m.pending {
		if req.RunID != runID {
			kept = append(kept, req)
		}
	}
	m.pending = kept
	if m.selected >= len(m.pending) {
		m.selected = len(m.pending) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func formatEvent(e *types.AutomationEvent) string {
	ts := e.Timestamp.Format("15:04:05")
	short := shortID(e.RunID)
	switch e.Type {
	case types.EventTypeStepStarted:
		return fmt.Sprintf("%s  %s step %d %q started", ts, short, e.StepIndex, e.StepName)
	case types.EventTypeStepCompleted:
		return fmt.Sprintf("%s  %s step %d %q done in %s", ts, short, e.StepIndex, e.StepName, e.Duration.Round(time.Millisecond))
	case types.EventTypeStepRetrying:
		return fmt.Sprintf("%s  %s step %d retry %d: %v", ts, short, e.StepIndex, e.Attempt, e.Error)
	case types.EventTypeStepFailed:
		return fmt.Sprintf("%s  %s step %d failed: %v", ts, short, e.StepIndex, e.Error)
	case types.EventTypeRunFinished:
		if e.Reason != "" {
			return fmt.Sprintf("%s  %s finished: %s (%s)", ts, short, e.Status, e.Reason)
		}
		return fmt.Sprintf("%s  %s finished: %s", ts, short, e.Status)
	case types.EventTypeNeedsApproval:
		return fmt.Sprintf("%s  %s waiting for approval", ts, short)
	default:
		return fmt.Sprintf("%s  %s %s", ts, short, e.Type)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// View renders the console.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Relay — pending approvals"))
	b.WriteString("\n\n")

	if len(m.pending) == 0 {
		b.WriteString(helpStyle.Render("  (none — runs proceed automatically until a gated step)"))
		b.WriteString("\n")
	}
	for i, req := range m.pending {
		line := fmt.Sprintf("  %s → %s: %s", shortID(req.RunID), req.Preview.Target, req.Preview.Content)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("▸" + line))
		} else {
			b.WriteString(pendingStyle.Render(" " + line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Activity"))
	b.WriteString("\n")
	for _, line := range m.feed {
		b.WriteString(feedStyle.Render("  " + line))
		b.WriteString("\n")
	}

	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("  " + m.err))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  a approve · r reject · s stop run · ↑/↓ select · q quit"))
	b.WriteString("\n")
	return b.String()
}
