package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/entrhq/relay/pkg/events"
	"github.com/entrhq/relay/pkg/types"
)

// eventView is the wire form of a bus event on the SSE stream.
type eventView struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id,omitempty"`
	StepIndex int                    `json:"step_index"`
	StepName  string                 `json:"step_name,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Attempt   int                    `json:"attempt,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Approval  *approvalView          `json:"approval,omitempty"`
	Result    map[string]any         `json:"result,omitempty"`
}

type approvalView struct {
	ApprovalID  string `json:"approval_id"`
	ActionLabel string `json:"action_label,omitempty"`
	Target      string `json:"target,omitempty"`
	Content     string `json:"content,omitempty"`
	TimeoutMs   int64  `json:"timeout_ms,omitempty"`
}

func viewOfEvent(e *types.AutomationEvent) eventView {
	view := eventView{
		Type:      string(e.Type),
		Timestamp: e.Timestamp,
		RunID:     e.RunID,
		StepIndex: e.StepIndex,
		StepName:  e.StepName,
		Status:    string(e.Status),
		Reason:    e.Reason,
		Attempt:   e.Attempt,
		Result:    e.Result,
	}
	if e.Error != nil {
		view.Error = e.Error.Error()
	}
	if e.Approval != nil {
		view.Approval = &approvalView{
			ApprovalID:  e.Approval.ApprovalID,
			ActionLabel: e.Approval.ActionLabel,
			Target:      e.Approval.Preview.Target,
			Content:     e.Approval.Preview.Content,
			TimeoutMs:   e.Approval.Timeout.Milliseconds(),
		}
	}
	return view
}

// sseSink forwards bus events to one connected SSE client. Alive follows
// the request context, so a client that went away stops receiving without
// anyone upstream noticing.
type sseSink struct {
	ch   chan *types.AutomationEvent
	done <-chan struct{}
}

func (s *sseSink) Alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *sseSink) Deliver(event *types.AutomationEvent) error {
	select {
	case s.ch <- event:
		return nil
	case <-s.done:
		return types.ErrSinkUnavailable
	default:
		// Slow client: drop rather than block the publisher.
		return types.ErrSinkUnavailable
	}
}

// StreamEvents bridges the event bus to the client as server-sent events.
func (h *Handler) StreamEvents(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	sink := &sseSink{
		ch:   make(chan *types.AutomationEvent, 64),
		done: ctx.Done(),
	}
	adapter := events.NewSinkAdapter(h.bus, sink, h.log)
	defer adapter.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-sink.ch:
			payload, err := json.Marshal(viewOfEvent(event))
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
