package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/entrhq/relay/pkg/types"
)

// createRunRequest is the wire form of a run submission.
type createRunRequest struct {
	Type       string     `json:"type"`
	ResourceID string     `json:"resource_id"`
	Target     string     `json:"target"`
	Steps      []stepSpec `json:"steps"`
}

// stepSpec is the wire form of one step.
type stepSpec struct {
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	RequiresApproval bool       `json:"requires_approval"`
	Action           actionSpec `json:"action"`
}

// actionSpec is the wire form of an action: a kind tag plus the union of
// every variant's parameters. toAction narrows it to the typed variant.
type actionSpec struct {
	Kind       string      `json:"kind"`
	URL        string      `json:"url,omitempty"`
	Selector   string      `json:"selector,omitempty"`
	Fallbacks  []string    `json:"fallbacks,omitempty"`
	Text       string      `json:"text,omitempty"`
	DelayMs    int         `json:"delay_ms,omitempty"`
	Direction  string      `json:"direction,omitempty"`
	Amount     int         `json:"amount,omitempty"`
	Fields     []fieldSpec `json:"fields,omitempty"`
	FullPage   bool        `json:"full_page,omitempty"`
	Value      string      `json:"value,omitempty"`
	TimeoutMs  int         `json:"timeout_ms,omitempty"`
	DurationMs int         `json:"duration_ms,omitempty"`
}

type fieldSpec struct {
	Name      string `json:"name"`
	Selector  string `json:"selector"`
	Attribute string `json:"attribute,omitempty"`
}

func (s actionSpec) toAction() (types.Action, error) {
	switch types.ActionKind(s.Kind) {
	case types.ActionKindNavigate:
		if s.URL == "" {
			return nil, fmt.Errorf("navigate action requires url")
		}
		return types.NavigateAction{URL: s.URL}, nil

	case types.ActionKindClick:
		if s.Selector == "" {
			return nil, fmt.Errorf("click action requires selector")
		}
		return types.ClickAction{Selector: s.Selector, Fallbacks: s.Fallbacks}, nil

	case types.ActionKindType:
		if s.Selector == "" {
			return nil, fmt.Errorf("type action requires selector")
		}
		return types.TypeAction{
			Selector: s.Selector,
			Text:     s.Text,
			Delay:    time.Duration(s.DelayMs) * time.Millisecond,
		}, nil

	case types.ActionKindScroll:
		return types.ScrollAction{Direction: s.Direction, Amount: s.Amount, Selector: s.Selector}, nil

	case types.ActionKindExtract:
		if len(s.Fields) == 0 {
			return nil, fmt.Errorf("extract action requires fields")
		}
		fields := make([]types.ExtractField, len(s.Fields))
		for i, f := range s.Fields {
			fields[i] = types.ExtractField{Name: f.Name, Selector: f.Selector, Attribute: f.Attribute}
		}
		return types.ExtractAction{Fields: fields}, nil

	case types.ActionKindScreenshot:
		return types.ScreenshotAction{FullPage: s.FullPage}, nil

	case types.ActionKindWait:
		return types.WaitAction{
			Selector: s.Selector,
			Timeout:  time.Duration(s.TimeoutMs) * time.Millisecond,
			Duration: time.Duration(s.DurationMs) * time.Millisecond,
		}, nil

	case types.ActionKindHover:
		if s.Selector == "" {
			return nil, fmt.Errorf("hover action requires selector")
		}
		return types.HoverAction{Selector: s.Selector}, nil

	case types.ActionKindSelect:
		if s.Selector == "" {
			return nil, fmt.Errorf("select action requires selector")
		}
		return types.SelectAction{Selector: s.Selector, Value: s.Value}, nil

	default:
		return nil, fmt.Errorf("unknown action kind: %q", s.Kind)
	}
}

// runView is the wire form of a run in responses.
type runView struct {
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	ResourceID       string     `json:"resource_id"`
	Target           string     `json:"target,omitempty"`
	Status           string     `json:"status"`
	CurrentStepIndex int        `json:"current_step_index"`
	Steps            []stepView `json:"steps"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

type stepView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	Status           string `json:"status"`
	RequiresApproval bool   `json:"requires_approval"`
}

func viewOf(run *types.Run) runView {
	steps := make([]stepView, len(run.Steps))
	for i, s := range run.Steps {
		steps[i] = stepView{
			ID:               s.ID,
			Name:             s.Name,
			Description:      s.Description,
			Status:           string(s.Status),
			RequiresApproval: s.RequiresApproval,
		}
	}
	view := runView{
		ID:               run.ID,
		Type:             run.Type,
		ResourceID:       run.ResourceID,
		Target:           run.Target,
		Status:           string(run.Status),
		CurrentStepIndex: run.CurrentStepIndex,
		Steps:            steps,
		Error:            run.Error,
		StartedAt:        run.StartedAt,
	}
	if !run.EndedAt.IsZero() {
		ended := run.EndedAt
		view.EndedAt = &ended
	}
	return view
}

// CreateRun submits a new run. The compliance advisor is consulted for
// sensitive run types before the run is created; enforcement here is host
// policy, not an engine invariant.
func (h *Handler) CreateRun(c echo.Context) error {
	var req createRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, failMsg("invalid request body"))
	}
	if req.ResourceID == "" {
		return c.JSON(http.StatusBadRequest, failMsg("resource_id is required"))
	}
	if len(req.Steps) == 0 {
		return c.JSON(http.StatusBadRequest, failMsg("at least one step is required"))
	}

	if h.advisor != nil {
		decision := h.advisor.CheckLimit(req.Type)
		if !decision.Allowed {
			return c.JSON(http.StatusTooManyRequests, failMsg(fmt.Sprintf(
				"limit reached for %s: %d of %d used this window", req.Type, decision.Used, decision.Limit)))
		}
	}

	steps := make([]*types.Step, len(req.Steps))
	for i, s := range req.Steps {
		action, err := s.Action.toAction()
		if err != nil {
			return c.JSON(http.StatusBadRequest, failMsg(fmt.Sprintf("step %d: %v", i, err)))
		}
		steps[i] = &types.Step{
			Name:             s.Name,
			Description:      s.Description,
			RequiresApproval: s.RequiresApproval,
			Action:           action,
		}
	}

	target := req.Target
	if target == "" && h.profiles != nil {
		if p, err := h.profiles.Get(c.Request().Context(), req.ResourceID); err == nil {
			target = p.Name
		}
	}

	run, err := h.orch.StartRun(req.Type, req.ResourceID, target, steps)
	if err != nil {
		if errors.Is(err, types.ErrBusyResource) {
			return c.JSON(http.StatusConflict, failMsg("busy"))
		}
		return c.JSON(http.StatusInternalServerError, fail(err))
	}

	if h.advisor != nil {
		h.advisor.Record(req.Type)
	}
	if h.profiles != nil {
		_ = h.profiles.Touch(c.Request().Context(), req.ResourceID)
	}

	return c.JSON(http.StatusOK, ok(viewOf(run)))
}

// ListRuns returns all active runs.
func (h *Handler) ListRuns(c echo.Context) error {
	runs := h.orch.ActiveRuns()
	views := make([]runView, len(runs))
	for i, run := range runs {
		views[i] = viewOf(run)
	}
	return c.JSON(http.StatusOK, ok(views))
}

// GetRun returns one active run.
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.orch.GetRun(c.Param("run_id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fail(err))
	}
	return c.JSON(http.StatusOK, ok(viewOf(run)))
}

// StopRun stops one run. Idempotent: stopping an unknown or finished run
// succeeds.
func (h *Handler) StopRun(c echo.Context) error {
	_ = h.orch.Stop(c.Param("run_id"))
	return c.JSON(http.StatusOK, ok(nil))
}

// StopAllRuns stops every active run.
func (h *Handler) StopAllRuns(c echo.Context) error {
	h.orch.StopAll()
	return c.JSON(http.StatusOK, ok(nil))
}

// PauseRun suspends a run at its next step boundary.
func (h *Handler) PauseRun(c echo.Context) error {
	if err := h.orch.Pause(c.Param("run_id")); err != nil {
		return c.JSON(http.StatusNotFound, fail(err))
	}
	return c.JSON(http.StatusOK, ok(nil))
}

// ResumeRun continues a paused run at the same step.
func (h *Handler) ResumeRun(c echo.Context) error {
	if err := h.orch.Resume(c.Param("run_id")); err != nil {
		return c.JSON(http.StatusNotFound, fail(err))
	}
	return c.JSON(http.StatusOK, ok(nil))
}

// ResourceBusy reports whether a resource's lock is held.
func (h *Handler) ResourceBusy(c echo.Context) error {
	busy := h.orch.IsResourceBusy(c.Param("resource_id"))
	return c.JSON(http.StatusOK, ok(map[string]bool{"busy": busy}))
}
