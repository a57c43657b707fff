// Package api exposes the engine's command surface over HTTP: run creation
// and control, approval decisions, and a server-sent event stream bridging
// the in-process bus to UI clients.
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/entrhq/relay/pkg/automation/compliance"
	"github.com/entrhq/relay/pkg/automation/orchestrator"
	"github.com/entrhq/relay/pkg/events"
	"github.com/entrhq/relay/pkg/logging"
	"github.com/entrhq/relay/pkg/profiles"
)

// Handler carries the collaborators the HTTP endpoints act on.
type Handler struct {
	orch     *orchestrator.Orchestrator
	advisor  *compliance.Advisor
	profiles *profiles.Store
	bus      *events.Bus
	log      *logging.Logger
}

// NewHandler creates the API handler. The advisor and profile store may be
// nil for hosts that do not use them.
func NewHandler(orch *orchestrator.Orchestrator, advisor *compliance.Advisor, store *profiles.Store, bus *events.Bus, log *logging.Logger) *Handler {
	return &Handler{
		orch:     orch,
		advisor:  advisor,
		profiles: store,
		bus:      bus,
		log:      log,
	}
}

// RegisterRoutes attaches all endpoints to the echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/runs", h.CreateRun)
	e.GET("/api/runs", h.ListRuns)
	e.GET("/api/runs/:run_id", h.GetRun)
	e.POST("/api/runs/:run_id/stop", h.StopRun)
	e.POST("/api/runs/stop", h.StopAllRuns)
	e.POST("/api/runs/:run_id/pause", h.PauseRun)
	e.POST("/api/runs/:run_id/resume", h.ResumeRun)
	e.POST("/api/runs/:run_id/approve", h.ApproveRun)
	e.POST("/api/runs/:run_id/reject", h.RejectRun)
	e.GET("/api/resources/:resource_id/busy", h.ResourceBusy)
	e.GET("/api/events", h.StreamEvents)

	if h.profiles != nil {
		e.GET("/api/profiles", h.ListProfiles)
		e.PUT("/api/profiles/:profile_id", h.UpsertProfile)
		e.POST("/api/profiles/:profile_id/logged_in", h.SetProfileLoggedIn)
		e.DELETE("/api/profiles/:profile_id", h.DeleteProfile)
	}
}

// envelope is the uniform response shape: {success, error?} with an
// optional payload on success.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(data any) envelope {
	return envelope{Success: true, Data: data}
}

func fail(err error) envelope {
	return envelope{Success: false, Error: err.Error()}
}

func failMsg(msg string) envelope {
	return envelope{Success: false, Error: msg}
}
