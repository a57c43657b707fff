package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/entrhq/relay/pkg/types"
)

// ApproveRun confirms the run's pending approval so it can proceed with the
// gated step.
func (h *Handler) ApproveRun(c echo.Context) error {
	runID := c.Param("run_id")
	if err := h.orch.Approve(runID); err != nil {
		if errors.Is(err, types.ErrNoPendingApproval) {
			return c.JSON(http.StatusNotFound, fail(err))
		}
		return c.JSON(http.StatusInternalServerError, fail(err))
	}
	if h.log != nil {
		h.log.Infof("run %s approved", runID)
	}
	return c.JSON(http.StatusOK, ok(nil))
}

// RejectRun declines the run's pending approval; the gated step is never
// executed.
func (h *Handler) RejectRun(c echo.Context) error {
	runID := c.Param("run_id")
	if err := h.orch.Reject(runID); err != nil {
		if errors.Is(err, types.ErrNoPendingApproval) {
			return c.JSON(http.StatusNotFound, fail(err))
		}
		return c.JSON(http.StatusInternalServerError, fail(err))
	}
	if h.log != nil {
		h.log.Infof("run %s rejected", runID)
	}
	return c.JSON(http.StatusOK, ok(nil))
}
