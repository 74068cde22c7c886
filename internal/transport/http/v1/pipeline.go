package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
)

// TriggerRun starts a pipeline run.
// POST /v1/pipeline/runs
func (h *Handler) TriggerRun(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.TriggerRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
	}
	if req.Kind == "" {
		req.Kind = domain.RunKindFull
	}
	if !req.Kind.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown run kind: " + string(req.Kind)})
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = domain.TriggerManual
	}
	if !req.TriggeredBy.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown trigger: " + string(req.TriggeredBy)})
	}

	run, err := h.pipeline.Start(ctx, req.Kind, req.Limits, req.TriggeredBy)
	if err != nil {
		var conflict *pipeline.ConflictError
		if errors.As(err, &conflict) {
			return c.JSON(http.StatusConflict, domain.ConflictResponse{
				Error:       "pipeline already running",
				ActiveRunID: conflict.ActiveRunID,
			})
		}
		h.logger.Error("failed to start run", "kind", req.Kind, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, domain.TriggerResponse{
		RunID:  run.RunID,
		Kind:   run.Kind,
		Status: run.Status,
	})
}

// GetStatus reports the active and last completed runs.
// GET /v1/pipeline/status
func (h *Handler) GetStatus(c echo.Context) error {
	status, err := h.pipeline.Status(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, status)
}

// ListRuns returns one page of run history.
// GET /v1/pipeline/runs?page=&limit=
func (h *Handler) ListRuns(c echo.Context) error {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 20)

	history, err := h.pipeline.History(c.Request().Context(), page, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, history)
}

// GetRun returns one run record.
// GET /v1/pipeline/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.pipeline.Get(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		if errors.Is(err, pipeline.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, run)
}

// CancelRun asks an active run to stop.
// POST /v1/pipeline/runs/:run_id/cancel
func (h *Handler) CancelRun(c echo.Context) error {
	run, err := h.pipeline.Cancel(c.Request().Context(), c.Param("run_id"))
	switch {
	case errors.Is(err, pipeline.ErrRunNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	case errors.Is(err, pipeline.ErrRunNotActive):
		return c.JSON(http.StatusConflict, domain.CancelResponse{
			RunID:   run.RunID,
			Status:  run.Status,
			Message: "run already finished",
		})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	msg := "cancellation requested; the run stops before its next stage"
	if run.Status == domain.RunStatusCancelled {
		msg = "run cancelled"
	}
	return c.JSON(http.StatusAccepted, domain.CancelResponse{
		RunID:   run.RunID,
		Status:  run.Status,
		Message: msg,
	})
}

func queryInt(c echo.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.QueryParam(name)); err == nil {
		return v
	}
	return def
}
