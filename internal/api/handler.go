// Package api exposes the intent store and regression planner over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"qanerd/internal/agent"
	"qanerd/internal/intent"
	"qanerd/internal/logging"
	"qanerd/internal/retrieval"
	"qanerd/internal/store"
)

// IntentStore is the store surface the API needs.
type IntentStore interface {
	Upsert(ctx context.Context, in intent.ManualTestIntent) error
	Get(ctx context.Context, id string) (intent.ManualTestIntent, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]intent.ManualTestIntent, error)
	Query(ctx context.Context, text string, k int) ([]intent.RetrievedIntent, error)
	Stats(ctx context.Context) (*store.Stats, error)
	HealthCheck(ctx context.Context) error
}

// PlanRunner produces regression plans. *agent.Agent implements it.
type PlanRunner interface {
	Run(ctx context.Context, change intent.ChangeDescription, k int) (*agent.Report, error)
}

// Handler serves the intent and planning endpoints.
type Handler struct {
	store  IntentStore
	runner PlanRunner
}

// NewHandler creates a handler.
func NewHandler(store IntentStore, runner PlanRunner) *Handler {
	return &Handler{store: store, runner: runner}
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Text string `json:"text"`
	K    int    `json:"k"`
}

// PlanRequest is the body of POST /v1/plan.
type PlanRequest struct {
	Change string `json:"change"`
	K      int    `json:"k"`
}

// writeError maps domain errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, intent.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, intent.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, intent.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logging.APIError("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	body := gin.H{"error": err.Error()}
	var ierr *intent.Error
	if errors.As(err, &ierr) {
		body["code"] = string(ierr.Code)
	}
	c.JSON(status, body)
}

// Health reports whether the store and its embedding engine are reachable.
func (h *Handler) Health(c *gin.Context) {
	if err := h.store.HealthCheck(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PutIntent creates or replaces the intent named in the path.
func (h *Handler) PutIntent(c *gin.Context) {
	var in intent.ManualTestIntent
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if in.ID != "" && strings.TrimSpace(in.ID) != id {
		writeError(c, intent.NewValidationError("body id %q does not match path id %q", in.ID, id))
		return
	}
	in.ID = id

	if err := h.store.Upsert(c.Request.Context(), in); err != nil {
		writeError(c, err)
		return
	}
	stored, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// GetIntent returns one intent.
func (h *Handler) GetIntent(c *gin.Context) {
	in, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, in)
}

// DeleteIntent removes one intent.
func (h *Handler) DeleteIntent(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListIntents returns every intent.
func (h *Handler) ListIntents(c *gin.Context) {
	intents, err := h.store.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if intents == nil {
		intents = []intent.ManualTestIntent{}
	}
	c.JSON(http.StatusOK, gin.H{"intents": intents})
}

// Stats returns store statistics.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.store.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Query runs a similarity query.
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	k := req.K
	if k <= 0 {
		k = retrieval.DefaultK
	}
	results, err := h.store.Query(c.Request.Context(), req.Text, k)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Plan produces a regression plan for a change description.
func (h *Handler) Plan(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := h.runner.Run(c.Request.Context(), intent.ChangeDescription{RawText: req.Change}, req.K)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("X-Request-ID", report.RequestID)
	c.JSON(http.StatusOK, report)
}
