package analysis

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/agents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/deals"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/orchestrator"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/quota"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/sessions"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/server/middleware"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analysis service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/deals/:id/analyses", h.startRun)
	rg.GET("/deals/:id/analyses", h.listRuns)
	rg.GET("/analyses/:id", h.getRun)
	rg.POST("/analyses/:id/cancel", h.cancelRun)
}

type startRunRequest struct {
	Mode  string          `json:"mode"`
	Facts json.RawMessage `json:"facts"`
}

func (h *Handler) startRun(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	dealID := c.Param("id")

	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	mode, err := agents.ParseMode(req.Mode)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	session, err := h.Svc.Run(ctx, userID, dealID, mode, req.Facts)
	if err != nil {
		var unresolvable *orchestrator.UnresolvableDependencyError
		var cycle *orchestrator.DependencyCycleError
		switch {
		case errors.Is(err, deals.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "deal not found", nil)
		case errors.As(err, &unresolvable), errors.As(err, &cycle):
			respond.Error(c, http.StatusUnprocessableEntity, "dependency_error", err.Error(), nil)
		case errors.Is(err, quota.ErrLimitReached):
			respond.Error(c, http.StatusTooManyRequests, "limit_reached", "You've reached your analysis limit. Upgrade your plan to continue.", []map[string]string{
				{"field": "quota", "issue": "limit_reached"},
			})
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	c.Set("sessionId", session.ID)
	respond.JSON(c, http.StatusAccepted, toResponse(session))
}

func (h *Handler) getRun(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	sessionID := c.Param("id")
	c.Set("sessionId", sessionID)

	session, err := h.Svc.Get(c.Request.Context(), userID, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, sessions.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "session not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch session", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, toResponse(session))
}

func (h *Handler) listRuns(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	dealID := c.Param("id")

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > 50 {
		limit = 50
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	list, err := h.Svc.List(c.Request.Context(), userID, dealID, limit, offset)
	if err != nil {
		switch {
		case errors.Is(err, deals.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "deal not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list sessions", nil)
		}
		return
	}

	resp := make([]SessionResponse, 0, len(list))
	for _, s := range list {
		resp = append(resp, toResponse(s))
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) cancelRun(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	sessionID := c.Param("id")
	c.Set("sessionId", sessionID)

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	if err := h.Svc.Cancel(ctx, userID, sessionID); err != nil {
		switch {
		case errors.Is(err, sessions.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "session not found", nil)
		case errors.Is(err, ErrNotRunning):
			respond.Error(c, http.StatusConflict, "not_running", "session already finished", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to cancel session", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{"sessionId": sessionID, "status": "cancelling"})
}
