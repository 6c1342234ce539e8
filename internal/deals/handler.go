package deals

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/server/middleware"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the deals service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches deal routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/deals", h.create)
	rg.GET("/deals", h.list)
	rg.GET("/deals/:id", h.get)
}

type createDealRequest struct {
	CompanyName string   `json:"companyName"`
	Sector      string   `json:"sector"`
	Stage       string   `json:"stage"`
	Description string   `json:"description"`
	AskUSD      *float64 `json:"askUsd"`
}

func (h *Handler) create(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req createDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	deal, err := h.Svc.Create(c.Request.Context(), userID, req.CompanyName, req.Sector, req.Stage, req.Description, req.AskUSD)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "companyName is required", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create deal", nil)
		}
		return
	}

	respond.JSON(c, http.StatusCreated, deal)
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	dealID := c.Param("id")
	if dealID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "deal id is required", nil)
		return
	}

	deal, err := h.Svc.Get(c.Request.Context(), userID, dealID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "deal not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch deal", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, deal)
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	dealList, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list deals", nil)
		return
	}

	respond.JSON(c, http.StatusOK, dealList)
}
