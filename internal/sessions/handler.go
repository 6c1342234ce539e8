package sessions

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/deals"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/server/middleware"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/server/respond"
)

// Handler exposes version, staleness and delta endpoints for a deal.
type Handler struct {
	Store *Store
	Deals deals.Repo
}

// NewHandler constructs a Handler.
func NewHandler(store *Store, dealsRepo deals.Repo) *Handler {
	return &Handler{Store: store, Deals: dealsRepo}
}

// RegisterRoutes attaches version routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/deals/:id/analysis/latest", h.latest)
	rg.GET("/deals/:id/analysis/versions/:number", h.version)
	rg.GET("/deals/:id/analysis/staleness", h.staleness)
	rg.GET("/deals/:id/analysis/delta", h.delta)
}

func (h *Handler) ownedDeal(c *gin.Context) (string, bool) {
	userID := middleware.UserIDFromContext(c)
	dealID := c.Param("id")
	if _, err := h.Deals.GetByID(c.Request.Context(), userID, dealID); err != nil {
		if errors.Is(err, deals.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "deal not found", nil)
		} else {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch deal", nil)
		}
		return "", false
	}
	return dealID, true
}

func (h *Handler) latest(c *gin.Context) {
	dealID, ok := h.ownedDeal(c)
	if !ok {
		return
	}

	version, err := h.Store.Latest(c.Request.Context(), dealID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "no_analysis", "no analysis exists for this deal", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch version", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, version)
}

func (h *Handler) version(c *gin.Context) {
	dealID, ok := h.ownedDeal(c)
	if !ok {
		return
	}

	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "version number must be a positive integer", nil)
		return
	}

	version, err := h.Store.Get(c.Request.Context(), dealID, number)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "version not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch version", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, version)
}

func (h *Handler) staleness(c *gin.Context) {
	dealID, ok := h.ownedDeal(c)
	if !ok {
		return
	}

	staleness, err := h.Store.CheckStaleness(c.Request.Context(), dealID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoAnalysis):
			respond.Error(c, http.StatusNotFound, "no_analysis", "no analysis exists for this deal", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to check staleness", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, staleness)
}

func (h *Handler) delta(c *gin.Context) {
	dealID, ok := h.ownedDeal(c)
	if !ok {
		return
	}

	from := 0
	to := 0
	if v := c.Query("from"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "from must be a positive integer", nil)
			return
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "to must be a positive integer", nil)
			return
		}
		to = parsed
	}

	delta, err := h.Store.ComputeDelta(c.Request.Context(), dealID, from, to)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "version not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to compute delta", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, delta)
}
