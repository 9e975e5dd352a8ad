package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-intake-api/internal/middleware"
	"github.com/noah-isme/scholarship-intake-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-intake-api/pkg/errors"
	"github.com/noah-isme/scholarship-intake-api/pkg/response"
)

type statsService interface {
	Summary(ctx context.Context) (*models.ApplicationStats, bool, error)
}

// StatsHandler serves the review dashboard aggregates.
type StatsHandler struct {
	service statsService
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(svc statsService) *StatsHandler {
	return &StatsHandler{service: svc}
}

// Summary godoc
// @Summary Application statistics
// @Description Totals by status, breakdowns, grade buckets and six months of submissions
// @Tags Stats
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /stats [get]
func (h *StatsHandler) Summary(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	stats, cacheHit, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, middleware.MarkCacheHit(c, cacheHit))
}
