package cvpi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/aw3econ/internal/logging"
	"github.com/mbd888/aw3econ/internal/metrics"
	"github.com/mbd888/aw3econ/internal/traces"
	"github.com/mbd888/aw3econ/internal/validation"
)

const maxRecommendations = 50

// Handler provides HTTP endpoints for CVPI scoring.
type Handler struct {
	service *Service
}

// NewHandler creates a new CVPI handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up CVPI routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/cvpi/score", h.Score)
	r.GET("/cvpi/creators/:id", h.CreatorHistory)
	r.POST("/cvpi/recommendations", h.Recommendations)
	r.POST("/cvpi/projection", h.Projection)
}

// Score handles POST /v1/cvpi/score
func (h *Handler) Score(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	ctx, span := traces.StartSpan(c.Request.Context(), "cvpi.Score", traces.CreatorID(req.CreatorID))
	defer span.End()

	score, err := h.service.Record(ctx, req)
	if err != nil {
		h.mapError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"score": score})
}

// CreatorHistory handles GET /v1/cvpi/creators/:id?period=30d
func (h *Handler) CreatorHistory(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), c.Param("id"), c.Query("period"))
	if err != nil {
		h.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

type recommendationsRequest struct {
	Creator   CreatorProfile `json:"creator"`
	Campaigns []Campaign     `json:"campaigns"`
	Limit     int            `json:"limit"`
}

// Recommendations handles POST /v1/cvpi/recommendations
func (h *Handler) Recommendations(c *gin.Context) {
	var req recommendationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if req.Limit <= 0 || req.Limit > maxRecommendations {
		req.Limit = 10
	}
	ctx, span := traces.StartSpan(c.Request.Context(), "cvpi.Recommendations", traces.CreatorID(req.Creator.ID))
	defer span.End()

	profile, err := h.service.FillProfile(ctx, req.Creator)
	if err != nil {
		h.mapError(c, err)
		return
	}
	recs, err := h.service.Scorer().Rank(req.Campaigns, profile, req.Limit)
	if err != nil {
		h.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"recommendations": recs,
		"count":           len(recs),
		"averageCvpi":     profile.AverageCVPI,
	})
}

// Projection handles POST /v1/cvpi/projection
func (h *Handler) Projection(c *gin.Context) {
	var req struct {
		ProjectionInput
		CreatorID string `json:"creatorId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	profile, err := h.service.FillProfile(c.Request.Context(), CreatorProfile{
		ID:                 req.CreatorID,
		AverageCVPI:        req.AverageCVPI,
		CompletedCampaigns: req.CompletedCampaigns,
	})
	if err != nil {
		h.mapError(c, err)
		return
	}
	req.AverageCVPI = profile.AverageCVPI
	req.CompletedCampaigns = profile.CompletedCampaigns

	p, err := h.service.Scorer().Project(req.ProjectionInput)
	if err != nil {
		h.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projection": p})
}

// mapError maps service errors to HTTP responses.
func (h *Handler) mapError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, validation.ErrInvalidInput):
		metrics.CalculationErrorsTotal.WithLabelValues("validation").Inc()
		logging.L(c.Request.Context()).Warn("cvpi calculation rejected", "kind", "validation", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": err.Error(),
			"details": validation.Fields(err),
		})
	case errors.Is(err, ErrDivisionByZero):
		metrics.CalculationErrorsTotal.WithLabelValues("division_by_zero").Inc()
		logging.L(c.Request.Context()).Warn("cvpi calculation rejected", "kind", "division_by_zero")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "division_by_zero", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error("cvpi request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
	}
}
