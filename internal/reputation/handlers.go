package reputation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/logging"
	"github.com/mbd888/aw3econ/internal/metrics"
	"github.com/mbd888/aw3econ/internal/traces"
	"github.com/mbd888/aw3econ/internal/validation"
)

// Handler provides HTTP endpoints for reputation tiers.
type Handler struct {
	service *Service
}

// NewHandler creates a new reputation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up reputation endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/reputation/tiers", h.ListTiers)
	r.POST("/reputation/evaluate", h.Evaluate)
	r.POST("/reputation/adjustments", h.Adjust)
	r.GET("/reputation/:userId/adjustments", h.ListAdjustments)
}

// ListTiers handles GET /v1/reputation/tiers?scale=creator
func (h *Handler) ListTiers(c *gin.Context) {
	scale, err := h.service.Scale(c.Query("scale"))
	if err != nil {
		h.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scale":    scale.Name(),
		"maxScore": scale.MaxScore(),
		"tiers":    scale.Bands(),
	})
}

type evaluateRequest struct {
	Scale string          `json:"scale"`
	Score decimal.Decimal `json:"score"`
}

// Evaluate handles POST /v1/reputation/evaluate
func (h *Handler) Evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain a numeric 'score'",
		})
		return
	}
	scale, err := h.service.Scale(req.Scale)
	if err != nil {
		h.mapError(c, err)
		return
	}
	_, span := traces.StartSpan(c.Request.Context(), "reputation.Evaluate")
	defer span.End()

	eval, err := scale.Evaluate(req.Score)
	if err != nil {
		h.mapError(c, err)
		return
	}
	span.SetAttributes(traces.Tier(eval.Tier))
	c.JSON(http.StatusOK, gin.H{"reputation": eval})
}

// Adjust handles POST /v1/reputation/adjustments
func (h *Handler) Adjust(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	ctx, span := traces.StartSpan(c.Request.Context(), "reputation.Adjust")
	defer span.End()

	rec, err := h.service.Adjust(ctx, req)
	if err != nil {
		h.mapError(c, err)
		return
	}
	span.SetAttributes(traces.Tier(rec.NewTier))
	c.JSON(http.StatusCreated, gin.H{"adjustment": rec})
}

// ListAdjustments handles GET /v1/reputation/:userId/adjustments
func (h *Handler) ListAdjustments(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	records, err := h.service.History(c.Request.Context(), c.Param("userId"), limit)
	if err != nil {
		h.mapError(c, err)
		return
	}
	if records == nil {
		records = []*Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"adjustments": records,
		"count":       len(records),
	})
}

// mapError maps service errors to HTTP responses.
func (h *Handler) mapError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, validation.ErrInvalidInput):
		metrics.CalculationErrorsTotal.WithLabelValues("validation").Inc()
		logging.L(c.Request.Context()).Warn("reputation request rejected", "kind", "validation", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": err.Error(),
			"details": validation.Fields(err),
		})
	case errors.Is(err, ErrApprovalRequired):
		metrics.CalculationErrorsTotal.WithLabelValues("approval_required").Inc()
		logging.L(c.Request.Context()).Warn("reputation request rejected", "kind", "approval_required")
		c.JSON(http.StatusForbidden, gin.H{"error": "approval_required", "message": err.Error()})
	case errors.Is(err, ErrUnknownTier), errors.Is(err, ErrUnknownScale):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error("reputation request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
	}
}
