package settlement

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/aw3econ/internal/logging"
	"github.com/mbd888/aw3econ/internal/metrics"
	"github.com/mbd888/aw3econ/internal/traces"
	"github.com/mbd888/aw3econ/internal/validation"
)

// Handler provides HTTP endpoints for payment settlement.
type Handler struct {
	calc *Calculator
}

// NewHandler creates a new settlement handler.
func NewHandler(calc *Calculator) *Handler {
	return &Handler{calc: calc}
}

// RegisterRoutes sets up settlement routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/settlements", h.Settle)
	r.POST("/settlements/distribution", h.Distribute)
}

// Settle handles POST /v1/settlements
func (h *Handler) Settle(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	_, span := traces.StartSpan(c.Request.Context(), "settlement.Settle",
		traces.PartyAddr(req.CreatorAddr),
		traces.Amount(req.BaseAmount.String()),
	)
	defer span.End()

	s, err := h.calc.SettleRequest(req)
	if err != nil {
		h.mapError(c, err)
		return
	}
	logging.L(c.Request.Context()).Info("payment settled",
		"deliverableId", req.DeliverableID,
		"calculatedPayment", s.CalculatedPayment.String(),
		"platformFee", s.PlatformFee.String(),
		"capped", s.Capped,
	)
	c.JSON(http.StatusOK, gin.H{"settlement": s})
}

type distributeRequest struct {
	PlatformFee string `json:"platformFee" binding:"required"`
}

// Distribute handles POST /v1/settlements/distribution
func (h *Handler) Distribute(c *gin.Context) {
	var req distributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "platformFee is required",
		})
		return
	}
	fee, err := validation.ParseAmount("platformFee", req.PlatformFee)
	if err != nil {
		h.mapError(c, err)
		return
	}
	dist, err := h.calc.Distribute(fee)
	if err != nil {
		h.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"distribution": dist})
}

// mapError maps calculator errors to HTTP responses.
func (h *Handler) mapError(c *gin.Context, err error) {
	if errors.Is(err, validation.ErrInvalidInput) {
		metrics.CalculationErrorsTotal.WithLabelValues("validation").Inc()
		logging.L(c.Request.Context()).Warn("settlement rejected", "kind", "validation", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": err.Error(),
			"details": validation.Fields(err),
		})
		return
	}
	logging.L(c.Request.Context()).Error("settlement failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}
