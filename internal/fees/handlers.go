package fees

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/logging"
	"github.com/mbd888/aw3econ/internal/metrics"
	"github.com/mbd888/aw3econ/internal/traces"
	"github.com/mbd888/aw3econ/internal/validation"
)

// Handler provides HTTP endpoints for fee estimates and quotes.
type Handler struct {
	service *Service
}

// NewHandler creates a new fees handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up fee routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/fees/estimate", h.Estimate)
	r.GET("/fees/estimates/:id", h.GetEstimate)
	r.POST("/fees/estimates/:id/accept", h.AcceptEstimate)
	r.POST("/fees/token-estimate", h.TokenEstimate)
}

// Estimate handles POST /v1/fees/estimate
func (h *Handler) Estimate(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.ComplexityTag = ParseComplexity(string(req.ComplexityTag))

	ctx, span := traces.StartSpan(c.Request.Context(), "fees.Estimate",
		traces.Complexity(string(req.ComplexityTag)),
		traces.Participants(req.NumberOfParticipants),
		traces.Amount(req.BudgetAmount.String()),
	)
	defer span.End()

	q, err := h.service.Quote(ctx, req)
	if err != nil {
		h.mapError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"estimate": q.Estimate, "signature": q.Signature})
}

// GetEstimate handles GET /v1/fees/estimates/:id
func (h *Handler) GetEstimate(c *gin.Context) {
	q, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

type acceptRequest struct {
	Signature string `json:"signature"`
}

// AcceptEstimate handles POST /v1/fees/estimates/:id/accept
func (h *Handler) AcceptEstimate(c *gin.Context) {
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	ctx, span := traces.StartSpan(c.Request.Context(), "fees.Accept", traces.QuoteID(c.Param("id")))
	defer span.End()

	q, err := h.service.Accept(ctx, c.Param("id"), req.Signature)
	if err != nil {
		h.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

type tokenEstimateRequest struct {
	Fee          decimal.Decimal `json:"fee"`
	TokenBalance decimal.Decimal `json:"tokenBalance"`
}

// TokenEstimate handles POST /v1/fees/token-estimate
func (h *Handler) TokenEstimate(c *gin.Context) {
	var req tokenEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	est, err := h.service.Estimator().TokenPayment(req.Fee, req.TokenBalance)
	if err != nil {
		h.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tokenEstimate":    est,
		"discountEligible": h.service.Estimator().TokenDiscountEligible(req.TokenBalance),
	})
}

// mapError maps service errors to HTTP responses.
func (h *Handler) mapError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, validation.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": err.Error(),
			"details": validation.Fields(err),
		})
		metrics.CalculationErrorsTotal.WithLabelValues("validation").Inc()
		logging.L(c.Request.Context()).Warn("fee calculation rejected", "kind", "validation", "error", err)
		return
	case errors.Is(err, ErrQuoteNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrEstimateExpired):
		status, code = http.StatusGone, "estimate_expired"
	case errors.Is(err, ErrAlreadyAccepted):
		status, code = http.StatusConflict, "already_accepted"
	case errors.Is(err, ErrBadSignature):
		status, code = http.StatusForbidden, "invalid_signature"
	default:
		logging.L(c.Request.Context()).Error("fee request failed", "error", err)
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
