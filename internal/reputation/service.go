package reputation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/idgen"
	"github.com/mbd888/aw3econ/internal/metrics"
	"github.com/mbd888/aw3econ/internal/tables"
	"github.com/mbd888/aw3econ/internal/validation"
)

// Service resolves scales and records adjustments in the audit log.
type Service struct {
	tables tables.Tables
	scales map[string]*Scale
	store  AdjustmentStore
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds both scales from t.
func NewService(t tables.Tables, store AdjustmentStore, logger *slog.Logger) (*Service, error) {
	s := &Service{
		tables: t,
		scales: make(map[string]*Scale, 2),
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, name := range []string{tables.ScaleCreator, tables.ScaleGeneric} {
		sc, err := NewScale(t, name)
		if err != nil {
			return nil, err
		}
		s.scales[name] = sc
	}
	return s, nil
}

// Scale resolves a scale by name. Empty means creator; "admin" is an alias
// for generic.
func (s *Service) Scale(name string) (*Scale, error) {
	def, ok := s.tables.Scale(name)
	if !ok {
		return nil, validation.Fail("scale", fmt.Sprintf("unknown scale %q", name))
	}
	return s.scales[def.Name], nil
}

// Creator returns the creator scale.
func (s *Service) Creator() *Scale { return s.scales[tables.ScaleCreator] }

// AdjustRequest applies a delta to a user's current score.
type AdjustRequest struct {
	UserID       string          `json:"userId"`
	Scale        string          `json:"scale,omitempty"`
	CurrentScore decimal.Decimal `json:"currentScore"`
	Delta        decimal.Decimal `json:"delta"`
	Reason       string          `json:"reason,omitempty"`
	ApprovalRef  string          `json:"approvalRef,omitempty"`
}

// Adjust validates, applies and logs an adjustment. Nothing is logged when
// the adjustment is rejected.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (*Record, error) {
	if err := validation.Check(
		validation.Required("userId", req.UserID),
		validation.MaxLength("userId", req.UserID, 64),
		validation.MaxLength("reason", req.Reason, 500),
		validation.MaxLength("approvalRef", req.ApprovalRef, 128),
	); err != nil {
		metrics.ReputationAdjustmentsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	scale, err := s.Scale(req.Scale)
	if err != nil {
		metrics.ReputationAdjustmentsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	adj, err := scale.ApplyAdjustment(req.CurrentScore, req.Delta, validation.SanitizeString(req.ApprovalRef, 128))
	if err != nil {
		result := "invalid"
		if errors.Is(err, ErrApprovalRequired) {
			result = "approval_required"
		}
		metrics.ReputationAdjustmentsTotal.WithLabelValues(result).Inc()
		return nil, err
	}

	rec := &Record{
		ID:         idgen.WithPrefix("adj_"),
		UserID:     req.UserID,
		Scale:      scale.Name(),
		Reason:     validation.SanitizeString(req.Reason, 500),
		Adjustment: *adj,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save adjustment: %w", err)
	}
	metrics.ReputationAdjustmentsTotal.WithLabelValues("applied").Inc()
	s.logger.Info("reputation adjusted",
		"userId", rec.UserID,
		"scale", rec.Scale,
		"delta", adj.Delta.String(),
		"newScore", adj.NewScore.String(),
		"tier", adj.NewTier,
		"tierChanged", adj.TierChanged,
	)
	return rec, nil
}

// History lists a user's logged adjustments, most recent first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*Record, error) {
	if err := validation.Check(validation.Required("userId", userID)); err != nil {
		return nil, err
	}
	records, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	return records, nil
}
