package fees

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/aw3econ/internal/metrics"
	"github.com/mbd888/aw3econ/internal/validation"
)

// Service issues, looks up and accepts signed fee quotes.
type Service struct {
	estimator *Estimator
	store     QuoteStore
	signer    *Signer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a quote service. signer may be nil.
func NewService(estimator *Estimator, store QuoteStore, signer *Signer, logger *slog.Logger) *Service {
	return &Service{
		estimator: estimator,
		store:     store,
		signer:    signer,
		logger:    logger,
		now:       estimator.now,
	}
}

// Estimator returns the underlying calculator.
func (s *Service) Estimator() *Estimator { return s.estimator }

// QuoteRequest is a campaign fee quote request.
type QuoteRequest struct {
	CampaignBudgetInput
	Payer     PartyEconomicProfile `json:"payer"`
	PayerAddr string               `json:"payerAddr,omitempty"`
}

// Quote computes an estimate, signs it and stores it.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if err := validation.Check(validation.ValidAddress("payerAddr", req.PayerAddr)); err != nil {
		return nil, err
	}
	if req.ComplexityTag == "" {
		req.ComplexityTag = ComplexityStandard
	}
	est, err := s.estimator.Estimate(req.CampaignBudgetInput, req.Payer)
	if err != nil {
		return nil, err
	}
	q := &Quote{Estimate: est}
	if req.PayerAddr != "" {
		q.PayerAddr = validation.NormalizeAddress(req.PayerAddr)
	}
	sig, err := s.signer.Sign(q)
	if err != nil {
		return nil, fmt.Errorf("sign quote: %w", err)
	}
	q.Signature = sig

	if err := s.store.Save(ctx, q); err != nil {
		return nil, fmt.Errorf("save quote: %w", err)
	}
	metrics.FeeEstimatesTotal.WithLabelValues(string(req.ComplexityTag)).Inc()
	s.logger.Info("fee quote issued",
		"quoteId", est.ID,
		"budget", est.BudgetAmount.StringFixed(2),
		"totalEscrowRequired", est.TotalEscrowRequired.StringFixed(2),
	)
	return q, nil
}

// Get returns a quote. The quote is returned alongside ErrEstimateExpired
// when it is stale so callers can still show it.
func (s *Service) Get(ctx context.Context, id string) (*Quote, error) {
	q, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := q.Estimate.CheckFresh(s.now()); err != nil {
		return q, err
	}
	return q, nil
}

// Accept marks a fresh quote accepted after verifying the presented
// signature. A quote can be accepted once.
func (s *Service) Accept(ctx context.Context, id, signature string) (*Quote, error) {
	q, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := q.Estimate.CheckFresh(now); err != nil {
		return nil, err
	}
	if !s.signer.Verify(q, signature) {
		return nil, ErrBadSignature
	}
	if err := s.store.MarkAccepted(ctx, id, now.UTC()); err != nil {
		return nil, err
	}
	at := now.UTC()
	q.AcceptedAt = &at
	metrics.QuotesAcceptedTotal.Inc()
	s.logger.Info("fee quote accepted", "quoteId", id)
	return q, nil
}
