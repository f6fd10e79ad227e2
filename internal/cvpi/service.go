package cvpi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/idgen"
	"github.com/mbd888/aw3econ/internal/metrics"
	"github.com/mbd888/aw3econ/internal/syncutil"
	"github.com/mbd888/aw3econ/internal/validation"
)

// Service records scores and answers history and recommendation queries.
// The scorer stays pure; the service owns the store.
type Service struct {
	scorer *Scorer
	store  Store
	locks  *syncutil.KeyedMutex
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a CVPI service.
func NewService(scorer *Scorer, store Store, logger *slog.Logger) *Service {
	return &Service{scorer: scorer, store: store, locks: syncutil.NewKeyedMutex(), logger: logger, now: time.Now}
}

// Scorer returns the underlying calculator.
func (s *Service) Scorer() *Scorer { return s.scorer }

// ScoreRequest records a completed deliverable's cost and verified impact.
type ScoreRequest struct {
	CreatorID           string          `json:"creatorId"`
	CampaignID          string          `json:"campaignId,omitempty"`
	TotalCost           decimal.Decimal `json:"totalCost"`
	VerifiedImpactScore decimal.Decimal `json:"verifiedImpactScore"`
}

// Record scores a deliverable, classifies its trend against the creator's
// previous score and stores it. Without a creator ID nothing is stored.
// Records for one creator are serialized within this process; replicas
// sharing a Postgres store can still classify against the same prior score.
func (s *Service) Record(ctx context.Context, req ScoreRequest) (*Score, error) {
	score, err := s.scorer.Score(req.TotalCost, req.VerifiedImpactScore)
	if err != nil {
		return nil, err
	}
	score.Trend = TrendStable
	if req.CreatorID == "" {
		score.CreatedAt = s.now().UTC()
		metrics.CVPIScoresTotal.WithLabelValues(string(score.Trend)).Inc()
		return score, nil
	}

	score.ID = idgen.WithPrefix("cv_")
	score.CreatorID = req.CreatorID
	score.CampaignID = req.CampaignID

	unlock, err := s.locks.Lock(ctx, req.CreatorID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	score.CreatedAt = s.now().UTC()
	prev, err := s.store.ListByCreator(ctx, req.CreatorID, time.Time{}, 1)
	if err != nil {
		return nil, fmt.Errorf("load previous score: %w", err)
	}
	score.Trend = TrendOf(append([]Score{*score}, prev...))

	if err := s.store.Save(ctx, score); err != nil {
		return nil, fmt.Errorf("save score: %w", err)
	}
	metrics.CVPIScoresTotal.WithLabelValues(string(score.Trend)).Inc()
	s.logger.Info("cvpi score recorded",
		"creatorId", score.CreatorID,
		"cvpi", score.CVPI.String(),
		"trend", score.Trend,
	)
	return score, nil
}

// DataPoint is one history entry.
type DataPoint struct {
	Date        time.Time       `json:"date"`
	CVPI        decimal.Decimal `json:"cvpi"`
	TotalImpact decimal.Decimal `json:"totalImpact"`
	CampaignID  string          `json:"campaignId,omitempty"`
}

// History is a creator's CVPI over a period.
type History struct {
	CreatorID  string      `json:"creatorId"`
	Period     string      `json:"period"`
	DataPoints []DataPoint `json:"dataPoints"`
	Summary    Summary     `json:"summary"`
}

// History returns a creator's scores over period (7d, 30d, 90d, 1y).
func (s *Service) History(ctx context.Context, creatorID, period string) (*History, error) {
	if err := validation.Check(validation.Required("creatorId", creatorID)); err != nil {
		return nil, err
	}
	if period == "" {
		period = "30d"
	}
	since, err := PeriodStart(period, s.now())
	if err != nil {
		return nil, err
	}
	scores, err := s.store.ListByCreator(ctx, creatorID, since, 0)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	points := make([]DataPoint, 0, len(scores))
	for _, sc := range scores {
		points = append(points, DataPoint{
			Date:        sc.CreatedAt,
			CVPI:        sc.CVPI,
			TotalImpact: sc.VerifiedImpactScore,
			CampaignID:  sc.CampaignID,
		})
	}
	return &History{
		CreatorID:  creatorID,
		Period:     period,
		DataPoints: points,
		Summary:    Summarize(scores),
	}, nil
}

// FillProfile completes a creator profile from recorded history when the
// caller did not supply an average or completed count.
func (s *Service) FillProfile(ctx context.Context, p CreatorProfile) (CreatorProfile, error) {
	if p.ID == "" || (p.AverageCVPI.IsPositive() && p.CompletedCampaigns > 0) {
		return p, nil
	}
	scores, err := s.store.ListByCreator(ctx, p.ID, time.Time{}, 0)
	if err != nil {
		return p, fmt.Errorf("list scores: %w", err)
	}
	sum := Summarize(scores)
	if !p.AverageCVPI.IsPositive() {
		p.AverageCVPI = sum.AverageCVPI
	}
	if p.CompletedCampaigns == 0 {
		p.CompletedCampaigns = sum.TotalCampaigns
	}
	return p, nil
}
