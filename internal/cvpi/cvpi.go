// Package cvpi scores cost efficiency. CVPI (cost-value-performance index)
// is total campaign cost divided by verified impact; lower is better.
//
// Percentile ranks and projection confidence are coarse table lookups, not
// statistics over the real creator population.
package cvpi

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/money"
	"github.com/mbd888/aw3econ/internal/tables"
	"github.com/mbd888/aw3econ/internal/validation"
)

var ErrDivisionByZero = errors.New("verified impact score is zero")

// Trend classifies the latest score against the previous one.
type Trend string

const (
	TrendImproving Trend = "IMPROVING"
	TrendDeclining Trend = "DECLINING"
	TrendStable    Trend = "STABLE"
)

// Score is one CVPI measurement for a completed deliverable. Immutable once
// recorded.
type Score struct {
	ID                  string          `json:"id,omitempty"`
	CreatorID           string          `json:"creatorId,omitempty"`
	CampaignID          string          `json:"campaignId,omitempty"`
	TotalCost           decimal.Decimal `json:"totalCost"`
	VerifiedImpactScore decimal.Decimal `json:"verifiedImpactScore"`
	CVPI                decimal.Decimal `json:"cvpi"`
	PercentileRank      decimal.Decimal `json:"percentileRank"`
	Trend               Trend           `json:"trend,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// Scorer computes CVPI scores and projections. Safe for concurrent use.
type Scorer struct {
	tables tables.Tables
}

// NewScorer creates a scorer over the given tables.
func NewScorer(t tables.Tables) *Scorer {
	return &Scorer{tables: t}
}

// Score computes cvpi = totalCost / verifiedImpact at four places.
func (s *Scorer) Score(totalCost, verifiedImpact decimal.Decimal) (*Score, error) {
	if err := validation.Check(
		validation.NonNegative("totalCost", totalCost),
		validation.NonNegative("verifiedImpactScore", verifiedImpact),
	); err != nil {
		return nil, err
	}
	if verifiedImpact.IsZero() {
		return nil, ErrDivisionByZero
	}
	cvpi := totalCost.DivRound(verifiedImpact, money.IndexPlaces)
	return &Score{
		TotalCost:           totalCost,
		VerifiedImpactScore: verifiedImpact,
		CVPI:                cvpi,
		PercentileRank:      s.PercentileRank(cvpi),
	}, nil
}

// PercentileRank buckets cvpi against the configured breakpoints.
func (s *Scorer) PercentileRank(cvpi decimal.Decimal) decimal.Decimal {
	return s.tables.PercentileFor(cvpi)
}

// TrendOf compares the two most recent entries of a most-recent-first
// history. Fewer than two entries is STABLE.
func TrendOf(history []Score) Trend {
	if len(history) < 2 {
		return TrendStable
	}
	switch history[0].CVPI.Cmp(history[1].CVPI) {
	case -1:
		return TrendImproving
	case 1:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// Summary aggregates a creator's history.
type Summary struct {
	AverageCVPI    decimal.Decimal `json:"averageCvpi"`
	BestCVPI       decimal.Decimal `json:"bestCvpi"`
	WorstCVPI      decimal.Decimal `json:"worstCvpi"`
	TotalCampaigns int             `json:"totalCampaigns"`
	Trend          Trend           `json:"trend"`
}

// Summarize returns the running average, best (lowest) and worst (highest)
// CVPI of a most-recent-first history. An empty history summarizes to zeros.
func Summarize(history []Score) Summary {
	sum := Summary{Trend: TrendOf(history), TotalCampaigns: len(history)}
	if len(history) == 0 {
		return sum
	}
	total := decimal.Zero
	sum.BestCVPI = history[0].CVPI
	sum.WorstCVPI = history[0].CVPI
	for _, h := range history {
		total = total.Add(h.CVPI)
		sum.BestCVPI = money.Min(sum.BestCVPI, h.CVPI)
		sum.WorstCVPI = money.Max(sum.WorstCVPI, h.CVPI)
	}
	sum.AverageCVPI = total.DivRound(decimal.NewFromInt(int64(len(history))), money.IndexPlaces)
	return sum
}

// PeriodStart maps a history period (7d, 30d, 90d, 1y) to its start time.
// Empty means 30d.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case "7d":
		return now.AddDate(0, 0, -7), nil
	case "", "30d":
		return now.AddDate(0, 0, -30), nil
	case "90d":
		return now.AddDate(0, 0, -90), nil
	case "1y":
		return now.AddDate(0, 0, -365), nil
	}
	return time.Time{}, validation.Fail("period", "must be one of 7d, 30d, 90d, 1y")
}
