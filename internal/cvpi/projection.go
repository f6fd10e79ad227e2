package cvpi

import (
	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/money"
	"github.com/mbd888/aw3econ/internal/validation"
)

// ProjectionInput describes a campaign a creator is considering.
// A zero AverageCVPI falls back to the platform average.
type ProjectionInput struct {
	Budget             decimal.Decimal `json:"budget"`
	Participants       int             `json:"participants"`
	AverageCVPI        decimal.Decimal `json:"averageCvpi"`
	CompletedCampaigns int             `json:"completedCampaigns"`
}

// Projection is the expected cost and CVPI of taking a campaign.
type Projection struct {
	BasePayment         decimal.Decimal `json:"basePayment"`
	PlatformFee         decimal.Decimal `json:"platformFee"`
	OracleFee           decimal.Decimal `json:"oracleFee"`
	EstimatedCost       decimal.Decimal `json:"estimatedCost"`
	ProjectedImpact     decimal.Decimal `json:"projectedImpact"`
	ProjectedCVPI       decimal.Decimal `json:"projectedCvpi"`
	Confidence          decimal.Decimal `json:"confidence"`
	PlatformAverageCVPI decimal.Decimal `json:"platformAverageCvpi"`
	PercentageBetter    decimal.Decimal `json:"percentageBetter"`
}

// Project estimates the creator's cost share and CVPI for a campaign.
// The projected CVPI is deliberately optimistic (average * 0.95).
func (s *Scorer) Project(in ProjectionInput) (*Projection, error) {
	if err := validation.Check(
		validation.Positive("budget", in.Budget),
		validation.MinInt("participants", in.Participants, 1),
		validation.NonNegative("averageCvpi", in.AverageCVPI),
		validation.MinInt("completedCampaigns", in.CompletedCampaigns, 0),
	); err != nil {
		return nil, err
	}
	r := s.tables.Recommendation
	avg := in.AverageCVPI
	if avg.IsZero() {
		avg = r.PlatformAverageCVPI
	}
	if !avg.IsPositive() {
		return nil, validation.Fail("averageCvpi", "required when the platform average is not positive")
	}

	base := in.Budget.DivRound(decimal.NewFromInt(int64(in.Participants)), money.AmountPlaces)
	fee := money.Round2(base.Mul(r.ProjectionFeeRate))
	cost := base.Add(fee).Add(r.ProjectionOracleFee)
	projected := money.Round4(avg.Mul(r.ProjectionDiscount))

	better := decimal.Zero
	if r.PlatformAverageCVPI.IsPositive() {
		better = r.PlatformAverageCVPI.Sub(projected).
			DivRound(r.PlatformAverageCVPI, money.IndexPlaces).
			Mul(money.Hundred)
	}
	return &Projection{
		BasePayment:         base,
		PlatformFee:         fee,
		OracleFee:           r.ProjectionOracleFee,
		EstimatedCost:       cost,
		ProjectedImpact:     cost.DivRound(avg, money.AmountPlaces),
		ProjectedCVPI:       projected,
		Confidence:          s.tables.ConfidenceFor(in.CompletedCampaigns),
		PlatformAverageCVPI: r.PlatformAverageCVPI,
		PercentageBetter:    better,
	}, nil
}
