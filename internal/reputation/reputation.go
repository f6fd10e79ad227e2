// Package reputation maps reputation scores to tiers and their benefits.
//
// Two scales exist:
//   - creator: 0-1000, tiers S/A/B/C/NEWCOMER, drives platform fee discounts
//   - generic: 0-100, six bands used for admin-managed reputation
//
// A tier is a pure function of the score. There is no hysteresis: a score
// crossing a band boundary changes tier immediately in both directions.
package reputation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/money"
	"github.com/mbd888/aw3econ/internal/tables"
	"github.com/mbd888/aw3econ/internal/validation"
)

var (
	ErrApprovalRequired = errors.New("reputation: adjustment requires an approval reference")
	ErrUnknownScale     = errors.New("reputation: unknown scale")
	ErrUnknownTier      = errors.New("reputation: unknown tier")
)

// Creator tier names.
const (
	TierS        = "S"
	TierA        = "A"
	TierB        = "B"
	TierC        = "C"
	TierNewcomer = "NEWCOMER"
)

// BenefitSet is what a tier unlocks.
type BenefitSet struct {
	Tier                  string          `json:"tier"`
	PriorityApplications  bool            `json:"priorityApplications"`
	HigherPayoutPotential bool            `json:"higherPayoutPotential"`
	ExclusiveCampaigns    bool            `json:"exclusiveCampaigns"`
	FeeDiscount           decimal.Decimal `json:"feeDiscount"`
}

// Adjustment is the outcome of applying a delta to a score.
type Adjustment struct {
	PreviousScore decimal.Decimal `json:"previousScore"`
	Delta         decimal.Decimal `json:"delta"`
	NewScore      decimal.Decimal `json:"newScore"`
	PreviousTier  string          `json:"previousTier"`
	NewTier       string          `json:"newTier"`
	TierChanged   bool            `json:"tierChanged"`
	ApprovalRef   string          `json:"approvalRef,omitempty"`
}

// NextTierProjection is the distance to the next band up.
type NextTierProjection struct {
	Tier               string          `json:"tier"`
	RequiredScore      decimal.Decimal `json:"requiredScore"`
	PointsNeeded       decimal.Decimal `json:"pointsNeeded"`
	EstimatedCampaigns int64           `json:"estimatedCampaigns"`
}

// Breakdown splits a score into its reporting components.
type Breakdown struct {
	CampaignCompletion  int64 `json:"campaignCompletion"`
	QualityScore        int64 `json:"qualityScore"`
	CVPIPerformance     int64 `json:"cvpiPerformance"`
	ClientSatisfaction  int64 `json:"clientSatisfaction"`
	CommunityEngagement int64 `json:"communityEngagement"`
}

// Component maxima per 1000 points of scale.
const (
	completionMax   = 200
	qualityMax      = 250
	cvpiMax         = 250
	satisfactionMax = 200
	communityMax    = 100
)

// Scale evaluates scores against one band table.
type Scale struct {
	def               tables.ReputationScale
	approvalThreshold decimal.Decimal
	pointsPerCampaign int64
}

// NewScale looks up a named scale ("creator" or "generic") in t.
func NewScale(t tables.Tables, name string) (*Scale, error) {
	def, ok := t.Scale(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScale, name)
	}
	return &Scale{
		def:               def,
		approvalThreshold: t.Reputation.ApprovalThreshold,
		pointsPerCampaign: int64(t.Reputation.PointsPerCampaign),
	}, nil
}

// Name returns the scale name.
func (s *Scale) Name() string { return s.def.Name }

// MaxScore returns the upper clamp bound.
func (s *Scale) MaxScore() decimal.Decimal { return s.def.MaxScore }

// Bands returns the band table, highest first.
func (s *Scale) Bands() []tables.Band { return s.def.Bands }

// Clamp bounds score into [0, max].
func (s *Scale) Clamp(score decimal.Decimal) decimal.Decimal {
	return money.Clamp(score, money.Zero, s.def.MaxScore)
}

func (s *Scale) band(score decimal.Decimal) tables.Band {
	score = s.Clamp(score)
	for _, b := range s.def.Bands {
		if score.GreaterThanOrEqual(b.MinScore) {
			return b
		}
	}
	// Validate guarantees the last band starts at zero.
	return s.def.Bands[len(s.def.Bands)-1]
}

// TierFor returns the tier whose lower bound is the highest one not above
// score. Bounds are inclusive.
func (s *Scale) TierFor(score decimal.Decimal) string {
	return s.band(score).Tier
}

// BenefitsFor returns the benefit set of a tier.
func (s *Scale) BenefitsFor(tier string) (BenefitSet, error) {
	for _, b := range s.def.Bands {
		if b.Tier == tier {
			return BenefitSet{
				Tier:                  b.Tier,
				PriorityApplications:  b.PriorityApplications,
				HigherPayoutPotential: b.HigherPayoutPotential,
				ExclusiveCampaigns:    b.ExclusiveCampaigns,
				FeeDiscount:           b.FeeDiscount,
			}, nil
		}
	}
	return BenefitSet{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
}

// FeeDiscount returns the platform fee discount earned at score.
func (s *Scale) FeeDiscount(score decimal.Decimal) decimal.Decimal {
	return s.band(score).FeeDiscount
}

// Percentile returns the coarse population percentile for score's tier.
func (s *Scale) Percentile(score decimal.Decimal) decimal.Decimal {
	return s.band(score).Percentile
}

// ApplyAdjustment adds delta to current and clamps the result. Deltas whose
// magnitude exceeds the approval threshold need a non-empty approvalRef.
func (s *Scale) ApplyAdjustment(current, delta decimal.Decimal, approvalRef string) (*Adjustment, error) {
	approvalRef = strings.TrimSpace(approvalRef)
	if current.IsNegative() || current.GreaterThan(s.def.MaxScore) {
		return nil, validation.Fail("currentScore",
			fmt.Sprintf("must be between 0 and %s", s.def.MaxScore.String()))
	}
	if delta.Abs().GreaterThan(s.approvalThreshold) && approvalRef == "" {
		return nil, fmt.Errorf("%w: |delta| %s exceeds %s",
			ErrApprovalRequired, delta.Abs().String(), s.approvalThreshold.String())
	}

	newScore := s.Clamp(current.Add(delta))
	prevTier := s.TierFor(current)
	newTier := s.TierFor(newScore)
	return &Adjustment{
		PreviousScore: current,
		Delta:         delta,
		NewScore:      newScore,
		PreviousTier:  prevTier,
		NewTier:       newTier,
		TierChanged:   prevTier != newTier,
		ApprovalRef:   approvalRef,
	}, nil
}

// NextTier returns the projection to the band directly above score's band,
// or nil when score already sits in the top band.
func (s *Scale) NextTier(score decimal.Decimal) *NextTierProjection {
	score = s.Clamp(score)
	bands := s.def.Bands
	for i, b := range bands {
		if !score.GreaterThanOrEqual(b.MinScore) {
			continue
		}
		if i == 0 {
			return nil
		}
		target := bands[i-1]
		needed := target.MinScore.Sub(score)
		var campaigns int64
		if s.pointsPerCampaign > 0 {
			campaigns = needed.IntPart() / s.pointsPerCampaign
		}
		return &NextTierProjection{
			Tier:               target.Tier,
			RequiredScore:      target.MinScore,
			PointsNeeded:       needed,
			EstimatedCampaigns: campaigns,
		}
	}
	return nil
}

// Breakdown splits the integer part of score across the five reporting
// components, each proportional to its maximum and capped there.
func (s *Scale) Breakdown(score decimal.Decimal) Breakdown {
	total := s.Clamp(score).IntPart()
	maxScore := s.def.MaxScore.IntPart()
	if maxScore <= 0 {
		return Breakdown{}
	}
	part := func(max int64) int64 {
		// Scale the per-1000 maximum to this scale.
		limit := max * maxScore / 1000
		v := total * limit / maxScore
		if v > limit {
			return limit
		}
		return v
	}
	return Breakdown{
		CampaignCompletion:  part(completionMax),
		QualityScore:        part(qualityMax),
		CVPIPerformance:     part(cvpiMax),
		ClientSatisfaction:  part(satisfactionMax),
		CommunityEngagement: part(communityMax),
	}
}

// Evaluation is the full read-only view of a score on a scale.
type Evaluation struct {
	Scale      string              `json:"scale"`
	Score      decimal.Decimal     `json:"score"`
	Tier       string              `json:"tier"`
	Percentile decimal.Decimal     `json:"percentile"`
	Benefits   BenefitSet          `json:"benefits"`
	Breakdown  Breakdown           `json:"breakdown"`
	NextTier   *NextTierProjection `json:"nextTier"`
}

// Evaluate returns the tier, benefits and progress for score.
func (s *Scale) Evaluate(score decimal.Decimal) (*Evaluation, error) {
	if score.IsNegative() || score.GreaterThan(s.def.MaxScore) {
		return nil, validation.Fail("score",
			fmt.Sprintf("must be between 0 and %s", s.def.MaxScore.String()))
	}
	b := s.band(score)
	return &Evaluation{
		Scale:      s.def.Name,
		Score:      score,
		Tier:       b.Tier,
		Percentile: b.Percentile,
		Benefits: BenefitSet{
			Tier:                  b.Tier,
			PriorityApplications:  b.PriorityApplications,
			HigherPayoutPotential: b.HigherPayoutPotential,
			ExclusiveCampaigns:    b.ExclusiveCampaigns,
			FeeDiscount:           b.FeeDiscount,
		},
		Breakdown: s.Breakdown(score),
		NextTier:  s.NextTier(score),
	}, nil
}
