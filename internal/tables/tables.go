// Package tables holds the economic model's configuration: fee-rate tiers,
// complexity multipliers, discount curves, oracle pricing, revenue split,
// lookup breakpoints and reputation bands.
//
// Calculators read these values; they never hardcode them. Swapping a table
// (e.g. replacing the coarse CVPI percentile breakpoints with a real
// distribution) does not touch any calculation flow.
package tables

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/money"
)

var ErrInvalidTables = errors.New("invalid economic tables")

// BudgetTier applies Rate to budgets strictly below UpperBound.
type BudgetTier struct {
	UpperBound decimal.Decimal `json:"upperBound"`
	Rate       decimal.Decimal `json:"rate"`
}

// Complexity holds the service-fee complexity multipliers and the
// participant-count cut-offs that select them.
type Complexity struct {
	Simple   decimal.Decimal `json:"simple"`
	Standard decimal.Decimal `json:"standard"`
	Mid      decimal.Decimal `json:"mid"`
	Complex  decimal.Decimal `json:"complex"`

	SmallCampaignParticipants int `json:"smallCampaignParticipants"`
	LargeCampaignParticipants int `json:"largeCampaignParticipants"`
}

// Step is a lower-bound (inclusive) threshold mapped to a value.
type Step struct {
	Min   decimal.Decimal `json:"min"`
	Value decimal.Decimal `json:"value"`
}

// ReputationDiscount parameterises the payer's spend-based fee discount.
type ReputationDiscount struct {
	SpendNormalizer decimal.Decimal `json:"spendNormalizer"`
	SpendWeight     decimal.Decimal `json:"spendWeight"`
	SpendCap        decimal.Decimal `json:"spendCap"`
	LoyaltySteps    []Step          `json:"loyaltySteps"` // descending by Min
	MaxDiscount     decimal.Decimal `json:"maxDiscount"`
}

// MetricFactor multiplies per-participant oracle cost for campaigns
// tracking at most MaxMetrics KPIs. A zero MaxMetrics matches any count.
type MetricFactor struct {
	MaxMetrics int             `json:"maxMetrics"`
	Factor     decimal.Decimal `json:"factor"`
}

// Oracle prices KPI verification.
type Oracle struct {
	BaseCost          decimal.Decimal            `json:"baseCost"`
	SourceCosts       map[string]decimal.Decimal `json:"sourceCosts"`
	DefaultSourceCost decimal.Decimal            `json:"defaultSourceCost"`
	MetricFactors     []MetricFactor             `json:"metricFactors"` // ascending by MaxMetrics
	FlatFeeNoMetrics  decimal.Decimal            `json:"flatFeeNoMetrics"`
}

// Layer is one allocation of platform revenue.
type Layer struct {
	Key   string          `json:"key"`
	Share decimal.Decimal `json:"share"`
}

// Distribution splits platform fees across layers. Rounding remainder goes
// to RemainderLayer.
type Distribution struct {
	Layers         []Layer `json:"layers"`
	RemainderLayer string  `json:"remainderLayer"`
}

// Breakpoint maps CVPI values at or below Max to a percentile rank.
type Breakpoint struct {
	Max        decimal.Decimal `json:"max"`
	Percentile decimal.Decimal `json:"percentile"`
}

// CountStep maps a minimum completed-campaign count to a confidence value.
type CountStep struct {
	MinCount int             `json:"minCount"`
	Value    decimal.Decimal `json:"value"`
}

// Recommendation holds match-score weights and projection constants.
type Recommendation struct {
	HistoricalWeight    decimal.Decimal `json:"historicalWeight"`
	AudienceWeight      decimal.Decimal `json:"audienceWeight"`
	BudgetWeight        decimal.Decimal `json:"budgetWeight"`
	CategoryWeight      decimal.Decimal `json:"categoryWeight"`
	ReputationWeight    decimal.Decimal `json:"reputationWeight"`
	ProjectionDiscount  decimal.Decimal `json:"projectionDiscount"`
	ProjectionFeeRate   decimal.Decimal `json:"projectionFeeRate"`
	ProjectionOracleFee decimal.Decimal `json:"projectionOracleFee"`
	PlatformAverageCVPI decimal.Decimal `json:"platformAverageCvpi"`
	CategoryExpertAt    int             `json:"categoryExpertAt"` // campaigns for full expertise
}

// Band is a reputation tier's lower bound and benefits.
type Band struct {
	Tier                  string          `json:"tier"`
	MinScore              decimal.Decimal `json:"minScore"`
	FeeDiscount           decimal.Decimal `json:"feeDiscount"`
	Percentile            decimal.Decimal `json:"percentile"`
	PriorityApplications  bool            `json:"priorityApplications"`
	HigherPayoutPotential bool            `json:"higherPayoutPotential"`
	ExclusiveCampaigns    bool            `json:"exclusiveCampaigns"`
}

// ReputationScale is a score range and its bands, descending by MinScore.
// The last band must have MinScore 0.
type ReputationScale struct {
	Name     string          `json:"name"`
	MaxScore decimal.Decimal `json:"maxScore"`
	Bands    []Band          `json:"bands"`
}

// Reputation holds both reputation scales and adjustment policy.
type Reputation struct {
	Creator           ReputationScale `json:"creator"`
	Generic           ReputationScale `json:"generic"`
	ApprovalThreshold decimal.Decimal `json:"approvalThreshold"`
	PointsPerCampaign int             `json:"pointsPerCampaign"`
}

// Tables is the complete economic model configuration.
type Tables struct {
	BudgetTiers []BudgetTier    `json:"budgetTiers"` // ascending by UpperBound
	TopRate     decimal.Decimal `json:"topRate"`

	Complexity         Complexity         `json:"complexity"`
	ReputationDiscount ReputationDiscount `json:"reputationDiscount"`

	TokenDiscountRate       decimal.Decimal `json:"tokenDiscountRate"`
	TokenDiscountMinBalance decimal.Decimal `json:"tokenDiscountMinBalance"`
	TokenPrice              decimal.Decimal `json:"tokenPrice"`

	Oracle Oracle `json:"oracle"`

	EscrowBufferRate decimal.Decimal `json:"escrowBufferRate"`
	EstimateValidity time.Duration   `json:"estimateValidity"`

	PlatformFeeRate          decimal.Decimal `json:"platformFeeRate"`
	MaxAchievementMultiplier decimal.Decimal `json:"maxAchievementMultiplier"`
	Distribution             Distribution    `json:"distribution"`

	Percentiles    []Breakpoint    `json:"percentiles"` // ascending by Max
	FallbackRank   decimal.Decimal `json:"fallbackRank"`
	Confidence     []CountStep     `json:"confidence"` // descending by MinCount
	Recommendation Recommendation  `json:"recommendation"`

	Reputation Reputation `json:"reputation"`
}

var num = money.MustParse

// Default returns the production economic model.
func Default() Tables {
	return Tables{
		BudgetTiers: []BudgetTier{
			{UpperBound: num("5000"), Rate: num("0.10")},
			{UpperBound: num("20000"), Rate: num("0.08")},
			{UpperBound: num("50000"), Rate: num("0.06")},
		},
		TopRate: num("0.04"),
		Complexity: Complexity{
			Simple:                    num("0.8"),
			Standard:                  num("1.0"),
			Mid:                       num("1.2"),
			Complex:                   num("1.5"),
			SmallCampaignParticipants: 5,
			LargeCampaignParticipants: 20,
		},
		ReputationDiscount: ReputationDiscount{
			SpendNormalizer: num("100000"),
			SpendWeight:     num("0.20"),
			SpendCap:        num("0.20"),
			LoyaltySteps: []Step{
				{Min: num("100000"), Value: num("0.20")}, // platinum
				{Min: num("50000"), Value: num("0.10")},  // gold
				{Min: num("10000"), Value: num("0.05")},  // silver
			},
			MaxDiscount: num("0.40"),
		},
		TokenDiscountRate:       num("0.20"),
		TokenDiscountMinBalance: num("1000"),
		TokenPrice:              num("0.20"),
		Oracle: Oracle{
			BaseCost: num("5.00"),
			SourceCosts: map[string]decimal.Decimal{
				"TWITTER":           num("2.00"),
				"DISCORD":           num("1.50"),
				"TELEGRAM":          num("1.50"),
				"ONCHAIN":           num("3.00"),
				"MEDIA_PUBLICATION": num("4.00"),
			},
			DefaultSourceCost: num("2.00"),
			MetricFactors: []MetricFactor{
				{MaxMetrics: 1, Factor: num("1.0")},
				{MaxMetrics: 3, Factor: num("1.3")},
				{MaxMetrics: 0, Factor: num("1.8")},
			},
			FlatFeeNoMetrics: num("50.00"),
		},
		EscrowBufferRate:         num("0.10"),
		EstimateValidity:         15 * time.Minute,
		PlatformFeeRate:          num("0.04"),
		MaxAchievementMultiplier: num("1.5"),
		Distribution: Distribution{
			Layers: []Layer{
				{Key: LayerTreasury, Share: num("0.50")},
				{Key: LayerValidators, Share: num("0.20")},
				{Key: LayerAIEcosystem, Share: num("0.15")},
				{Key: LayerDAOTreasury, Share: num("0.10")},
				{Key: LayerBuyback, Share: num("0.05")},
			},
			RemainderLayer: LayerTreasury,
		},
		// Coarse breakpoints until real distribution data exists.
		Percentiles: []Breakpoint{
			{Max: num("0.30"), Percentile: num("90")},
			{Max: num("0.45"), Percentile: num("70")},
			{Max: num("0.60"), Percentile: num("50")},
		},
		FallbackRank: num("30"),
		Confidence: []CountStep{
			{MinCount: 20, Value: num("0.95")},
			{MinCount: 10, Value: num("0.85")},
			{MinCount: 5, Value: num("0.75")},
			{MinCount: 0, Value: num("0.65")},
		},
		Recommendation: Recommendation{
			HistoricalWeight:    num("0.35"),
			AudienceWeight:      num("0.25"),
			BudgetWeight:        num("0.20"),
			CategoryWeight:      num("0.15"),
			ReputationWeight:    num("0.05"),
			ProjectionDiscount:  num("0.95"),
			ProjectionFeeRate:   num("0.04"),
			ProjectionOracleFee: num("50"),
			PlatformAverageCVPI: num("0.52"),
			CategoryExpertAt:    10,
		},
		Reputation: Reputation{
			Creator: ReputationScale{
				Name:     ScaleCreator,
				MaxScore: num("1000"),
				Bands: []Band{
					{Tier: "S", MinScore: num("900"), FeeDiscount: num("0.40"), Percentile: num("99"), PriorityApplications: true, HigherPayoutPotential: true, ExclusiveCampaigns: true},
					{Tier: "A", MinScore: num("800"), FeeDiscount: num("0.30"), Percentile: num("95"), PriorityApplications: true, HigherPayoutPotential: true, ExclusiveCampaigns: true},
					{Tier: "B", MinScore: num("700"), FeeDiscount: num("0.20"), Percentile: num("85"), PriorityApplications: true, HigherPayoutPotential: true},
					{Tier: "C", MinScore: num("600"), FeeDiscount: num("0.10"), Percentile: num("70")},
					{Tier: "NEWCOMER", MinScore: num("0"), FeeDiscount: num("0"), Percentile: num("50")},
				},
			},
			Generic: ReputationScale{
				Name:     ScaleGeneric,
				MaxScore: num("100"),
				Bands: []Band{
					{Tier: "DIAMOND", MinScore: num("90"), FeeDiscount: num("0.40"), PriorityApplications: true, HigherPayoutPotential: true, ExclusiveCampaigns: true},
					{Tier: "PLATINUM", MinScore: num("75"), FeeDiscount: num("0.30"), PriorityApplications: true, HigherPayoutPotential: true, ExclusiveCampaigns: true},
					{Tier: "GOLD", MinScore: num("60"), FeeDiscount: num("0.20"), PriorityApplications: true, HigherPayoutPotential: true},
					{Tier: "SILVER", MinScore: num("40"), FeeDiscount: num("0.10")},
					{Tier: "BRONZE", MinScore: num("20"), FeeDiscount: num("0.05")},
					{Tier: "NEWCOMER", MinScore: num("0"), FeeDiscount: num("0")},
				},
			},
			ApprovalThreshold: num("20"),
			PointsPerCampaign: 15,
		},
	}
}

// Revenue layer keys.
const (
	LayerTreasury    = "treasury"
	LayerValidators  = "validators"
	LayerAIEcosystem = "aiEcosystem"
	LayerDAOTreasury = "daoTreasury"
	LayerBuyback     = "buyback"
)

// Reputation scale names.
const (
	ScaleCreator = "creator"
	ScaleGeneric = "generic"
)

// Validate checks internal consistency.
func (t Tables) Validate() error {
	if len(t.BudgetTiers) == 0 {
		return fmt.Errorf("%w: at least one budget tier is required", ErrInvalidTables)
	}
	prev := decimal.Zero
	for i, tier := range t.BudgetTiers {
		if !tier.UpperBound.GreaterThan(prev) {
			return fmt.Errorf("%w: budget tier %d bound %s must exceed %s", ErrInvalidTables, i+1, tier.UpperBound, prev)
		}
		if !isRate(tier.Rate) {
			return fmt.Errorf("%w: budget tier %d rate %s outside [0,1]", ErrInvalidTables, i+1, tier.Rate)
		}
		prev = tier.UpperBound
	}
	for name, r := range map[string]decimal.Decimal{
		"topRate":           t.TopRate,
		"tokenDiscountRate": t.TokenDiscountRate,
		"escrowBufferRate":  t.EscrowBufferRate,
		"platformFeeRate":   t.PlatformFeeRate,
		"maxDiscount":       t.ReputationDiscount.MaxDiscount,
	} {
		if !isRate(r) {
			return fmt.Errorf("%w: %s %s outside [0,1]", ErrInvalidTables, name, r)
		}
	}
	if !t.ReputationDiscount.SpendNormalizer.IsPositive() {
		return fmt.Errorf("%w: spend normalizer must be positive", ErrInvalidTables)
	}
	if !t.TokenPrice.IsPositive() {
		return fmt.Errorf("%w: token price must be positive", ErrInvalidTables)
	}
	if t.EstimateValidity <= 0 {
		return fmt.Errorf("%w: estimate validity must be positive", ErrInvalidTables)
	}
	if len(t.Oracle.MetricFactors) == 0 {
		return fmt.Errorf("%w: oracle metric factors are required", ErrInvalidTables)
	}
	if !t.MaxAchievementMultiplier.IsPositive() {
		return fmt.Errorf("%w: max achievement multiplier must be positive", ErrInvalidTables)
	}
	if !t.Recommendation.ProjectionDiscount.IsPositive() {
		return fmt.Errorf("%w: projection discount must be positive", ErrInvalidTables)
	}
	// Projections divide by this when a creator has no history.
	if !t.Recommendation.PlatformAverageCVPI.IsPositive() {
		return fmt.Errorf("%w: platform average cvpi must be positive", ErrInvalidTables)
	}
	for i := 1; i < len(t.Percentiles); i++ {
		if !t.Percentiles[i].Max.GreaterThan(t.Percentiles[i-1].Max) {
			return fmt.Errorf("%w: percentile breakpoints must be strictly ascending", ErrInvalidTables)
		}
	}
	for i := 1; i < len(t.Confidence); i++ {
		if t.Confidence[i].MinCount >= t.Confidence[i-1].MinCount {
			return fmt.Errorf("%w: confidence steps must be strictly descending", ErrInvalidTables)
		}
	}

	total := decimal.Zero
	hasRemainder := false
	for _, l := range t.Distribution.Layers {
		if l.Share.IsNegative() {
			return fmt.Errorf("%w: layer %s share is negative", ErrInvalidTables, l.Key)
		}
		total = total.Add(l.Share)
		if l.Key == t.Distribution.RemainderLayer {
			hasRemainder = true
		}
	}
	if !total.Equal(money.One) {
		return fmt.Errorf("%w: distribution shares sum to %s, want 1", ErrInvalidTables, total)
	}
	if !hasRemainder {
		return fmt.Errorf("%w: remainder layer %q is not a distribution layer", ErrInvalidTables, t.Distribution.RemainderLayer)
	}

	for _, s := range []ReputationScale{t.Reputation.Creator, t.Reputation.Generic} {
		if err := s.validate(); err != nil {
			return err
		}
	}
	if t.Reputation.PointsPerCampaign <= 0 {
		return fmt.Errorf("%w: points per campaign must be positive", ErrInvalidTables)
	}
	return nil
}

func (s ReputationScale) validate() error {
	if len(s.Bands) == 0 {
		return fmt.Errorf("%w: scale %s has no bands", ErrInvalidTables, s.Name)
	}
	for i := 1; i < len(s.Bands); i++ {
		if !s.Bands[i].MinScore.LessThan(s.Bands[i-1].MinScore) {
			return fmt.Errorf("%w: scale %s bands must be strictly descending", ErrInvalidTables, s.Name)
		}
	}
	if !s.Bands[len(s.Bands)-1].MinScore.IsZero() {
		return fmt.Errorf("%w: scale %s lowest band must start at 0", ErrInvalidTables, s.Name)
	}
	if s.Bands[0].MinScore.GreaterThan(s.MaxScore) {
		return fmt.Errorf("%w: scale %s top band above max score", ErrInvalidTables, s.Name)
	}
	return nil
}

func isRate(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThanOrEqual(money.One)
}
