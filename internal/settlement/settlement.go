// Package settlement turns verified KPI achievement into a creator payment,
// a platform fee, and the fee's split across the revenue layers.
package settlement

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/money"
	"github.com/mbd888/aw3econ/internal/reputation"
	"github.com/mbd888/aw3econ/internal/tables"
	"github.com/mbd888/aw3econ/internal/validation"
)

// MaxAchievementPct bounds reported achievement so its basis points fit an int64.
var MaxAchievementPct = money.MustParse("1000000")

// AchievementRecord is one verified KPI result.
type AchievementRecord struct {
	Metric      string          `json:"metric,omitempty"`
	TargetValue decimal.Decimal `json:"targetValue"`
	ActualValue decimal.Decimal `json:"actualValue"`
	Weight      decimal.Decimal `json:"weight"`
}

// KPIResult is a record's contribution to overall achievement.
type KPIResult struct {
	Metric       string          `json:"metric,omitempty"`
	Achievement  decimal.Decimal `json:"achievement"`
	Weight       decimal.Decimal `json:"weight"`
	Contribution decimal.Decimal `json:"contribution"`
}

// Distribution is the platform fee split across revenue layers.
type Distribution struct {
	PlatformFee    decimal.Decimal            `json:"platformFee"`
	Breakdown      map[string]decimal.Decimal `json:"breakdown"`
	RemainderLayer string                     `json:"remainderLayer"`
	Remainder      decimal.Decimal            `json:"remainder"`
}

// Total sums every layer amount.
func (d Distribution) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range d.Breakdown {
		total = total.Add(v)
	}
	return total
}

// Settlement is the payment outcome for one deliverable.
type Settlement struct {
	BaseAmount            decimal.Decimal `json:"baseAmount"`
	AchievementPct        decimal.Decimal `json:"achievementPct"`
	AchievementRateBps    int64           `json:"achievementRateBps"`
	AchievementMultiplier decimal.Decimal `json:"achievementMultiplier"`
	Capped                bool            `json:"capped"`
	CalculatedPayment     decimal.Decimal `json:"calculatedPayment"`
	FeeRate               decimal.Decimal `json:"feeRate"`
	PlatformFee           decimal.Decimal `json:"platformFee"`
	NetToCreator          decimal.Decimal `json:"netToCreator"`
	RefundToProject       decimal.Decimal `json:"refundToProject"`
	Distribution          Distribution    `json:"distribution"`
	KPIResults            []KPIResult     `json:"kpiResults,omitempty"`
}

// Calculator settles payments against the economic tables.
type Calculator struct {
	tables  tables.Tables
	creator *reputation.Scale
}

// NewCalculator creates a settlement calculator. creator supplies tier fee
// discounts; it may be nil, in which case no discount applies.
func NewCalculator(t tables.Tables, creator *reputation.Scale) *Calculator {
	return &Calculator{tables: t, creator: creator}
}

// DefaultFeeRate returns the configured platform fee rate.
func (c *Calculator) DefaultFeeRate() decimal.Decimal {
	return c.tables.PlatformFeeRate
}

// Settle computes the payment for baseAmount at achievementPct percent.
// The multiplier is capped, so any achievement above the cap pays the same.
func (c *Calculator) Settle(baseAmount, achievementPct, feeRate decimal.Decimal) (*Settlement, error) {
	if err := validation.Check(
		validation.NonNegative("baseAmount", baseAmount),
		validation.InRange("achievementPct", achievementPct, money.Zero, MaxAchievementPct),
		validation.InRange("feeRate", feeRate, money.Zero, money.One),
	); err != nil {
		return nil, err
	}

	raw := money.Round4(achievementPct.Div(money.Hundred))
	maxMult := c.tables.MaxAchievementMultiplier
	multiplier := money.Clamp(raw, money.Zero, maxMult)

	calculated := money.Round2(baseAmount.Mul(multiplier))
	fee := money.Round2(calculated.Mul(feeRate))
	dist, err := c.Distribute(fee)
	if err != nil {
		return nil, err
	}

	return &Settlement{
		BaseAmount:            baseAmount,
		AchievementPct:        achievementPct,
		AchievementRateBps:    achievementPct.Mul(money.Hundred).IntPart(),
		AchievementMultiplier: multiplier,
		Capped:                raw.GreaterThan(maxMult),
		CalculatedPayment:     calculated,
		FeeRate:               feeRate,
		PlatformFee:           fee,
		NetToCreator:          calculated.Sub(fee),
		RefundToProject:       money.Max(baseAmount.Sub(calculated), money.Zero),
		Distribution:          *dist,
	}, nil
}

// Distribute splits platformFee across the configured layers. Each layer is
// rounded to cents and the rounding remainder goes to the remainder layer, so
// the layers always sum to exactly platformFee.
func (c *Calculator) Distribute(platformFee decimal.Decimal) (*Distribution, error) {
	if err := validation.Check(validation.NonNegative("platformFee", platformFee)); err != nil {
		return nil, err
	}
	cfg := c.tables.Distribution
	breakdown := make(map[string]decimal.Decimal, len(cfg.Layers))
	allocated := decimal.Zero
	for _, l := range cfg.Layers {
		amount := money.Round2(platformFee.Mul(l.Share))
		breakdown[l.Key] = amount
		allocated = allocated.Add(amount)
	}
	remainder := platformFee.Sub(allocated)
	breakdown[cfg.RemainderLayer] = breakdown[cfg.RemainderLayer].Add(remainder)

	return &Distribution{
		PlatformFee:    platformFee,
		Breakdown:      breakdown,
		RemainderLayer: cfg.RemainderLayer,
		Remainder:      remainder,
	}, nil
}

// OverallAchievement is the weighted sum of each record's achievement
// percentage (actual / target * 100). Percentages and contributions are kept
// at four places; the total is rounded to two.
func (c *Calculator) OverallAchievement(records []AchievementRecord) (decimal.Decimal, []KPIResult, error) {
	if len(records) == 0 {
		return decimal.Zero, nil, validation.Fail("kpis", "at least one KPI result is required")
	}
	var errs validation.ValidationErrors
	for i, r := range records {
		field := fmt.Sprintf("kpis[%d]", i)
		if !r.TargetValue.IsPositive() {
			errs = append(errs, validation.ValidationError{Field: field + ".targetValue", Message: "must be positive"})
		}
		if r.ActualValue.IsNegative() {
			errs = append(errs, validation.ValidationError{Field: field + ".actualValue", Message: "must not be negative"})
		}
		if r.Weight.IsNegative() || r.Weight.GreaterThan(money.One) {
			errs = append(errs, validation.ValidationError{Field: field + ".weight", Message: "must be between 0 and 1"})
		}
	}
	if len(errs) > 0 {
		return decimal.Zero, nil, errs
	}

	overall := decimal.Zero
	results := make([]KPIResult, 0, len(records))
	for _, r := range records {
		achievement := r.ActualValue.Mul(money.Hundred).DivRound(r.TargetValue, money.IndexPlaces)
		contribution := money.Round4(achievement.Mul(r.Weight))
		overall = overall.Add(contribution)
		results = append(results, KPIResult{
			Metric:       strings.TrimSpace(r.Metric),
			Achievement:  achievement,
			Weight:       r.Weight,
			Contribution: contribution,
		})
	}
	return money.Round2(overall), results, nil
}

// SettleRecords derives achievement from KPI records, then settles.
func (c *Calculator) SettleRecords(baseAmount decimal.Decimal, records []AchievementRecord, feeRate decimal.Decimal) (*Settlement, error) {
	pct, results, err := c.OverallAchievement(records)
	if err != nil {
		return nil, err
	}
	s, err := c.Settle(baseAmount, pct, feeRate)
	if err != nil {
		return nil, err
	}
	s.KPIResults = results
	return s, nil
}

// EffectiveFeeRate discounts baseRate by the fee discount of the creator's
// reputation tier at creatorScore.
func (c *Calculator) EffectiveFeeRate(baseRate, creatorScore decimal.Decimal) (decimal.Decimal, error) {
	if err := validation.Check(
		validation.InRange("feeRate", baseRate, money.Zero, money.One),
		validation.NonNegative("creatorScore", creatorScore),
	); err != nil {
		return decimal.Zero, err
	}
	if c.creator == nil {
		return baseRate, nil
	}
	discount := c.creator.FeeDiscount(creatorScore)
	return money.Round4(baseRate.Mul(money.One.Sub(discount))), nil
}
