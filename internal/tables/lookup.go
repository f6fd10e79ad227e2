package tables

import (
	"strings"

	"github.com/shopspring/decimal"
)

// BaseRate returns the fee rate of the first tier whose upper bound exceeds
// budget, or TopRate.
func (t Tables) BaseRate(budget decimal.Decimal) decimal.Decimal {
	for _, tier := range t.BudgetTiers {
		if budget.LessThan(tier.UpperBound) {
			return tier.Rate
		}
	}
	return t.TopRate
}

// LoyaltyBonus returns the step bonus for cumulative spend.
func (t Tables) LoyaltyBonus(spend decimal.Decimal) decimal.Decimal {
	for _, s := range t.ReputationDiscount.LoyaltySteps {
		if spend.GreaterThanOrEqual(s.Min) {
			return s.Value
		}
	}
	return decimal.Zero
}

// SourceCost returns the per-verification cost of a data source. Unknown
// sources cost DefaultSourceCost.
func (t Tables) SourceCost(source string) decimal.Decimal {
	if c, ok := t.Oracle.SourceCosts[strings.ToUpper(strings.TrimSpace(source))]; ok {
		return c
	}
	return t.Oracle.DefaultSourceCost
}

// MetricFactor returns the oracle factor for n tracked metrics.
func (t Tables) MetricFactor(n int) decimal.Decimal {
	for _, f := range t.Oracle.MetricFactors {
		if f.MaxMetrics == 0 || n <= f.MaxMetrics {
			return f.Factor
		}
	}
	return t.Oracle.MetricFactors[len(t.Oracle.MetricFactors)-1].Factor
}

// PercentileFor maps a CVPI value to a percentile rank. This is a coarse
// step function, not a distribution.
func (t Tables) PercentileFor(cvpi decimal.Decimal) decimal.Decimal {
	for _, b := range t.Percentiles {
		if cvpi.LessThanOrEqual(b.Max) {
			return b.Percentile
		}
	}
	return t.FallbackRank
}

// ConfidenceFor maps a completed-campaign count to a projection confidence.
func (t Tables) ConfidenceFor(completed int) decimal.Decimal {
	for _, s := range t.Confidence {
		if completed >= s.MinCount {
			return s.Value
		}
	}
	if len(t.Confidence) == 0 {
		return decimal.Zero
	}
	return t.Confidence[len(t.Confidence)-1].Value
}

// Scale returns the named reputation scale.
func (t Tables) Scale(name string) (ReputationScale, bool) {
	switch strings.ToLower(name) {
	case "", ScaleCreator:
		return t.Reputation.Creator, true
	case ScaleGeneric, "admin":
		return t.Reputation.Generic, true
	}
	return ReputationScale{}, false
}
