// Package fees computes campaign fee estimates and manages the signed,
// time-boxed quotes handed to the escrow funding rail.
//
// An estimate is pure arithmetic over the economic tables: base fee by
// budget tier, a complexity multiplier, the payer's reputation discount, an
// optional platform-token discount, the oracle verification fee and an
// escrow buffer. Every money step rounds to cents HALF_UP; rates are never
// rounded. Estimates expire after the table's EstimateValidity and callers
// must reject stale ones (see CheckFresh).
package fees

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/idgen"
	"github.com/mbd888/aw3econ/internal/money"
	"github.com/mbd888/aw3econ/internal/tables"
	"github.com/mbd888/aw3econ/internal/validation"
)

var (
	ErrEstimateExpired = errors.New("fee estimate has expired")
	ErrQuoteNotFound   = errors.New("fee quote not found")
	ErrAlreadyAccepted = errors.New("fee quote already accepted")
	ErrBadSignature    = errors.New("fee quote signature mismatch")
)

// Complexity is the campaign complexity tag.
type Complexity string

const (
	ComplexitySimple     Complexity = "SIMPLE"
	ComplexityStandard   Complexity = "STANDARD"
	ComplexityComplex    Complexity = "COMPLEX"
	ComplexityEnterprise Complexity = "ENTERPRISE"
)

// Valid reports whether c is a known tag.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexitySimple, ComplexityStandard, ComplexityComplex, ComplexityEnterprise:
		return true
	}
	return false
}

// KPIMetric is one tracked metric and the data source that verifies it.
type KPIMetric struct {
	Source string          `json:"source"`
	Weight decimal.Decimal `json:"weight"`
}

// CampaignBudgetInput describes a proposed campaign.
type CampaignBudgetInput struct {
	BudgetAmount         decimal.Decimal `json:"budgetAmount"`
	NumberOfParticipants int             `json:"numberOfParticipants"`
	ComplexityTag        Complexity      `json:"complexityTag"`
	KPIMetrics           []KPIMetric     `json:"kpiMetrics"`
	PayWithPlatformToken bool            `json:"payWithPlatformToken"`
}

// PartyEconomicProfile is the payer's economic history. Never mutated.
type PartyEconomicProfile struct {
	CumulativeSpend decimal.Decimal `json:"cumulativeSpend"`
	ReputationScore decimal.Decimal `json:"reputationScore"`
}

// OracleBreakdown explains how the oracle fee was derived.
type OracleBreakdown struct {
	PerParticipantCost decimal.Decimal `json:"perParticipantCost"`
	SourceCost         decimal.Decimal `json:"sourceCost"`
	MetricFactor       decimal.Decimal `json:"metricFactor"`
	Participants       int             `json:"participants"`
	FlatFee            bool            `json:"flatFee"`
}

// FeeEstimate is the full fee and escrow breakdown for a campaign.
type FeeEstimate struct {
	ID           string          `json:"id"`
	BudgetAmount decimal.Decimal `json:"budgetAmount"`

	BaseRate               decimal.Decimal `json:"baseRate"`
	BaseFee                decimal.Decimal `json:"baseFee"`
	ComplexityMultiplier   decimal.Decimal `json:"complexityMultiplier"`
	ComplexityAdjustedFee  decimal.Decimal `json:"complexityAdjustedFee"`
	ReputationDiscountRate decimal.Decimal `json:"reputationDiscountRate"`
	DiscountAmount         decimal.Decimal `json:"discountAmount"`
	ServiceFeeBeforeToken  decimal.Decimal `json:"serviceFeeBeforeToken"`
	TokenDiscountRate      decimal.Decimal `json:"tokenDiscountRate"`
	TokenDiscountAmount    decimal.Decimal `json:"tokenDiscountAmount"`
	FinalServiceFee        decimal.Decimal `json:"finalServiceFee"`

	OracleFee       decimal.Decimal `json:"oracleFee"`
	OracleBreakdown OracleBreakdown `json:"oracleBreakdown"`

	TotalFees           decimal.Decimal `json:"totalFees"`
	EscrowBuffer        decimal.Decimal `json:"escrowBuffer"`
	TotalEscrowRequired decimal.Decimal `json:"totalEscrowRequired"`

	CreatedAt  time.Time `json:"createdAt"`
	ValidUntil time.Time `json:"validUntil"`
}

// CheckFresh returns ErrEstimateExpired once now is past ValidUntil.
// Anything that funds escrow from an estimate must call it first.
func (e *FeeEstimate) CheckFresh(now time.Time) error {
	if now.After(e.ValidUntil) {
		return ErrEstimateExpired
	}
	return nil
}

// Estimator computes fee estimates. Safe for concurrent use.
type Estimator struct {
	tables tables.Tables
	now    func() time.Time
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithClock overrides the clock used for CreatedAt/ValidUntil.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) { e.now = now }
}

// NewEstimator creates an estimator over the given tables.
func NewEstimator(t tables.Tables, opts ...Option) *Estimator {
	e := &Estimator{tables: t, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tables returns the tables the estimator was built with.
func (e *Estimator) Tables() tables.Tables {
	return e.tables
}

// Estimate computes the fee breakdown for a campaign.
func (e *Estimator) Estimate(in CampaignBudgetInput, payer PartyEconomicProfile) (*FeeEstimate, error) {
	if err := validateInput(in, payer); err != nil {
		return nil, err
	}
	t := e.tables

	baseRate := t.BaseRate(in.BudgetAmount)
	baseFee := money.Round2(in.BudgetAmount.Mul(baseRate))

	multiplier := e.complexityMultiplier(in)
	adjusted := money.Round2(baseFee.Mul(multiplier))

	discountRate := e.ReputationDiscount(payer.CumulativeSpend)
	discountAmount := money.Round2(adjusted.Mul(discountRate))
	afterReputation := adjusted.Sub(discountAmount)

	tokenRate := decimal.Zero
	if in.PayWithPlatformToken {
		tokenRate = t.TokenDiscountRate
	}
	tokenAmount := money.Round2(afterReputation.Mul(tokenRate))
	finalFee := money.Max(afterReputation.Sub(tokenAmount), decimal.Zero)

	oracleFee, breakdown := e.oracleFee(in)

	totalFees := finalFee.Add(oracleFee)
	gross := in.BudgetAmount.Add(totalFees)
	buffer := money.Round2(gross.Mul(t.EscrowBufferRate))

	now := e.now().UTC()
	return &FeeEstimate{
		ID:                     idgen.WithPrefix("fq_"),
		BudgetAmount:           in.BudgetAmount,
		BaseRate:               baseRate,
		BaseFee:                baseFee,
		ComplexityMultiplier:   multiplier,
		ComplexityAdjustedFee:  adjusted,
		ReputationDiscountRate: discountRate,
		DiscountAmount:         discountAmount,
		ServiceFeeBeforeToken:  afterReputation,
		TokenDiscountRate:      tokenRate,
		TokenDiscountAmount:    tokenAmount,
		FinalServiceFee:        finalFee,
		OracleFee:              oracleFee,
		OracleBreakdown:        breakdown,
		TotalFees:              totalFees,
		EscrowBuffer:           buffer,
		TotalEscrowRequired:    gross.Add(buffer),
		CreatedAt:              now,
		ValidUntil:             now.Add(t.EstimateValidity),
	}, nil
}

func validateInput(in CampaignBudgetInput, payer PartyEconomicProfile) error {
	validators := []func() *validation.ValidationError{
		validation.Positive("budgetAmount", in.BudgetAmount),
		validation.MinInt("numberOfParticipants", in.NumberOfParticipants, 1),
		validation.NonNegative("cumulativeSpend", payer.CumulativeSpend),
		validation.NonNegative("reputationScore", payer.ReputationScore),
	}
	if in.ComplexityTag != "" && !in.ComplexityTag.Valid() {
		validators = append(validators, validation.OneOf("complexityTag", string(in.ComplexityTag),
			string(ComplexitySimple), string(ComplexityStandard), string(ComplexityComplex), string(ComplexityEnterprise)))
	}
	for _, m := range in.KPIMetrics {
		validators = append(validators, validation.NonNegative("kpiMetrics.weight", m.Weight))
	}
	return validation.Check(validators...)
}

// complexityMultiplier applies the first matching rule: simple or solo,
// complex or large, small, otherwise mid.
func (e *Estimator) complexityMultiplier(in CampaignBudgetInput) decimal.Decimal {
	c := e.tables.Complexity
	switch {
	case in.ComplexityTag == ComplexitySimple || in.NumberOfParticipants == 1:
		return c.Simple
	case in.ComplexityTag == ComplexityComplex || in.ComplexityTag == ComplexityEnterprise ||
		in.NumberOfParticipants > c.LargeCampaignParticipants:
		return c.Complex
	case in.NumberOfParticipants <= c.SmallCampaignParticipants:
		return c.Standard
	default:
		return c.Mid
	}
}

// ReputationDiscount returns the payer's fee discount rate for a cumulative
// spend: a capped linear spend component plus a loyalty step, capped overall.
func (e *Estimator) ReputationDiscount(spend decimal.Decimal) decimal.Decimal {
	rd := e.tables.ReputationDiscount
	ratio := money.Round4(spend.Div(rd.SpendNormalizer))
	spendComponent := money.Min(ratio.Mul(rd.SpendWeight), rd.SpendCap)
	return money.Min(spendComponent.Add(e.tables.LoyaltyBonus(spend)), rd.MaxDiscount)
}

func (e *Estimator) oracleFee(in CampaignBudgetInput) (decimal.Decimal, OracleBreakdown) {
	o := e.tables.Oracle
	if len(in.KPIMetrics) == 0 {
		return o.FlatFeeNoMetrics, OracleBreakdown{Participants: in.NumberOfParticipants, FlatFee: true}
	}
	sourceCost := decimal.Zero
	for _, m := range in.KPIMetrics {
		sourceCost = sourceCost.Add(e.tables.SourceCost(m.Source))
	}
	perParticipant := o.BaseCost.Add(sourceCost)
	factor := e.tables.MetricFactor(len(in.KPIMetrics))
	fee := money.Round2(perParticipant.Mul(factor).Mul(decimal.NewFromInt(int64(in.NumberOfParticipants))))
	return fee, OracleBreakdown{
		PerParticipantCost: perParticipant,
		SourceCost:         sourceCost,
		MetricFactor:       factor,
		Participants:       in.NumberOfParticipants,
	}
}

// TokenPaymentEstimate is the cost of paying a fee in platform tokens.
type TokenPaymentEstimate struct {
	OriginalFee       decimal.Decimal `json:"originalFee"`
	DiscountRate      decimal.Decimal `json:"discountRate"`
	FeeWithDiscount   decimal.Decimal `json:"feeWithDiscount"`
	Savings           decimal.Decimal `json:"savings"`
	TokenPrice        decimal.Decimal `json:"tokenPrice"`
	TokensRequired    decimal.Decimal `json:"tokensRequired"`
	TokenBalance      decimal.Decimal `json:"tokenBalance"`
	SufficientBalance bool            `json:"sufficientBalance"`
	ValidUntil        time.Time       `json:"validUntil"`
}

// TokenPayment prices fee in platform tokens at the configured token price.
// Tokens required round up to whole tokens.
func (e *Estimator) TokenPayment(fee, balance decimal.Decimal) (*TokenPaymentEstimate, error) {
	if err := validation.Check(
		validation.NonNegative("fee", fee),
		validation.NonNegative("tokenBalance", balance),
	); err != nil {
		return nil, err
	}
	t := e.tables
	discounted := money.Round2(fee.Mul(money.One.Sub(t.TokenDiscountRate)))
	tokens := discounted.Div(t.TokenPrice).Ceil()
	return &TokenPaymentEstimate{
		OriginalFee:       fee,
		DiscountRate:      t.TokenDiscountRate,
		FeeWithDiscount:   discounted,
		Savings:           fee.Sub(discounted),
		TokenPrice:        t.TokenPrice,
		TokensRequired:    tokens,
		TokenBalance:      balance,
		SufficientBalance: balance.GreaterThanOrEqual(tokens),
		ValidUntil:        e.now().UTC().Add(t.EstimateValidity),
	}, nil
}

// TokenDiscountEligible reports whether a token balance qualifies for the
// platform-token discount.
func (e *Estimator) TokenDiscountEligible(balance decimal.Decimal) bool {
	return balance.GreaterThanOrEqual(e.tables.TokenDiscountMinBalance)
}

// ParseComplexity normalizes a tag; empty means STANDARD.
func ParseComplexity(s string) Complexity {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ComplexityStandard
	}
	return Complexity(s)
}
