package fees

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/aw3econ/internal/money"
	"github.com/mbd888/aw3econ/internal/tables"
	"github.com/mbd888/aw3econ/internal/validation"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEstimator() *Estimator {
	return NewEstimator(tables.Default(), WithClock(func() time.Time { return fixedNow }))
}

func dec(s string) decimal.Decimal { return money.MustParse(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "%s = %s, want %s", field, got, want)
}

func TestEstimate_SoloSimpleCampaign(t *testing.T) {
	est, err := newTestEstimator().Estimate(CampaignBudgetInput{
		BudgetAmount:         dec("4000"),
		NumberOfParticipants: 1,
		ComplexityTag:        ComplexitySimple,
	}, PartyEconomicProfile{})
	require.NoError(t, err)

	assertDec(t, "0.10", est.BaseRate, "baseRate")
	assertDec(t, "400", est.BaseFee, "baseFee")
	assertDec(t, "0.8", est.ComplexityMultiplier, "complexityMultiplier")
	assertDec(t, "320", est.ComplexityAdjustedFee, "complexityAdjustedFee")
	assertDec(t, "0", est.ReputationDiscountRate, "reputationDiscountRate")
	assertDec(t, "0", est.DiscountAmount, "discountAmount")
	assertDec(t, "320", est.FinalServiceFee, "finalServiceFee")
	assertDec(t, "50", est.OracleFee, "oracleFee")
	assert.True(t, est.OracleBreakdown.FlatFee)
	assertDec(t, "370", est.TotalFees, "totalFees")
	assertDec(t, "437", est.EscrowBuffer, "escrowBuffer")
	assertDec(t, "4807", est.TotalEscrowRequired, "totalEscrowRequired")
	assert.Equal(t, fixedNow, est.CreatedAt)
	assert.Equal(t, fixedNow.Add(15*time.Minute), est.ValidUntil)
	assert.NotEmpty(t, est.ID)
}

func TestEstimate_FullBreakdown(t *testing.T) {
	est, err := newTestEstimator().Estimate(CampaignBudgetInput{
		BudgetAmount:         dec("25000"),
		NumberOfParticipants: 10,
		ComplexityTag:        ComplexityStandard,
		KPIMetrics: []KPIMetric{
			{Source: "TWITTER", Weight: dec("0.6")},
			{Source: "ONCHAIN", Weight: dec("0.4")},
		},
		PayWithPlatformToken: true,
	}, PartyEconomicProfile{CumulativeSpend: dec("60000")})
	require.NoError(t, err)

	assertDec(t, "0.06", est.BaseRate, "baseRate")
	assertDec(t, "1500", est.BaseFee, "baseFee")
	assertDec(t, "1.2", est.ComplexityMultiplier, "complexityMultiplier")
	assertDec(t, "1800", est.ComplexityAdjustedFee, "complexityAdjustedFee")
	assertDec(t, "0.22", est.ReputationDiscountRate, "reputationDiscountRate")
	assertDec(t, "396", est.DiscountAmount, "discountAmount")
	assertDec(t, "1404", est.ServiceFeeBeforeToken, "serviceFeeBeforeToken")
	assertDec(t, "0.20", est.TokenDiscountRate, "tokenDiscountRate")
	assertDec(t, "280.80", est.TokenDiscountAmount, "tokenDiscountAmount")
	assertDec(t, "1123.20", est.FinalServiceFee, "finalServiceFee")
	assertDec(t, "10", est.OracleBreakdown.PerParticipantCost, "perParticipantCost")
	assertDec(t, "1.3", est.OracleBreakdown.MetricFactor, "metricFactor")
	assertDec(t, "130", est.OracleFee, "oracleFee")
	assertDec(t, "1253.20", est.TotalFees, "totalFees")
	assertDec(t, "2625.32", est.EscrowBuffer, "escrowBuffer")
	assertDec(t, "28878.52", est.TotalEscrowRequired, "totalEscrowRequired")
}

func TestEstimate_ComplexityPriority(t *testing.T) {
	tests := []struct {
		name         string
		tag          Complexity
		participants int
		want         string
	}{
		{"simple tag wins over size", ComplexitySimple, 50, "0.8"},
		{"solo complex is simple", ComplexityComplex, 1, "0.8"},
		{"complex tag", ComplexityComplex, 3, "1.5"},
		{"enterprise tag", ComplexityEnterprise, 8, "1.5"},
		{"large campaign", ComplexityStandard, 21, "1.5"},
		{"exactly twenty is mid", ComplexityStandard, 20, "1.2"},
		{"small campaign", ComplexityStandard, 5, "1.0"},
		{"two participants", ComplexityStandard, 2, "1.0"},
		{"mid campaign", ComplexityStandard, 6, "1.2"},
	}
	e := newTestEstimator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, err := e.Estimate(CampaignBudgetInput{
				BudgetAmount:         dec("1000"),
				NumberOfParticipants: tt.participants,
				ComplexityTag:        tt.tag,
			}, PartyEconomicProfile{})
			require.NoError(t, err)
			assertDec(t, tt.want, est.ComplexityMultiplier, "complexityMultiplier")
		})
	}
}

func TestEstimate_TierBoundaryIsStep(t *testing.T) {
	e := newTestEstimator()
	for _, boundary := range []string{"5000", "20000", "50000"} {
		below, err := e.Estimate(CampaignBudgetInput{
			BudgetAmount: dec(boundary).Sub(dec("0.01")), NumberOfParticipants: 3,
		}, PartyEconomicProfile{})
		require.NoError(t, err)
		at, err := e.Estimate(CampaignBudgetInput{
			BudgetAmount: dec(boundary), NumberOfParticipants: 3,
		}, PartyEconomicProfile{})
		require.NoError(t, err)

		assert.True(t, below.BaseRate.GreaterThan(at.BaseRate), "boundary %s: %s vs %s", boundary, below.BaseRate, at.BaseRate)
	}
}

func TestReputationDiscount_MonotoneAndCapped(t *testing.T) {
	e := newTestEstimator()
	prev := decimal.Zero
	for spend := int64(0); spend <= 600000; spend += 250 {
		d := e.ReputationDiscount(decimal.NewFromInt(spend))
		assert.True(t, d.GreaterThanOrEqual(prev), "discount decreased at spend %d", spend)
		assert.True(t, d.LessThanOrEqual(dec("0.40")), "discount %s above cap at spend %d", d, spend)
		prev = d
	}
	assertDec(t, "0.40", e.ReputationDiscount(dec("100000")), "discount at 100000")
	assertDec(t, "0.07", e.ReputationDiscount(dec("10000")), "discount at 10000")
}

func TestEstimate_EscrowIdentityHolds(t *testing.T) {
	e := newTestEstimator()
	rng := rand.New(rand.NewSource(42))
	sources := []string{"TWITTER", "DISCORD", "TELEGRAM", "ONCHAIN", "MEDIA_PUBLICATION", "OTHER"}
	tags := []Complexity{ComplexitySimple, ComplexityStandard, ComplexityComplex, ComplexityEnterprise}

	for i := 0; i < 2000; i++ {
		in := CampaignBudgetInput{
			BudgetAmount:         decimal.New(rng.Int63n(10_000_000)+1, -2),
			NumberOfParticipants: rng.Intn(40) + 1,
			ComplexityTag:        tags[rng.Intn(len(tags))],
			PayWithPlatformToken: rng.Intn(2) == 0,
		}
		for j := rng.Intn(6); j > 0; j-- {
			in.KPIMetrics = append(in.KPIMetrics, KPIMetric{Source: sources[rng.Intn(len(sources))], Weight: dec("1")})
		}
		payer := PartyEconomicProfile{CumulativeSpend: decimal.New(rng.Int63n(30_000_000), -2)}

		est, err := e.Estimate(in, payer)
		require.NoError(t, err)
		want := est.BudgetAmount.Add(est.TotalFees).Add(est.EscrowBuffer)
		require.True(t, est.TotalEscrowRequired.Equal(want), "identity broken for %+v", in)
		require.False(t, est.FinalServiceFee.IsNegative())
	}
}

func TestEstimate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    CampaignBudgetInput
		payer PartyEconomicProfile
	}{
		{"zero budget", CampaignBudgetInput{BudgetAmount: dec("0"), NumberOfParticipants: 1}, PartyEconomicProfile{}},
		{"negative budget", CampaignBudgetInput{BudgetAmount: dec("-1"), NumberOfParticipants: 1}, PartyEconomicProfile{}},
		{"no participants", CampaignBudgetInput{BudgetAmount: dec("100"), NumberOfParticipants: 0}, PartyEconomicProfile{}},
		{"unknown tag", CampaignBudgetInput{BudgetAmount: dec("100"), NumberOfParticipants: 1, ComplexityTag: "EPIC"}, PartyEconomicProfile{}},
		{"negative weight", CampaignBudgetInput{BudgetAmount: dec("100"), NumberOfParticipants: 1,
			KPIMetrics: []KPIMetric{{Source: "TWITTER", Weight: dec("-0.1")}}}, PartyEconomicProfile{}},
		{"negative spend", CampaignBudgetInput{BudgetAmount: dec("100"), NumberOfParticipants: 1},
			PartyEconomicProfile{CumulativeSpend: dec("-5")}},
	}
	e := newTestEstimator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, err := e.Estimate(tt.in, tt.payer)
			assert.Nil(t, est)
			assert.True(t, errors.Is(err, validation.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestOracleFee_MetricFactors(t *testing.T) {
	e := newTestEstimator()
	tests := []struct {
		sources []string
		want    string
	}{
		{[]string{"DISCORD"}, "13.00"},                                          // (5+1.5)*1.0*2
		{[]string{"DISCORD", "TELEGRAM", "TWITTER"}, "26.00"},                   // (5+5)*1.3*2
		{[]string{"MEDIA_PUBLICATION", "ONCHAIN", "TWITTER", "OTHER"}, "57.60"}, // (5+11)*1.8*2
	}
	for _, tt := range tests {
		in := CampaignBudgetInput{BudgetAmount: dec("1000"), NumberOfParticipants: 2}
		for _, s := range tt.sources {
			in.KPIMetrics = append(in.KPIMetrics, KPIMetric{Source: s, Weight: dec("1")})
		}
		est, err := e.Estimate(in, PartyEconomicProfile{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, est.OracleFee.StringFixed(2), "sources %v", tt.sources)
	}
}

func TestCheckFresh(t *testing.T) {
	est, err := newTestEstimator().Estimate(CampaignBudgetInput{BudgetAmount: dec("100"), NumberOfParticipants: 1}, PartyEconomicProfile{})
	require.NoError(t, err)

	assert.NoError(t, est.CheckFresh(fixedNow))
	assert.NoError(t, est.CheckFresh(fixedNow.Add(15*time.Minute)))
	assert.ErrorIs(t, est.CheckFresh(fixedNow.Add(15*time.Minute+time.Second)), ErrEstimateExpired)
}

func TestTokenPayment(t *testing.T) {
	e := newTestEstimator()

	est, err := e.TokenPayment(dec("320"), dec("1000"))
	require.NoError(t, err)
	assertDec(t, "256", est.FeeWithDiscount, "feeWithDiscount")
	assertDec(t, "64", est.Savings, "savings")
	assertDec(t, "1280", est.TokensRequired, "tokensRequired")
	assert.False(t, est.SufficientBalance)
	assert.Equal(t, fixedNow.Add(15*time.Minute), est.ValidUntil)

	est, err = e.TokenPayment(dec("100.10"), dec("401"))
	require.NoError(t, err)
	assertDec(t, "80.08", est.FeeWithDiscount, "feeWithDiscount")
	assertDec(t, "401", est.TokensRequired, "tokensRequired")
	assert.True(t, est.SufficientBalance)

	_, err = e.TokenPayment(dec("-1"), dec("0"))
	assert.ErrorIs(t, err, validation.ErrInvalidInput)
}

func TestTokenDiscountEligible(t *testing.T) {
	e := newTestEstimator()
	assert.False(t, e.TokenDiscountEligible(dec("999.99")))
	assert.True(t, e.TokenDiscountEligible(dec("1000")))
}

func TestParseComplexity(t *testing.T) {
	assert.Equal(t, ComplexityStandard, ParseComplexity(""))
	assert.Equal(t, ComplexityEnterprise, ParseComplexity(" enterprise "))
	assert.False(t, ParseComplexity("epic").Valid())
}
