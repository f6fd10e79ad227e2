package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/metrics"
	"github.com/mbd888/aw3econ/internal/validation"
)

// Request settles one deliverable. Exactly one of AchievementPct or KPIs is
// required. FeeRate defaults to the platform rate; CreatorScore, when set,
// applies the creator's tier discount to it.
type Request struct {
	DeliverableID  string              `json:"deliverableId,omitempty"`
	CreatorAddr    string              `json:"creatorAddr,omitempty"`
	BaseAmount     decimal.Decimal     `json:"baseAmount"`
	AchievementPct *decimal.Decimal    `json:"achievementPct,omitempty"`
	KPIs           []AchievementRecord `json:"kpis,omitempty"`
	FeeRate        *decimal.Decimal    `json:"feeRate,omitempty"`
	CreatorScore   *decimal.Decimal    `json:"creatorScore,omitempty"`
}

// SettleRequest resolves the fee rate and achievement for req and settles.
func (c *Calculator) SettleRequest(req Request) (*Settlement, error) {
	validators := []func() *validation.ValidationError{
		validation.MaxLength("deliverableId", req.DeliverableID, 64),
	}
	if req.CreatorAddr != "" {
		validators = append(validators, validation.ValidAddress("creatorAddr", req.CreatorAddr))
	}
	switch {
	case req.AchievementPct == nil && len(req.KPIs) == 0:
		validators = append(validators, func() *validation.ValidationError {
			return &validation.ValidationError{Field: "achievementPct", Message: "achievementPct or kpis is required"}
		})
	case req.AchievementPct != nil && len(req.KPIs) > 0:
		validators = append(validators, func() *validation.ValidationError {
			return &validation.ValidationError{Field: "kpis", Message: "provide either achievementPct or kpis, not both"}
		})
	}
	if err := validation.Check(validators...); err != nil {
		return nil, err
	}

	feeRate := c.DefaultFeeRate()
	if req.FeeRate != nil {
		feeRate = *req.FeeRate
	}
	if req.CreatorScore != nil {
		rate, err := c.EffectiveFeeRate(feeRate, *req.CreatorScore)
		if err != nil {
			return nil, err
		}
		feeRate = rate
	}

	var (
		s   *Settlement
		err error
	)
	if req.AchievementPct != nil {
		s, err = c.Settle(req.BaseAmount, *req.AchievementPct, feeRate)
	} else {
		s, err = c.SettleRecords(req.BaseAmount, req.KPIs, feeRate)
	}
	if err != nil {
		return nil, err
	}

	capped := "false"
	if s.Capped {
		capped = "true"
	}
	metrics.SettlementsTotal.WithLabelValues(capped).Inc()
	metrics.AddPlatformFee(s.PlatformFee)
	return s, nil
}
