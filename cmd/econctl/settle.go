package main

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mbd888/aw3econ/internal/reputation"
	"github.com/mbd888/aw3econ/internal/settlement"
	"github.com/mbd888/aw3econ/internal/tables"
	"github.com/mbd888/aw3econ/internal/validation"
)

func newCalculator(a *app) (*settlement.Calculator, error) {
	creator, err := reputation.NewScale(a.tables, tables.ScaleCreator)
	if err != nil {
		return nil, err
	}
	return settlement.NewCalculator(a.tables, creator), nil
}

func newSettleCmd(a *app) *cobra.Command {
	var (
		base, achievement, feeRate, creatorScore, creatorAddr string
		kpis                                                  []string
	)

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Compute a performance-adjusted settlement and fee distribution",
		Example: `  econctl settle --base 5000 --achievement 116.3
  econctl settle --base 1000 --creator-score 950 --kpi reach:100:120:0.5 --kpi clicks:40:30:0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			calc, err := newCalculator(a)
			if err != nil {
				return err
			}
			req := settlement.Request{CreatorAddr: creatorAddr}
			if req.BaseAmount, err = validation.ParseAmount("base", base); err != nil {
				return err
			}
			if req.AchievementPct, err = optionalAmount("achievement", achievement); err != nil {
				return err
			}
			if req.FeeRate, err = optionalAmount("fee-rate", feeRate); err != nil {
				return err
			}
			if req.CreatorScore, err = optionalAmount("creator-score", creatorScore); err != nil {
				return err
			}
			if req.KPIs, err = parseAchievementRecords(kpis); err != nil {
				return err
			}

			s, err := calc.SettleRequest(req)
			if err != nil {
				return err
			}
			a.logger.Debug("settled", "payment", s.CalculatedPayment.String(), "fee", s.PlatformFee.String())
			return a.print(s)
		},
	}

	f := cmd.Flags()
	f.StringVar(&base, "base", "", "agreed base payment in USDC (required)")
	f.StringVar(&achievement, "achievement", "", "overall KPI achievement percentage")
	f.StringArrayVar(&kpis, "kpi", nil, "KPI record as metric:target:actual:weight (repeatable)")
	f.StringVar(&feeRate, "fee-rate", "", "platform fee rate (default from tables)")
	f.StringVar(&creatorScore, "creator-score", "", "creator reputation score for the tier fee discount")
	f.StringVar(&creatorAddr, "creator-addr", "", "creator wallet address")
	_ = cmd.MarkFlagRequired("base")
	cmd.MarkFlagsMutuallyExclusive("achievement", "kpi")
	return cmd
}

func newDistributeCmd(a *app) *cobra.Command {
	var fee string
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Split a platform fee across revenue layers",
		RunE: func(cmd *cobra.Command, args []string) error {
			calc, err := newCalculator(a)
			if err != nil {
				return err
			}
			amount, err := validation.ParseAmount("fee", fee)
			if err != nil {
				return err
			}
			dist, err := calc.Distribute(amount)
			if err != nil {
				return err
			}
			return a.print(dist)
		},
	}
	cmd.Flags().StringVar(&fee, "fee", "", "platform fee in USDC (required)")
	_ = cmd.MarkFlagRequired("fee")
	return cmd
}

func optionalAmount(field, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := validation.ParseAmount(field, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// parseAchievementRecords parses metric:target:actual:weight records.
func parseAchievementRecords(raw []string) ([]settlement.AchievementRecord, error) {
	out := make([]settlement.AchievementRecord, 0, len(raw))
	for i, r := range raw {
		parts := strings.Split(r, ":")
		if len(parts) != 4 {
			return nil, validation.Fail(fmt.Sprintf("kpi[%d]", i), "must be metric:target:actual:weight")
		}
		rec := settlement.AchievementRecord{Metric: strings.TrimSpace(parts[0])}
		values := []*decimal.Decimal{&rec.TargetValue, &rec.ActualValue, &rec.Weight}
		names := []string{"target", "actual", "weight"}
		for j, dst := range values {
			d, err := validation.ParseAmount(fmt.Sprintf("kpi[%d].%s", i, names[j]), parts[j+1])
			if err != nil {
				return nil, err
			}
			*dst = d
		}
		out = append(out, rec)
	}
	return out, nil
}
