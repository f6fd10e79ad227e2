package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbd888/aw3econ/internal/fees"
	"github.com/mbd888/aw3econ/internal/validation"
)

func newFeeCmd(a *app) *cobra.Command {
	var (
		budget, spend, reputation, complexity string
		participants                          int
		token                                 bool
		kpis                                  []string
	)

	cmd := &cobra.Command{
		Use:   "fee",
		Short: "Estimate service fee, oracle fee and escrow for a campaign",
		Example: `  econctl fee --budget 4000 --complexity simple
  econctl fee --budget 25000 --participants 8 --spend 60000 --kpi twitter:0.6 --kpi youtube:0.4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := fees.CampaignBudgetInput{
				NumberOfParticipants: participants,
				ComplexityTag:        fees.ParseComplexity(complexity),
				PayWithPlatformToken: token,
			}
			var payer fees.PartyEconomicProfile
			var err error
			if in.BudgetAmount, err = validation.ParseAmount("budget", budget); err != nil {
				return err
			}
			if payer.CumulativeSpend, err = validation.ParseAmount("spend", spend); err != nil {
				return err
			}
			if reputation != "" {
				if payer.ReputationScore, err = validation.ParseAmount("reputation", reputation); err != nil {
					return err
				}
			}
			if in.KPIMetrics, err = parseKPIMetrics(kpis); err != nil {
				return err
			}

			est, err := fees.NewEstimator(a.tables).Estimate(in, payer)
			if err != nil {
				return err
			}
			a.logger.Debug("fee estimated", "budget", in.BudgetAmount.String(), "fee", est.FinalServiceFee.String())
			return a.print(est)
		},
	}

	f := cmd.Flags()
	f.StringVar(&budget, "budget", "", "campaign budget in USDC (required)")
	f.IntVar(&participants, "participants", 1, "number of participating creators")
	f.StringVar(&complexity, "complexity", "standard", "simple, standard, complex or enterprise")
	f.StringVar(&spend, "spend", "0", "payer cumulative spend in USDC")
	f.StringVar(&reputation, "reputation", "", "payer reputation score")
	f.BoolVar(&token, "token", false, "pay with the platform token")
	f.StringArrayVar(&kpis, "kpi", nil, "KPI metric as source:weight (repeatable)")
	_ = cmd.MarkFlagRequired("budget")
	return cmd
}

// parseKPIMetrics parses source:weight pairs.
func parseKPIMetrics(raw []string) ([]fees.KPIMetric, error) {
	out := make([]fees.KPIMetric, 0, len(raw))
	for i, r := range raw {
		source, weight, ok := strings.Cut(r, ":")
		if !ok || strings.TrimSpace(source) == "" {
			return nil, validation.Fail(fmt.Sprintf("kpi[%d]", i), "must be source:weight")
		}
		w, err := validation.ParseAmount(fmt.Sprintf("kpi[%d].weight", i), weight)
		if err != nil {
			return nil, err
		}
		out = append(out, fees.KPIMetric{Source: strings.TrimSpace(source), Weight: w})
	}
	return out, nil
}
