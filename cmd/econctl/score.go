package main

import (
	"github.com/spf13/cobra"

	"github.com/mbd888/aw3econ/internal/cvpi"
	"github.com/mbd888/aw3econ/internal/reputation"
	"github.com/mbd888/aw3econ/internal/validation"
)

func newCVPICmd(a *app) *cobra.Command {
	var cost, impact string
	cmd := &cobra.Command{
		Use:     "cvpi",
		Short:   "Score cost efficiency (total cost / verified impact)",
		Example: "  econctl cvpi --cost 1000 --impact 2000",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := validation.ParseAmount("cost", cost)
			if err != nil {
				return err
			}
			i, err := validation.ParseAmount("impact", impact)
			if err != nil {
				return err
			}
			score, err := cvpi.NewScorer(a.tables).Score(c, i)
			if err != nil {
				return err
			}
			return a.print(score)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cost, "cost", "", "total cost in USDC (required)")
	f.StringVar(&impact, "impact", "", "verified impact score (required)")
	_ = cmd.MarkFlagRequired("cost")
	_ = cmd.MarkFlagRequired("impact")
	return cmd
}

func newTierCmd(a *app) *cobra.Command {
	var score, scale string
	cmd := &cobra.Command{
		Use:     "tier",
		Short:   "Evaluate a reputation score: tier, benefits and next tier",
		Example: "  econctl tier --score 720\n  econctl tier --score 55 --scale generic",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := reputation.NewScale(a.tables, scale)
			if err != nil {
				return err
			}
			d, err := validation.ParseAmount("score", score)
			if err != nil {
				return err
			}
			eval, err := s.Evaluate(d)
			if err != nil {
				return err
			}
			return a.print(eval)
		},
	}
	f := cmd.Flags()
	f.StringVar(&score, "score", "", "reputation score (required)")
	f.StringVar(&scale, "scale", "creator", "creator or generic")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "Print the effective economic tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.print(a.tables)
		},
	}
}
