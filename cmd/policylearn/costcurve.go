package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timpalpant/policylearn"
	"github.com/timpalpant/policylearn/pipeline"
)

func newCostCurveCommand() *cobra.Command {
	opts := &runOptions{}
	var budget float64

	cmd := &cobra.Command{
		Use:   "costcurve",
		Short: "Compare cost-aware treatment rankings by the area under their cost curves",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			cfg.Cost.Curves = true
			if budget > 0 {
				cfg.Cost.Budget = budget
			}
			if cfg.Data.URL == "" && cfg.Data.SimulatedCost == "" {
				cfg.Data.SimulatedCost = policylearn.UniformCost
			}

			report, err := pipeline.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range report.Curves {
				fmt.Fprintf(out, "%-12s %.4f\n", c.Curve.Name, c.Area)
			}
			if a := report.Allocation; a != nil {
				fmt.Fprintf(out, "budget %g: treated %d units, estimated spend %.4f, value %s\n",
					a.Budget, a.NumTreated, a.Spent, a.Value)
			}
			for _, msg := range report.Warnings {
				fmt.Fprintf(out, "warning: %s\n", msg)
			}
			return nil
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().Float64Var(&budget, "budget", 0, "Greedily allocate treatment under this budget")
	return cmd
}
