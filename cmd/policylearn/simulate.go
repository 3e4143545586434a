package main

import (
	"bytes"
	"math/rand"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/timpalpant/policylearn"
)

func newSimulateCommand() *cobra.Command {
	sp := policylearn.DefaultSimParams
	var seed int64
	var cost, output string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Draw a synthetic randomized experiment and write it as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			rng := rand.New(rand.NewSource(seed))
			ds, err := policylearn.Simulate(sp, rng)
			if err != nil {
				return err
			}
			if cost != "" {
				if err := policylearn.SimulateCost(ds, policylearn.CostKind(cost), rng); err != nil {
					return err
				}
			}

			var buf bytes.Buffer
			if err := policylearn.WriteCSV(&buf, ds); err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := buf.WriteTo(os.Stdout)
				return err
			}

			glog.Infof("Writing %d simulated units to %v", ds.Len(), output)
			return afs.New().Upload(cmd.Context(), output, file.DefaultFileOsMode, &buf)
		},
	}

	cmd.Flags().IntVar(&sp.N, "n", sp.N, "Number of units")
	cmd.Flags().IntVar(&sp.P, "p", sp.P, "Number of covariates")
	cmd.Flags().Float64Var(&sp.E, "propensity", sp.E, "Treatment probability")
	cmd.Flags().Float64Var(&sp.Noise, "noise", sp.Noise, "Outcome noise standard deviation")
	cmd.Flags().Int64Var(&seed, "seed", 123, "Random seed")
	cmd.Flags().StringVar(&cost, "cost", "", "Attach a simulated cost column (shared|uniform)")
	cmd.Flags().StringVar(&output, "out", "-", "Output URL, or - for stdout")
	return cmd
}
