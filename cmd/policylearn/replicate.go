package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timpalpant/policylearn/pipeline"
)

func newReplicateCommand() *cobra.Command {
	rc := pipeline.DefaultReplicateConfig

	cmd := &cobra.Command{
		Use:   "replicate",
		Short: "Compare sample-mean and AIPW standard errors over repeated simulations",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := pipeline.Replicate(cmd.Context(), rc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "replications: %d (nuisance: %s)\n", summary.Reps, rc.Nuisance)
			fmt.Fprintf(out, "true value:   %.4f\n", summary.TrueValue)
			fmt.Fprintf(out, "sample mean:  %.4f (mean se %.4f)\n", summary.SampleMean, summary.SampleMeanStdErr)
			fmt.Fprintf(out, "aipw:         %.4f (mean se %.4f)\n", summary.AIPW, summary.AIPWStdErr)
			fmt.Fprintf(out, "aipw se smaller in %d of %d replications\n", summary.AIPWSmaller, summary.Reps)
			return nil
		},
	}

	cmd.Flags().IntVar(&rc.Reps, "reps", rc.Reps, "Number of replications")
	cmd.Flags().Int64Var(&rc.Seed, "seed", rc.Seed, "Random seed of the first replication")
	cmd.Flags().StringVar(&rc.Nuisance, "nuisance", rc.Nuisance, "Outcome model for AIPW scores (oracle|lasso)")
	cmd.Flags().IntVar(&rc.Sim.N, "n", rc.Sim.N, "Units per replication")
	cmd.Flags().IntVar(&rc.NumWorkers, "workers", 0, "Parallel replications (0 = GOMAXPROCS)")
	return cmd
}
