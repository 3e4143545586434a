package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/timpalpant/policylearn/pipeline"
)

type runOptions struct {
	config    string
	seed      int64
	outputURL string
}

func (o *runOptions) load(ctx context.Context, cmd *cobra.Command) (*pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = pipeline.LoadConfig(ctx, o.config); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = o.seed
	}
	if o.outputURL != "" {
		cfg.OutputURL = o.outputURL
	}
	return cfg, nil
}

func (o *runOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.config, "config", "", "URL of the pipeline YAML config (defaults to the built-in simulation)")
	cmd.Flags().Int64Var(&o.seed, "seed", 1, "Random seed, overrides the config")
	cmd.Flags().StringVar(&o.outputURL, "output_url", "", "Directory URL for report artifacts, overrides the config")
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fit a policy on training units and evaluate it on held-out units",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			report, err := pipeline.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return report.WriteText(os.Stdout)
		},
	}

	opts.addFlags(cmd)
	return cmd
}
