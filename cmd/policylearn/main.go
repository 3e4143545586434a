// Command policylearn learns and evaluates treatment assignment policies.
package main

import (
	"context"
	_ "expvar"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	debugAddr string
}

// newRootCommand builds the CLI. goFlags carries the glog flags; it is
// marked parsed before any subcommand runs, since glog only honors
// --log_dir and --logtostderr once flag.Parsed() is true.
func newRootCommand(goFlags *flag.FlagSet) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "policylearn",
		Short: "Learn and evaluate treatment assignment policies",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// pflag has already set the values.
			goFlags.Parse(nil)
			if opts.debugAddr != "" {
				http.Handle("/metrics", promhttp.Handler())
				go func() {
					glog.Infof("Serving debug handlers on %v", opts.debugAddr)
					if err := http.ListenAndServe(opts.debugAddr, nil); err != nil {
						glog.Errorf("Debug listener failed: %v", err)
					}
				}()
			}
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.debugAddr, "debug_addr", "",
		"Address to serve pprof, expvar and prometheus metrics on, e.g. localhost:4123")
	cmd.PersistentFlags().AddGoFlagSet(goFlags)

	cmd.AddCommand(newSimulateCommand())
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newReplicateCommand())
	cmd.AddCommand(newCostCurveCommand())
	cmd.AddCommand(newApplyCommand())
	return cmd
}

func main() {
	defer glog.Flush()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand(flag.CommandLine).ExecuteContext(ctx); err != nil {
		stop()
		glog.Error(err)
		glog.Flush()
		os.Exit(1)
	}
}
