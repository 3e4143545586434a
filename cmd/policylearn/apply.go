package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/viant/afs"

	"github.com/timpalpant/policylearn"
	"github.com/timpalpant/policylearn/policy"
	"github.com/timpalpant/policylearn/value"
)

func newApplyCommand() *cobra.Command {
	var treeURL, dataURL string
	var opts policylearn.CSVOptions
	var cost float64

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a saved policy tree to new units",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := afs.New().DownloadWithURL(cmd.Context(), treeURL)
			if err != nil {
				return errors.Wrapf(err, "error downloading %v", treeURL)
			}
			tree, err := policy.LoadTree(bytes.NewReader(data))
			if err != nil {
				return errors.Wrapf(err, "error loading policy tree from %v", treeURL)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), tree)

			opts.Covariates = tree.Names
			ds, err := policylearn.LoadCSV(cmd.Context(), dataURL, opts)
			if err != nil {
				return err
			}

			leaves := tree.Apply(ds.X)
			a := policy.Assign(tree, ds.X)
			glog.Infof("Policy treats %.1f%% of %d units",
				100*value.TreatedFraction(a), ds.Len())
			if est, err := value.SampleMean(ds.Y, ds.W, a, cost); err != nil {
				glog.Warningf("Unable to estimate policy value: %v", err)
			} else {
				glog.Infof("Sample mean value: %v", est)
			}

			w := csv.NewWriter(cmd.OutOrStdout())
			if err := w.Write([]string{"row", "leaf", "action"}); err != nil {
				return err
			}
			for i, leaf := range leaves {
				action := policy.Control
				if a[i] {
					action = policy.Treatment
				}
				record := []string{strconv.Itoa(i), strconv.Itoa(leaf), policy.ActionName(action)}
				if err := w.Write(record); err != nil {
					return err
				}
			}
			w.Flush()
			return w.Error()
		},
	}

	cmd.Flags().StringVar(&treeURL, "tree", "policy_tree.gob.gz", "URL of a saved policy tree")
	cmd.Flags().StringVar(&dataURL, "data", "", "URL of the CSV dataset to assign")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "y", "Outcome column")
	cmd.Flags().StringVar(&opts.Treatment, "treatment", "w", "Treatment column")
	cmd.Flags().Float64Var(&cost, "cost", 0, "Constant cost of treatment")
	cmd.MarkFlagRequired("data")
	return cmd
}
