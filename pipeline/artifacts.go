package pipeline

import (
	"bytes"
	"context"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/timpalpant/policylearn/budget"
	"github.com/timpalpant/policylearn/diagnostics"
	"github.com/timpalpant/policylearn/internal/npyio"
	"github.com/timpalpant/policylearn/policy"
)

// writeArtifacts uploads the report and its tables under baseURL.
func writeArtifacts(ctx context.Context, baseURL string, report *Report) error {
	fs := afs.New()
	upload := func(name string, buf *bytes.Buffer) error {
		dest := url.Join(baseURL, name)
		glog.V(1).Infof("Writing %v", dest)
		if err := fs.Upload(ctx, dest, file.DefaultFileOsMode, buf); err != nil {
			return errors.Wrapf(err, "error writing %v", dest)
		}
		return nil
	}

	var buf bytes.Buffer
	if err := report.WriteText(&buf); err != nil {
		return err
	}
	if err := upload("report.txt", &buf); err != nil {
		return err
	}

	if report.evalScores.Len() > 0 {
		assigned := make([]float64, len(report.assignment))
		for i, treat := range report.assignment {
			if treat {
				assigned[i] = 1
			}
		}

		buf.Reset()
		arrays := []npyio.Array{
			npyio.Matrix("gamma", report.evalScores.Matrix()),
			npyio.Vector("gamma_diff", report.evalScores.Diff()),
			npyio.Vector("assignment", assigned),
		}
		if err := diagnostics.WriteNPZ(&buf, arrays); err != nil {
			return err
		}
		if err := upload("scores.npz", &buf); err != nil {
			return err
		}
	}

	if report.Balance != nil {
		buf.Reset()
		if err := diagnostics.WriteBalanceCSV(&buf, report.Balance, policy.ActionName); err != nil {
			return err
		}
		if err := upload("balance.csv", &buf); err != nil {
			return err
		}
	}

	if len(report.Curves) > 0 {
		curves := make([]*budget.Curve, len(report.Curves))
		for i, c := range report.Curves {
			curves[i] = c.Curve
		}

		buf.Reset()
		if err := diagnostics.WriteCurvesCSV(&buf, curves); err != nil {
			return err
		}
		if err := upload("curves.csv", &buf); err != nil {
			return err
		}

		buf.Reset()
		if err := diagnostics.WriteNPZ(&buf, diagnostics.CurveArrays(curves)); err != nil {
			return err
		}
		if err := upload("curves.npz", &buf); err != nil {
			return err
		}
	}

	if report.Tree != nil {
		buf.Reset()
		if err := report.Tree.SaveTo(&buf); err != nil {
			return err
		}
		if err := upload("policy_tree.gob.gz", &buf); err != nil {
			return err
		}
	}

	return nil
}
