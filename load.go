package policylearn

import (
	"bytes"
	"context"
	"encoding/csv"
	"expvar"
	"io"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/viant/afs"
)

var (
	downloadCacheHits   = expvar.NewInt("datasets/cache_hits")
	downloadCacheMisses = expvar.NewInt("datasets/cache_misses")
)

const downloadCacheSize = 16

var downloads *lru.Cache

func init() {
	var err error
	downloads, err = lru.New(downloadCacheSize)
	if err != nil {
		panic(err)
	}
}

// CSVOptions selects the columns of a CSV file that make up a Dataset.
type CSVOptions struct {
	Covariates []string `yaml:"covariates"`
	Outcome    string   `yaml:"outcome"`
	Treatment  string   `yaml:"treatment"`
	// Cost is optional.
	Cost string `yaml:"cost,omitempty"`
	// FlipTreatment swaps the treatment and control labels after loading.
	FlipTreatment bool `yaml:"flip_treatment,omitempty"`
}

// LoadCSV reads a Dataset from a file:// or http(s):// URL. Downloads are
// cached by URL for the lifetime of the process.
func LoadCSV(ctx context.Context, url string, opts CSVOptions) (*Dataset, error) {
	data, err := download(ctx, url)
	if err != nil {
		return nil, err
	}

	ds, err := ReadCSV(bytes.NewReader(data), opts)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing %v", url)
	}

	glog.Infof("Loaded %d rows with %d covariates from %v", ds.Len(), ds.NumCovariates(), url)
	return ds, nil
}

func download(ctx context.Context, url string) ([]byte, error) {
	if cached, ok := downloads.Get(url); ok {
		downloadCacheHits.Add(1)
		return cached.([]byte), nil
	}

	downloadCacheMisses.Add(1)
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "error downloading %v", url)
	}

	downloads.Add(url, data)
	return data, nil
}

// ReadCSV parses a CSV stream with a header row.
func ReadCSV(r io.Reader, opts CSVOptions) (*Dataset, error) {
	if len(opts.Covariates) == 0 || opts.Outcome == "" || opts.Treatment == "" {
		return nil, errors.New("covariates, outcome and treatment columns are required")
	}

	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "error reading header")
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	lookup := func(name string) (int, error) {
		idx, ok := colIdx[name]
		if !ok {
			return 0, errors.Errorf("column %q not found in header", name)
		}
		return idx, nil
	}

	xCols := make([]int, len(opts.Covariates))
	for j, name := range opts.Covariates {
		if xCols[j], err = lookup(name); err != nil {
			return nil, err
		}
	}
	yCol, err := lookup(opts.Outcome)
	if err != nil {
		return nil, err
	}
	wCol, err := lookup(opts.Treatment)
	if err != nil {
		return nil, err
	}
	costCol := -1
	if opts.Cost != "" {
		if costCol, err = lookup(opts.Cost); err != nil {
			return nil, err
		}
	}

	ds := &Dataset{Names: append([]string(nil), opts.Covariates...)}
	if costCol >= 0 {
		ds.Cost = []float64{}
	}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "error reading line %d", line)
		}

		x := make([]float64, len(xCols))
		for j, col := range xCols {
			if x[j], err = parseField(record[col]); err != nil {
				return nil, errors.Wrapf(err, "line %d, column %q", line, opts.Covariates[j])
			}
		}
		y, err := parseField(record[yCol])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d, column %q", line, opts.Outcome)
		}
		w, err := parseField(record[wCol])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d, column %q", line, opts.Treatment)
		}

		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, y)
		ds.W = append(ds.W, w)
		if costCol >= 0 {
			c, err := parseField(record[costCol])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d, column %q", line, opts.Cost)
			}
			ds.Cost = append(ds.Cost, c)
		}
	}

	if opts.FlipTreatment {
		ds.FlipTreatment()
	}

	if err := ds.Validate(); err != nil {
		return nil, err
	}

	return ds, nil
}

func parseField(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// WriteCSV writes ds with a header row. Columns are the covariates,
// followed by y, w and cost (if present).
func WriteCSV(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)
	header := append([]string(nil), ds.Names...)
	header = append(header, "y", "w")
	if ds.HasCost() {
		header = append(header, "cost")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for i := range ds.Y {
		for j, v := range ds.X[i] {
			record[j] = formatFloat(v)
		}
		p := len(ds.X[i])
		record[p] = formatFloat(ds.Y[i])
		record[p+1] = formatFloat(ds.W[i])
		if ds.HasCost() {
			record[p+2] = formatFloat(ds.Cost[i])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
