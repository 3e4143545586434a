// Package pipeline runs the policy learning workflow end to end: load or
// simulate data, split it, estimate nuisance models and scores, fit a
// policy on the training units and evaluate it on the held-out units.
package pipeline

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/timpalpant/policylearn"
	"github.com/timpalpant/policylearn/forest"
	"github.com/timpalpant/policylearn/policy"
)

const (
	NuisanceLasso  = "lasso"
	NuisanceForest = "forest"

	PolicyThreshold = "threshold"
	PolicyTree      = "tree"
)

type Config struct {
	Seed int64      `yaml:"seed"`
	Data DataConfig `yaml:"data"`
	// TestFraction of units held out for evaluation.
	TestFraction float64          `yaml:"test_fraction"`
	Nuisance     NuisanceConfig   `yaml:"nuisance"`
	Policy       PolicyConfig     `yaml:"policy"`
	Cost         CostConfig       `yaml:"cost"`
	Propensity   PropensityConfig `yaml:"propensity"`
	// OutputURL is a directory URL (file://, s3://, gs://...) that
	// receives the report and its tables. Optional.
	OutputURL string `yaml:"output_url,omitempty"`
}

type DataConfig struct {
	// Simulate draws a synthetic dataset. Used when URL is empty.
	Simulate *policylearn.SimParams `yaml:"simulate,omitempty"`
	// SimulatedCost attaches a random cost column to simulated data.
	SimulatedCost policylearn.CostKind `yaml:"simulated_cost,omitempty"`

	URL string                 `yaml:"url,omitempty"`
	CSV policylearn.CSVOptions `yaml:"csv,omitempty"`
}

type NuisanceConfig struct {
	Method string `yaml:"method"`
	// Folds and SplineDF configure the spline lasso.
	Folds    int `yaml:"folds"`
	SplineDF int `yaml:"spline_df"`
	// Forest configures the causal forest.
	Forest forest.Params `yaml:"forest"`
	Tune   bool          `yaml:"tune"`
}

type PolicyConfig struct {
	Kind string            `yaml:"kind"`
	Tree policy.TreeParams `yaml:"tree"`
}

type CostConfig struct {
	// Constant cost paid by every treated unit.
	Constant float64 `yaml:"constant"`
	// Curves compares cost-aware rankings when the data has a cost column.
	Curves bool `yaml:"curves"`
	// Budget for greedy allocation of treatment on the evaluation units.
	// Zero disables allocation.
	Budget float64 `yaml:"budget"`
}

type PropensityConfig struct {
	// Known treatment probability of a randomized design. Zero means the
	// propensity is estimated.
	Known float64 `yaml:"known"`
	// Bound clips estimated propensities into [Bound, 1-Bound].
	Bound float64 `yaml:"bound"`
	// Strict rejects propensities outside the bound instead of clipping.
	Strict bool `yaml:"strict"`
}

func DefaultConfig() *Config {
	return &Config{
		Seed:         1,
		TestFraction: 0.5,
		Nuisance: NuisanceConfig{
			Method:   NuisanceLasso,
			Folds:    10,
			SplineDF: 5,
			Forest:   forest.DefaultParams,
		},
		Policy: PolicyConfig{
			Kind: PolicyThreshold,
			Tree: policy.DefaultTreeParams,
		},
		Propensity: PropensityConfig{
			Bound: 0.01,
		},
	}
}

// ParseConfig decodes YAML over the defaults. Unknown fields are errors.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "error decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML config from a URL.
func LoadConfig(ctx context.Context, url string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config %v", url)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config %v", url)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Data.URL == "" && c.Data.Simulate == nil {
		sp := policylearn.DefaultSimParams
		c.Data.Simulate = &sp
	}
	if c.Data.Simulate != nil && c.Data.URL == "" {
		if err := c.Data.Simulate.Validate(); err != nil {
			return errors.Wrap(err, "invalid simulation")
		}
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		return errors.Errorf("test_fraction must be in (0, 1), got %v", c.TestFraction)
	}

	switch c.Nuisance.Method {
	case NuisanceLasso:
		if c.Nuisance.Folds < 2 {
			return errors.Errorf("need at least 2 folds, got %d", c.Nuisance.Folds)
		}
		if c.Nuisance.SplineDF < 4 {
			return errors.Errorf("spline_df must be at least 4, got %d", c.Nuisance.SplineDF)
		}
	case NuisanceForest:
		if err := c.Nuisance.Forest.Validate(); err != nil {
			return errors.Wrap(err, "invalid forest")
		}
	default:
		return errors.Errorf("unknown nuisance method %q", c.Nuisance.Method)
	}

	switch c.Policy.Kind {
	case PolicyThreshold:
	case PolicyTree:
		if err := c.Policy.Tree.Validate(); err != nil {
			return errors.Wrap(err, "invalid policy tree")
		}
	default:
		return errors.Errorf("unknown policy kind %q", c.Policy.Kind)
	}

	if c.Cost.Constant < 0 || c.Cost.Budget < 0 {
		return errors.Errorf("cost and budget must be non-negative, got %v and %v", c.Cost.Constant, c.Cost.Budget)
	}
	if c.Propensity.Known < 0 || c.Propensity.Known >= 1 {
		return errors.Errorf("known propensity must be in (0, 1), got %v", c.Propensity.Known)
	}
	if c.Propensity.Bound <= 0 || c.Propensity.Bound >= 0.5 {
		return errors.Errorf("propensity bound must be in (0, 0.5), got %v", c.Propensity.Bound)
	}
	return nil
}
