package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "policylearn_run_duration_seconds",
		Help:    "Duration of pipeline runs",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policylearn_runs_total",
			Help: "Count of pipeline runs by nuisance method, policy kind and status.",
		},
		[]string{"nuisance", "policy", "status"},
	)

	DegeneratePoliciesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "policylearn_degenerate_policies_total",
		Help: "How many learned policies assigned every unit to the same arm",
	})
)

func init() {
	prometheus.MustRegister(RunDuration, RunsTotal, DegeneratePoliciesTotal)
}
