package infer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type inferMetrics struct {
	calls          *prometheus.CounterVec
	rounds         prometheus.Histogram
	derivedTuples  prometheus.Histogram
	durationSecs   prometheus.Histogram
	compileHits    prometheus.Counter
	compileMisses  prometheus.Counter
	nestedRuleSets prometheus.Counter
}

var metrics inferMetrics

func init() {
	metrics = inferMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deduce",
			Subsystem: "infer",
			Name:      "calls_total",
			Help: `The number of infer calls, by outcome.

The outcome is "ok" or names the error class: malformed, unresolved,
non_terminating, invalid_query, cancelled or error.
`,
		}, []string{"outcome"}),
		rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deduce",
			Subsystem: "infer",
			Name:      "fixpoint_rounds",
			Help:      `The number of fixpoint rounds a successful infer call needed.`,
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		derivedTuples: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deduce",
			Subsystem: "infer",
			Name:      "derived_tuples",
			Help:      `The number of derived tuples a successful infer call produced.`,
			Buckets:   prometheus.ExponentialBuckets(1, 4, 12),
		}),
		durationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deduce",
			Subsystem: "infer",
			Name:      "duration_seconds",
			Help:      `The time it takes to resolve, evaluate and answer an infer call.`,
			Buckets:   prometheus.DefBuckets,
		}),
		compileHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deduce",
			Subsystem: "compile",
			Name:      "cache_hits_total",
			Help:      `Rule sets found already compiled in the engine's cache.`,
		}),
		compileMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deduce",
			Subsystem: "compile",
			Name:      "cache_misses_total",
			Help:      `Rule sets compiled because they were not in the engine's cache.`,
		}),
		nestedRuleSets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deduce",
			Subsystem: "infer",
			Name:      "nested_rule_sets_total",
			Help:      `Rule sets evaluated because a predicate name resolved to another rule set.`,
		}),
	}
	prometheus.MustRegister(
		metrics.calls,
		metrics.rounds,
		metrics.derivedTuples,
		metrics.durationSecs,
		metrics.compileHits,
		metrics.compileMisses,
		metrics.nestedRuleSets,
	)
}
