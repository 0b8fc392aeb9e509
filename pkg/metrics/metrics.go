// Package metrics exposes Prometheus instrumentation for ciftree. Collectors
// register on the default registry; a process embedding the converter decides
// whether and where to serve them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConversionsTotal counts conversion calls by direction and outcome
	ConversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ciftree",
		Name:      "conversions_total",
		Help:      "Conversion calls by direction (resolve, flatten) and outcome (ok, error)",
	}, []string{"direction", "outcome"})

	// MetadataParsesTotal counts full source parses by metadata kind
	MetadataParsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ciftree",
		Name:      "metadata_parses_total",
		Help:      "Metadata source parses by kind (dictionary, schema)",
	}, []string{"kind"})

	// MetadataCacheHitsTotal counts cache hits by tier
	MetadataCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ciftree",
		Name:      "metadata_cache_hits_total",
		Help:      "Metadata cache hits by tier (memory, disk)",
	}, []string{"tier"})

	// ResolveOrphansTotal counts records demoted to top level in permissive mode
	ResolveOrphansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ciftree",
		Name:      "resolve_orphans_total",
		Help:      "Records demoted to top level because no parent row matched",
	})

	// ConversionDuration observes conversion latency by direction
	ConversionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ciftree",
		Name:      "conversion_duration_seconds",
		Help:      "Conversion latency by direction",
		Buckets:   prometheus.DefBuckets,
	}, []string{"direction"})
)
