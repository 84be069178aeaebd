// Package metrics provides Prometheus collectors for the sync pipeline:
// request outcomes, retry behavior, backoff durations, and record volumes.
// All collectors are registered automatically via promauto.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namePrefix marks this pipeline's collectors in the default registry.
const namePrefix = "vhc_"

var (
	// RequestsTotal counts HTTP requests by target API and outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vhc_http_requests_total",
		Help: "Total HTTP requests by target and status",
	}, []string{"target", "status"})

	// RetriesTotal counts retry attempts by target and failure reason.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vhc_http_retries_total",
		Help: "Total retry attempts by target and reason",
	}, []string{"target", "reason"})

	// RetryExhaustedTotal counts requests that exhausted their attempt budget.
	RetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vhc_http_retry_exhausted_total",
		Help: "Total requests abandoned after exhausting retries",
	}, []string{"target"})

	// BackoffSeconds observes backoff wait durations by reason.
	BackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vhc_http_backoff_seconds",
		Help:    "Backoff duration before retries by target and reason",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"target", "reason"})

	// QuotaPausesTotal counts proactive pauses taken on low remaining quota.
	QuotaPausesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vhc_quota_pauses_total",
		Help: "Total proactive pauses triggered by low rate-limit quota",
	}, []string{"target"})

	// RecordsFetchedTotal counts raw records fetched from the source.
	RecordsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vhc_records_fetched_total",
		Help: "Total raw records fetched by record kind",
	}, []string{"kind"})

	// RecordsPushedTotal counts flat records delivered in accepted chunks.
	RecordsPushedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vhc_records_pushed_total",
		Help: "Total flat records pushed by dataset",
	}, []string{"dataset"})

	// ChunksDroppedTotal counts chunks dropped after push failures.
	ChunksDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vhc_chunks_dropped_total",
		Help: "Total chunks dropped after exhausting push retries",
	}, []string{"dataset"})
)

// Summarize gathers the pipeline's collectors from the default registry and
// returns their totals by metric name, summed across labels. A batch run has
// no scrape endpoint, so the totals are logged at run end instead. Histogram
// totals report the observation count.
func Summarize() map[string]float64 {
	totals := make(map[string]float64)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return totals
	}

	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), namePrefix) {
			continue
		}
		total := 0.0
		for _, m := range family.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		totals[family.GetName()] = total
	}
	return totals
}
