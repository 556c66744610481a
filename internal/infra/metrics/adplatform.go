package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adPlatformCallsLatencyMs, adPlatformBudgetBlocks) }

var (
	adPlatformCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adplatform_calls_latency_ms",
			Help:    "Ad platform call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"operation", "mode", "success"},
	)

	adPlatformBudgetBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adplatform_budget_blocks_total",
			Help: "Calls refused locally because the per-advertiser call budget was spent.",
		},
		[]string{"operation"},
	)
)

func ObserveAdPlatformCall(operation, mode string, latencyMs int64, success bool) {
	adPlatformCallsLatencyMs.WithLabelValues(norm(operation), norm(mode), strconv.FormatBool(success)).Observe(float64(latencyMs))
}

func IncBudgetBlocked(operation string) {
	adPlatformBudgetBlocks.WithLabelValues(norm(operation)).Inc()
}
