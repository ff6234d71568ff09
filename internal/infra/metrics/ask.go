package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		asksTotal,
		paywallBlocks,
		selectionRejects,
		historyLoads,
		upstreamLatencyMs,
		elementsExtracted,
	)
}

var (
	asksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asks_total",
			Help: "Sends per content type and outcome (ok|error|stale).",
		},
		[]string{"content_type", "status"},
	)

	paywallBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_blocks_total",
			Help: "Sends short-circuited or escalated into the paywall.",
		},
		[]string{"content_type"},
	)

	selectionRejects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "selection_rejects_total",
			Help: "Selection toggles rejected for exceeding the capacity.",
		},
	)

	historyLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_loads_total",
			Help: "One-shot history loads that seeded a conversation.",
		},
		[]string{"content_type"},
	)

	upstreamLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_ms",
			Help:    "Interpretation upstream latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"content_type"},
	)

	elementsExtracted = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "elements_extracted",
			Help:    "Candidate list sizes per extraction.",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 250},
		},
	)
)

func IncAsk(contentType, status string) {
	asksTotal.WithLabelValues(contentType, status).Inc()
}

func IncPaywallBlock(contentType string) {
	paywallBlocks.WithLabelValues(contentType).Inc()
}

func IncSelectionReject() { selectionRejects.Inc() }

func IncHistoryLoad(contentType string) {
	historyLoads.WithLabelValues(contentType).Inc()
}

func ObserveUpstreamLatency(contentType string, d time.Duration) {
	upstreamLatencyMs.WithLabelValues(contentType).Observe(float64(d.Milliseconds()))
}

func ObserveElementsExtracted(n int) {
	elementsExtracted.Observe(float64(n))
}
