package usecase

import "time"

// Metrics is the instrumentation seam for the use cases. The prometheus
// implementation lives in infra/metrics; tests pass a no-op.
type Metrics interface {
	Ask(contentType, status string)
	PaywallBlock(contentType string)
	SelectionReject()
	HistoryLoad(contentType string)
	UpstreamLatency(contentType string, d time.Duration)
	ElementsExtracted(n int)
}
