package metrics

import "time"

// Recorder adapts the package counters to the use case instrumentation seam,
// keeping the prometheus dependency out of the use cases.
type Recorder struct{}

func (Recorder) Ask(contentType, status string) { IncAsk(contentType, status) }

func (Recorder) PaywallBlock(contentType string) { IncPaywallBlock(contentType) }

func (Recorder) SelectionReject() { IncSelectionReject() }

func (Recorder) HistoryLoad(contentType string) { IncHistoryLoad(contentType) }

func (Recorder) UpstreamLatency(contentType string, d time.Duration) {
	ObserveUpstreamLatency(contentType, d)
}

func (Recorder) ElementsExtracted(n int) { ObserveElementsExtracted(n) }
