package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(conversationsCleaned, workerTaskErrors)
}

var (
	conversationsCleaned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_cleaned_total",
			Help: "Conversations removed by retention sweeps.",
		},
	)

	workerTaskErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_task_errors_total",
			Help: "Background tasks that returned an error.",
		},
	)
)

func AddConversationsCleaned(n int64) { conversationsCleaned.Add(float64(n)) }

func IncWorkerTaskError() { workerTaskErrors.Inc() }
