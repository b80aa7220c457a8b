package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exported by this process.
var Registry = prometheus.NewRegistry()

var (
	factory = promauto.With(Registry)

	documentsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_documents_total",
		Help: "Documents processed by the intake pipeline, by document type and outcome",
	}, []string{"document_type", "outcome"})

	gatewayCallsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_gateway_calls_total",
		Help: "Model gateway calls, by operation and outcome",
	}, []string{"op", "outcome"})

	workerMessagesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_worker_messages_total",
		Help: "Queue messages handled by the worker, by result",
	}, []string{"result"})

	stageDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intake_stage_duration_seconds",
		Help:    "Duration of pipeline stages (classify, extract, persist, total)",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"stage"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IncDocument records one finished document. outcome is "ok" or an error code.
func IncDocument(documentType, outcome string) {
	if documentType == "" {
		documentType = "unknown"
	}
	documentsTotal.WithLabelValues(documentType, outcome).Inc()
}

// IncGatewayCall records one model gateway call.
func IncGatewayCall(op, outcome string) {
	gatewayCallsTotal.WithLabelValues(op, outcome).Inc()
}

// IncWorkerMessage records a queue message result: received, completed,
// retry or dropped.
func IncWorkerMessage(result string) {
	workerMessagesTotal.WithLabelValues(result).Inc()
}

// ObserveStage records how long a pipeline stage took since start.
func ObserveStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
