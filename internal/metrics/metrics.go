package metrics

import (
	"errors"
	"time"

	"FlowSentry/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the classification pipeline.
type Metrics struct {
	FlowsClassified *prometheus.CounterVec
	AlertsTotal     prometheus.Counter
	BatchesTotal    *prometheus.CounterVec
	BatchDuration   prometheus.Histogram
	SinkErrors      *prometheus.CounterVec
	StreamMessages  *prometheus.CounterVec
}

// Batch outcomes used as the "status" label.
const (
	StatusOK         = "ok"
	StatusInputError = "input_error"
	StatusError      = "error"
)

// NewMetrics registers the pipeline metrics with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
// A nil *Metrics is valid and records nothing.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FlowsClassified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsentry_flows_classified_total",
			Help: "Total number of flows classified, by predicted class and risk tier",
		}, []string{"class", "tier"}),
		AlertsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowsentry_alerts_total",
			Help: "Total number of flows that triggered an alert",
		}),
		BatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsentry_batches_total",
			Help: "Total number of batches processed, by outcome",
		}, []string{"status"}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowsentry_batch_duration_seconds",
			Help:    "Time spent analyzing and reporting one batch",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsentry_sink_errors_total",
			Help: "Total number of failed sink writes, by sink",
		}, []string{"sink"}),
		StreamMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsentry_stream_messages_total",
			Help: "Total number of streamed flow messages, by outcome",
		}, []string{"status"}),
	}
}

// ObserveBatch records a successfully processed batch.
func (m *Metrics) ObserveBatch(b *model.Batch, elapsed time.Duration) {
	if m == nil {
		return
	}
	for _, f := range b.Flows {
		m.FlowsClassified.WithLabelValues(string(f.Prediction.Class), string(f.Tier)).Inc()
	}
	m.AlertsTotal.Add(float64(b.Summary.Alerts))
	m.BatchesTotal.WithLabelValues(StatusOK).Inc()
	m.BatchDuration.Observe(elapsed.Seconds())
}

// BatchFailed records a failed batch, split by whether the input was at fault.
func (m *Metrics) BatchFailed(err error) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(FailureStatus(err)).Inc()
}

// FailureStatus classifies a batch error for the status label.
func FailureStatus(err error) string {
	var writeErr *model.ReportWriteError
	if model.IsInputError(err) && !errors.As(err, &writeErr) {
		return StatusInputError
	}
	return StatusError
}

// IncrementSinkErrors counts one failed write to the named sink.
func (m *Metrics) IncrementSinkErrors(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// IncrementStreamMessages counts one streamed message with the given status.
func (m *Metrics) IncrementStreamMessages(status string) {
	if m == nil {
		return
	}
	m.StreamMessages.WithLabelValues(status).Inc()
}
