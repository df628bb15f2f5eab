package metrics

import (
	"errors"
	"testing"
	"time"

	"FlowSentry/internal/model"
	"FlowSentry/internal/risk"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveBatch(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	b := &model.Batch{
		Flows: []model.AnnotatedFlow{
			{Prediction: model.PredictionResult{Class: model.ClassDDoS}, Tier: risk.Critical, AlertTriggered: true},
			{Prediction: model.PredictionResult{Class: model.ClassDDoS}, Tier: risk.Critical, AlertTriggered: true},
			{Prediction: model.PredictionResult{Class: model.ClassBenign}, Tier: risk.Low},
		},
		Summary: model.BatchSummary{Alerts: 2},
	}
	m.ObserveBatch(b, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FlowsClassified.WithLabelValues("DDoS", "Critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlowsClassified.WithLabelValues("BENIGN", "Low")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AlertsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues(StatusOK)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BatchDuration))
}

func TestBatchFailed(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.BatchFailed(&model.ProcessingError{Err: &model.SchemaError{Missing: []string{"x"}}})
	m.BatchFailed(&model.ProcessingError{Err: model.ErrTooManyRows})
	m.BatchFailed(&model.ReportWriteError{Path: "r", Err: errors.New("disk full")})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues(StatusInputError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues(StatusError)))
}

func TestSinkAndStreamCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.IncrementSinkErrors("clickhouse")
	m.IncrementSinkErrors("clickhouse")
	m.IncrementStreamMessages("decode_error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("clickhouse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamMessages.WithLabelValues("decode_error")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBatch(&model.Batch{}, time.Second)
		m.BatchFailed(errors.New("x"))
		m.IncrementSinkErrors("s")
		m.IncrementStreamMessages("ok")
	})
}
