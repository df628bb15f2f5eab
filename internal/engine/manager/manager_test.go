package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"FlowSentry/internal/alerter"
	"FlowSentry/internal/analyzer"
	"FlowSentry/internal/config"
	"FlowSentry/internal/inference"
	"FlowSentry/internal/metrics"
	"FlowSentry/internal/model"
	"FlowSentry/internal/report"
	"FlowSentry/internal/schema"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu      sync.Mutex
	name    string
	fail    bool
	batches []*model.Batch
	closed  bool
}

func (s *memSink) Name() string { return s.name }

func (s *memSink) Write(ctx context.Context, b *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("backend down")
	}
	s.batches = append(s.batches, b)
	return nil
}

func (s *memSink) Close() error { s.closed = true; return nil }

type countingNotifier struct {
	mu    sync.Mutex
	sends int
}

func (n *countingNotifier) Send(subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends++
	return nil
}

func sampleCSV(rows int) string {
	var b strings.Builder
	b.WriteString(model.SourceIPColumn + "," + strings.Join(model.FeatureNames[:], ",") + "\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "10.0.0.%d,10.5,100.0,50.2,1024.0,512.0,1000.0,5.0,20.0,3.0,1.5\n", i%3)
	}
	return b.String()
}

type fixture struct {
	mgr      *Manager
	dir      string
	sink     *memSink
	broken   *memSink
	notifier *countingNotifier
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, p float64) *fixture {
	t.Helper()
	e, err := inference.New(inference.NewConstantArtifact(p))
	require.NoError(t, err)

	f := &fixture{
		dir:      t.TempDir(),
		sink:     &memSink{name: "mem"},
		broken:   &memSink{name: "broken", fail: true},
		notifier: &countingNotifier{},
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	}
	al, err := alerter.NewAlerter(&config.AlerterConfig{CheckInterval: "1h", MinAlerts: 1, MaxRows: 10}, f.notifier)
	require.NoError(t, err)

	a := analyzer.New(e, schema.NewDefaultValidator(), analyzer.Options{})
	f.mgr = New(a, report.NewEmitter(f.dir, nil), Options{
		NumWorkers: 2,
		QueueSize:  4,
		Sinks:      []model.Sink{f.sink, f.broken},
		Alerter:    al,
		Metrics:    f.metrics,
	})
	f.mgr.Start()
	t.Cleanup(f.mgr.Stop)
	return f
}

func TestClassifyBatch_EndToEnd(t *testing.T) {
	f := newFixture(t, 0.97)

	res, err := f.mgr.ClassifyBatch(context.Background(), strings.NewReader(sampleCSV(3)), "flows.csv")
	require.NoError(t, err)

	s := res.Batch.Summary
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, s.Total, s.Benign+s.DDoS)
	assert.Equal(t, 3, s.Alerts)
	assert.FileExists(t, res.FullReportPath)
	assert.FileExists(t, res.AlertReportPath)
	assert.Equal(t, "report_flows.csv", res.Preview.FullReport)
	assert.Equal(t, "alerts_flows.csv", res.Preview.AlertReport)
	assert.Len(t, res.Preview.Predictions, 3)

	assert.Len(t, f.sink.batches, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SinkErrors.WithLabelValues("broken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BatchesTotal.WithLabelValues(metrics.StatusOK)))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.AlertsTotal))
}

func TestClassifyBatch_NoAlertsNoAlertFile(t *testing.T) {
	f := newFixture(t, 0.9)

	res, err := f.mgr.ClassifyBatch(context.Background(), strings.NewReader(sampleCSV(3)), "flows.csv")
	require.NoError(t, err)
	assert.Empty(t, res.AlertReportPath)
	assert.Empty(t, res.Preview.AlertReport)
	assert.Zero(t, res.Batch.Summary.Alerts)
	assert.Equal(t, 3, res.Batch.Summary.DDoS)

	entries, err := os.ReadDir(filepath.Dir(res.FullReportPath))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestClassifyBatch_SameNameBatchesDoNotShareReports(t *testing.T) {
	f := newFixture(t, 0.97)

	const n = 6
	results := make([]*model.Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.mgr.ClassifyBatch(context.Background(), strings.NewReader(sampleCSV(i+1)), "flows.csv")
			if assert.NoError(t, err) {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, filepath.Join(f.dir, res.Batch.ID, "report_flows.csv"), res.FullReportPath)
		assert.Equal(t, filepath.Join(f.dir, res.Batch.ID, "alerts_flows.csv"), res.AlertReportPath)
		assert.False(t, seen[res.FullReportPath])
		seen[res.FullReportPath] = true

		data, err := os.ReadFile(res.FullReportPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), fmt.Sprintf("Total Flows Analyzed: %d\n", i+1))
	}
}

func TestClassifyBatch_SchemaFailure(t *testing.T) {
	f := newFixture(t, 0.5)

	_, err := f.mgr.ClassifyBatch(context.Background(), strings.NewReader("a,b\n1,2\n"), "bad.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error processing file")
	assert.True(t, model.IsInputError(err))
	assert.Empty(t, f.sink.batches)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BatchesTotal.WithLabelValues(metrics.StatusInputError)))
}

func TestSubmit_RecordsWithoutReport(t *testing.T) {
	f := newFixture(t, 0.2)
	recs := []model.FlowRecord{{Row: 5, Raw: []string{"x"}}}

	res, err := f.mgr.Submit(context.Background(), Job{Records: recs, Columns: []string{"c"}, SourceName: "stream", SkipReport: true})
	require.NoError(t, err)
	assert.Empty(t, res.FullReportPath)
	assert.Equal(t, 5, res.Batch.Flows[0].Record.Row)

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmit_Concurrent(t *testing.T) {
	f := newFixture(t, 0.97)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.mgr.ClassifyBatch(context.Background(), strings.NewReader(sampleCSV(i+1)), fmt.Sprintf("f%d.csv", i))
			if assert.NoError(t, err) {
				assert.Equal(t, i+1, res.Batch.Summary.Total)
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, f.sink.batches, 12)
}

func TestSubmit_CancelledContext(t *testing.T) {
	f := newFixture(t, 0.5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.mgr.ClassifyBatch(ctx, strings.NewReader(sampleCSV(1)), "x.csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStop_FlushesAlerterAndClosesSinks(t *testing.T) {
	f := newFixture(t, 0.99)
	_, err := f.mgr.ClassifyBatch(context.Background(), strings.NewReader(sampleCSV(2)), "x.csv")
	require.NoError(t, err)

	f.mgr.Stop()
	assert.Equal(t, 1, f.notifier.sends)
	assert.True(t, f.sink.closed)

	_, err = f.mgr.ClassifyBatch(context.Background(), strings.NewReader(sampleCSV(1)), "x.csv")
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSubmit_NotStarted(t *testing.T) {
	m := New(nil, nil, Options{SinkTimeout: time.Second})
	_, err := m.Submit(context.Background(), Job{})
	assert.ErrorIs(t, err, ErrStopped)
	m.Stop()
}
