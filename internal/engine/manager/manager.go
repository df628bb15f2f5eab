package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	"FlowSentry/internal/alerter"
	"FlowSentry/internal/analyzer"
	"FlowSentry/internal/config"
	"FlowSentry/internal/factory"
	"FlowSentry/internal/metrics"
	"FlowSentry/internal/model"
	"FlowSentry/internal/notification"
	"FlowSentry/internal/report"
	_ "FlowSentry/internal/sink/clickhouse" // Registers the clickhouse sink
	_ "FlowSentry/internal/sink/natsbus"    // Registers the nats sink
)

// ErrStopped is returned by Submit after Stop was called.
var ErrStopped = errors.New("manager is stopped")

// Job is one unit of work for the pool: either a CSV table to read, or rows
// that were already projected.
type Job struct {
	Reader     io.Reader
	SourceName string

	Records     []model.FlowRecord
	Columns     []string
	HasSourceIP bool

	// SkipReport disables report files, for rows that are appended elsewhere.
	SkipReport bool
}

type outcome struct {
	result *model.Result
	err    error
}

type request struct {
	ctx  context.Context
	job  Job
	done chan outcome
}

// Options configures a Manager built with New.
type Options struct {
	NumWorkers   int
	QueueSize    int
	PreviewLimit int
	SinkTimeout  time.Duration
	Sinks        []model.Sink
	Alerter      *alerter.Alerter
	Metrics      *metrics.Metrics
}

// Manager runs batches on a fixed pool of workers and fans finished batches
// out to the configured sinks and the alerter.
type Manager struct {
	analyzer *analyzer.Analyzer
	emitter  *report.Emitter
	sinks    []model.Sink
	alerter  *alerter.Alerter
	metrics  *metrics.Metrics

	previewLimit int
	sinkTimeout  time.Duration

	// Worker pool for concurrent batch processing
	jobs       chan *request
	numWorkers int
	workerWg   sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// New creates a Manager from explicit parts.
func New(a *analyzer.Analyzer, e *report.Emitter, opts Options) *Manager {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = config.DefaultNumWorkers
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 10 * time.Second
	}
	return &Manager{
		analyzer:     a,
		emitter:      e,
		sinks:        opts.Sinks,
		alerter:      opts.Alerter,
		metrics:      opts.Metrics,
		previewLimit: opts.PreviewLimit,
		sinkTimeout:  opts.SinkTimeout,
		jobs:         make(chan *request, opts.QueueSize),
		numWorkers:   opts.NumWorkers,
	}
}

// NewManager creates a Manager with the sinks and alerter named in cfg.
func NewManager(cfg *config.Config, a *analyzer.Analyzer, e *report.Emitter, m *metrics.Metrics) (*Manager, error) {
	sinks, err := factory.Create(cfg)
	if err != nil {
		return nil, err
	}

	var alertr *alerter.Alerter
	if cfg.Alerter.Enabled {
		// For now, we only initialize the email notifier. This can be expanded later.
		var notifier model.Notifier
		if cfg.SMTP.Host != "" { // Simple check to see if email is configured
			notifier = notification.NewEmailNotifier(cfg.SMTP)
		}

		if notifier != nil {
			alertr, err = alerter.NewAlerter(&cfg.Alerter, notifier)
			if err != nil {
				closeSinks(sinks)
				return nil, fmt.Errorf("failed to create alerter: %w", err)
			}
			log.Println("Alerter enabled and initialized.")
		} else {
			log.Println("Alerter is enabled in config, but no notifiers are configured. Alerter will not run.")
		}
	}

	return New(a, e, Options{
		NumWorkers:   cfg.Engine.NumWorkers,
		QueueSize:    cfg.Engine.QueueSize,
		PreviewLimit: cfg.Engine.PreviewLimit,
		SinkTimeout:  config.Duration(cfg.Engine.SinkTimeout),
		Sinks:        sinks,
		Alerter:      alertr,
		Metrics:      m,
	}), nil
}

// Start launches the worker pool and the alerter.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true

	if m.alerter != nil {
		m.alerter.Start()
	}

	m.workerWg.Add(m.numWorkers)
	for i := 0; i < m.numWorkers; i++ {
		go m.worker()
	}
	log.Printf("Manager started with %d workers and %d sinks.", m.numWorkers, len(m.sinks))
}

// Submit queues job and waits for its result. If ctx ends first Submit
// returns ctx's error; a job that already started still runs to completion.
func (m *Manager) Submit(ctx context.Context, job Job) (*model.Result, error) {
	req := &request{ctx: ctx, job: job, done: make(chan outcome, 1)}

	m.mu.RLock()
	if m.stopped || !m.started {
		m.mu.RUnlock()
		return nil, ErrStopped
	}
	select {
	case m.jobs <- req:
		m.mu.RUnlock()
	case <-ctx.Done():
		m.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case out := <-req.done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ClassifyBatch analyzes one CSV table and writes its reports.
func (m *Manager) ClassifyBatch(ctx context.Context, r io.Reader, sourceName string) (*model.Result, error) {
	return m.Submit(ctx, Job{Reader: r, SourceName: sourceName})
}

// Stop gracefully shuts down the manager: queued jobs finish, then the
// alerter flushes and sinks are closed.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	log.Println("Manager stopping...")
	// 1. Stop accepting new batches.
	close(m.jobs)
	m.mu.Unlock()

	if started {
		// 2. Wait for all workers to finish queued batches.
		log.Println("Waiting for workers to finish...")
		m.workerWg.Wait()

		// 3. Stop the alerter so it sends what is pending.
		if m.alerter != nil {
			m.alerter.Stop()
		}
	}

	// 4. Release sink connections.
	closeSinks(m.sinks)
	log.Println("Manager stopped.")
}

func (m *Manager) worker() {
	defer m.workerWg.Done()
	for req := range m.jobs {
		res, err := m.process(req.ctx, req.job)
		req.done <- outcome{result: res, err: err}
	}
}

func (m *Manager) process(ctx context.Context, job Job) (*model.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	var batch *model.Batch
	var err error
	if job.Reader != nil {
		batch, err = m.analyzer.Analyze(ctx, job.Reader, job.SourceName)
	} else {
		batch, err = m.analyzer.AnalyzeRecords(ctx, job.Records, job.Columns, job.HasSourceIP, job.SourceName)
	}
	if err != nil {
		m.metrics.BatchFailed(err)
		return nil, err
	}

	res := &model.Result{Batch: batch}
	if !job.SkipReport {
		res.FullReportPath, res.AlertReportPath, err = m.emitter.Emit(batch)
		if err != nil {
			m.metrics.BatchFailed(err)
			return nil, err
		}
	}
	res.Preview = report.BuildPreview(batch, m.previewLimit)
	res.Preview.FullReport = baseName(res.FullReportPath)
	res.Preview.AlertReport = baseName(res.AlertReportPath)

	m.dispatch(ctx, batch)
	m.metrics.ObserveBatch(batch, time.Since(start))
	return res, nil
}

// dispatch hands the batch to every sink and the alerter. Sink failures are
// logged and counted; reports on disk remain the record of the batch.
func (m *Manager) dispatch(ctx context.Context, batch *model.Batch) {
	if len(m.sinks) > 0 {
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.sinkTimeout)
		defer cancel()

		var wg sync.WaitGroup
		wg.Add(len(m.sinks))
		for _, sink := range m.sinks {
			go func(s model.Sink) {
				defer wg.Done()
				if err := s.Write(sinkCtx, batch); err != nil {
					log.Printf("Error writing batch %s to sink %s: %v", batch.ID, s.Name(), err)
					m.metrics.IncrementSinkErrors(s.Name())
				}
			}(sink)
		}
		wg.Wait()
	}

	if m.alerter != nil {
		m.alerter.Observe(batch)
	}
}

func closeSinks(sinks []model.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Printf("Error closing sink %s: %v", s.Name(), err)
		}
	}
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}
