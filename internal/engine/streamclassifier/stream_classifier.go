package streamclassifier

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"FlowSentry/internal/config"
	"FlowSentry/internal/engine/manager"
	"FlowSentry/internal/metrics"
	"FlowSentry/internal/model"
	"FlowSentry/internal/probe"
	"FlowSentry/internal/report"
	"FlowSentry/internal/schema"
)

// Appender receives every classified row, e.g. *stream.Simulator.
type Appender interface {
	Append(ctx context.Context, batch *model.Batch) error
}

// maxProjections bounds the cache of distinct headers seen on the stream.
const maxProjections = 32

// StreamClassifier consumes flow rows from NATS and classifies each one as a
// single-row batch through the manager.
type StreamClassifier struct {
	sub       *probe.Subscriber
	manager   *manager.Manager
	validator *schema.Validator
	appender  Appender
	metrics   *metrics.Metrics
	probeCfg  config.ProbeConfig

	inputChannel chan *probe.FlowMessage
	numWorkers   int
	workerWg     sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc

	// inputMu guards sends on inputChannel against its close in Stop.
	inputMu  sync.RWMutex
	closed   bool
	done     chan struct{}
	stopOnce sync.Once

	mu          sync.Mutex
	projections map[string]*schema.Projection
}

// NewStreamClassifier creates a new real-time stream classifier.
func NewStreamClassifier(cfg *config.Config, mgr *manager.Manager, v *schema.Validator, appender Appender, m *metrics.Metrics) *StreamClassifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamClassifier{
		manager:      mgr,
		validator:    v,
		appender:     appender,
		metrics:      m,
		probeCfg:     cfg.Probe,
		inputChannel: make(chan *probe.FlowMessage, cfg.Engine.QueueSize),
		numWorkers:   cfg.Engine.NumWorkers,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		projections:  make(map[string]*schema.Projection),
	}
}

// Start connects to NATS, starts the workers, and begins processing messages.
func (sc *StreamClassifier) Start() error {
	log.Println("StreamClassifier starting for nats: ", sc.probeCfg.NATSURL)
	sub, err := probe.NewSubscriber(sc.probeCfg)
	if err != nil {
		return fmt.Errorf("StreamClassifier failed to connect to NATS: %w", err)
	}
	sub.OnDecodeError = func(error) { sc.metrics.IncrementStreamMessages("decode_error") }
	sc.sub = sub

	sc.startWorkers()

	if err := sc.sub.Start(func(msg *probe.FlowMessage) { sc.enqueue(msg) }); err != nil {
		return fmt.Errorf("StreamClassifier failed to subscribe: %w", err)
	}
	return nil
}

func (sc *StreamClassifier) startWorkers() {
	sc.workerWg.Add(sc.numWorkers)
	for i := 0; i < sc.numWorkers; i++ {
		go sc.worker()
	}
}

// Stop gracefully shuts down the classifier. Rows already queued are
// processed before Stop returns; rows still arriving are dropped. Stop is
// safe to call more than once.
func (sc *StreamClassifier) Stop() {
	sc.stopOnce.Do(func() {
		log.Println("StreamClassifier stopping...")
		if sc.sub != nil {
			sc.sub.Close()
		}
		// Release callbacks blocked on a full queue before taking the lock.
		close(sc.done)
		sc.inputMu.Lock()
		sc.closed = true
		close(sc.inputChannel)
		sc.inputMu.Unlock()

		sc.workerWg.Wait()
		sc.cancel()
		log.Println("StreamClassifier stopped.")
	})
}

// enqueue passes the decoded row to the worker channel. It reports false
// when the row was dropped because the classifier is stopping.
func (sc *StreamClassifier) enqueue(msg *probe.FlowMessage) bool {
	sc.inputMu.RLock()
	defer sc.inputMu.RUnlock()
	if sc.closed {
		sc.metrics.IncrementStreamMessages("dropped")
		return false
	}
	select {
	case sc.inputChannel <- msg:
		return true
	case <-sc.done:
		sc.metrics.IncrementStreamMessages("dropped")
		return false
	}
}

func (sc *StreamClassifier) worker() {
	defer sc.workerWg.Done()
	for msg := range sc.inputChannel {
		flow, err := sc.Handle(sc.ctx, msg)
		if err != nil {
			log.Printf("StreamClassifier row %d from '%s' failed: %v", msg.Row, msg.Source, err)
			sc.metrics.IncrementStreamMessages(metrics.FailureStatus(err))
			continue
		}
		sc.metrics.IncrementStreamMessages(metrics.StatusOK)
		if flow.AlertTriggered {
			log.Printf("ALERT: row %d from '%s' (%s) scored %s, p=%s", flow.Record.Row, msg.Source,
				flow.Record.SourceIP, flow.Tier, report.FormatProbability(flow.Prediction.Probability))
		}
	}
}

// Handle projects, classifies and appends one streamed row.
func (sc *StreamClassifier) Handle(ctx context.Context, msg *probe.FlowMessage) (model.AnnotatedFlow, error) {
	proj, err := sc.projection(msg.Columns)
	if err != nil {
		return model.AnnotatedFlow{}, &model.ProcessingError{Err: err}
	}
	rec, err := proj.Record(msg.Row, msg.Cells)
	if err != nil {
		return model.AnnotatedFlow{}, &model.ProcessingError{Err: err}
	}

	res, err := sc.manager.Submit(ctx, manager.Job{
		Records:     []model.FlowRecord{rec},
		Columns:     proj.Columns(),
		HasSourceIP: proj.HasSourceIP(),
		SourceName:  msg.Source,
		SkipReport:  true,
	})
	if err != nil {
		return model.AnnotatedFlow{}, err
	}
	if sc.appender != nil {
		if err := sc.appender.Append(ctx, res.Batch); err != nil {
			return model.AnnotatedFlow{}, err
		}
	}
	return res.Batch.Flows[0], nil
}

// projection returns the cached projection for a header.
func (sc *StreamClassifier) projection(columns []string) (*schema.Projection, error) {
	key := strings.Join(columns, "\x00")

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if p, ok := sc.projections[key]; ok {
		return p, nil
	}
	p, err := sc.validator.Project(columns)
	if err != nil {
		return nil, err
	}
	if len(sc.projections) >= maxProjections {
		clear(sc.projections)
	}
	sc.projections[key] = p
	return p, nil
}
