package alerter

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
	"FlowSentry/internal/report"

	"github.com/gomarkdown/markdown"
)

// pendingAlert is one alerting flow waiting for the next digest.
type pendingAlert struct {
	batchID string
	source  string
	flow    model.AnnotatedFlow
}

// Alerter collects Critical flows from finished batches and periodically
// sends them as one consolidated notification.
type Alerter struct {
	notifier      model.Notifier
	checkInterval time.Duration
	minAlerts     int
	maxRows       int

	mu      sync.Mutex
	pending []pendingAlert
	dropped int
	batches map[string]string // batch ID -> source name

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewAlerter creates a new Alerter instance.
func NewAlerter(cfg *config.AlerterConfig, notifier model.Notifier) (*Alerter, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid check_interval for alerter: %w", err)
	}
	if notifier == nil {
		return nil, fmt.Errorf("alerter needs a notifier")
	}

	return &Alerter{
		notifier:      notifier,
		checkInterval: interval,
		minAlerts:     max(cfg.MinAlerts, 1),
		maxRows:       max(cfg.MaxRows, 1),
		batches:       make(map[string]string),
		stopChan:      make(chan struct{}),
	}, nil
}

// Observe queues the alerting flows of a finished batch.
func (a *Alerter) Observe(b *model.Batch) {
	alerts := b.Alerts()
	if len(alerts) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches[b.ID] = b.SourceName
	for _, f := range alerts {
		if len(a.pending) >= a.maxRows {
			a.dropped++
			continue
		}
		a.pending = append(a.pending, pendingAlert{batchID: b.ID, source: b.SourceName, flow: f})
	}
}

// Start begins the periodic digest loop in its own goroutine.
func (a *Alerter) Start() {
	log.Println("Alerter started")
	a.wg.Add(1)
	go a.run()
}

func (a *Alerter) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.evaluate(false)
		case <-a.stopChan:
			return
		}
	}
}

// Stop gracefully stops the alerter's loop and sends whatever is pending.
func (a *Alerter) Stop() {
	log.Println("Stopping Alerter...")
	close(a.stopChan)
	a.wg.Wait()
	a.evaluate(true)
}

// evaluate sends a digest once enough alerts are pending, or unconditionally
// when final is set and anything is pending.
func (a *Alerter) evaluate(final bool) {
	a.mu.Lock()
	total := len(a.pending) + a.dropped
	if total == 0 || (!final && total < a.minAlerts) {
		a.mu.Unlock()
		return
	}
	pending, dropped, batches := a.pending, a.dropped, len(a.batches)
	a.pending, a.dropped, a.batches = nil, 0, make(map[string]string)
	a.mu.Unlock()

	log.Printf("Alerter evaluation completed. %d alert(s) triggered.", total)

	md := renderDigest(pending, dropped, batches)
	body := string(markdown.ToHTML([]byte(md), nil, nil))

	subject := fmt.Sprintf("FlowSentry Alert Summary (%d Critical flows)", total)
	if err := a.notifier.Send(subject, body); err != nil {
		log.Printf("ERROR: Failed to send consolidated alert notification: %v", err)
	} else {
		log.Printf("INFO: Consolidated alert notification sent successfully.")
	}
}

// renderDigest writes the digest as Markdown.
func renderDigest(pending []pendingAlert, dropped, batches int) string {
	var b strings.Builder
	b.WriteString("# FlowSentry Alert Summary\n\n")
	fmt.Fprintf(&b, "%d flow(s) were scored **Critical** across %d batch(es).\n\n", len(pending)+dropped, batches)

	b.WriteString("| Batch | File | Row | Source IP | Probability |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, p := range pending {
		ip := p.flow.Record.SourceIP
		if ip == "" {
			ip = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %s | %s |\n",
			escapeCell(p.batchID), escapeCell(p.source), p.flow.Record.Row, escapeCell(ip),
			report.FormatProbability(p.flow.Prediction.Probability))
	}
	if dropped > 0 {
		fmt.Fprintf(&b, "\n_%d more alert(s) not listed._\n", dropped)
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ", "\r", " ").Replace(s)
}
