package stream

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"FlowSentry/internal/analyzer"
	"FlowSentry/internal/model"
	"FlowSentry/internal/report"
	"FlowSentry/internal/schema"
)

// DefaultInterval is the replay cadence when none is configured.
const DefaultInterval = time.Second

// RowPicker chooses the next 1-based data row out of n.
type RowPicker func(n int) int

// RandomPicker picks rows uniformly from [1, n].
func RandomPicker(rng *rand.Rand) RowPicker {
	var mu sync.Mutex
	return func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		return rng.Intn(n) + 1
	}
}

// SequentialPicker walks rows 1..n and wraps around.
func SequentialPicker() RowPicker {
	next := 0
	return func(n int) int {
		next = next%n + 1
		return next
	}
}

// NewPicker returns the picker configured by name. A zero seed seeds the
// random picker from the clock.
func NewPicker(name string, seed int64) (RowPicker, error) {
	switch name {
	case "", "random":
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return RandomPicker(rand.New(rand.NewSource(seed))), nil
	case "sequential":
		return SequentialPicker(), nil
	default:
		return nil, fmt.Errorf("unknown row picker '%s'", name)
	}
}

// Simulator feeds rows through the analysis pipeline one at a time and
// appends each annotated row to a single CSV file.
type Simulator struct {
	analyzer  *analyzer.Analyzer
	validator *schema.Validator
	out       string

	mu     sync.Mutex
	header []string
}

// NewSimulator creates a simulator appending to out.
func NewSimulator(a *analyzer.Analyzer, v *schema.Validator, out string) *Simulator {
	return &Simulator{analyzer: a, validator: v, out: out}
}

// Output returns the path rows are appended to.
func (s *Simulator) Output() string { return s.out }

// ProcessRow extracts data row index (1-based) from dataset, classifies it
// as a one-row batch and appends the result.
func (s *Simulator) ProcessRow(ctx context.Context, dataset string, index int) (model.AnnotatedFlow, error) {
	f, err := os.Open(dataset)
	if err != nil {
		return model.AnnotatedFlow{}, &model.ProcessingError{Err: fmt.Errorf("failed to open dataset: %w", err)}
	}
	defer f.Close()

	table, err := schema.ReadRow(f, s.validator, index)
	if err != nil {
		return model.AnnotatedFlow{}, &model.ProcessingError{Err: err}
	}
	batch, err := s.analyzer.AnalyzeRecords(ctx, table.Records, table.Columns, table.HasSourceIP, filepath.Base(dataset))
	if err != nil {
		return model.AnnotatedFlow{}, err
	}
	if err := s.Append(ctx, batch); err != nil {
		return model.AnnotatedFlow{}, err
	}
	return batch.Flows[0], nil
}

// Append writes the batch's rows to the output file. The header is written
// only when the file is created; later batches must share its columns.
func (s *Simulator) Append(ctx context.Context, batch *model.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header := append(slices.Clone(batch.Columns), report.DerivedColumns...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.out), 0755); err != nil {
		return &model.ReportWriteError{Path: s.out, Err: err}
	}
	f, err := os.OpenFile(s.out, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return &model.ReportWriteError{Path: s.out, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &model.ReportWriteError{Path: s.out, Err: err}
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return &model.ReportWriteError{Path: s.out, Err: err}
		}
		s.header = header
	} else {
		if s.header == nil {
			existing, err := csv.NewReader(f).Read()
			if err != nil && !errors.Is(err, io.EOF) {
				return &model.ReportWriteError{Path: s.out, Err: fmt.Errorf("failed to read existing header: %w", err)}
			}
			s.header = existing
		}
		if !slices.Equal(s.header, header) {
			return &model.ReportWriteError{Path: s.out, Err: fmt.Errorf("columns %q do not match existing header %q", header, s.header)}
		}
	}

	for _, flow := range batch.Flows {
		if err := w.Write(report.Record(flow)); err != nil {
			return &model.ReportWriteError{Path: s.out, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &model.ReportWriteError{Path: s.out, Err: err}
	}
	return nil
}

// Run replays rows of dataset every interval until ctx is done. Each row is
// its own batch: a failing row is logged and the loop moves on.
func (s *Simulator) Run(ctx context.Context, dataset string, interval time.Duration, pick RowPicker) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if pick == nil {
		pick = RandomPicker(rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	n, err := countRows(dataset)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("dataset '%s' has no data rows", dataset)
	}
	log.Printf("Stream simulator replaying %d rows from '%s' to '%s' every %v", n, dataset, s.out, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("Stream simulator stopped.")
			return nil
		case <-ticker.C:
			index := pick(n)
			flow, err := s.ProcessRow(ctx, dataset, index)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("Stream simulator row %d failed: %v", index, err)
				continue
			}
			log.Printf("Stream row %d: %s p=%s risk=%s alert=%s", flow.Record.Row, flow.Prediction.Class,
				report.FormatProbability(flow.Prediction.Probability), flow.Tier, report.YesNo(flow.AlertTriggered))
		}
	}
}

func countRows(dataset string) (int, error) {
	f, err := os.Open(dataset)
	if err != nil {
		return 0, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return schema.CountRows(f)
}
