package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"FlowSentry/internal/model"
	"FlowSentry/internal/risk"
	"FlowSentry/internal/schema"

	"github.com/google/uuid"
)

// DefaultMaxRows bounds a single batch when Options.MaxRows is unset.
const DefaultMaxRows = 1_000_000

// TopAttackerLimit is the number of source addresses kept in a summary.
const TopAttackerLimit = 5

// Options tunes an Analyzer.
type Options struct {
	MaxRows int
	// Now is used to stamp batches. Defaults to time.Now.
	Now func() time.Time
}

// Analyzer runs the validate → classify → tier → summarize pipeline over one
// table. It holds no per-batch state and may be shared by goroutines.
type Analyzer struct {
	classifier model.Classifier
	validator  *schema.Validator
	maxRows    int
	now        func() time.Time
}

// New creates an Analyzer around an already loaded classifier.
func New(classifier model.Classifier, v *schema.Validator, opts Options) *Analyzer {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Analyzer{classifier: classifier, validator: v, maxRows: opts.MaxRows, now: opts.Now}
}

// Validator returns the schema validator the analyzer projects rows with.
func (a *Analyzer) Validator() *schema.Validator { return a.validator }

// Analyze reads a CSV table from r and returns the annotated batch. Every
// failure is returned as a *model.ProcessingError; no partial batch is
// produced.
func (a *Analyzer) Analyze(ctx context.Context, r io.Reader, sourceName string) (*model.Batch, error) {
	table, err := schema.ReadTable(r, a.validator, a.maxRows)
	if err != nil {
		return nil, &model.ProcessingError{Err: err}
	}
	return a.AnalyzeRecords(ctx, table.Records, table.Columns, table.HasSourceIP, sourceName)
}

// AnalyzeRecords runs the pipeline on rows that were already projected.
func (a *Analyzer) AnalyzeRecords(ctx context.Context, records []model.FlowRecord, columns []string, hasSourceIP bool, sourceName string) (*model.Batch, error) {
	flows, err := a.annotate(ctx, records)
	if err != nil {
		var procErr *model.ProcessingError
		if errors.As(err, &procErr) {
			return nil, err
		}
		return nil, &model.ProcessingError{Err: err}
	}

	return &model.Batch{
		ID:          uuid.NewString(),
		SourceName:  sourceName,
		Columns:     columns,
		HasSourceIP: hasSourceIP,
		Flows:       flows,
		Summary:     Summarize(flows, hasSourceIP),
		AnalyzedAt:  a.now().UTC(),
	}, nil
}

// classifyChunk is the number of rows handed to ClassifyBatch between
// cancellation checks.
const classifyChunk = 256

func (a *Analyzer) annotate(ctx context.Context, records []model.FlowRecord) ([]model.AnnotatedFlow, error) {
	flows := make([]model.AnnotatedFlow, len(records))
	vecs := make([]model.FeatureVector, 0, classifyChunk)

	for start := 0; start < len(records); start += classifyChunk {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analysis cancelled at row %d: %w", records[start].Row, err)
		}
		end := min(start+classifyChunk, len(records))

		vecs = vecs[:0]
		for _, rec := range records[start:end] {
			vecs = append(vecs, rec.Features)
		}
		probs, err := a.classifier.ClassifyBatch(vecs)
		if err != nil {
			return nil, locate(err, records[start:end])
		}
		if len(probs) != len(vecs) {
			return nil, fmt.Errorf("classifier returned %d probabilities for %d rows", len(probs), len(vecs))
		}

		for i, p := range probs {
			rec := records[start+i]
			tier := risk.Score(p)
			flows[start+i] = model.AnnotatedFlow{
				Record:         rec,
				Prediction:     model.PredictionResult{Class: model.ClassOf(p), Probability: p},
				Tier:           tier,
				AlertTriggered: risk.AlertTriggered(tier),
			}
		}
	}
	return flows, nil
}

// locate rewrites a batched classifier failure so it names the file row.
func locate(err error, chunk []model.FlowRecord) error {
	var vecErr *model.VectorError
	if !errors.As(err, &vecErr) || vecErr.Index < 0 || vecErr.Index >= len(chunk) {
		return fmt.Errorf("inference failed: %w", err)
	}
	row := chunk[vecErr.Index].Row

	var featErr *model.InvalidFeatureError
	if errors.As(vecErr.Err, &featErr) {
		located := *featErr
		located.Row = row
		return &located
	}
	return fmt.Errorf("inference failed at row %d: %w", row, vecErr.Err)
}

// Summarize aggregates annotated flows. It is pure and never fails.
func Summarize(flows []model.AnnotatedFlow, hasSourceIP bool) model.BatchSummary {
	s := model.BatchSummary{Total: len(flows)}

	counts := make(map[string]int)
	var order []string
	for _, f := range flows {
		if f.AlertTriggered {
			s.Alerts++
		}
		if f.Prediction.Class != model.ClassDDoS {
			s.Benign++
			continue
		}
		s.DDoS++
		if !hasSourceIP || f.Record.SourceIP == "" {
			continue
		}
		if _, seen := counts[f.Record.SourceIP]; !seen {
			order = append(order, f.Record.SourceIP)
		}
		counts[f.Record.SourceIP]++
	}

	if s.Total > 0 {
		s.DDoSPercentage = float64(s.DDoS) / float64(s.Total) * 100
	}

	switch {
	case !hasSourceIP:
		s.TopAttackers = model.TopAttackers{Status: model.AttributionNotAvailable}
	case s.DDoS == 0:
		s.TopAttackers = model.TopAttackers{Status: model.AttributionNoDDoS}
	default:
		s.TopAttackers = model.TopAttackers{Status: model.AttributionAvailable, Ranked: rank(counts, order, TopAttackerLimit)}
	}
	return s
}

// rank returns the n most frequent addresses. order is first-seen order and
// breaks ties.
func rank(counts map[string]int, order []string, n int) []model.AttackerCount {
	ranked := make([]model.AttackerCount, 0, len(order))
	for _, ip := range order {
		ranked = append(ranked, model.AttackerCount{IP: ip, Count: counts[ip]})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
