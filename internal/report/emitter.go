package report

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"FlowSentry/internal/model"
)

const (
	FullPrefix  = "report_"
	AlertPrefix = "alerts_"

	timestampLayout = "2006-01-02 15:04:05 UTC"
)

// DerivedColumns are appended after the retained input columns.
var DerivedColumns = []string{"Prediction_Class", "Prediction_Probability", "Risk_Score", "Alert_Triggered"}

// Emitter persists batch reports under a single directory.
type Emitter struct {
	dir string
	now func() time.Time
}

// NewEmitter creates an emitter writing into dir. now stamps batches that
// carry no analysis time and defaults to time.Now.
func NewEmitter(dir string, now func() time.Time) *Emitter {
	if now == nil {
		now = time.Now
	}
	return &Emitter{dir: dir, now: now}
}

// Dir returns the report directory.
func (e *Emitter) Dir() string { return e.dir }

// Emit writes the full report and, when at least one alert fired, the
// alerts-only CSV into the batch's own directory under dir. It returns the
// paths written; alerts is empty when no alert file was produced.
func (e *Emitter) Emit(b *model.Batch) (full, alerts string, err error) {
	batchDir := filepath.Join(e.dir, e.batchDirName(b))
	if err := os.MkdirAll(batchDir, 0755); err != nil {
		return "", "", &model.ReportWriteError{Path: batchDir, Err: fmt.Errorf("failed to create report directory: %w", err)}
	}

	name := SafeName(b.SourceName)
	full = filepath.Join(batchDir, FullPrefix+name)
	if err := writeFile(full, func(w io.Writer) error { return e.writeFull(w, b) }); err != nil {
		return "", "", err
	}

	alerts = filepath.Join(batchDir, AlertPrefix+name)
	alertFlows := b.Alerts()
	if len(alertFlows) == 0 {
		// An alerts file must only exist for the batch that fired them.
		if err := os.Remove(alerts); err != nil && !errors.Is(err, os.ErrNotExist) {
			return full, "", &model.ReportWriteError{Path: alerts, Err: err}
		}
		log.Printf("Report for '%s' written to %s (no alerts)", b.SourceName, full)
		return full, "", nil
	}

	if err := writeFile(alerts, func(w io.Writer) error { return WriteCSV(w, b.Columns, alertFlows) }); err != nil {
		return full, "", err
	}
	log.Printf("Report for '%s' written to %s, %d alerts to %s", b.SourceName, full, len(alertFlows), alerts)
	return full, alerts, nil
}

// batchDirName is the batch ID, or a timestamp for batches without one.
func (e *Emitter) batchDirName(b *model.Batch) string {
	if b.ID == "" {
		return e.now().UTC().Format("20060102T150405.000000000")
	}
	return SafeName(b.ID)
}

// writeFile writes through a temp file in the same directory and renames it
// into place, so readers never observe a half-written report.
func writeFile(path string, fill func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return &model.ReportWriteError{Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		tmp.Close()
		return &model.ReportWriteError{Path: path, Err: err}
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return &model.ReportWriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &model.ReportWriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &model.ReportWriteError{Path: path, Err: err}
	}
	return nil
}

// analyzedAt is the batch's analysis time. The emitter clock stamps batches
// that lack one.
func (e *Emitter) analyzedAt(b *model.Batch) time.Time {
	if b.AnalyzedAt.IsZero() {
		return e.now().UTC()
	}
	return b.AnalyzedAt.UTC()
}

func (e *Emitter) writeFull(w io.Writer, b *model.Batch) error {
	s := b.Summary
	header := "################### DDoS Analysis Report ###################\n" +
		fmt.Sprintf("Analysis Timestamp: %s\n", e.analyzedAt(b).Format(timestampLayout)) +
		fmt.Sprintf("Original Filename: %s\n\n", b.SourceName) +
		"--- Summary ---\n" +
		fmt.Sprintf("Total Flows Analyzed: %d\n", s.Total) +
		fmt.Sprintf("Benign Flows Detected: %d\n", s.Benign) +
		fmt.Sprintf("DDoS Flows Detected: %d\n", s.DDoS) +
		fmt.Sprintf("DDoS Traffic Percentage: %s%%\n\n", FormatPercentage(s.DDoSPercentage)) +
		"--- Threat Intelligence ---\n" +
		"Top 5 Attacking Source IPs:\n" +
		s.TopAttackers.String() + "\n\n" +
		"################### Full Data Log ###################\n"
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	return WriteCSV(w, b.Columns, b.Flows)
}

// WriteCSV writes the retained columns plus the derived columns for flows.
func WriteCSV(w io.Writer, columns []string, flows []model.AnnotatedFlow) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(columns)+len(DerivedColumns))
	header = append(header, columns...)
	header = append(header, DerivedColumns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, f := range flows {
		if err := cw.Write(Record(f)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", f.Record.Row, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Record renders one annotated flow as CSV cells.
func Record(f model.AnnotatedFlow) []string {
	row := make([]string, 0, len(f.Record.Raw)+len(DerivedColumns))
	row = append(row, f.Record.Raw...)
	return append(row,
		string(f.Prediction.Class),
		FormatProbability(f.Prediction.Probability),
		string(f.Tier),
		YesNo(f.AlertTriggered),
	)
}

// FormatProbability renders a probability with four decimals.
func FormatProbability(p float64) string {
	return strconv.FormatFloat(p, 'f', 4, 64)
}

// FormatPercentage renders a percentage with two decimals.
func FormatPercentage(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

// YesNo is the report spelling of a boolean.
func YesNo(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}
