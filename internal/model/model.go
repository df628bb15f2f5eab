package model

import (
	"fmt"
	"strings"
	"time"

	"FlowSentry/internal/risk"
)

// FeatureNames are the classifier input columns, in the order the model was
// trained on. Names are matched exactly, including leading spaces.
var FeatureNames = [NumFeatures]string{
	" Fwd Packet Length Mean",
	" Fwd Packet Length Max",
	" Avg Fwd Segment Size",
	"Init_Win_bytes_forward",
	" Subflow Fwd Bytes",
	"Total Length of Fwd Packets",
	" act_data_pkt_fwd",
	" Bwd Packet Length Min",
	"Subflow Fwd Packets",
	" Fwd IAT Std",
}

// SourceIPColumn is optional and only used for attribution.
const SourceIPColumn = " Source IP"

// NumFeatures is the width of a feature vector.
const NumFeatures = 10

// HeaderRowOffset turns a 0-based data row position into the row number a
// user sees in the original file (header is row 1).
const HeaderRowOffset = 2

// FeatureVector is the fixed ten-dimensional classifier input.
type FeatureVector [NumFeatures]float64

// FlowRecord is one validated row of the uploaded table.
type FlowRecord struct {
	Row         int
	Features    FeatureVector
	SourceIP    string
	HasSourceIP bool
	// Raw holds the retained cells in file column order, for reporting only.
	Raw []string
}

// Class is the binary prediction label.
type Class string

const (
	ClassDDoS   Class = "DDoS"
	ClassBenign Class = "BENIGN"
)

// DecisionThreshold separates DDoS from BENIGN.
const DecisionThreshold = 0.5

// ClassOf maps a probability to its predicted class.
func ClassOf(probability float64) Class {
	if probability > DecisionThreshold {
		return ClassDDoS
	}
	return ClassBenign
}

// PredictionResult is the classifier output for one flow.
type PredictionResult struct {
	Class       Class
	Probability float64
}

// AnnotatedFlow joins a record with its prediction, tier and alert flag.
type AnnotatedFlow struct {
	Record         FlowRecord
	Prediction     PredictionResult
	Tier           risk.Tier
	AlertTriggered bool
}

// AttackerCount is one entry of the top-attacker ranking.
type AttackerCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

// AttributionStatus tells whether attacker ranking could be computed.
type AttributionStatus int

const (
	// AttributionAvailable means the Source IP column exists and DDoS flows were seen.
	AttributionAvailable AttributionStatus = iota
	// AttributionNotAvailable means the table had no Source IP column.
	AttributionNotAvailable
	// AttributionNoDDoS means the column exists but no flow was classified DDoS.
	AttributionNoDDoS
)

const (
	NotAvailableSentinel = "Not available (Source IP column not found)."
	NoDDoSSentinel       = "No DDoS traffic detected."
)

// TopAttackers is the ranked attribution list, or the reason it is absent.
type TopAttackers struct {
	Status AttributionStatus
	Ranked []AttackerCount
}

// String renders the ranking the way the report prints it.
func (t TopAttackers) String() string {
	switch t.Status {
	case AttributionNotAvailable:
		return NotAvailableSentinel
	case AttributionNoDDoS:
		return NoDDoSSentinel
	}
	lines := make([]string, len(t.Ranked))
	for i, a := range t.Ranked {
		lines[i] = fmt.Sprintf("    - %s: %d flows", a.IP, a.Count)
	}
	return strings.Join(lines, "\n")
}

// BatchSummary aggregates one processed batch.
type BatchSummary struct {
	Total          int
	Benign         int
	DDoS           int
	Alerts         int
	DDoSPercentage float64
	TopAttackers   TopAttackers
}

// Batch is a fully annotated table.
type Batch struct {
	ID          string
	SourceName  string
	Columns     []string
	HasSourceIP bool
	Flows       []AnnotatedFlow
	Summary     BatchSummary
	AnalyzedAt  time.Time
}

// Alerts returns the flows with AlertTriggered set, in row order.
func (b *Batch) Alerts() []AnnotatedFlow {
	var out []AnnotatedFlow
	for _, f := range b.Flows {
		if f.AlertTriggered {
			out = append(out, f)
		}
	}
	return out
}

// Result is what classifying a batch hands back to callers.
// AlertReportPath is empty when no alert fired.
type Result struct {
	Batch           *Batch
	FullReportPath  string
	AlertReportPath string
	Preview         Preview
}

// PreviewRow is one annotated flow as exposed to API clients.
type PreviewRow struct {
	RowIndex       int    `json:"row_index"`
	Prediction     Class  `json:"prediction"`
	Probability    string `json:"probability"`
	RiskScore      string `json:"risk_score"`
	AlertTriggered bool   `json:"alert_triggered"`
	SourceIP       string `json:"source_ip,omitempty"`
}

// PreviewSummary is the JSON form of BatchSummary.
type PreviewSummary struct {
	TotalFlows     int             `json:"total_flows"`
	BenignFlows    int             `json:"benign_flows"`
	DDoSFlows      int             `json:"ddos_flows"`
	AlertCount     int             `json:"alert_count"`
	DDoSPercentage float64         `json:"ddos_percentage"`
	TopAttackers   []AttackerCount `json:"top_attackers"`
	Attribution    string          `json:"attribution,omitempty"`
}

// Preview is a bounded view of a batch, safe to return over the API.
type Preview struct {
	BatchID     string         `json:"batch_id"`
	SourceName  string         `json:"source_name"`
	AnalyzedAt  time.Time      `json:"analyzed_at"`
	Summary     PreviewSummary `json:"summary"`
	Predictions []PreviewRow   `json:"predictions"`
	Alerts      []PreviewRow   `json:"alerts"`
	Truncated   bool           `json:"truncated"`
	FullReport  string         `json:"full_report,omitempty"`
	AlertReport string         `json:"alert_report,omitempty"`
}
