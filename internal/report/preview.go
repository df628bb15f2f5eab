package report

import (
	"FlowSentry/internal/model"
)

// DefaultPreviewLimit caps the rows handed to a UI.
const DefaultPreviewLimit = 1000

// BuildPreview returns at most limit annotated rows, and at most limit alert
// rows, with their original row numbers. limit <= 0 uses DefaultPreviewLimit.
func BuildPreview(b *model.Batch, limit int) model.Preview {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}

	p := model.Preview{
		BatchID:     b.ID,
		SourceName:  b.SourceName,
		AnalyzedAt:  b.AnalyzedAt,
		Summary:     previewSummary(b.Summary),
		Predictions: make([]model.PreviewRow, 0, min(limit, len(b.Flows))),
		Alerts:      []model.PreviewRow{},
	}
	for _, f := range b.Flows {
		if len(p.Predictions) < limit {
			p.Predictions = append(p.Predictions, previewRow(f))
		}
		if f.AlertTriggered && len(p.Alerts) < limit {
			p.Alerts = append(p.Alerts, previewRow(f))
		}
	}
	p.Truncated = len(b.Flows) > limit || b.Summary.Alerts > limit
	return p
}

func previewRow(f model.AnnotatedFlow) model.PreviewRow {
	return model.PreviewRow{
		RowIndex:       f.Record.Row,
		Prediction:     f.Prediction.Class,
		Probability:    FormatProbability(f.Prediction.Probability),
		RiskScore:      string(f.Tier),
		AlertTriggered: f.AlertTriggered,
		SourceIP:       f.Record.SourceIP,
	}
}

func previewSummary(s model.BatchSummary) model.PreviewSummary {
	ps := model.PreviewSummary{
		TotalFlows:     s.Total,
		BenignFlows:    s.Benign,
		DDoSFlows:      s.DDoS,
		AlertCount:     s.Alerts,
		DDoSPercentage: s.DDoSPercentage,
		TopAttackers:   []model.AttackerCount{},
	}
	if s.TopAttackers.Status == model.AttributionAvailable {
		ps.TopAttackers = append(ps.TopAttackers, s.TopAttackers.Ranked...)
	} else {
		ps.Attribution = s.TopAttackers.String()
	}
	return ps
}
