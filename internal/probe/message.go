package probe

import (
	"fmt"
	"time"

	"FlowSentry/internal/model"
	"FlowSentry/internal/report"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// FlowMessage is one raw flow row as it travels over NATS. The header is
// carried with every row so a subscriber can project it without state.
type FlowMessage struct {
	Source  string
	Row     int
	Columns []string
	Cells   []string
	SentAt  time.Time
}

// Marshal encodes the message as a protobuf Struct.
func (m *FlowMessage) Marshal() ([]byte, error) {
	sentAt := timestamppb.New(m.SentAt)
	st, err := structpb.NewStruct(map[string]interface{}{
		"source":  m.Source,
		"row":     m.Row,
		"columns": toList(m.Columns),
		"cells":   toList(m.Cells),
		"sent_at": map[string]interface{}{"seconds": sentAt.GetSeconds(), "nanos": sentAt.GetNanos()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build flow message: %w", err)
	}
	return proto.Marshal(st)
}

// UnmarshalFlowMessage decodes a message produced by Marshal.
func UnmarshalFlowMessage(data []byte) (*FlowMessage, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}
	fields := st.GetFields()

	columns, err := stringList(fields, "columns")
	if err != nil {
		return nil, err
	}
	cells, err := stringList(fields, "cells")
	if err != nil {
		return nil, err
	}
	row, ok := fields["row"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, fmt.Errorf("flow message has no row number")
	}

	m := &FlowMessage{
		Source:  fields["source"].GetStringValue(),
		Row:     int(row.NumberValue),
		Columns: columns,
		Cells:   cells,
	}
	if ts := fields["sent_at"].GetStructValue().GetFields(); ts != nil {
		m.SentAt = (&timestamppb.Timestamp{
			Seconds: int64(ts["seconds"].GetNumberValue()),
			Nanos:   int32(ts["nanos"].GetNumberValue()),
		}).AsTime()
	}
	return m, nil
}

// EncodeBatchEvent builds the alert event published for a batch. At most
// maxAlerts alert rows are included; maxAlerts <= 0 includes none.
func EncodeBatchEvent(b *model.Batch, maxAlerts int) ([]byte, error) {
	s := b.Summary
	attackers := make([]interface{}, 0, len(s.TopAttackers.Ranked))
	for _, a := range s.TopAttackers.Ranked {
		attackers = append(attackers, map[string]interface{}{"ip": a.IP, "count": a.Count})
	}

	var alerts []interface{}
	for _, f := range b.Alerts() {
		if len(alerts) >= maxAlerts {
			break
		}
		alerts = append(alerts, map[string]interface{}{
			"row_index":   f.Record.Row,
			"source_ip":   f.Record.SourceIP,
			"probability": report.FormatProbability(f.Prediction.Probability),
			"risk_score":  string(f.Tier),
		})
	}

	st, err := structpb.NewStruct(map[string]interface{}{
		"batch_id":        b.ID,
		"source_name":     b.SourceName,
		"analyzed_at":     b.AnalyzedAt.UTC().Format(time.RFC3339Nano),
		"total_flows":     s.Total,
		"benign_flows":    s.Benign,
		"ddos_flows":      s.DDoS,
		"alert_count":     s.Alerts,
		"ddos_percentage": s.DDoSPercentage,
		"top_attackers":   attackers,
		"attribution":     s.TopAttackers.String(),
		"alerts":          alerts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build batch event: %w", err)
	}
	return proto.Marshal(st)
}

// DecodeBatchEvent returns the event as a generic map, for consumers and tests.
func DecodeBatchEvent(data []byte) (map[string]interface{}, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}
	return st.AsMap(), nil
}

func toList(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func stringList(fields map[string]*structpb.Value, key string) ([]string, error) {
	list := fields[key].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("flow message has no %s", key)
	}
	out := make([]string, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("flow message %s[%d] is not a string", key, i)
		}
		out[i] = s.StringValue
	}
	return out, nil
}
