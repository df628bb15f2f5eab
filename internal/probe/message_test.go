package probe

import (
	"testing"
	"time"

	"FlowSentry/internal/model"
	"FlowSentry/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestFlowMessage_RoundTrip(t *testing.T) {
	sent := time.Date(2024, 6, 1, 10, 0, 0, 123456789, time.UTC)
	in := &FlowMessage{
		Source:  "set_1.csv",
		Row:     42,
		Columns: []string{model.SourceIPColumn, model.FeatureNames[0]},
		Cells:   []string{"10.0.0.9", "1e300"},
		SentAt:  sent,
	}
	data, err := in.Marshal()
	require.NoError(t, err)

	out, err := UnmarshalFlowMessage(data)
	require.NoError(t, err)
	assert.Equal(t, in.Source, out.Source)
	assert.Equal(t, 42, out.Row)
	assert.Equal(t, in.Columns, out.Columns)
	assert.Equal(t, in.Cells, out.Cells)
	assert.True(t, sent.Equal(out.SentAt))
}

func TestUnmarshalFlowMessage_Rejects(t *testing.T) {
	_, err := UnmarshalFlowMessage([]byte{0xff, 0x01})
	assert.Error(t, err)

	st, err := structpb.NewStruct(map[string]interface{}{"row": 1, "columns": []interface{}{"a"}, "cells": []interface{}{1.5}})
	require.NoError(t, err)
	data, err := proto.Marshal(st)
	require.NoError(t, err)
	_, err = UnmarshalFlowMessage(data)
	assert.ErrorContains(t, err, "cells[0] is not a string")

	st, err = structpb.NewStruct(map[string]interface{}{"columns": []interface{}{"a"}, "cells": []interface{}{"1"}})
	require.NoError(t, err)
	data, err = proto.Marshal(st)
	require.NoError(t, err)
	_, err = UnmarshalFlowMessage(data)
	assert.ErrorContains(t, err, "row")
}

func TestEncodeBatchEvent(t *testing.T) {
	crit := model.AnnotatedFlow{
		Record:         model.FlowRecord{Row: 3, SourceIP: "10.0.0.2", HasSourceIP: true},
		Prediction:     model.PredictionResult{Class: model.ClassDDoS, Probability: 0.971},
		Tier:           risk.Critical,
		AlertTriggered: true,
	}
	b := &model.Batch{
		ID:         "b-7",
		SourceName: "flows.csv",
		AnalyzedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Flows:      []model.AnnotatedFlow{crit, crit, crit},
		Summary: model.BatchSummary{
			Total: 3, DDoS: 3, Alerts: 3, DDoSPercentage: 100,
			TopAttackers: model.TopAttackers{Status: model.AttributionAvailable, Ranked: []model.AttackerCount{{IP: "10.0.0.2", Count: 3}}},
		},
	}

	data, err := EncodeBatchEvent(b, 2)
	require.NoError(t, err)
	ev, err := DecodeBatchEvent(data)
	require.NoError(t, err)

	assert.Equal(t, "b-7", ev["batch_id"])
	assert.Equal(t, 3.0, ev["alert_count"])
	assert.Equal(t, 100.0, ev["ddos_percentage"])
	assert.Equal(t, "2024-06-01T00:00:00Z", ev["analyzed_at"])
	alerts := ev["alerts"].([]interface{})
	assert.Len(t, alerts, 2)
	first := alerts[0].(map[string]interface{})
	assert.Equal(t, "0.9710", first["probability"])
	assert.Equal(t, 3.0, first["row_index"])
	attackers := ev["top_attackers"].([]interface{})
	assert.Equal(t, "10.0.0.2", attackers[0].(map[string]interface{})["ip"])
}
