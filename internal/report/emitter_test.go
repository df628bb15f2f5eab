package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"FlowSentry/internal/model"
	"FlowSentry/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportTime = time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC)

func annotated(row int, ip string, p float64) model.AnnotatedFlow {
	tier := risk.Score(p)
	return model.AnnotatedFlow{
		Record: model.FlowRecord{
			Row:         row,
			SourceIP:    ip,
			HasSourceIP: true,
			Raw:         []string{ip, "10.5", "100"},
		},
		Prediction:     model.PredictionResult{Class: model.ClassOf(p), Probability: p},
		Tier:           tier,
		AlertTriggered: risk.AlertTriggered(tier),
	}
}

func testBatch(flows ...model.AnnotatedFlow) *model.Batch {
	b := &model.Batch{
		ID:          "b-1",
		SourceName:  "traffic.csv",
		Columns:     []string{" Source IP", " Fwd Packet Length Mean", " Fwd Packet Length Max"},
		HasSourceIP: true,
		Flows:       flows,
	}
	b.Summary = model.BatchSummary{Total: len(flows)}
	for _, f := range flows {
		if f.Prediction.Class == model.ClassDDoS {
			b.Summary.DDoS++
		} else {
			b.Summary.Benign++
		}
		if f.AlertTriggered {
			b.Summary.Alerts++
		}
	}
	b.AnalyzedAt = reportTime
	if len(flows) > 0 {
		b.Summary.DDoSPercentage = float64(b.Summary.DDoS) / float64(len(flows)) * 100
	}
	b.Summary.TopAttackers = model.TopAttackers{Status: model.AttributionAvailable, Ranked: []model.AttackerCount{{IP: "10.0.0.2", Count: 1}}}
	return b
}

func TestEmit_FullReportFormat(t *testing.T) {
	dir := t.TempDir()
	e := NewEmitter(dir, func() time.Time { return reportTime.Add(time.Hour) })
	b := testBatch(annotated(2, "10.0.0.1", 0.1), annotated(3, "10.0.0.2", 0.97), annotated(4, "10.0.0.3", 0.3))

	full, alerts, err := e.Emit(b)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b-1", "report_traffic.csv"), full)
	assert.Equal(t, filepath.Join(dir, "b-1", "alerts_traffic.csv"), alerts)

	data, err := os.ReadFile(full)
	require.NoError(t, err)
	want := `################### DDoS Analysis Report ###################
Analysis Timestamp: 2024-03-09 08:07:06 UTC
Original Filename: traffic.csv

--- Summary ---
Total Flows Analyzed: 3
Benign Flows Detected: 2
DDoS Flows Detected: 1
DDoS Traffic Percentage: 33.33%

--- Threat Intelligence ---
Top 5 Attacking Source IPs:
    - 10.0.0.2: 1 flows

################### Full Data Log ###################
" Source IP"," Fwd Packet Length Mean"," Fwd Packet Length Max",Prediction_Class,Prediction_Probability,Risk_Score,Alert_Triggered
10.0.0.1,10.5,100,BENIGN,0.1000,Low,NO
10.0.0.2,10.5,100,DDoS,0.9700,Critical,YES
10.0.0.3,10.5,100,BENIGN,0.3000,Low,NO
`
	assert.Equal(t, want, string(data))
}

func TestEmit_AlertFileOnlyWhenAlerts(t *testing.T) {
	dir := t.TempDir()
	e := NewEmitter(dir, nil)

	full, alerts, err := e.Emit(testBatch(annotated(2, "a", 0.95), annotated(3, "b", 0.2)))
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.FileExists(t, full)
	assert.NoFileExists(t, filepath.Join(dir, "b-1", "alerts_traffic.csv"))
}

func TestEmit_SameNameBatchesKeepSeparateFiles(t *testing.T) {
	dir := t.TempDir()
	e := NewEmitter(dir, nil)

	first := testBatch(annotated(2, "a", 0.99))
	first.ID = "batch-a"
	firstFull, firstAlerts, err := e.Emit(first)
	require.NoError(t, err)
	require.NotEmpty(t, firstAlerts)

	second := testBatch(annotated(2, "a", 0.1))
	second.ID = "batch-b"
	secondFull, secondAlerts, err := e.Emit(second)
	require.NoError(t, err)

	assert.NotEqual(t, firstFull, secondFull)
	assert.Empty(t, secondAlerts)
	assert.NoFileExists(t, filepath.Join(dir, "batch-b", "alerts_traffic.csv"))
	assert.FileExists(t, firstAlerts)

	data, err := os.ReadFile(firstFull)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DDoS,0.9900,Critical,YES")
}

func TestEmit_ReemitWithoutAlertsRemovesAlertFile(t *testing.T) {
	dir := t.TempDir()
	e := NewEmitter(dir, nil)

	_, alerts, err := e.Emit(testBatch(annotated(2, "a", 0.99)))
	require.NoError(t, err)
	require.FileExists(t, alerts)

	_, again, err := e.Emit(testBatch(annotated(2, "a", 0.2)))
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.NoFileExists(t, alerts)
}

func TestEmit_ConcurrentSameName(t *testing.T) {
	dir := t.TempDir()
	e := NewEmitter(dir, nil)

	const n = 8
	paths := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := testBatch(annotated(2, "a", 0.99))
			b.ID = fmt.Sprintf("batch-%d", i)
			full, _, err := e.Emit(b)
			assert.NoError(t, err)
			paths[i] = full
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, p := range paths {
		assert.Equal(t, filepath.Join(dir, fmt.Sprintf("batch-%d", i), "report_traffic.csv"), p)
		assert.False(t, seen[p], p)
		seen[p] = true
	}
}

func TestEmit_TimestampFromBatch(t *testing.T) {
	e := NewEmitter(t.TempDir(), func() time.Time { return reportTime.Add(24 * time.Hour) })
	b := testBatch(annotated(2, "a", 0.1))
	b.AnalyzedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	full, _, err := e.Emit(b)
	require.NoError(t, err)
	data, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Analysis Timestamp: 2024-05-01 10:00:00 UTC\n")

	b.ID = ""
	b.AnalyzedAt = time.Time{}
	full, _, err = e.Emit(b)
	require.NoError(t, err)
	data, err = os.ReadFile(full)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Analysis Timestamp: 2024-03-10 08:07:06 UTC\n")
	assert.Equal(t, "20240310T080706.000000000", filepath.Base(filepath.Dir(full)))
}

func TestEmit_AlertFileContents(t *testing.T) {
	dir := t.TempDir()
	e := NewEmitter(dir, nil)

	_, alerts, err := e.Emit(testBatch(annotated(2, "a", 0.99), annotated(3, "b", 0.2), annotated(4, "c", 0.951)))
	require.NoError(t, err)

	f, err := os.Open(alerts)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Alert_Triggered", rows[0][len(rows[0])-1])
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "c", rows[2][0])
	for _, r := range rows[1:] {
		assert.Equal(t, "Critical", r[5])
		assert.Equal(t, "YES", r[6])
	}
}

func TestEmit_EmptyBatch(t *testing.T) {
	e := NewEmitter(t.TempDir(), func() time.Time { return reportTime })
	b := testBatch()
	b.Summary.TopAttackers = model.TopAttackers{Status: model.AttributionNotAvailable}

	full, alerts, err := e.Emit(b)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	data, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DDoS Traffic Percentage: 0.00%")
	assert.Contains(t, string(data), "Top 5 Attacking Source IPs:\n"+model.NotAvailableSentinel+"\n")
}

func TestEmit_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	full, _, err := NewEmitter(dir, nil).Emit(testBatch(annotated(2, "a", 0.1)))
	require.NoError(t, err)
	assert.FileExists(t, full)
}

func TestEmit_WriteFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, _, err := NewEmitter(blocker, nil).Emit(testBatch(annotated(2, "a", 0.1)))
	var writeErr *model.ReportWriteError
	require.ErrorAs(t, err, &writeErr)
}

func TestEmit_SanitizesName(t *testing.T) {
	dir := t.TempDir()
	b := testBatch(annotated(2, "a", 0.1))
	b.SourceName = "../../etc/passwd"

	full, _, err := NewEmitter(dir, nil).Emit(b)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b-1", "report_passwd"), full)

	entries, err := os.ReadDir(filepath.Join(dir, "b-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), ".tmp-"))
}

func TestSafeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"flows.csv", "flows.csv"},
		{"my flows.csv", "my_flows.csv"},
		{"../secret.csv", "secret.csv"},
		{`C:\Users\x\data.csv`, "data.csv"},
		{".hidden.csv", "hidden.csv"},
		{"日本.csv", "csv"},
		{"", DefaultName},
		{"///", DefaultName},
		{"a;rm -rf.csv", "arm_-rf.csv"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SafeName(c.in), c.in)
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "0.9500", FormatProbability(0.95))
	assert.Equal(t, "1.0000", FormatProbability(0.99999))
	assert.Equal(t, "66.67", FormatPercentage(200.0/3))
	assert.Equal(t, "YES", YesNo(true))
	assert.Equal(t, "NO", YesNo(false))
}
