package clickhouse

import (
	"context"
	"fmt"
	"log"

	"FlowSentry/internal/config"
	"FlowSentry/internal/factory"
	"FlowSentry/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// SinkName is the engine.sinks entry that enables this writer.
const SinkName = "clickhouse"

// TableName holds one row per classified flow.
const TableName = "flow_predictions"

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_predictions (
    AnalyzedAt      DateTime,
    BatchID         String,
    SourceName      String,
    RowIndex        UInt32,
    SourceIP        Nullable(String),
    PredictionClass LowCardinality(String),
    Probability     Float64,
    RiskScore       LowCardinality(String),
    AlertTriggered  UInt8
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(AnalyzedAt)
ORDER BY (AnalyzedAt, BatchID, RowIndex);
`

func init() {
	factory.RegisterSink(SinkName, func(cfg *config.Config) (model.Sink, error) {
		return NewWriter(cfg.ClickHouse)
	})
}

// Writer implements the model.Sink interface for ClickHouse.
type Writer struct {
	conn driver.Conn
}

// NewWriter connects to ClickHouse and makes sure the predictions table exists.
func NewWriter(cfg config.ClickHouseConfig) (*Writer, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return &Writer{conn: conn}, nil
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Name implements model.Sink.
func (w *Writer) Name() string { return SinkName }

// Write inserts every annotated flow of the batch into flow_predictions.
func (w *Writer) Write(ctx context.Context, b *model.Batch) error {
	if len(b.Flows) == 0 {
		return nil // Nothing to write
	}

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+TableName)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, f := range b.Flows {
		if err := batch.Append(rowValues(b, f)...); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append row %d to batch: %w", f.Record.Row, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote %d flows to ClickHouse for batch '%s'", len(b.Flows), b.ID)
	return nil
}

// Close implements model.Sink.
func (w *Writer) Close() error {
	return w.conn.Close()
}

// rowValues returns the column values for one flow in table order.
func rowValues(b *model.Batch, f model.AnnotatedFlow) []interface{} {
	var sourceIP *string
	if f.Record.HasSourceIP && f.Record.SourceIP != "" {
		ip := f.Record.SourceIP
		sourceIP = &ip
	}
	var alert uint8
	if f.AlertTriggered {
		alert = 1
	}
	return []interface{}{
		b.AnalyzedAt,
		b.ID,
		b.SourceName,
		uint32(f.Record.Row),
		sourceIP,
		string(f.Prediction.Class),
		f.Prediction.Probability,
		string(f.Tier),
		alert,
	}
}
