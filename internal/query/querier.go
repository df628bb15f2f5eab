package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
	chsink "FlowSentry/internal/sink/clickhouse"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// MaxLimit bounds the number of rows a single query may return.
const MaxLimit = 1000

// Querier defines the interface for querying stored predictions.
type Querier interface {
	// TopAttackers ranks source addresses by DDoS flow count across batches.
	TopAttackers(ctx context.Context, req TopAttackersRequest) ([]model.AttackerCount, error)
	// TierCounts returns the number of stored flows per risk tier.
	TierCounts(ctx context.Context, since time.Time) (map[string]uint64, error)
	Close() error
}

// TopAttackersRequest filters a TopAttackers query. Zero values mean no filter.
type TopAttackersRequest struct {
	Limit      int
	Since      time.Time
	SourceName string
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := chsink.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

// buildTopAttackersQuery returns the SQL and arguments for req. Ties are
// broken by the earliest sighting so the order matches per-batch ranking.
func buildTopAttackersQuery(req TopAttackersRequest) (string, []interface{}) {
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			assumeNotNull(SourceIP) AS IP,
			count() AS Flows
		FROM ` + chsink.TableName)

	whereClauses := []string{"PredictionClass = ?", "SourceIP IS NOT NULL", "SourceIP != ''"}
	args := []interface{}{string(model.ClassDDoS)}

	if !req.Since.IsZero() {
		whereClauses = append(whereClauses, "AnalyzedAt >= ?")
		args = append(args, req.Since)
	}
	if req.SourceName != "" {
		whereClauses = append(whereClauses, "SourceName = ?")
		args = append(args, req.SourceName)
	}

	queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	queryBuilder.WriteString(fmt.Sprintf(`
		GROUP BY IP
		ORDER BY Flows DESC, min(AnalyzedAt) ASC, IP ASC
		LIMIT %d
	`, limit))

	return queryBuilder.String(), args
}

// TopAttackers executes the cross-batch attacker ranking.
func (q *clickhouseQuerier) TopAttackers(ctx context.Context, req TopAttackersRequest) ([]model.AttackerCount, error) {
	sql, args := buildTopAttackersQuery(req)
	rows, err := q.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	attackers := []model.AttackerCount{}
	for rows.Next() {
		var ip string
		var flows uint64
		if err := rows.Scan(&ip, &flows); err != nil {
			return nil, fmt.Errorf("failed to scan attacker row: %w", err)
		}
		attackers = append(attackers, model.AttackerCount{IP: ip, Count: int(flows)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read attacker rows: %w", err)
	}
	return attackers, nil
}

// TierCounts executes a per-tier count over stored flows.
func (q *clickhouseQuerier) TierCounts(ctx context.Context, since time.Time) (map[string]uint64, error) {
	sql := "SELECT RiskScore, count() FROM " + chsink.TableName
	var args []interface{}
	if !since.IsZero() {
		sql += " WHERE AnalyzedAt >= ?"
		args = append(args, since)
	}
	sql += " GROUP BY RiskScore"

	rows, err := q.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var tier string
		var n uint64
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("failed to scan tier row: %w", err)
		}
		counts[tier] = n
	}
	return counts, rows.Err()
}

func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}
