// Package chread serves read queries over the tool_call_events table.
package chread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const selectColumns = "request_id, timestamp, tool_name, source, arguments, " +
	"outcome, error_kind, error_message, latency_ms"

// Reader provides read access to the ClickHouse tool_call_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(ctx context.Context, dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// ToolCallRow is a single row of tool_call_events.
type ToolCallRow struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	ToolName     string    `json:"tool_name"`
	Source       string    `json:"source"`
	Arguments    string    `json:"arguments"`
	Outcome      string    `json:"outcome"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	LatencyMs    float32   `json:"latency_ms"`
}

// ListToolCallsParams holds filters and pagination for call listing.
// Page is 1-based.
type ListToolCallsParams struct {
	ToolName  *string
	Outcome   *string
	Source    *string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// whereClause builds the filter expression and its named arguments.
func (p ListToolCallsParams) whereClause() (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	if p.ToolName != nil {
		conditions = append(conditions, "tool_name = @tool_name")
		args = append(args, clickhouse.Named("tool_name", *p.ToolName))
	}
	if p.Outcome != nil {
		conditions = append(conditions, "outcome = @outcome")
		args = append(args, clickhouse.Named("outcome", *p.Outcome))
	}
	if p.Source != nil {
		conditions = append(conditions, "source = @source")
		args = append(args, clickhouse.Named("source", *p.Source))
	}
	if p.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *p.StartTime))
	}
	if p.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *p.EndTime))
	}

	return strings.Join(conditions, " AND "), args
}

// ListToolCalls returns paginated, filtered tool calls and the total count.
func (r *Reader) ListToolCalls(ctx context.Context, params ListToolCallsParams) ([]ToolCallRow, int, error) {
	where, args := params.whereClause()
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM tool_call_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListToolCalls count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM tool_call_events WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		selectColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListToolCalls query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	calls := []ToolCallRow{}
	for rows.Next() {
		var c ToolCallRow
		if err := rows.Scan(
			&c.RequestID, &c.Timestamp, &c.ToolName, &c.Source, &c.Arguments,
			&c.Outcome, &c.ErrorKind, &c.ErrorMessage, &c.LatencyMs,
		); err != nil {
			return nil, 0, fmt.Errorf("ListToolCalls scan: %w", err)
		}
		calls = append(calls, c)
	}

	return calls, int(total), rows.Err()
}

// GetToolCall returns a single call by request ID, or nil if not found.
func (r *Reader) GetToolCall(ctx context.Context, requestID string) (*ToolCallRow, error) {
	row := r.conn.QueryRow(ctx,
		"SELECT "+selectColumns+" FROM tool_call_events WHERE request_id = @request_id LIMIT 1",
		clickhouse.Named("request_id", requestID),
	)

	var c ToolCallRow
	if err := row.Scan(
		&c.RequestID, &c.Timestamp, &c.ToolName, &c.Source, &c.Arguments,
		&c.Outcome, &c.ErrorKind, &c.ErrorMessage, &c.LatencyMs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetToolCall: %w", err)
	}
	if c.RequestID == "" {
		return nil, nil
	}
	return &c, nil
}

// ToolStats aggregates calls for one tool.
type ToolStats struct {
	ToolName       string  `json:"tool_name"`
	Calls          int     `json:"calls"`
	OK             int     `json:"ok"`
	ErrorEnvelopes int     `json:"error_envelopes"`
	Failed         int     `json:"failed"`
	P50LatencyMs   float64 `json:"p50_latency_ms"`
	P95LatencyMs   float64 `json:"p95_latency_ms"`
	P99LatencyMs   float64 `json:"p99_latency_ms"`
}

// GetToolStats returns per-tool outcome counts and latency percentiles over
// the last days.
func (r *Reader) GetToolStats(ctx context.Context, days int) ([]ToolStats, error) {
	rangeStart := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	rows, err := r.conn.Query(ctx,
		"SELECT tool_name, count() AS calls, "+
			"countIf(outcome = 'ok') AS ok, "+
			"countIf(outcome = 'error_envelope') AS error_envelopes, "+
			"countIf(outcome = 'failed') AS failed, "+
			"quantile(0.5)(latency_ms) AS p50, "+
			"quantile(0.95)(latency_ms) AS p95, "+
			"quantile(0.99)(latency_ms) AS p99 "+
			"FROM tool_call_events "+
			"WHERE timestamp >= @range_start "+
			"GROUP BY tool_name ORDER BY calls DESC",
		clickhouse.Named("range_start", rangeStart),
	)
	if err != nil {
		return nil, fmt.Errorf("GetToolStats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := []ToolStats{}
	for rows.Next() {
		var (
			name                         string
			calls, ok, envelopes, failed uint64
			p50, p95, p99                float64
		)
		if err := rows.Scan(&name, &calls, &ok, &envelopes, &failed, &p50, &p95, &p99); err != nil {
			return nil, fmt.Errorf("GetToolStats scan: %w", err)
		}
		stats = append(stats, ToolStats{
			ToolName:       name,
			Calls:          int(calls),
			OK:             int(ok),
			ErrorEnvelopes: int(envelopes),
			Failed:         int(failed),
			P50LatencyMs:   safeFloat(p50),
			P95LatencyMs:   safeFloat(p95),
			P99LatencyMs:   safeFloat(p99),
		})
	}
	return stats, rows.Err()
}

// safeFloat maps NaN and Inf (quantiles over empty sets) to 0.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
