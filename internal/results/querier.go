package results

import (
	"NWBBenchmarks/internal/config"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// SummaryRequest filters the measurements that are aggregated.
type SummaryRequest struct {
	Benchmark string
	Strategy  string
	Hostname  string
	Since     time.Time
	Until     time.Time
}

// Summary aggregates the successful runs of one benchmark and strategy.
type Summary struct {
	Benchmark          string  `json:"benchmark"`
	Strategy           string  `json:"strategy"`
	Runs               uint64  `json:"runs"`
	Failed             uint64  `json:"failed"`
	MeanElapsedSeconds float64 `json:"mean_elapsed_seconds"`
	MeanBytesTotal     float64 `json:"mean_bytes_total"`
	MeanBytesDownload  float64 `json:"mean_bytes_downloaded"`
	MeanPackets        float64 `json:"mean_number_of_packets"`
}

// Querier reads aggregated measurements.
type Querier interface {
	Summaries(ctx context.Context, req SummaryRequest) ([]Summary, error)
	Close() error
}

type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a querier for ClickHouse.
func NewClickHouseQuerier(ctx context.Context, cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func (q *clickhouseQuerier) Close() error { return q.conn.Close() }

// buildSummaryQuery returns the aggregation statement and its arguments.
func buildSummaryQuery(req SummaryRequest) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(`
		SELECT
			Benchmark,
			Strategy,
			countIf(Error = '') AS Runs,
			countIf(Error != '') AS Failed,
			avgIf(ElapsedSeconds, Error = '') AS MeanElapsed,
			avgIf(BytesTotal, Error = '') AS MeanBytes,
			avgIf(BytesDownloaded, Error = '') AS MeanDownloaded,
			avgIf(NumberOfPackets, Error = '') AS MeanPackets
		FROM benchmark_measurements
	`)

	var where []string
	var args []interface{}
	if req.Benchmark != "" {
		where = append(where, "Benchmark = ?")
		args = append(args, req.Benchmark)
	}
	if req.Strategy != "" {
		where = append(where, "Strategy = ?")
		args = append(args, req.Strategy)
	}
	if req.Hostname != "" {
		where = append(where, "Hostname = ?")
		args = append(args, req.Hostname)
	}
	if !req.Since.IsZero() {
		where = append(where, "StartedAt >= ?")
		args = append(args, req.Since)
	}
	if !req.Until.IsZero() {
		where = append(where, "StartedAt <= ?")
		args = append(args, req.Until)
	}
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(`
		GROUP BY Benchmark, Strategy
		ORDER BY Benchmark, Strategy
	`)
	return b.String(), args
}

func (q *clickhouseQuerier) Summaries(ctx context.Context, req SummaryRequest) ([]Summary, error) {
	query, args := buildSummaryQuery(req)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Benchmark, &s.Strategy, &s.Runs, &s.Failed,
			&s.MeanElapsedSeconds, &s.MeanBytesTotal, &s.MeanBytesDownload, &s.MeanPackets); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
