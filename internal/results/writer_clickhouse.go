package results

import (
	"NWBBenchmarks/internal/config"
	"NWBBenchmarks/internal/core/model"
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS benchmark_measurements (
    StartedAt                 DateTime64(3),
    ID                        String,
    Benchmark                 String,
    Strategy                  String,
    Params                    Map(String, String),
    Repeat                    UInt32,
    Hostname                  String,
    Platform                  String,
    KernelVersion             String,
    Arch                      String,
    CPUs                      UInt32,
    MemoryBytes               UInt64,
    ElapsedSeconds            Float64,
    BytesDownloaded           Int64,
    BytesUploaded             Int64,
    BytesTotal                Int64,
    NumberOfPackets           Int64,
    NumberOfPacketsDownloaded Int64,
    NumberOfPacketsUploaded   Int64,
    NetworkTotalTimeSeconds   Float64,
    Error                     String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(StartedAt)
ORDER BY (Benchmark, Strategy, StartedAt);
`

// ClickHouseWriter inserts measurements into the benchmark_measurements table.
type ClickHouseWriter struct {
	conn driver.Conn
}

// NewClickHouseWriter connects to ClickHouse and ensures the table exists.
func NewClickHouseWriter(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(ctx, createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Info("Successfully connected to ClickHouse and ensured table exists.")

	return &ClickHouseWriter{conn: conn}, nil
}

func connect(ctx context.Context, cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

func (w *ClickHouseWriter) Name() string { return "clickhouse" }

func (w *ClickHouseWriter) Close() error { return w.conn.Close() }

// Write inserts the measurements as one batch.
func (w *ClickHouseWriter) Write(ctx context.Context, measurements []*model.Measurement) error {
	if len(measurements) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO benchmark_measurements")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, m := range measurements {
		if err := batch.Append(measurementRow(m)...); err != nil {
			return fmt.Errorf("failed to append measurement to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Debugf("Wrote %d measurements to ClickHouse", len(measurements))
	return nil
}

// measurementRow orders the fields like the table columns.
func measurementRow(m *model.Measurement) []interface{} {
	params := m.Params
	if params == nil {
		params = map[string]string{}
	}
	return []interface{}{
		m.StartedAt,
		m.ID,
		m.Benchmark,
		m.Strategy,
		params,
		uint32(m.Repeat),
		m.Machine.Hostname,
		m.Machine.Platform,
		m.Machine.KernelVersion,
		m.Machine.Arch,
		uint32(m.Machine.CPUs),
		m.Machine.MemoryBytes,
		m.ElapsedSeconds,
		m.Network.BytesDownloaded,
		m.Network.BytesUploaded,
		m.Network.BytesTotal,
		m.Network.NumberOfPackets,
		m.Network.NumberOfPacketsDownloaded,
		m.Network.NumberOfPacketsUploaded,
		m.Network.TotalTimeSeconds,
		m.Error,
	}
}
