package results

import (
	"NWBBenchmarks/internal/core/model"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// TimestampLayout names the per-run result directories.
const TimestampLayout = "2006-01-02_15-04-05"

// SummaryData is written next to the measurements of a run.
type SummaryData struct {
	Measurements int            `json:"measurements"`
	Failed       int            `json:"failed"`
	Benchmarks   map[string]int `json:"benchmarks"`
	Timestamp    string         `json:"timestamp"`
}

// JSONWriter writes every batch into a timestamped directory below RootPath.
type JSONWriter struct {
	rootPath string
	now      func() time.Time
}

// NewJSONWriter creates a JSON file writer.
func NewJSONWriter(rootPath string) *JSONWriter {
	return &JSONWriter{rootPath: rootPath, now: time.Now}
}

func (w *JSONWriter) Name() string { return "json" }

func (w *JSONWriter) Close() error { return nil }

// Write creates <root>/<timestamp>/measurements.json and summary.json.
func (w *JSONWriter) Write(ctx context.Context, measurements []*model.Measurement) error {
	if len(measurements) == 0 {
		return nil
	}

	ts := w.now().UTC()
	dir := filepath.Join(w.rootPath, ts.Format(TimestampLayout))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, "measurements.json"), measurements); err != nil {
		return err
	}

	summary := SummaryData{
		Measurements: len(measurements),
		Benchmarks:   make(map[string]int),
		Timestamp:    ts.Format(time.RFC3339),
	}
	for _, m := range measurements {
		summary.Benchmarks[m.Benchmark]++
		if m.Error != "" {
			summary.Failed++
		}
	}
	return writeJSON(filepath.Join(dir, "summary.json"), summary)
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode '%s': %w", path, err)
	}
	return f.Close()
}

// ReadRuns loads every measurements.json below rootPath, oldest run first.
func ReadRuns(rootPath string) ([]*model.Measurement, error) {
	matches, err := filepath.Glob(filepath.Join(rootPath, "*", "measurements.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var all []*model.Measurement
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var batch []*model.Measurement
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode '%s': %w", path, err)
		}
		all = append(all, batch...)
	}
	return all, nil
}
