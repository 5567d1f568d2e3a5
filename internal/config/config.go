package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ToolPathEnv names the environment variable that overrides the capture tool path.
const ToolPathEnv = "TSHARK_PATH"

// CaptureConfig holds the settings of the external packet-capture subprocess.
type CaptureConfig struct {
	ToolPath         string `yaml:"tool_path"`
	Interface        string `yaml:"interface"`
	OutputDir        string `yaml:"output_dir"`
	StartupDelay     string `yaml:"startup_delay"`
	FlushDelay       string `yaml:"flush_delay"`
	TerminateTimeout string `yaml:"terminate_timeout"`
	KillTimeout      string `yaml:"kill_timeout"`
	MaxDuration      string `yaml:"max_duration"`
	MaxFileSizeKB    int    `yaml:"max_file_size_kb"`
}

// TrackerConfig holds the settings of the connection poller and session orchestration.
type TrackerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	PollInterval string `yaml:"poll_interval"`
	PrimeDelay   string `yaml:"prime_delay"`
}

// BenchmarkDef defines a single benchmark from the config file.
type BenchmarkDef struct {
	Name     string              `yaml:"name"`
	Strategy string              `yaml:"strategy"`
	URLs     []string            `yaml:"urls"`
	Params   []map[string]string `yaml:"params"`
	Repeats  int                 `yaml:"repeats"`
	Timeout  string              `yaml:"timeout"`
}

// ClickHouseConfig holds the connection settings for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// JSONConfig holds the settings for the JSON file writer.
type JSONConfig struct {
	RootPath string `yaml:"root_path"`
}

// NATSConfig holds the settings for the measurement transport.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// WriterDef defines one result writer.
type WriterDef struct {
	Type    string `yaml:"type"` // json, clickhouse or nats
	Enabled bool   `yaml:"enabled"`
}

// RunnerConfig holds the benchmark runner settings.
type RunnerConfig struct {
	Schedule string      `yaml:"schedule"` // cron spec, empty runs once
	Writers  []WriterDef `yaml:"writers"`
}

// APIConfig holds the query API settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// CollectorConfig holds the settings of the NATS -> ClickHouse collector.
type CollectorConfig struct {
	HealthAddr    string `yaml:"health_addr"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval string `yaml:"flush_interval"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture    CaptureConfig    `yaml:"capture"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Benchmarks []BenchmarkDef   `yaml:"benchmarks"`
	Runner     RunnerConfig     `yaml:"runner"`
	JSON       JSONConfig       `yaml:"json"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATS       NATSConfig       `yaml:"nats"`
	API        APIConfig        `yaml:"api"`
	Collector  CollectorConfig  `yaml:"collector"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			ToolPath:         "tshark",
			StartupDelay:     "200ms",
			FlushDelay:       "200ms",
			TerminateTimeout: "2s",
			KillTimeout:      "2s",
		},
		Tracker: TrackerConfig{
			Enabled:      true,
			PollInterval: "200ms",
			PrimeDelay:   "200ms",
		},
		JSON:       JSONConfig{RootPath: "results"},
		ClickHouse: ClickHouseConfig{Host: "localhost", Port: 9000, Database: "default"},
		NATS:       NATSConfig{URL: "nats://127.0.0.1:4222", Subject: "nwb.benchmarks.measurements"},
		API:        APIConfig{ListenAddr: ":8080"},
		Collector:  CollectorConfig{HealthAddr: ":50051", BatchSize: 100, FlushInterval: "5s"},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the defaults
// and applies environment overrides.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides file settings with environment variables.
func (c *Config) ApplyEnv() {
	if p := os.Getenv(ToolPathEnv); p != "" {
		c.Capture.ToolPath = p
	}
}

// Validate checks that every duration in the config parses.
func (c *Config) Validate() error {
	durations := map[string]string{
		"capture.startup_delay":     c.Capture.StartupDelay,
		"capture.flush_delay":       c.Capture.FlushDelay,
		"capture.terminate_timeout": c.Capture.TerminateTimeout,
		"capture.kill_timeout":      c.Capture.KillTimeout,
		"capture.max_duration":      c.Capture.MaxDuration,
		"tracker.poll_interval":     c.Tracker.PollInterval,
		"tracker.prime_delay":       c.Tracker.PrimeDelay,
		"collector.flush_interval":  c.Collector.FlushInterval,
	}
	for name, value := range durations {
		if _, err := ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	for _, b := range c.Benchmarks {
		if b.Name == "" {
			return fmt.Errorf("benchmark without a name")
		}
		if _, err := ParseDuration(b.Timeout); err != nil {
			return fmt.Errorf("invalid timeout for benchmark '%s': %w", b.Name, err)
		}
	}
	return nil
}

// ParseDuration parses a config duration. An empty string is zero.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// MustDuration parses a duration that Validate has already accepted.
func MustDuration(s string) time.Duration {
	d, _ := ParseDuration(s)
	return d
}
