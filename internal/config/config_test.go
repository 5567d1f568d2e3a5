package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_RepositoryConfig(t *testing.T) {
	t.Setenv(ToolPathEnv, "")

	cfg, err := LoadConfig("../../configs/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "tshark", cfg.Capture.ToolPath)
	assert.Equal(t, 200*time.Millisecond, MustDuration(cfg.Tracker.PollInterval))
	assert.Len(t, cfg.Benchmarks, 2)
	assert.Equal(t, "range", cfg.Benchmarks[0].Strategy)
	assert.Equal(t, "65536", cfg.Benchmarks[0].Params[0]["block_size"])
}

func TestLoadConfig_DefaultsFillMissingSections(t *testing.T) {
	t.Setenv(ToolPathEnv, "")
	path := writeConfig(t, "capture:\n  interface: eth0\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "eth0", cfg.Capture.Interface)
	assert.Equal(t, "tshark", cfg.Capture.ToolPath)
	assert.Equal(t, "2s", cfg.Capture.TerminateTimeout)
	assert.True(t, cfg.Tracker.Enabled)
}

func TestLoadConfig_ToolPathFromEnv(t *testing.T) {
	t.Setenv(ToolPathEnv, "/opt/wireshark/bin/tshark")
	path := writeConfig(t, "capture:\n  tool_path: /usr/bin/tshark\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/wireshark/bin/tshark", cfg.Capture.ToolPath)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "tracker:\n  poll_interval: often\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracker.poll_interval")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = ParseDuration("-1s")
	assert.Error(t, err)
}
