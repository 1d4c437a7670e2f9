package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
symbols: [SPY, QQQ]
providers:
  metrics:
    base_url: https://metrics.example.com
stream:
  url: wss://stream.example.com/ws
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"SPY", "QQQ"}, c.Symbols)
	assert.Equal(t, 16, c.Orchestrator.Concurrency)
	assert.Equal(t, 0.2, c.Orchestrator.FailFastRatio)
	assert.Equal(t, "bolt", c.Cache.Backend)
	assert.Equal(t, "09:30", c.Cache.Session.Open)
	assert.Equal(t, 50, c.Stream.MinSamples)
	assert.Equal(t, 30*time.Second, c.Stream.Timeout)
	assert.Equal(t, "none", c.Export.Backend)
	assert.Equal(t, "v1", c.MetricSetVersion)
}

func TestLoadRejectsEmptySymbols(t *testing.T) {
	_, err := Load(writeConfig(t, `
providers:
  metrics:
    base_url: https://metrics.example.com
stream:
  url: wss://stream.example.com/ws
`))
	require.Error(t, err)
}

func TestLoadRejectsBadCacheBackend(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
cache:
  backend: cassandra
`))
	require.Error(t, err)
}

func TestLoadRejectsMinSamplesAboveWindow(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
stream:
  url: wss://stream.example.com/ws
  window_days: 30
  min_samples: 60
`))
	require.Error(t, err)
}

func TestKafkaBackendRequiresBrokers(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
export:
  backend: kafka
`))
	require.Error(t, err)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("VOLSCREEN_METRICS_API_KEY", "sekrit")
	t.Setenv("VOLSCREEN_SYMBOLS", "IWM,TLT")
	t.Setenv("VOLSCREEN_CONCURRENCY", "4")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "sekrit", c.Providers.Metrics.APIKey)
	assert.Equal(t, []string{"IWM", "TLT"}, c.Symbols)
	assert.Equal(t, 4, c.Orchestrator.Concurrency)
}
