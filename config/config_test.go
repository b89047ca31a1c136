package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ParsesDurationsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
kafka_brokers: "broker1:9092"
batch_size: 50
max_concurrent_rules: 5
rule_reload_interval: "30s"
batch_timeout: "2s"
mev:
  dex_routers:
    - "0xdeadbeef"
  high_gas_price_gwei: 42.5
  complex_call_data_bytes: 500
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "broker1:9092", cfg.KafkaBrokers)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxConcurrentRules)
	assert.Equal(t, 30*time.Second, cfg.RuleReloadInterval.Duration())
	assert.Equal(t, 2*time.Second, cfg.BatchTimeout.Duration())
	assert.Equal(t, []string{"0xdeadbeef"}, cfg.MEV.DEXRouters)
	assert.Equal(t, 42.5, cfg.MEV.HighGasPriceGwei)
	assert.Equal(t, 500, cfg.MEV.ComplexCallDataBytes)
}

func TestLoad_InvalidBatchSizeIsConfigError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 0\nmax_concurrent_rules: 5\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRuleTimeout(t *testing.T) {
	cfg := Default()
	cfg.RuleTimeoutMS = 250
	assert.Equal(t, 250*time.Millisecond, cfg.RuleTimeout())
}
