package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "honeybeepf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ProtocolGRPC, cfg.Exporter.Protocol)
	require.Equal(t, 10_000, cfg.Exporter.FlushIntervalMs)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 1<<20, cfg.RingSizeBytes)
	require.Equal(t, 10_000, cfg.CardinalityCap)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
exporter:
  endpoint: "collector:4317"
  protocol: http
  flush_interval_ms: 5000
log_level: debug
probes:
  block_io:
    enabled: true
    min_bytes: 4096
  llm:
    enabled: true
    providers:
      - name: openai
        hosts: ["api.openai.com"]
        paths: ["/v1/*"]
        response:
          usage_path: "body.usage"
          prompt_tokens_field: "prompt_tokens"
          completion_tokens_field: "completion_tokens"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "collector:4317", cfg.Exporter.Endpoint)
	require.Equal(t, ProtocolHTTP, cfg.Exporter.Protocol)
	require.Equal(t, "debug", cfg.LogLevel)
	require.True(t, cfg.Probes["block_io"].Enabled)
	require.EqualValues(t, 4096, cfg.Probes["block_io"].MinBytes)
	require.Len(t, cfg.Probes["llm"].Providers, 1)
	require.Equal(t, "openai", cfg.Probes["llm"].Providers[0].Name)
}

func TestLoad_RejectsBadProtocol(t *testing.T) {
	path := writeConfigFile(t, "exporter:\n  protocol: carrier-pigeon\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsNonPowerOfTwoRingSize(t *testing.T) {
	path := writeConfigFile(t, "ring_size_bytes: 100\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestConfig_EnabledProbes(t *testing.T) {
	cfg := &Config{Probes: map[string]ProbeConfig{
		"block_io": {Enabled: true},
		"gpu_open": {Enabled: false},
	}}
	enabled := cfg.EnabledProbes()
	require.True(t, enabled["block_io"])
	require.False(t, enabled["gpu_open"])
}

func TestParseOTELEnv_MetricsEndpointWins(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "general:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "metrics:4317")
	cfg, err := ParseOTELEnv()
	require.NoError(t, err)
	require.Equal(t, "metrics:4317", cfg.Endpoint("fallback:4317"))
}

func TestOTELEnv_ResourceAttributeKVs(t *testing.T) {
	cfg := &OTELEnv{ResourceAttributes: "env=prod, region=us-east-1"}
	kvs := cfg.ResourceAttributeKVs()
	require.Len(t, kvs, 2)
}
