// Package config resolves the daemon's inbound configuration surface
// (spec.md §6): a file, layered with environment overrides, into a
// validated Config record. Grounded on the teacher's env-var-only
// internal/config package, generalized to viper's file+env layering —
// the pattern yairfalse-tapio's CLI suite uses for its own multi-source
// config — since a long-running daemon needs more than the teacher's
// wrapper-script CLI ever did.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/honeybeepf/honeybeepf/internal/apperror"
	"github.com/honeybeepf/honeybeepf/internal/providers"
)

// ExporterProtocol selects the OTLP wire protocol.
type ExporterProtocol string

const (
	ProtocolGRPC ExporterProtocol = "grpc"
	ProtocolHTTP ExporterProtocol = "http"
)

// ExporterConfig is the exporter.* configuration group.
type ExporterConfig struct {
	Endpoint        string           `mapstructure:"endpoint"`
	Protocol        ExporterProtocol `mapstructure:"protocol"`
	FlushIntervalMs int              `mapstructure:"flush_interval_ms"`
}

// FlushInterval returns FlushIntervalMs as a time.Duration.
func (e ExporterConfig) FlushInterval() time.Duration {
	return time.Duration(e.FlushIntervalMs) * time.Millisecond
}

// ProbeConfig is one probes.<name> configuration group. Not every
// field applies to every probe: MinBytes is block_io-only,
// LibraryPath is nccl-only, Providers is llm-only.
type ProbeConfig struct {
	Enabled     bool             `mapstructure:"enabled"`
	MinBytes    uint64           `mapstructure:"min_bytes"`
	LibraryPath string           `mapstructure:"library_path"`
	Providers   []providers.Rule `mapstructure:"providers"`
}

// Config is the fully-resolved configuration record the supervisor
// hands to the rest of the process at startup (spec.md §6).
type Config struct {
	Exporter           ExporterConfig         `mapstructure:"exporter"`
	LogLevel           string                 `mapstructure:"log_level"`
	Probes             map[string]ProbeConfig `mapstructure:"probes"`
	RingSizeBytes      int                    `mapstructure:"ring_size_bytes"`
	CorrelationMapSize uint32                 `mapstructure:"correlation_map_size"`
	CardinalityCap     int                    `mapstructure:"cardinality_cap"`
}

// EnvPrefix is the prefix viper.AutomaticEnv layers over file values,
// e.g. HONEYBEEPF_EXPORTER_ENDPOINT overrides exporter.endpoint.
const EnvPrefix = "HONEYBEEPF"

func setDefaults(v *viper.Viper) {
	v.SetDefault("exporter.protocol", string(ProtocolGRPC))
	v.SetDefault("exporter.flush_interval_ms", 10_000)
	v.SetDefault("log_level", "info")
	v.SetDefault("ring_size_bytes", 1<<20)
	v.SetDefault("correlation_map_size", 10_240)
	v.SetDefault("cardinality_cap", 10_000)
}

// Load resolves configuration from an optional file at path, layered
// under environment variables prefixed with EnvPrefix, and validates
// the result. path may be empty, in which case only defaults and
// environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperror.New(apperror.ClassConfig, fmt.Errorf("config: reading %s: %w", path, err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperror.New(apperror.ClassConfig, fmt.Errorf("config: decoding: %w", err))
	}

	if err := cfg.validate(); err != nil {
		return nil, apperror.New(apperror.ClassConfig, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Exporter.Protocol {
	case ProtocolGRPC, ProtocolHTTP:
	default:
		return fmt.Errorf("config: exporter.protocol must be %q or %q, got %q", ProtocolGRPC, ProtocolHTTP, c.Exporter.Protocol)
	}
	if c.Exporter.FlushIntervalMs <= 0 {
		return fmt.Errorf("config: exporter.flush_interval_ms must be positive")
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level must be one of trace/debug/info/warn/error, got %q", c.LogLevel)
	}
	if c.RingSizeBytes < 4096 || c.RingSizeBytes&(c.RingSizeBytes-1) != 0 {
		return fmt.Errorf("config: ring_size_bytes must be a power of two of at least 4096, got %d", c.RingSizeBytes)
	}
	if c.CardinalityCap <= 0 {
		return fmt.Errorf("config: cardinality_cap must be positive")
	}
	return nil
}

// EnabledProbes maps every configured probe name to its Enabled flag,
// for internal/probe.Resolve.
func (c *Config) EnabledProbes() map[string]bool {
	out := make(map[string]bool, len(c.Probes))
	for name, p := range c.Probes {
		out[name] = p.Enabled
	}
	return out
}
