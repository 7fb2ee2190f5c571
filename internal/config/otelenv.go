package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel/attribute"
)

// OTELEnv holds the subset of standard OTEL_* environment variables
// honored alongside the file/viper config (spec.md §6's endpoint
// option layers under these per the usual OTel SDK precedence).
// Kept as a pure-env struct, unchanged from the teacher's
// internal/config.OTELConfig shape, since these are SDK-standard names
// that do not belong under the HONEYBEEPF_ prefix viper owns.
type OTELEnv struct {
	ServiceName        string `env:"OTEL_SERVICE_NAME" envDefault:"honeybeepf"`
	ResourceAttributes string `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:""`
	ExporterEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	MetricsEndpoint    string `env:"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT" envDefault:""`
}

// ParseOTELEnv parses the standard OTEL_* environment variables.
func ParseOTELEnv() (*OTELEnv, error) {
	var cfg OTELEnv
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing OTEL environment: %w", err)
	}
	return &cfg, nil
}

// Endpoint resolves the effective metrics endpoint: the metrics-specific
// variable wins over the general one, same priority order as the
// teacher's GetEndpoint, generalized from traces to metrics.
func (c *OTELEnv) Endpoint(fallback string) string {
	if c.MetricsEndpoint != "" {
		return c.MetricsEndpoint
	}
	if c.ExporterEndpoint != "" {
		return c.ExporterEndpoint
	}
	return fallback
}

// ResourceAttributeKVs parses OTEL_RESOURCE_ATTRIBUTES ("key1=value1,key2=value2").
func (c *OTELEnv) ResourceAttributeKVs() []attribute.KeyValue {
	if c.ResourceAttributes == "" {
		return nil
	}
	var attrs []attribute.KeyValue
	for _, pair := range strings.Split(c.ResourceAttributes, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		if key != "" {
			attrs = append(attrs, attribute.String(key, value))
		}
	}
	return attrs
}
