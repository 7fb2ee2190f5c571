// Package supervisor drives process lifecycle (spec.md §2 item 9,
// §4.7): startup order, signal-triggered graceful shutdown, and
// crash-safe release of kernel-resident resources. Grounded on the
// teacher's cmd/process-tracer/main.go run() function, generalized
// from a fixed five-step setup/teardown pair wired to one hardcoded
// pipeline into a supervisor over the probe table's dynamic set of
// components.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/honeybeepf/honeybeepf/internal/apperror"
	"github.com/honeybeepf/honeybeepf/internal/config"
	"github.com/honeybeepf/honeybeepf/internal/correlation"
	"github.com/honeybeepf/honeybeepf/internal/demux"
	"github.com/honeybeepf/honeybeepf/internal/exporter"
	"github.com/honeybeepf/honeybeepf/internal/handlers"
	"github.com/honeybeepf/honeybeepf/internal/loader"
	"github.com/honeybeepf/honeybeepf/internal/metrics"
	"github.com/honeybeepf/honeybeepf/internal/peerhost"
	"github.com/honeybeepf/honeybeepf/internal/probe"
	"github.com/honeybeepf/honeybeepf/internal/providers"
)

// ShutdownFlushDeadline bounds the exporter's final flush on shutdown
// (spec.md §4.6).
const ShutdownFlushDeadline = 5 * time.Second

// Run executes the full startup sequence, blocks until a shutdown
// signal (SIGINT/SIGTERM) or ctx is cancelled, then shuts everything
// down in order, returning the first fatal error encountered (if any).
// The caller should exit with apperror's ExitCode for a returned
// *apperror.Error, or ExitUnrecoverable otherwise.
func Run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// (1) initialize aggregator
	agg := metrics.New(cfg.CardinalityCap)
	if err := metrics.RegisterGuaranteedInstruments(agg); err != nil {
		return apperror.New(apperror.ClassConfig, err)
	}

	// (2) initialize exporter. Reachability is not checked here: the
	// underlying gRPC/HTTP client connects lazily, so an unreachable
	// collector surfaces only as failed exports later. A client that
	// cannot be constructed at all leaves the process running with no
	// metric export.
	otelEnv, err := config.ParseOTELEnv()
	if err != nil {
		return apperror.New(apperror.ClassConfig, err)
	}
	res, err := buildResource(ctx, otelEnv)
	if err != nil {
		return apperror.New(apperror.ClassConfig, err)
	}
	client, err := buildExportClient(ctx, cfg, otelEnv)
	if err != nil {
		log.Printf("class=%s cause=%v (continuing without metric export)", apperror.ClassExport, err)
	}
	var exp *exporter.Exporter
	if client != nil {
		exp = exporter.New(client, agg, res, exporter.WithFlushInterval(cfg.Exporter.FlushInterval()))
	}

	// (3) load bytecode object
	eng, err := loader.Load()
	if err != nil {
		return err // already an *apperror.Error with ClassLoad
	}
	engClosed := false
	defer func() {
		if engClosed {
			return
		}
		if err := eng.Close(); err != nil {
			log.Printf("supervisor: releasing loader resources: %v", err)
		}
	}()

	// (4) attach enabled probes
	resolved, err := probe.Resolve(cfg.EnabledProbes())
	if err != nil {
		return apperror.New(apperror.ClassConfig, err)
	}
	resolved = bindHandlers(resolved, cfg, agg)
	resolved = eng.Attach(resolved)
	for _, p := range resolved {
		state := int64(0)
		if p.Enabled {
			state = 1
		}
		agg.Set(metrics.ActiveProbes, map[string]string{"probe": p.Name}, state)
	}

	// (5) start demultiplexer workers
	dm := demux.New(agg, resolved, eng.Rings)
	demuxDone := make(chan struct{})
	go func() {
		defer close(demuxDone)
		dm.Run(ctx)
	}()

	correlationDone := make(chan struct{})
	go func() {
		defer close(correlationDone)
		pollCorrelationStores(ctx, agg, eng.Stores)
	}()

	var exporterDone chan struct{}
	if exp != nil {
		exporterDone = make(chan struct{})
		go func() {
			defer close(exporterDone)
			exp.Run(ctx)
		}()
	}

	<-ctx.Done()
	log.Printf("supervisor: shutdown signal received, draining")

	// Shutdown order: (1) stop workers [ctx cancellation above already
	// signals this], (2) detach probes and release kernel maps [both in
	// eng.Close], (3) final exporter flush.
	<-demuxDone
	<-correlationDone
	engClosed = true
	if err := eng.Close(); err != nil {
		log.Printf("supervisor: releasing loader resources: %v", err)
	}
	if exp != nil {
		<-exporterDone
		flushCtx, cancel := context.WithTimeout(context.Background(), ShutdownFlushDeadline)
		defer cancel()
		if err := exp.Shutdown(flushCtx); err != nil {
			log.Printf("supervisor: exporter shutdown: %v", err)
		}
	}
	return nil
}

// bindHandlers builds and attaches each enabled probe's handler from
// its per-probe configuration.
func bindHandlers(probes []probe.Probe, cfg *config.Config, agg *metrics.Aggregator) []probe.Probe {
	h := make(map[string]probe.Handler)
	for _, p := range probes {
		if !p.Enabled {
			continue
		}
		switch p.Name {
		case probe.NameBlockIO:
			h[p.Name] = handlers.NewBlockIO(agg, cfg.Probes[p.Name].MinBytes)
		case probe.NameNetworkLatency:
			h[p.Name] = handlers.NewNetworkLatency(agg, peerhost.New())
		case probe.NameGpuOpen:
			h[p.Name] = handlers.NewGpuOpen(agg)
		case probe.NameNccl:
			h[p.Name] = handlers.NewNccl(agg)
		case probe.NameFilesystem:
			h[p.Name] = handlers.NewFilesystem(agg)
		case probe.NameLlm:
			matcher, err := providers.Compile(cfg.Probes[p.Name].Providers)
			if err != nil {
				log.Printf("class=%s cause=%v", apperror.ClassConfig, err)
				continue
			}
			h[p.Name] = handlers.NewLlm(agg, matcher)
		}
	}
	return probe.BindHandlers(probes, h)
}

// CorrelationPollInterval governs how often pending-call map depth and
// LRU eviction counters are sampled and folded into the aggregator
// (spec.md §4.3: "Eviction counts are exported").
const CorrelationPollInterval = 5 * time.Second

// pollCorrelationStores periodically samples every correlated probe's
// pending-call map, surfacing its live depth as a gauge and its
// cumulative LRU-eviction count as a monotonic counter. Evictions() is
// already cumulative, so only the per-poll delta is added.
func pollCorrelationStores(ctx context.Context, agg *metrics.Aggregator, stores map[string]*correlation.Store) {
	if len(stores) == 0 {
		return
	}
	ticker := time.NewTicker(CorrelationPollInterval)
	defer ticker.Stop()

	lastEvictions := make(map[string]uint64, len(stores))
	sample := func() {
		for name, s := range stores {
			if n, err := s.Len(); err == nil {
				agg.Set(metrics.CorrelationPending, map[string]string{"probe": name}, int64(n))
			}
			if total, err := s.Evictions(); err == nil {
				if delta := total - lastEvictions[name]; delta > 0 {
					agg.Inc(metrics.CorrelationEvictions, map[string]string{"probe": name}, delta)
				}
				lastEvictions[name] = total
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}

// buildResource constructs the OTel resource identifying this process
// to the export pipeline, honoring OTEL_SERVICE_NAME and
// OTEL_RESOURCE_ATTRIBUTES the same way the teacher's
// internal/otel.InitProvider builds its resource.Options from
// cfg.ServiceName and cfg.ParseResourceAttributes before calling
// resource.New.
func buildResource(ctx context.Context, otelEnv *config.OTELEnv) (*resource.Resource, error) {
	attrs := append([]attribute.KeyValue{semconv.ServiceName(otelEnv.ServiceName)}, otelEnv.ResourceAttributeKVs()...)
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

// buildExportClient constructs the configured OTLP metric exporter
// client. Protocol selection follows cfg.Exporter.Protocol; the
// endpoint follows spec.md §6's priority (explicit config, then
// environment, then built-in default), resolved here via config.OTELEnv.
func buildExportClient(ctx context.Context, cfg *config.Config, otelEnv *config.OTELEnv) (exporter.Client, error) {
	endpoint := cfg.Exporter.Endpoint
	if endpoint == "" {
		endpoint = otelEnv.Endpoint("localhost:4317")
	}

	switch cfg.Exporter.Protocol {
	case config.ProtocolHTTP:
		return otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	case config.ProtocolGRPC:
		return otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("supervisor: unknown exporter protocol %q", cfg.Exporter.Protocol)
	}
}
