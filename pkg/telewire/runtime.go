package telewire

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sorenkai/telewire/internal/adapters/archive"
	"github.com/sorenkai/telewire/internal/adapters/mqtt"
	"github.com/sorenkai/telewire/internal/adapters/observability"
	"github.com/sorenkai/telewire/internal/adapters/opcua"
	"github.com/sorenkai/telewire/internal/adapters/serialport"
	"github.com/sorenkai/telewire/internal/app/collector"
	"github.com/sorenkai/telewire/internal/app/pipeline"
	"github.com/sorenkai/telewire/internal/ports"
	"github.com/sorenkai/telewire/internal/resilience"
)

// EdgeRuntimeOption customizes the dependencies used by EdgeRuntime.
type EdgeRuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	collector     Collector
	sinks         []Sink
	observability Observability
}

// WithCollector injects a custom collector implementation (serial, simulators, etc.).
func WithCollector(col Collector) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.collector = col
	}
}

// WithSink appends a custom sink so packets can be delivered to any system.
// Sinks added this way run alongside the ones built from configuration.
func WithSink(s Sink) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
	}
}

// WithObservability plugs in a custom observability backend (OpenTelemetry, structured logs, etc.).
func WithObservability(obs Observability) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// EdgeRuntime wires sensors → collector → pipeline → sinks and exposes simple
// lifecycle hooks for embedding the pipeline inside any Go service.
type EdgeRuntime struct {
	cfg       *Config
	obs       ports.Observability
	pipe      *pipeline.StreamingPipeline
	sender    *pipeline.Sender
	telemetry *collector.TelemetryCollector
	collector ports.Collector
	db        *sql.DB

	metricsSrv  *http.Server
	readingsCh  chan SensorReading
	gaugeStopCh chan struct{}
	pumpDoneCh  chan struct{}
	emitStopCh  chan struct{}
	emitDoneCh  chan struct{}
}

// NewEdgeRuntime bootstraps the default adapters (OPC UA collector, MQTT /
// serial / Postgres archive sinks, Prometheus observability) from the config
// sections that are present. Callers can use EdgeRuntimeOption values to
// override the collector, add sinks, or swap the telemetry backend.
func NewEdgeRuntime(cfg *Config, opts ...EdgeRuntimeOption) (*EdgeRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs()
	}

	retry := resilience.NewRetryStrategy(cfg.Resilience)

	var (
		sinks []ports.Sink
		db    *sql.DB
	)
	if cfg.MQTT != nil {
		s, err := mqtt.NewSink(*cfg.MQTT, retry)
		if err != nil {
			return nil, fmt.Errorf("mqtt sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	if cfg.Serial != nil {
		s, err := serialport.NewSink(*cfg.Serial, retry)
		if err != nil {
			return nil, fmt.Errorf("serial sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	if cfg.Archive != nil {
		var err error
		db, err = sql.Open("postgres", cfg.Archive.ConnString)
		if err != nil {
			return nil, fmt.Errorf("archive sink: %w", err)
		}
		sinks = append(sinks, archive.NewPostgresSink(db, cfg.Archive.Table, cfg.Archive.Timeout))
	}
	sinks = append(sinks, overrides.sinks...)
	if len(sinks) == 0 {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("no sinks configured")
	}

	col := overrides.collector
	if col == nil && cfg.OPCUA != nil {
		var err error
		col, err = opcua.NewCollector(*cfg.OPCUA)
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, err
		}
	}

	pipe, err := pipeline.New(cfg.Pipeline, cfg.Resilience, sinks, obs)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}

	return &EdgeRuntime{
		cfg:       cfg,
		obs:       obs,
		pipe:      pipe,
		sender:    pipe.Sender(),
		telemetry: collector.New(),
		collector: col,
		db:        db,
	}, nil
}

// Telemetry exposes the aggregation state so embedders can record diagnostics
// and health updates alongside the collector-fed readings.
func (e *EdgeRuntime) Telemetry() *collector.TelemetryCollector {
	return e.telemetry
}

// Health reports the pipeline's breaker state, buffered packet count, and drops.
func (e *EdgeRuntime) Health() pipeline.Health {
	return e.pipe.Health()
}

// Start launches the collector pump, the periodic packet emitter, and the
// metrics endpoint. It returns immediately; call Run to block on a context.
func (e *EdgeRuntime) Start() error {
	if e == nil {
		return fmt.Errorf("edge runtime is nil")
	}

	e.readingsCh = make(chan SensorReading, e.cfg.Pipeline.ChannelCapacity)
	e.pumpDoneCh = make(chan struct{})
	e.emitStopCh = make(chan struct{})
	e.emitDoneCh = make(chan struct{})

	if e.collector != nil {
		if err := e.collector.Start(e.readingsCh); err != nil {
			return err
		}
	}

	go e.pumpReadings()
	go e.emitPackets()
	e.startMetrics()
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (e *EdgeRuntime) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// Shutdown stops the collector, flushes the pipeline's final batch, and tears
// down the metrics server and DB connection.
func (e *EdgeRuntime) Shutdown(ctx context.Context) error {
	var errs []error

	if e.collector != nil {
		if err := e.collector.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	// Stop has waited out the collector goroutines, so no further sends can
	// race this close.
	if e.readingsCh != nil {
		close(e.readingsCh)
		<-e.pumpDoneCh
	}

	if e.emitStopCh != nil {
		close(e.emitStopCh)
		<-e.emitDoneCh
	}

	// Closing the last sender handle triggers the driver's final flush.
	e.sender.Close()
	select {
	case <-e.pipe.Done():
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if e.gaugeStopCh != nil {
		close(e.gaugeStopCh)
	}

	if e.metricsSrv != nil {
		if err := e.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// pumpReadings drains the collector channel into the aggregation state.
func (e *EdgeRuntime) pumpReadings() {
	defer close(e.pumpDoneCh)
	for reading := range e.readingsCh {
		e.telemetry.RecordSensorReading(reading)
	}
}

// emitPackets drains the telemetry state into a packet every emit interval
// and submits it. The drain snapshots and clears under one collector lock, so
// readings recorded while a submit is in flight stay retained for the next
// packet; a failed submit puts the drained readings back for retry.
func (e *EdgeRuntime) emitPackets() {
	defer close(e.emitDoneCh)

	ticker := time.NewTicker(e.cfg.App.EmitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.emitStopCh:
			return
		case <-ticker.C:
			packet := e.telemetry.DrainPacket()
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.App.EmitInterval)
			err := e.sender.Submit(ctx, packet)
			cancel()
			if err != nil {
				if errors.Is(err, pipeline.ErrPipelineClosed) {
					return
				}
				e.obs.LogError("packet_submit_failed", err)
				e.telemetry.RestoreReadings(packet.SensorReadings)
			}
		}
	}
}

func (e *EdgeRuntime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	e.metricsSrv = &http.Server{
		Addr:    e.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := e.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()

	e.gaugeStopCh = make(chan struct{})
	go e.recordHealthGauges(e.gaugeStopCh, time.Second)
}

func (e *EdgeRuntime) recordHealthGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h := e.pipe.Health()
			e.obs.SetGauge("telewire_buffer_length", float64(h.BufferedCount))
			e.obs.SetGauge("telewire_breaker_state", float64(h.BreakerState))
		}
	}
}
