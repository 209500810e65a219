package observability

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sorenkai/telewire/internal/domain"
	"github.com/sorenkai/telewire/internal/ports"
)

// PromObs backs the Observability port with Prometheus collectors. Metric
// names are fixed; unknown names are ignored rather than registered lazily.
type PromObs struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the pipeline metrics on the default registry.
func NewPromObs() *PromObs {
	return NewPromObsWith(prometheus.DefaultRegisterer)
}

// NewPromObsWith registers on a caller-provided registry; tests use this to
// avoid duplicate-registration panics.
func NewPromObsWith(reg prometheus.Registerer) *PromObs {
	batches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telewire_batches_sent_total",
		Help: "Batches delivered to every configured sink.",
	})
	packetsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telewire_packets_sent_total",
		Help: "Packets delivered as part of a fully successful batch.",
	})
	buffered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telewire_packets_buffered_total",
		Help: "Packets diverted to the offline buffer.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telewire_packets_dropped_total",
		Help: "Packets lost to a full offline buffer or exhausted replays.",
	})
	replayed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telewire_packets_replayed_total",
		Help: "Previously buffered packets delivered on a later cycle.",
	})
	sinkErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telewire_sink_errors_total",
		Help: "Individual sink send failures.",
	})
	compressionFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telewire_compression_failures_total",
		Help: "Batches whose compression stage failed.",
	})
	bufferLen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telewire_buffer_length",
		Help: "Current number of packets in the offline buffer.",
	})
	breakerState := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telewire_breaker_state",
		Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
	})
	compressionRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telewire_compression_ratio",
		Help: "Compressed over uncompressed size of the last batch.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telewire_dispatch_latency_seconds",
		Help:    "Batch dispatch latency across all sinks.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	reg.MustRegister(batches, packetsSent, buffered, dropped, replayed,
		sinkErrors, compressionFailures, bufferLen, breakerState, compressionRatio, latency)

	return &PromObs{
		counters: map[string]prometheus.Counter{
			"telewire_batches_sent_total":         batches,
			"telewire_packets_sent_total":         packetsSent,
			"telewire_packets_buffered_total":     buffered,
			"telewire_packets_dropped_total":      dropped,
			"telewire_packets_replayed_total":     replayed,
			"telewire_sink_errors_total":          sinkErrors,
			"telewire_compression_failures_total": compressionFailures,
		},
		gauges: map[string]prometheus.Gauge{
			"telewire_buffer_length":     bufferLen,
			"telewire_breaker_state":     breakerState,
			"telewire_compression_ratio": compressionRatio,
		},
		histos: map[string]prometheus.Observer{
			"telewire_dispatch_latency_seconds": latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("ERROR: %s: %v", msg, err)
	}
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("CRITICAL: %s: %v", msg, err)
	}
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDrop(packet *domain.TelemetryPacket, err error) {
	if packet != nil {
		log.Printf("DROP packet seq=%d err=%v", packet.Sequence, err)
	}
}

var _ ports.Observability = (*PromObs)(nil)
