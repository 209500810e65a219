// Package pipeline implements the resilient streaming pipeline: a bounded
// ingestion channel feeding a single driver goroutine that batches packets,
// gates dispatch through a circuit breaker, fans a batch out to every
// configured sink, and buffers undelivered packets for later replay.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sorenkai/telewire/internal/domain"
	"github.com/sorenkai/telewire/internal/ports"
	"github.com/sorenkai/telewire/internal/resilience"
)

// ErrPipelineClosed is returned when a packet is submitted after shutdown.
var ErrPipelineClosed = errors.New("telewire: pipeline closed")

// Config controls batching and the ingestion channel.
type Config struct {
	BatchSize         int           `yaml:"batch_size"`
	BatchTimeout      time.Duration `yaml:"batch_timeout"`
	EnableCompression bool          `yaml:"enable_compression"`
	ChannelCapacity   int           `yaml:"channel_capacity"`
	EnableResilience  bool          `yaml:"enable_resilience"`

	// BufferOnCompressionFailure routes a batch to the offline buffer when
	// its compression fails instead of dropping it. Off by default to match
	// the historical behavior of downstream consumers.
	BufferOnCompressionFailure bool `yaml:"buffer_on_compression_failure"`
}

// DefaultConfig returns the standard pipeline settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:         10,
		BatchTimeout:      5 * time.Second,
		EnableCompression: true,
		ChannelCapacity:   256,
		EnableResilience:  true,
	}
}

func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return errors.New("batch_size must be > 0")
	}
	if c.BatchTimeout <= 0 {
		return errors.New("batch_timeout must be > 0")
	}
	if c.ChannelCapacity <= 0 {
		return errors.New("channel_capacity must be > 0")
	}
	return nil
}

// Health is the externally queryable pipeline state, so operators can detect
// sustained sink failure without reading logs.
type Health struct {
	BreakerState   resilience.CircuitState
	BufferedCount  int
	DroppedPackets uint64
}

// StreamingPipeline owns the consumer end of the ingestion channel and runs
// the accumulate, breaker-check, dispatch, buffer-on-failure cycle in one
// background goroutine for its whole lifetime. Shutdown is implicit: closing
// the last Sender closes the channel and the driver flushes and exits.
type StreamingPipeline struct {
	cfg   Config
	in    chan *domain.TelemetryPacket
	sinks []ports.Sink
	obs   ports.Observability

	breaker   *resilience.CircuitBreaker
	buffer    *resilience.OfflineBuffer
	replayCap int
	dropped   atomic.Uint64
	done      chan struct{}

	// mu makes handle creation atomic with the last handle's close, so a
	// handle issued concurrently with shutdown is born closed rather than
	// left holding a closed channel.
	mu      sync.Mutex
	senders int
	closed  bool
}

// New validates the configuration, builds the resilience layer when enabled,
// and starts the driver goroutine.
func New(cfg Config, rcfg resilience.Config, sinks []ports.Sink, obs ports.Observability) (*StreamingPipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(sinks) == 0 {
		return nil, errors.New("telewire: at least one sink is required")
	}
	if obs == nil {
		return nil, errors.New("telewire: observability is required")
	}

	p := &StreamingPipeline{
		cfg:   cfg,
		in:    make(chan *domain.TelemetryPacket, cfg.ChannelCapacity),
		sinks: sinks,
		obs:   obs,
		done:  make(chan struct{}),
	}

	if cfg.EnableResilience {
		rcfg.ApplyDefaults()
		if err := rcfg.Validate(); err != nil {
			return nil, err
		}
		p.breaker = resilience.NewCircuitBreaker(rcfg.FailureThreshold, rcfg.HalfOpenTimeout)
		p.buffer = resilience.NewOfflineBuffer(rcfg.BufferSize)
		p.replayCap = rcfg.MaxRetries
	}

	go p.run()
	return p, nil
}

// Sender hands out a producer handle. Handles can be cloned freely; the
// ingestion channel closes when the last open handle is closed.
func (p *StreamingPipeline) Sender() *Sender {
	s := &Sender{p: p}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		s.closed.Store(true)
		return s
	}
	p.senders++
	return s
}

// Done is closed once the driver has flushed its final batch and exited.
func (p *StreamingPipeline) Done() <-chan struct{} { return p.done }

// Health reports breaker state, buffer occupancy, and packets lost to a full
// buffer. Safe to call concurrently with the driver.
func (p *StreamingPipeline) Health() Health {
	h := Health{
		BreakerState:   resilience.StateClosed,
		DroppedPackets: p.dropped.Load(),
	}
	if p.breaker != nil {
		h.BreakerState = p.breaker.State()
	}
	if p.buffer != nil {
		h.BufferedCount = p.buffer.Len()
	}
	return h
}

// Breaker exposes the circuit breaker for status queries, nil when resilience
// is disabled.
func (p *StreamingPipeline) Breaker() *resilience.CircuitBreaker { return p.breaker }

// Sender is one producer's handle on the pipeline. Not safe for concurrent
// use by multiple goroutines; clone one handle per producer instead.
type Sender struct {
	p      *StreamingPipeline
	closed atomic.Bool
}

// Submit pushes a packet into the ingestion channel, blocking when the
// channel is full (backpressure, not data loss) until space frees or ctx is
// done. Returns ErrPipelineClosed after the handle is closed.
func (s *Sender) Submit(ctx context.Context, packet *domain.TelemetryPacket) error {
	if s.closed.Load() {
		return ErrPipelineClosed
	}
	select {
	case s.p.in <- packet:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clone returns a new open handle backed by the same pipeline.
func (s *Sender) Clone() *Sender {
	return s.p.Sender()
}

// Close releases the handle. Closing the last open handle closes the
// ingestion channel, which triggers the driver's final flush and exit.
func (s *Sender) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.senders--
	if p.senders == 0 {
		p.closed = true
		close(p.in)
	}
}

func (p *StreamingPipeline) run() {
	defer close(p.done)

	batch := make([]*domain.TelemetryPacket, 0, p.cfg.BatchSize)
	timer := time.NewTimer(p.cfg.BatchTimeout)
	defer timer.Stop()

	for {
		// Bias toward already-arrived data so batches stay fresh.
		select {
		case packet, ok := <-p.in:
			if !ok {
				p.finalFlush(batch)
				return
			}
			batch = p.accept(batch, packet, timer)
			continue
		default:
		}

		select {
		case packet, ok := <-p.in:
			if !ok {
				p.finalFlush(batch)
				return
			}
			batch = p.accept(batch, packet, timer)
		case <-timer.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}
			timer.Reset(p.cfg.BatchTimeout)
		}
	}
}

func (p *StreamingPipeline) accept(batch []*domain.TelemetryPacket, packet *domain.TelemetryPacket, timer *time.Timer) []*domain.TelemetryPacket {
	batch = append(batch, packet)
	if len(batch) < p.cfg.BatchSize {
		return batch
	}
	p.flush(batch)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(p.cfg.BatchTimeout)
	return batch[:0]
}

func (p *StreamingPipeline) finalFlush(batch []*domain.TelemetryPacket) {
	if len(batch) > 0 {
		p.flush(batch)
	}
	p.obs.LogInfo("pipeline_stopped")
}

// flush runs one full dispatch cycle for the accumulated batch.
func (p *StreamingPipeline) flush(batch []*domain.TelemetryPacket) {
	start := time.Now()

	stats, err := EncodeBatch(batch, p.cfg.EnableCompression)
	if err != nil {
		p.obs.LogError("batch_encode_failed", err)
		p.obs.IncCounter("telewire_compression_failures_total", 1)
		if p.cfg.BufferOnCompressionFailure && p.buffer != nil {
			p.bufferBatch(batch)
		}
		return
	}
	if p.cfg.EnableCompression {
		p.obs.SetGauge("telewire_compression_ratio", float64(stats.CompressionRatio()))
	}

	if p.breaker != nil {
		p.breaker.TryHalfOpen()
		if p.breaker.State() == resilience.StateOpen {
			p.obs.LogInfo("dispatch skipped", ports.Field{Key: "reason", Value: resilience.ErrCircuitOpen})
			p.bufferBatch(batch)
			return
		}
	}

	aggregate := domain.AggregatePacket(batch)
	failed := p.dispatch(aggregate)
	p.obs.ObserveLatency("telewire_dispatch_latency_seconds", time.Since(start).Seconds())

	if failed > 0 {
		if p.buffer != nil {
			p.bufferBatch(batch)
		}
		return
	}

	p.obs.IncCounter("telewire_batches_sent_total", 1)
	p.obs.IncCounter("telewire_packets_sent_total", float64(len(batch)))

	if p.buffer != nil && p.buffer.Len() > 0 {
		p.replayBuffered()
	}
}

// dispatch sends one packet to every sink concurrently and feeds each
// per-sink outcome into the breaker. Returns the number of failed sinks.
func (p *StreamingPipeline) dispatch(packet *domain.TelemetryPacket) int {
	results := make([]error, len(p.sinks))
	var wg sync.WaitGroup
	for i, sink := range p.sinks {
		wg.Add(1)
		go func(i int, sink ports.Sink) {
			defer wg.Done()
			results[i] = sink.Send(context.Background(), packet.Clone())
		}(i, sink)
	}
	wg.Wait()

	failed := 0
	for i, err := range results {
		if err != nil {
			failed++
			p.obs.IncCounter("telewire_sink_errors_total", 1)
			p.obs.LogError("sink_send_failed", err, ports.Field{Key: "sink", Value: p.sinks[i].Name()})
			if p.breaker != nil {
				p.breaker.RecordFailure()
			}
			continue
		}
		if p.breaker != nil {
			p.breaker.RecordSuccess()
		}
	}
	return failed
}

// bufferBatch pushes a whole batch into the offline buffer. A full buffer is
// a counted, logged loss, never a silent one.
func (p *StreamingPipeline) bufferBatch(batch []*domain.TelemetryPacket) {
	for _, packet := range batch {
		if err := p.buffer.Push(packet.Clone()); err != nil {
			p.dropped.Add(1)
			p.obs.IncCounter("telewire_packets_dropped_total", 1)
			p.obs.RecordDrop(packet, err)
			continue
		}
		p.obs.IncCounter("telewire_packets_buffered_total", 1)
	}
	p.obs.SetGauge("telewire_buffer_length", float64(p.buffer.Len()))
}

// replayBuffered re-attempts delivery of everything previously buffered.
// Packets that fail again are re-queued with their attempt count bumped; once
// the count reaches the replay cap they are dropped and counted. Replay
// failures feed the breaker like any dispatch, so the drain stops as soon as
// the circuit reopens and the remainder stays buffered untouched.
func (p *StreamingPipeline) replayBuffered() {
	entries := p.buffer.Drain()
	for i, entry := range entries {
		if p.breaker != nil && p.breaker.State() == resilience.StateOpen {
			for _, rest := range entries[i:] {
				if err := p.buffer.Requeue(rest); err != nil {
					p.dropped.Add(1)
					p.obs.IncCounter("telewire_packets_dropped_total", 1)
					p.obs.RecordDrop(rest.Packet, err)
				}
			}
			break
		}
		if p.dispatch(entry.Packet) == 0 {
			p.obs.IncCounter("telewire_packets_replayed_total", 1)
			continue
		}
		entry.Attempts++
		if entry.Attempts >= p.replayCap {
			p.dropped.Add(1)
			p.obs.IncCounter("telewire_packets_dropped_total", 1)
			p.obs.RecordDrop(entry.Packet, resilience.ErrRetryExhausted)
			continue
		}
		if err := p.buffer.Requeue(entry); err != nil {
			p.dropped.Add(1)
			p.obs.IncCounter("telewire_packets_dropped_total", 1)
			p.obs.RecordDrop(entry.Packet, err)
		}
	}
	p.obs.SetGauge("telewire_buffer_length", float64(p.buffer.Len()))
}
