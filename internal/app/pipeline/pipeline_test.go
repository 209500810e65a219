package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sorenkai/telewire/internal/domain"
	"github.com/sorenkai/telewire/internal/ports"
	"github.com/sorenkai/telewire/internal/resilience"
)

func testConfig(batchSize int) Config {
	return Config{
		BatchSize:        batchSize,
		BatchTimeout:     50 * time.Millisecond,
		ChannelCapacity:  16,
		EnableResilience: true,
	}
}

func testResilience() resilience.Config {
	return resilience.Config{
		MaxRetries:       3,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       time.Millisecond,
		FailureThreshold: 1,
		HalfOpenTimeout:  time.Hour,
		BufferSize:       8,
	}
}

func packetWithReading(seq uint64, componentID string) *domain.TelemetryPacket {
	p := domain.NewTelemetryPacket(seq)
	p.SensorReadings = []domain.SensorReading{
		domain.NewSensorReading(componentID, componentID, domain.Analog(1.0, "v"), seq),
	}
	return p
}

func TestFlushAtBatchSize(t *testing.T) {
	sink := newStubSink("stub")
	p, err := New(testConfig(2), testResilience(), []ports.Sink{sink}, &stubObs{})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	sender := p.Sender()
	defer func() {
		sender.Close()
		<-p.Done()
	}()

	ctx := context.Background()
	if err := sender.Submit(ctx, packetWithReading(10, "a")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := sender.Submit(ctx, packetWithReading(11, "b")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got := sink.waitForPacket(t, time.Second)
	if got.Sequence != 10 {
		t.Fatalf("expected aggregate to carry the first sequence, got %d", got.Sequence)
	}
	if len(got.SensorReadings) != 2 {
		t.Fatalf("expected concatenated readings, got %d", len(got.SensorReadings))
	}
	if got.SensorReadings[1].ComponentID != "b" {
		t.Fatalf("expected batch order preserved, got %s", got.SensorReadings[1].ComponentID)
	}
}

func TestFlushOnTimeout(t *testing.T) {
	sink := newStubSink("stub")
	p, err := New(testConfig(10), testResilience(), []ports.Sink{sink}, &stubObs{})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	sender := p.Sender()
	defer func() {
		sender.Close()
		<-p.Done()
	}()

	if err := sender.Submit(context.Background(), packetWithReading(1, "a")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got := sink.waitForPacket(t, time.Second)
	if got.Sequence != 1 {
		t.Fatalf("expected partial batch flushed on timeout, got seq %d", got.Sequence)
	}
}

func TestFinalFlushOnClose(t *testing.T) {
	sink := newStubSink("stub")
	cfg := testConfig(10)
	cfg.BatchTimeout = time.Hour
	p, err := New(cfg, testResilience(), []ports.Sink{sink}, &stubObs{})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	sender := p.Sender()
	if err := sender.Submit(context.Background(), packetWithReading(5, "a")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sender.Close()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected driver to exit after last sender closed")
	}

	got := sink.waitForPacket(t, time.Second)
	if got.Sequence != 5 {
		t.Fatalf("expected pending batch flushed on close, got seq %d", got.Sequence)
	}
}

func TestSubmitAfterCloseFails(t *testing.T) {
	sink := newStubSink("stub")
	p, err := New(testConfig(2), testResilience(), []ports.Sink{sink}, &stubObs{})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	sender := p.Sender()
	sender.Close()
	<-p.Done()

	err = sender.Submit(context.Background(), packetWithReading(1, "a"))
	if !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}

	// Handles created after shutdown start closed.
	late := p.Sender()
	if err := late.Submit(context.Background(), packetWithReading(2, "a")); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected late handle to reject submits, got %v", err)
	}
}

func TestConcurrentSenderCreateWithFinalClose(t *testing.T) {
	for round := 0; round < 200; round++ {
		sink := newStubSink("stub")
		p, err := New(testConfig(2), testResilience(), []ports.Sink{sink}, &stubObs{})
		if err != nil {
			t.Fatalf("new pipeline: %v", err)
		}

		first := p.Sender()
		handles := make([]*Sender, 8)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := range handles {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				handles[i] = p.Sender()
			}(i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			first.Close()
		}()
		close(start)
		wg.Wait()

		// A handle created during the final close either races ahead of it
		// (and keeps the channel open until it closes) or is born closed; it
		// must never panic or submit into a closed channel.
		for _, h := range handles {
			err := h.Submit(context.Background(), packetWithReading(1, "a"))
			if err != nil && !errors.Is(err, ErrPipelineClosed) {
				t.Fatalf("expected nil or ErrPipelineClosed, got %v", err)
			}
			h.Close()
		}

		select {
		case <-p.Done():
		case <-time.After(time.Second):
			t.Fatalf("expected driver to exit once every handle closed")
		}
	}
}

func TestFailedBatchIsBuffered(t *testing.T) {
	sink := newStubSink("stub")
	sink.failNext(100)
	obs := &stubObs{}
	p, err := New(testConfig(2), testResilience(), []ports.Sink{sink}, obs)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	sender := p.Sender()
	defer func() {
		sender.Close()
		<-p.Done()
	}()

	ctx := context.Background()
	_ = sender.Submit(ctx, packetWithReading(1, "a"))
	_ = sender.Submit(ctx, packetWithReading(2, "b"))

	waitFor(t, time.Second, func() bool {
		h := p.Health()
		return h.BufferedCount == 2 && h.BreakerState == resilience.StateOpen
	}, "expected both packets buffered and breaker open")
}

func TestOpenBreakerSkipsDispatch(t *testing.T) {
	sink := newStubSink("stub")
	sink.failNext(100)
	p, err := New(testConfig(2), testResilience(), []ports.Sink{sink}, &stubObs{})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	sender := p.Sender()
	defer func() {
		sender.Close()
		<-p.Done()
	}()

	ctx := context.Background()
	_ = sender.Submit(ctx, packetWithReading(1, "a"))
	_ = sender.Submit(ctx, packetWithReading(2, "b"))

	waitFor(t, time.Second, func() bool {
		return p.Health().BreakerState == resilience.StateOpen
	}, "expected breaker to open")
	before := sink.sendAttempts()

	_ = sender.Submit(ctx, packetWithReading(3, "c"))
	_ = sender.Submit(ctx, packetWithReading(4, "d"))

	waitFor(t, time.Second, func() bool {
		return p.Health().BufferedCount == 4
	}, "expected second batch buffered without dispatch")
	if got := sink.sendAttempts(); got != before {
		t.Fatalf("expected no sink attempts while open, got %d extra", got-before)
	}
}

func TestBufferedPacketsReplayAfterRecovery(t *testing.T) {
	sink := newStubSink("stub")
	sink.failNext(1)
	rcfg := testResilience()
	rcfg.FailureThreshold = 100 // keep the breaker closed so replay happens immediately
	p, err := New(testConfig(1), rcfg, []ports.Sink{sink}, &stubObs{})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	sender := p.Sender()
	defer func() {
		sender.Close()
		<-p.Done()
	}()

	ctx := context.Background()
	_ = sender.Submit(ctx, packetWithReading(1, "a"))

	waitFor(t, time.Second, func() bool {
		return p.Health().BufferedCount == 1
	}, "expected failed packet buffered")

	_ = sender.Submit(ctx, packetWithReading(2, "b"))

	waitFor(t, time.Second, func() bool {
		return p.Health().BufferedCount == 0
	}, "expected buffer drained after recovery")

	seqs := sink.sequences()
	if len(seqs) < 2 {
		t.Fatalf("expected trigger batch and replayed packet, got %v", seqs)
	}
	found := false
	for _, s := range seqs {
		if s == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected buffered seq 1 to be replayed, got %v", seqs)
	}
}

func TestReplayStopsWhenBreakerReopens(t *testing.T) {
	sink := newStubSink("stub")
	sink.failNext(1000)
	p := &StreamingPipeline{
		cfg:       testConfig(1),
		sinks:     []ports.Sink{sink},
		obs:       &stubObs{},
		breaker:   resilience.NewCircuitBreaker(2, time.Hour),
		buffer:    resilience.NewOfflineBuffer(8),
		replayCap: 3,
	}
	for seq := uint64(1); seq <= 3; seq++ {
		if err := p.buffer.Push(packetWithReading(seq, "a")); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	p.replayBuffered()

	// Entries 1 and 2 fail and reopen the circuit; entry 3 must not be
	// dispatched and the whole set stays buffered.
	if got := sink.sendAttempts(); got != 2 {
		t.Fatalf("expected replay to stop at the reopened circuit, got %d attempts", got)
	}
	if p.breaker.State() != resilience.StateOpen {
		t.Fatalf("expected breaker open after replay failures, got %s", p.breaker.State())
	}
	if got := p.buffer.Len(); got != 3 {
		t.Fatalf("expected all entries back in the buffer, got %d", got)
	}
}

func TestBufferFullCountsDrops(t *testing.T) {
	sink := newStubSink("stub")
	sink.failNext(1000)
	rcfg := testResilience()
	rcfg.BufferSize = 2
	obs := &stubObs{}
	p, err := New(testConfig(1), rcfg, []ports.Sink{sink}, obs)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	sender := p.Sender()
	defer func() {
		sender.Close()
		<-p.Done()
	}()

	ctx := context.Background()
	for seq := uint64(1); seq <= 4; seq++ {
		_ = sender.Submit(ctx, packetWithReading(seq, "a"))
	}

	waitFor(t, time.Second, func() bool {
		return p.Health().DroppedPackets == 2
	}, "expected overflow packets counted as dropped")
	if got := p.Health().BufferedCount; got != 2 {
		t.Fatalf("expected buffer to stay at capacity, got %d", got)
	}
	if obs.drops() != 2 {
		t.Fatalf("expected RecordDrop per lost packet, got %d", obs.drops())
	}
}

func TestResilienceDisabled(t *testing.T) {
	sink := newStubSink("stub")
	sink.failNext(10)
	cfg := testConfig(1)
	cfg.EnableResilience = false
	p, err := New(cfg, resilience.Config{}, []ports.Sink{sink}, &stubObs{})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	sender := p.Sender()
	defer func() {
		sender.Close()
		<-p.Done()
	}()

	_ = sender.Submit(context.Background(), packetWithReading(1, "a"))

	waitFor(t, time.Second, func() bool {
		return sink.sendAttempts() >= 1
	}, "expected dispatch despite failure")
	h := p.Health()
	if h.BreakerState != resilience.StateClosed || h.BufferedCount != 0 {
		t.Fatalf("expected no resilience state, got %+v", h)
	}
}

func TestDispatchFansOutToAllSinks(t *testing.T) {
	a := newStubSink("a")
	b := newStubSink("b")
	p, err := New(testConfig(1), testResilience(), []ports.Sink{a, b}, &stubObs{})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	sender := p.Sender()
	defer func() {
		sender.Close()
		<-p.Done()
	}()

	_ = sender.Submit(context.Background(), packetWithReading(9, "x"))

	pa := a.waitForPacket(t, time.Second)
	pb := b.waitForPacket(t, time.Second)
	if pa.Sequence != 9 || pb.Sequence != 9 {
		t.Fatalf("expected both sinks to receive the aggregate, got %d and %d", pa.Sequence, pb.Sequence)
	}
	// Each sink receives its own clone.
	pa.SensorReadings[0].ComponentID = "mutated"
	if pb.SensorReadings[0].ComponentID != "x" {
		t.Fatalf("expected per-sink clones, mutation leaked across sinks")
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s", msg)
}

type stubSink struct {
	name string

	mu       sync.Mutex
	packets  []*domain.TelemetryPacket
	attempts int
	failures int
	arrived  chan struct{}
}

func newStubSink(name string) *stubSink {
	return &stubSink{name: name, arrived: make(chan struct{}, 64)}
}

func (s *stubSink) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *stubSink) Send(_ context.Context, packet *domain.TelemetryPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return ports.NewTransportError(ports.TransportIo, s.name, errors.New("injected failure"))
	}
	s.packets = append(s.packets, packet)
	select {
	case s.arrived <- struct{}{}:
	default:
	}
	return nil
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) waitForPacket(t *testing.T, timeout time.Duration) *domain.TelemetryPacket {
	t.Helper()
	select {
	case <-s.arrived:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for sink %q to receive a packet", s.name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets[len(s.packets)-1]
}

func (s *stubSink) sends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packets)
}

func (s *stubSink) sendAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *stubSink) sequences() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.packets))
	for i, p := range s.packets {
		out[i] = p.Sequence
	}
	return out
}

type stubObs struct {
	mu      sync.Mutex
	dropped int
	errors  []error
}

func (o *stubObs) LogInfo(string, ...ports.Field) {}
func (o *stubObs) LogError(_ string, err error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
}
func (o *stubObs) LogCritical(string, error, ...ports.Field) {}
func (o *stubObs) IncCounter(string, float64)                {}
func (o *stubObs) ObserveLatency(string, float64)            {}
func (o *stubObs) SetGauge(string, float64)                  {}
func (o *stubObs) RecordDrop(*domain.TelemetryPacket, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

func (o *stubObs) drops() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
