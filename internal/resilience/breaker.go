package resilience

import (
	"sync"
	"sync/atomic"
	"time"
)

// CircuitState is the circuit breaker state.
type CircuitState int

const (
	// StateClosed lets dispatch attempts through.
	StateClosed CircuitState = iota
	// StateOpen diverts dispatch straight to the offline buffer.
	StateOpen
	// StateHalfOpen is the probation window that allows trial sends.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "half-open"
	}
}

// Successes required in half-open state before the circuit closes again.
const halfOpenSuccessTarget = 3

// CircuitBreaker tracks consecutive sink failures and gates whether dispatch
// is attempted at all. The pipeline driver is the only writer; State may be
// read concurrently from status queries, hence the RWMutex around state and
// atomics for the hot-path counters.
type CircuitBreaker struct {
	mu         sync.RWMutex
	state      CircuitState
	lastOpened time.Time

	failureCount atomic.Uint32
	successCount atomic.Uint32

	failureThreshold uint32
	halfOpenTimeout  time.Duration

	now func() time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(failureThreshold uint32, halfOpenTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		halfOpenTimeout:  halfOpenTimeout,
		now:              time.Now,
	}
}

// State returns the current circuit state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Counts returns the current failure and success streaks.
func (b *CircuitBreaker) Counts() (failures, successes uint32) {
	return b.failureCount.Load(), b.successCount.Load()
}

// RecordSuccess feeds one successful sink send into the breaker. In closed
// state it clears the failure streak so isolated incidents do not accumulate;
// in half-open state the third consecutive success closes the circuit.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount.Store(0)
	case StateHalfOpen:
		if b.successCount.Add(1) >= halfOpenSuccessTarget {
			b.state = StateClosed
			b.failureCount.Store(0)
			b.successCount.Store(0)
		}
	}
}

// RecordFailure feeds one failed sink send into the breaker. Failures only
// accumulate while closed; any half-open failure reopens the circuit.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if b.failureCount.Add(1) >= b.failureThreshold {
			b.state = StateOpen
			b.lastOpened = b.now()
			b.failureCount.Store(0)
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.lastOpened = b.now()
		b.successCount.Store(0)
	}
}

// TryHalfOpen moves an open circuit to half-open once the timeout has elapsed
// since it opened. Checked lazily by the driver before each dispatch; there is
// no background timer.
func (b *CircuitBreaker) TryHalfOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return
	}
	if b.now().Sub(b.lastOpened) >= b.halfOpenTimeout {
		b.state = StateHalfOpen
		b.failureCount.Store(0)
		b.successCount.Store(0)
	}
}
