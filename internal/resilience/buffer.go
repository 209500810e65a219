package resilience

import (
	"sync"

	"github.com/sorenkai/telewire/internal/domain"
)

// BufferedPacket is one undelivered packet held for retry, with the number of
// delivery attempts already spent on it.
type BufferedPacket struct {
	Packet   *domain.TelemetryPacket
	Attempts int
}

// OfflineBuffer is a bounded FIFO of packets that could not be delivered.
// Push on a full buffer fails with ErrBufferFull so the caller can count the
// loss; nothing is dropped silently. Mutated only by the pipeline driver,
// inspected concurrently via Len.
type OfflineBuffer struct {
	mu      sync.Mutex
	entries []BufferedPacket
	maxSize int
}

// NewOfflineBuffer returns an empty buffer with the given capacity.
func NewOfflineBuffer(maxSize int) *OfflineBuffer {
	return &OfflineBuffer{
		entries: make([]BufferedPacket, 0, maxSize),
		maxSize: maxSize,
	}
}

// Push appends a packet with a zero attempt count.
func (b *OfflineBuffer) Push(p *domain.TelemetryPacket) error {
	return b.Requeue(BufferedPacket{Packet: p})
}

// Requeue appends an entry preserving its attempt count, failing with
// ErrBufferFull on a full buffer without modifying the contents.
func (b *OfflineBuffer) Requeue(entry BufferedPacket) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= b.maxSize {
		return ErrBufferFull
	}
	b.entries = append(b.entries, entry)
	return nil
}

// Pop removes and returns the oldest packet, nil when empty.
func (b *OfflineBuffer) Pop() *domain.TelemetryPacket {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil
	}
	entry := b.entries[0]
	b.entries = append(b.entries[:0], b.entries[1:]...)
	return entry.Packet
}

// Drain empties the buffer and returns all entries in push order.
func (b *OfflineBuffer) Drain() []BufferedPacket {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil
	}
	out := make([]BufferedPacket, len(b.entries))
	copy(out, b.entries)
	b.entries = b.entries[:0]
	return out
}

// Len returns the number of buffered packets.
func (b *OfflineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
