package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/sorenkai/telewire/internal/domain"
)

// ErrCompression marks a failure in the compression stage. It is distinct
// from transport failures: the batch's send is aborted, never partially sent.
var ErrCompression = errors.New("telewire: compression failed")

// CompressedBatch describes one encoded batch.
type CompressedBatch struct {
	PacketCount      int
	CompressedSize   int
	UncompressedSize int
	CreatedAt        time.Time
}

// CompressionRatio is compressed over uncompressed size, 1.0 for an empty
// input so callers never divide by zero.
func (b CompressedBatch) CompressionRatio() float32 {
	if b.UncompressedSize == 0 {
		return 1.0
	}
	return float32(b.CompressedSize) / float32(b.UncompressedSize)
}

// EncodeBatch serializes the batch to its canonical JSON encoding and, when
// enabled, gzips it. Sinks transmit the aggregate packet themselves; the
// encoded payload backs the compression statistics reported per batch.
func EncodeBatch(batch []*domain.TelemetryPacket, compress bool) (CompressedBatch, error) {
	stats := CompressedBatch{PacketCount: len(batch), CreatedAt: time.Now().UTC()}

	raw, err := json.Marshal(batch)
	if err != nil {
		return stats, fmt.Errorf("encode batch: %w", err)
	}
	stats.UncompressedSize = len(raw)

	if !compress {
		stats.CompressedSize = len(raw)
		return stats, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return stats, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	stats.CompressedSize = buf.Len()
	return stats, nil
}
