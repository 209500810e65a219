package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/sorenkai/telewire/internal/domain"
)

// Sink delivers one packet to a downstream system. Implementations must be
// safe for concurrent Send calls and must apply their own per-call timeout;
// the pipeline does not impose one centrally.
type Sink interface {
	Send(ctx context.Context, packet *domain.TelemetryPacket) error
	Name() string
}

// TransportKind classifies sink delivery failures.
type TransportKind int

const (
	// TransportIo covers network and device I/O failures.
	TransportIo TransportKind = iota
	// TransportSerialization covers payload encoding failures.
	TransportSerialization
	// TransportClosed means the sink is permanently unavailable.
	TransportClosed
	// TransportOther covers everything else.
	TransportOther
)

func (k TransportKind) String() string {
	switch k {
	case TransportIo:
		return "io"
	case TransportSerialization:
		return "serialization"
	case TransportClosed:
		return "closed"
	default:
		return "other"
	}
}

// TransportError is the error surfaced from one sink send attempt. It is
// never fatal to the pipeline; the driver converts it into circuit-breaker
// and offline-buffer bookkeeping.
type TransportError struct {
	Kind TransportKind
	Sink string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sink %s: %s", e.Sink, e.Kind)
	}
	return fmt.Sprintf("sink %s: %s: %v", e.Sink, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps a cause with a kind and the originating sink name.
func NewTransportError(kind TransportKind, sink string, err error) *TransportError {
	return &TransportError{Kind: kind, Sink: sink, Err: err}
}

// TransportKindOf reports the kind of a sink error, TransportOther when the
// error does not carry one.
func TransportKindOf(err error) TransportKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return TransportOther
}
