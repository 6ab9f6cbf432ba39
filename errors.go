package framesock

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Errors returned by the codec, the reactor and the connection layer.
var (
	// ErrMalformedFrameHeader is reported when a frame header declares a length
	// outside [HeaderSize, max frame]. The decoder skips the header and continues.
	ErrMalformedFrameHeader = errors.New("malformed frame header")
	// ErrOversizedFrame is reported when a declared or encoded frame exceeds the
	// maximum frame size. On decode it is handled as a malformed header.
	ErrOversizedFrame = errors.New("frame too large")
	// ErrPayloadCodec is reported when a structurally valid frame carries an
	// undecodable body. The message is dropped.
	ErrPayloadCodec = errors.New("payload codec failure")
	// ErrSerialization is returned by a Serializer that cannot encode a message.
	ErrSerialization = errors.New("serialization error")
	// ErrDeserialization is returned by a Serializer that cannot decode a body.
	ErrDeserialization = errors.New("deserialization error")

	// ErrPeerClosed signals EOF on a connection.
	ErrPeerClosed = errors.New("peer closed")
	// ErrTransport wraps unexpected socket faults. Only the faulty connection is torn down.
	ErrTransport = errors.New("transport failure")
	// ErrMultiplexer wraps faults of the polling primitive itself. It stops the reactor.
	ErrMultiplexer = errors.New("multiplexer failure")
	// ErrIdleTimeout is the reason given for connections evicted by the idle sweep.
	ErrIdleTimeout = errors.New("idle timeout")

	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrUnknownConnection is returned when the target connection is not registered.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrReactorStopped is returned by operations on a stopped reactor.
	ErrReactorStopped = errors.New("reactor stopped")
	// ErrNotSupported is returned on platforms without a readiness multiplexer.
	ErrNotSupported = errors.New("operation not supported on this platform")

	// ErrInvalidSerializer is returned when no serializer is provided.
	ErrInvalidSerializer = errors.New("invalid serializer")
	// ErrInvalidDispatcher is returned when no dispatcher is provided.
	ErrInvalidDispatcher = errors.New("invalid dispatcher")
)

// FrameHeaderError describes a header whose length field is out of bounds.
// It matches ErrMalformedFrameHeader, and ErrOversizedFrame when the length
// exceeds the maximum.
type FrameHeaderError struct {
	Length uint32
	Max    uint32
}

func (e *FrameHeaderError) Error() string {
	return fmt.Sprintf("malformed frame header: length %d outside [%d, %d]", e.Length, HeaderSize, e.Max)
}

// Is reports whether target is one of the sentinels this error stands for.
func (e *FrameHeaderError) Is(target error) bool {
	switch target {
	case ErrMalformedFrameHeader:
		return true
	case ErrOversizedFrame:
		return e.Length > e.Max
	}
	return false
}

// DecodeError collects the per-frame failures of one decode pass.
// Messages decoded in the same pass are still valid.
type DecodeError struct {
	Errs []error
}

func (e *DecodeError) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	parts := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d frame errors: %s", len(e.Errs), strings.Join(parts, "; "))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *DecodeError) Unwrap() []error {
	return e.Errs
}

func (e *DecodeError) add(err error) {
	e.Errs = append(e.Errs, err)
}

func (e *DecodeError) orNil() error {
	if e == nil || len(e.Errs) == 0 {
		return nil
	}
	return e
}

// PayloadError reports a frame whose body the serializer rejected.
// It matches ErrPayloadCodec and unwraps to the serializer's error.
type PayloadError struct {
	Kind Kind
	Err  error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("payload codec failure: kind %d: %v", e.Kind, e.Err)
}

// Is reports whether target is ErrPayloadCodec.
func (e *PayloadError) Is(target error) bool {
	return target == ErrPayloadCodec
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}
