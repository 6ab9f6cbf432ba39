package framesock

import (
	"time"
)

// Kind identifies the type of a message. It travels in the frame header.
type Kind uint32

// Message kinds understood by the default serializer table.
const (
	KindHeartbeat Kind = 1
	KindBusiness  Kind = 2
)

// Message is the application-level unit carried by one frame.
// A Message is treated as immutable once constructed.
type Message struct {
	ID      uint64
	Kind    Kind
	Payload []byte
	SentAt  time.Time
}

// Serializer turns messages into frame bodies and back.
// Implementations must be safe for concurrent use.
type Serializer interface {
	// Marshal encodes the message body. It fails with ErrSerialization.
	Marshal(Message) ([]byte, error)
	// Unmarshal decodes a frame body announced with the given kind.
	// It fails with ErrDeserialization on malformed, truncated or
	// mismatched input.
	Unmarshal(kind Kind, body []byte) (Message, error)
}

// Dispatcher consumes decoded messages.
//
// OnMessage is invoked on the reactor goroutine, once per decoded message and
// in arrival order for a given connection. It may call Reactor.Send.
type Dispatcher interface {
	OnMessage(id ConnID, msg Message)
}

// DispatcherFunc adapts an ordinary function to the Dispatcher interface.
type DispatcherFunc func(id ConnID, msg Message)

// OnMessage calls f(id, msg).
func (f DispatcherFunc) OnMessage(id ConnID, msg Message) {
	f(id, msg)
}
