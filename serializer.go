package framesock

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sugawarayuuta/sonnet"
)

// KindTable registers the message kinds a serializer accepts, each with the
// name of its payload shape. Kinds that are not registered are rejected in
// both directions. A KindTable is read-only after construction.
type KindTable struct {
	shapes map[Kind]string
}

// NewKindTable returns a table holding a copy of shapes.
func NewKindTable(shapes map[Kind]string) *KindTable {
	t := &KindTable{shapes: make(map[Kind]string, len(shapes))}
	for k, v := range shapes {
		t.shapes[k] = v
	}
	return t
}

// DefaultKinds returns the table with the heartbeat and business kinds.
func DefaultKinds() *KindTable {
	return NewKindTable(map[Kind]string{
		KindHeartbeat: "heartbeat",
		KindBusiness:  "business",
	})
}

// Shape returns the shape name registered for k.
func (t *KindTable) Shape(k Kind) (string, bool) {
	s, ok := t.shapes[k]
	return s, ok
}

// envelope is the JSON body of a frame.
type envelope struct {
	ID      uint64 `json:"id"`
	Kind    uint32 `json:"kind"`
	Payload []byte `json:"payload,omitempty"`
	SentAt  *stamp `json:"sent_at,omitempty"`
}

// stamp is a send time in Unix seconds and nanoseconds. The epoch itself is
// a present value; only the zero time.Time is omitted.
type stamp struct {
	Sec  int64 `json:"sec"`
	Nsec int64 `json:"nsec,omitempty"`
}

// JSONSerializer encodes message bodies as JSON. It is stateless and safe
// for concurrent use.
type JSONSerializer struct {
	kinds *KindTable
}

// NewJSONSerializer returns a serializer accepting the kinds in table.
// A nil table selects DefaultKinds.
func NewJSONSerializer(table *KindTable) *JSONSerializer {
	if table == nil {
		table = DefaultKinds()
	}
	return &JSONSerializer{kinds: table}
}

// Marshal implements Serializer.
func (s *JSONSerializer) Marshal(msg Message) ([]byte, error) {
	if _, ok := s.kinds.Shape(msg.Kind); !ok {
		return nil, errors.Wrapf(ErrSerialization, "unregistered kind %d", msg.Kind)
	}

	env := envelope{ID: msg.ID, Kind: uint32(msg.Kind), Payload: msg.Payload}
	if !msg.SentAt.IsZero() {
		env.SentAt = &stamp{Sec: msg.SentAt.Unix(), Nsec: int64(msg.SentAt.Nanosecond())}
	}

	body, err := sonnet.Marshal(&env)
	if err != nil {
		return nil, errors.Wrapf(ErrSerialization, "kind %d: %v", msg.Kind, err)
	}
	return body, nil
}

// Unmarshal implements Serializer.
func (s *JSONSerializer) Unmarshal(kind Kind, body []byte) (Message, error) {
	if len(body) == 0 {
		return Message{}, errors.Wrap(ErrDeserialization, "empty body")
	}
	if _, ok := s.kinds.Shape(kind); !ok {
		return Message{}, errors.Wrapf(ErrDeserialization, "unregistered kind %d", kind)
	}

	var env envelope
	if err := sonnet.Unmarshal(body, &env); err != nil {
		return Message{}, errors.Wrapf(ErrDeserialization, "kind %d: %v", kind, err)
	}
	if Kind(env.Kind) != kind {
		return Message{}, errors.Wrapf(ErrDeserialization, "body kind %d does not match header kind %d", env.Kind, kind)
	}

	msg := Message{ID: env.ID, Kind: kind, Payload: env.Payload}
	if env.SentAt != nil {
		if env.SentAt.Nsec < 0 || env.SentAt.Nsec >= int64(time.Second) {
			return Message{}, errors.Wrapf(ErrDeserialization, "sent_at nanoseconds %d out of range", env.SentAt.Nsec)
		}
		msg.SentAt = time.Unix(env.SentAt.Sec, env.SentAt.Nsec)
	}
	return msg, nil
}
