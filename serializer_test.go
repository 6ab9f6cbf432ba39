package framesock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerializer_RoundTrip(t *testing.T) {
	s := NewJSONSerializer(nil)
	sent := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)

	body, err := s.Marshal(Message{ID: 42, Kind: KindBusiness, Payload: []byte("hello"), SentAt: sent})
	require.NoError(t, err)

	msg, err := s.Unmarshal(KindBusiness, body)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), msg.ID)
	assert.Equal(t, KindBusiness, msg.Kind)
	assert.Equal(t, "hello", string(msg.Payload))
	assert.True(t, sent.Equal(msg.SentAt))
}

func TestJSONSerializer_ZeroSentAt(t *testing.T) {
	s := NewJSONSerializer(nil)
	body, err := s.Marshal(Message{ID: 1, Kind: KindHeartbeat})
	require.NoError(t, err)

	msg, err := s.Unmarshal(KindHeartbeat, body)
	require.NoError(t, err)
	assert.True(t, msg.SentAt.IsZero())
}

func TestJSONSerializer_SentAtRange(t *testing.T) {
	s := NewJSONSerializer(nil)

	for _, sent := range []time.Time{
		time.Unix(0, 0),
		time.Unix(0, 1),
		time.Unix(-1, 999_999_999),
		time.Date(1600, 1, 1, 0, 0, 0, 5, time.UTC),
		time.Date(3000, 12, 31, 23, 59, 59, 999_999_999, time.UTC),
	} {
		body, err := s.Marshal(Message{ID: 1, Kind: KindHeartbeat, SentAt: sent})
		require.NoError(t, err)

		msg, err := s.Unmarshal(KindHeartbeat, body)
		require.NoError(t, err)
		assert.False(t, msg.SentAt.IsZero(), "%v decoded as absent", sent)
		assert.True(t, sent.Equal(msg.SentAt), "got %v, want %v", msg.SentAt, sent)
	}
}

func TestJSONSerializer_Errors(t *testing.T) {
	s := NewJSONSerializer(nil)
	heartbeat, err := s.Marshal(Message{ID: 1, Kind: KindHeartbeat})
	require.NoError(t, err)

	tests := []struct {
		name string
		kind Kind
		body []byte
	}{
		{name: "empty", kind: KindHeartbeat, body: nil},
		{name: "truncated", kind: KindHeartbeat, body: heartbeat[:len(heartbeat)/2]},
		{name: "not json", kind: KindHeartbeat, body: []byte("ping")},
		{name: "kind mismatch", kind: KindBusiness, body: heartbeat},
		{name: "unregistered", kind: Kind(100), body: heartbeat},
		{name: "bad nanoseconds", kind: KindHeartbeat, body: []byte(`{"id":1,"kind":1,"sent_at":{"sec":0,"nsec":1000000000}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Unmarshal(tt.kind, tt.body)
			assert.ErrorIs(t, err, ErrDeserialization)
		})
	}

	_, err = s.Marshal(Message{Kind: Kind(100)})
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestKindTable(t *testing.T) {
	shapes := map[Kind]string{7: "order"}
	table := NewKindTable(shapes)
	shapes[8] = "mutated"

	name, ok := table.Shape(7)
	assert.True(t, ok)
	assert.Equal(t, "order", name)

	_, ok = table.Shape(8)
	assert.False(t, ok, "table must not alias the input map")

	_, ok = DefaultKinds().Shape(KindHeartbeat)
	assert.True(t, ok)
	_, ok = DefaultKinds().Shape(KindBusiness)
	assert.True(t, ok)
}

func TestJSONSerializer_CustomTable(t *testing.T) {
	s := NewJSONSerializer(NewKindTable(map[Kind]string{7: "order"}))

	body, err := s.Marshal(Message{ID: 3, Kind: 7, Payload: []byte("x")})
	require.NoError(t, err)
	_, err = s.Unmarshal(7, body)
	assert.NoError(t, err)

	_, err = s.Marshal(Message{ID: 3, Kind: KindHeartbeat})
	assert.ErrorIs(t, err, ErrSerialization)
}
