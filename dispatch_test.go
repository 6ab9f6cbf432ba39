package framesock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	id  ConnID
	msg Message
}

// recordingSender collects every message queued through it.
type recordingSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (s *recordingSender) Send(id ConnID, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sent{id: id, msg: msg})
	return nil
}

func (s *recordingSender) all() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sent...)
}

func TestMux_RoutesByKind(t *testing.T) {
	mux := NewMux(discardLogger())

	var heartbeats, business []Message
	mux.Handle(KindHeartbeat, func(_ *Context, m Message) { heartbeats = append(heartbeats, m) })
	mux.Handle(KindBusiness, func(_ *Context, m Message) { business = append(business, m) })

	mux.OnMessage(1, Message{ID: 1, Kind: KindHeartbeat})
	mux.OnMessage(1, Message{ID: 2, Kind: KindBusiness})
	mux.OnMessage(2, Message{ID: 3, Kind: KindBusiness})

	assert.Len(t, heartbeats, 1)
	assert.Len(t, business, 2)
}

func TestMux_UnknownKindDropped(t *testing.T) {
	logger := &mockLogger{}
	mux := NewMux(logger)
	mux.Handle(KindHeartbeat, func(*Context, Message) { t.Error("wrong handler") })

	mux.OnMessage(1, Message{ID: 9, Kind: Kind(77)})

	assert.True(t, logger.warnCalled)
	assert.Equal(t, "unknown message kind", logger.lastMsg)
}

func TestMux_HandleReplaces(t *testing.T) {
	mux := NewMux(discardLogger())
	calls := 0
	mux.Handle(KindBusiness, func(*Context, Message) { t.Error("replaced handler called") })
	mux.Handle(KindBusiness, func(*Context, Message) { calls++ })

	mux.OnMessage(1, Message{Kind: KindBusiness})
	assert.Equal(t, 1, calls)
}

func TestMux_ContextCarriesConnection(t *testing.T) {
	mux := NewMux(discardLogger())
	sender := &recordingSender{}
	mux.Bind(sender)

	mux.Handle(KindBusiness, func(ctx *Context, m Message) {
		assert.Equal(t, ConnID(42), ctx.ID)
		require.NoError(t, ctx.Reply(m))
	})
	mux.OnMessage(42, Message{ID: 5, Kind: KindBusiness, Payload: []byte("echo")})

	got := sender.all()
	require.Len(t, got, 1)
	assert.Equal(t, ConnID(42), got[0].id)
	assert.Equal(t, []byte("echo"), got[0].msg.Payload)
}

func TestContext_ReplyWithoutSender(t *testing.T) {
	ctx := &Context{ID: 1}
	assert.ErrorIs(t, ctx.Reply(Message{}), ErrReactorStopped)
}

func TestHeartbeatHandler_Reply(t *testing.T) {
	fixed := time.Unix(1_700_000_000, 0)
	sender := &recordingSender{}

	mux := NewMux(discardLogger())
	mux.Bind(sender)
	mux.Handle(KindHeartbeat, HeartbeatHandler(discardLogger(), func() time.Time { return fixed }))

	mux.OnMessage(3, Message{ID: 1, Kind: KindHeartbeat, Payload: []byte("ping")})

	got := sender.all()
	require.Len(t, got, 1)
	assert.Equal(t, ConnID(3), got[0].id)
	assert.Equal(t, Message{
		ID:      2,
		Kind:    KindHeartbeat,
		Payload: []byte("pong"),
		SentAt:  fixed,
	}, got[0].msg)
}

func TestHeartbeatHandler_SendFailureLogged(t *testing.T) {
	logger := &mockLogger{}
	sender := &recordingSender{err: ErrUnknownConnection}

	mux := NewMux(discardLogger())
	mux.Bind(sender)
	mux.Handle(KindHeartbeat, HeartbeatHandler(logger, nil))

	mux.OnMessage(3, Message{ID: 1, Kind: KindHeartbeat})

	assert.True(t, logger.warnCalled)
	assert.Equal(t, "heartbeat reply failed", logger.lastMsg)
}

func TestLogHandler(t *testing.T) {
	logger := &mockLogger{}
	LogHandler(logger)(&Context{ID: 1}, Message{ID: 1, Kind: KindBusiness, Payload: []byte("hi")})

	assert.True(t, logger.infoCalled)
	assert.Equal(t, "message received", logger.lastMsg)
}
