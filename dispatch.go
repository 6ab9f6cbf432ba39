package framesock

import (
	"sync"
	"time"
)

// Context is passed to a HandlerFunc for one decoded message.
type Context struct {
	// ID is the connection the message arrived on.
	ID     ConnID
	sender Sender
}

// Reply queues msg on the connection the request arrived on.
func (c *Context) Reply(msg Message) error {
	if c.sender == nil {
		return ErrReactorStopped
	}
	return c.sender.Send(c.ID, msg)
}

// HandlerFunc handles one message of a registered kind.
type HandlerFunc func(ctx *Context, msg Message)

// Mux dispatches messages to handlers by kind. Messages of kinds without a
// handler are logged and dropped.
type Mux struct {
	mu       sync.RWMutex
	handlers map[Kind]HandlerFunc
	sender   Sender
	logger   Logger
}

// NewMux returns an empty Mux. A nil logger selects the default slog logger.
func NewMux(logger Logger) *Mux {
	if logger == nil {
		logger = defaultLogger()
	}
	return &Mux{handlers: make(map[Kind]HandlerFunc), logger: logger}
}

// Handle registers h for kind, replacing any previous handler.
func (m *Mux) Handle(kind Kind, h HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = h
}

// Bind implements Binder.
func (m *Mux) Bind(s Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sender = s
}

// OnMessage implements Dispatcher.
func (m *Mux) OnMessage(id ConnID, msg Message) {
	m.mu.RLock()
	h, ok := m.handlers[msg.Kind]
	sender := m.sender
	m.mu.RUnlock()

	if !ok {
		m.logger.Warn("unknown message kind", "conn", id, "kind", msg.Kind, "id", msg.ID)
		return
	}
	h(&Context{ID: id, sender: sender}, msg)
}

// HeartbeatHandler answers each heartbeat with a heartbeat carrying the next
// id, payload "pong" and the current time from now.
func HeartbeatHandler(logger Logger, now func() time.Time) HandlerFunc {
	if logger == nil {
		logger = defaultLogger()
	}
	if now == nil {
		now = time.Now
	}
	return func(ctx *Context, msg Message) {
		logger.Debug("heartbeat", "conn", ctx.ID, "id", msg.ID)

		reply := Message{
			ID:      msg.ID + 1,
			Kind:    KindHeartbeat,
			Payload: []byte("pong"),
			SentAt:  now(),
		}
		if err := ctx.Reply(reply); err != nil {
			logger.Warn("heartbeat reply failed", "conn", ctx.ID, "id", msg.ID, "error", err)
		}
	}
}

// LogHandler logs each message at info level.
func LogHandler(logger Logger) HandlerFunc {
	if logger == nil {
		logger = defaultLogger()
	}
	return func(ctx *Context, msg Message) {
		logger.Info("message received", "conn", ctx.ID, "id", msg.ID, "kind", msg.Kind,
			"payload", string(msg.Payload))
	}
}
