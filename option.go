package framesock

import (
	"time"
)

// Default configuration values.
const (
	// DefaultIdleTimeout is how long a connection may stay silent before eviction.
	DefaultIdleTimeout = 5 * time.Minute
	// DefaultPollTimeout bounds one blocking poll so idle sweeps still run.
	DefaultPollTimeout = time.Second
	// DefaultReadChunk is the number of bytes read per readable event.
	DefaultReadChunk = 1024
	// defaultMaxEvents is the number of readiness events fetched per poll.
	defaultMaxEvents = 128
)

// options holds the configuration for a reactor.
type options struct {
	serializer Serializer
	dispatcher Dispatcher
	logger     Logger
	poller     Poller
	now        func() time.Time

	onConnect func(id ConnID, addr string)
	// onClose receives the reason the connection was torn down.
	onClose func(id ConnID, reason error)

	idleTimeout time.Duration // eviction threshold
	pollTimeout time.Duration // upper bound of one poll
	readChunk   int           // bytes read per readable event
	maxFrame    int           // largest accepted frame, header included
	maxEvents   int
}

// Option is a function that configures reactor options.
type Option func(*options)

// SerializerOption returns an Option that sets the payload serializer.
// The serializer is required.
func SerializerOption(s Serializer) Option {
	return func(o *options) {
		o.serializer = s
	}
}

// DispatcherOption returns an Option that sets the consumer of decoded messages.
// The dispatcher is required.
func DispatcherOption(d Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// IdleTimeoutOption returns an Option that sets the idle eviction threshold.
func IdleTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// PollTimeoutOption returns an Option that sets the upper bound of one poll.
// It also bounds the delay of idle sweeps.
func PollTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.pollTimeout = d
	}
}

// ReadChunkOption returns an Option that sets how many bytes are read per
// readable event. Smaller chunks bound per-iteration latency.
func ReadChunkOption(size int) Option {
	return func(o *options) {
		o.readChunk = size
	}
}

// MaxFrameOption returns an Option that sets the largest frame accepted or
// produced, header included. Values above MaxFrameSize are clamped.
func MaxFrameOption(size int) Option {
	return func(o *options) {
		o.maxFrame = size
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// PollerOption returns an Option that replaces the platform multiplexer.
func PollerOption(p Poller) Option {
	return func(o *options) {
		o.poller = p
	}
}

// ClockOption returns an Option that sets the time source used for
// activity timestamps and sweeps.
func ClockOption(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// OnConnectOption returns an Option that sets a callback invoked when a
// connection is registered: on the reactor goroutine for accepted
// connections, on the caller of Reactor.Attach otherwise.
func OnConnectOption(cb func(id ConnID, addr string)) Option {
	return func(o *options) {
		o.onConnect = cb
	}
}

// OnCloseOption returns an Option that sets a callback invoked on the
// reactor goroutine after a connection has been torn down.
func OnCloseOption(cb func(id ConnID, reason error)) Option {
	return func(o *options) {
		o.onClose = cb
	}
}

// checkOptions validates and sets default values for reactor options.
func checkOptions(opts *options) error {
	if opts.serializer == nil {
		return ErrInvalidSerializer
	}

	if opts.dispatcher == nil {
		return ErrInvalidDispatcher
	}

	if opts.idleTimeout <= 0 {
		opts.idleTimeout = DefaultIdleTimeout
	}

	if opts.pollTimeout <= 0 {
		opts.pollTimeout = DefaultPollTimeout
	}

	if opts.readChunk <= 0 {
		opts.readChunk = DefaultReadChunk
	}

	if opts.maxFrame < HeaderSize || opts.maxFrame > MaxFrameSize {
		opts.maxFrame = MaxFrameSize
	}

	if opts.maxEvents <= 0 {
		opts.maxEvents = defaultMaxEvents
	}

	if opts.now == nil {
		opts.now = time.Now
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}
