package framesock

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var errWouldBlock = errors.New("operation would block")

// Sender queues messages for delivery on a connection.
type Sender interface {
	Send(id ConnID, msg Message) error
}

// Binder is implemented by dispatchers that reply to messages. NewReactor
// binds such a dispatcher to the reactor it will be called from.
type Binder interface {
	Bind(s Sender)
}

const (
	reactorIdle int32 = iota
	reactorRunning
	reactorStopped
)

// Reactor is a single-goroutine event loop over a readiness multiplexer.
//
// Run owns every socket read and write, all receive buffers and every
// connection teardown. Send and SendFrame may be called from any goroutine:
// they queue bytes on the target connection, arm write interest and wake the
// loop. Without the wake a queued reply would still be written, at the
// latest after one poll timeout.
type Reactor struct {
	opts     options
	logger   Logger
	poller   Poller
	codec    *FrameCodec
	registry *Registry
	sweeper  *sweeper

	listenFD   int
	listenAddr *net.TCPAddr
	acceptFD   func(lfd int) (int, string, error)
	// acceptResume is when a listener paused after an accept failure is
	// watched again; zero while it is watched.
	acceptResume time.Time

	state    atomic.Int32
	stopping atomic.Bool
	done     chan struct{}

	events    []Event
	readBuf   []byte
	lastSweep time.Time
}

// NewReactor creates a reactor. SerializerOption and DispatcherOption are
// required.
func NewReactor(opt ...Option) (*Reactor, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	p := opts.poller
	if p == nil {
		var err error
		if p, err = NewPoller(); err != nil {
			return nil, errors.Wrap(err, "new poller")
		}
	}

	r := &Reactor{
		opts:     opts,
		logger:   opts.logger,
		poller:   p,
		codec:    NewFrameCodec(opts.serializer, opts.maxFrame),
		registry: NewRegistry(),
		listenFD: -1,
		acceptFD: acceptConn,
		done:     make(chan struct{}),
		events:   make([]Event, opts.maxEvents),
		readBuf:  make([]byte, opts.readChunk),
	}
	r.sweeper = &sweeper{
		registry:  r.registry,
		threshold: opts.idleTimeout,
		evict: func(c *Conn) {
			r.closeConn(c, ErrIdleTimeout)
		},
	}

	if b, ok := opts.dispatcher.(Binder); ok {
		b.Bind(r)
	}

	return r, nil
}

// Listen opens a nonblocking listening socket on addr and watches it for
// incoming connections. It must be called before Run and at most once.
func (r *Reactor) Listen(addr *net.TCPAddr) (*net.TCPAddr, error) {
	if r.state.Load() != reactorIdle {
		return nil, ErrReactorStopped
	}
	if r.listenFD >= 0 {
		return nil, errors.Errorf("already listening on %s", r.listenAddr)
	}

	fd, bound, err := listenTCP(addr)
	if err != nil {
		return nil, err
	}

	if err = r.poller.Add(fd, InterestAccept); err != nil {
		closeFD(fd)
		return nil, errors.Wrap(err, "watch listener")
	}

	r.listenFD = fd
	r.listenAddr = bound
	return bound, nil
}

// Attach registers an already connected nonblocking socket. The reactor
// takes ownership of fd.
func (r *Reactor) Attach(fd int, addr string) (ConnID, error) {
	if r.stopping.Load() {
		return 0, ErrReactorStopped
	}
	if err := r.register(fd, addr); err != nil {
		return 0, err
	}
	return ConnID(fd), nil
}

// Addr returns the listening address, or nil when the reactor is not listening.
func (r *Reactor) Addr() *net.TCPAddr {
	return r.listenAddr
}

// Codec returns the frame codec used by the reactor.
func (r *Reactor) Codec() *FrameCodec {
	return r.codec
}

// Len returns the number of open connections.
func (r *Reactor) Len() int {
	return r.registry.Len()
}

// Done is closed once the reactor has released all its resources.
func (r *Reactor) Done() <-chan struct{} {
	return r.done
}

// Run runs the event loop until Stop or Close is called or ctx is done.
// It returns nil on a requested stop and an error matching ErrMultiplexer
// when the multiplexer fails. A reactor runs at most once.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(reactorIdle, reactorRunning) {
		return ErrReactorStopped
	}

	if r.listenAddr != nil {
		r.logger.Info("reactor started", "addr", r.listenAddr)
	} else {
		r.logger.Info("reactor started", "conns", r.registry.Len())
	}

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(r.done)
		defer r.teardown()
		return r.loop()
	})

	group.Go(func() error {
		select {
		case <-child.Done():
			r.Stop()
		case <-r.done:
		}
		return nil
	})

	err := group.Wait()
	if err != nil {
		r.logger.Error("reactor stopped with error", "error", err)
	} else {
		r.logger.Info("reactor stopped")
	}
	return err
}

// Stop asks the loop to exit and wakes a blocked poll. It does not wait.
func (r *Reactor) Stop() {
	if !r.stopping.CompareAndSwap(false, true) {
		return
	}
	if err := r.poller.Wake(); err != nil {
		r.logger.Debug("wake failed", "error", err)
	}
}

// Close stops the reactor and waits until the listener, every connection and
// the multiplexer are closed. It must not be called from a dispatcher; use
// Stop there.
func (r *Reactor) Close() error {
	r.Stop()
	if r.state.CompareAndSwap(reactorIdle, reactorStopped) {
		r.teardown()
		close(r.done)
		return nil
	}
	<-r.done
	return nil
}

// Send encodes msg and queues it on connection id.
func (r *Reactor) Send(id ConnID, msg Message) error {
	frame, err := r.codec.Encode(msg)
	if err != nil {
		return err
	}
	return r.SendFrame(id, frame)
}

// SendFrame queues an encoded frame on connection id. The frame must not be
// modified afterwards.
func (r *Reactor) SendFrame(id ConnID, frame []byte) error {
	if r.stopping.Load() {
		return ErrReactorStopped
	}
	if len(frame) == 0 {
		return nil
	}

	armed := false
	err := r.registry.Enqueue(id, frame, func(c *Conn) error {
		if err := r.poller.Modify(int(c.id), InterestRead|InterestWrite); err != nil {
			return fmt.Errorf("%w: arm write: %w", ErrTransport, err)
		}
		armed = true
		return nil
	})
	if err != nil {
		return err
	}

	if armed {
		if err = r.poller.Wake(); err != nil {
			r.logger.Debug("wake failed", "conn", id, "error", err)
		}
	}
	return nil
}

func (r *Reactor) loop() error {
	r.lastSweep = r.opts.now()

	for !r.stopping.Load() {
		n, err := r.poller.Wait(r.events, r.opts.pollTimeout)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMultiplexer, err)
		}
		if r.stopping.Load() {
			return nil
		}

		for _, ev := range r.events[:n] {
			r.handle(ev)
		}
		r.resumeAccept(time.Now())

		now := r.opts.now()
		if n == 0 || now.Sub(r.lastSweep) >= r.opts.pollTimeout {
			r.sweep(now)
		}
	}
	return nil
}

func (r *Reactor) sweep(now time.Time) {
	r.lastSweep = now
	if evicted := r.sweeper.Sweep(now); len(evicted) > 0 {
		r.logger.Debug("idle sweep", "evicted", len(evicted), "conns", r.registry.Len())
	}
}

func (r *Reactor) handle(ev Event) {
	if ev.Events&EventWake != 0 {
		return
	}
	if ev.FD == r.listenFD {
		r.accept()
		return
	}

	c, ok := r.registry.Get(ConnID(ev.FD))
	if !ok {
		_ = r.poller.Remove(ev.FD)
		return
	}

	if ev.Events&(EventRead|EventError) != 0 {
		r.read(c)
	}
	if ev.Events&EventWrite != 0 && c.State() == StateOpen {
		r.write(c)
	}
}

func (r *Reactor) accept() {
	for i := 0; i < r.opts.maxEvents; i++ {
		fd, addr, err := r.acceptFD(r.listenFD)
		if err == errWouldBlock {
			return
		}
		if err != nil {
			r.pauseAccept(err)
			return
		}

		if err = r.register(fd, addr); err != nil {
			r.logger.Warn("register failed", "fd", fd, "addr", addr, "error", err)
			closeFD(fd)
			continue
		}
	}
}

// pauseAccept stops watching the listener for one poll timeout. The failed
// connection stays in the backlog, so a level-triggered listener would
// otherwise be reported ready again at once.
func (r *Reactor) pauseAccept(err error) {
	if rerr := r.poller.Remove(r.listenFD); rerr != nil {
		r.logger.Debug("unwatch listener failed", "error", rerr)
	}
	r.acceptResume = time.Now().Add(r.opts.pollTimeout)
	r.logger.Error("accept error, pausing accepts", "error", err, "backoff", r.opts.pollTimeout)
}

func (r *Reactor) resumeAccept(now time.Time) {
	if r.acceptResume.IsZero() || now.Before(r.acceptResume) {
		return
	}
	r.acceptResume = time.Time{}
	if err := r.poller.Add(r.listenFD, InterestAccept); err != nil {
		r.pauseAccept(errors.Wrap(err, "rewatch listener"))
	}
}

func (r *Reactor) register(fd int, addr string) error {
	id := ConnID(fd)
	c := r.registry.Create(id, addr, r.opts.now())

	if err := r.poller.Add(fd, InterestRead); err != nil {
		r.registry.Remove(id)
		return err
	}

	r.logger.Info("connection established", "conn", c.Trace(), "fd", fd, "addr", addr)
	if r.opts.onConnect != nil {
		r.opts.onConnect(id, addr)
	}
	return nil
}

func (r *Reactor) read(c *Conn) {
	n, err := readFD(int(c.id), r.readBuf)
	if err == errWouldBlock {
		return
	}
	if err != nil {
		r.closeConn(c, fmt.Errorf("%w: read: %w", ErrTransport, err))
		return
	}
	if n == 0 {
		r.closeConn(c, ErrPeerClosed)
		return
	}

	r.registry.Touch(c.id, r.opts.now())
	c.recv.Append(r.readBuf[:n])

	msgs, _, err := r.codec.Decode(c.recv)
	if err != nil {
		r.logDecodeError(c, err)
	}

	for _, msg := range msgs {
		if !r.dispatch(c, msg) {
			return
		}
	}
}

func (r *Reactor) logDecodeError(c *Conn, err error) {
	var de *DecodeError
	if !errors.As(err, &de) {
		r.logger.Warn("decode error", "conn", c.Trace(), "error", err)
		return
	}
	for _, e := range de.Errs {
		r.logger.Warn("frame dropped", "conn", c.Trace(), "addr", c.addr, "error", e)
	}
}

// dispatch hands msg to the dispatcher. It reports whether the connection is
// still open afterwards.
func (r *Reactor) dispatch(c *Conn, msg Message) (open bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("dispatcher panic", "conn", c.Trace(), "kind", msg.Kind, "panic", p)
			r.closeConn(c, fmt.Errorf("%w: dispatcher panic: %v", ErrTransport, p))
			open = false
		}
	}()

	r.opts.dispatcher.OnMessage(c.id, msg)
	return c.State() == StateOpen
}

func (r *Reactor) write(c *Conn) {
	fd := int(c.id)
	n, err := c.flush(
		func(p []byte) (int, error) {
			return writeFD(fd, p)
		},
		func(*Conn) error {
			return r.poller.Modify(fd, InterestRead)
		},
	)
	if n > 0 {
		r.registry.Touch(c.id, r.opts.now())
	}
	if err != nil {
		r.closeConn(c, fmt.Errorf("%w: write: %w", ErrTransport, err))
	}
}

// closeConn tears down c once: stops watching it, closes the socket and
// removes it from the registry.
func (r *Reactor) closeConn(c *Conn, reason error) {
	if !c.markClosing() {
		return
	}

	fd := int(c.id)
	pending := c.Pending()
	_ = r.poller.Remove(fd)
	if err := closeFD(fd); err != nil {
		r.logger.Debug("close error", "conn", c.Trace(), "fd", fd, "error", err)
	}
	r.registry.Remove(c.id)

	switch {
	case errors.Is(reason, ErrPeerClosed):
		r.logger.Info("connection closed by peer", "conn", c.Trace(), "addr", c.addr)
	case errors.Is(reason, ErrIdleTimeout):
		r.logger.Info("idle connection evicted", "conn", c.Trace(), "addr", c.addr,
			"last_active", c.LastActive(), "unsent", pending)
	case errors.Is(reason, ErrReactorStopped):
		r.logger.Debug("connection closed", "conn", c.Trace(), "addr", c.addr, "unsent", pending)
	default:
		r.logger.Warn("connection closed with error", "conn", c.Trace(), "addr", c.addr,
			"unsent", pending, "error", reason)
	}

	if r.opts.onClose != nil {
		r.opts.onClose(c.id, reason)
	}
}

func (r *Reactor) teardown() {
	r.state.Store(reactorStopped)

	if r.listenFD >= 0 {
		_ = r.poller.Remove(r.listenFD)
		closeFD(r.listenFD)
		r.listenFD = -1
	}

	for _, c := range r.registry.Snapshot() {
		r.closeConn(c, ErrReactorStopped)
	}

	if err := r.poller.Close(); err != nil {
		r.logger.Warn("poller close error", "error", err)
	}
}
