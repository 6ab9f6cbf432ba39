// Package framesock provides a single-threaded reactor for TCP services
// speaking a length-prefixed binary frame protocol.
//
// One goroutine owns the readiness multiplexer and every socket read and
// write. Inbound bytes are accumulated per connection and cut into frames by
// FrameCodec; outbound frames are queued per connection and drained when the
// socket reports writability. Idle connections are evicted by a periodic
// sweep.
package framesock

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/xid"
)

// ConnID identifies a connection. It is the socket descriptor, so an ID may
// be reused by a later connection once the previous one has been removed.
type ConnID int

func (id ConnID) String() string {
	return strconv.Itoa(int(id))
}

// State is the lifecycle state of a connection.
type State int32

// Connection lifecycle states.
const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Conn is the per-socket record kept by the Registry.
//
// The receive buffer is only touched by the reactor goroutine. The send queue
// and write-interest flag are guarded by mu because replies may be queued
// from any goroutine.
type Conn struct {
	id    ConnID
	addr  string
	trace string

	recv       *Buffer
	lastActive atomic.Int64 // unix nanos
	state      atomic.Int32

	mu         sync.Mutex
	sendQ      *queue.Queue // of []byte
	sendOff    int          // bytes of the queue head already written
	pending    int          // unwritten bytes across the queue
	writeArmed bool
}

func newConn(id ConnID, addr string, now time.Time) *Conn {
	c := &Conn{
		id:    id,
		addr:  addr,
		trace: xid.New().String(),
		recv:  NewBuffer(DefaultReadChunk),
		sendQ: queue.New(),
	}
	c.lastActive.Store(now.UnixNano())
	return c
}

// ID returns the connection identity.
func (c *Conn) ID() ConnID {
	return c.id
}

// Addr returns the remote address.
func (c *Conn) Addr() string {
	return c.addr
}

// Trace returns a globally unique id for log correlation. Unlike ID it is
// never reused.
func (c *Conn) Trace() string {
	return c.trace
}

// State returns the lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// LastActive returns the time of the last read or write.
func (c *Conn) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Pending returns the number of queued bytes not yet written.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Conn) touch(now time.Time) {
	c.lastActive.Store(now.UnixNano())
}

// enqueue appends p to the send queue. When write interest is not armed yet,
// arm is called under the connection lock so it cannot interleave with
// disarm in flush.
func (c *Conn) enqueue(p []byte, arm func(*Conn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateOpen {
		return ErrConnectionClosed
	}

	c.sendQ.Add(p)
	c.pending += len(p)

	if c.writeArmed || arm == nil {
		return nil
	}
	if err := arm(c); err != nil {
		return err
	}
	c.writeArmed = true
	return nil
}

// flush writes queued bytes with write until the queue is empty or write
// accepts less than offered. When the queue empties, disarm is called and
// write interest is dropped. write must return errWouldBlock when the socket
// accepts nothing.
func (c *Conn) flush(write func([]byte) (int, error), disarm func(*Conn) error) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	written := 0
	for c.sendQ.Length() > 0 {
		head := c.sendQ.Peek().([]byte)
		chunk := head[c.sendOff:]

		n, err := write(chunk)
		if n > 0 {
			written += n
			c.sendOff += n
			c.pending -= n
		}
		if c.sendOff == len(head) {
			c.sendQ.Remove()
			c.sendOff = 0
		}
		if err == errWouldBlock {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		if n < len(chunk) {
			return written, nil
		}
	}

	if c.writeArmed && disarm != nil {
		if err := disarm(c); err != nil {
			return written, err
		}
		c.writeArmed = false
	}
	return written, nil
}

// markClosing moves an open connection to StateClosing. It reports false if
// the connection was already closing or closed.
func (c *Conn) markClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
}

// release drops both buffers and marks the connection closed.
func (c *Conn) release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Store(int32(StateClosed))
	c.sendQ = queue.New()
	c.sendOff = 0
	c.pending = 0
	c.writeArmed = false
	c.recv.Reset()
}
