package framesock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePoller is an in-memory Poller with no descriptors behind it.
type fakePoller struct {
	mu      sync.Mutex
	wake    chan struct{}
	waitErr error
	closed  int
	added   map[int]Interest
	// level lists descriptors reported readable for as long as they are watched.
	level map[int]bool
}

func newFakePoller() *fakePoller {
	return &fakePoller{
		wake:  make(chan struct{}, 1),
		added: make(map[int]Interest),
		level: make(map[int]bool),
	}
}

func (p *fakePoller) Add(fd int, in Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added[fd] = in
	return nil
}

func (p *fakePoller) Modify(fd int, in Interest) error {
	return p.Add(fd, in)
}

func (p *fakePoller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.added, fd)
	return nil
}

func (p *fakePoller) Wait(events []Event, timeout time.Duration) (int, error) {
	if p.waitErr != nil {
		return 0, p.waitErr
	}

	p.mu.Lock()
	n := 0
	for fd := range p.level {
		if in, ok := p.added[fd]; ok && in != 0 && n < len(events) {
			events[n] = Event{FD: fd, Events: EventRead}
			n++
		}
	}
	p.mu.Unlock()
	if n > 0 {
		return n, nil
	}

	select {
	case <-p.wake:
		events[0] = Event{FD: -1, Events: EventWake}
		return 1, nil
	case <-time.After(timeout):
		return 0, nil
	}
}

func (p *fakePoller) Wake() error {
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *fakePoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePoller) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func newFakeReactor(t *testing.T, p Poller, opts ...Option) *Reactor {
	t.Helper()
	base := []Option{
		SerializerOption(NewJSONSerializer(nil)),
		DispatcherOption(DispatcherFunc(func(ConnID, Message) {})),
		LoggerOption(discardLogger()),
		PollerOption(p),
		PollTimeoutOption(10 * time.Millisecond),
	}
	r, err := NewReactor(append(base, opts...)...)
	require.NoError(t, err)
	return r
}

func TestNewReactor_RequiredOptions(t *testing.T) {
	_, err := NewReactor(DispatcherOption(DispatcherFunc(func(ConnID, Message) {})))
	assert.ErrorIs(t, err, ErrInvalidSerializer)

	_, err = NewReactor(SerializerOption(NewJSONSerializer(nil)))
	assert.ErrorIs(t, err, ErrInvalidDispatcher)
}

func TestNewReactor_BindsDispatcher(t *testing.T) {
	mux := NewMux(discardLogger())
	r := newFakeReactor(t, newFakePoller(), DispatcherOption(mux))

	assert.Same(t, r, mux.sender)
	assert.Equal(t, MaxFrameSize, r.Codec().MaxFrame())
}

func TestReactor_MultiplexerFailure(t *testing.T) {
	p := newFakePoller()
	p.waitErr = errors.New("bad descriptor")
	r := newFakeReactor(t, p)

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMultiplexer)
	assert.Contains(t, err.Error(), "bad descriptor")

	select {
	case <-r.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
	assert.Equal(t, 1, p.closeCount())

	assert.ErrorIs(t, r.Run(context.Background()), ErrReactorStopped)
}

func TestReactor_ContextCancelStops(t *testing.T) {
	p := newFakePoller()
	r := newFakeReactor(t, p, PollTimeoutOption(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, p.closeCount())
}

func TestReactor_CloseBeforeRun(t *testing.T) {
	p := newFakePoller()
	r := newFakeReactor(t, p)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, p.closeCount())

	assert.ErrorIs(t, r.Run(context.Background()), ErrReactorStopped)
	assert.ErrorIs(t, r.Send(1, Message{Kind: KindHeartbeat}), ErrReactorStopped)
	_, err := r.Attach(3, "peer")
	assert.ErrorIs(t, err, ErrReactorStopped)
}

func TestReactor_SendUnknownConnection(t *testing.T) {
	r := newFakeReactor(t, newFakePoller())
	defer r.Close()

	err := r.Send(99, Message{ID: 1, Kind: KindHeartbeat})
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestReactor_SendEncodeError(t *testing.T) {
	r := newFakeReactor(t, newFakePoller())
	defer r.Close()

	err := r.Send(99, Message{ID: 1, Kind: Kind(55)})
	assert.ErrorIs(t, err, ErrSerialization)
}
