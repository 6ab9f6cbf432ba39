//go:build linux

package framesock

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// interestBits maps logical interests to epoll bits.
var interestBits = map[Interest]uint32{
	InterestRead:   unix.EPOLLIN | unix.EPOLLRDHUP,
	InterestWrite:  unix.EPOLLOUT,
	InterestAccept: unix.EPOLLIN,
}

func epollEvents(in Interest) uint32 {
	var ev uint32
	for bit, mask := range interestBits {
		if in&bit != 0 {
			ev |= mask
		}
	}
	return ev
}

func readiness(ev uint32) Readiness {
	var r Readiness
	if ev&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
		r |= EventRead
	}
	if ev&unix.EPOLLOUT != 0 {
		r |= EventWrite
	}
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		r |= EventError
	}
	return r
}

// epollPoller is a level-triggered epoll multiplexer with an eventfd used
// to wake a blocked wait.
type epollPoller struct {
	epfd   int
	wakefd int
	raw    []unix.EpollEvent

	// mu keeps control calls from reaching descriptors released by Close.
	mu     sync.RWMutex
	closed bool
}

var errPollerClosed = errors.New("poller closed")

// NewPoller returns the epoll multiplexer.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wake: %w", err)
	}

	return &epollPoller{epfd: epfd, wakefd: wakefd}, nil
}

func (p *epollPoller) Add(fd int, in Interest) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errPollerClosed
	}

	ev := unix.EpollEvent{Events: epollEvents(in), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

func (p *epollPoller) Modify(fd int, in Interest) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errPollerClosed
	}

	ev := unix.EpollEvent{Events: epollEvents(in), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

func (p *epollPoller) Remove(fd int) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errPollerClosed
	}

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

func (p *epollPoller) Wait(events []Event, timeout time.Duration) (int, error) {
	if len(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}

	n, err := unix.EpollWait(p.epfd, p.raw[:len(events)], epollTimeout(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	for i := 0; i < n; i++ {
		fd := int(p.raw[i].Fd)
		if fd == p.wakefd {
			p.drainWake()
			events[i] = Event{FD: fd, Events: EventWake}
			continue
		}
		events[i] = Event{FD: fd, Events: readiness(p.raw[i].Events)}
	}
	return n, nil
}

// epollTimeout converts timeout to whole milliseconds, rounding up so a
// positive timeout never turns into a non-blocking wait. A negative timeout
// blocks indefinitely.
func epollTimeout(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := (timeout + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

func (p *epollPoller) Wake() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errPollerClosed
	}

	// Any non-zero 8-byte value increments the counter.
	one := [8]byte{1}
	_, err := unix.Write(p.wakefd, one[:])
	if err == unix.EAGAIN {
		// Counter saturated: a wake is already pending.
		return nil
	}
	if err != nil {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (p *epollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	werr := unix.Close(p.wakefd)
	if err := unix.Close(p.epfd); err != nil {
		return fmt.Errorf("epoll close: %w", err)
	}
	if werr != nil {
		return fmt.Errorf("eventfd close: %w", werr)
	}
	return nil
}
