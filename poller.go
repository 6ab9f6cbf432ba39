package framesock

import "time"

// Interest is the set of readiness conditions a descriptor is watched for.
type Interest uint8

// Interests.
const (
	InterestRead Interest = 1 << iota
	InterestWrite
	InterestAccept
)

// Readiness is the set of conditions reported for a descriptor.
type Readiness uint8

// Readiness bits.
const (
	EventRead Readiness = 1 << iota
	EventWrite
	EventError
	// EventWake marks the event produced by Poller.Wake.
	EventWake
)

// Event is one readiness notification.
type Event struct {
	FD     int
	Events Readiness
}

// Poller is a readiness multiplexer.
//
// Add, Modify, Remove and Wake may be called from any goroutine. Wait is
// only called by the reactor goroutine.
type Poller interface {
	// Add starts watching fd for in.
	Add(fd int, in Interest) error
	// Modify replaces the interest set of fd.
	Modify(fd int, in Interest) error
	// Remove stops watching fd.
	Remove(fd int) error
	// Wait blocks up to timeout and fills events. It returns the number of
	// events written. An interrupted wait returns zero events and no error.
	Wait(events []Event, timeout time.Duration) (int, error)
	// Wake unblocks a pending or the next Wait.
	Wake() error
	// Close releases the multiplexer.
	Close() error
}
