//go:build !linux

package framesock

// NewPoller returns ErrNotSupported on platforms without an epoll backend.
// A custom multiplexer can still be supplied with PollerOption.
func NewPoller() (Poller, error) {
	return nil, ErrNotSupported
}
