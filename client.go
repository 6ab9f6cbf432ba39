package framesock

import (
	"context"
)

// Client is a single outbound connection served by its own Reactor.
// Messages from the server are delivered to the configured dispatcher.
type Client struct {
	reactor *Reactor
	id      ConnID
	remote  string
}

// Dial connects to addr and registers the connection with a new reactor.
// ctx bounds the connection handshake only. The reactor stops once the
// connection is closed, whatever the reason.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var r *Reactor
	opts = append(opts[:len(opts):len(opts)], func(o *options) {
		onClose := o.onClose
		o.onClose = func(id ConnID, reason error) {
			if onClose != nil {
				onClose(id, reason)
			}
			r.Stop()
		}
	})

	r, err := NewReactor(opts...)
	if err != nil {
		return nil, err
	}

	fd, remote, err := dialTCP(ctx, addr)
	if err != nil {
		r.Close()
		return nil, err
	}

	id, err := r.Attach(fd, remote)
	if err != nil {
		closeFD(fd)
		r.Close()
		return nil, err
	}

	return &Client{reactor: r, id: id, remote: remote}, nil
}

// Run runs the client's reactor until ctx is done, Close is called, the
// connection closes or the multiplexer fails.
func (c *Client) Run(ctx context.Context) error {
	return c.reactor.Run(ctx)
}

// Send queues msg for the server. Safe for concurrent use.
func (c *Client) Send(msg Message) error {
	return c.reactor.Send(c.id, msg)
}

// ID returns the connection identity.
func (c *Client) ID() ConnID {
	return c.id
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() string {
	return c.remote
}

// Connected reports whether the connection is still open.
func (c *Client) Connected() bool {
	return c.reactor.Len() > 0
}

// Done is closed once the client's reactor has shut down.
func (c *Client) Done() <-chan struct{} {
	return c.reactor.Done()
}

// Close closes the connection and releases the reactor.
func (c *Client) Close() error {
	return c.reactor.Close()
}
