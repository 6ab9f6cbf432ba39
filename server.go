package framesock

import (
	"context"
	"net"
)

// Server accepts TCP connections and serves them from one Reactor.
type Server struct {
	reactor *Reactor
	addr    *net.TCPAddr
}

// New creates a server bound to addr. The reactor options configure
// serialization, dispatch, timeouts and logging; SerializerOption and
// DispatcherOption are required.
// Returns an error if the address cannot be bound.
func New(addr *net.TCPAddr, opts ...Option) (*Server, error) {
	r, err := NewReactor(opts...)
	if err != nil {
		return nil, err
	}

	bound, err := r.Listen(addr)
	if err != nil {
		r.Close()
		return nil, err
	}

	return &Server{reactor: r, addr: bound}, nil
}

// Serve runs the reactor until ctx is canceled, Close is called or the
// multiplexer fails. It returns ctx.Err() when stopped by ctx.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.reactor.Run(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

// Close stops the server, closing the listener and every connection.
// Safe to call multiple times.
func (s *Server) Close() error {
	return s.reactor.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Send queues msg on connection id. Safe for concurrent use.
func (s *Server) Send(id ConnID, msg Message) error {
	return s.reactor.Send(id, msg)
}

// Len returns the number of open connections.
func (s *Server) Len() int {
	return s.reactor.Len()
}
