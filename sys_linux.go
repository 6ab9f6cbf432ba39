//go:build linux

package framesock

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// listenTCP opens a nonblocking listening socket bound to addr.
func listenTCP(addr *net.TCPAddr) (int, *net.TCPAddr, error) {
	domain, sa, err := sockaddr(addr)
	if err != nil {
		return -1, nil, err
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, nil, errors.Wrap(err, "socket")
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, nil, errors.Wrap(err, "setsockopt SO_REUSEADDR")
	}

	if err = unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, nil, errors.Wrapf(err, "bind %s", addr)
	}

	if err = unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, nil, errors.Wrapf(err, "listen %s", addr)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, nil, errors.Wrap(err, "getsockname")
	}

	return fd, tcpAddr(bound), nil
}

func sockaddr(addr *net.TCPAddr) (int, unix.Sockaddr, error) {
	if addr == nil {
		return unix.AF_INET, &unix.SockaddrInet4{}, nil
	}
	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa, nil
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip6)
		return unix.AF_INET6, sa, nil
	}
	return 0, nil, errors.Errorf("unsupported address %s", addr)
}

func tcpAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}
	}
	return &net.TCPAddr{}
}

func sockaddrString(sa unix.Sockaddr) string {
	a := tcpAddr(sa)
	return net.JoinHostPort(a.IP.String(), strconv.Itoa(a.Port))
}

// acceptConn accepts one pending connection as a nonblocking socket.
// It returns errWouldBlock when the backlog is empty.
func acceptConn(lfd int) (int, string, error) {
	for {
		fd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch err {
		case nil:
			_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			return fd, sockaddrString(sa), nil
		case unix.EINTR, unix.ECONNABORTED:
			continue
		case unix.EAGAIN:
			return -1, "", errWouldBlock
		default:
			return -1, "", errors.Wrap(err, "accept")
		}
	}
}

// dialTCP connects to addr and returns a nonblocking descriptor owned by the
// caller. The connection is established with the standard dialer so ctx
// bounds the handshake, then the descriptor is duplicated out of the runtime
// poller.
func dialTCP(ctx context.Context, addr string) (int, string, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return -1, "", err
	}
	defer c.Close()

	tc := c.(*net.TCPConn)
	_ = tc.SetNoDelay(true)

	raw, err := tc.SyscallConn()
	if err != nil {
		return -1, "", errors.Wrap(err, "syscall conn")
	}

	fd := -1
	var dupErr error
	err = raw.Control(func(s uintptr) {
		fd, dupErr = unix.Dup(int(s))
	})
	if err != nil {
		return -1, "", errors.Wrap(err, "control")
	}
	if dupErr != nil {
		return -1, "", errors.Wrap(dupErr, "dup")
	}

	unix.CloseOnExec(fd)
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, "", errors.Wrap(err, "set nonblock")
	}

	return fd, tc.RemoteAddr().String(), nil
}

// readFD reads into p. It returns errWouldBlock when no data is available
// and (0, nil) on EOF.
func readFD(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, errWouldBlock
		default:
			return 0, err
		}
	}
}

// writeFD writes p. It returns errWouldBlock when the socket buffer is full.
func writeFD(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, errWouldBlock
		default:
			if n < 0 {
				n = 0
			}
			return n, err
		}
	}
}

func closeFD(fd int) error {
	return unix.Close(fd)
}
