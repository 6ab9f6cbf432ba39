//go:build !linux

package framesock

import (
	"context"
	"net"
)

func listenTCP(addr *net.TCPAddr) (int, *net.TCPAddr, error) {
	return -1, nil, ErrNotSupported
}

func acceptConn(lfd int) (int, string, error) {
	return -1, "", ErrNotSupported
}

func dialTCP(ctx context.Context, addr string) (int, string, error) {
	return -1, "", ErrNotSupported
}

func readFD(fd int, p []byte) (int, error) {
	return 0, ErrNotSupported
}

func writeFD(fd int, p []byte) (int, error) {
	return 0, ErrNotSupported
}

func closeFD(fd int) error {
	return ErrNotSupported
}
