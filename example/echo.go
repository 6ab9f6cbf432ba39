package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Zereker/framesock"
)

// tracker keeps the addresses of the open connections.
type tracker struct {
	sync.RWMutex
	connections map[framesock.ConnID]string
}

func newTracker() *tracker {
	return &tracker{connections: make(map[framesock.ConnID]string)}
}

func (t *tracker) addConn(id framesock.ConnID, addr string) {
	t.Lock()
	defer t.Unlock()

	slog.Info("add new conn", "connID", id, "addr", addr)
	t.connections[id] = addr
}

func (t *tracker) deleteConn(id framesock.ConnID, reason error) {
	t.Lock()
	defer t.Unlock()

	slog.Info("delete conn", "connID", id, "addr", t.connections[id], "reason", reason)
	delete(t.connections, id)
}

func (t *tracker) count() int {
	t.RLock()
	defer t.RUnlock()

	return len(t.connections)
}

func main() {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:12345")
	if err != nil {
		panic(err)
	}

	conns := newTracker()

	mux := framesock.NewMux(nil)
	mux.Handle(framesock.KindHeartbeat, framesock.HeartbeatHandler(nil, time.Now))

	// Echo
	mux.Handle(framesock.KindBusiness, func(ctx *framesock.Context, m framesock.Message) {
		if err := ctx.Reply(m); err != nil {
			slog.Error("echo failed", "connID", ctx.ID, "error", err, "open", conns.count())
		}
	})

	server, err := framesock.New(addr,
		framesock.SerializerOption(framesock.NewJSONSerializer(nil)),
		framesock.DispatcherOption(mux),
		framesock.IdleTimeoutOption(time.Minute),
		framesock.OnConnectOption(conns.addConn),
		framesock.OnCloseOption(conns.deleteConn),
	)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down server...")
		cancel()
	}()

	slog.Info("server start", "addr", server.Addr().String())
	if err := server.Serve(ctx); err != nil && err != context.Canceled {
		slog.Error("server error", "error", err)
	}
}
