package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zereker/framesock"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	var (
		addr        string
		idleTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server: answer heartbeats, log business messages.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("idle-timeout") {
				cfg.IdleTimeout = idleTimeout
			}

			tcpAddr, err := net.ResolveTCPAddr("tcp", cfg.Addr)
			if err != nil {
				return err
			}

			mux := framesock.NewMux(logger)
			mux.Handle(framesock.KindHeartbeat, framesock.HeartbeatHandler(logger, time.Now))
			mux.Handle(framesock.KindBusiness, framesock.LogHandler(logger))

			opts := append(cfg.Options(),
				framesock.SerializerOption(framesock.NewJSONSerializer(framesock.DefaultKinds())),
				framesock.DispatcherOption(mux),
				framesock.LoggerOption(logger),
			)

			server, err := framesock.New(tcpAddr, opts...)
			if err != nil {
				return err
			}
			logger.Info("listening", "addr", server.Addr(), "idle_timeout", cfg.IdleTimeout)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err = server.Serve(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides FRAMESOCK_ADDR)")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 0, "idle eviction threshold (overrides FRAMESOCK_IDLE_TIMEOUT)")
	return cmd
}
