package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/framesock"
)

func newPingCmd(root *rootFlags) *cobra.Command {
	var (
		addr     string
		count    int
		interval time.Duration
		timeout  time.Duration
		message  string
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Send heartbeats (and optionally a business message) and wait for replies.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}

			replies := make(chan framesock.Message, count+1)
			dispatcher := framesock.DispatcherFunc(func(id framesock.ConnID, msg framesock.Message) {
				if msg.Kind != framesock.KindHeartbeat {
					logger.Info("message received", "id", msg.ID, "kind", msg.Kind, "payload", string(msg.Payload))
					return
				}
				select {
				case replies <- msg:
				default:
					logger.Warn("unexpected reply", "id", msg.ID, "kind", msg.Kind)
				}
			})

			opts := append(cfg.Options(),
				framesock.SerializerOption(framesock.NewJSONSerializer(framesock.DefaultKinds())),
				framesock.DispatcherOption(dispatcher),
				framesock.LoggerOption(logger),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			dialCtx, cancel := context.WithTimeout(ctx, timeout)
			client, err := framesock.Dial(dialCtx, cfg.Addr, opts...)
			cancel()
			if err != nil {
				return err
			}
			defer client.Close()

			group, gctx := errgroup.WithContext(ctx)
			runCtx, stopRun := context.WithCancel(gctx)
			defer stopRun()

			group.Go(func() error {
				return client.Run(runCtx)
			})

			group.Go(func() error {
				defer stopRun()

				if message != "" {
					err := client.Send(framesock.Message{
						ID:      0,
						Kind:    framesock.KindBusiness,
						Payload: []byte(message),
						SentAt:  time.Now(),
					})
					if err != nil {
						return err
					}
				}

				for i := 1; i <= count; i++ {
					sent := time.Now()
					err := client.Send(framesock.Message{
						ID:      uint64(2*i - 1),
						Kind:    framesock.KindHeartbeat,
						Payload: []byte("ping"),
						SentAt:  sent,
					})
					if err != nil {
						return err
					}

					select {
					case reply := <-replies:
						fmt.Fprintf(cmd.OutOrStdout(), "reply id=%d kind=%d payload=%q rtt=%s\n",
							reply.ID, reply.Kind, reply.Payload, time.Since(sent).Round(time.Microsecond))
					case <-time.After(timeout):
						return fmt.Errorf("no reply to heartbeat %d within %s", 2*i-1, timeout)
					case <-client.Done():
						return fmt.Errorf("connection to %s closed", cfg.Addr)
					case <-gctx.Done():
						return gctx.Err()
					}

					if i < count {
						time.Sleep(interval)
					}
				}
				return nil
			})

			if err = group.Wait(); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "server address (overrides FRAMESOCK_ADDR)")
	cmd.Flags().IntVar(&count, "count", 1, "number of heartbeats")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "delay between heartbeats")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "dial and reply timeout")
	cmd.Flags().StringVar(&message, "message", "", "business message sent before the heartbeats")
	return cmd
}
