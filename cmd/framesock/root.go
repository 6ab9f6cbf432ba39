package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zereker/framesock"
)

type rootFlags struct {
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "framesock",
		Short: "Length-prefixed message server and client over a single-threaded reactor.",
		Long: `framesock serves and exercises the framesock wire protocol: ` +
			`8-byte big-endian headers (total length, kind) followed by a JSON body.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "env file with FRAMESOCK_* settings")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(flags), newPingCmd(flags))
	return cmd
}

// load reads the configuration and installs the process logger.
func (f *rootFlags) load() (framesock.Config, *slog.Logger, error) {
	cfg, err := framesock.LoadConfig(f.envFile)
	if err != nil {
		return framesock.Config{}, nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}

	logger := framesock.NewTextLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
