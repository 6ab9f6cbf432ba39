package framesock

import (
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Environment variables read by LoadConfig.
const (
	EnvAddr        = "FRAMESOCK_ADDR"
	EnvIdleTimeout = "FRAMESOCK_IDLE_TIMEOUT"
	EnvPollTimeout = "FRAMESOCK_POLL_TIMEOUT"
	EnvReadChunk   = "FRAMESOCK_READ_CHUNK"
	EnvMaxFrame    = "FRAMESOCK_MAX_FRAME"
	EnvLogLevel    = "FRAMESOCK_LOG_LEVEL"
)

// Config is the process-level configuration of a server or client.
type Config struct {
	Addr        string
	IdleTimeout time.Duration
	PollTimeout time.Duration
	ReadChunk   int
	MaxFrame    int
	LogLevel    string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Addr:        "127.0.0.1:9000",
		IdleTimeout: DefaultIdleTimeout,
		PollTimeout: DefaultPollTimeout,
		ReadChunk:   DefaultReadChunk,
		MaxFrame:    MaxFrameSize,
		LogLevel:    "info",
	}
}

// LoadConfig loads the given env files (".env" when none are given) into the
// process environment without overriding variables already set, then reads
// the FRAMESOCK_* variables over DefaultConfig. Missing files are ignored.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "load %s", f)
		}
	}

	cfg := DefaultConfig()

	if v, ok := os.LookupEnv(EnvAddr); ok && v != "" {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}

	var err error
	if cfg.IdleTimeout, err = envDuration(EnvIdleTimeout, cfg.IdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PollTimeout, err = envDuration(EnvPollTimeout, cfg.PollTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ReadChunk, err = envInt(EnvReadChunk, cfg.ReadChunk); err != nil {
		return Config{}, err
	}
	if cfg.MaxFrame, err = envInt(EnvMaxFrame, cfg.MaxFrame); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return n, nil
}

// Options converts the tunables of c into reactor options.
func (c Config) Options() []Option {
	return []Option{
		IdleTimeoutOption(c.IdleTimeout),
		PollTimeoutOption(c.PollTimeout),
		ReadChunkOption(c.ReadChunk),
		MaxFrameOption(c.MaxFrame),
	}
}
