package framesock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnv = []string{EnvAddr, EnvIdleTimeout, EnvPollTimeout, EnvReadChunk, EnvMaxFrame, EnvLogLevel}

// clearConfigEnv unsets every config variable for the duration of the test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_File(t *testing.T) {
	clearConfigEnv(t)
	path := writeEnvFile(t, `
FRAMESOCK_ADDR=0.0.0.0:7000
FRAMESOCK_IDLE_TIMEOUT=90s
FRAMESOCK_POLL_TIMEOUT=250ms
FRAMESOCK_READ_CHUNK=64
FRAMESOCK_MAX_FRAME=65536
FRAMESOCK_LOG_LEVEL=debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, Config{
		Addr:        "0.0.0.0:7000",
		IdleTimeout: 90 * time.Second,
		PollTimeout: 250 * time.Millisecond,
		ReadChunk:   64,
		MaxFrame:    65536,
		LogLevel:    "debug",
	}, cfg)
}

func TestLoadConfig_EnvWinsOverFile(t *testing.T) {
	clearConfigEnv(t)
	path := writeEnvFile(t, "FRAMESOCK_ADDR=0.0.0.0:7000\nFRAMESOCK_READ_CHUNK=64\n")
	t.Setenv(EnvAddr, "127.0.0.1:7001")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", cfg.Addr)
	assert.Equal(t, 64, cfg.ReadChunk)
}

func TestLoadConfig_BadValues(t *testing.T) {
	cases := map[string]string{
		EnvIdleTimeout: "soon",
		EnvPollTimeout: "10",
		EnvReadChunk:   "many",
		EnvMaxFrame:    "1MiB",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)

			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestConfig_Options(t *testing.T) {
	cfg := Config{
		IdleTimeout: time.Minute,
		PollTimeout: 10 * time.Millisecond,
		ReadChunk:   32,
		MaxFrame:    2048,
	}

	var opts options
	for _, o := range cfg.Options() {
		o(&opts)
	}

	assert.Equal(t, time.Minute, opts.idleTimeout)
	assert.Equal(t, 10*time.Millisecond, opts.pollTimeout)
	assert.Equal(t, 32, opts.readChunk)
	assert.Equal(t, 2048, opts.maxFrame)
}
