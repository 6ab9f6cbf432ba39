package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"serve", "ping"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
		assert.NotNil(t, cmd.Flags().Lookup("addr"))
	}

	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestRootFlags_Load(t *testing.T) {
	t.Setenv("FRAMESOCK_LOG_LEVEL", "error")

	flags := &rootFlags{envFile: filepath.Join(t.TempDir(), "missing.env"), logLevel: "debug"}
	cfg, logger, err := flags.load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.NotNil(t, logger)
}

func TestPingCmd_DialFailure(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{
		"ping",
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
		"--addr", "127.0.0.1:1",
		"--timeout", "200ms",
	})

	assert.Error(t, root.Execute())
}
