package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vipcollector/internal/config"
	"vipcollector/internal/discord"
)

func execute(t *testing.T, run runFunc, args ...string) (string, error) {
	t.Helper()
	var stderr bytes.Buffer
	cmd := newRootCmd(run)
	cmd.SetErr(&stderr)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stderr.String(), err
}

func TestInvalidTokenDiagnostic(t *testing.T) {
	out, err := execute(t, func(context.Context, config.Options) error {
		return discord.ErrInvalidToken
	})

	require.ErrorIs(t, err, discord.ErrInvalidToken)
	assert.Equal(t, "ERROR: Provided bot token is invalid\n", out)
}

func TestOtherErrorsArePrinted(t *testing.T) {
	out, err := execute(t, func(context.Context, config.Options) error {
		return errors.New("opening gateway: dial tcp: timeout")
	})

	require.Error(t, err)
	assert.Equal(t, "ERROR: opening gateway: dial tcp: timeout\n", out)
}

func TestMissingTokenStopsBeforeConnecting(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"TOKEN", "SOURCEID", "DESTID", "TIMEZONE", "HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	out, err := execute(t, run)

	require.ErrorIs(t, err, config.ErrMissingToken)
	assert.Contains(t, out, "ERROR: discord token is required")
}

func TestFlagsReachRun(t *testing.T) {
	var got config.Options
	out, err := execute(t, func(_ context.Context, opts config.Options) error {
		got = opts
		return nil
	}, "--config", "bot.yaml", "--env-file", "bot.env")

	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, config.Options{File: "bot.yaml", EnvFile: "bot.env"}, got)
}
