package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	clearEnv(t)
	t.Setenv("TOKEN", "abc")
	t.Setenv("SOURCEID", "111")
	t.Setenv("DESTID", "222")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Discord.Token)
	assert.Equal(t, ChannelConfig{SourceID: "111", DestID: "222"}, cfg.Channels)
	assert.Equal(t, "Local", cfg.Collector.Timezone)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Server.Addr)
}

func TestLoadMissingToken(t *testing.T) {
	t.Chdir(t.TempDir())
	clearEnv(t)
	t.Setenv("SOURCEID", "111")

	_, err := Load(Options{})
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	clearEnv(t)

	yaml := "discord:\n  token: from-file\nchannels:\n  source_id: \"1\"\n  dest_id: \"2\"\nserver:\n  addr: \":9090\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte(yaml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DESTID=from-dotenv\n"), 0o644))
	t.Setenv("SOURCEID", "from-env")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Discord.Token)
	assert.Equal(t, "from-env", cfg.Channels.SourceID)
	assert.Equal(t, "from-dotenv", cfg.Channels.DestID)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	t.Chdir(t.TempDir())
	clearEnv(t)
	t.Setenv("TOKEN", "abc")

	_, err := Load(Options{File: "missing.yaml"})
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	cfg := Config{Collector: CollectorConfig{Timezone: "local"}}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Collector.Timezone = "UTC"
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	cfg.Collector.Timezone = "Mars/Olympus"
	_, err = cfg.Location()
	assert.Error(t, err)
}
