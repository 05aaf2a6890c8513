package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var ErrMissingToken = errors.New("discord token is required (set TOKEN)")

const DefaultFile = "config.yaml"

type Config struct {
	Discord   DiscordConfig   `koanf:"discord"`
	Channels  ChannelConfig   `koanf:"channels"`
	Collector CollectorConfig `koanf:"collector"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
}

type DiscordConfig struct {
	Token string `koanf:"token"`
}

// ChannelConfig names the channel scanned for VIP messages and the one they
// are reposted to.
type ChannelConfig struct {
	SourceID string `koanf:"source_id"`
	DestID   string `koanf:"dest_id"`
}

type CollectorConfig struct {
	Timezone string `koanf:"timezone"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Options controls where Load looks for configuration sources.
type Options struct {
	// File is a YAML config path. An explicitly named file must exist;
	// the default file is optional.
	File    string
	EnvFile string
}

// envKeys maps recognised environment variables to config paths.
var envKeys = map[string]string{
	"TOKEN":      "discord.token",
	"SOURCEID":   "channels.source_id",
	"DESTID":     "channels.dest_id",
	"TIMEZONE":   "collector.timezone",
	"HTTP_ADDR":  "server.addr",
	"LOG_LEVEL":  "log.level",
	"LOG_FORMAT": "log.format",
}

func defaults() Config {
	return Config{
		Collector: CollectorConfig{Timezone: "Local"},
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	path := opts.File
	if path == "" {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	} else if opts.File != "" {
		return nil, fmt.Errorf("config file: %w", err)
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey returns "" for variables the collector does not use, which tells
// the env provider to skip them.
func envKey(s string) string {
	return envKeys[strings.ToUpper(s)]
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return ErrMissingToken
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the zone used to decide which messages are from today.
func (c *Config) Location() (*time.Location, error) {
	name := c.Collector.Timezone
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("collector timezone %q: %w", name, err)
	}
	return loc, nil
}
