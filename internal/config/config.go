// Package config handles loading and parsing the bot's configuration.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables that override the file.
const (
	EnvToken      = "COCOA_TOKEN"
	EnvDataDir    = "COCOA_DATA_DIR"
	EnvLogLevel   = "COCOA_LOG_LEVEL"
	EnvStatusAddr = "COCOA_STATUS_ADDR"
)

// Duration is a time.Duration written as a string ("30s", "5m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds all configuration for the bot.
type Config struct {
	Token            string   `toml:"token"` // Discord bot token; prefer COCOA_TOKEN
	DataDir          string   `toml:"data_dir"`
	TableFile        string   `toml:"table_file"` // member table, relative to DataDir
	Intents          []string `toml:"intents"`
	Command          string   `toml:"command"`
	Reply            string   `toml:"reply"`
	Pattern          string   `toml:"pattern"` // counted in every message
	FlushInterval    Duration `toml:"flush_interval"`
	StatusAddr       string   `toml:"status_addr"` // empty disables the status server
	LogLevel         string   `toml:"log_level"`
	RepliesPerSecond float64  `toml:"replies_per_second"`
}

// New returns a new Config with default values.
func New() *Config {
	return &Config{
		DataDir:          "./data",
		TableFile:        "members.dt",
		Intents:          []string{"guilds", "guild_members", "guild_messages", "message_content"},
		Command:          "!cocoa",
		Reply:            "☕ COOOOOOOOOOOCOOOOOOOOOOOOOOOOAAAAAAAA!!! ☕",
		Pattern:          "[cC]+[oO]+[cC]+[oO]+[aA]+",
		FlushInterval:    Duration{time.Minute},
		LogLevel:         "info",
		RepliesPerSecond: 1,
	}
}

// Load reads a configuration file from the given path and populates the Config struct.
func (c *Config) Load(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overrides fields from the environment. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvToken); ok && v != "" {
		c.Token = v
	}
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvStatusAddr); ok {
		c.StatusAddr = v
	}
}

// Validate checks the fields that have no usable zero value.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Token) == "" {
		errs = append(errs, fmt.Errorf("token is required (set %s)", EnvToken))
	}
	if c.TableFile == "" {
		errs = append(errs, errors.New("table_file is required"))
	}
	if c.Command == "" {
		errs = append(errs, errors.New("command is required"))
	}
	if c.Pattern == "" {
		errs = append(errs, errors.New("pattern is required"))
	} else if _, err := regexp.Compile(c.Pattern); err != nil {
		errs = append(errs, fmt.Errorf("pattern: %w", err))
	}
	if c.FlushInterval.Duration <= 0 {
		errs = append(errs, fmt.Errorf("flush_interval must be positive, got %s", c.FlushInterval))
	}
	if c.RepliesPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("replies_per_second must be positive, got %g", c.RepliesPerSecond))
	}
	return errors.Join(errs...)
}

// TablePath returns the path of the member table.
func (c *Config) TablePath() string {
	return filepath.Join(c.DataDir, c.TableFile)
}
