// Package config loads the store settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/maruel/flatdb/internal/flatdb"
	"gopkg.in/yaml.v3"
)

// Config is the content of the configuration file.
type Config struct {
	DataDir     string   `yaml:"data_dir"`
	Delimiter   string   `yaml:"delimiter,omitempty"`
	LockTimeout Duration `yaml:"lock_timeout,omitempty"`
	// Location is an IANA time zone name. Empty means UTC.
	Location string `yaml:"location,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
}

// Duration is a time.Duration written as a Go duration string, e.g. "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:     "./data",
		Delimiter:   flatdb.DefaultDelimiter,
		LockTimeout: Duration(flatdb.DefaultLockTimeout),
		LogLevel:    "info",
	}
}

// Load reads the file at path over the defaults and validates the result.
// The path is provided by the CLI user.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-specified config path
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if _, err := flatdb.NewCodec(c.Delimiter, nil); err != nil {
		return fmt.Errorf("delimiter: %w", err)
	}
	if _, err := c.location(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// StoreOptions converts the settings into flatdb options.
func (c *Config) StoreOptions(logger *slog.Logger) (*flatdb.Options, error) {
	loc, err := c.location()
	if err != nil {
		return nil, err
	}
	return &flatdb.Options{
		Delimiter:   c.Delimiter,
		LockTimeout: time.Duration(c.LockTimeout),
		Location:    loc,
		Logger:      logger,
	}, nil
}

func (c *Config) location() (*time.Location, error) {
	if c.Location == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("location: %w", err)
	}
	return loc, nil
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level: %q", s)
}
