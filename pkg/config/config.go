// Package config loads the optional YAML settings file shared by all commands.
package config

import (
	"bytes"
	"io"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/BIwashi/candbc/pkg/dbc"
	"github.com/BIwashi/candbc/pkg/table"
)

// Config holds the settings file contents.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Generate GenerateConfig `yaml:"generate"`
	Table    TableConfig    `yaml:"table"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// GenerateConfig controls DBC text emission.
type GenerateConfig struct {
	SignalOrder string `yaml:"signal_order"` // declared, start_bit, name
	DefaultNode string `yaml:"default_node,omitempty"`
}

// TableConfig controls row files.
type TableConfig struct {
	// Format is used when an output path has no known extension.
	Format string `yaml:"format"`
}

// Default returns a configuration with the built-in defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Generate: GenerateConfig{
			SignalOrder: "declared",
		},
		Table: TableConfig{
			Format: string(table.FormatCSV),
		},
	}
}

// Load reads configuration from a YAML file. Missing keys keep their
// defaults and unknown keys are rejected. An empty path returns Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := dbc.ReadInput(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks every enumerated setting.
func (c *Config) Validate() error {
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if _, err := c.LogHandler(io.Discard); err != nil {
		return err
	}
	if _, err := c.GenerateOptions(); err != nil {
		return err
	}
	if _, err := c.TableFormat(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "log level %q", c.Log.Level)
	}
	return lvl, nil
}

// LogHandler builds the slog handler selected by Log.Format writing to w.
func (c *Config) LogHandler(w io.Writer) (slog.Handler, error) {
	lvl, err := c.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(c.Log.Format) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, errors.Newf("log format %q", c.Log.Format)
	}
}

// GenerateOptions converts the generate section.
func (c *Config) GenerateOptions() (dbc.GenerateOptions, error) {
	order, err := dbc.ParseSignalOrder(c.Generate.SignalOrder)
	if err != nil {
		return dbc.GenerateOptions{}, err
	}
	return dbc.GenerateOptions{SignalOrder: order, DefaultNode: c.Generate.DefaultNode}, nil
}

// TableFormat parses Table.Format; empty means CSV.
func (c *Config) TableFormat() (table.Format, error) {
	if c.Table.Format == "" {
		return table.FormatCSV, nil
	}
	return table.ParseFormat(c.Table.Format)
}
