package mdstore

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/mdstore/event"
)

// Config describes a store. It is usually loaded from YAML.
type Config struct {
	// Dir holds the backing file and the manifest. Required when FileBacked.
	Dir string `yaml:"dir"`

	// Dimensions is the number of coordinates per event (1 to 9).
	Dimensions int `yaml:"dimensions"`

	// EventKind is "lean" or "full". Full events carry run, goniometer
	// and detector provenance.
	EventKind string `yaml:"event_kind"`

	// FileBacked keeps box events in a shared backing file.
	FileBacked bool `yaml:"file_backed"`

	// WriteBufferEvents is the number of events the disk buffer may keep in
	// memory before it writes and evicts boxes.
	WriteBufferEvents uint64 `yaml:"write_buffer_events"`

	// IOLimitBytesPerSec caps backing-file throughput. 0 is unlimited.
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec"`

	// MemoryLimitBytes caps the bytes of events resident in the disk
	// buffer. 0 only tracks usage.
	MemoryLimitBytes int64 `yaml:"memory_limit_bytes"`

	// Workers bounds parallel ingestion and binning.
	Workers int `yaml:"workers"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns a file-backed 3D lean configuration without a
// directory.
func DefaultConfig() Config {
	return Config{
		Dimensions:        3,
		EventKind:         event.Lean.String(),
		FileBacked:        true,
		WriteBufferEvents: 1 << 20,
		Workers:           4,
		LogLevel:          "info",
	}
}

// LoadConfig reads a YAML config from path. Fields missing from the file
// keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the config for consistency.
func (c Config) Validate() error {
	if _, err := c.layout(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if c.FileBacked && c.Dir == "" {
		return fmt.Errorf("%w: file-backed store needs a dir", ErrInvalidArgument)
	}
	if c.IOLimitBytesPerSec < 0 {
		return fmt.Errorf("%w: negative io_limit_bytes_per_sec", ErrInvalidArgument)
	}
	if c.MemoryLimitBytes < 0 {
		return fmt.Errorf("%w: negative memory_limit_bytes", ErrInvalidArgument)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: negative workers", ErrInvalidArgument)
	}
	if _, err := c.level(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return nil
}

func (c Config) layout() (event.Layout, error) {
	kind := event.Lean
	if c.EventKind != "" {
		k, err := event.ParseKind(c.EventKind)
		if err != nil {
			return event.Layout{}, err
		}
		kind = k
	}
	return event.NewLayout(c.Dimensions, kind)
}

func (c Config) level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
