package mdstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dir: /var/lib/mdstore
dimensions: 4
event_kind: full
write_buffer_events: 4096
log_level: debug
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/mdstore", cfg.Dir)
	assert.Equal(t, 4, cfg.Dimensions)
	assert.Equal(t, "full", cfg.EventKind)
	assert.Equal(t, uint64(4096), cfg.WriteBufferEvents)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Unset fields keep their defaults.
	assert.True(t, cfg.FileBacked)
	assert.Equal(t, DefaultConfig().Workers, cfg.Workers)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dimensions: [1, 2"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	path = filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dir: x\ndimensions: 12\n"), 0644))
	_, err = LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()
	valid.Dir = "data"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default with dir", func(*Config) {}, false},
		{"in memory without dir", func(c *Config) { c.Dir = ""; c.FileBacked = false }, false},
		{"file-backed without dir", func(c *Config) { c.Dir = "" }, true},
		{"zero dimensions", func(c *Config) { c.Dimensions = 0 }, true},
		{"too many dimensions", func(c *Config) { c.Dimensions = 10 }, true},
		{"unknown kind", func(c *Config) { c.EventKind = "huge" }, true},
		{"negative io limit", func(c *Config) { c.IOLimitBytesPerSec = -1 }, true},
		{"negative memory limit", func(c *Config) { c.MemoryLimitBytes = -1 }, true},
		{"negative workers", func(c *Config) { c.Workers = -1 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
