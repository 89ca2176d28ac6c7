// Package config loads the database configuration from YAML and builds the process logger.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultStorageDir         = "data"
	DefaultBufferPoolPages    = 50
	DefaultCheckpointInterval = 30 * time.Second
	DefaultMetricsAddr        = ":9090"
)

// Config is the top-level configuration of a database instance.
type Config struct {
	// StorageDir holds the catalog and one heap file per table.
	StorageDir string `yaml:"storage_dir"`
	// LogDir holds the write-ahead log. Defaults to StorageDir.
	LogDir string `yaml:"log_dir"`
	// SchemaFile, if set, is loaded into the catalog at startup.
	SchemaFile string `yaml:"schema_file"`

	BufferPoolPages    int           `yaml:"buffer_pool_pages"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	Logger  LoggerConfig  `yaml:"logger"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a configuration with every field set to its default.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads a YAML file and fills in defaults for the fields it leaves out.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, pkgerrors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML configuration. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document decodes to io.EOF and means all defaults.
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, pkgerrors.Wrap(err, "parse config")
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.StorageDir == "" {
		c.StorageDir = DefaultStorageDir
	}
	if c.LogDir == "" {
		c.LogDir = c.StorageDir
	}
	if c.BufferPoolPages == 0 {
		c.BufferPoolPages = DefaultBufferPoolPages
	}
	if c.CheckpointInterval == 0 {
		c.CheckpointInterval = DefaultCheckpointInterval
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
}

// Validate rejects values the database cannot run with.
func (c Config) Validate() error {
	if c.BufferPoolPages < 0 {
		return pkgerrors.Errorf("buffer_pool_pages must be positive, got %d", c.BufferPoolPages)
	}
	if c.CheckpointInterval < 0 {
		return pkgerrors.Errorf("checkpoint_interval must be positive, got %s", c.CheckpointInterval)
	}
	return nil
}
