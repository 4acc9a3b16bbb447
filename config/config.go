// Package config defines the engine configuration, loadable from YAML with
// sensible defaults for every field.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMemtableThresholdBytes is the rotation threshold of the
	// mutable memtable.
	DefaultMemtableThresholdBytes = 4 * 1024
	// DefaultSSTableDiskLimitBytes is the soft limit on total SSTable
	// bytes before size-triggered compaction runs.
	DefaultSSTableDiskLimitBytes = 1024 * 1024 * 1024
	// DefaultMaxSSTableFiles is the soft limit on flushed SSTable files
	// before count-triggered compaction runs.
	DefaultMaxSSTableFiles = 10
	// DefaultBloomFPRate is the per-file Bloom filter target false
	// positive rate.
	DefaultBloomFPRate = 0.01
)

// MemtableConfig holds memtable-specific configuration.
type MemtableConfig struct {
	SizeThresholdBytes int64 `yaml:"size_threshold_bytes"`
}

// SSTableConfig holds SSTable and compaction configuration.
type SSTableConfig struct {
	DiskLimitBytes    int64   `yaml:"disk_limit_bytes"`
	MaxFileCount      int     `yaml:"max_file_count"`
	BloomFilterFPRate float64 `yaml:"bloom_filter_fp_rate"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Output string `yaml:"output"` // "stdout", "stderr", or a file path
}

// Config is the full engine configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Memtable MemtableConfig `yaml:"memtable"`
	SSTable  SSTableConfig  `yaml:"sstable"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DefaultConfig returns a Config populated with the default thresholds.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Memtable: MemtableConfig{
			SizeThresholdBytes: DefaultMemtableThresholdBytes,
		},
		SSTable: SSTableConfig{
			DiskLimitBytes:    DefaultSSTableDiskLimitBytes,
			MaxFileCount:      DefaultMaxSSTableFiles,
			BloomFilterFPRate: DefaultBloomFPRate,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
		},
	}
}

// Load reads a YAML config file, layering it over the defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML from r over the defaults and validates the result.
func Parse(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if c.Memtable.SizeThresholdBytes <= 0 {
		return fmt.Errorf("config: memtable.size_threshold_bytes must be positive, got %d", c.Memtable.SizeThresholdBytes)
	}
	if c.SSTable.DiskLimitBytes <= 0 {
		return fmt.Errorf("config: sstable.disk_limit_bytes must be positive, got %d", c.SSTable.DiskLimitBytes)
	}
	if c.SSTable.MaxFileCount <= 0 {
		return fmt.Errorf("config: sstable.max_file_count must be positive, got %d", c.SSTable.MaxFileCount)
	}
	if c.SSTable.BloomFilterFPRate <= 0 || c.SSTable.BloomFilterFPRate >= 1 {
		return fmt.Errorf("config: sstable.bloom_filter_fp_rate must be in (0, 1), got %g", c.SSTable.BloomFilterFPRate)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps the configured level string onto a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.Logging.Level {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown logging level %q", c.Logging.Level)
	}
}

// NewLogger builds a slog.Logger per the logging configuration.
func (c *Config) NewLogger() (*slog.Logger, error) {
	level, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}
	var out io.Writer
	switch c.Logging.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(c.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log output %s: %w", c.Logging.Output, err)
		}
		out = f
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
}
