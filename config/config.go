// Package config loads and validates the facet configuration file.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/facet-org/facet/pkg/core"
)

// --- Configuration Structs ---

// DatasetConfig names the dataset to serve. File-backed datasets set Path;
// database-backed datasets set ConnectionString plus Table or Query.
type DatasetConfig struct {
	Path             string `yaml:"path,omitempty" mapstructure:"path"`
	Type             string `yaml:"type,omitempty" mapstructure:"type"`
	ConnectionString string `yaml:"connection_string,omitempty" mapstructure:"connection_string"`
	Driver           string `yaml:"driver,omitempty" mapstructure:"driver"`
	Table            string `yaml:"table,omitempty" mapstructure:"table"`
	Query            string `yaml:"query,omitempty" mapstructure:"query"`
	BatchSize        int64  `yaml:"batch_size,omitempty" mapstructure:"batch_size"`
}

// StoreConfig tunes the in-memory dataset store.
type StoreConfig struct {
	CacheCapacity int  `yaml:"cache_capacity,omitempty" mapstructure:"cache_capacity"`
	Workers       int  `yaml:"workers,omitempty" mapstructure:"workers"`
	LazyStrings   bool `yaml:"lazy_strings" mapstructure:"lazy_strings"`
}

// ServerConfig tunes the HTTP API server.
type ServerConfig struct {
	Port    string `yaml:"port" mapstructure:"port"`
	Prefork bool   `yaml:"prefork,omitempty" mapstructure:"prefork"`
}

// ComputeConfig points at the dimensionality reduction service. An empty URL
// leaves the compute endpoints disabled.
type ComputeConfig struct {
	URL       string `yaml:"url,omitempty" mapstructure:"url"`
	QueueSize int    `yaml:"queue_size,omitempty" mapstructure:"queue_size"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file,omitempty" mapstructure:"file"`
}

type Config struct {
	Dataset DatasetConfig `yaml:"dataset" mapstructure:"dataset"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Compute ComputeConfig `yaml:"compute" mapstructure:"compute"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// --- Load Configuration ---

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Store:   StoreConfig{LazyStrings: true},
		Server:  ServerConfig{Port: "3000"},
		Logging: LoggingConfig{Level: "info", File: "facet.log"},
	}
}

// LoadConfig reads a yaml configuration file. Keys absent from the file keep
// their DefaultConfig values.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	def := DefaultConfig()
	v.SetDefault("store.lazy_strings", def.Store.LazyStrings)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.file", def.Logging.File)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ReaderConfig maps the dataset section onto the reader factory config.
func (d DatasetConfig) ReaderConfig() core.ReaderConfig {
	return core.ReaderConfig{
		Type:             d.Type,
		Path:             d.Path,
		ConnectionString: d.ConnectionString,
		Driver:           d.Driver,
		Table:            d.Table,
		Query:            d.Query,
		BatchSize:        d.BatchSize,
	}
}

// --- Validation Functions ---

// validate is a helper function to reduce repetition.
func validate(condition bool, format string, a ...any) error {
	if !condition {
		return fmt.Errorf(format, a...)
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Dataset.Validate(); err != nil {
		return fmt.Errorf("dataset validation failed: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := c.Compute.Validate(); err != nil {
		return fmt.Errorf("compute validation failed: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}
	return nil
}

func (d *DatasetConfig) Validate() error {
	if err := validate(d.Path != "" || d.ConnectionString != "", "dataset path or connection string is required"); err != nil {
		return err
	}
	if d.ConnectionString != "" {
		if err := validate(d.Driver != "", "driver is required for connection string datasets"); err != nil {
			return err
		}
		if err := validate(d.Table != "" || d.Query != "", "table or query is required for connection string datasets"); err != nil {
			return err
		}
	}
	return validate(d.BatchSize >= 0, "batch size must not be negative")
}

func (s *StoreConfig) Validate() error {
	if err := validate(s.CacheCapacity >= 0, "cache capacity must not be negative"); err != nil {
		return err
	}
	return validate(s.Workers >= 0, "workers must not be negative")
}

func (s *ServerConfig) Validate() error {
	return validate(s.Port != "", "server port is required")
}

func (c *ComputeConfig) Validate() error {
	return validate(c.QueueSize >= 0, "queue size must not be negative")
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %q", l.Level)
}
