package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facet.yaml")
	content := `dataset:
  path: data/demo.parquet
store:
  cache_capacity: 4096
  lazy_strings: false
server:
  port: "8080"
compute:
  url: ws://127.0.0.1:8000/ws
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "data/demo.parquet", cfg.Dataset.Path)
	assert.Equal(t, 4096, cfg.Store.CacheCapacity)
	assert.False(t, cfg.Store.LazyStrings)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "ws://127.0.0.1:8000/ws", cfg.Compute.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, "facet.log", cfg.Logging.File)

	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.True(t, cfg.Store.LazyStrings)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidateDatasetConfig(t *testing.T) {
	valid := DatasetConfig{Path: "data/demo.parquet"}
	assert.NoError(t, valid.Validate())

	db := DatasetConfig{ConnectionString: "host=localhost", Driver: "adbc_driver_postgresql", Table: "events"}
	assert.NoError(t, db.Validate())

	empty := DatasetConfig{}
	assert.Error(t, empty.Validate())

	noDriver := DatasetConfig{ConnectionString: "host=localhost", Table: "events"}
	assert.Error(t, noDriver.Validate())

	noTable := DatasetConfig{ConnectionString: "host=localhost", Driver: "adbc_driver_postgresql"}
	assert.Error(t, noTable.Validate())
}

func TestValidateStoreConfig(t *testing.T) {
	valid := StoreConfig{CacheCapacity: 1024, Workers: 4}
	assert.NoError(t, valid.Validate())

	invalid := StoreConfig{CacheCapacity: -1}
	assert.Error(t, invalid.Validate())
}

func TestValidateLoggingConfig(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "error"} {
		cfg := LoggingConfig{Level: level}
		assert.NoError(t, cfg.Validate())
	}

	bad := LoggingConfig{Level: "loud"}
	assert.Error(t, bad.Validate())
}

func TestReaderConfigBridge(t *testing.T) {
	d := DatasetConfig{Path: "data/demo.parquet", Type: "parquet", BatchSize: 512}
	rc := d.ReaderConfig()
	assert.Equal(t, "data/demo.parquet", rc.Path)
	assert.Equal(t, "parquet", rc.Type)
	assert.Equal(t, int64(512), rc.BatchSize)
}
