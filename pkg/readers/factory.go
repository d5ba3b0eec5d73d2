// Package readers provides dataset readers for the sources Facet can serve:
// Parquet and Arrow IPC files, CSV files, ADBC-connected databases, and
// in-memory record batches.
package readers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/facet-org/facet/pkg/core"
)

// Factory creates a reader based on the given configuration.
type Factory struct {
	readers map[string]Creator
}

// Creator is a function that creates a reader from a configuration.
type Creator func(config core.ReaderConfig) (core.DatasetReader, error)

// NewFactory creates a new reader factory.
func NewFactory() *Factory {
	return &Factory{
		readers: make(map[string]Creator),
	}
}

// Register registers a creator for a reader type.
func (f *Factory) Register(typ string, creator Creator) {
	f.readers[typ] = creator
}

// Create creates a reader based on the given configuration.
func (f *Factory) Create(config core.ReaderConfig) (core.DatasetReader, error) {
	creator, ok := f.readers[config.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported reader type: %s", config.Type)
	}
	return creator(config)
}

// TypeFromPath infers the reader type from a file extension.
func TypeFromPath(path string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "parquet", "pq":
		return "parquet", nil
	case "arrow", "arrows", "ipc", "feather":
		return "arrow", nil
	case "csv":
		return "csv", nil
	case "db", "duckdb", "ddb":
		return "duckdb", nil
	default:
		return "", fmt.Errorf("cannot infer reader type from path %q", path)
	}
}

// DefaultFactory is the default reader factory with built-in reader types.
var DefaultFactory = NewFactory()

func init() {
	DefaultFactory.Register("parquet", NewParquetReader)
	DefaultFactory.Register("arrow", NewArrowReader)
	DefaultFactory.Register("csv", NewCSVReader)
	DefaultFactory.Register("adbc", NewADBCReader)
	DefaultFactory.Register("duckdb", NewDuckDBReader)
}
