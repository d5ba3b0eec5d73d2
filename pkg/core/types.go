// Package core provides the core types and interfaces shared across Facet's
// dataset sources, writers, and cell value providers.
package core

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// DatasetReader defines an interface for reading data from various sources.
type DatasetReader interface {
	// Read returns a record batch and an error if any.
	// Returns io.EOF when there are no more batches.
	Read(ctx context.Context) (arrow.Record, error)

	// Schema returns the schema of the dataset.
	Schema() *arrow.Schema

	// Close closes the reader and releases resources.
	Close() error
}

// DatasetWriter defines an interface for writing data to various destinations.
type DatasetWriter interface {
	// Write writes a record to the destination.
	Write(ctx context.Context, record arrow.Record) error

	// Close closes the writer and flushes any pending data.
	Close() error
}

// CellFetcher retrieves a single out-of-band cell value. Implementations back
// lazy columns whose values are not held in memory (media blobs, long strings,
// embeddings).
type CellFetcher interface {
	// FetchCell returns the value of one cell, identified by column key and
	// row index. The generation identifies the dataset version the caller
	// expects; encoding selects an alternate representation of the value
	// (for example a thumbnail) and may be empty for the default one.
	FetchCell(ctx context.Context, column string, row int, generation int64, encoding string) (any, error)
}

// ReaderConfig provides configuration for creating a reader.
type ReaderConfig struct {
	// Type is the type of the reader.
	Type string

	// Path is the path to the file or directory.
	Path string

	// ConnectionString is the connection string for a database.
	ConnectionString string

	// Driver is the database driver to load for database-backed readers.
	Driver string

	// Table is the table name for a database.
	Table string

	// Query is the query to execute for a database.
	Query string

	// BatchSize is the size of batches to read.
	BatchSize int64
}

// WriterConfig provides configuration for creating a writer.
type WriterConfig struct {
	// Type is the type of the writer.
	Type string

	// Path is the path to the file or directory.
	Path string

	// BatchSize is the size of batches to write.
	BatchSize int64
}
