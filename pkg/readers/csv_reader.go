package readers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/facet-org/facet/pkg/core"
)

// CSVReader streams record batches out of a CSV file, inferring column
// types from the data. Empty fields read as nulls.
type CSVReader struct {
	schema *arrow.Schema
	file   *os.File
	reader *csv.Reader
}

// NewCSVReader creates a new CSV reader.
func NewCSVReader(config core.ReaderConfig) (core.DatasetReader, error) {
	if config.Path == "" {
		return nil, errors.New("path is required for CSV reader")
	}

	chunkSize := config.BatchSize
	if chunkSize <= 0 {
		chunkSize = 10000
	}

	f, err := os.Open(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}

	reader := csv.NewInferringReader(
		f,
		csv.WithChunk(int(chunkSize)),
		csv.WithHeader(true),
		csv.WithNullReader(true, ""),
		csv.WithAllocator(memory.NewGoAllocator()),
	)

	return &CSVReader{
		file:   f,
		reader: reader,
	}, nil
}

// Read returns the next batch of records. The returned record stays valid
// until the next Read call; retain it to keep it longer.
func (r *CSVReader) Read(ctx context.Context) (arrow.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if !r.reader.Next() {
		if err := r.reader.Err(); err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		return nil, io.EOF
	}

	// The inferring reader knows its schema only after the first batch.
	if r.schema == nil {
		r.schema = r.reader.Schema()
	}
	return r.reader.Record(), nil
}

// Schema returns the schema of the dataset. It is nil until the first
// batch has been read.
func (r *CSVReader) Schema() *arrow.Schema {
	if r.schema == nil {
		r.schema = r.reader.Schema()
	}
	return r.schema
}

// Close closes the reader and releases resources.
func (r *CSVReader) Close() error {
	if r.reader != nil {
		r.reader.Release()
		r.reader = nil
	}
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
