package readers

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/facet-org/facet/pkg/core"
)

// MemoryReader serves pre-built record batches from memory. It backs
// in-process datasets and tests. The reader retains the given records and
// releases them on Close.
type MemoryReader struct {
	schema  *arrow.Schema
	records []arrow.Record
	pos     int
}

// NewMemoryReader creates a reader over the given records.
func NewMemoryReader(schema *arrow.Schema, records []arrow.Record) *MemoryReader {
	owned := make([]arrow.Record, len(records))
	for i, record := range records {
		record.Retain()
		owned[i] = record
	}
	return &MemoryReader{schema: schema, records: owned}
}

// Read returns the next batch of records.
func (r *MemoryReader) Read(ctx context.Context) (arrow.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if r.pos >= len(r.records) {
		return nil, io.EOF
	}
	record := r.records[r.pos]
	r.pos++
	return record, nil
}

// Schema returns the schema of the dataset.
func (r *MemoryReader) Schema() *arrow.Schema {
	return r.schema
}

// Close releases the retained records.
func (r *MemoryReader) Close() error {
	for _, record := range r.records {
		record.Release()
	}
	r.records = nil
	return nil
}

var _ core.DatasetReader = (*MemoryReader)(nil)
