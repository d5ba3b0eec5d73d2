package readers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/facet-org/facet/pkg/core"
)

// ReadAll drains the reader and combines every batch into a single record.
// The caller owns the returned record and must release it. Large datasets
// are better consumed batch by batch through Read.
func ReadAll(ctx context.Context, reader core.DatasetReader) (arrow.Record, error) {
	var records []arrow.Record
	defer func() {
		for _, record := range records {
			record.Release()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := reader.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record batch: %w", err)
		}
		if record == nil {
			break
		}
		record.Retain()
		records = append(records, record)
	}

	schema := reader.Schema()
	if schema == nil {
		return nil, errors.New("reader produced no schema")
	}

	if len(records) == 0 {
		b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
		defer b.Release()
		return b.NewRecord(), nil
	}
	if len(records) == 1 {
		record := records[0]
		records = nil
		return record, nil
	}

	table := array.NewTableFromRecords(schema, records)
	defer table.Release()

	tableReader := array.NewTableReader(table, table.NumRows())
	defer tableReader.Release()

	if !tableReader.Next() {
		if err := tableReader.Err(); err != nil {
			return nil, fmt.Errorf("failed to combine record batches: %w", err)
		}
		return nil, errors.New("failed to combine record batches")
	}
	combined := tableReader.Record()
	combined.Retain()
	return combined, nil
}
