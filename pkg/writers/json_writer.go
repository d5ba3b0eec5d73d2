package writers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	json "github.com/goccy/go-json"

	"github.com/facet-org/facet/pkg/arrowconv"
	"github.com/facet-org/facet/pkg/core"
)

// JSONWriter writes record batches as one JSON array of row objects. NaN
// floats are written as null, since JSON has no NaN literal.
type JSONWriter struct {
	file     *os.File
	encoder  *json.Encoder
	firstRow bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(config core.WriterConfig) (core.DatasetWriter, error) {
	if config.Path == "" {
		return nil, errors.New("path is required for JSON writer")
	}

	file, err := os.Create(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON file: %w", err)
	}

	if _, err := file.WriteString("[\n"); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write opening bracket: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("  ", "  ")

	return &JSONWriter{
		file:     file,
		encoder:  encoder,
		firstRow: true,
	}, nil
}

// Write writes a record to the file.
func (w *JSONWriter) Write(ctx context.Context, record arrow.Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	numRows := int(record.NumRows())
	numCols := int(record.NumCols())

	for i := 0; i < numRows; i++ {
		row := make(map[string]any, numCols)
		for j := 0; j < numCols; j++ {
			name := record.Schema().Field(j).Name
			row[name] = jsonValue(record.Column(j), i)
		}

		if !w.firstRow {
			if _, err := w.file.WriteString(",\n"); err != nil {
				return fmt.Errorf("failed to write row separator: %w", err)
			}
		}
		w.firstRow = false

		if err := w.encoder.Encode(row); err != nil {
			return fmt.Errorf("failed to encode row: %w", err)
		}
	}
	return nil
}

func jsonValue(col arrow.Array, i int) any {
	return sanitizeJSON(arrowconv.ValueAt(col, i))
}

func sanitizeJSON(value any) any {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) {
			return nil
		}
	case []any:
		for i, e := range v {
			v[i] = sanitizeJSON(e)
		}
	}
	return value
}

// Close closes the writer and flushes any pending data.
func (w *JSONWriter) Close() error {
	var err error
	if w.file != nil {
		if _, writeErr := w.file.WriteString("\n]\n"); writeErr != nil {
			err = writeErr
		}
		if closeErr := w.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		w.file = nil
	}
	return err
}
