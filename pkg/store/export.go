package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/facet-org/facet/pkg/core"
	"github.com/facet-org/facet/pkg/schema"
	"github.com/facet-org/facet/pkg/sortindex"
)

// DefaultExportBatchSize is the record batch size used when the caller does
// not specify one.
const DefaultExportBatchSize = 1024

// ExportView writes the rows of a view, in sorted display order, through
// the given writer. Lazy cells are resolved through the cell cache, so an
// export of a media column pulls every exported value. The caller owns the
// writer and closes it after a successful export.
func (s *Store) ExportView(ctx context.Context, view View, keys []sortindex.Key, writer core.DatasetWriter, batchSize int) error {
	if writer == nil {
		return errors.New("cannot export to a nil writer")
	}
	if batchSize <= 0 {
		batchSize = DefaultExportBatchSize
	}

	mapping, err := s.Sorting(view, keys)
	if err != nil {
		return err
	}
	order := mapping.Order()
	columns := s.Columns()

	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema.ArrowSchemaFromColumns(columns))
	defer builder.Release()

	flush := func() error {
		record := builder.NewRecord()
		defer record.Release()
		return writer.Write(ctx, record)
	}

	pending := 0
	for _, row := range order {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for i, col := range columns {
			value, err := s.CellValue(ctx, col.Key, row, "")
			if err != nil {
				return fmt.Errorf("failed to resolve %s[%d] for export: %w", col.Key, row, err)
			}
			if err := appendCell(builder.Field(i), col, value); err != nil {
				return fmt.Errorf("failed to encode %s[%d]: %w", col.Key, row, err)
			}
		}
		pending++
		if pending >= batchSize {
			if err := flush(); err != nil {
				return err
			}
			pending = 0
		}
	}

	if pending > 0 || len(order) == 0 {
		return flush()
	}
	return nil
}

func appendCell(fb array.Builder, col schema.Column, value any) error {
	if value == nil {
		fb.AppendNull()
		return nil
	}

	switch col.Kind() {
	case schema.KindInt:
		b := fb.(*array.Int64Builder)
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("expected int64, got %T", value)
		}
		b.Append(v)

	case schema.KindFloat:
		b := fb.(*array.Float64Builder)
		v, ok := value.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", value)
		}
		b.Append(v)

	case schema.KindBool:
		b := fb.(*array.BooleanBuilder)
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		b.Append(v)

	case schema.KindString:
		b := fb.(*array.StringBuilder)
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		b.Append(v)

	case schema.KindCategory:
		b := fb.(*array.BinaryDictionaryBuilder)
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected category label, got %T", value)
		}
		return b.AppendString(v)

	case schema.KindDateTime:
		b := fb.(*array.TimestampBuilder)
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time, got %T", value)
		}
		b.Append(arrow.Timestamp(v.UnixMicro()))

	case schema.KindWindow, schema.KindBoundingBox, schema.KindEmbedding:
		if b, ok := fb.(*array.FixedSizeListBuilder); ok {
			return appendFixedFloats(b, value)
		}
		return appendFloats(fb.(*array.ListBuilder), value)

	case schema.KindArray, schema.KindSequence1D:
		return appendFloats(fb.(*array.ListBuilder), value)

	case schema.KindImage, schema.KindAudio, schema.KindVideo, schema.KindMesh:
		b := fb.(*array.BinaryBuilder)
		switch v := value.(type) {
		case []byte:
			b.Append(v)
		case string:
			b.Append([]byte(v))
		default:
			return fmt.Errorf("expected bytes or reference, got %T", value)
		}

	default:
		b := fb.(*array.StringBuilder)
		b.Append(fmt.Sprint(value))
	}
	return nil
}

func appendFixedFloats(b *array.FixedSizeListBuilder, value any) error {
	floats, ok := floatsOf(value)
	width := int(b.Type().(*arrow.FixedSizeListType).Len())
	if !ok || len(floats) != width {
		b.AppendNull()
		return nil
	}
	b.Append(true)
	vb := b.ValueBuilder().(*array.Float64Builder)
	for _, v := range floats {
		vb.Append(v)
	}
	return nil
}

func appendFloats(b *array.ListBuilder, value any) error {
	floats, ok := floatsOf(value)
	if !ok {
		b.AppendNull()
		return nil
	}
	b.Append(true)
	vb := b.ValueBuilder().(*array.Float64Builder)
	for _, v := range floats {
		vb.Append(v)
	}
	return nil
}

func floatsOf(value any) ([]float64, bool) {
	switch v := value.(type) {
	case []float64:
		return v, true
	case []float32:
		out := make([]float64, len(v))
		for i, f := range v {
			out[i] = float64(f)
		}
		return out, true
	case []int64:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out, true
	case []int:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out, true
	case []any:
		out := make([]float64, 0, len(v))
		for _, e := range v {
			switch n := e.(type) {
			case float64:
				out = append(out, n)
			case float32:
				out = append(out, float64(n))
			case int64:
				out = append(out, float64(n))
			case int:
				out = append(out, float64(n))
			default:
				return nil, false
			}
		}
		return out, true
	default:
		return nil, false
	}
}
