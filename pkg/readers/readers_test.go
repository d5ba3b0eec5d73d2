package readers

import (
	"context"
	"io"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facet-org/facet/pkg/core"
)

func buildRecord(t *testing.T, sc *arrow.Schema, ids []int64) arrow.Record {
	t.Helper()
	b := array.NewRecordBuilder(memory.NewGoAllocator(), sc)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues(ids, nil)
	return b.NewRecord()
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	_, err := DefaultFactory.Create(core.ReaderConfig{Type: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unsupported reader type")
}

func TestFactoryRegistersBuiltins(t *testing.T) {
	for _, typ := range []string{"parquet", "arrow", "csv"} {
		_, err := DefaultFactory.Create(core.ReaderConfig{Type: typ})
		assert.ErrorContains(t, err, "path is required", typ)
	}
}

func TestFileReadersRequirePath(t *testing.T) {
	_, err := NewParquetReader(core.ReaderConfig{})
	assert.Error(t, err)
	_, err = NewArrowReader(core.ReaderConfig{})
	assert.Error(t, err)
	_, err = NewCSVReader(core.ReaderConfig{})
	assert.Error(t, err)
}

func TestADBCReaderValidatesConfig(t *testing.T) {
	_, err := NewADBCReader(core.ReaderConfig{})
	assert.ErrorContains(t, err, "driver is required")

	_, err = NewADBCReader(core.ReaderConfig{Driver: "duckdb"})
	assert.ErrorContains(t, err, "either query or table")
}

func TestMemoryReaderServesBatches(t *testing.T) {
	sc := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	first := buildRecord(t, sc, []int64{1, 2})
	second := buildRecord(t, sc, []int64{3})
	defer first.Release()
	defer second.Release()

	reader := NewMemoryReader(sc, []arrow.Record{first, second})
	defer reader.Close()

	ctx := context.Background()
	record, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, record.NumRows())

	record, err = reader.Read(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, record.NumRows())

	_, err = reader.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)

	assert.Same(t, sc, reader.Schema())
}

func TestMemoryReaderHonorsContext(t *testing.T) {
	sc := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	record := buildRecord(t, sc, []int64{1})
	defer record.Release()

	reader := NewMemoryReader(sc, []arrow.Record{record})
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reader.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryReaderOutlivesCallerRecords(t *testing.T) {
	sc := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	record := buildRecord(t, sc, []int64{7})

	reader := NewMemoryReader(sc, []arrow.Record{record})
	record.Release()
	defer reader.Close()

	got, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, int64(7), got.Column(0).(*array.Int64).Value(0))
}

func TestReadAllCombinesBatches(t *testing.T) {
	sc := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	first := buildRecord(t, sc, []int64{1, 2})
	defer first.Release()
	second := buildRecord(t, sc, []int64{3})
	defer second.Release()

	reader := NewMemoryReader(sc, []arrow.Record{first, second})
	defer reader.Close()

	combined, err := ReadAll(context.Background(), reader)
	require.NoError(t, err)
	defer combined.Release()

	require.EqualValues(t, 3, combined.NumRows())
	ids := combined.Column(0).(*array.Int64)
	assert.EqualValues(t, 1, ids.Value(0))
	assert.EqualValues(t, 3, ids.Value(2))
}

func TestReadAllEmptyReader(t *testing.T) {
	sc := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)

	reader := NewMemoryReader(sc, nil)
	defer reader.Close()

	combined, err := ReadAll(context.Background(), reader)
	require.NoError(t, err)
	defer combined.Release()

	assert.EqualValues(t, 0, combined.NumRows())
	assert.Equal(t, 1, len(combined.Columns()))
}
