package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facet-org/facet/pkg/coldata"
	"github.com/facet-org/facet/pkg/schema"
	"github.com/facet-org/facet/pkg/sortindex"
)

// captureWriter collects written records for inspection.
type captureWriter struct {
	records []arrow.Record
}

func (w *captureWriter) Write(ctx context.Context, record arrow.Record) error {
	record.Retain()
	w.records = append(w.records, record)
	return nil
}

func (w *captureWriter) Close() error {
	for _, record := range w.records {
		record.Release()
	}
	w.records = nil
	return nil
}

func (w *captureWriter) rows() int {
	total := 0
	for _, record := range w.records {
		total += int(record.NumRows())
	}
	return total
}

func newExportStore(t *testing.T) *Store {
	t.Helper()
	columns := []schema.Column{
		{Key: "age", Name: "age", Type: schema.DType{Kind: schema.KindFloat}},
		{Key: "name", Name: "name", Type: schema.DType{Kind: schema.KindString}},
	}
	data := map[string]coldata.Data{
		"age":  coldata.NewFloatData([]float64{3, 1, 2}),
		"name": coldata.NewStringData([]string{"cy", "ada", "bo"}, nil),
	}
	s, err := New(columns, data, Options{})
	require.NoError(t, err)
	return s
}

func TestExportViewWritesSortedRows(t *testing.T) {
	s := newExportStore(t)
	w := &captureWriter{}
	defer w.Close()

	keys := []sortindex.Key{{Column: "age", Direction: sortindex.Ascending}}
	require.NoError(t, s.ExportView(context.Background(), ViewFull, keys, w, 0))

	require.Len(t, w.records, 1)
	record := w.records[0]
	require.EqualValues(t, 3, record.NumRows())

	ages := record.Column(0).(*array.Float64)
	names := record.Column(1).(*array.String)
	assert.Equal(t, []float64{1, 2, 3}, []float64{ages.Value(0), ages.Value(1), ages.Value(2)})
	assert.Equal(t, "ada", names.Value(0))
	assert.Equal(t, "cy", names.Value(2))
}

func TestExportViewBatches(t *testing.T) {
	s := newExportStore(t)
	w := &captureWriter{}
	defer w.Close()

	require.NoError(t, s.ExportView(context.Background(), ViewFull, nil, w, 2))

	require.Len(t, w.records, 2)
	assert.EqualValues(t, 2, w.records[0].NumRows())
	assert.EqualValues(t, 1, w.records[1].NumRows())
	assert.Equal(t, 3, w.rows())
}

func TestExportViewRespectsView(t *testing.T) {
	s := newExportStore(t)
	require.NoError(t, s.SelectRows([]int{0, 2}))

	w := &captureWriter{}
	defer w.Close()
	require.NoError(t, s.ExportView(context.Background(), ViewSelected, nil, w, 0))

	require.Len(t, w.records, 1)
	record := w.records[0]
	require.EqualValues(t, 2, record.NumRows())
	names := record.Column(1).(*array.String)
	assert.Equal(t, "cy", names.Value(0))
	assert.Equal(t, "bo", names.Value(1))
}

func TestExportEmptyViewWritesSchema(t *testing.T) {
	s := newExportStore(t)
	w := &captureWriter{}
	defer w.Close()

	require.NoError(t, s.ExportView(context.Background(), ViewSelected, nil, w, 0))

	require.Len(t, w.records, 1)
	assert.EqualValues(t, 0, w.records[0].NumRows())
	assert.Equal(t, 2, len(w.records[0].Schema().Fields()))
}

type rowPayloadFetcher struct{}

func (rowPayloadFetcher) FetchCell(ctx context.Context, column string, row int, generation int64, encoding string) (any, error) {
	return []byte(fmt.Sprintf("blob-%d", row)), nil
}

func TestExportResolvesLazyCells(t *testing.T) {
	columns := []schema.Column{
		{Key: "photo", Name: "photo", Type: schema.DType{Kind: schema.KindImage}},
	}
	data := map[string]coldata.Data{
		"photo": coldata.NewGenericData(schema.KindImage, 2),
	}
	s, err := New(columns, data, Options{Fetcher: rowPayloadFetcher{}})
	require.NoError(t, err)

	w := &captureWriter{}
	defer w.Close()
	require.NoError(t, s.ExportView(context.Background(), ViewFull, nil, w, 0))

	require.Len(t, w.records, 1)
	photos := w.records[0].Column(0).(*array.Binary)
	assert.Equal(t, []byte("blob-0"), photos.Value(0))
	assert.Equal(t, []byte("blob-1"), photos.Value(1))
}
