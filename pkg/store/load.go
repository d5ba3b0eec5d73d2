package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/sync/errgroup"

	"github.com/facet-org/facet/pkg/arrowconv"
	"github.com/facet-org/facet/pkg/coldata"
	"github.com/facet-org/facet/pkg/core"
	"github.com/facet-org/facet/pkg/problem"
	"github.com/facet-org/facet/pkg/schema"
)

// Load reads the whole dataset from the source and assembles a store over
// it. Eager columns are materialized into typed arrays in parallel; lazy
// columns keep only their null states in memory and resolve values through
// the cell cache on demand.
func Load(ctx context.Context, source Source, opts Options) (*Store, error) {
	ds, err := buildFromSource(ctx, source, opts)
	if err != nil {
		return nil, err
	}
	s := newStore(ds.columns, ds.data, ds.length, source, opts)
	s.fetcher = ds.fetcher
	s.release = ds.release
	return s, nil
}

// dataset is the loaded content handed from the loader to the store.
type dataset struct {
	columns  []schema.Column
	colIndex map[string]int
	data     map[string]coldata.Data
	length   int
	fetcher  core.CellFetcher
	release  func()
}

func buildFromSource(ctx context.Context, source Source, opts Options) (*dataset, error) {
	reader, err := source.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset source: %w", err)
	}
	defer reader.Close()
	return buildDataset(ctx, reader, opts)
}

func buildDataset(ctx context.Context, reader core.DatasetReader, opts Options) (*dataset, error) {
	table, err := readTable(ctx, reader)
	if err != nil {
		return nil, err
	}

	columns := schema.ColumnsFromArrow(reader.Schema())
	length := int(table.NumRows())
	data := make(map[string]coldata.Data, len(columns))

	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	var g errgroup.Group
	var mu sync.Mutex
	semaphore := make(chan struct{}, workers)

	needTable := false
	for i := range columns {
		if isLazyInStore(columns[i], opts) {
			needTable = true
		}

		i := i
		semaphore <- struct{}{}
		g.Go(func() error {
			defer func() { <-semaphore }()

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			chunks := table.Column(i).Data().Chunks()
			d, categories, err := materializeColumn(chunks, columns[i], length, opts)
			if err != nil {
				return fmt.Errorf("failed to materialize column %q: %w", columns[i].Key, err)
			}

			if categories != nil {
				columns[i].Type.Categories = categories
			}
			mu.Lock()
			data[columns[i].Key] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		table.Release()
		return nil, err
	}

	ds := &dataset{
		columns:  columns,
		colIndex: indexColumns(columns),
		data:     data,
		length:   length,
	}
	if needTable {
		fetcher := &tableFetcher{table: table, cols: ds.colIndex}
		ds.fetcher = fetcher
		ds.release = fetcher.Release
	} else {
		table.Release()
	}
	return ds, nil
}

// readTable drains the reader into a single Arrow table.
func readTable(ctx context.Context, reader core.DatasetReader) (arrow.Table, error) {
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

	if len(records) == 0 {
		empty := emptyRecord(reader.Schema())
		defer empty.Release()
		return array.NewTableFromRecords(reader.Schema(), []arrow.Record{empty}), nil
	}
	return array.NewTableFromRecords(reader.Schema(), records), nil
}

func emptyRecord(sc *arrow.Schema) arrow.Record {
	arrays := make([]arrow.Array, len(sc.Fields()))
	for i, field := range sc.Fields() {
		builder := array.NewBuilder(memory.DefaultAllocator, field.Type)
		arrays[i] = builder.NewArray()
		builder.Release()
	}
	record := array.NewRecord(sc, arrays, 0)
	for _, arr := range arrays {
		arr.Release()
	}
	return record
}

// isLazyInStore decides whether a column's values stay out of memory.
// String columns are lazy only when the options say so.
func isLazyInStore(col schema.Column, opts Options) bool {
	if !col.Lazy() {
		return false
	}
	if col.Kind() == schema.KindString {
		return opts.LazyStrings
	}
	return true
}

func materializeColumn(chunks []arrow.Array, col schema.Column, length int, opts Options) (coldata.Data, *schema.CategoryMap, error) {
	if isLazyInStore(col, opts) {
		return scanLazyColumn(chunks, col, length), nil, nil
	}

	switch col.Kind() {
	case schema.KindInt:
		values := make([]int64, 0, length)
		valid := make([]bool, 0, length)
		for _, chunk := range chunks {
			for row := 0; row < chunk.Len(); row++ {
				v, ok := arrowconv.Int64At(chunk, row)
				values = append(values, v)
				valid = append(valid, ok)
			}
		}
		return coldata.NewIntData(values, valid), nil, nil

	case schema.KindFloat:
		values := make([]float64, 0, length)
		for _, chunk := range chunks {
			for row := 0; row < chunk.Len(); row++ {
				v, ok := arrowconv.Float64At(chunk, row)
				if !ok {
					v = math.NaN()
				}
				values = append(values, v)
			}
		}
		return coldata.NewFloatData(values), nil, nil

	case schema.KindBool:
		values := make([]bool, 0, length)
		valid := make([]bool, 0, length)
		for _, chunk := range chunks {
			for row := 0; row < chunk.Len(); row++ {
				v, ok := arrowconv.BoolAt(chunk, row)
				values = append(values, v)
				valid = append(valid, ok)
			}
		}
		return coldata.NewBoolData(values, valid), nil, nil

	case schema.KindString:
		values := make([]string, 0, length)
		valid := make([]bool, 0, length)
		for _, chunk := range chunks {
			for row := 0; row < chunk.Len(); row++ {
				v, ok := arrowconv.StringAt(chunk, row)
				values = append(values, v)
				valid = append(valid, ok)
			}
		}
		return coldata.NewStringData(values, valid), nil, nil

	case schema.KindDateTime:
		epochs := make([]int64, 0, length)
		valid := make([]bool, 0, length)
		for _, chunk := range chunks {
			for row := 0; row < chunk.Len(); row++ {
				v, ok := arrowconv.TimestampMicrosAt(chunk, row)
				epochs = append(epochs, v)
				valid = append(valid, ok)
			}
		}
		return coldata.NewTimeData(epochs, valid), nil, nil

	case schema.KindCategory:
		return materializeCategory(chunks, length)

	case schema.KindWindow, schema.KindBoundingBox:
		d := coldata.NewGenericData(col.Kind(), length)
		row := 0
		for _, chunk := range chunks {
			for r := 0; r < chunk.Len(); r++ {
				if v, ok := arrowconv.FloatsAt(chunk, r); ok {
					d.SetValue(row, v)
				} else {
					d.SetValue(row, nil)
				}
				row++
			}
		}
		return d, nil, nil

	default:
		d := coldata.NewGenericData(col.Kind(), length)
		row := 0
		for _, chunk := range chunks {
			for r := 0; r < chunk.Len(); r++ {
				d.SetValue(row, arrowconv.ValueAt(chunk, r))
				row++
			}
		}
		return d, nil, nil
	}
}

// materializeCategory decodes dictionary chunks into compact codes. Labels
// are numbered in first-encounter order across chunks, so chunk-local
// dictionaries with differing contents still share one mapping.
func materializeCategory(chunks []arrow.Array, length int) (coldata.Data, *schema.CategoryMap, error) {
	codes := make([]int32, 0, length)
	var labels []string
	labelCodes := make(map[string]int32)

	for _, chunk := range chunks {
		dict, ok := chunk.(*array.Dictionary)
		if !ok {
			return nil, nil, fmt.Errorf("expected dictionary chunk, got %s", chunk.DataType())
		}
		values, ok := dict.Dictionary().(array.StringLike)
		if !ok {
			return nil, nil, fmt.Errorf("expected string dictionary values, got %s", dict.Dictionary().DataType())
		}
		for row := 0; row < chunk.Len(); row++ {
			if dict.IsNull(row) {
				codes = append(codes, -1)
				continue
			}
			label := values.Value(dict.GetValueIndex(row))
			code, seen := labelCodes[label]
			if !seen {
				code = int32(len(labels))
				labels = append(labels, label)
				labelCodes[label] = code
			}
			codes = append(codes, code)
		}
	}

	m := schema.NewCategoryMap(labels)
	return coldata.NewCategoryData(codes, m), m, nil
}

// scanLazyColumn records which rows of a lazy column are known missing, so
// filters and sorting treat them correctly without fetching any values.
func scanLazyColumn(chunks []arrow.Array, col schema.Column, length int) coldata.Data {
	d := coldata.NewGenericData(col.Kind(), length)
	row := 0
	for _, chunk := range chunks {
		for r := 0; r < chunk.Len(); r++ {
			if chunk.IsNull(r) {
				d.SetValue(row, nil)
			}
			row++
		}
	}
	return d
}

// tableFetcher serves lazy cell values from the retained Arrow table. It is
// the local stand-in for a remote cell source; the requested encoding is
// accepted but has no effect on raw table values.
type tableFetcher struct {
	table arrow.Table
	cols  map[string]int
}

func (f *tableFetcher) FetchCell(ctx context.Context, column string, row int, generation int64, encoding string) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	i, ok := f.cols[column]
	if !ok {
		return nil, problem.Newf(problem.TypeNotFound, "unknown column", "no column named %q", column)
	}
	if row < 0 || row >= int(f.table.NumRows()) {
		return nil, problem.Newf(problem.TypeInvalid, "row out of range", "row %d outside dataset of %d rows", row, f.table.NumRows())
	}

	for _, chunk := range f.table.Column(i).Data().Chunks() {
		if row < chunk.Len() {
			return arrowconv.ValueAt(chunk, row), nil
		}
		row -= chunk.Len()
	}
	return nil, problem.New(problem.TypeInternal, "cell lookup failed", "row beyond column chunks")
}

// Release drops the fetcher's reference to the Arrow table.
func (f *tableFetcher) Release() {
	f.table.Release()
}
