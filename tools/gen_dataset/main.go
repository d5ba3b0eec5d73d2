// Command gen_dataset generates a synthetic mixed-kind Parquet dataset for
// demos and tests: ints, floats with a configurable NaN rate, bools,
// strings, a dictionary-encoded category column, timestamps, and
// fixed-length embedding vectors.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

const (
	defaultRows     = 10000
	defaultOut      = "test_data/demo.parquet"
	defaultSeed     = 42
	defaultNullRate = 0.05
	defaultNaNRate  = 0.05
	defaultDim      = 8
	defaultBatch    = 4096

	adjectives = "brisk,calm,dusty,eager,fuzzy,gentle,hasty,ivory,jolly,keen,lunar,mellow,noble,opal,quiet,rusty,slate,tidal,umber,vivid"
	animals    = "otter,heron,lynx,mole,ibis,tapir,finch,gecko,stoat,wren,vole,skink,crane,bison,newt,shrew,kite,loach,murre,pika"
)

// Config holds the generator parameters.
type Config struct {
	rowCount   int
	outputPath string
	randomSeed int64
	nullRate   float64
	nanRate    float64
	categories []string
	embedDim   int
	batchSize  int
}

func main() {
	config := parseFlags()

	if err := os.MkdirAll(filepath.Dir(config.outputPath), 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	rnd := rand.New(rand.NewSource(config.randomSeed))

	log.Printf("Generating %s (%d rows, seed %d)", config.outputPath, config.rowCount, config.randomSeed)
	if err := generateParquetFile(config, rnd); err != nil {
		log.Fatalf("Failed to generate dataset: %v", err)
	}
	log.Printf("Done: %s", config.outputPath)
}

// parseFlags parses command-line arguments and returns a Config.
func parseFlags() Config {
	rowCount := flag.Int("rows", defaultRows, "Number of rows to generate")
	outputPath := flag.String("out", defaultOut, "Output path for the Parquet file")
	seed := flag.Int64("seed", defaultSeed, "Random seed for data generation")
	nullRate := flag.Float64("nulls", defaultNullRate, "Rate of NULL values in nullable columns (0.0-1.0)")
	nanRate := flag.Float64("nan", defaultNaNRate, "Rate of NaN values in float columns (0.0-1.0)")
	categories := flag.String("categories", "cat,dog,bird,fish", "Comma-separated labels for the category column")
	embedDim := flag.Int("dim", defaultDim, "Length of the embedding vectors")
	batchSize := flag.Int("batch", defaultBatch, "Rows per written record batch")

	flag.Parse()

	return Config{
		rowCount:   *rowCount,
		outputPath: *outputPath,
		randomSeed: *seed,
		nullRate:   *nullRate,
		nanRate:    *nanRate,
		categories: strings.Split(*categories, ","),
		embedDim:   *embedDim,
		batchSize:  *batchSize,
	}
}

// createSchema builds the mixed-kind dataset schema.
func createSchema(config Config) *arrow.Schema {
	fields := []arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "age", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "active", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		{Name: "category", Type: &arrow.DictionaryType{
			IndexType: arrow.PrimitiveTypes.Int32,
			ValueType: arrow.BinaryTypes.String,
		}, Nullable: true},
		{Name: "created_at", Type: &arrow.TimestampType{Unit: arrow.Millisecond}, Nullable: true},
		{Name: "embedding", Type: arrow.FixedSizeListOf(int32(config.embedDim), arrow.PrimitiveTypes.Float32), Nullable: true},
	}

	metadata := arrow.NewMetadata(
		[]string{"created_by", "timestamp"},
		[]string{"facet_gen_dataset", time.Now().Format(time.RFC3339)},
	)

	return arrow.NewSchema(fields, &metadata)
}

// generateParquetFile writes the dataset in batches.
func generateParquetFile(config Config, rnd *rand.Rand) error {
	schema := createSchema(config)

	file, err := os.Create(config.outputPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	mem := memory.NewGoAllocator()
	writer, err := pqarrow.NewFileWriter(schema, file, nil, pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(mem)))
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	batchSize := config.batchSize
	if batchSize <= 0 || batchSize > config.rowCount {
		batchSize = config.rowCount
	}
	totalBatches := (config.rowCount + batchSize - 1) / batchSize

	written := 0
	for batchNum := 0; batchNum < totalBatches; batchNum++ {
		size := batchSize
		if written+size > config.rowCount {
			size = config.rowCount - written
		}

		record := generateBatch(mem, schema, config, rnd, written, size)
		if err := writer.Write(record); err != nil {
			record.Release()
			writer.Close()
			return fmt.Errorf("failed to write batch %d: %w", batchNum, err)
		}
		record.Release()
		written += size

		if batchNum%10 == 0 || batchNum == totalBatches-1 {
			log.Printf("  Progress: %.1f%% (batch %d/%d)", float64(written)/float64(config.rowCount)*100, batchNum+1, totalBatches)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// generateBatch creates one record batch starting at the given row offset.
func generateBatch(mem memory.Allocator, schema *arrow.Schema, config Config, rnd *rand.Rand, startRow, size int) arrow.Record {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	idB := b.Field(0).(*array.Int64Builder)
	nameB := b.Field(1).(*array.StringBuilder)
	ageB := b.Field(2).(*array.Int32Builder)
	scoreB := b.Field(3).(*array.Float64Builder)
	activeB := b.Field(4).(*array.BooleanBuilder)
	categoryB := b.Field(5).(*array.BinaryDictionaryBuilder)
	createdB := b.Field(6).(*array.TimestampBuilder)
	embedB := b.Field(7).(*array.FixedSizeListBuilder)
	embedValuesB := embedB.ValueBuilder().(*array.Float32Builder)

	adjectiveList := strings.Split(adjectives, ",")
	animalList := strings.Split(animals, ",")
	baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < size; i++ {
		idB.Append(int64(startRow + i))

		if rnd.Float64() < config.nullRate {
			nameB.AppendNull()
		} else {
			nameB.Append(adjectiveList[rnd.Intn(len(adjectiveList))] + " " + animalList[rnd.Intn(len(animalList))])
		}

		if rnd.Float64() < config.nullRate {
			ageB.AppendNull()
		} else {
			ageB.Append(int32(rnd.Intn(80) + 18))
		}

		switch r := rnd.Float64(); {
		case r < config.nanRate:
			scoreB.Append(math.NaN())
		case r < config.nanRate+config.nullRate:
			scoreB.AppendNull()
		default:
			scoreB.Append(rnd.NormFloat64()*25 + 50)
		}

		if rnd.Float64() < config.nullRate {
			activeB.AppendNull()
		} else {
			activeB.Append(rnd.Intn(2) == 0)
		}

		if rnd.Float64() < config.nullRate {
			categoryB.AppendNull()
		} else {
			label := config.categories[rnd.Intn(len(config.categories))]
			if err := categoryB.AppendString(label); err != nil {
				log.Fatalf("Failed to append category %q: %v", label, err)
			}
		}

		if rnd.Float64() < config.nullRate {
			createdB.AppendNull()
		} else {
			at := baseTime.Add(time.Duration(rnd.Intn(2*365*24*60)) * time.Minute)
			createdB.Append(arrow.Timestamp(at.UnixMilli()))
		}

		if rnd.Float64() < config.nullRate {
			embedB.AppendNull()
		} else {
			embedB.Append(true)
			for d := 0; d < config.embedDim; d++ {
				embedValuesB.Append(float32(rnd.NormFloat64()))
			}
		}
	}

	return b.NewRecord()
}
