package readers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-adbc/go/adbc/drivermgr"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/facet-org/facet/pkg/core"
)

// ADBCReader streams query results out of any database reachable through
// the ADBC driver manager. The driver option names the driver library;
// Path and ConnectionString map onto the driver's path and uri options.
type ADBCReader struct {
	db     adbc.Database
	conn   adbc.Connection
	stmt   adbc.Statement
	rr     array.RecordReader
	schema *arrow.Schema
}

// NewADBCReader creates a new ADBC reader.
func NewADBCReader(config core.ReaderConfig) (core.DatasetReader, error) {
	if config.Driver == "" {
		return nil, errors.New("driver is required for ADBC reader")
	}

	query := config.Query
	if query == "" && config.Table != "" {
		query = fmt.Sprintf("SELECT * FROM %s", config.Table)
	}
	if query == "" {
		return nil, errors.New("either query or table is required for ADBC reader")
	}

	options := map[string]string{
		"driver": config.Driver,
	}
	if config.Path != "" {
		options["path"] = config.Path
	}
	if config.ConnectionString != "" {
		options["uri"] = config.ConnectionString
	}

	ctx := context.Background()
	drv := drivermgr.Driver{}

	db, err := drv.NewDatabase(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ADBC database: %w", err)
	}

	conn, err := db.Open(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open ADBC connection: %w", err)
	}

	stmt, err := conn.NewStatement()
	if err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create statement: %w", err)
	}

	if err := stmt.SetSqlQuery(query); err != nil {
		stmt.Close()
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("failed to set SQL query: %w", err)
	}

	rr, _, err := stmt.ExecuteQuery(ctx)
	if err != nil {
		stmt.Close()
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	return &ADBCReader{
		db:     db,
		conn:   conn,
		stmt:   stmt,
		rr:     rr,
		schema: rr.Schema(),
	}, nil
}

// NewDuckDBReader creates an ADBC reader preconfigured for the DuckDB
// driver.
func NewDuckDBReader(config core.ReaderConfig) (core.DatasetReader, error) {
	if config.Driver == "" {
		config.Driver = "duckdb"
	}
	return NewADBCReader(config)
}

// Read returns the next batch of records. The returned record stays valid
// until the next Read call; retain it to keep it longer.
func (r *ADBCReader) Read(ctx context.Context) (arrow.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if !r.rr.Next() {
		if err := r.rr.Err(); err != nil {
			return nil, fmt.Errorf("failed to read query results: %w", err)
		}
		return nil, io.EOF
	}
	return r.rr.Record(), nil
}

// Schema returns the schema of the dataset.
func (r *ADBCReader) Schema() *arrow.Schema {
	return r.schema
}

// Close closes the reader and releases resources.
func (r *ADBCReader) Close() error {
	if r.rr != nil {
		r.rr.Release()
		r.rr = nil
	}

	var err error
	if r.stmt != nil {
		if closeErr := r.stmt.Close(); closeErr != nil {
			err = closeErr
		}
		r.stmt = nil
	}
	if r.conn != nil {
		if closeErr := r.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		r.conn = nil
	}
	if r.db != nil {
		if closeErr := r.db.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		r.db = nil
	}
	return err
}
