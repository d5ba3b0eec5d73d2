package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facet-org/facet/config"
	"github.com/facet-org/facet/logger"
	"github.com/facet-org/facet/pkg/core"
	"github.com/facet-org/facet/pkg/sortindex"
	"github.com/facet-org/facet/pkg/store"
	"github.com/facet-org/facet/pkg/writers"
)

// ExportOptions represents the options for the export command.
type ExportOptions struct {
	ConfigPath   string
	DatasetType  string
	OutputPath   string
	OutputFormat string
	View         string
	Sort         string
	BatchSize    int
}

// newExportCommand creates a new export command.
func newExportCommand() *cobra.Command {
	options := &ExportOptions{
		View: "full",
	}

	cmd := &cobra.Command{
		Use:   "export [flags] [DATASET]",
		Short: "Export a dataset view to a file",
		Long: `The export command loads a dataset and writes one of its views to a new
file. Views are written in display order, so a sort expression controls
the row order of the output.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(options.ConfigPath)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Dataset.Path = args[0]
			}
			if options.DatasetType != "" {
				cfg.Dataset.Type = options.DatasetType
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runExport(cmd, options, cfg)
		},
	}

	cmd.Flags().StringVarP(&options.ConfigPath, "config", "c", "", "Path to the configuration file")
	cmd.Flags().StringVar(&options.DatasetType, "type", "", "Dataset type (parquet, arrow, csv, duckdb, adbc)")
	cmd.Flags().StringVarP(&options.OutputPath, "output", "o", "", "Output path for the exported view")
	cmd.Flags().StringVarP(&options.OutputFormat, "format", "f", "", "Output format (parquet, arrow, csv, json)")
	cmd.Flags().StringVar(&options.View, "view", options.View, "View to export (full, filtered, selected)")
	cmd.Flags().StringVar(&options.Sort, "sort", "", "Sort expression, e.g. age:desc,name")
	cmd.Flags().IntVar(&options.BatchSize, "batch-size", 0, "Rows per written record batch")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// runExport executes the export command with the given options.
func runExport(cmd *cobra.Command, options *ExportOptions, cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	log := setupLogger(cfg)
	defer logger.Sync()

	view, err := store.ParseView(options.View)
	if err != nil {
		return err
	}
	keys, err := sortindex.ParseKeys(options.Sort)
	if err != nil {
		return err
	}
	format := options.OutputFormat
	if format == "" {
		format, err = writers.TypeFromPath(options.OutputPath)
		if err != nil {
			return err
		}
	}

	s, err := loadStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	defer s.Close()

	writer, err := writers.DefaultFactory.Create(core.WriterConfig{
		Type:      format,
		Path:      options.OutputPath,
		BatchSize: int64(options.BatchSize),
	})
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}

	if err := s.ExportView(ctx, view, keys, writer, options.BatchSize); err != nil {
		writer.Close()
		return fmt.Errorf("failed to export view: %w", err)
	}
	if err := writer.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows to %s\n", len(s.Indices(view)), options.OutputPath)
	return nil
}
