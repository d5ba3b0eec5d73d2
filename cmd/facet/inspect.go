package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/facet-org/facet/config"
	"github.com/facet-org/facet/logger"
	"github.com/facet-org/facet/pkg/store"
	"github.com/facet-org/facet/report"
	"github.com/facet-org/facet/validation"
)

// InspectOptions represents the options for the inspect command.
type InspectOptions struct {
	ConfigPath   string
	DatasetType  string
	OutputFormat string
	OutputPath   string
	Verify       bool
}

// newInspectCommand creates a new inspect command.
func newInspectCommand() *cobra.Command {
	options := &InspectOptions{
		OutputFormat: "text",
	}

	cmd := &cobra.Command{
		Use:   "inspect [flags] [DATASET]",
		Short: "Summarize a dataset and rank its columns",
		Long: `The inspect command loads a dataset, computes per-column statistics, and
ranks columns by how much variation they carry. With --verify it also
checks the internal consistency of the loaded store.`,
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
			return runInspect(cmd, options, cfg)
		},
	}

	cmd.Flags().StringVarP(&options.ConfigPath, "config", "c", "", "Path to the configuration file")
	cmd.Flags().StringVar(&options.DatasetType, "type", "", "Dataset type (parquet, arrow, csv, duckdb, adbc)")
	cmd.Flags().StringVarP(&options.OutputFormat, "format", "f", options.OutputFormat, "Output format (text, json)")
	cmd.Flags().StringVarP(&options.OutputPath, "output", "o", "", "Write the report to a file (.json or .html)")
	cmd.Flags().BoolVar(&options.Verify, "verify", false, "Check store consistency after loading")

	return cmd
}

// runInspect executes the inspect command with the given options.
func runInspect(cmd *cobra.Command, options *InspectOptions, cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	log := setupLogger(cfg)
	defer logger.Sync()

	s, err := loadStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	defer s.Close()

	rep, err := report.Build(s, describeDataset(cfg), nil)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	switch options.OutputFormat {
	case "json":
		gen := &report.JSONReportGenerator{}
		data, err := gen.GenerateDatasetReport(rep)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	case "text":
		printReport(cmd.OutOrStdout(), rep)
	default:
		return fmt.Errorf("unsupported output format: %s", options.OutputFormat)
	}

	if options.OutputPath != "" {
		if err := saveReport(rep, options.OutputPath); err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", options.OutputPath)
	}

	if options.Verify {
		return runVerify(ctx, cmd.OutOrStdout(), s, log)
	}
	return nil
}

// printReport renders the dataset report as plain text.
func printReport(w io.Writer, rep report.DatasetReport) {
	fmt.Fprintln(w, "\nDataset Report:")
	if rep.Source != "" {
		fmt.Fprintf(w, "  Source: %s\n", rep.Source)
	}
	fmt.Fprintf(w, "  Rows: %d\n", rep.Rows)
	fmt.Fprintf(w, "  Columns: %d\n", len(rep.Columns))
	fmt.Fprintf(w, "  Filters: %d\n", len(rep.Filters))

	fmt.Fprintln(w, "\nColumns by interestingness:")
	for _, col := range rep.Columns {
		if col.Stats == nil {
			fmt.Fprintf(w, "  %-24s %s\n", col.Key, col.Kind)
			continue
		}
		fmt.Fprintf(w, "  %-24s %-10s score=%-9.3g mean=%-11.4g min=%-11.4g max=%-11.4g nulls=%d\n",
			col.Key, col.Kind, col.Score, col.Stats.Mean, col.Stats.Min, col.Stats.Max, col.Stats.NullCount)
	}
}

// saveReport picks the report format from the file extension.
func saveReport(rep report.DatasetReport, path string) error {
	var gen report.ReportGenerator = &report.JSONReportGenerator{}
	if strings.HasSuffix(strings.ToLower(path), ".html") {
		gen = &report.HTMLReportGenerator{}
	}
	return gen.SaveReportToFile(rep, path)
}

// runVerify checks store consistency and reports each check.
func runVerify(ctx context.Context, w io.Writer, s *store.Store, log *zap.Logger) error {
	rep, err := validation.NewValidator(s, log).Validate(ctx)
	if err != nil {
		return fmt.Errorf("validation aborted: %w", err)
	}

	fmt.Fprintln(w, "\nConsistency checks:")
	failed := 0
	for _, check := range rep.Checks {
		status := "ok"
		if !check.Passed {
			status = "FAIL"
			failed++
		}
		line := fmt.Sprintf("  %-18s %s", check.Name, status)
		if check.Detail != "" {
			line += " (" + check.Detail + ")"
		}
		fmt.Fprintln(w, line)
	}
	if failed > 0 {
		return fmt.Errorf("%d consistency checks failed", failed)
	}
	fmt.Fprintf(w, "All %d checks passed in %s\n", len(rep.Checks), rep.Duration)
	return nil
}
