package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/facet-org/facet/api"
	"github.com/facet-org/facet/config"
	"github.com/facet-org/facet/logger"
	"github.com/facet-org/facet/pkg/compute"
)

// ServeOptions represents the options for the serve command.
type ServeOptions struct {
	ConfigPath    string
	DatasetType   string
	Port          string
	Prefork       bool
	ComputeURL    string
	CacheCapacity int
	Workers       int
	LazyStrings   bool
}

// newServeCommand creates a new serve command.
func newServeCommand() *cobra.Command {
	options := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve [flags] [DATASET]",
		Short: "Load a dataset and serve the HTTP API",
		Long: `The serve command loads a dataset into memory and serves its state over
the HTTP API: rows, cells, filters, selection, highlight, focus, stats,
and export. With a compute service configured it also forwards UMAP and
PCA reduction requests.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(options.ConfigPath)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Dataset.Path = args[0]
			}
			applyServeOverrides(cmd, options, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&options.ConfigPath, "config", "c", "", "Path to the configuration file")
	cmd.Flags().StringVar(&options.DatasetType, "type", "", "Dataset type (parquet, arrow, csv, duckdb, adbc)")
	cmd.Flags().StringVarP(&options.Port, "port", "p", "", "Port for the HTTP API")
	cmd.Flags().BoolVar(&options.Prefork, "prefork", false, "Run one process per CPU core")
	cmd.Flags().StringVar(&options.ComputeURL, "compute", "", "Websocket URL of the dimensionality reduction service")
	cmd.Flags().IntVar(&options.CacheCapacity, "cache-capacity", 0, "Capacity of the lazy cell cache")
	cmd.Flags().IntVar(&options.Workers, "workers", 0, "Number of column materialization workers")
	cmd.Flags().BoolVar(&options.LazyStrings, "lazy-strings", false, "Serve string columns through the cell cache")

	return cmd
}

// applyServeOverrides folds explicit flags over the file configuration.
func applyServeOverrides(cmd *cobra.Command, options *ServeOptions, cfg *config.Config) {
	if options.DatasetType != "" {
		cfg.Dataset.Type = options.DatasetType
	}
	if options.Port != "" {
		cfg.Server.Port = options.Port
	}
	if cmd.Flags().Changed("prefork") {
		cfg.Server.Prefork = options.Prefork
	}
	if options.ComputeURL != "" {
		cfg.Compute.URL = options.ComputeURL
	}
	if options.CacheCapacity > 0 {
		cfg.Store.CacheCapacity = options.CacheCapacity
	}
	if options.Workers > 0 {
		cfg.Store.Workers = options.Workers
	}
	if cmd.Flags().Changed("lazy-strings") {
		cfg.Store.LazyStrings = options.LazyStrings
	}
}

// runServe loads the dataset and runs the API server until interrupted.
func runServe(cfg *config.Config) error {
	log := setupLogger(cfg)
	defer logger.Sync()

	s, err := loadStore(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	defer s.Close()

	fmt.Printf("Loaded %s: %d rows, %d columns\n", describeDataset(cfg), s.Length(), len(s.Columns()))

	var client *compute.Client
	if cfg.Compute.URL != "" {
		client = compute.Dial(cfg.Compute.URL,
			compute.WithLogger(log),
			compute.WithQueueSize(cfg.Compute.QueueSize),
		)
		defer client.Close()
		client.OnRefresh(func() {
			if err := s.Refresh(context.Background()); err != nil {
				log.Warn("refresh requested by compute service failed", zap.Error(err))
			}
		})
	}

	server := api.NewServer(s, api.ServerOptions{
		Port:    cfg.Server.Port,
		Prefork: cfg.Server.Prefork,
		Source:  describeDataset(cfg),
		Logger:  log,
		Compute: client,
	})
	return server.Start()
}
