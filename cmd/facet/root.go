package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/facet-org/facet/config"
	"github.com/facet-org/facet/logger"
	"github.com/facet-org/facet/pkg/core"
	"github.com/facet-org/facet/pkg/readers"
	"github.com/facet-org/facet/pkg/store"
	"github.com/facet-org/facet/version"
)

// newRootCommand assembles the facet command tree.
func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "facet",
		Short: "Facet is a dataset state and filter engine",
		Long: `Facet serves a tabular dataset for interactive exploration.
It loads Parquet, Arrow, CSV, and database-backed datasets through Apache
Arrow and exposes filtering, sorting, selection, and export over an HTTP API.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of facet",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("facet %s (commit %s, built %s)\n",
				version.GetVersion(), version.Commit, version.GetBuildDate())
		},
	})

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newExportCommand())

	return rootCmd
}

// resolveConfig loads the configuration file, or the defaults when no file
// is given.
func resolveConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// setupLogger applies the logging section and returns the shared logger.
func setupLogger(cfg *config.Config) *zap.Logger {
	if cfg.Logging.File != "" {
		logger.SetLogPath(cfg.Logging.File)
	}
	logger.SetLevel(cfg.Logging.Level)
	return logger.GetLogger()
}

// datasetSource opens the configured dataset through the reader factory.
// Refresh reopens it, so changes to the underlying file become visible.
func datasetSource(cfg *config.Config) store.Source {
	return store.SourceFunc(func(ctx context.Context) (core.DatasetReader, error) {
		rc := cfg.Dataset.ReaderConfig()
		if rc.Type == "" {
			if rc.Path == "" {
				rc.Type = "adbc"
			} else {
				inferred, err := readers.TypeFromPath(rc.Path)
				if err != nil {
					return nil, err
				}
				rc.Type = inferred
			}
		}
		return readers.DefaultFactory.Create(rc)
	})
}

// loadStore materializes the configured dataset with a progress spinner.
func loadStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*store.Store, error) {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Suffix = fmt.Sprintf(" loading %s...", describeDataset(cfg))
	sp.Start()
	defer sp.Stop()

	return store.Load(ctx, datasetSource(cfg), store.Options{
		Logger:        log,
		CacheCapacity: cfg.Store.CacheCapacity,
		Workers:       cfg.Store.Workers,
		LazyStrings:   cfg.Store.LazyStrings,
	})
}

// describeDataset names the dataset for logs and the API.
func describeDataset(cfg *config.Config) string {
	if cfg.Dataset.Path != "" {
		return cfg.Dataset.Path
	}
	if cfg.Dataset.Table != "" {
		return cfg.Dataset.Table
	}
	return cfg.Dataset.Query
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nCancelling operation...")
		cancel()
	}()

	return ctx, cancel
}
