// Package api exposes the dataset store over HTTP: metadata, views, cells,
// filters, selection, highlight, focus, refresh, export, statistics, and
// compute kickoff. Errors render as Problem JSON.
package api

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/facet-org/facet/pkg/compute"
	"github.com/facet-org/facet/pkg/store"
	"github.com/facet-org/facet/version"
)

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	// Port to listen on. Defaults to 3000.
	Port string

	// Prefork forks worker processes. Leave it off: dataset state lives in
	// this process and preforked workers would each hold their own copy.
	Prefork bool

	// Source is the display name of the dataset source.
	Source string

	// Logger for structured logging. A nil logger disables logging.
	Logger *zap.Logger

	// Compute is the optional reduction service client. Without it the
	// compute endpoint answers unavailable.
	Compute *compute.Client
}

// Server holds the Fiber app and the dataset store it serves.
type Server struct {
	app     *fiber.App
	store   *store.Store
	compute *compute.Client
	source  string
	logger  *zap.Logger
	port    string
}

// NewServer builds the Fiber app and mounts all routes.
func NewServer(s *store.Store, opts ServerOptions) *Server {
	if opts.Port == "" {
		opts.Port = "3000"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		IdleTimeout:  10 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Prefork:      opts.Prefork,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	srv := &Server{
		app:     app,
		store:   s,
		compute: opts.Compute,
		source:  opts.Source,
		logger:  log,
		port:    opts.Port,
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	s.app.Get("/version", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "Facet API",
			"version": version.Version,
			"build":   version.BuildDate,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	api := s.app.Group("/api")
	api.Get("/dataset", s.handleDataset)
	api.Get("/columns", s.handleColumns)
	api.Get("/columns/:key", s.handleColumn)
	api.Get("/rows", s.handleRows)
	api.Get("/cell/:column/:row", s.handleCell)

	api.Get("/filters", s.handleListFilters)
	api.Post("/filters", s.handleAddFilter)
	api.Post("/filters/freeze-selection", s.handleFreezeSelection)
	api.Get("/filters/:id", s.handleGetFilter)
	api.Put("/filters/:id", s.handleReplaceFilter)
	api.Patch("/filters/:id", s.handlePatchFilter)
	api.Delete("/filters/:id", s.handleRemoveFilter)

	api.Get("/selection", s.handleGetSelection)
	api.Put("/selection", s.handleSetSelection)
	api.Post("/selection", s.handleUpdateSelection)

	api.Get("/highlight", s.handleGetHighlight)
	api.Put("/highlight", s.handleSetHighlight)
	api.Post("/highlight/:row", s.handleHighlightRow)
	api.Delete("/highlight", s.handleClearHighlight)

	api.Get("/focus", s.handleGetFocus)
	api.Put("/focus", s.handleSetFocus)
	api.Delete("/focus", s.handleClearFocus)

	api.Post("/refresh", s.handleRefresh)
	api.Post("/export", s.handleExport)
	api.Get("/stats", s.handleStats)
	api.Post("/compute", s.handleCompute)
}

// Start runs the server and blocks until an interrupt signal, then shuts
// down gracefully.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("facet api listening", zap.String("port", s.port))
		errCh <- s.app.Listen(":" + s.port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	s.logger.Info("shutting down api server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

// Shutdown stops the server without waiting for a signal.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// GetApp exposes the underlying Fiber app for tests.
func (s *Server) GetApp() *fiber.App {
	return s.app
}
