package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"cobiv/internal/commands"
	"cobiv/internal/database"
	"cobiv/internal/events"
	"cobiv/internal/indexer"
	"cobiv/internal/logging"
	"cobiv/internal/media"
	"cobiv/internal/mediatypes"
	"cobiv/internal/metrics"
	"cobiv/internal/progress"
	"cobiv/internal/session"
	"cobiv/internal/startup"
)

// app wires the catalog, thumbnail cache, indexer and session together.
type app struct {
	config   *startup.Config
	db       *database.Database
	bus      *events.Bus
	cache    *media.ThumbnailCache
	indexer  *indexer.Indexer
	session  *session.Session
	registry *commands.Registry
	reporter *progress.LogReporter

	collector *metrics.Collector
	server    *http.Server
}

// writerNotifier prints command output, one notification per line.
type writerNotifier struct {
	w io.Writer
}

func (n writerNotifier) Notify(text string) {
	if text == "" {
		return
	}
	fmt.Fprintln(n.w, text)
}

func openApp(ctx context.Context, config *startup.Config, out io.Writer) (*app, error) {
	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart), db.Created())

	a := &app{
		config:   config,
		db:       db,
		bus:      events.NewBus(),
		reporter: progress.NewLogReporter(10),
	}

	if db.Created() {
		if err := initCatalog(ctx, db, config.Repository, true); err != nil {
			a.closeDB()
			return nil, err
		}
	}

	a.cache, err = media.NewThumbnailCache(config.ThumbnailDir, config.ThumbnailSize)
	if err != nil {
		a.closeDB()
		return nil, err
	}
	startup.LogThumbnailInit(a.cache.Dir(), a.cache.CellSize())

	a.indexer, err = indexer.New(db, indexer.Options{
		Extensions: mediatypes.NewExtensionSet(config.Extensions),
		Ignore:     config.Ignore,
		Reporter:   a.reporter,
		Events:     a.bus,
	})
	if err != nil {
		a.closeDB()
		return nil, err
	}

	a.session, err = session.New(ctx, session.Options{
		DB:       db,
		Cache:    a.cache,
		Indexer:  a.indexer,
		Events:   a.bus,
		Reporter: a.reporter,
	})
	if err != nil {
		a.closeDB()
		return nil, err
	}

	a.bus.OnCursorChanged(func(id int64, name string) {
		logging.Debug("Cursor on %d: %s", id, name)
	})

	a.registry = commands.New(a.session, writerNotifier{w: out})

	if config.MetricsAddr != "" {
		a.startMetrics(config.MetricsAddr)
	}

	return a, nil
}

// initCatalog creates the default catalog if needed and registers repo
// under it. Registering an already known path is not an error.
func initCatalog(ctx context.Context, db *database.Database, repo string, recursive bool) error {
	key, err := db.CreateCatalog(ctx, database.DefaultCatalogName)
	if errors.Is(err, database.ErrAlreadyExists) {
		key, err = db.CatalogKey(ctx, database.DefaultCatalogName)
	}
	if err != nil {
		return fmt.Errorf("failed to create default catalog: %w", err)
	}

	if repo == "" {
		return nil
	}
	repo, err = filepath.Abs(repo)
	if err != nil {
		return fmt.Errorf("failed to resolve repository path: %w", err)
	}

	if _, err := db.AddRepository(ctx, key, repo, recursive); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			logging.Info("Repository already registered: %s", repo)
			return nil
		}
		return err
	}
	logging.Info("Repository added: %s (recursive=%v)", repo, recursive)
	return nil
}

func (a *app) startMetrics(addr string) {
	metrics.InitializeMetrics()

	a.collector = metrics.NewCollector(a.db, time.Minute)
	a.collector.Start()

	router := newMetricsRouter(a.db, a.indexer)
	startup.LogMetricsServer(router, addr)

	a.server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
}

// Close stops background work and closes the catalog.
func (a *app) Close() {
	startup.LogShutdownStep("Stopping session")
	a.session.Close()
	startup.LogShutdownStepComplete("Session stopped")

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		startup.LogShutdownStep("Shutting down metrics server")
		if err := a.server.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}
	if a.collector != nil {
		a.collector.Stop()
	}

	a.closeDB()
	startup.LogShutdownComplete()
}

func (a *app) closeDB() {
	if err := a.db.Close(); err != nil {
		logging.Error("failed to close catalog: %v", err)
	}
}
