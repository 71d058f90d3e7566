// Package server builds the catalog service from configuration and owns its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-catalog-crawler/internal/api"
	"github.com/JakeFAU/media-catalog-crawler/internal/availability"
	"github.com/JakeFAU/media-catalog-crawler/internal/cancellation"
	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/media-catalog-crawler/internal/checkjob"
	"github.com/JakeFAU/media-catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/media-catalog-crawler/internal/config"
	"github.com/JakeFAU/media-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/media-catalog-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/media-catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/media-catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/media-catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/media-catalog-crawler/internal/logging"
	"github.com/JakeFAU/media-catalog-crawler/internal/metrics"
	"github.com/JakeFAU/media-catalog-crawler/internal/policy/ratelimit"
	queueMemory "github.com/JakeFAU/media-catalog-crawler/internal/queue/memory"
	memoryStorage "github.com/JakeFAU/media-catalog-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/media-catalog-crawler/internal/storage/postgres"
	"github.com/JakeFAU/media-catalog-crawler/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	queue     *queueMemory.Queue
	dispatch  *dispatcher.Dispatcher
	store     catalog.Store
	pg        *pgstore.Store
	checker   *availability.Checker
	checks    *checkjob.Registry
	crawls    *crawler.Service

	closeOnce sync.Once
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("db_driver", cfg.DB.Driver),
	)

	if err := setupStore(ctx, app); err != nil {
		return nil, err
	}

	clock := system.New()
	ids := uuid.New()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.HTTP.Timeout,
		MaxBodySize: cfg.HTTP.MaxBodySize,
	})

	app.queue = queueMemory.NewQueue()
	app.dispatch = dispatcher.New(app.queue, worker.New(app.queue, logger.Named("worker")))

	app.checker = availability.New(app.store, fetcher, clock, availability.Config{
		BatchSize:  cfg.Checks.ProbeBatchSize,
		BatchDelay: cfg.Checks.ProbeBatchDelay,
		StaleAfter: cfg.Checks.StaleAfter,
	}, logger.Named("availability"))

	app.checks = checkjob.New(app.dispatch, app.checker, app.store, ids, clock, checkjob.Options{
		BatchSize:  cfg.Checks.BatchSize,
		BatchDelay: cfg.Checks.BatchDelay,
		Retention:  cfg.Checks.Retention,
	}, logger.Named("checkjob"))

	app.crawls = crawler.NewService(crawler.Deps{
		Store:       app.store,
		Fetcher:     fetcher,
		Coordinator: cancellation.New(app.store, clock, logger.Named("cancellation")),
		Pacer:       ratelimit.New(ratelimit.Config{Interval: cfg.Crawler.PageDelay}),
		Hasher:      sha256.New(),
		IDs:         ids,
		Clock:       clock,
		Logger:      logger.Named("crawler"),
	}, crawler.Config{
		ProgressEvery: cfg.Crawler.ProgressEvery,
		Extensions:    cfg.Crawler.Extensions,
	})

	deps := api.Deps{
		Checks:       app.checks,
		Availability: app.checker,
		Crawls:       app.crawls,
		Clock:        clock,
	}
	if app.pg != nil {
		deps.Ready = app.pg.Ping
	}
	app.apiServer = api.NewServer(deps, *cfg, logger.Named("api"))

	return app, nil
}

func setupStore(ctx context.Context, app *App) error {
	switch app.cfg.DB.Driver {
	case config.DriverMemory, "":
		app.logger.Info("using in-memory catalog store")
		app.store = memoryStorage.NewStore()
		return nil
	case config.DriverPostgres:
		pg, err := pgstore.NewStore(ctx, pgstore.Config{
			DSN:      app.cfg.DB.DSN,
			MaxConns: app.cfg.DB.MaxConns,
			MinConns: app.cfg.DB.MinConns,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		if app.cfg.DB.AutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				pg.Close()
				return fmt.Errorf("postgres schema init failed: %w", err)
			}
		}
		app.logger.Info("using postgres catalog store")
		app.pg = pg
		app.store = pg
		return nil
	default:
		return fmt.Errorf("unknown db driver: %s", app.cfg.DB.Driver)
	}
}

// Handler exposes the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the worker loop and HTTP server and blocks until the context is canceled
// or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-dispatchDone

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Crawl runs one crawl in-process and blocks until it reaches a terminal status.
func (a *App) Crawl(ctx context.Context, startURL, userID string) (catalog.CrawlJob, error) {
	id, err := a.crawls.StartCrawl(ctx, startURL, userID)
	if err != nil {
		return catalog.CrawlJob{}, fmt.Errorf("start crawl: %w", err)
	}
	job, err := a.crawls.Wait(ctx, id)
	if err != nil {
		return catalog.CrawlJob{}, fmt.Errorf("wait for crawl: %w", err)
	}
	return job, nil
}

// Close stops running crawls and releases the store. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		if shutdownErr := a.crawls.Shutdown(ctx); shutdownErr != nil {
			a.logger.Warn("crawler shutdown incomplete", zap.Error(shutdownErr))
			err = shutdownErr
		}
		a.queue.Close()
		if a.pg != nil {
			a.pg.Close()
		}
		a.logger.Info("shutdown complete")
		_ = a.logger.Sync()
	})
	return err
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}
