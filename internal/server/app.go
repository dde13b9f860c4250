// Package server builds the scan pipeline from configuration and runs it either once or behind
// the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/govjob-scanner/internal/adapter"
	"github.com/JakeFAU/govjob-scanner/internal/api"
	"github.com/JakeFAU/govjob-scanner/internal/clock/system"
	"github.com/JakeFAU/govjob-scanner/internal/config"
	"github.com/JakeFAU/govjob-scanner/internal/dispatcher"
	"github.com/JakeFAU/govjob-scanner/internal/document"
	collyfetcher "github.com/JakeFAU/govjob-scanner/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/govjob-scanner/internal/fetcher/headless"
	"github.com/JakeFAU/govjob-scanner/internal/hash/sha256"
	"github.com/JakeFAU/govjob-scanner/internal/headless/detector"
	"github.com/JakeFAU/govjob-scanner/internal/id/uuid"
	"github.com/JakeFAU/govjob-scanner/internal/jobs"
	"github.com/JakeFAU/govjob-scanner/internal/policy/ratelimit"
	queueMemory "github.com/JakeFAU/govjob-scanner/internal/queue/memory"
	"github.com/JakeFAU/govjob-scanner/internal/scan"
	gcsstorage "github.com/JakeFAU/govjob-scanner/internal/storage/gcs"
	localstorage "github.com/JakeFAU/govjob-scanner/internal/storage/local"
	memoryStorage "github.com/JakeFAU/govjob-scanner/internal/storage/memory"
	sqlitestorage "github.com/JakeFAU/govjob-scanner/internal/storage/sqlite"
	"github.com/JakeFAU/govjob-scanner/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	scanner *scan.Scanner
	browser *headlessfetcher.Browser
	queue   *queueMemory.Queue
	storage *storage.Client
	db      *sqlitestorage.ScanStore
}

// Build creates the scan pipeline. The HTTP service pieces are created by Serve.
func Build(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	portals, err := cfg.PortalConfigs()
	if err != nil {
		return nil, fmt.Errorf("portal config: %w", err)
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building scan pipeline",
		zap.Int("portals", len(portals)),
		zap.Int("concurrency", cfg.Crawler.Concurrency),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.Bool("documents", cfg.Document.Enabled),
	)

	limiter := ratelimit.New(ratelimit.Config{
		PerHostRPS:   cfg.Crawler.PerHostRPS,
		PerHostBurst: cfg.Crawler.PerHostBurst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		RespectRobots:  !cfg.Crawler.IgnoreRobots,
		Timeout:        cfg.FetchTimeout(),
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		MaxRetries:     cfg.HTTP.MaxRetries,
		BackoffInitial: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
	}, limiter, logger.Named("fetcher"))

	deps := adapter.Deps{
		Fetcher: fetcher,
		Driver:  headlessfetcher.NewNoop(),
		Logger:  logger.Named("adapter"),
	}
	if cfg.Headless.Enabled {
		app.browser, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			WaitTimeout:       time.Duration(cfg.Headless.WaitTimeoutSec) * time.Second,
			Settle:            time.Duration(cfg.Headless.SettleMs) * time.Millisecond,
		}, logger.Named("headless"))
		if err != nil {
			return nil, fmt.Errorf("headless browser init failed: %w", err)
		}
		deps.Driver = app.browser
		if cfg.Headless.PromoteStatic {
			deps.Renderer = app.browser
			deps.Detector = detector.NewHeuristic(cfg.Headless.PromotionThresh)
		}
		logger.Info("using headless browser", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	}
	if cfg.Document.Enabled {
		deps.Documents = document.New(fetcher, document.Config{
			MaxBytes: cfg.Document.MaxBytes,
			TempDir:  cfg.Document.TempDir,
		}, logger.Named("document"))
	}

	app.scanner = scan.New(
		portals,
		adapter.NewRegistry(deps),
		scan.Config{Concurrency: cfg.Crawler.Concurrency},
		logger.Named("scan"),
	)
	return app, nil
}

// Scanner returns the configured pipeline for one-shot runs.
func (a *App) Scanner() *scan.Scanner {
	return a.scanner
}

// Serve runs the HTTP API and the worker pool until ctx is canceled or a signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := a.setupStorage(ctx)
	if err != nil {
		return err
	}
	store, err := a.setupScanStore(ctx)
	if err != nil {
		return err
	}
	a.queue = queueMemory.NewQueue(a.cfg.Crawler.QueueDepth)

	workers := make([]*worker.Worker, 0, a.cfg.Server.Workers)
	for i := 0; i < a.cfg.Server.Workers; i++ {
		workers = append(workers, worker.New(
			a.queue,
			store,
			blobs,
			a.scanner,
			worker.Config{ExportPrefix: a.cfg.Storage.Prefix},
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(a.queue, workers)
	apiServer := api.NewServer(
		store,
		dispatch,
		uuid.New(),
		system.New(),
		sha256.New(),
		*a.cfg,
		a.logger.Named("api"),
	)

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", dispatch.Size()))
		dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	<-dispatchDone
	return nil
}

func (a *App) setupStorage(ctx context.Context) (jobs.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("exporting scans to GCS", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:       a.cfg.Storage.GCSBucket,
			CacheControl: a.cfg.Storage.GCSCache,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case "local":
		a.logger.Info("exporting scans to local directory", zap.String("path", a.cfg.Storage.BaseDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		a.logger.Info("keeping scan exports in memory")
		return memoryStorage.NewBlobStore(), nil
	}
}

func (a *App) setupScanStore(ctx context.Context) (jobs.ScanStore, error) {
	if a.cfg.Storage.ScanStore != "sqlite" {
		return memoryStorage.NewScanStore(), nil
	}
	a.logger.Info("persisting scans to sqlite", zap.String("path", a.cfg.Storage.SQLitePath))
	db, err := sqlitestorage.Open(ctx, a.cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("sqlite scan store init failed: %w", err)
	}
	a.db = db
	return db, nil
}

// Close releases the browser and storage clients.
func (a *App) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("sqlite close failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}
