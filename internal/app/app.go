// Package app wires configuration into the long-lived services behind the
// CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-scraper/internal/api"
	"github.com/JakeFAU/job-scraper/internal/browser"
	"github.com/JakeFAU/job-scraper/internal/clock/system"
	"github.com/JakeFAU/job-scraper/internal/config"
	"github.com/JakeFAU/job-scraper/internal/fetcher/auto"
	collyfetcher "github.com/JakeFAU/job-scraper/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/job-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/job-scraper/internal/hash/sha256"
	"github.com/JakeFAU/job-scraper/internal/headless/detector"
	"github.com/JakeFAU/job-scraper/internal/id/uuid"
	"github.com/JakeFAU/job-scraper/internal/jobs"
	"github.com/JakeFAU/job-scraper/internal/metrics"
	"github.com/JakeFAU/job-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/job-scraper/internal/policy/robots"
	memorypublisher "github.com/JakeFAU/job-scraper/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/job-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/job-scraper/internal/retry"
	"github.com/JakeFAU/job-scraper/internal/scraper"
	gcsstorage "github.com/JakeFAU/job-scraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/job-scraper/internal/storage/local"
	memorystorage "github.com/JakeFAU/job-scraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/job-scraper/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	browsers  *browser.Manager
	page      *scraper.PageScraper
	batch     *scraper.BatchScraper
	apiServer *api.Server

	jobStore     jobs.JobStore
	pgStore      *pgstore.JobStore
	gcsBlobs     *gcsstorage.BlobStore
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
}

// New builds every service described by cfg. Anything opened before a
// failure is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	logger.Info("creating application",
		zap.Int("port", cfg.Server.Port),
		zap.String("render_mode", cfg.Scraper.RenderMode),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("snapshots", cfg.Snapshots.Backend),
		zap.String("pubsub", cfg.PubSub.Backend),
	)

	a := &App{cfg: cfg, logger: logger}
	if err := a.setup(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) setup(ctx context.Context) error {
	renderer, err := a.setupRenderer()
	if err != nil {
		return err
	}
	blobs, err := a.setupSnapshots(ctx)
	if err != nil {
		return err
	}

	pageCfg := scraper.PageConfig{
		Selectors: a.cfg.Selectors,
		Retry: retry.Policy{
			Attempts: a.cfg.Scraper.RetryAttempts,
			Delay:    retry.ExponentialCapped(a.cfg.Scraper.RetryInitialDelay(), a.cfg.Scraper.RetryMaxDelay()),
			Logger:   a.logger.Named("retry"),
		},
	}
	if blobs != nil {
		pageCfg.Archive = &scraper.Archive{
			Blobs:       blobs,
			Hasher:      sha256.New(),
			Prefix:      a.cfg.Snapshots.Prefix,
			ContentType: a.cfg.Snapshots.ContentType,
		}
	}
	a.page, err = scraper.NewPageScraper(renderer, pageCfg, a.logger.Named("scraper"))
	if err != nil {
		return fmt.Errorf("page scraper init failed: %w", err)
	}

	failure, err := scraper.ParseFailurePolicy(a.cfg.Scraper.FailurePolicy)
	if err != nil {
		return err
	}
	a.batch, err = scraper.NewBatchScraper(a.page, scraper.BatchConfig{
		Concurrency: a.cfg.Scraper.Concurrency,
		URLTimeout:  a.cfg.Scraper.URLTimeout(),
		Failure:     failure,
	}, a.logger.Named("batch"))
	if err != nil {
		return fmt.Errorf("batch scraper init failed: %w", err)
	}

	if err := a.setupJobStore(ctx); err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	a.apiServer, err = api.NewServer(api.Deps{
		Scraper:   a.page,
		Batch:     a.batch,
		Store:     a.jobStore,
		Publisher: publisher,
		IDs:       uuid.New(),
		Clock:     system.New(),
	}, a.cfg, a.logger.Named("api"))
	if err != nil {
		return fmt.Errorf("api server init failed: %w", err)
	}
	return nil
}

func (a *App) setupRenderer() (jobs.Renderer, error) {
	politeness := ratelimit.New(ratelimit.Config{
		PerHostRPS:   a.cfg.Politeness.PerHostRPS,
		PerHostBurst: a.cfg.Politeness.PerHostBurst,
	})
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Static.UserAgent,
		RespectRobots: a.cfg.Static.RespectRobots,
		Timeout:       a.cfg.Static.Timeout(),
	}, politeness)

	var headless jobs.Renderer = headlessfetcher.NewNoop()
	if a.cfg.Browser.Enabled {
		var err error
		a.browsers, err = browser.NewManager(browser.Config{
			ExecPath:      a.cfg.Browser.ExecPath,
			Headless:      a.cfg.Browser.Headless,
			NoSandbox:     a.cfg.Browser.NoSandbox,
			UserAgent:     a.cfg.Browser.UserAgent,
			WindowWidth:   a.cfg.Browser.WindowWidth,
			WindowHeight:  a.cfg.Browser.WindowHeight,
			ExtraFlags:    a.cfg.Browser.ExtraFlags,
			LaunchTimeout: a.cfg.Browser.LaunchTimeout(),
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("browser manager init failed: %w", err)
		}
		headless, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:        a.cfg.Browser.MaxParallel,
			UserAgent:          a.cfg.Browser.UserAgent,
			ViewportWidth:      a.cfg.Browser.WindowWidth,
			ViewportHeight:     a.cfg.Browser.WindowHeight,
			NavigationTimeout:  a.cfg.Browser.NavTimeout(),
			NetworkIdleTimeout: a.cfg.Browser.NetworkIdleTimeout(),
			SettleDelay:        a.cfg.Browser.SettleDelay(),
		}, a.browsers, politeness, a.logger.Named("headless"))
		if err != nil {
			return nil, fmt.Errorf("headless renderer init failed: %w", err)
		}
		if a.cfg.Browser.RespectRobots {
			headless = robots.Guard(headless, robots.New(a.cfg.Browser.UserAgent, nil, a.logger.Named("robots")))
		}
		a.logger.Info("using headless renderer",
			zap.Int("max_parallel", a.cfg.Browser.MaxParallel),
			zap.Bool("respect_robots", a.cfg.Browser.RespectRobots),
		)
	}

	switch a.cfg.Scraper.RenderMode {
	case config.RenderStatic:
		a.logger.Info("using static renderer")
		return static, nil
	case config.RenderAuto:
		a.logger.Info("using auto renderer",
			zap.Int("body_threshold", a.cfg.Detector.BodyThreshold),
			zap.Int("min_text_length", a.cfg.Detector.MinTextLength),
		)
		detect := detector.NewHeuristic(a.cfg.Detector.BodyThreshold, a.cfg.Detector.MinTextLength)
		return auto.New(static, headless, detect, a.logger.Named("auto"))
	default:
		return headless, nil
	}
}

func (a *App) setupSnapshots(ctx context.Context) (jobs.BlobStore, error) {
	switch a.cfg.Snapshots.Backend {
	case "memory":
		a.logger.Info("using in-memory snapshot store")
		return memorystorage.NewBlobStore(), nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Snapshots.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local snapshot store", zap.String("path", a.cfg.Snapshots.LocalDir))
		return store, nil
	case "gcs":
		var err error
		a.gcsBlobs, err = gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Snapshots.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS snapshot store", zap.String("bucket", a.cfg.Snapshots.GCSBucket))
		return a.gcsBlobs, nil
	default:
		a.logger.Info("snapshot archiving disabled")
		return nil, nil
	}
}

func (a *App) setupJobStore(ctx context.Context) error {
	if a.cfg.Storage.Backend != "postgres" {
		a.logger.Info("using in-memory job store")
		a.jobStore = memorystorage.NewJobStore()
		return nil
	}
	var err error
	a.pgStore, err = pgstore.NewJobStore(ctx, pgstore.JobStoreConfig{
		DSN:      a.cfg.Storage.Postgres.DSN,
		Table:    a.cfg.Storage.Postgres.Table,
		MaxConns: a.cfg.Storage.Postgres.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("job store init failed: %w", err)
	}
	if err := a.pgStore.Migrate(ctx); err != nil {
		return fmt.Errorf("job store migration failed: %w", err)
	}
	a.jobStore = a.pgStore
	a.logger.Info("postgres job store initialized", zap.String("table", a.cfg.Storage.Postgres.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (jobs.Publisher, error) {
	switch a.cfg.PubSub.Backend {
	case "memory":
		a.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	case "gcp":
		var err error
		a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.gcpPublisher = gcppublisher.New(a.pubsubClient)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.Topic),
		)
		return a.gcpPublisher, nil
	default:
		a.logger.Info("job notifications disabled")
		return nil, nil
	}
}

// Scraper returns the single-URL scraper.
func (a *App) Scraper() *scraper.PageScraper {
	return a.page
}

// Batch returns the concurrent batch scraper.
func (a *App) Batch() *scraper.BatchScraper {
	return a.batch
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves the HTTP API until ctx is canceled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return errors.Join(fmt.Errorf("listen on port %d: %w", a.cfg.Server.Port, err), a.Close())
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()
	a.apiServer.SetReady(true)

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server: %w", err)
			a.logger.Error("http server error", zap.Error(err))
		}
	}
	a.apiServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return errors.Join(serveErr, a.Close())
}

// Close releases the browser and closes every client the app opened. It is
// safe to call more than once.
func (a *App) Close() error {
	var errs []error
	if a.browsers != nil {
		a.browsers.Release()
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Close()
		a.gcpPublisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
			errs = append(errs, err)
		}
		a.pubsubClient = nil
	}
	if a.gcsBlobs != nil {
		if err := a.gcsBlobs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
			errs = append(errs, err)
		}
		a.gcsBlobs = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return errors.Join(errs...)
}
