// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/perm-crawler/internal/api"
	"github.com/JakeFAU/perm-crawler/internal/clock/system"
	"github.com/JakeFAU/perm-crawler/internal/config"
	"github.com/JakeFAU/perm-crawler/internal/cookie"
	collyfetcher "github.com/JakeFAU/perm-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/perm-crawler/internal/harvest"
	"github.com/JakeFAU/perm-crawler/internal/id/uuid"
	"github.com/JakeFAU/perm-crawler/internal/ingest"
	"github.com/JakeFAU/perm-crawler/internal/normalize"
	"github.com/JakeFAU/perm-crawler/internal/notify/onesignal"
	"github.com/JakeFAU/perm-crawler/internal/perm"
	"github.com/JakeFAU/perm-crawler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/perm-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/perm-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/perm-crawler/internal/report"
	"github.com/JakeFAU/perm-crawler/internal/scheduler"
	"github.com/JakeFAU/perm-crawler/internal/source"
	gcsstorage "github.com/JakeFAU/perm-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/perm-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/perm-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/perm-crawler/internal/storage/postgres"
	"github.com/JakeFAU/perm-crawler/internal/telemetry"
	"github.com/JakeFAU/perm-crawler/internal/upsert"
)

// Repository is the storage of record: employers, cases and cookies.
type Repository interface {
	perm.EmployerRepository
	perm.CaseRepository
	perm.CookieRepository
}

// App holds all the shared, long-lived services for the application.
// It is built once per command and closed by the root command's post-run hook.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	loc    *time.Location

	repo      Repository
	pg        *pgstore.Store
	cookies   *cookie.Store
	publisher perm.Publisher
	archive   perm.BlobStore

	controller *ingest.Controller
	reporter   *report.Reporter

	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	gcsClient       *storage.Client
	tracerProvider  *sdktrace.TracerProvider

	harvestOnce sync.Once
	harvester   *harvest.Harvester
	harvestErr  error
}

// New creates and initializes an App from configuration. It fails fast if any
// critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: logger, loc: loc}
	logger.Info("initializing application services",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("events_driver", cfg.Events.Driver),
		zap.String("archive_driver", cfg.Archive.Driver),
	)

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{ServiceName: telemetry.DefaultServiceName})
	if err != nil {
		return nil, fmt.Errorf("tracer provider init failed: %w", err)
	}
	a.tracerProvider = tp

	if err := a.setupDatabase(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.setupArchive(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.setupPipeline(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.setupReporter(); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	switch a.cfg.DB.Driver {
	case "postgres":
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		a.pg = store
		a.repo = store
		if a.cfg.DB.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("postgres migrate failed: %w", err)
			}
			a.logger.Info("database schema applied")
		}
		a.logger.Info("using postgres storage")
	default:
		a.repo = memorystorage.NewStore()
		a.logger.Warn("using in-memory storage, nothing survives the process")
	}
	a.cookies = cookie.NewStore(a.repo)
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	switch a.cfg.Events.Driver {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.Events.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.pubsubPublisher = gcppublisher.New(client, a.cfg.Events.TopicPrefix)
		a.publisher = a.pubsubPublisher
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Events.ProjectID),
			zap.String("topic_prefix", a.cfg.Events.TopicPrefix),
		)
	case "memory":
		a.publisher = memorypublisher.New()
		a.logger.Info("using in-memory event publisher")
	default:
		a.logger.Debug("crawl events disabled")
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	switch a.cfg.Archive.Driver {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.archive = store
		a.logger.Info("archiving pages to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.archive = store
		a.logger.Info("archiving pages locally", zap.String("path", a.cfg.Archive.BaseDir))
	case "memory":
		a.archive = memorystorage.NewBlobStore()
	default:
		a.logger.Debug("page archive disabled")
	}
	return nil
}

func (a *App) setupPipeline() error {
	getter := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Source.UserAgent,
		RespectRobots: a.cfg.Source.RespectRobots,
		Timeout:       a.cfg.SourceTimeout(),
	})
	fetcher, err := source.New(source.Config{
		BaseURL:     a.cfg.Source.BaseURL,
		VisaClassID: a.cfg.Source.VisaClassID,
		Rows:        a.cfg.Source.Rows,
		UserAgent:   a.cfg.Source.UserAgent,
		Location:    a.loc,
	}, getter, a.cookies)
	if err != nil {
		return fmt.Errorf("source fetcher init failed: %w", err)
	}
	normalizer, err := normalize.New(a.loc)
	if err != nil {
		return fmt.Errorf("normalizer init failed: %w", err)
	}
	upserter := upsert.New(a.repo, a.repo, a.logger.Named("upsert"))

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Source.RateLimitRPS,
		DefaultBurst: a.cfg.Source.RateLimitBurst,
	})

	opts := ingest.Options{
		Location:      a.loc,
		Clock:         system.New(),
		IDs:           uuid.New(),
		Limiter:       limiter,
		LimitKey:      a.cfg.Source.BaseURL,
		Archive:       a.archive,
		ArchivePrefix: a.cfg.Archive.Prefix,
		Publisher:     a.publisher,
		Tracer:        a.tracerProvider.Tracer("github.com/JakeFAU/perm-crawler/internal/ingest"),
		Logger:        a.logger.Named("ingest"),
	}
	a.controller, err = ingest.New(fetcher, normalizer, upserter, opts)
	if err != nil {
		return fmt.Errorf("controller init failed: %w", err)
	}
	return nil
}

func (a *App) setupReporter() error {
	opts := report.Options{
		Location:  a.loc,
		Publisher: a.publisher,
		Logger:    a.logger.Named("report"),
	}
	if a.cfg.NotifyConfigured() {
		client, err := onesignal.New(onesignal.Config{
			BaseURL:  a.cfg.Notify.BaseURL,
			AppID:    a.cfg.Notify.AppID,
			APIKey:   a.cfg.Notify.APIKey,
			Segments: a.cfg.Notify.Segments,
		})
		if err != nil {
			return fmt.Errorf("onesignal init failed: %w", err)
		}
		opts.Notifier = client
	}
	var err error
	a.reporter, err = report.New(a.repo, opts)
	if err != nil {
		return fmt.Errorf("reporter init failed: %w", err)
	}
	return nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Location is the source timezone.
func (a *App) Location() *time.Location {
	return a.loc
}

// Repository exposes the storage of record.
func (a *App) Repository() Repository {
	return a.repo
}

// Cookies exposes the session cookie store.
func (a *App) Cookies() *cookie.Store {
	return a.cookies
}

// Controller returns the crawl controller.
func (a *App) Controller() *ingest.Controller {
	return a.controller
}

// Reporter returns the observation reporter.
func (a *App) Reporter() *report.Reporter {
	return a.reporter
}

// Harvester lazily builds the browser cookie harvester.
func (a *App) Harvester() (*harvest.Harvester, error) {
	a.harvestOnce.Do(func() {
		a.harvester, a.harvestErr = harvest.New(harvest.Config{
			URL:               a.cfg.Harvest.URL,
			Headless:          a.cfg.Harvest.Headless,
			UserAgent:         a.cfg.Source.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Harvest.NavTimeoutSeconds) * time.Second,
			LoginWait:         time.Duration(a.cfg.Harvest.LoginWaitSeconds) * time.Second,
		}, a.cookies, a.logger.Named("harvest"))
	})
	return a.harvester, a.harvestErr
}

// Migrate applies the schema. The in-memory driver has nothing to migrate.
func (a *App) Migrate(ctx context.Context) error {
	if a.pg == nil {
		a.logger.Info("in-memory storage, nothing to migrate")
		return nil
	}
	if err := a.pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Serve runs the HTTP API and, when enabled, the cron scheduler until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	server := api.NewServer(a.cookies, a.repo, a.reporter, a.cfg.Auth, a.logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var sched *scheduler.Scheduler
	if a.cfg.Schedule.Enabled {
		var notifier scheduler.Notifier
		if a.cfg.NotifyConfigured() {
			notifier = a.reporter
		}
		var err error
		sched, err = scheduler.New(scheduler.Config{
			Spec:     a.cfg.Schedule.Crawl,
			Location: a.loc,
			Notify:   a.cfg.Schedule.Notify,
		}, a.controller, notifier, a.logger.Named("scheduler"))
		if err != nil {
			return fmt.Errorf("scheduler init failed: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("scheduler start failed: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(a.cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			a.logger.Warn("scheduled crawl still running at shutdown")
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if a.harvester != nil {
		a.harvester.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if a.tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
		cancel()
	}
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
}
