// Package cmd defines and implements the CLI commands for the perm-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/perm-crawler/internal/app"
	"github.com/JakeFAU/perm-crawler/internal/config"
	"github.com/JakeFAU/perm-crawler/internal/ingest"
	"github.com/JakeFAU/perm-crawler/internal/logging"
	"github.com/JakeFAU/perm-crawler/internal/perm"
	"github.com/JakeFAU/perm-crawler/internal/report"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Crawler runs date crawls.
type Crawler interface {
	RunLatest(ctx context.Context) (ingest.DateSummary, error)
	RunBetween(ctx context.Context, from, to time.Time) (ingest.RangeSummary, error)
}

// Notifier pushes the daily observation.
type Notifier interface {
	Notify(ctx context.Context) (report.Observation, error)
}

// Harvester collects a session cookie from a browser.
type Harvester interface {
	Harvest(ctx context.Context) (perm.Cookie, error)
}

// App defines the application interface that commands use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Location() *time.Location
	Crawler() Crawler
	Notifier() Notifier
	Harvester() (Harvester, error)
	Migrate(ctx context.Context) error
	Serve(ctx context.Context) error
}

// appAdapter narrows *app.App to the App interface.
type appAdapter struct {
	*app.App
}

func (a appAdapter) Crawler() Crawler { return a.Controller() }
func (a appAdapter) Notifier() Notifier { return a.Reporter() }

func (a appAdapter) Harvester() (Harvester, error) {
	h, err := a.App.Harvester()
	if err != nil {
		return nil, fmt.Errorf("init harvester: %w", err)
	}
	return h, nil
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return appAdapter{App: a}, nil
}

// newLogger is swapped in tests to keep output quiet.
var newLogger = func(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
}

// lifecycle closes the App exactly once, whether or not the subcommand failed.
type lifecycle struct {
	once sync.Once
	app  App
}

func (l *lifecycle) close() {
	l.once.Do(func() {
		if l.app != nil {
			l.app.Close()
		}
	})
}

// newRootCmd creates and configures the root command.
func newRootCmd(lc *lifecycle) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "perm-crawler",
		Short: "Ingests publicly posted PERM labor certification cases.",
		Long: `perm-crawler pulls the DOL quick-cert search grid one posting day at a time,
normalizes every row, and upserts employers and cases into Postgres. It can also
harvest the session cookie the grid requires, push a daily summary notification,
and serve a small operator API with an in-process scheduler.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand's RunE: load config, then build and inject the application.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			lc.app = appInstance

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			lc.close()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env PERM_* overrides apply either way)")

	cmd.AddCommand(
		newLatestCmd(),
		newBetweenCmd(),
		newHarvestCmd(),
		newNotifyCmd(),
		newServeCmd(),
		newMigrateCmd(),
	)
	return cmd
}

// Execute is the main entry point. Any command error is logged fatally.
func Execute(ctx context.Context) {
	bootstrap, err := zap.NewProduction()
	if err == nil {
		zap.ReplaceGlobals(bootstrap)
	}

	lc := &lifecycle{}
	err = newRootCmd(lc).ExecuteContext(ctx)
	lc.close()
	if err != nil {
		zap.L().Fatal("command execution failed", zap.Error(err))
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
