// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/meterd/adapters/auth"
	"github.com/artpar/meterd/adapters/clock"
	meterhttp "github.com/artpar/meterd/adapters/http"
	"github.com/artpar/meterd/adapters/idgen"
	"github.com/artpar/meterd/adapters/memory"
	"github.com/artpar/meterd/adapters/metrics"
	"github.com/artpar/meterd/adapters/sqlite"
	"github.com/artpar/meterd/app"
	"github.com/artpar/meterd/config"
	"github.com/artpar/meterd/domain/plan"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	Limiter    *app.Limiter
	Pipeline   *app.IngestPipeline
	Aggregator *app.Aggregator

	holder     *config.Holder
	rateStore  *memory.RateLimitStore
	bgCancel   context.CancelFunc
	bgDone     []chan struct{}
	aggEnabled bool
}

// New creates and initializes the application from a loaded config.
func New(cfg *config.Config) (*App, error) {
	return build(cfg, nil)
}

// NewWithHotReload creates the application with config file watching.
// Plan catalog changes take effect without a restart; structural fields
// (listen address, database, shard counts) require one.
func NewWithHotReload(path string) (*App, error) {
	logger := setupLogger(nil)

	holder, err := config.NewHolder(path, logger)
	if err != nil {
		return nil, err
	}

	a, err := build(holder.Get(), holder)
	if err != nil {
		holder.Stop()
		return nil, err
	}

	holder.OnChange(func(cfg *config.Config) {
		catalog := planCatalog(cfg)
		a.Limiter.UpdateCatalog(catalog)
		a.Aggregator.UpdateCatalog(catalog)
		if a.Metrics != nil {
			a.Metrics.ConfigReloads.Inc()
		}
		a.Logger.Info().Int("plans", catalog.Len()).Msg("plan catalog reloaded")
	})

	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watching unavailable")
	}
	holder.WatchSignals()

	return a, nil
}

func build(cfg *config.Config, holder *config.Holder) (*App, error) {
	logger := setupLogger(cfg)

	logger.Info().Msg("initializing meterd")

	a := &App{
		Logger:     logger,
		holder:     holder,
		aggEnabled: cfg.Aggregator.Enabled,
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	a.DB = db

	wallClock := clock.Real{}
	catalog := planCatalog(cfg)

	a.rateStore = memory.NewRateLimitStore(memory.RateLimitStoreConfig{
		NumShards:     cfg.RateLimit.Shards,
		IdleTTL:       cfg.RateLimit.IdleTTL,
		SweepInterval: cfg.RateLimit.SweepInterval,
		Clock:         wallClock,
	})

	a.Limiter = app.NewLimiter(app.LimiterDeps{
		Store:   a.rateStore,
		Clock:   wallClock,
		Logger:  logger,
		Metrics: a.Metrics,
	}, catalog)

	usageStore := sqlite.NewUsageStore(db)

	a.Pipeline = app.NewIngestPipeline(app.IngestDeps{
		Store:   usageStore,
		Clock:   wallClock,
		Logger:  logger,
		Metrics: a.Metrics,
	}, app.IngestConfig{
		MaxConcurrent:  cfg.Ingest.MaxConcurrent,
		RateLimit:      cfg.Ingest.RateLimit,
		RateWindow:     cfg.Ingest.RateWindow,
		Cooldown:       cfg.Ingest.Cooldown,
		PersistTimeout: cfg.Ingest.PersistTimeout,
		ShutdownGrace:  cfg.Ingest.ShutdownGrace,
	})

	a.Aggregator = app.NewAggregator(app.AggregatorDeps{
		Events:    usageStore,
		Customers: sqlite.NewCustomerStore(db),
		Summaries: sqlite.NewSummaryStore(db),
		Clock:     wallClock,
		IDGen:     idgen.UUID{},
		Logger:    logger,
		Metrics:   a.Metrics,
	}, catalog, app.AggregatorConfig{CheckInterval: cfg.Aggregator.CheckInterval})

	a.initHTTPServer(cfg, wallClock)

	return a, nil
}

func (a *App) initHTTPServer(cfg *config.Config, wallClock clock.Real) {
	resolver := auth.NewTokenService(cfg.Auth.JWTSecret, 0)

	var meter func(next http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		meter = meterhttp.NewMeterMiddleware(resolver, a.Limiter, a.Pipeline, wallClock, a.Logger)
	}

	router := meterhttp.NewRouter(meterhttp.NewHealthHandler(a.DB), a.Logger, meterhttp.RouterConfig{
		AdminHandler:   meterhttp.NewAdminHandler(a.Aggregator, a.Logger).Routes(),
		Meter:          meter,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	})

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// Run starts the background loops and the HTTP server, blocking until
// SIGINT/SIGTERM or a server error, then shuts down gracefully.
func (a *App) Run() error {
	bgCtx, cancel := context.WithCancel(context.Background())
	a.bgCancel = cancel

	a.startBackground(bgCtx, a.Pipeline.Run)
	if a.aggEnabled {
		a.startBackground(bgCtx, a.Aggregator.Run)
	} else {
		a.Logger.Info().Msg("monthly aggregation job disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

func (a *App) startBackground(ctx context.Context, run func(context.Context)) {
	done := make(chan struct{})
	a.bgDone = append(a.bgDone, done)
	go func() {
		defer close(done)
		run(ctx)
	}()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests first so no new events are enqueued.
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Stop the drain loop and the aggregator; the pipeline grants
	// in-flight persists their grace period before Run returns.
	if a.bgCancel != nil {
		a.bgCancel()
	}
	for _, done := range a.bgDone {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.rateStore != nil {
		a.rateStore.Close()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// planCatalog builds the immutable plan catalog from config.
func planCatalog(cfg *config.Config) *plan.Catalog {
	plans := make([]plan.Plan, 0, len(cfg.Plans))
	for _, p := range cfg.Plans {
		plans = append(plans, plan.Plan{
			Name:              p.Name,
			RequestsPerSecond: p.RequestsPerSecond,
			MonthlyQuota:      p.MonthlyQuota,
			PricePerCall:      p.PricePerCall,
			Currency:          p.Currency,
		})
	}
	return plan.NewCatalog(plans)
}

func setupLogger(cfg *config.Config) zerolog.Logger {
	levelStr := "info"
	format := "json"
	if cfg != nil {
		levelStr = cfg.Logging.Level
		format = cfg.Logging.Format
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
