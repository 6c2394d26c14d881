// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyellow/kmutt-form-bot/internal/buildinfo"
	"github.com/garyellow/kmutt-form-bot/internal/catalog"
	"github.com/garyellow/kmutt-form-bot/internal/chat"
	"github.com/garyellow/kmutt-form-bot/internal/config"
	"github.com/garyellow/kmutt-form-bot/internal/document"
	"github.com/garyellow/kmutt-form-bot/internal/intent"
	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/maintenance"
	"github.com/garyellow/kmutt-form-bot/internal/metrics"
	"github.com/garyellow/kmutt-form-bot/internal/r2client"
	"github.com/garyellow/kmutt-form-bot/internal/ratelimit"
	"github.com/garyellow/kmutt-form-bot/internal/sentry"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

// retentionLockKey is the R2 object that serialises retention sweeps
// across replicas.
const retentionLockKey = "locks/retention-sweep.json"

// documentArchive is the read side of the R2 archive used by /output.
type documentArchive interface {
	Enabled() bool
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg        *config.Config
	logger     *logger.Logger
	db         *storage.DB
	metrics    *metrics.Metrics
	registry   *prometheus.Registry
	catalog    *catalog.Catalog
	components lazyComponents
	renderer   *document.Renderer
	chat       *chat.Service
	archive    documentArchive // nil when R2 is not configured
	sweeper    *maintenance.Sweeper
	limiter    *ratelimit.KeyedLimiter
	readiness  *readinessGate
	server     *http.Server
	wg         sync.WaitGroup // Track background goroutines for graceful shutdown
}

// Initialize creates and initializes a new application with all dependencies.
// The retriever and LLM clients are not built here unless EagerInit is set,
// and even then only in the background.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})

	log = log.WithField("service", "kmutt-form-bot")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Set as default logger so package-level slog.*Context() calls carry
	// request_id and client_ip through ContextHandler.
	slog.SetDefault(log.Logger)

	log.WithField("version", buildinfo.Release()).Info("Initializing application...")
	if log.RemoteEnabled() {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.SentryToken,
		Host:        cfg.SentryHost,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Release(),
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed, error tracking disabled")
	} else if sentry.IsEnabled() {
		log.WithField("environment", cfg.SentryEnvironment).Info("Sentry error tracking enabled")
	}

	for _, dir := range []string{cfg.DataDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	db, err := storage.New(cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	cat := catalog.Default()
	parser, err := document.NewParser(cat)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("extraction parser: %w", err)
	}
	renderer := document.NewRenderer(cat, cfg.TemplateDir, cfg.OutputDir, db, m)

	r2, err := openArchive(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: %w", err)
	}
	archive := r2client.NewArchive(r2)

	sweepOpts := maintenance.Options{Metrics: m}
	var docs documentArchive
	if archive != nil {
		docs = archive
		sweepOpts.Archive = archive
		sweepOpts.Lock = r2client.NewDistributedLock(r2, retentionLockKey, config.RetentionLockTTL)
		log.WithField("bucket", cfg.R2BucketName).Info("R2 archive enabled")
	}
	sweeper := maintenance.NewSweeper(db, cfg.OutputDir, cfg.OutputRetention, log, sweepOpts)

	limiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "client",
		Burst:         cfg.RateBurst,
		RefillRate:    cfg.RateRefill,
		CleanupPeriod: config.RateLimiterCleanup,
		Metrics:       m,
	})

	app := &Application{
		cfg:       cfg,
		logger:    log,
		db:        db,
		metrics:   m,
		registry:  registry,
		catalog:   cat,
		renderer:  renderer,
		archive:   docs,
		sweeper:   sweeper,
		limiter:   limiter,
		readiness: newReadinessGate(config.EagerInitGrace, !cfg.EagerInit),
	}
	app.components = app.newLazyComponents()

	chatCfg := chat.Config{
		Catalog:       cat,
		Router:        intent.NewRouter(),
		Retriever:     app.components.retriever,
		Advisor:       app.components.advisor,
		Extractor:     app.components.extractor,
		Parser:        parser,
		Renderer:      renderer,
		Registry:      db,
		PublicBaseURL: cfg.PublicBaseURL,
		Metrics:       m,
		Logger:        log,
	}
	if archive != nil {
		chatCfg.Archive = archive
	}
	app.chat = chat.NewService(chatCfg)

	if !cfg.HasLLMProvider() {
		log.Warn("No LLM provider key configured, /chat will answer with a system error")
	}

	gin.SetMode(gin.ReleaseMode)
	handler, err := compressJSON(app.routes())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("gzip: %w", err)
	}

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: config.HTTPReadHeader,
		ReadTimeout:       config.HTTPRead,
		WriteTimeout:      config.HTTPWrite,
		IdleTimeout:       config.HTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

// routes builds the gin router. Middleware order: recovery, sentry,
// security headers, CORS, request context, access log.
func (a *Application) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if sentry.IsEnabled() {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(securityHeadersMiddleware())
	router.Use(corsMiddleware())
	router.Use(requestContextMiddleware())
	router.Use(loggingMiddleware(a.logger, a.metrics))

	router.GET("/", a.root)
	router.HEAD("/", a.root)
	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)

	router.POST("/chat", rateLimitMiddleware(a.limiter, chatRateLimited), a.handleChat)
	router.POST("/generate-document", rateLimitMiddleware(a.limiter, detailRateLimited), a.handleGenerateDocument)
	router.GET("/output/:name", a.serveOutput)
	router.HEAD("/output/:name", a.serveOutput)

	router.GET("/metrics",
		metricsAuthMiddleware(a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	return router
}

// Run starts the HTTP server and background jobs.
//
// Shutdown order: cancel background jobs and wait for them, stop accepting
// requests, wait for archive uploads started by in-flight requests, then
// close clients and the database.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	errCh := a.startHTTPServer()

	select {
	case sig := <-a.waitForShutdownSignal():
		a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-errCh:
		a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
	}

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startBackgroundJobs starts all background goroutines tracked by WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	if a.sweeper.Enabled() {
		a.wg.Go(func() {
			a.sweeper.Run(ctx, config.RetentionSweepInterval)
		})
	}
	if a.cfg.EagerInit {
		a.wg.Go(func() {
			a.warmComponents(ctx)
		})
	}
}

// warmComponents builds the lazy components up front. Failures are logged
// and left for the first request to retry.
func (a *Application) warmComponents(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, config.EagerInitGrace)
	defer cancel()

	start := time.Now()
	var errs []error
	if _, err := a.components.retriever.Get(ctx); err != nil {
		errs = append(errs, fmt.Errorf("retriever: %w", err))
	}
	if _, err := a.components.advisor.Get(ctx); err != nil {
		errs = append(errs, fmt.Errorf("advisor: %w", err))
	}
	if _, err := a.components.extractor.Get(ctx); err != nil {
		errs = append(errs, fmt.Errorf("extractor: %w", err))
	}

	a.readiness.MarkReady()
	entry := a.logger.WithField("duration_ms", time.Since(start).Milliseconds())
	if err := errors.Join(errs...); err != nil {
		entry.WithError(err).Warn("Eager initialization incomplete, components will build on first use")
		return
	}
	entry.Info("Eager initialization complete")
}

// startHTTPServer starts the HTTP server in a goroutine. A listen failure
// is delivered on the returned channel.
func (a *Application) startHTTPServer() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

// waitForShutdownSignal delivers SIGINT/SIGTERM.
func (a *Application) waitForShutdownSignal() <-chan os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return quit
}

// shutdown performs graceful shutdown of HTTP server and resources.
// This method should be called AFTER background jobs have been stopped and completed.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Waiting for archive uploads to complete...")
	if err := a.chat.Wait(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Archive uploads did not finish before shutdown")
	}

	a.logger.Info("Closing resources...")
	closers := map[string]func() error{
		"retriever": func() error { return closeBuilt(a.components.retriever) },
		"advisor":   func() error { return closeBuilt(a.components.advisor) },
		"extractor": func() error { return closeBuilt(a.components.extractor) },
	}
	for name, closeFn := range closers {
		if err := closeFn(); err != nil {
			a.logger.WithError(err).WithField("component", name).Error("Component close error")
		}
	}

	if a.limiter != nil {
		a.limiter.Stop()
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}

	if sentry.IsEnabled() && !sentry.Flush(2*time.Second) {
		a.logger.Warn("Sentry flush timed out")
	}

	a.logger.Info("Shutdown complete")
	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		// Remote sink is gone; stdout still works.
		slog.Warn("Logger shutdown timed out", "error", err)
	}
	return nil
}
