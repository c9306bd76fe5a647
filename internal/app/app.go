package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/metric"

	"langworker/internal/config"
	"langworker/internal/engine"
	apierrors "langworker/internal/errors"
	"langworker/internal/grammar"
	"langworker/internal/guard"
	"langworker/internal/infrastructure"
	customMiddleware "langworker/internal/middleware"
	"langworker/internal/services"
	"langworker/internal/speller"
	handlers "langworker/internal/transport/http"
	ws "langworker/internal/websocket"
	"langworker/pkg/contracts"
)

// Factories maps archive kinds to the analyzers this build ships
var Factories = engine.Factories{
	engine.KindSpeller: speller.New,
	engine.KindGrammar: grammar.New,
}

// Application represents the worker process: one loaded resource behind
// one HTTP listener.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	Resource       *engine.Resource
	Guard          *guard.Guard
	EngineMetrics  *infrastructure.EngineMetrics
	runtimeMetrics metric.Registration

	CheckService  *services.CheckService
	HealthService *services.HealthService
	ErrorHandler  *apierrors.ErrorHandler
	WebSocketHub  *ws.Hub

	Router   chi.Router
	Server   *http.Server
	listener net.Listener
	serveErr chan error

	startTime time.Time
	stopOnce  sync.Once
	stopErr   error
}

// New builds the application from cfg. The resource archive is loaded here,
// so a bad archive fails before any listener is bound; the returned error
// then wraps an *engine.LoadError.
func New(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return NewWithLogger(cfg, logger)
}

// NewWithLogger is New with an already configured logger
func NewWithLogger(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	a := &Application{
		Config:    cfg,
		Logger:    logger,
		serveErr:  make(chan error, 1),
		startTime: time.Now(),
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.OTelProviders = providers

	if err := a.loadResource(); err != nil {
		a.shutdownTelemetry(context.Background())
		return nil, err
	}

	if err := a.initializeServices(); err != nil {
		a.Resource.Close()
		a.shutdownTelemetry(context.Background())
		return nil, err
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

func (a *Application) loadResource() error {
	path := strings.TrimSpace(a.Config.BundlePath)
	if path == "" {
		return &engine.LoadError{Code: engine.LoadNotFound, Err: errors.New("no archive path given")}
	}

	kind, ok := engine.ParseKind(strings.ToLower(a.Config.Kind))
	if !ok {
		return &engine.LoadError{
			Code: engine.LoadUnsupportedFormat,
			Path: path,
			Err:  fmt.Errorf("unknown kind %q", a.Config.Kind),
		}
	}

	a.Logger.Info("Loading resource archive",
		slog.String("path", path),
		slog.String("kind", string(kind)))

	res, err := engine.Open(path, kind, Factories,
		engine.WithMaxTextBytes(a.Config.Engine.MaxTextBytes),
		engine.WithLogger(a.Logger))
	if err != nil {
		a.Logger.Error("Failed to load resource archive",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return err
	}
	a.Resource = res
	return nil
}

func (a *Application) initializeServices() error {
	engineCfg := a.Config.Engine

	// Gauges are only collected on scrape, after the guard exists.
	metrics, err := infrastructure.CreateEngineMetrics(a.OTelProviders.Meter, func() guard.Stats { return a.Guard.Stats() })
	if err != nil {
		return fmt.Errorf("failed to create engine metrics: %w", err)
	}
	a.EngineMetrics = metrics

	a.Guard = guard.New(a.Resource, guard.Config{
		MaxInFlight:  engineCfg.MaxInFlight,
		QueueTimeout: engineCfg.QueueTimeout,
		CallTimeout:  engineCfg.CallTimeout,
		MaxQueue:     engineCfg.MaxQueue,
	}, guard.WithObserver(metrics), guard.WithLogger(a.Logger))

	reg, err := infrastructure.RegisterRuntimeMetrics(a.OTelProviders.Meter, a.startTime)
	if err != nil {
		return fmt.Errorf("failed to register runtime metrics: %w", err)
	}
	a.runtimeMetrics = reg

	a.CheckService = services.NewCheckService(a.Guard, a.Resource.Language(), a.Resource.Kind(), engineCfg.MaxSuggestions, a.Logger)
	a.HealthService = services.NewHealthService(contracts.Version, a.Resource, a.Guard, a.Logger)
	a.ErrorHandler = apierrors.NewErrorHandler(a.Logger, false, engineCfg.QueueTimeout)

	wsMetrics, err := ws.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create websocket metrics: %w", err)
	}
	a.WebSocketHub = ws.NewHub(a.Logger, wsMetrics)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Only middleware that leaves the ResponseWriter alone runs before /ws
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	wsHandler := ws.NewHandler(a.WebSocketHub, a.CheckService, a.ErrorHandler,
		a.Config.Security.AllowedOrigins, a.Config.Server.MaxBodyBytes, a.Logger)
	r.Handle("/ws", wsHandler)

	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(apierrors.RecoveryMiddleware(a.ErrorHandler))
		r.Use(customMiddleware.SecurityHeaders)

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
				AllowedOrigins:   a.Config.Security.AllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Content-Type", customMiddleware.RequestIDHeader},
				ExposedHeaders:   []string{customMiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: false,
				MaxAge:           300,
				Logger:           a.Logger,
			}))
		}

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.ErrorHandler,
				a.Logger,
			).Handler)
		}

		r.Use(customMiddleware.MaxBodyBytes(a.Config.Server.MaxBodyBytes))

		checkHandler := handlers.NewCheckHandler(a.CheckService, a.Logger, a.ErrorHandler)
		r.Get("/", checkHandler.Page)
		r.Post("/", checkHandler.Check)
		r.Post("/check", checkHandler.Check)

		healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
		r.Mount("/health", healthHandler.Routes())
		r.Get("/version", healthHandler.Version)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:              a.Config.Address(),
		Handler:           a.Router,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		ReadHeaderTimeout: a.Config.Server.ReadTimeout,
		WriteTimeout:      a.Config.Server.WriteTimeout,
		IdleTimeout:       a.Config.Server.IdleTimeout,
		MaxHeaderBytes:    a.Config.Server.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(a.Logger.Handler(), slog.LevelWarn),
	}
}

// Start binds the listener and serves in the background. A bind failure is
// returned directly.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Starting worker",
		slog.String("version", contracts.Version),
		slog.String("address", a.Server.Addr),
		slog.String("language", a.Resource.Language()),
		slog.String("kind", string(a.Resource.Kind())),
		slog.Int("max_in_flight", a.Config.Engine.MaxInFlight))

	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	a.listener = ln

	a.WebSocketHub.Start()

	go func() {
		err := a.Server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			a.serveErr <- err
		}
		close(a.serveErr)
	}()

	a.Logger.InfoContext(ctx, "Worker started", slog.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the bound listener address, or the configured one before Start
func (a *Application) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.Server.Addr
}

// Stop stops admitting work, lets in-flight requests finish within the
// shutdown timeout and then releases the resource. It is safe to call more
// than once.
func (a *Application) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { a.stopErr = a.stop(ctx) })
	return a.stopErr
}

func (a *Application) stop(ctx context.Context) error {
	// One trace ID ties the shutdown log lines together.
	ctx = infrastructure.EnsureTraceID(ctx)
	a.Logger.InfoContext(ctx, "Shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error

	a.Guard.Close()

	if err := a.WebSocketHub.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("websocket hub: %w", err))
	}

	if a.listener != nil {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if err := a.Guard.Drain(shutdownCtx); err != nil {
		a.Logger.WarnContext(ctx, "Engine calls still running at shutdown",
			slog.Int64("abandoned", a.Guard.Stats().Abandoned),
			slog.String("error", err.Error()))
	}

	if err := a.Resource.Close(); err != nil {
		errs = append(errs, fmt.Errorf("resource close: %w", err))
	}
	if err := a.EngineMetrics.Unregister(); err != nil {
		errs = append(errs, fmt.Errorf("engine metrics: %w", err))
	}
	if a.runtimeMetrics != nil {
		if err := a.runtimeMetrics.Unregister(); err != nil {
			errs = append(errs, fmt.Errorf("runtime metrics: %w", err))
		}
	}

	a.shutdownTelemetry(shutdownCtx)

	err := errors.Join(errs...)
	if err != nil {
		a.Logger.ErrorContext(ctx, "Worker shutdown finished with errors", slog.String("error", err.Error()))
	} else {
		a.Logger.InfoContext(ctx, "Worker shutdown complete")
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
	return err
}

func (a *Application) shutdownTelemetry(ctx context.Context) {
	if a.OTelProviders == nil {
		return
	}
	if err := a.OTelProviders.Shutdown(ctx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}
}

// Run serves until ctx ends, SIGINT or SIGTERM arrives, or the server fails
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.Stop(context.WithoutCancel(ctx))
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "Received shutdown signal")
	case err, ok := <-a.serveErr:
		if ok {
			serveErr = err
		}
	}

	stopErr := a.Stop(context.WithoutCancel(ctx))
	if serveErr != nil {
		return fmt.Errorf("server failed: %w", serveErr)
	}
	return stopErr
}
