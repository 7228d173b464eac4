// Package app wires the bridge together and manages its lifecycle.
// One App instance corresponds to one authenticated CRM session: it
// is created after login and torn down on logout or process exit.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lingodesk/bellhop/internal/config"
	"github.com/lingodesk/bellhop/internal/crm"
	"github.com/lingodesk/bellhop/internal/dispatch"
	"github.com/lingodesk/bellhop/internal/history"
	"github.com/lingodesk/bellhop/internal/identity"
	"github.com/lingodesk/bellhop/internal/pkg/ctxlog"
	"github.com/lingodesk/bellhop/internal/pkg/httputil"
	"github.com/lingodesk/bellhop/internal/prefs"
	"github.com/lingodesk/bellhop/internal/presenter"
	"github.com/lingodesk/bellhop/internal/realtime"
	"github.com/lingodesk/bellhop/internal/version"
)

// App is one running bridge instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	userID        string
	store         *history.Store
	dispatcher    *dispatch.Dispatcher
	manager       *realtime.Manager
	server        *http.Server
	metricsServer *http.Server
}

// New builds a bridge for the session token in cfg. The user id is
// extracted from the token locally; the CRM verifies it on every call.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	userID, err := identity.UserID(cfg.CRM.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("resolve user from session token: %w", err)
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("open history cache: %w", err)
	}

	client := crm.NewClient(crm.Config{
		BaseURL:    cfg.CRM.BaseURL,
		Token:      cfg.CRM.SessionToken,
		Timeout:    cfg.CRM.RequestTimeout,
		MaxRetries: cfg.CRM.MaxRetries,
	})

	preferences := prefs.NewCache(client, cfg.CRM.PrefsTTL)
	dispatcher := dispatch.NewDispatcher(client, store, logger)

	renderer, err := presenter.NewRenderer()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	sinks := presenter.LogSinks{Logger: logger}
	gate := presenter.NewGate(presenter.Config{
		InterruptionsPerMinute: cfg.Presenter.InterruptionsPerMinute,
		Burst:                  cfg.Presenter.InterruptionBurst,
	}, preferences, renderer, presenter.Sinks{
		Toast:     sinks,
		Sound:     sinks,
		Desktop:   sinks,
		Focus:     sinks,
		Navigator: sinks,
	}, dispatcher, logger)
	dispatcher.Subscribe(gate.Notify)

	manager := realtime.NewManager(realtime.Config{
		Endpoint:          cfg.Realtime.Endpoint,
		Token:             cfg.CRM.SessionToken,
		HandshakeTimeout:  cfg.Realtime.HandshakeTimeout,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		InitialBackoff:    cfg.Realtime.InitialBackoff,
		MaxBackoff:        cfg.Realtime.MaxBackoff,
		MaxAttempts:       cfg.Realtime.MaxAttempts,
	}, dispatcher.HandleEvent)

	// Reconcile after every (re)connection to pick up anything pushed
	// while the channel was down. Runs on its own goroutine; state
	// handlers must not block.
	manager.OnStateChange(func(state realtime.State, attempt int) {
		logger.Info("connection state changed", "state", state, "attempt", attempt)
		if state != realtime.StateConnected {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := dispatcher.Refresh(ctx); err != nil {
				logger.Warn("reconcile after reconnect failed", "error", err)
			}
		}()
	})

	app := &App{
		config:     cfg,
		logger:     logger,
		userID:     userID,
		store:      store,
		dispatcher: dispatcher,
		manager:    manager,
	}

	handler := dispatch.NewHandler(dispatcher, preferences, manager)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Local.Host, cfg.Local.Port),
		Handler:           app.setupRouter(handler),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Local.Host, cfg.Local.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run seeds local state from the CRM, opens the push channel, and
// serves the control API until Shutdown.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Local.Host,
			"port", a.config.Local.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Seed the bell list and counter even if the push channel is slow
	// to come up. A failure here is not fatal: the reconnect handler
	// retries the reconciliation.
	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := a.dispatcher.Refresh(seedCtx); err != nil {
		a.logger.Warn("initial notification fetch failed", "error", err)
	}
	cancel()

	a.manager.Connect(a.userID)

	a.logger.Info("starting control api",
		"host", a.config.Local.Host,
		"port", a.config.Local.Port,
		"user_id", a.userID,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown closes the push channel, drains both HTTP listeners, and
// closes the history cache.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.manager.Disconnect()

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close history cache: %w", err))
	}

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter(handler *dispatch.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.LocalTokenMiddleware(a.config.Local.Token))
		handler.RegisterRoutes(r)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.store.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "History cache unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
