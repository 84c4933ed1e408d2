// Package server is the composition root: it opens the store and the
// session backend, builds the services and handlers, and mounts the routes.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → repository.Store (sqlite | postgres)
//	              → session.Store (memory | redis) → session.Manager
//	Store + Manager → AuthService, PreferencesService → handlers → routes
//
// Nothing below this package constructs its own dependencies.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/closetmatrix/closet-matrix/internal/auth"
	"github.com/closetmatrix/closet-matrix/internal/config"
	"github.com/closetmatrix/closet-matrix/internal/handler"
	"github.com/closetmatrix/closet-matrix/internal/middleware"
	"github.com/closetmatrix/closet-matrix/internal/repository"
	"github.com/closetmatrix/closet-matrix/internal/repository/postgres"
	sqliteRepo "github.com/closetmatrix/closet-matrix/internal/repository/sqlite"
	"github.com/closetmatrix/closet-matrix/internal/service"
	"github.com/closetmatrix/closet-matrix/internal/session"
	"github.com/closetmatrix/closet-matrix/web"
)

const (
	janitorInterval = time.Minute
	shutdownTimeout = 30 * time.Second
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store and, with the redis backend, the Redis client.
// Both are closed by Close, which Start calls on its way out.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	store    repository.Store
	sessions *session.Manager
	memory   *session.MemoryStore // memory backend only
	redis    *redis.Client        // redis backend only
	registry *prometheus.Registry
}

// New opens the configured backends and wires every route.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	return newServer(ctx, cfg, logger, auth.NewPasswordService())
}

func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, passwords *auth.PasswordService) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		store:    store,
		registry: prometheus.NewRegistry(),
	}

	if err := s.openSessions(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.setupRoutes(passwords); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return store, nil
	default:
		store, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return store, nil
	}
}

func (s *Server) openSessions(ctx context.Context) error {
	opts := session.Options{
		TTL:         s.config.SessionTTL,
		IdleTimeout: s.config.SessionIdleTimeout,
	}

	if s.config.SessionBackend != config.SessionsRedis {
		s.memory = session.NewMemoryStore()
		s.sessions = session.NewManager(s.memory, opts, s.logger)
		return nil
	}

	client, err := newRedisClient(s.config.RedisURL)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("connecting to redis: %w", err)
	}
	s.redis = client
	s.sessions = session.NewManager(session.NewRedisStore(client), opts, s.logger)
	return nil
}

// newRedisClient accepts a redis:// URL or a bare host:port.
func newRedisClient(raw string) (*redis.Client, error) {
	if strings.HasPrefix(raw, "redis://") || strings.HasPrefix(raw, "rediss://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: raw}), nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET       /                      → home page             (login required)
// GET       /profile               → profile page          (login required)
// GET       /login, /register      → forms                 (public)
// POST      /login, /register      → form submissions      (public)
// GET|POST  /logout                → end the session
// GET       /session-status        → who is logged in (JSON)
// GET|POST  /preferences           → Preferences API (JSON, 401 when anonymous)
// GET       /auth/github/*         → optional GitHub sign-in
// GET       /healthz, /metrics     → operations
// GET       /static/*              → embedded CSS and JS
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID — assigns the id the logger prints
//  2. RealIP — rewrites RemoteAddr from proxy headers
//  3. Logger and Metrics — see the final status
//  4. Recoverer — turns a panic into a 500 the two above can record
func (s *Server) setupRoutes(passwords *auth.PasswordService) error {
	metrics, err := middleware.NewMetrics(middleware.MetricsOptions{Registerer: s.registry})
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	if err := s.registerRuntimeMetrics(); err != nil {
		return err
	}

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(metrics.Handler)
	s.router.Use(chimiddleware.Recoverer)

	// === Services ===
	authService := service.NewAuthService(
		s.store,
		s.store,
		s.sessions,
		passwords,
		service.LoginPolicy{
			MaxFailures:   s.config.LoginMaxFailures,
			FailureWindow: s.config.LoginFailureWindow,
		},
		s.logger,
	)
	prefsService := service.NewPreferencesService(s.store, s.logger)

	// Interface values stay nil unless configured; a typed nil pointer
	// would look enabled to the handler.
	var github handler.OAuthProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}
	var remember handler.RememberTokens
	if s.config.RememberSecret != "" {
		signer, err := auth.NewRememberSigner(s.config.RememberSecret)
		if err != nil {
			return fmt.Errorf("creating remember-me signer: %w", err)
		}
		remember = signer
	}

	// === Handlers ===
	gate := auth.NewGate(s.sessions, s.config.SessionCookieName, s.logger)
	authHandler := handler.NewAuthHandler(authService, github, remember, handler.CookieConfig{
		SessionName: s.config.SessionCookieName,
		Secure:      s.config.CookieSecure,
	}, s.logger)
	prefsHandler := handler.NewPreferencesHandler(prefsService, s.logger)
	pageHandler, err := handler.NewPageHandler(web.Templates(), authHandler.RememberedEmail, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}

	checks := map[string]handler.Pinger{"store": s.store}
	if s.redis != nil {
		checks["sessions"] = session.NewRedisStore(s.redis)
	}
	healthHandler := handler.NewHealthHandler(checks, s.logger)

	// === Operational ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))

	// === Public ===
	s.router.Group(func(r chi.Router) {
		r.Use(gate.Optional)
		r.Get("/login", pageHandler.HandleLoginPage)
		r.Get("/register", pageHandler.HandleRegisterPage)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/register", authHandler.HandleRegister)
		r.Get("/logout", authHandler.HandleLogout)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/session-status", authHandler.HandleSessionStatus)
		r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	})

	// === Pages (login required) ===
	s.router.Group(func(r chi.Router) {
		r.Use(gate.RequirePage)
		r.Get("/", pageHandler.HandleHome)
		r.Get("/profile", pageHandler.HandleProfile)
	})

	// === JSON API (login required) ===
	s.router.Group(func(r chi.Router) {
		r.Use(gate.RequireAPI)
		r.Get("/preferences", prefsHandler.HandleGet)
		r.Post("/preferences", prefsHandler.HandleUpdate)
	})

	return nil
}

func (s *Server) registerRuntimeMetrics() error {
	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	if s.memory != nil {
		memory := s.memory
		cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "closet",
			Subsystem: "sessions",
			Name:      "stored",
			Help:      "Sessions held by the in-memory store, including expired ones not yet swept.",
		}, func() float64 { return float64(memory.Len()) }))
	}
	for _, c := range cs {
		if err := s.registry.Register(c); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store and the Redis client.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//  3. Stop the session janitor and close the backends
func (s *Server) Start() error {
	defer s.Close()

	ctx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	if s.memory != nil {
		go s.memory.RunJanitor(ctx, janitorInterval, s.logger)
	}

	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("env", s.config.Env),
			slog.String("db_driver", s.config.DBDriver),
			slog.String("session_backend", s.config.SessionBackend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
