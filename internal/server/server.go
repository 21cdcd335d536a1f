package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"sentilytics/internal/app"
	"sentilytics/internal/auth"
	"sentilytics/internal/config"
	"sentilytics/internal/logger"
	"sentilytics/internal/preferences"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
)

// EventTracker records product-analytics events. *observability.PostHogClient satisfies it.
type EventTracker interface {
	TrackAuth(ctx context.Context, event, method string) error
	TrackExport(ctx context.Context, screen string) error
	Identify(ctx context.Context, email, displayName string) error
}

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Auth         auth.Provider
	Sessions     *auth.Sessions
	App          app.Config
	DefaultTheme preferences.Theme
	Events       EventTracker                    // optional
	Health       func(ctx context.Context) error // optional store check
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     config.Server
	deps       Deps
	sessions   *auth.Sessions
	log        *slog.Logger
	sweeper    *cron.Cron

	mu   sync.Mutex
	apps map[string]*app.App
}

// New creates a new HTTP server instance
func New(deps Deps, cfg config.Server) *Server {
	if deps.Sessions == nil {
		deps.Sessions = auth.NewSessions(0)
	}
	if _, ok := preferences.ParseTheme(string(deps.DefaultTheme)); !ok {
		deps.DefaultTheme = preferences.ThemeDark
	}
	if deps.App.Log == nil {
		deps.App.Log = logger.Get()
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		deps:     deps,
		sessions: deps.Sessions,
		log:      deps.App.Log.With("component", "server"),
		apps:     make(map[string]*app.App),
	}
	s.sessions.Subscribe(s.onSessionChange)

	s.sweeper = cron.New()
	if _, err := s.sweeper.AddFunc("@every 10m", func() {
		if n := s.sessions.Sweep(); n > 0 {
			s.log.Info("expired sessions removed", "count", n)
		}
	}); err != nil {
		s.log.Error("failed to schedule session sweep", "error", err)
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	// Model calls can run for minutes; keep the handler deadline just under the write timeout.
	timeout := s.config.WriteTimeout - time.Second
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	s.router.Use(middleware.Timeout(timeout))
	s.router.Use(securityHeaders)

	if s.config.CORS.Enabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "HX-Request", "HX-Target", "HX-Trigger"},
			ExposedHeaders:   []string{"HX-Trigger", "HX-Refresh", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if s.config.RateLimit.Enabled {
		limit := s.config.RateLimit.Limit
		if limit <= 0 {
			limit = 100
		}
		s.router.Use(middleware.Throttle(limit))
	}
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(noCache)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/register", s.handleRegister)
			r.Post("/federated", s.handleFederated)

			r.Group(func(r chi.Router) {
				r.Use(s.requireSession)
				r.Post("/logout", s.handleLogout)
				r.Patch("/profile", s.handleUpdateProfile)
				r.Post("/password", s.handleUpdatePassword)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Get("/app", s.handleAppView)
			r.Post("/app/tab", s.handleNavigate)

			r.Route("/analyze", func(r chi.Router) {
				r.Post("/url", s.handleAnalyzeURL)
				r.Post("/file", s.handleAnalyzeFile)
				r.Post("/review", s.handleAnalyzeReview)
				r.Post("/compare", s.handleCompare)
				r.Get("/{kind}", s.handleAnalysisSnapshot)
				r.Get("/{kind}/export", s.handleAnalysisExport)
			})

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/", s.handleAnalyticsView)
				r.Get("/products", s.handleAnalyticsProducts)
				r.Get("/products/export", s.handleAnalyticsExport)
			})

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", s.handleListAlerts)
				r.Delete("/{id}", s.handleDismissAlert)
			})

			r.Route("/preferences", func(r chi.Router) {
				r.Get("/", s.handleGetPreferences)
				r.Put("/theme", s.handleSetTheme)
				r.Put("/accent", s.handleSetAccent)
				r.Delete("/accent", s.handleResetAccent)
				r.Put("/models", s.handleSetModels)
				r.Post("/clear", s.handleClearPreferences)
			})
		})
	})
}

// appFor returns the session's App, creating it on first use. The App is
// built without holding s.mu; when two first requests race, the first one
// stored wins and the other is closed.
func (s *Server) appFor(ctx context.Context, sessionID string, u *auth.User, theme preferences.Theme) (*app.App, error) {
	s.mu.Lock()
	a, ok := s.apps[sessionID]
	s.mu.Unlock()
	if ok {
		return a, nil
	}

	built, err := app.New(ctx, u, s.deps.App, theme)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if a, ok := s.apps[sessionID]; ok {
		s.mu.Unlock()
		built.Close()
		return a, nil
	}
	s.apps[sessionID] = built
	s.mu.Unlock()
	return built, nil
}

func (s *Server) onSessionChange(e auth.Event) {
	if e.User != nil {
		s.log.Info("session started", "user", e.User.ID)
		return
	}
	s.mu.Lock()
	a, ok := s.apps[e.SessionID]
	delete(s.apps, e.SessionID)
	s.mu.Unlock()
	if ok {
		a.Close()
	}
	s.log.Info("session ended")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.sweeper.Start()

	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server and every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	s.sweeper.Stop()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.mu.Lock()
	apps := s.apps
	s.apps = make(map[string]*app.App)
	s.mu.Unlock()
	for _, a := range apps {
		a.Close()
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
