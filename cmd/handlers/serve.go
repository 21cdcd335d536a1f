package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sentilytics/internal/app"
	"sentilytics/internal/auth"
	"sentilytics/internal/config"
	"sentilytics/internal/logger"
	"sentilytics/internal/preferences"
	"sentilytics/internal/server"

	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command for starting the HTTP server
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Sentilytics web application",
		Long: `Start the Sentilytics HTTP server.

The server provides:
  • Sign-in, registration and account management through Firebase
  • URL, file, single review and competitive analysis endpoints
  • The analytics dashboard, alerts and per-user preferences
  • A health check endpoint

Preferences and product history are kept in the local SQLite store, or in
PostgreSQL when database.connection_string (or DATABASE_URL) is set.

Examples:
  # Start server on default port 8080
  sentilytics serve

  # Start on custom port
  sentilytics serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")

	return cmd
}

func runServe(ctx context.Context, port int, host string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Get()
	log.Info("Starting HTTP server")

	// Load configuration
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override server config from flags if provided
	serverCfg := cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	events := newPostHog(cfg, log)
	svc, closeClient, err := newAnalysisService(ctx, cfg, events, log)
	if err != nil {
		return err
	}
	defer closeClient()

	if cfg.Auth.FirebaseAPIKey == "" {
		log.Warn("No Firebase API key configured; sign-in will fail until FIREBASE_API_KEY is set")
	}
	provider := auth.NewFirebaseProvider(auth.FirebaseOptions{
		APIKey:  cfg.Auth.FirebaseAPIKey,
		BaseURL: cfg.Auth.BaseURL,
		Timeout: cfg.Auth.RequestTimeout(),
		Log:     log,
	})

	theme, _ := preferences.ParseTheme(cfg.App.DefaultTheme)

	// Create HTTP server
	srv := server.New(server.Deps{
		Auth:     provider,
		Sessions: auth.NewSessions(cfg.Auth.SessionTTL),
		App: app.Config{
			Analyzer:      svc,
			Store:         db,
			DefaultModels: svc.DefaultModels(),
			AlertTTL:      cfg.Alerts.TTL,
			PollInterval:  cfg.Analytics.PollInterval,
			Pages:         events,
			Log:           log,
		},
		DefaultTheme: theme,
		Events:       events,
		Health:       db.Ping,
	}, serverCfg)

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		log.Info(fmt.Sprintf("Server listening on http://%s:%d", serverCfg.Host, serverCfg.Port))
		log.Info("Press Ctrl+C to stop")
		serverErrors <- srv.Start()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive our signal or an error from server
	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case sig := <-shutdown:
		log.Info("Server shutdown initiated", "signal", sig.String())

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()

		// Attempt graceful shutdown
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown failed, forcing close", "error", err)
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		if err := events.Shutdown(shutdownCtx); err != nil {
			log.Warn("Failed to flush analytics events", "error", err)
		}

		log.Info("Server stopped successfully")
	}

	return nil
}
