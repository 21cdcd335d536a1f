package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"sentilytics/internal/analysis"
	"sentilytics/internal/app"
	"sentilytics/internal/config"
	"sentilytics/internal/llm"
	"sentilytics/internal/observability"
	"sentilytics/internal/persistence"
	"sentilytics/internal/store"
)

// backingStore is what every command needs from SQLite or Postgres.
type backingStore interface {
	app.Store
	Ping(ctx context.Context) error
	Close() error
}

// openStore returns Postgres when a connection string is configured and the
// local SQLite store otherwise.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (backingStore, error) {
	if cfg.Database.ConnectionString != "" {
		log.Info("Connecting to database")
		db, err := persistence.NewPostgresDB(cfg.Database.ConnectionString, cfg.Database.MaxOpenConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("database ping failed: %w\n\n"+
				"Make sure PostgreSQL is running and the connection string is correct.\n"+
				"Run 'sentilytics migrate up' to initialize the database schema.", err)
		}
		return db, nil
	}

	s, err := store.NewStore(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	log.Info("Using local store", "path", s.Path())
	return s, nil
}

// newAnalysisService builds the Gemini client and the analysis service on top of it.
// The returned close func releases the client.
func newAnalysisService(ctx context.Context, cfg *config.Config, tracker analysis.Tracker, log *slog.Logger) (*analysis.Service, func(), error) {
	gemini := cfg.AI.Gemini
	client, err := llm.NewClient(ctx, llm.Options{
		APIKey:      gemini.APIKey,
		Timeout:     gemini.GeminiTimeout(),
		Temperature: gemini.Temperature,
	})
	if err != nil {
		return nil, nil, err
	}
	if !client.HasAPIKey() {
		log.Warn("No Gemini API key configured; analyses will fail until GEMINI_API_KEY is set")
	}

	opts := []analysis.Option{
		analysis.WithDefaultModels(analysis.Models{Pro: gemini.ProModel, Flash: gemini.FlashModel}),
		analysis.WithLogger(log),
	}
	if tracker != nil {
		opts = append(opts, analysis.WithTracker(tracker))
	}
	return analysis.NewService(client, opts...), client.Close, nil
}

// newPostHog returns the configured PostHog client, or a disabled one.
func newPostHog(cfg *config.Config, log *slog.Logger) *observability.PostHogClient {
	client, err := observability.NewPostHogClient(cfg.PostHog, log)
	if err != nil {
		log.Warn("PostHog disabled", "error", err)
		return observability.Disabled()
	}
	return client
}
