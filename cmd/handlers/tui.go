package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"sentilytics/internal/app"
	"sentilytics/internal/auth"
	"sentilytics/internal/config"
	"sentilytics/internal/logger"
	"sentilytics/internal/preferences"
	"sentilytics/internal/tui"

	"github.com/spf13/cobra"
)

// localUser owns the preferences and history of terminal sessions.
var localUser = &auth.User{ID: "local", DisplayName: "Local User"}

// NewTUICmd creates the TUI command
func NewTUICmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the Sentilytics Terminal User Interface",
		Long: `Launch the single review analyzer in the terminal.

Type or paste a review and press enter to analyze it. The model follows the
Flash selection saved in your preferences. Press ctrl+s to save the result
as CSV.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Directory for CSV exports (default: current directory)")

	return cmd
}

func runTUI(ctx context.Context, output string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// Anything below error would draw over the alt screen.
	if logger.ParseLevel(cfg.Logging.Level) < slog.LevelError {
		logger.SetLevel("error")
	}
	log := logger.Get()

	db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, closeClient, err := newAnalysisService(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer closeClient()

	theme, _ := preferences.ParseTheme(cfg.App.DefaultTheme)
	session, err := app.New(ctx, localUser, app.Config{
		Analyzer:      svc,
		Store:         db,
		DefaultModels: svc.DefaultModels(),
		AlertTTL:      cfg.Alerts.TTL,
		PollInterval:  cfg.Analytics.PollInterval,
		Log:           log,
	}, theme)
	if err != nil {
		return err
	}
	defer session.Close()
	session.Navigate(ctx, string(app.TabReview))

	return tui.Run(tui.Options{
		Screen:    session.Review,
		Alerts:    session.Alerts,
		OutputDir: output,
	})
}
