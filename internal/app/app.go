// Package app holds one signed-in session's state: the active tab, the
// alert queue, preferences and every screen.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sentilytics/internal/alerts"
	"sentilytics/internal/analysis"
	"sentilytics/internal/analytics"
	"sentilytics/internal/auth"
	"sentilytics/internal/core"
	"sentilytics/internal/preferences"
	"sentilytics/internal/screen"
)

// Tab is a navigation target.
type Tab string

const (
	TabDashboard   Tab = "dashboard"
	TabURL         Tab = "url-analysis"
	TabFile        Tab = "file-upload"
	TabReview      Tab = "single-review"
	TabCompetitive Tab = "competitive-analysis"
	TabAnalytics   Tab = "analytics"
	TabReporting   Tab = "reporting"
	TabSettings    Tab = "settings"
	TabAppSettings Tab = "app-settings"
)

var pageTitles = map[Tab]string{
	TabDashboard:   "Dashboard",
	TabURL:         "Product URL Analysis",
	TabFile:        "File Upload Analysis",
	TabReview:      "Single Review Analysis",
	TabCompetitive: "Competitive Analysis",
	TabAnalytics:   "Analytics Dashboard",
	TabReporting:   "Reporting",
	TabSettings:    "Profile & Settings",
	TabAppSettings: "Application Settings",
}

// ParseTab returns the tab named s, or the dashboard for anything unknown.
func ParseTab(s string) Tab {
	if _, ok := pageTitles[Tab(s)]; ok {
		return Tab(s)
	}
	return TabDashboard
}

// Title is the page header for t.
func (t Tab) Title() string {
	if title, ok := pageTitles[t]; ok {
		return title
	}
	return pageTitles[TabDashboard]
}

// Store persists preferences and product history.
type Store interface {
	preferences.KV
	analytics.History
}

// PageTracker records tab changes. *observability.PostHogClient satisfies it.
type PageTracker interface {
	PageView(ctx context.Context, tab string) error
}

// Config is shared by every session.
type Config struct {
	Analyzer      screen.Analyzer
	Store         Store
	DefaultModels analysis.Models
	AlertTTL      time.Duration
	PollInterval  time.Duration
	Trends        analytics.TrendsProvider // nil uses jittered sample data
	Pages         PageTracker              // optional
	Log           *slog.Logger
}

// App is one session. It never calls the analysis service itself; screens do.
type App struct {
	Alerts      *alerts.Queue
	Prefs       *preferences.Manager
	URL         *screen.ProductScreen
	File        *screen.FileScreen
	Review      *screen.ReviewScreen
	Competitive *screen.CompetitiveScreen
	Analytics   *analytics.Screen

	pages PageTracker
	log   *slog.Logger

	mu   sync.Mutex
	user *auth.User
	tab  Tab
}

// New builds the session for u and loads its preferences. systemTheme is the
// theme used when none is stored.
func New(ctx context.Context, u *auth.User, cfg Config, systemTheme preferences.Theme) (*App, error) {
	if u == nil || u.ID == "" {
		return nil, fmt.Errorf("app requires a signed-in user")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("user", u.ID)

	if cfg.Store == nil {
		return nil, fmt.Errorf("app requires a store")
	}

	queue := alerts.NewQueue(cfg.AlertTTL)
	prefs := preferences.NewManager(cfg.Store, u.ID, cfg.DefaultModels, queue, log)
	if _, err := prefs.Load(ctx, systemTheme); err != nil {
		queue.Close()
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	board := analytics.NewScreen(analytics.Options{
		Provider:     cfg.Trends,
		History:      cfg.Store,
		Owner:        u.ID,
		Notifier:     queue,
		PollInterval: cfg.PollInterval,
		Log:          log,
	})
	deps := screen.Deps{
		Notifier: queue,
		Models:   prefs,
		Log:      log,
		OnProduct: func(ctx context.Context, snap core.ProductSnapshot) {
			board.Record(ctx, snap)
		},
	}

	return &App{
		Alerts:      queue,
		Prefs:       prefs,
		URL:         screen.NewProductScreen(cfg.Analyzer, deps),
		File:        screen.NewFileScreen(cfg.Analyzer, deps),
		Review:      screen.NewReviewScreen(cfg.Analyzer, deps),
		Competitive: screen.NewCompetitiveScreen(cfg.Analyzer, deps),
		Analytics:   board,
		pages:       cfg.Pages,
		log:         log,
		user:        u,
		tab:         TabDashboard,
	}, nil
}

// User returns the signed-in user.
func (a *App) User() *auth.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

// SetUser replaces the user after a profile change.
func (a *App) SetUser(u *auth.User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = u
}

// Tab returns the active tab.
func (a *App) Tab() Tab {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tab
}

// Navigate switches to the tab named name (unknown names go to the
// dashboard) and returns it. Entering analytics starts its polling and
// leaving stops it.
func (a *App) Navigate(ctx context.Context, name string) Tab {
	next := ParseTab(name)

	a.mu.Lock()
	prev := a.tab
	a.tab = next
	a.mu.Unlock()

	if prev == next {
		return next
	}
	if prev == TabAnalytics {
		a.Analytics.Unmount()
	}
	if next == TabAnalytics {
		if err := a.Analytics.Mount(); err != nil {
			a.log.Error("failed to mount analytics", "error", err)
		}
	}
	if a.pages != nil {
		if err := a.pages.PageView(ctx, string(next)); err != nil {
			a.log.Debug("failed to track page view", "error", err)
		}
	}
	return next
}

// Logout returns to the dashboard and raises the signed-out notice.
func (a *App) Logout(ctx context.Context) alerts.Alert {
	a.Navigate(ctx, string(TabDashboard))
	return a.Alerts.Raise("You have been logged out.", alerts.KindInfo)
}

// Close stops analytics polling and alert timers. The App must not be used afterwards.
func (a *App) Close() {
	a.Analytics.Unmount()
	a.Alerts.Close()
}

// View is the shell state: user, navigation, preferences and alerts.
type View struct {
	User        *auth.User              `json:"user"`
	Tab         Tab                     `json:"tab"`
	Title       string                  `json:"title"`
	Preferences preferences.Preferences `json:"preferences"`
	Alerts      []alerts.Alert          `json:"alerts"`
}

// View returns the shell state.
func (a *App) View() View {
	a.mu.Lock()
	u, tab := a.user, a.tab
	a.mu.Unlock()
	return View{
		User:        u,
		Tab:         tab,
		Title:       tab.Title(),
		Preferences: a.Prefs.Current(),
		Alerts:      a.Alerts.List(),
	}
}
