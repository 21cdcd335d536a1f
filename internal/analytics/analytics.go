// Package analytics implements the analytics screen: periodically refreshed
// sentiment trends, the product comparison table and its CSV export.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sentilytics/internal/alerts"
	"sentilytics/internal/core"
	"sentilytics/internal/render"

	"github.com/robfig/cron/v3"
)

// DefaultPollInterval is how often trends are refreshed while mounted.
const DefaultPollInterval = 30 * time.Second

// pollTimeout bounds a single trends request.
const pollTimeout = 20 * time.Second

// History persists product analyses. store.Store and persistence.PostgresDB satisfy it.
type History interface {
	RecordProduct(ctx context.Context, owner string, p core.ProductSnapshot) error
	ListProducts(ctx context.Context, owner string) ([]core.ProductSnapshot, error)
}

// Options configures a Screen.
type Options struct {
	Provider     TrendsProvider
	History      History // nil keeps the table to the sample products
	Owner        string
	Notifier     alerts.Notifier
	PollInterval time.Duration
	Log          *slog.Logger
}

// Screen is one session's analytics screen. Polling runs only while mounted.
type Screen struct {
	provider TrendsProvider
	history  History
	owner    string
	notifier alerts.Notifier
	interval time.Duration
	log      *slog.Logger

	mu         sync.Mutex
	trends     []core.TrendPoint
	refreshing bool
	lastPoll   time.Time
	search     string
	sort       *SortConfig
	scheduler  *cron.Cron
}

// NewScreen creates an unmounted analytics screen.
func NewScreen(opts Options) *Screen {
	if opts.Provider == nil {
		opts.Provider = NewSampleTrends(time.Now().UnixNano(), 300*time.Millisecond)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	trends := make([]core.TrendPoint, len(BaseTrends))
	copy(trends, BaseTrends)
	return &Screen{
		provider: opts.Provider,
		history:  opts.History,
		owner:    opts.Owner,
		notifier: opts.Notifier,
		interval: opts.PollInterval,
		log:      opts.Log.With("screen", "analytics"),
		trends:   trends,
	}
}

// Mount polls immediately and then on every interval until Unmount.
// Mounting an already mounted screen is a no-op.
func (s *Screen) Mount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.poll); err != nil {
		return fmt.Errorf("failed to schedule trends refresh: %w", err)
	}
	c.Start()
	s.scheduler = c
	go s.poll()

	s.log.Debug("analytics mounted", "interval", s.interval)
	return nil
}

// Unmount stops polling. A poll already in flight may still complete.
func (s *Screen) Unmount() {
	s.mu.Lock()
	c := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()

	if c != nil {
		c.Stop()
		s.log.Debug("analytics unmounted")
	}
}

// Mounted reports whether polling is active.
func (s *Screen) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduler != nil
}

func (s *Screen) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("failed to refresh sentiment trends", "error", err)
	}
}

// Refresh fetches trends once. On failure the previous trends stay displayed
// and no alert is raised.
func (s *Screen) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.refreshing = true
	s.mu.Unlock()

	trends, err := s.provider.Trends(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshing = false
	if err != nil {
		return err
	}
	s.trends = trends
	s.lastPoll = time.Now()
	return nil
}

// Record adds a product analysis to the owner's table history.
func (s *Screen) Record(ctx context.Context, p core.ProductSnapshot) {
	if s.history == nil {
		return
	}
	if err := s.history.RecordProduct(ctx, s.owner, p); err != nil {
		s.log.Error("failed to record product analysis", "product", p.Name, "error", err)
	}
}

// SetSearch filters the product table by name.
func (s *Screen) SetSearch(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = query
}

// RequestSort sorts by key, toggling direction when key is already ascending.
func (s *Screen) RequestSort(key SortKey) SortConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sort = nextSort(s.sort, key)
	return *s.sort
}

func (s *Screen) allProducts(ctx context.Context) ([]core.ProductSnapshot, []core.ProductSnapshot, error) {
	if s.history == nil {
		return SampleProducts, nil, nil
	}
	history, err := s.history.ListProducts(ctx, s.owner)
	if err != nil {
		return nil, nil, err
	}
	return mergeHistory(SampleProducts, history), history, nil
}

// Products returns the filtered, sorted table rows.
func (s *Screen) Products(ctx context.Context) ([]core.ProductSnapshot, error) {
	rows, _, err := s.allProducts(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	query, cfg := s.search, s.sort
	s.mu.Unlock()
	return FilterAndSort(rows, query, cfg), nil
}

// Export renders the visible table rows. With no rows it raises an info
// alert and ok is false.
func (s *Screen) Export(ctx context.Context) (export render.Export, ok bool, err error) {
	rows, err := s.Products(ctx)
	if err != nil {
		return render.Export{}, false, err
	}
	if len(rows) == 0 {
		s.raise("No data to export.", alerts.KindInfo)
		return render.Export{}, false, nil
	}
	export, err = render.ProductTableCSV(rows)
	if err != nil {
		return render.Export{}, false, err
	}
	s.raise("Product comparison data exported successfully!", alerts.KindSuccess)
	return export, true, nil
}

// View is everything the analytics screen displays.
type View struct {
	Stats      Stats                  `json:"stats"`
	Trends     render.LineChart       `json:"trends"`
	Refreshing bool                   `json:"refreshing"`
	LastPoll   time.Time              `json:"lastPoll,omitempty"`
	Search     string                 `json:"search"`
	Sort       *SortConfig            `json:"sort,omitempty"`
	Products   []core.ProductSnapshot `json:"products"`
}

// View returns the screen's current display state.
func (s *Screen) View(ctx context.Context) (View, error) {
	rows, history, err := s.allProducts(ctx)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	trends := make([]core.TrendPoint, len(s.trends))
	copy(trends, s.trends)
	v := View{
		Stats:      statsWith(history),
		Trends:     render.TrendChart(trends),
		Refreshing: s.refreshing,
		LastPoll:   s.lastPoll,
		Search:     s.search,
		Products:   FilterAndSort(rows, s.search, s.sort),
	}
	if s.sort != nil {
		cfg := *s.sort
		v.Sort = &cfg
	}
	return v, nil
}

func (s *Screen) raise(message string, kind alerts.Kind) {
	if s.notifier != nil {
		s.notifier.Raise(message, kind)
	}
}
