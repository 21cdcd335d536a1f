package analytics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sentilytics/internal/alerts"
	"sentilytics/internal/core"
	"sentilytics/internal/logger"
)

type fakeProvider struct {
	mu     sync.Mutex
	calls  int
	err    error
	points []core.TrendPoint
	polled chan struct{}
}

func (f *fakeProvider) Trends(context.Context) ([]core.TrendPoint, error) {
	f.mu.Lock()
	f.calls++
	err, points, polled := f.err, f.points, f.polled
	f.mu.Unlock()
	if polled != nil {
		select {
		case polled <- struct{}{}:
		default:
		}
	}
	return points, err
}

type memHistory struct {
	mu   sync.Mutex
	rows map[string][]core.ProductSnapshot
}

func (m *memHistory) RecordProduct(_ context.Context, owner string, p core.ProductSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = map[string][]core.ProductSnapshot{}
	}
	m.rows[owner] = append(m.rows[owner], p)
	return nil
}

func (m *memHistory) ListProducts(_ context.Context, owner string) ([]core.ProductSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.ProductSnapshot(nil), m.rows[owner]...), nil
}

type recordingNotifier struct {
	raised []alerts.Alert
}

func (r *recordingNotifier) Raise(message string, kind alerts.Kind) alerts.Alert {
	a := alerts.Alert{Message: message, Kind: kind}
	r.raised = append(r.raised, a)
	return a
}

func newTestScreen(p TrendsProvider, h History, n alerts.Notifier) *Screen {
	return NewScreen(Options{Provider: p, History: h, Owner: "u1", Notifier: n, Log: logger.Discard()})
}

func TestRefresh_ReplacesTrends(t *testing.T) {
	p := &fakeProvider{points: []core.TrendPoint{{Month: "Jul", Positive: 90, Negative: 5, Neutral: 5}}}
	s := newTestScreen(p, nil, nil)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	v, err := s.View(context.Background())
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if len(v.Trends.Points) != 1 || v.Trends.Points[0].Month != "Jul" {
		t.Errorf("Expected refreshed trends, got %+v", v.Trends.Points)
	}
	if v.Refreshing {
		t.Error("Refreshing should be false after the poll")
	}
}

func TestRefresh_FailureKeepsStaleData(t *testing.T) {
	p := &fakeProvider{err: errors.New("upstream down")}
	n := &recordingNotifier{}
	s := newTestScreen(p, nil, n)

	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("Expected refresh error")
	}
	v, _ := s.View(context.Background())
	if len(v.Trends.Points) != len(BaseTrends) || v.Trends.Points[0] != BaseTrends[0] {
		t.Errorf("Failed poll should keep previous trends, got %+v", v.Trends.Points)
	}
	if len(n.raised) != 0 {
		t.Errorf("Failed poll should not alert, got %+v", n.raised)
	}
}

func TestMountPollsImmediatelyAndUnmountStops(t *testing.T) {
	p := &fakeProvider{polled: make(chan struct{}, 1)}
	s := newTestScreen(p, nil, nil)

	if err := s.Mount(); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if err := s.Mount(); err != nil {
		t.Fatalf("Second mount failed: %v", err)
	}
	select {
	case <-p.polled:
	case <-time.After(2 * time.Second):
		t.Fatal("Mount should poll immediately")
	}
	if !s.Mounted() {
		t.Error("Screen should report mounted")
	}

	s.Unmount()
	if s.Mounted() {
		t.Error("Screen should report unmounted")
	}
	s.Unmount()
}

func TestSampleTrends_Jitter(t *testing.T) {
	provider := NewSampleTrends(42, 0)
	points, err := provider.Trends(context.Background())
	if err != nil {
		t.Fatalf("Trends failed: %v", err)
	}
	if len(points) != len(BaseTrends) {
		t.Fatalf("Expected %d points, got %d", len(BaseTrends), len(points))
	}
	for i, p := range points {
		base := BaseTrends[i]
		if p.Month != base.Month {
			t.Errorf("Month mismatch %s vs %s", p.Month, base.Month)
		}
		if p.Positive < base.Positive-3 || p.Positive > base.Positive+3 {
			t.Errorf("%s positive %v outside ±3 of %v", p.Month, p.Positive, base.Positive)
		}
		if p.Negative < base.Negative-2 || p.Negative > base.Negative+2 {
			t.Errorf("%s negative %v outside ±2 of %v", p.Month, p.Negative, base.Negative)
		}
		if p.Neutral < base.Neutral-1 || p.Neutral > base.Neutral+1 {
			t.Errorf("%s neutral %v outside ±1 of %v", p.Month, p.Neutral, base.Neutral)
		}
		if round1(p.Positive) != p.Positive || round1(p.Negative) != p.Negative {
			t.Errorf("%s positive %v not rounded to one decimal", p.Month, p.Positive)
		}
	}
}

func TestSampleTrends_Canceled(t *testing.T) {
	provider := NewSampleTrends(1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := provider.Trends(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestProducts_SearchAndSort(t *testing.T) {
	s := newTestScreen(&fakeProvider{}, nil, nil)
	ctx := context.Background()

	s.SetSearch("PRO")
	rows, _ := s.Products(ctx)
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows matching 'pro', got %d", len(rows))
	}

	s.SetSearch("")
	if cfg := s.RequestSort(SortReviewCount); cfg.Direction != Asc {
		t.Errorf("First click should sort ascending, got %s", cfg.Direction)
	}
	rows, _ = s.Products(ctx)
	if rows[0].Name != "MacBook Pro M3" {
		t.Errorf("Expected fewest reviews first, got %s", rows[0].Name)
	}

	if cfg := s.RequestSort(SortReviewCount); cfg.Direction != Desc {
		t.Errorf("Second click should sort descending, got %s", cfg.Direction)
	}
	rows, _ = s.Products(ctx)
	if rows[0].Name != "iPhone 15 Pro" {
		t.Errorf("Expected most reviews first, got %s", rows[0].Name)
	}

	if cfg := s.RequestSort(SortRating); cfg.Direction != Asc {
		t.Errorf("New key should reset to ascending, got %s", cfg.Direction)
	}
	if cfg := s.RequestSort(SortRating); cfg.Direction != Desc {
		t.Error("Expected descending")
	}
	if cfg := s.RequestSort(SortRating); cfg.Direction != Asc {
		t.Error("Third click should go back to ascending")
	}
}

func TestProducts_IncludesHistory(t *testing.T) {
	h := &memHistory{}
	s := newTestScreen(&fakeProvider{}, h, nil)
	ctx := context.Background()

	s.Record(ctx, core.ProductSnapshot{Name: "Acme Blender", ReviewCount: 40, Positive: 60, Negative: 30, OverallRating: 4.0})
	s.Record(ctx, core.ProductSnapshot{Name: "iphone 15 pro", ReviewCount: 2000, Positive: 80, Negative: 10, OverallRating: 4.9})
	s.Record(ctx, core.ProductSnapshot{Name: "Acme Blender", ReviewCount: 45, Positive: 62, Negative: 28, OverallRating: 4.1})

	rows, err := s.Products(ctx)
	if err != nil {
		t.Fatalf("Products failed: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Expected 3 samples plus 1 recorded product, got %d", len(rows))
	}
	if rows[0].ReviewCount != 2000 {
		t.Errorf("Recorded analysis should replace the matching sample, got %+v", rows[0])
	}
	if rows[3].ReviewCount != 45 {
		t.Errorf("Latest analysis should win, got %+v", rows[3])
	}

	v, _ := s.View(ctx)
	if v.Stats.TotalProductsAnalyzed != BaseStats.TotalProductsAnalyzed+3 {
		t.Errorf("Unexpected stats %+v", v.Stats)
	}
	if v.Stats.TotalReviewsProcessed != BaseStats.TotalReviewsProcessed+2085 {
		t.Errorf("Unexpected review total %d", v.Stats.TotalReviewsProcessed)
	}
}

func TestExport(t *testing.T) {
	n := &recordingNotifier{}
	s := newTestScreen(&fakeProvider{}, nil, n)
	ctx := context.Background()

	export, ok, err := s.Export(ctx)
	if err != nil || !ok {
		t.Fatalf("Export failed: ok=%v err=%v", ok, err)
	}
	if !strings.HasPrefix(string(export.Data), "Product,Reviews,Positive %,Negative %,Rating\r\n") {
		t.Errorf("Unexpected CSV header: %q", export.Data)
	}
	if n.raised[0].Message != "Product comparison data exported successfully!" {
		t.Errorf("Unexpected alert %q", n.raised[0].Message)
	}

	s.SetSearch("no such product")
	_, ok, err = s.Export(ctx)
	if err != nil || ok {
		t.Errorf("Empty export should report ok=false, got ok=%v err=%v", ok, err)
	}
	if last := n.raised[len(n.raised)-1]; last.Message != "No data to export." || last.Kind != alerts.KindInfo {
		t.Errorf("Unexpected alert %+v", last)
	}
}

func TestParseSortKey(t *testing.T) {
	if _, err := ParseSortKey("overallRating"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if _, err := ParseSortKey("price"); err == nil {
		t.Error("Expected error for unknown key")
	}
}
