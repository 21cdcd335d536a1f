package analytics

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"sentilytics/internal/core"
)

// TrendsProvider returns the monthly sentiment series shown on the analytics screen.
type TrendsProvider interface {
	Trends(ctx context.Context) ([]core.TrendPoint, error)
}

// BaseTrends is the series shown before the first poll completes.
var BaseTrends = []core.TrendPoint{
	{Month: "Jan", Positive: 65, Negative: 25, Neutral: 10},
	{Month: "Feb", Positive: 68, Negative: 22, Neutral: 10},
	{Month: "Mar", Positive: 72, Negative: 18, Neutral: 10},
	{Month: "Apr", Positive: 75, Negative: 15, Neutral: 10},
	{Month: "May", Positive: 78, Negative: 12, Neutral: 10},
	{Month: "Jun", Positive: 80, Negative: 11, Neutral: 9},
}

// SampleTrends jitters BaseTrends on every call: positive by up to ±3,
// negative by ±2 and neutral by ±1, each rounded to one decimal.
type SampleTrends struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	delay time.Duration
}

// NewSampleTrends creates a provider. delay simulates a remote call and may be zero.
func NewSampleTrends(seed int64, delay time.Duration) *SampleTrends {
	return &SampleTrends{rnd: rand.New(rand.NewSource(seed)), delay: delay}
}

func (s *SampleTrends) Trends(ctx context.Context) ([]core.TrendPoint, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.TrendPoint, len(BaseTrends))
	for i, p := range BaseTrends {
		out[i] = core.TrendPoint{
			Month:    p.Month,
			Positive: round1(p.Positive + s.rnd.Float64()*6 - 3),
			Negative: round1(p.Negative + s.rnd.Float64()*4 - 2),
			Neutral:  round1(p.Neutral + s.rnd.Float64()*2 - 1),
		}
	}
	return out, nil
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
