package analytics

import (
	"fmt"
	"sort"
	"strings"

	"sentilytics/internal/core"
)

// SampleProducts seed the product comparison table.
var SampleProducts = []core.ProductSnapshot{
	{Name: "iPhone 15 Pro", ReviewCount: 1247, Positive: 78, Negative: 15, OverallRating: 4.7},
	{Name: "Samsung Galaxy S24 Ultra", ReviewCount: 892, Positive: 72, Negative: 18, OverallRating: 4.5},
	{Name: "MacBook Pro M3", ReviewCount: 634, Positive: 85, Negative: 10, OverallRating: 4.8},
}

// SortKey is a sortable product table column.
type SortKey string

const (
	SortName        SortKey = "name"
	SortReviewCount SortKey = "reviewCount"
	SortPositive    SortKey = "positive"
	SortNegative    SortKey = "negative"
	SortRating      SortKey = "overallRating"
)

// ParseSortKey validates a column name.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case SortName, SortReviewCount, SortPositive, SortNegative, SortRating:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Direction is ascending or descending.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortConfig is the active table ordering. A nil *SortConfig means insertion order.
type SortConfig struct {
	Key       SortKey   `json:"key"`
	Direction Direction `json:"direction"`
}

// nextSort returns the ordering after the user clicks key: ascending, or
// descending when key was already sorted ascending.
func nextSort(cur *SortConfig, key SortKey) *SortConfig {
	dir := Asc
	if cur != nil && cur.Key == key && cur.Direction == Asc {
		dir = Desc
	}
	return &SortConfig{Key: key, Direction: dir}
}

// FilterAndSort returns the rows whose name contains query (ignoring case),
// ordered by cfg. The input is not modified.
func FilterAndSort(rows []core.ProductSnapshot, query string, cfg *SortConfig) []core.ProductSnapshot {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]core.ProductSnapshot, 0, len(rows))
	for _, p := range rows {
		if q == "" || strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}
	if cfg == nil {
		return out
	}

	less := func(a, b core.ProductSnapshot) bool {
		switch cfg.Key {
		case SortName:
			return a.Name < b.Name
		case SortReviewCount:
			return a.ReviewCount < b.ReviewCount
		case SortPositive:
			return a.Positive < b.Positive
		case SortNegative:
			return a.Negative < b.Negative
		default:
			return a.OverallRating < b.OverallRating
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if cfg.Direction == Desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

// mergeHistory appends recorded products to the seed rows. A product analyzed
// more than once appears once, with its latest figures.
func mergeHistory(seed, history []core.ProductSnapshot) []core.ProductSnapshot {
	out := make([]core.ProductSnapshot, len(seed), len(seed)+len(history))
	copy(out, seed)
	index := make(map[string]int, len(seed)+len(history))
	for i, p := range out {
		index[strings.ToLower(p.Name)] = i
	}
	for _, p := range history {
		key := strings.ToLower(p.Name)
		if i, ok := index[key]; ok {
			out[i] = p
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}
	return out
}

// Stats are the headline figures on the analytics screen.
type Stats struct {
	TotalProductsAnalyzed int     `json:"totalProductsAnalyzed"`
	TotalReviewsProcessed int     `json:"totalReviewsProcessed"`
	AverageSentimentScore float64 `json:"averageSentimentScore"`
}

// BaseStats are the platform-wide figures before any analysis in this installation.
var BaseStats = Stats{
	TotalProductsAnalyzed: 1247,
	TotalReviewsProcessed: 45632,
	AverageSentimentScore: 72.5,
}

// statsWith folds recorded analyses into BaseStats. The average sentiment
// score is the mean positive percentage, weighted by product count.
func statsWith(history []core.ProductSnapshot) Stats {
	s := BaseStats
	if len(history) == 0 {
		return s
	}
	sum := s.AverageSentimentScore * float64(s.TotalProductsAnalyzed)
	for _, p := range history {
		s.TotalProductsAnalyzed++
		s.TotalReviewsProcessed += p.ReviewCount
		sum += float64(p.Positive)
	}
	s.AverageSentimentScore = round1(sum / float64(s.TotalProductsAnalyzed))
	return s
}
