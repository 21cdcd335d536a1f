package core

import (
	"fmt"
	"strings"
	"time"
)

// AnalysisKind selects the prompt template and response schema for a request.
type AnalysisKind string

const (
	KindProductURL  AnalysisKind = "url"
	KindFile        AnalysisKind = "file"
	KindReview      AnalysisKind = "review"
	KindCompetitive AnalysisKind = "competitive"
)

// AllKinds lists every analysis kind in display order.
var AllKinds = []AnalysisKind{KindProductURL, KindFile, KindReview, KindCompetitive}

// ParseAnalysisKind converts a route or flag value into an AnalysisKind.
func ParseAnalysisKind(s string) (AnalysisKind, error) {
	switch AnalysisKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindProductURL:
		return KindProductURL, nil
	case KindFile:
		return KindFile, nil
	case KindReview:
		return KindReview, nil
	case KindCompetitive, "compare":
		return KindCompetitive, nil
	}
	return "", fmt.Errorf("unknown analysis kind %q", s)
}

// Sentiment is the categorical label assigned to a piece of text.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
)

// Sentiments lists the accepted sentiment labels.
var Sentiments = []Sentiment{SentimentPositive, SentimentNegative, SentimentNeutral}

// Valid reports whether s is one of the accepted labels.
func (s Sentiment) Valid() bool {
	for _, v := range Sentiments {
		if s == v {
			return true
		}
	}
	return false
}

// Verdict is the categorical recommendation for a product.
type Verdict string

const (
	VerdictRecommended    Verdict = "Recommended"
	VerdictConsider       Verdict = "Consider"
	VerdictNotRecommended Verdict = "Not Recommended"
)

// Verdicts lists the accepted verdict labels.
var Verdicts = []Verdict{VerdictRecommended, VerdictConsider, VerdictNotRecommended}

// Valid reports whether v is one of the accepted labels.
func (v Verdict) Valid() bool {
	for _, x := range Verdicts {
		if v == x {
			return true
		}
	}
	return false
}

// AnalysisRequest is created per user action and discarded once the response is stored.
type AnalysisRequest struct {
	Kind      AnalysisKind `json:"kind"`
	URL       string       `json:"url,omitempty"`
	SecondURL string       `json:"second_url,omitempty"`
	Text      string       `json:"text,omitempty"`
	ModelID   string       `json:"model_id"`
}

// SentimentBreakdown holds integer percentages that are expected to sum to 100.
type SentimentBreakdown struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// Total returns the sum of the three percentages.
func (b SentimentBreakdown) Total() int {
	return b.Positive + b.Negative + b.Neutral
}

// Normalize rescales the breakdown so the values sum to exactly 100 using the
// largest-remainder method. Ties go to positive, then negative, then neutral.
// A breakdown that already sums to 100, or sums to zero, is returned unchanged.
func (b SentimentBreakdown) Normalize() SentimentBreakdown {
	total := b.Total()
	if total == 100 || total <= 0 {
		return b
	}

	values := [3]int{b.Positive, b.Negative, b.Neutral}
	var floors [3]int
	var remainders [3]int
	assigned := 0
	for i, v := range values {
		floors[i] = v * 100 / total
		remainders[i] = v * 100 % total
		assigned += floors[i]
	}

	for left := 100 - assigned; left > 0; left-- {
		best := 0
		for i := 1; i < 3; i++ {
			if remainders[i] > remainders[best] {
				best = i
			}
		}
		floors[best]++
		remainders[best] = -1
	}

	return SentimentBreakdown{Positive: floors[0], Negative: floors[1], Neutral: floors[2]}
}

// SampleReview is one representative review quoted by the model.
type SampleReview struct {
	Text      string    `json:"text"`
	Sentiment Sentiment `json:"sentiment"`
}

// ProductAnalysisResult is the analysis of a single product URL.
type ProductAnalysisResult struct {
	ProductName         string             `json:"productName"`
	OverallRating       float64            `json:"overallRating"`
	ReviewCount         int                `json:"reviewCount"`
	Summary             string             `json:"summary"`
	Verdict             Verdict            `json:"verdict"`
	Sentiment           SentimentBreakdown `json:"sentiment"`
	TopPositiveKeywords []string           `json:"topPositiveKeywords"`
	TopNegativeKeywords []string           `json:"topNegativeKeywords"`
	SampleReviews       []SampleReview     `json:"sampleReviews"`
}

// KeywordSet groups positive and negative keywords.
type KeywordSet struct {
	Positive []string `json:"positive"`
	Negative []string `json:"negative"`
}

// FileAnalysisResult is the analysis of a bulk review file.
type FileAnalysisResult struct {
	TotalReviews          int                `json:"totalReviews"`
	SentimentDistribution SentimentBreakdown `json:"sentimentDistribution"`
	TopKeywords           KeywordSet         `json:"topKeywords"`
}

// SingleReviewResult is the classification of one free-text review.
type SingleReviewResult struct {
	Sentiment   Sentiment `json:"sentiment"`
	Confidence  float64   `json:"confidence"`
	Explanation string    `json:"explanation"`
}

// ConfidencePercent renders the confidence as a whole percentage, e.g. "95%".
func (r SingleReviewResult) ConfidencePercent() string {
	return fmt.Sprintf("%.0f%%", r.Confidence*100)
}

// CompetitiveAnalysisResult compares two products.
type CompetitiveAnalysisResult struct {
	ProductOne        ProductAnalysisResult `json:"productOne"`
	ProductTwo        ProductAnalysisResult `json:"productTwo"`
	ComparisonSummary string                `json:"comparisonSummary"`
}

// TrendPoint is one month of the sentiment trend series.
type TrendPoint struct {
	Month    string  `json:"month"`
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// ProductSnapshot is one row of the analytics product table.
type ProductSnapshot struct {
	Name          string    `json:"name"`
	ReviewCount   int       `json:"reviewCount"`
	Positive      int       `json:"positive"`
	Negative      int       `json:"negative"`
	OverallRating float64   `json:"overallRating"`
	AnalyzedAt    time.Time `json:"analyzedAt,omitempty"`
}

// SnapshotOf reduces a product analysis to an analytics table row.
func SnapshotOf(r ProductAnalysisResult, at time.Time) ProductSnapshot {
	return ProductSnapshot{
		Name:          r.ProductName,
		ReviewCount:   r.ReviewCount,
		Positive:      r.Sentiment.Positive,
		Negative:      r.Sentiment.Negative,
		OverallRating: r.OverallRating,
		AnalyzedAt:    at,
	}
}
