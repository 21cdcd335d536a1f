package render

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sentilytics/internal/core"
)

// Export is a generated CSV file ready to download.
type Export struct {
	Filename string
	Data     []byte
}

// ContentType is the MIME type of every export.
const ContentType = "text/csv; charset=utf-8"

var (
	whitespace   = regexp.MustCompile(`\s+`)
	unsafeInName = regexp.MustCompile(`[^\p{L}\p{N}_.-]`)
)

// fileSafe turns a product name into a filename fragment: whitespace runs
// become underscores and characters unsafe in a download header are dropped.
func fileSafe(name string) string {
	name = whitespace.ReplaceAllString(strings.TrimSpace(name), "_")
	return unsafeInName.ReplaceAllString(name, "")
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// csvBuilder writes sectioned CSV with CRLF line endings. Quotes are added
// only where a field needs them; embedded quotes are doubled.
type csvBuilder struct {
	buf bytes.Buffer
	w   *csv.Writer
	err error
}

func newCSVBuilder() *csvBuilder {
	b := &csvBuilder{}
	b.w = csv.NewWriter(&b.buf)
	b.w.UseCRLF = true
	return b
}

func (b *csvBuilder) row(fields ...string) {
	if b.err != nil {
		return
	}
	if err := b.w.Write(fields); err != nil {
		b.err = fmt.Errorf("failed to write CSV record: %w", err)
	}
}

func (b *csvBuilder) blank() { b.row("") }

func (b *csvBuilder) bytes() ([]byte, error) {
	b.w.Flush()
	if b.err != nil {
		return nil, b.err
	}
	if err := b.w.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return b.buf.Bytes(), nil
}

func (b *csvBuilder) product(r core.ProductAnalysisResult) {
	b.row("Product Name", r.ProductName)
	b.row("Overall Rating", formatNumber(r.OverallRating)+"/5")
	b.row("Review Count", strconv.Itoa(r.ReviewCount))
	b.row("Verdict", string(r.Verdict))
	b.blank()
	b.row("Summary", r.Summary)
	b.blank()
	b.breakdown("Sentiment Analysis (%)", r.Sentiment)
	b.blank()
	b.row("Top Positive Keywords")
	b.row(strings.Join(r.TopPositiveKeywords, ","))
	b.blank()
	b.row("Top Negative Keywords")
	b.row(strings.Join(r.TopNegativeKeywords, ","))
	b.blank()
	b.row("Sample Reviews")
	b.row("Sentiment", "Review Text")
	for _, review := range r.SampleReviews {
		b.row(string(review.Sentiment), review.Text)
	}
}

func (b *csvBuilder) breakdown(title string, s core.SentimentBreakdown) {
	b.row(title)
	b.row("Positive", strconv.Itoa(s.Positive))
	b.row("Negative", strconv.Itoa(s.Negative))
	b.row("Neutral", strconv.Itoa(s.Neutral))
}

// ProductCSV exports a product URL analysis.
func ProductCSV(r core.ProductAnalysisResult) (Export, error) {
	b := newCSVBuilder()
	b.row("Category", "Value")
	b.product(r)
	data, err := b.bytes()
	if err != nil {
		return Export{}, err
	}
	return Export{
		Filename: fmt.Sprintf("sentilytics_%s_analysis.csv", fileSafe(r.ProductName)),
		Data:     data,
	}, nil
}

// FileCSV exports a bulk file analysis.
func FileCSV(r core.FileAnalysisResult) (Export, error) {
	b := newCSVBuilder()
	b.row("Category", "Value")
	b.row("Total Reviews", strconv.Itoa(r.TotalReviews))
	b.blank()
	b.breakdown("Sentiment Distribution (%)", r.SentimentDistribution)
	b.blank()
	b.row("Top Positive Keywords")
	b.row(strings.Join(r.TopKeywords.Positive, ","))
	b.blank()
	b.row("Top Negative Keywords")
	b.row(strings.Join(r.TopKeywords.Negative, ","))
	data, err := b.bytes()
	if err != nil {
		return Export{}, err
	}
	return Export{Filename: "sentilytics_file_analysis.csv", Data: data}, nil
}

// ReviewCSV exports a single review analysis.
func ReviewCSV(review string, r core.SingleReviewResult) (Export, error) {
	b := newCSVBuilder()
	b.row("Category", "Value")
	b.row("Review", review)
	b.row("Sentiment", string(r.Sentiment))
	b.row("Confidence", r.ConfidencePercent())
	b.row("Explanation", r.Explanation)
	data, err := b.bytes()
	if err != nil {
		return Export{}, err
	}
	return Export{Filename: "sentilytics_review_analysis.csv", Data: data}, nil
}

// CompetitiveCSV exports a two-product comparison.
func CompetitiveCSV(r core.CompetitiveAnalysisResult) (Export, error) {
	b := newCSVBuilder()
	b.row("Comparison Summary", r.ComparisonSummary)
	b.blank()
	b.row("Product One")
	b.product(r.ProductOne)
	b.blank()
	b.row("Product Two")
	b.product(r.ProductTwo)
	data, err := b.bytes()
	if err != nil {
		return Export{}, err
	}
	return Export{
		Filename: fmt.Sprintf("sentilytics_%s_vs_%s_comparison.csv",
			fileSafe(r.ProductOne.ProductName), fileSafe(r.ProductTwo.ProductName)),
		Data: data,
	}, nil
}

// ProductTableCSV exports the analytics product table in display order.
func ProductTableCSV(rows []core.ProductSnapshot) (Export, error) {
	b := newCSVBuilder()
	b.row("Product", "Reviews", "Positive %", "Negative %", "Rating")
	for _, p := range rows {
		b.row(p.Name, strconv.Itoa(p.ReviewCount), strconv.Itoa(p.Positive), strconv.Itoa(p.Negative), formatNumber(p.OverallRating))
	}
	data, err := b.bytes()
	if err != nil {
		return Export{}, err
	}
	return Export{Filename: "product_comparison.csv", Data: data}, nil
}
