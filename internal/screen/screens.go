package screen

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"sentilytics/internal/core"
	"sentilytics/internal/render"
)

// Validation messages
const (
	MsgInvalidURL      = "Please enter a valid product URL."
	MsgInvalidURLPair  = "Please enter two valid product URLs."
	MsgEmptyReview     = "Please enter a review to analyze."
	MsgNoFile          = "Please select a file to analyze."
	MsgInvalidFileType = "Invalid file type. Please upload a CSV, Excel, or TXT file."
	MsgEmptyFile       = "Could not read file content."
)

// AllowedFileExtensions are the upload types accepted by the file screen.
var AllowedFileExtensions = []string{".csv", ".xlsx", ".xls", ".txt"}

type (
	ProductScreen     = Controller[core.ProductAnalysisResult]
	FileScreen        = Controller[core.FileAnalysisResult]
	ReviewScreen      = Controller[core.SingleReviewResult]
	CompetitiveScreen = Controller[core.CompetitiveAnalysisResult]
)

// ValidProductURL reports whether s is usable as a product page URL: it must
// start with "http" and parse as an absolute http or https URL with a host.
func ValidProductURL(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "http") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// AllowedFile reports whether name has a supported extension, ignoring case.
func AllowedFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedFileExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func invalid(msg string) error { return &ValidationError{Message: msg} }

func snapshotRecorder(deps Deps) func(ctx context.Context, r core.ProductAnalysisResult) {
	return func(ctx context.Context, r core.ProductAnalysisResult) {
		if deps.OnProduct != nil {
			deps.OnProduct(ctx, core.SnapshotOf(r, time.Now()))
		}
	}
}

// ProductView is the chart and badge data for a product analysis.
type ProductView struct {
	Sentiment       []render.Slice `json:"sentiment"`
	Verdict         render.Style   `json:"verdict"`
	ReviewSentiment []render.Style `json:"reviewSentiment"`
}

func productView(r core.ProductAnalysisResult) ProductView {
	v := ProductView{
		Sentiment: render.SentimentSlices(r.Sentiment),
		Verdict:   render.VerdictStyle(r.Verdict),
	}
	for _, review := range r.SampleReviews {
		v.ReviewSentiment = append(v.ReviewSentiment, render.SentimentStyle(review.Sentiment))
	}
	return v
}

// NewProductScreen creates the product URL analysis screen.
func NewProductScreen(svc Analyzer, deps Deps) *ProductScreen {
	record := snapshotRecorder(deps)
	return newController(behavior[core.ProductAnalysisResult]{
		kind:           core.KindProductURL,
		loadingMessage: "Analyzing product URL... This may take a moment.",
		successMessage: "URL analysis completed successfully!",
		validate: func(in Input) (Input, error) {
			if !ValidProductURL(in.URL) {
				return in, invalid(MsgInvalidURL)
			}
			return Input{URL: strings.TrimSpace(in.URL)}, nil
		},
		run: func(ctx context.Context, in Input, model string) (*core.ProductAnalysisResult, error) {
			return svc.AnalyzeProductURL(ctx, in.URL, model)
		},
		accepted: func(ctx context.Context, _ Input, r *core.ProductAnalysisResult) {
			record(ctx, *r)
		},
		export: func(_ Input, r core.ProductAnalysisResult) (render.Export, error) {
			return render.ProductCSV(r)
		},
		view: func(_ Input, r core.ProductAnalysisResult) any {
			return productView(r)
		},
	}, deps)
}

// FileView is the chart data for a file analysis.
type FileView struct {
	Distribution []render.Slice `json:"distribution"`
}

// NewFileScreen creates the bulk file analysis screen. Input.FileName is the
// selected file's name and Input.Text its content.
func NewFileScreen(svc Analyzer, deps Deps) *FileScreen {
	return newController(behavior[core.FileAnalysisResult]{
		kind:           core.KindFile,
		loadingMessage: "Processing file... This might take a while for large files.",
		successMessage: "File analysis completed successfully!",
		validate: func(in Input) (Input, error) {
			if strings.TrimSpace(in.FileName) == "" {
				return in, invalid(MsgNoFile)
			}
			if !AllowedFile(in.FileName) {
				return in, invalid(MsgInvalidFileType)
			}
			if strings.TrimSpace(in.Text) == "" {
				return in, invalid(MsgEmptyFile)
			}
			return Input{FileName: filepath.Base(in.FileName), Text: in.Text}, nil
		},
		run: func(ctx context.Context, in Input, model string) (*core.FileAnalysisResult, error) {
			return svc.AnalyzeReviewFile(ctx, in.Text, model)
		},
		export: func(_ Input, r core.FileAnalysisResult) (render.Export, error) {
			return render.FileCSV(r)
		},
		view: func(_ Input, r core.FileAnalysisResult) any {
			return FileView{Distribution: render.SentimentSlices(r.SentimentDistribution)}
		},
	}, deps)
}

// ReviewView is the badge data for a single review analysis.
type ReviewView struct {
	Sentiment  render.Style `json:"sentiment"`
	Confidence string       `json:"confidence"`
}

// NewReviewScreen creates the single review analysis screen.
func NewReviewScreen(svc Analyzer, deps Deps) *ReviewScreen {
	return newController(behavior[core.SingleReviewResult]{
		kind:           core.KindReview,
		loadingMessage: "Analyzing sentiment...",
		successMessage: "Review analysis completed!",
		validate: func(in Input) (Input, error) {
			if strings.TrimSpace(in.Text) == "" {
				return in, invalid(MsgEmptyReview)
			}
			return Input{Text: in.Text}, nil
		},
		run: func(ctx context.Context, in Input, model string) (*core.SingleReviewResult, error) {
			return svc.AnalyzeSingleReview(ctx, in.Text, model)
		},
		export: func(in Input, r core.SingleReviewResult) (render.Export, error) {
			return render.ReviewCSV(in.Text, r)
		},
		view: func(_ Input, r core.SingleReviewResult) any {
			return ReviewView{Sentiment: render.SentimentStyle(r.Sentiment), Confidence: r.ConfidencePercent()}
		},
	}, deps)
}

// CompetitiveView is the chart data for both sides of a comparison.
type CompetitiveView struct {
	ProductOne ProductView `json:"productOne"`
	ProductTwo ProductView `json:"productTwo"`
}

// NewCompetitiveScreen creates the two-product comparison screen.
func NewCompetitiveScreen(svc Analyzer, deps Deps) *CompetitiveScreen {
	record := snapshotRecorder(deps)
	return newController(behavior[core.CompetitiveAnalysisResult]{
		kind:           core.KindCompetitive,
		loadingMessage: "Performing competitive analysis... This might take some time.",
		successMessage: "Competitive analysis completed successfully!",
		validate: func(in Input) (Input, error) {
			if !ValidProductURL(in.URL) || !ValidProductURL(in.SecondURL) {
				return in, invalid(MsgInvalidURLPair)
			}
			return Input{URL: strings.TrimSpace(in.URL), SecondURL: strings.TrimSpace(in.SecondURL)}, nil
		},
		run: func(ctx context.Context, in Input, model string) (*core.CompetitiveAnalysisResult, error) {
			return svc.CompareProducts(ctx, in.URL, in.SecondURL, model)
		},
		accepted: func(ctx context.Context, _ Input, r *core.CompetitiveAnalysisResult) {
			record(ctx, r.ProductOne)
			record(ctx, r.ProductTwo)
		},
		export: func(_ Input, r core.CompetitiveAnalysisResult) (render.Export, error) {
			return render.CompetitiveCSV(r)
		},
		view: func(_ Input, r core.CompetitiveAnalysisResult) any {
			return CompetitiveView{ProductOne: productView(r.ProductOne), ProductTwo: productView(r.ProductTwo)}
		},
	}, deps)
}
