package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sentilytics/internal/core"

	"google.golang.org/genai"
)

// Default model identifiers. Pro serves URL and competitive analyses, Flash
// serves file and single-review analyses.
const (
	DefaultProModel   = "gemini-2.5-pro"
	DefaultFlashModel = "gemini-2.5-flash"
)

// Generator sends one prompt to a model and returns the raw JSON text it produced.
type Generator interface {
	GenerateJSON(ctx context.Context, model, prompt string, schema *genai.Schema) (string, error)
}

// Tracker receives one event per completed or failed analysis.
type Tracker interface {
	TrackAnalysis(ctx context.Context, kind, model string, duration time.Duration, err error) error
}

// Models names the model used for each class of analysis.
type Models struct {
	Pro   string `json:"pro"`
	Flash string `json:"flash"`
}

// For returns the model serving kind.
func (m Models) For(kind core.AnalysisKind) string {
	switch kind {
	case core.KindProductURL, core.KindCompetitive:
		return m.Pro
	default:
		return m.Flash
	}
}

// Service builds prompts, calls the model and decodes strictly validated results.
// It never retries and keeps no cache.
type Service struct {
	gen      Generator
	defaults Models
	tracker  Tracker
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultModels overrides the models used when a request names none.
func WithDefaultModels(m Models) Option {
	return func(s *Service) {
		if m.Pro != "" {
			s.defaults.Pro = m.Pro
		}
		if m.Flash != "" {
			s.defaults.Flash = m.Flash
		}
	}
}

// WithTracker attaches a product-analytics tracker.
func WithTracker(t Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

// WithLogger sets the logger used for per-call records.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a Service calling gen.
func NewService(gen Generator, opts ...Option) *Service {
	s := &Service{
		gen:      gen,
		defaults: Models{Pro: DefaultProModel, Flash: DefaultFlashModel},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultModels returns the models used when a request names none.
func (s *Service) DefaultModels() Models { return s.defaults }

// AnalyzeProductURL analyzes the reviews behind a product page URL.
func (s *Service) AnalyzeProductURL(ctx context.Context, url, model string) (*core.ProductAnalysisResult, error) {
	var out core.ProductAnalysisResult
	err := s.run(ctx, core.KindProductURL, model, ProductURLPrompt(url), ProductAnalysisSchema(), &out, func() error {
		return finishProduct(&out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeReviewFile analyzes bulk review text read from an uploaded file.
func (s *Service) AnalyzeReviewFile(ctx context.Context, content, model string) (*core.FileAnalysisResult, error) {
	var out core.FileAnalysisResult
	err := s.run(ctx, core.KindFile, model, ReviewFilePrompt(content), FileAnalysisSchema(), &out, func() error {
		if err := finishBreakdown(&out.SentimentDistribution); err != nil {
			return err
		}
		out.TopKeywords.Positive = truncate(out.TopKeywords.Positive, MaxFileKeywords)
		out.TopKeywords.Negative = truncate(out.TopKeywords.Negative, MaxFileKeywords)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeSingleReview classifies one free-text review.
func (s *Service) AnalyzeSingleReview(ctx context.Context, review, model string) (*core.SingleReviewResult, error) {
	var out core.SingleReviewResult
	if err := s.run(ctx, core.KindReview, model, SingleReviewPrompt(review), SingleReviewSchema(), &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompareProducts analyzes two product URLs side by side.
func (s *Service) CompareProducts(ctx context.Context, url1, url2, model string) (*core.CompetitiveAnalysisResult, error) {
	var out core.CompetitiveAnalysisResult
	err := s.run(ctx, core.KindCompetitive, model, CompetitivePrompt(url1, url2), CompetitiveAnalysisSchema(), &out, func() error {
		if err := finishProduct(&out.ProductOne); err != nil {
			return fmt.Errorf("productOne: %w", err)
		}
		if err := finishProduct(&out.ProductTwo); err != nil {
			return fmt.Errorf("productTwo: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// run calls the model, decodes into out and applies check. A check failure
// is reported as a schema violation.
func (s *Service) run(ctx context.Context, kind core.AnalysisKind, model, prompt string, schema *genai.Schema, out any, check func() error) error {
	if model == "" {
		model = s.defaults.For(kind)
	}
	start := time.Now()

	raw, err := s.gen.GenerateJSON(ctx, model, prompt, schema)
	if err != nil {
		return s.finish(ctx, kind, model, start, newError(classifyTransport(err), err))
	}
	if strings.TrimSpace(raw) == "" {
		return s.finish(ctx, kind, model, start, newError(ErrEmptyResponse, nil))
	}
	if err := decodeStrict(raw, schema, out); err != nil {
		return s.finish(ctx, kind, model, start, newError(classifyDecode(err), err))
	}
	if check != nil {
		if err := check(); err != nil {
			return s.finish(ctx, kind, model, start, newError(ErrSchemaViolation, err))
		}
	}
	return s.finish(ctx, kind, model, start, nil)
}

func (s *Service) finish(ctx context.Context, kind core.AnalysisKind, model string, start time.Time, err *Error) error {
	elapsed := time.Since(start)
	if err != nil {
		s.log.Warn("analysis failed",
			"kind", kind, "model", model, "duration_ms", elapsed.Milliseconds(),
			"error_kind", err.Kind, "error", err.Cause)
	} else {
		s.log.Info("analysis completed",
			"kind", kind, "model", model, "duration_ms", elapsed.Milliseconds())
	}

	if s.tracker != nil {
		var trackErr error
		if err != nil {
			trackErr = err
		}
		if terr := s.tracker.TrackAnalysis(ctx, string(kind), model, elapsed, trackErr); terr != nil {
			s.log.Debug("failed to track analysis", "error", terr)
		}
	}

	if err != nil {
		return err
	}
	return nil
}

func finishProduct(r *core.ProductAnalysisResult) error {
	if err := finishBreakdown(&r.Sentiment); err != nil {
		return err
	}
	r.TopPositiveKeywords = truncate(r.TopPositiveKeywords, MaxProductKeywords)
	r.TopNegativeKeywords = truncate(r.TopNegativeKeywords, MaxProductKeywords)
	r.SampleReviews = truncate(r.SampleReviews, MaxSampleReviews)
	return nil
}

// finishBreakdown rejects an empty breakdown and rescales one that does not sum to 100.
func finishBreakdown(b *core.SentimentBreakdown) error {
	if b.Total() <= 0 {
		return fmt.Errorf("sentiment breakdown is empty")
	}
	*b = b.Normalize()
	return nil
}

func truncate[T any](items []T, max int) []T {
	if len(items) > max {
		return items[:max]
	}
	return items
}
