// Package screen implements the analysis screens: input validation, the
// loading/success/error lifecycle, alerts, CSV export and chart view models.
package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sentilytics/internal/alerts"
	"sentilytics/internal/analysis"
	"sentilytics/internal/core"
	"sentilytics/internal/render"
)

// State is the lifecycle position of a screen.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateLoading    State = "loading"
	StateSuccess    State = "success"
)

// ErrStale is returned by Submit when a newer submission superseded this one.
// The response was discarded without touching screen state.
var ErrStale = errors.New("response superseded by a newer request")

// ValidationError is returned by Submit when the input is rejected before any
// model call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Input is what the user entered on a screen. Fields unused by a screen are ignored.
type Input struct {
	URL       string `json:"url,omitempty"`
	SecondURL string `json:"secondUrl,omitempty"`
	Text      string `json:"text,omitempty"`
	FileName  string `json:"fileName,omitempty"`
}

// Analyzer runs analyses. *analysis.Service satisfies it.
type Analyzer interface {
	AnalyzeProductURL(ctx context.Context, url, model string) (*core.ProductAnalysisResult, error)
	AnalyzeReviewFile(ctx context.Context, content, model string) (*core.FileAnalysisResult, error)
	AnalyzeSingleReview(ctx context.Context, review, model string) (*core.SingleReviewResult, error)
	CompareProducts(ctx context.Context, url1, url2, model string) (*core.CompetitiveAnalysisResult, error)
}

// ModelSource picks the model for an analysis kind at call time.
// *preferences.Manager satisfies it.
type ModelSource interface {
	ModelFor(kind core.AnalysisKind) string
}

// Deps are shared by every screen of a session.
type Deps struct {
	Notifier alerts.Notifier
	Models   ModelSource // nil uses the service defaults
	Log      *slog.Logger
	// OnProduct receives every accepted product analysis (URL and both
	// sides of a comparison). Optional.
	OnProduct func(ctx context.Context, snap core.ProductSnapshot)
}

// Snapshot is a point-in-time copy of a screen's state.
type Snapshot[T any] struct {
	Kind           core.AnalysisKind `json:"kind"`
	State          State             `json:"state"`
	Loading        bool              `json:"loading"`
	LoadingMessage string            `json:"loadingMessage,omitempty"`
	Input          Input             `json:"input"`
	Result         *T                `json:"result,omitempty"`
	LastError      string            `json:"lastError,omitempty"`
	View           any               `json:"view,omitempty"`
}

// behavior holds the parts that differ between screens.
type behavior[T any] struct {
	kind           core.AnalysisKind
	loadingMessage string
	successMessage string
	validate       func(Input) (Input, error)
	run            func(ctx context.Context, in Input, model string) (*T, error)
	accepted       func(ctx context.Context, in Input, result *T)
	export         func(in Input, result T) (render.Export, error)
	view           func(in Input, result T) any
}

// Controller drives one analysis screen. A submission is accepted only if it
// is still the most recent one when its response arrives. Safe for
// concurrent use.
type Controller[T any] struct {
	behavior[T]
	deps Deps
	log  *slog.Logger

	mu        sync.Mutex
	gen       uint64
	state     State
	input     Input
	result    *T
	lastError string
}

func newController[T any](s behavior[T], deps Deps) *Controller[T] {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Controller[T]{
		behavior: s,
		deps:     deps,
		log:      log.With("screen", s.kind),
		state:    StateIdle,
	}
}

// Kind returns the analysis kind this screen runs.
func (c *Controller[T]) Kind() core.AnalysisKind { return c.kind }

// Submit validates in, runs the analysis and records the outcome. It blocks
// until the model responds. Validation failures raise an error alert, make
// no model call and leave the screen as it was. Model failures raise an error alert with the user message,
// clear the result and return the screen to idle.
func (c *Controller[T]) Submit(ctx context.Context, in Input) (Snapshot[T], error) {
	c.mu.Lock()
	prev := c.state
	c.state = StateValidating
	c.mu.Unlock()

	normalized, err := c.validate(in)
	if err != nil {
		c.mu.Lock()
		if c.state == StateValidating {
			c.state = prev
		}
		c.mu.Unlock()
		c.raise(err.Error(), alerts.KindError)
		return c.Snapshot(), err
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = StateLoading
	c.input = normalized
	c.mu.Unlock()

	model := ""
	if c.deps.Models != nil {
		model = c.deps.Models.ModelFor(c.kind)
	}
	result, err := c.run(ctx, normalized, model)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.log.Info("discarding stale analysis response", "generation", gen, "failed", err != nil)
		return c.Snapshot(), ErrStale
	}
	if err != nil {
		c.state = StateIdle
		c.result = nil
		c.lastError = analysis.UserMessage(err)
		msg := c.lastError
		c.mu.Unlock()
		c.log.Warn("analysis failed", "error", err)
		c.raise(msg, alerts.KindError)
		return c.Snapshot(), err
	}
	c.state = StateSuccess
	c.result = result
	c.lastError = ""
	c.mu.Unlock()

	if c.accepted != nil {
		c.accepted(ctx, normalized, result)
	}
	c.raise(c.successMessage, alerts.KindSuccess)
	return c.Snapshot(), nil
}

// Snapshot returns the current state.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot[T]{
		Kind:      c.kind,
		State:     c.state,
		Loading:   c.state == StateLoading,
		Input:     c.input,
		LastError: c.lastError,
	}
	if s.Loading {
		s.LoadingMessage = c.loadingMessage
	}
	if c.result != nil {
		r := *c.result
		s.Result = &r
		if c.view != nil {
			s.View = c.view(c.input, r)
		}
	}
	return s
}

// Result returns the accepted result, if any.
func (c *Controller[T]) Result() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if c.result == nil {
		return zero, false
	}
	return *c.result, true
}

// Export renders the accepted result as CSV. ok is false, and nothing is
// raised, when there is no result.
func (c *Controller[T]) Export() (export render.Export, ok bool, err error) {
	c.mu.Lock()
	if c.result == nil || c.export == nil {
		c.mu.Unlock()
		return render.Export{}, false, nil
	}
	in, result := c.input, *c.result
	c.mu.Unlock()

	export, err = c.export(in, result)
	if err != nil {
		return render.Export{}, false, fmt.Errorf("failed to export %s analysis: %w", c.kind, err)
	}
	c.raise("Results exported successfully!", alerts.KindSuccess)
	return export, true, nil
}

// Reset drops the result, error and input. An in-flight submission is
// superseded and its response discarded.
func (c *Controller[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.state = StateIdle
	c.input = Input{}
	c.result = nil
	c.lastError = ""
}

func (c *Controller[T]) raise(message string, kind alerts.Kind) {
	if c.deps.Notifier != nil && message != "" {
		c.deps.Notifier.Raise(message, kind)
	}
}
