// Package observability sends product-analytics events to PostHog.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sentilytics/internal/analysis"
	"sentilytics/internal/config"

	"github.com/posthog/posthog-go"
)

// sink is the part of posthog.Client the tracker uses.
type sink interface {
	Enqueue(posthog.Message) error
	Close() error
}

// PostHogClient wraps the PostHog SDK. A disabled client accepts every call
// and sends nothing.
type PostHogClient struct {
	client  sink
	enabled bool
	log     *slog.Logger
}

// EventProperties contains properties for an event
type EventProperties map[string]interface{}

type distinctIDKey struct{}

// WithDistinctID attaches the PostHog distinct ID (the signed-in user) to ctx.
func WithDistinctID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, distinctIDKey{}, id)
}

func distinctID(ctx context.Context) string {
	if id, ok := ctx.Value(distinctIDKey{}).(string); ok && id != "" {
		return id
	}
	return "anonymous"
}

// NewPostHogClient creates a client from cfg.
func NewPostHogClient(cfg config.PostHog, log *slog.Logger) (*PostHogClient, error) {
	if log == nil {
		log = slog.Default()
	}
	if !cfg.Enabled {
		return Disabled(), nil
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("PostHog enabled but missing API key")
	}

	client, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{
		Endpoint: cfg.Host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create PostHog client: %w", err)
	}
	return newWithSink(client, log), nil
}

// Disabled returns a client that drops every event.
func Disabled() *PostHogClient {
	return &PostHogClient{log: slog.Default()}
}

func newWithSink(s sink, log *slog.Logger) *PostHogClient {
	return &PostHogClient{client: s, enabled: true, log: log}
}

// IsEnabled returns whether PostHog tracking is enabled
func (p *PostHogClient) IsEnabled() bool {
	return p.enabled
}

// Capture sends an event to PostHog
func (p *PostHogClient) Capture(ctx context.Context, event string, properties EventProperties) error {
	if !p.enabled {
		return nil
	}

	props := posthog.NewProperties()
	for k, v := range properties {
		props.Set(k, v)
	}
	return p.client.Enqueue(posthog.Capture{
		DistinctId: distinctID(ctx),
		Event:      event,
		Properties: props,
	})
}

// Identify associates an email and display name with the signed-in user.
func (p *PostHogClient) Identify(ctx context.Context, email, displayName string) error {
	if !p.enabled {
		return nil
	}
	return p.client.Enqueue(posthog.Identify{
		DistinctId: distinctID(ctx),
		Properties: posthog.NewProperties().
			Set("email", email).
			Set("name", displayName),
	})
}

// PageView tracks a tab change.
func (p *PostHogClient) PageView(ctx context.Context, tab string) error {
	return p.Capture(ctx, "$pageview", EventProperties{"$current_url": "/" + tab, "tab": tab})
}

// TrackAnalysis records one analysis request. It satisfies analysis.Tracker.
func (p *PostHogClient) TrackAnalysis(ctx context.Context, kind, model string, duration time.Duration, err error) error {
	props := EventProperties{
		"kind":        kind,
		"model":       model,
		"duration_ms": duration.Milliseconds(),
		"successful":  err == nil,
	}
	event := "analysis_completed"
	if err != nil {
		event = "analysis_failed"
		props["error_kind"] = string(analysis.ErrGeneric)
		var aerr *analysis.Error
		if errors.As(err, &aerr) {
			props["error_kind"] = string(aerr.Kind)
		}
	}
	return p.Capture(ctx, event, props)
}

// TrackExport records a CSV download.
func (p *PostHogClient) TrackExport(ctx context.Context, screen string) error {
	return p.Capture(ctx, "results_exported", EventProperties{"screen": screen})
}

// TrackAuth records sign-in, registration and sign-out.
func (p *PostHogClient) TrackAuth(ctx context.Context, event, method string) error {
	return p.Capture(ctx, event, EventProperties{"method": method})
}

// Shutdown flushes pending events.
func (p *PostHogClient) Shutdown(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- p.client.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		p.log.Warn("PostHog shutdown timed out", "error", ctx.Err())
		return ctx.Err()
	}
}
