package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// ErrMissingAPIKey is returned by every call on a client built without a key.
// Its text matches the provider's own invalid-key message so callers classify
// both the same way.
var ErrMissingAPIKey = errors.New("API key not valid: no Gemini API key configured")

// Client generates structured JSON responses with the Gemini API.
type Client struct {
	apiKey      string
	timeout     time.Duration
	temperature *float32
	gClient     *genai.Client // nil when no key was configured
}

// Options configures a Client.
type Options struct {
	APIKey      string
	Timeout     time.Duration // per-call deadline; zero means none
	Temperature float32       // zero leaves the model default
}

// NewClient creates a Gemini client. A missing API key is not an error here:
// the client is still returned and reports ErrMissingAPIKey per request.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	c := &Client{apiKey: opts.APIKey, timeout: opts.Timeout}
	if opts.Temperature > 0 {
		temp := opts.Temperature
		c.temperature = &temp
	}
	if opts.APIKey == "" {
		return c, nil
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.gClient = gClient
	return c, nil
}

// HasAPIKey reports whether the client was configured with a key.
func (c *Client) HasAPIKey() bool { return c.gClient != nil }

// GenerateJSON sends prompt to model with JSON output constrained by schema and
// returns the response text. An empty text is returned as-is; deciding what
// an empty response means belongs to the caller.
func (c *Client) GenerateJSON(ctx context.Context, model, prompt string, schema *genai.Schema) (string, error) {
	if c.gClient == nil {
		return "", ErrMissingAPIKey
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
		Temperature:      c.temperature,
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return resp.Text(), nil
}

// Close cleans up resources used by the client
func (c *Client) Close() {
	// The genai client holds no resources that need explicit release.
}
