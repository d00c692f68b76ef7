package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini generates content. The agent is the only caller; tests replace it
// with a mock.
type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient calls Gemini on Vertex AI. Rate limit and server side errors
// are retried with exponential backoff.
type GeminiClient struct {
	client  *genai.Client
	model   string
	retries int
	backoff time.Duration
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		if model != "" {
			g.model = model
		}
	}
}

// WithRetry sets how many times a retryable error is retried and the first
// wait between attempts. The wait doubles on every retry.
func WithRetry(retries int, backoff time.Duration) GeminiOption {
	return func(g *GeminiClient) {
		g.retries = max(retries, 0)
		g.backoff = backoff
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client",
			goerr.V("project", projectID),
			goerr.V("location", location))
	}

	g := &GeminiClient{
		client:  client,
		model:   DefaultGeminiModel,
		retries: 2,
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	err := retry(ctx, g.retries, g.backoff, func() error {
		var err error
		resp, err = g.client.Models.GenerateContent(ctx, g.model, contents, config)
		return err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", g.model))
	}

	if usage := resp.UsageMetadata; usage != nil {
		logging.From(ctx).Debug("gemini usage",
			"model", g.model,
			"prompt_tokens", usage.PromptTokenCount,
			"output_tokens", usage.CandidatesTokenCount,
		)
	}
	return resp, nil
}

// retry calls fn until it succeeds, fails with a non retryable error or
// retries are used up
func retry(ctx context.Context, retries int, backoff time.Duration, fn func() error) error {
	wait := backoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || attempt >= retries || !isRetryable(err) {
			return err
		}

		logging.From(ctx).Warn("retrying gemini request",
			"attempt", attempt+1,
			"wait", wait,
			logging.ErrAttr(err))

		select {
		case <-ctx.Done():
			return goerr.Wrap(ctx.Err(), "canceled while waiting to retry", goerr.V("cause", err.Error()))
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// isRetryable reports whether err is a rate limit or a transient server error
func isRetryable(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
