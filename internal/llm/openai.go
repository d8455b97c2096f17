package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/ashureev/phishcoach/internal/config"
)

// responder sends one Responses API request and returns the output text.
type responder interface {
	respond(ctx context.Context, params responses.ResponseNewParams) (string, error)
}

type turn struct {
	role responses.EasyInputMessageRole
	text string
}

// OpenAI is a Service backed by the OpenAI Responses API. The running
// conversation is kept locally and replayed as input items on every query.
type OpenAI struct {
	api             responder
	model           string
	maxOutputTokens int64

	mu      sync.Mutex
	history []turn
}

// NewOpenAI creates an OpenAI-backed service.
func NewOpenAI(cfg config.OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are handled by callWithRetry.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAI{
		api: &clientResponder{
			client:     &client,
			maxRetries: cfg.MaxRetries,
			backoff:    defaultBackoff,
		},
		model:           cfg.Model,
		maxOutputTokens: int64(cfg.MaxOutputTokens),
	}
}

// Query implements Service.
func (o *OpenAI) Query(ctx context.Context, prompt string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	items := make([]responses.ResponseInputItemUnionParam, 0, len(o.history)+1)
	for _, t := range o.history {
		items = append(items, responses.ResponseInputItemParamOfMessage(t.text, t.role))
	}
	items = append(items, responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser))

	params := responses.ResponseNewParams{
		Model: o.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: items,
		},
	}
	if o.maxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(o.maxOutputTokens)
	}

	text, err := o.api.respond(ctx, params)
	if err != nil {
		return "", fmt.Errorf("query language model: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}

	o.history = append(o.history,
		turn{role: responses.EasyInputMessageRoleUser, text: prompt},
		turn{role: responses.EasyInputMessageRoleAssistant, text: text},
	)
	return text, nil
}

// ResetContext implements Service.
func (o *OpenAI) ResetContext() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
}

// contextLen returns the number of turns in the running conversation.
func (o *OpenAI) contextLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.history)
}

type backoff struct {
	rateLimit   []time.Duration
	serverError []time.Duration
}

var defaultBackoff = backoff{
	rateLimit:   []time.Duration{5 * time.Second, 20 * time.Second, 45 * time.Second},
	serverError: []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second},
}

func (b backoff) wait(list []time.Duration, attempt int) time.Duration {
	if len(list) == 0 {
		return 0
	}
	if attempt >= len(list) {
		return list[len(list)-1]
	}
	return list[attempt]
}

type clientResponder struct {
	client     *openai.Client
	maxRetries int
	backoff    backoff
}

func (c *clientResponder) respond(ctx context.Context, params responses.ResponseNewParams) (string, error) {
	resp, err := callWithRetry(ctx, c.maxRetries, c.backoff, func(ctx context.Context) (*responses.Response, error) {
		return c.client.Responses.New(ctx, params)
	})
	if err != nil {
		return "", err
	}
	return resp.OutputText(), nil
}

// callWithRetry makes one attempt plus up to maxRetries retries.
func callWithRetry(ctx context.Context, maxRetries int, b backoff, call func(context.Context) (*responses.Response, error)) (*responses.Response, error) {
	attempts := max(maxRetries, 0) + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := call(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var delay time.Duration
		switch {
		case isRateLimitError(err):
			delay = b.wait(b.rateLimit, attempt)
		case isServerError(err):
			delay = b.wait(b.serverError, attempt)
		default:
			return nil, err
		}
		if attempt == attempts-1 {
			break
		}

		slog.Warn("Language model request failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

var (
	rateLimitStatus   = regexp.MustCompile(`\b429\b`)
	serverErrorStatus = regexp.MustCompile(`\b5\d\d\b`)
)

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return rateLimitStatus.MatchString(errStr) ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return serverErrorStatus.MatchString(errStr) ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}
