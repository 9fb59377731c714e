// Package llm wraps the generative model behind typed completion calls.
// JSON-mode responses are decoded through a schema check so malformed
// model output surfaces as an upstream bad-request, not a parse panic.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/starford/ansuz/internal/apperr"
)

const serviceName = "llm"

// Config holds the model client configuration.
type Config struct {
	APIKey       string
	Model        string
	CaptionModel string
	BaseURL      string
	Temperature  float64
	MaxTokens    int
}

// Client is the generative model client shared by the elaboration
// pipeline. Constructed explicitly and passed to its consumers; no
// package-level singleton.
type Client struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

// New creates a client against the OpenAI-compatible endpoint in cfg.
// A missing credential is a validation error raised before any call.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperr.Validation("llm API key is not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, apperr.Upstream(apperr.UpstreamUnknown, serviceName, 0, "initializing model client", err)
	}
	return &Client{model: model, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}, nil
}

// NewWithModel wraps an existing llms.Model. Used by tests to substitute
// a fake without network access.
func NewWithModel(model llms.Model) *Client {
	return &Client{model: model, temperature: 0.3, maxTokens: 1500}
}

// Complete sends a system + user prompt and returns the free-text reply.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	resp, err := c.model.GenerateContent(ctx, content,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return "", classify(err)
	}
	return firstChoice(resp)
}

// CompleteJSON sends a prompt in JSON mode and decodes the reply into out.
// A reply that is not valid JSON for out's shape is an upstream
// bad-request: the model violated its instructed response contract.
func (c *Client) CompleteJSON(ctx context.Context, system, user string, out any) error {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	resp, err := c.model.GenerateContent(ctx, content,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
		llms.WithJSONMode(),
	)
	if err != nil {
		return classify(err)
	}
	text, err := firstChoice(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFences(text)), out); err != nil {
		return apperr.Upstream(apperr.UpstreamBadRequest, serviceName, 0, "model returned malformed JSON", err)
	}
	return nil
}

func firstChoice(resp *llms.ContentResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", apperr.Upstream(apperr.UpstreamUnknown, serviceName, 0, "model returned no choices", nil)
	}
	return resp.Choices[0].Content, nil
}

// stripFences removes a markdown code fence some models wrap around JSON
// replies despite JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// classify maps a transport error from the model SDK onto the shared
// upstream taxonomy, keyed off the status the SDK embeds in its message.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "incorrect api key"):
		return apperr.Upstream(apperr.UpstreamAuth, serviceName, 401, err.Error(), err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return apperr.Upstream(apperr.UpstreamRateLimit, serviceName, 429, err.Error(), err)
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "timeout"):
		return apperr.Upstream(apperr.UpstreamNetwork, serviceName, 0, err.Error(), err)
	default:
		return apperr.Upstream(apperr.UpstreamUnknown, serviceName, 0, err.Error(), err)
	}
}
