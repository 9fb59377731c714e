package llm

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/starford/ansuz/internal/apperr"
)

const captionPrompt = "Describe this image in one concise sentence suitable as a note caption. Reply with the caption only."

// Captioner generates short captions for image notes.
type Captioner struct {
	model llms.Model
}

// NewCaptioner creates a captioner against the vision-capable model in cfg.
func NewCaptioner(cfg Config) (*Captioner, error) {
	if cfg.APIKey == "" {
		return nil, apperr.Validation("llm API key is not configured")
	}
	model := cfg.CaptionModel
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, apperr.Upstream(apperr.UpstreamUnknown, serviceName, 0, "initializing caption client", err)
	}
	return &Captioner{model: m}, nil
}

// NewCaptionerWithModel wraps an existing llms.Model, for tests.
func NewCaptionerWithModel(model llms.Model) *Captioner {
	return &Captioner{model: model}
}

// Caption describes the image at url in one sentence.
func (c *Captioner) Caption(ctx context.Context, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", apperr.Validation("image url is required")
	}
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(captionPrompt),
				llms.ImageURLPart(url),
			},
		},
	}
	resp, err := c.model.GenerateContent(ctx, content, llms.WithMaxTokens(120))
	if err != nil {
		return "", classify(err)
	}
	text, err := firstChoice(resp)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
