// Package llm provides the text and image generation capabilities used by
// the chat pipeline.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Aman-CERP/pagegenie/internal/config"
	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/pkg/version"
)

// Generator produces an answer from a system and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// ImageGenerator produces an image for prompt and returns its URL.
// slug, when set, names the page the image belongs to.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, slug string) (string, error)
}

// OpenAIConfig configures the OpenAI chat and image clients.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration

	ImageModel   string
	ImageSize    string
	ImageTimeout time.Duration

	HTTPClient *http.Client
}

func newClient(cfg OpenAIConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = version.Client(cfg.HTTPClient)
	return openai.NewClientWithConfig(clientCfg)
}

// OpenAIGenerator calls the chat completions endpoint.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewOpenAIGenerator creates a generator. The API key is required.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, missingKey()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAIGenerator{
		client:      newClient(cfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

// fixedSamplingModels reject a temperature other than the default.
var fixedSamplingModels = []string{"o1", "o3", "o4", "gpt-5"}

func supportsTemperature(model string) bool {
	for _, p := range fixedSamplingModels {
		if strings.HasPrefix(model, p) {
			return false
		}
	}
	return true
}

// Generate sends one system and one user message and returns the reply.
func (g *OpenAIGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if supportsTemperature(g.model) {
		req.Temperature = g.temperature
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", perrors.UpstreamError(perrors.ErrCodeGenerationFailed, "generation failed", withDeadline(ctx, err))
	}
	if len(resp.Choices) == 0 {
		return "", perrors.UpstreamError(perrors.ErrCodeGenerationFailed, "generation returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIImager calls the image generation endpoint.
type OpenAIImager struct {
	client  *openai.Client
	model   string
	size    string
	timeout time.Duration
}

// NewOpenAIImager creates an image generator. The API key is required.
func NewOpenAIImager(cfg OpenAIConfig) (*OpenAIImager, error) {
	if cfg.APIKey == "" {
		return nil, missingKey()
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = openai.CreateImageModelDallE3
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = openai.CreateImageSize1024x1024
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 90 * time.Second
	}
	return &OpenAIImager{
		client:  newClient(cfg),
		model:   cfg.ImageModel,
		size:    cfg.ImageSize,
		timeout: cfg.ImageTimeout,
	}, nil
}

// GenerateImage returns the URL of one generated image.
func (i *OpenAIImager) GenerateImage(ctx context.Context, prompt, _ string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	resp, err := i.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          i.model,
		Size:           i.size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", perrors.UpstreamError(perrors.ErrCodeImageFailed, "image generation failed", withDeadline(ctx, err))
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", perrors.UpstreamError(perrors.ErrCodeImageFailed, "image generation returned no url", nil)
	}
	return resp.Data[0].URL, nil
}

// unavailableGenerator reports a missing credential on every call, so the
// server can run read-only endpoints without a key.
type unavailableGenerator struct{}

func (unavailableGenerator) Generate(context.Context, string, string) (string, error) {
	return "", missingKey()
}

func missingKey() *perrors.PageError {
	return perrors.New(perrors.ErrCodeMissingAPIKey, "OPENAI_API_KEY is not set", nil).
		WithSuggestion("Export OPENAI_API_KEY or add it to .env")
}

// withDeadline makes a deadline expiry visible to errors.Is when the
// client reports it as a transport error.
func withDeadline(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

// New builds the generator and image generator cfg describes. Without an
// OpenAI key the generator fails each call and images are written as
// local placeholders.
func New(cfg *config.Config) (Generator, ImageGenerator) {
	oc := OpenAIConfig{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.Generation.BaseURL,
		Model:        cfg.Generation.Model,
		Temperature:  cfg.Generation.Temperature,
		Timeout:      cfg.Generation.Timeout,
		ImageModel:   cfg.Generation.ImageModel,
		ImageSize:    cfg.Generation.ImageSize,
		ImageTimeout: cfg.Generation.ImageTimeout,
	}
	gen, err := NewOpenAIGenerator(oc)
	if err != nil {
		return unavailableGenerator{}, NewPlaceholderImager(cfg.Paths.PagesDir)
	}
	img, err := NewOpenAIImager(oc)
	if err != nil {
		return gen, NewPlaceholderImager(cfg.Paths.PagesDir)
	}
	return gen, img
}
