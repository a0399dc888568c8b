// Package openai generates answers through an OpenAI-compatible chat
// completions endpoint (OpenAI, Gemini's OpenAI endpoint, Ollama).
package openai

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"complaintrag/internal/domain"
	"complaintrag/internal/logger"
)

type Config struct {
	Model       string
	BaseURL     string
	APIKeyEnv   string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
}

// Client sends each prompt as an independent single-turn conversation.
type Client struct {
	log         *logger.Logger
	client      *openai.Client
	model       string
	timeout     time.Duration
	temperature float32
	maxTokens   int
}

// New fails with a configuration error when the credential is missing.
func New(log *logger.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, domain.ConfigurationErrorf("generator model is required")
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.ConfigurationErrorf("missing generator API key in env %s", cfg.APIKeyEnv)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		log:         log.With("service", "Generator", "model", cfg.Model),
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		timeout:     timeout,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (c *Client) ModelID() string { return c.model }

// Generate returns the trimmed completion text. Every failure, including an
// empty completion, is a *domain.GenerationError.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(cctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		gerr := classify(c.model, err)
		c.log.Warn("generation failed", "kind", gerr.Kind, "status", gerr.StatusCode, "error", err)
		return "", gerr
	}
	if len(resp.Choices) == 0 {
		return "", &domain.GenerationError{Kind: domain.GenerationTransient, Model: c.model, Cause: errors.New("response has no choices")}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &domain.GenerationError{
			Kind:  domain.GenerationTransient,
			Model: c.model,
			Cause: errors.New("empty completion (finish_reason=" + string(resp.Choices[0].FinishReason) + ")"),
		}
	}
	c.log.Debug("generated", "elapsed", time.Since(start), "tokens", resp.Usage.TotalTokens)
	return text, nil
}

// classify splits failures into ones a retry cannot fix (rejected
// credentials, unknown model, malformed request) and everything else.
func classify(model string, err error) *domain.GenerationError {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	kind := domain.GenerationTransient
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		kind = domain.GenerationUnavailable
	}
	return &domain.GenerationError{Kind: kind, Model: model, StatusCode: status, Cause: err}
}
