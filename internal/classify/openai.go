package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tbourn/go-feedback-bot/internal/domain"
)

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // e.g. https://api.openai.com/v1
	Model       string
	MaxTokens   int
	Temperature float64
	MaxRunes    int
	Timeout     time.Duration // HTTP client timeout; the caller's context may be shorter
}

// DefaultOpenAIConfig returns the settings the bot ships with.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:      apiKey,
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-3.5-turbo",
		MaxTokens:   200,
		Temperature: 0.3,
		MaxRunes:    DefaultMaxRunes,
		Timeout:     30 * time.Second,
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAI classifies through the chat completions endpoint.
type OpenAI struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// NewOpenAI builds an OpenAI classifier. Zero fields in cfg take the values
// of DefaultOpenAIConfig.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	def := DefaultOpenAIConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxRunes <= 0 {
		cfg.MaxRunes = def.MaxRunes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &OpenAI{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// Classify implements Classifier.
func (c *OpenAI) Classify(ctx context.Context, text string) (domain.Verdict, error) {
	if c.cfg.APIKey == "" {
		return domain.Verdict{}, fmt.Errorf("%w: API key not configured", ErrUnavailable)
	}

	body, err := json.Marshal(openAIRequest{
		Model:       c.cfg.Model,
		Messages:    []openAIMessage{{Role: "user", Content: BuildPrompt(text, c.cfg.MaxRunes)}},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("classify: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Verdict{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out openAIResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: decode response: %v", ErrMalformed, err)
	}
	if out.Error != nil {
		return domain.Verdict{}, fmt.Errorf("%w: api error: %s", ErrUnavailable, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return domain.Verdict{}, fmt.Errorf("%w: no choices", ErrMalformed)
	}
	return ParseVerdict(out.Choices[0].Message.Content)
}
