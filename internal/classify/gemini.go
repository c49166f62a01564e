package classify

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/tbourn/go-feedback-bot/internal/domain"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey   string
	Model    string
	BaseURL  string // optional override, used by tests
	MaxRunes int
}

// Gemini classifies through the Google GenAI SDK and asks for a JSON answer.
type Gemini struct {
	client   *genai.Client
	model    string
	maxRunes int
}

// NewGemini creates a Gemini classifier.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("classify: gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("classify: create genai client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, maxRunes: cfg.MaxRunes}, nil
}

// Classify implements Classifier.
func (g *Gemini) Classify(ctx context.Context, text string) (domain.Verdict, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(BuildPrompt(text, g.maxRunes), genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.3),
		MaxOutputTokens:  200,
	})
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	out := resp.Text()
	if strings.TrimSpace(out) == "" {
		return domain.Verdict{}, fmt.Errorf("%w: empty candidate", ErrMalformed)
	}
	return ParseVerdict(out)
}
