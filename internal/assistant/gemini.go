package assistant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.0-flash"

var ErrNoAPIKey = errors.New("no GEMINI_API_KEY or GOOGLE_API_KEY set")

// Generator produces a reply for a fully built prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Gemini struct {
	client *genai.Client
	model  string
}

// APIKeyFromEnv returns the first of GEMINI_API_KEY and GOOGLE_API_KEY.
func APIKeyFromEnv() string {
	if k := os.Getenv("GEMINI_API_KEY"); k != "" {
		return k
	}
	return os.Getenv("GOOGLE_API_KEY")
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("error calling gemini: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
