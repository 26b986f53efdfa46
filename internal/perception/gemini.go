package perception

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini-backed vision caller.
type GeminiConfig struct {
	APIKey          string
	Model           string
	MaxOutputTokens int32
}

// DefaultGeminiConfig returns sensible defaults. Flash-class models handle
// the tile resolution fine and keep per-scan cost low.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:          apiKey,
		Model:           "gemini-2.5-flash",
		MaxOutputTokens: 8192,
	}
}

// GeminiCaller sends tile images to the Gemini API.
type GeminiCaller struct {
	client *genai.Client
	config GeminiConfig
}

// NewGeminiCaller creates the genai client.
func NewGeminiCaller(ctx context.Context, config GeminiConfig) (*GeminiCaller, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if strings.TrimSpace(config.Model) == "" {
		config.Model = DefaultGeminiConfig("").Model
	}
	if config.MaxOutputTokens <= 0 {
		config.MaxOutputTokens = DefaultGeminiConfig("").MaxOutputTokens
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiCaller{client: client, config: config}, nil
}

// NewGeminiAnalyzer is the production wiring: a Gemini caller behind the
// retrying TileAnalyzer.
func NewGeminiAnalyzer(ctx context.Context, config GeminiConfig, retry RetryConfig) (*TileAnalyzer, error) {
	caller, err := NewGeminiCaller(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewTileAnalyzer(caller, retry), nil
}

// generate sends one tile image plus the audit instruction and returns the
// raw model text.
func (g *GeminiCaller) generate(ctx context.Context, prompt string, png []byte) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(png, "image/png"),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		MaxOutputTokens:  g.config.MaxOutputTokens,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("Gemini call failed: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("Gemini returned no text content")
	}
	return text, nil
}
