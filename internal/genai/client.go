package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ModelClient defines the boundary to the language-model service. It exposes
// raw completions only; prompt construction and response parsing belong to
// the suggestion generator.
type ModelClient interface {
	// Complete sends a prompt and returns the raw response text.
	Complete(ctx context.Context, prompt string) (string, error)

	// IsAPIKeyValid checks if the configured API key is functional.
	IsAPIKeyValid(ctx context.Context) error

	// Close cleans up any resources used by the client.
	Close() error
}

// Config holds configuration for the GenAI client.
type Config struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	Logger          *zap.Logger
}

// geminiClient implements ModelClient using the Google Gemini API.
type geminiClient struct {
	client *genai.Client
	cfg    Config
	logger *zap.Logger
}

var _ ModelClient = (*geminiClient)(nil)

// NewClient creates a new Gemini-backed model client.
func NewClient(ctx context.Context, cfg Config) (ModelClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cannot create Gemini client: API key is missing")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash-latest"
		logger.Info("Gemini model not specified, using default", zap.String("model", cfg.Model))
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 4096
	}

	return &geminiClient{client: client, cfg: cfg, logger: logger}, nil
}

// Close cleans up the underlying Gemini client.
func (c *geminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAPIKeyValid checks if the Gemini API key is valid by listing models.
func (c *geminiClient) IsAPIKeyValid(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("gemini client not initialized (likely missing API key)")
	}

	modelIterator := c.client.ListModels(ctx)
	if _, err := modelIterator.Next(); err != nil {
		classified := classifyError(err)
		if IsFatal(classified) {
			return classified
		}
		return fmt.Errorf("failed to verify Gemini API key by listing models: %w", err)
	}
	return nil
}

// Complete sends the prompt to the configured model and returns the raw text
// of the first candidate. Errors are classified into the package taxonomy so
// the caller's retry policy can distinguish transient from fatal.
func (c *geminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.client == nil {
		return "", &AuthError{Msg: "gemini client not initialized"}
	}

	model := c.client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(c.cfg.Temperature)
	model.SetMaxOutputTokens(c.cfg.MaxOutputTokens)
	model.SetTopP(0.9)
	model.SetTopK(40)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyError(err)
	}
	return firstTextPart(resp)
}

// firstTextPart extracts the text parts from a Gemini response.
func firstTextPart(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if resp != nil && len(resp.Candidates) > 0 {
			finishReason = resp.Candidates[0].FinishReason.String()
		}
		return "", fmt.Errorf("empty or incomplete response from Gemini API (finish reason: %s)", finishReason)
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("response contained no text parts")
	}
	return sb.String(), nil
}
