package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

const GeminiName = "gemini"

// GeminiConfig holds configuration for the Gemini API backend.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string // Optional override (tests)
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GeminiClient implements Backend on the Google GenAI SDK. The SDK client
// is created on first use because construction needs a context.
type GeminiClient struct {
	cfg GeminiConfig

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiClient creates a Gemini backend.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultCallTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &GeminiClient{cfg: cfg}
}

// Name returns the client identifier.
func (c *GeminiClient) Name() string {
	return GeminiName
}

func (c *GeminiClient) init(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		cc := &genai.ClientConfig{
			APIKey:     c.cfg.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: c.cfg.HTTPClient,
		}
		if c.cfg.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.cfg.BaseURL}
		}
		c.client, c.initErr = genai.NewClient(ctx, cc)
	})
	if c.initErr != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", c.initErr)
	}
	return c.client, nil
}

// Generate sends prompt as a single user turn.
func (c *GeminiClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	client, err := c.init(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", mapGeminiError(err))
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini generate content: %w", ErrEmptyCompletion)
	}
	return text, nil
}
