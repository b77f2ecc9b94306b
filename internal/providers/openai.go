package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName           = "openai"
	OpenAIDefaultBaseURL = "https://api.openai.com/v1"
	defaultCallTimeout   = 900 * time.Second
)

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string        // Empty uses the hosted OpenAI API
	Timeout    time.Duration // HTTP timeout (default 900s)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIClient implements Backend for any OpenAI-compatible chat endpoint,
// including locally hosted vLLM servers.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  openai.Client
}

// NewOpenAIClient creates a client. SDK retries are disabled; Service
// owns retry.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIDefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultCallTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// Local vLLM servers accept any key but the SDK requires one.
		apiKey = "EMPTY"
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		client:  client,
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// BaseURL returns the endpoint this client talks to.
func (c *OpenAIClient) BaseURL() string {
	return c.baseURL
}

// Generate sends prompt as a single user message.
func (c *OpenAIClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", mapOpenAIError(err))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no choices: %w", ErrEmptyCompletion)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai chat completion: %w", ErrEmptyCompletion)
	}
	return content, nil
}
