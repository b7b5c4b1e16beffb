package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultOllamaBaseURL is the default Ollama API endpoint.
	DefaultOllamaBaseURL = "http://localhost:11434"

	// DefaultModel is the default LLM model to use.
	DefaultModel = "gpt-oss:20b"

	// DefaultTemperature keeps support answers close to the retrieved passages.
	DefaultTemperature = 0.3
)

// OllamaClient implements the LLM interface using the Ollama API.
type OllamaClient struct {
	client *resty.Client
	model  string
}

// OllamaOption is a functional option for configuring OllamaClient.
type OllamaOption func(*ollamaSettings)

type ollamaSettings struct {
	baseURL    string
	httpClient *http.Client
	model      string
	timeout    time.Duration
}

// WithBaseURL sets a custom base URL for the Ollama API.
func WithBaseURL(url string) OllamaOption {
	return func(s *ollamaSettings) {
		s.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(s *ollamaSettings) {
		s.httpClient = client
	}
}

// WithModel sets the default model for the client.
func WithModel(model string) OllamaOption {
	return func(s *ollamaSettings) {
		s.model = model
	}
}

// WithTimeout bounds a single generation request.
func WithTimeout(d time.Duration) OllamaOption {
	return func(s *ollamaSettings) {
		s.timeout = d
	}
}

// NewOllamaClient creates a new Ollama LLM client with the given options.
func NewOllamaClient(opts ...OllamaOption) *OllamaClient {
	s := &ollamaSettings{
		baseURL: DefaultOllamaBaseURL,
		model:   DefaultModel,
		timeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	var client *resty.Client
	if s.httpClient != nil {
		client = resty.NewWithClient(s.httpClient)
	} else {
		client = resty.New()
	}
	client.SetBaseURL(s.baseURL).
		SetTimeout(s.timeout).
		SetHeader("Content-Type", "application/json")

	return &OllamaClient{client: client, model: s.model}
}

// ollamaRequest represents the request body for Ollama's generate API.
type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// ollamaResponse represents the response from Ollama's generate API.
type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

// Generate sends a prompt to Ollama and returns the complete response.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var out ollamaResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(c.buildRequest(prompt, opts)).
		SetResult(&out).
		Post("/api/generate")
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode(), resp.String())
	}
	return out.Response, nil
}

func (c *OllamaClient) buildRequest(prompt string, opts GenerateOptions) ollamaRequest {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	req := ollamaRequest{
		Model:  model,
		Prompt: prompt,
		System: opts.SystemPrompt,
	}

	options := make(map[string]any)
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		req.Options = options
	}
	return req
}

// Ensure OllamaClient implements LLM interface.
var _ LLM = (*OllamaClient)(nil)
