package reranker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// CrossEncoderLoader loads a cross-encoder served over HTTP with the
// text-embeddings-inference API (GET /info, POST /rerank).
type CrossEncoderLoader struct {
	client *resty.Client
}

// CrossEncoderConfig holds the runtime location and request settings.
type CrossEncoderConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewCrossEncoderLoader creates a loader for the runtime at cfg.BaseURL.
func NewCrossEncoderLoader(cfg CrossEncoderConfig) *CrossEncoderLoader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var client *resty.Client
	if cfg.HTTPClient != nil {
		client = resty.NewWithClient(cfg.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &CrossEncoderLoader{client: client}
}

type infoResponse struct {
	ModelID string `json:"model_id"`
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rankedText struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Load checks that the runtime is reachable and reports which model it serves.
func (l *CrossEncoderLoader) Load(ctx context.Context) (PrecisionScorer, error) {
	var info infoResponse
	resp, err := l.client.R().SetContext(ctx).SetResult(&info).Get("/info")
	if err != nil {
		return nil, fmt.Errorf("failed to reach cross-encoder runtime: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("cross-encoder runtime error (status %d): %s", resp.StatusCode(), resp.String())
	}
	if info.ModelID == "" {
		return nil, errors.New("cross-encoder runtime reported no model")
	}
	return &crossEncoder{client: l.client, model: info.ModelID}, nil
}

type crossEncoder struct {
	client *resty.Client
	model  string
}

func (c *crossEncoder) ModelName() string { return c.model }

func (c *crossEncoder) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	var ranked []rankedText
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(rerankRequest{Query: query, Texts: candidates, Truncate: true}).
		SetResult(&ranked).
		Post("/rerank")
	if err != nil {
		return nil, fmt.Errorf("failed to send rerank request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("cross-encoder rerank error (status %d): %s", resp.StatusCode(), resp.String())
	}

	scores := make([]float64, len(candidates))
	seen := make([]bool, len(candidates))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("cross-encoder returned out-of-range index %d", r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("cross-encoder returned no score for candidate %d", i)
		}
	}
	return scores, nil
}

var (
	_ Loader          = (*CrossEncoderLoader)(nil)
	_ PrecisionScorer = (*crossEncoder)(nil)
)
