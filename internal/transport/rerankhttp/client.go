// Package rerankhttp is a client for the semantic model service /rerank endpoint.
package rerankhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/hybridrank/internal/domain"
)

const maxErrorBody = 512

// Config holds the semantic model service settings.
type Config struct {
	URL     string
	Model   string
	Timeout time.Duration
	// RatePerSecond and Burst throttle outgoing calls. Zero rate disables throttling.
	RatePerSecond float64
	Burst         int
	Logger        *zap.Logger
}

// Client implements domain.RerankScorer over HTTP.
type Client struct {
	http    *http.Client
	baseURL string
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a rerank client.
func New(cfg *Config) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.Burst, 1))
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.URL, "/"),
		model:   cfg.Model,
		limiter: limiter,
		logger:  log,
	}
}

type rerankCandidate struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

type rerankRequest struct {
	Query      string            `json:"query"`
	Candidates []rerankCandidate `json:"candidates"`
	TopK       int               `json:"top_k"`
	Model      string            `json:"model,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		ID    int64   `json:"id"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Score returns raw relevance scores keyed by document id. All documents go
// in one request and top_k asks for every one of them back.
func (c *Client) Score(ctx context.Context, query string, docs []domain.RerankDocument) (map[int64]float64, error) {
	if len(docs) == 0 {
		return map[int64]float64{}, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rerank rate limit: %w: %w", domain.ErrRerankerUnavailable, err)
	}

	req := rerankRequest{Query: query, TopK: len(docs), Model: c.model}
	req.Candidates = make([]rerankCandidate, len(docs))
	for i, d := range docs {
		req.Candidates[i] = rerankCandidate{ID: d.ID, Content: d.Text}
	}

	var resp rerankResponse
	if err := c.post(ctx, "/rerank", req, &resp); err != nil {
		return nil, err
	}

	scores := make(map[int64]float64, len(resp.Results))
	for _, r := range resp.Results {
		scores[r.ID] = r.Score
	}
	c.logger.Debug("Rerank scored", zap.Int("candidates", len(docs)), zap.Int("results", len(scores)))
	return scores, nil
}

// HealthCheck verifies the service responds on /health.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reranker health: %w: %w", domain.ErrRerankerUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reranker health status %d: %w", resp.StatusCode, domain.ErrRerankerUnavailable)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w: %w", path, domain.ErrRerankerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("post %s: status %d: %s: %w",
			path, resp.StatusCode, strings.TrimSpace(string(snippet)), domain.ErrRerankerUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w: %w", path, domain.ErrRerankerUnavailable, err)
	}
	return nil
}
