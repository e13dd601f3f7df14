// Package tei provides a cross-encoder scoring adapter for servers that speak
// the text-embeddings-inference rerank API.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Scorer implements the interface.
var _ driven.ScoringService = (*Scorer)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:8080"
	DefaultTimeout = 30 * time.Second
)

// Config holds configuration for the TEI scorer.
type Config struct {
	// BaseURL is the server root; /rerank is appended.
	BaseURL string

	// Model is reported by ModelName. The server decides which model runs.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout is the HTTP client timeout (default: 30s).
	Timeout time.Duration
}

// Scorer scores (query, passage) pairs with a remote cross-encoder.
type Scorer struct {
	client  *http.Client
	baseURL string
	model   string
	apiKey  string
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

// NewScorer creates a new TEI scorer.
func NewScorer(cfg Config) *Scorer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Scorer{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
	}
}

// Score returns the relevance of passage to query in [0,1].
func (s *Scorer) Score(ctx context.Context, query, passage string) (float64, error) {
	scores, err := s.ScoreBatch(ctx, query, []string{passage})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// ScoreBatch scores every passage against query in one request.
// Scores are returned in passage order.
func (s *Scorer) ScoreBatch(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	jsonBody, err := json.Marshal(rerankRequest{
		Query:    query,
		Texts:    passages,
		Truncate: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rerank", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("tei error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("tei error (status %d): %s", resp.StatusCode, string(body))
	}

	var results []rerankResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(passages) {
			return nil, fmt.Errorf("tei: result index %d out of range", r.Index)
		}
		if !inUnitRange(r.Score) {
			return nil, fmt.Errorf("tei: score %v for passage %d outside [0,1]", r.Score, r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("tei: no score returned for passage %d", i)
		}
	}
	return scores, nil
}

// inUnitRange reports whether score is a probability. Requests ask for
// sigmoid scores, so anything else means the server ignored raw_scores.
func inUnitRange(score float64) bool {
	return !math.IsNaN(score) && score >= 0 && score <= 1
}

// ModelName returns the configured model name.
func (s *Scorer) ModelName() string {
	return s.model
}

// Ping checks the server health endpoint.
func (s *Scorer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("tei: failed to create ping request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("tei: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("tei: ping failed (status %d, failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("tei: ping failed (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close releases resources.
func (s *Scorer) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Scorer) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}
