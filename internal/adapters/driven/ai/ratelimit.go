package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// newLimiter returns nil when rps is not positive.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// wait blocks until the limiter admits one request. A wait that cannot finish
// before the context deadline is reported as context.DeadlineExceeded so
// callers classify it as a timeout.
func wait(ctx context.Context, limiter *rate.Limiter) error {
	if err := limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("rate limit: %w", context.DeadlineExceeded)
	}
	return nil
}

// RateLimitedEmbeddingService admits Embed calls at a fixed rate.
type RateLimitedEmbeddingService struct {
	driven.EmbeddingService
	limiter *rate.Limiter
}

// RateLimitedEmbedding wraps svc. With rps <= 0 svc is returned unchanged.
func RateLimitedEmbedding(svc driven.EmbeddingService, rps float64, burst int) driven.EmbeddingService {
	limiter := newLimiter(rps, burst)
	if limiter == nil || svc == nil {
		return svc
	}
	return &RateLimitedEmbeddingService{EmbeddingService: svc, limiter: limiter}
}

// Embed waits for a token, then embeds.
func (s *RateLimitedEmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := wait(ctx, s.limiter); err != nil {
		return nil, err
	}
	return s.EmbeddingService.Embed(ctx, texts)
}

// RateLimitedScoringService admits Score calls at a fixed rate.
type RateLimitedScoringService struct {
	driven.ScoringService
	limiter *rate.Limiter
}

// RateLimitedScoring wraps svc. With rps <= 0 svc is returned unchanged.
func RateLimitedScoring(svc driven.ScoringService, rps float64, burst int) driven.ScoringService {
	limiter := newLimiter(rps, burst)
	if limiter == nil || svc == nil {
		return svc
	}
	return &RateLimitedScoringService{ScoringService: svc, limiter: limiter}
}

// Score waits for a token, then scores.
func (s *RateLimitedScoringService) Score(ctx context.Context, query, passage string) (float64, error) {
	if err := wait(ctx, s.limiter); err != nil {
		return 0, err
	}
	return s.ScoringService.Score(ctx, query, passage)
}

// RateLimitedLLMService admits Generate and RewriteQuery calls at a shared rate.
type RateLimitedLLMService struct {
	driven.LLMService
	limiter *rate.Limiter
}

// RateLimitedLLM wraps svc. With rps <= 0 svc is returned unchanged.
func RateLimitedLLM(svc driven.LLMService, rps float64, burst int) driven.LLMService {
	limiter := newLimiter(rps, burst)
	if limiter == nil || svc == nil {
		return svc
	}
	return &RateLimitedLLMService{LLMService: svc, limiter: limiter}
}

// Generate waits for a token, then generates.
func (s *RateLimitedLLMService) Generate(ctx context.Context, prompt string) (string, error) {
	if err := wait(ctx, s.limiter); err != nil {
		return "", err
	}
	return s.LLMService.Generate(ctx, prompt)
}

// RewriteQuery waits for a token, then rewrites.
func (s *RateLimitedLLMService) RewriteQuery(ctx context.Context, query string, passages []string) (string, error) {
	if err := wait(ctx, s.limiter); err != nil {
		return "", err
	}
	return s.LLMService.RewriteQuery(ctx, query, passages)
}
