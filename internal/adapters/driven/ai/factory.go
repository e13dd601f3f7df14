// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/sercha-rag/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/sercha-rag/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/scoring/tei"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the result of AI service initialisation.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	LLMService       driven.LLMService
	ScoringService   driven.ScoringService // Nil when no scoring endpoint is configured.
	Warnings         []string              // Non-fatal issues found while connecting.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		r.EmbeddingService.Close()
	}
	if r.LLMService != nil {
		r.LLMService.Close()
	}
	if r.ScoringService != nil {
		r.ScoringService.Close()
	}
}

// Initialise creates every AI service from settings, validates connectivity
// and applies the configured rate limits. Embedding is required; an
// unreachable LLM or scorer is reported as a warning so that indexing keeps
// working.
func Initialise(ctx context.Context, settings *domain.AppSettings, prompts driven.PromptStore) (*InitResult, error) {
	result := &InitResult{}

	embedder, err := CreateAndValidateEmbeddingService(ctx, &settings.Embedding)
	if err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedding provider %q", domain.ErrNotConfigured, settings.Embedding.Provider)
	}
	result.EmbeddingService = RateLimitedEmbedding(embedder, settings.RateLimits.EmbeddingRPS, settings.RateLimits.Burst)

	llmSvc, err := CreateAndValidateLLMService(ctx, &settings.LLM)
	switch {
	case err != nil:
		result.Warnings = append(result.Warnings, err.Error())
	case llmSvc == nil:
		result.Warnings = append(result.Warnings, "LLM provider is not configured")
	default:
		if aware, ok := llmSvc.(driven.PromptStoreAware); ok && prompts != nil {
			aware.SetPromptStore(prompts)
		}
		result.LLMService = RateLimitedLLM(llmSvc, settings.RateLimits.GenerationRPS, settings.RateLimits.Burst)
	}

	scorer, err := CreateAndValidateScoringService(ctx, &settings.Scoring)
	switch {
	case err != nil:
		result.Warnings = append(result.Warnings, err.Error())
	case scorer != nil:
		result.ScoringService = RateLimitedScoring(scorer, settings.RateLimits.ScoringRPS, settings.RateLimits.Burst)
	}

	for _, w := range result.Warnings {
		logger.Warn("%s", w)
	}
	return result, nil
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
// Returns nil, nil when the provider is not configured.
func CreateAndValidateEmbeddingService(ctx context.Context, settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w. Run 'sercha-rag settings' to fix", err)
	}
	if svc == nil {
		return nil, nil
	}
	if err := ping(ctx, svc); err != nil {
		svc.Close()
		return nil, fmt.Errorf("embedding: %w: service unreachable (%v). Run 'sercha-rag settings' to fix",
			domain.ErrServiceError, err)
	}
	return svc, nil
}

// CreateAndValidateLLMService creates an LLM service and validates connectivity.
// Returns nil, nil when the provider is not configured.
func CreateAndValidateLLMService(ctx context.Context, settings *domain.LLMSettings) (driven.LLMService, error) {
	svc, err := CreateLLMService(settings)
	if err != nil {
		return nil, fmt.Errorf("llm: %w. Run 'sercha-rag settings' to fix", err)
	}
	if svc == nil {
		return nil, nil
	}
	if err := ping(ctx, svc); err != nil {
		svc.Close()
		return nil, fmt.Errorf("llm: %w: service unreachable (%v). Run 'sercha-rag settings' to fix",
			domain.ErrServiceError, err)
	}
	return svc, nil
}

// CreateAndValidateScoringService creates a cross-encoder scorer and validates connectivity.
// Returns nil, nil when no endpoint is configured.
func CreateAndValidateScoringService(ctx context.Context, settings *domain.ScoringSettings) (driven.ScoringService, error) {
	svc := CreateScoringService(settings)
	if svc == nil {
		return nil, nil
	}
	if err := ping(ctx, svc); err != nil {
		svc.Close()
		return nil, fmt.Errorf("scoring: %w: service unreachable (%v). Run 'sercha-rag settings' to fix",
			domain.ErrServiceError, err)
	}
	return svc, nil
}

// ValidateEmbeddingConfig validates an embedding configuration by creating a service and pinging it.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	svc, err := CreateEmbeddingService(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()
	return ping(context.Background(), svc)
}

// ValidateLLMConfig validates an LLM configuration by creating a service and pinging it.
func ValidateLLMConfig(settings *domain.LLMSettings) error {
	svc, err := CreateLLMService(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()
	return ping(context.Background(), svc)
}

// ValidateScoringConfig validates a scoring endpoint by pinging it.
func ValidateScoringConfig(settings *domain.ScoringSettings) error {
	svc := CreateScoringService(settings)
	if svc == nil {
		return nil
	}
	defer svc.Close()
	return ping(context.Background(), svc)
}

// CreateEmbeddingService creates the appropriate embedding service based on settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: domain.EmbeddingDimensions()[settings.Model],
		}), nil

	case domain.AIProviderOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: domain.EmbeddingDimensions()[settings.Model],
		})

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateLLMService creates the appropriate LLM service based on settings.
// Returns nil if the provider is not configured.
func CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	case domain.AIProviderAnthropic:
		return anthropic.NewLLMService(anthropic.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
	}
}

// CreateScoringService creates a TEI scorer. Returns nil if no endpoint is set.
func CreateScoringService(settings *domain.ScoringSettings) driven.ScoringService {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}
	return tei.NewScorer(tei.Config{
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
		APIKey:  settings.APIKey,
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

func ping(ctx context.Context, svc pinger) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	err := svc.Ping(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("no response within %s", pingTimeout)
	}
	return err
}
