package driven

import "github.com/custodia-labs/sercha-rag/internal/core/domain"

// AIConfigValidator validates AI provider configurations by testing
// connectivity to the underlying services.
type AIConfigValidator interface {
	// ValidateEmbedding pings the embedding provider.
	ValidateEmbedding(config *domain.EmbeddingSettings) error

	// ValidateLLM pings the generation provider.
	ValidateLLM(config *domain.LLMSettings) error

	// ValidateScoring pings the cross-encoder endpoint.
	// Returns nil if scoring is not configured.
	ValidateScoring(config *domain.ScoringSettings) error
}
