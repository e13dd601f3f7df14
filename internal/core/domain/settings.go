package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or generation.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API or any OpenAI-compatible server.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API (generation only).
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// SupportsEmbeddings returns true if this provider can embed text.
func (p AIProvider) SupportsEmbeddings() bool {
	return p == AIProviderOllama || p == AIProviderOpenAI
}

// APIKeyEnvVar names the environment variable holding this provider's key.
func (p AIProvider) APIKeyEnvVar() string {
	switch p {
	case AIProviderOpenAI:
		return "OPENAI_API_KEY"
	case AIProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.SupportsEmbeddings() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds text generation provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI or Anthropic).
	APIKey string
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// ScoringSettings holds cross-encoder scoring service configuration.
type ScoringSettings struct {
	// BaseURL is the text-embeddings-inference compatible rerank endpoint.
	BaseURL string

	// Model is informational; the server decides which model scores.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string
}

// IsConfigured returns true if a scoring endpoint is set.
func (s ScoringSettings) IsConfigured() bool {
	return s.BaseURL != ""
}

// VectorBackend selects the vector index implementation.
type VectorBackend string

// Available vector backends.
const (
	// VectorBackendSQLite keeps vectors in the local sqlite database.
	VectorBackendSQLite VectorBackend = "sqlite"

	// VectorBackendMemory keeps vectors in process memory only.
	VectorBackendMemory VectorBackend = "memory"

	// VectorBackendQdrant delegates storage to a Qdrant server over gRPC.
	VectorBackendQdrant VectorBackend = "qdrant"
)

// IsValid returns true if the backend is recognised.
func (b VectorBackend) IsValid() bool {
	switch b {
	case VectorBackendSQLite, VectorBackendMemory, VectorBackendQdrant:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (b VectorBackend) String() string {
	return string(b)
}

// Description returns a human-readable description of the backend.
func (b VectorBackend) Description() string {
	switch b {
	case VectorBackendSQLite:
		return "SQLite (local, persistent)"
	case VectorBackendMemory:
		return "Memory (ephemeral)"
	case VectorBackendQdrant:
		return "Qdrant (remote)"
	default:
		return unknownDescription
	}
}

// VectorSettings holds vector index configuration.
type VectorSettings struct {
	// Backend is the vector index implementation.
	Backend VectorBackend

	// QdrantHost is the Qdrant gRPC host.
	QdrantHost string

	// QdrantPort is the Qdrant gRPC port.
	QdrantPort int

	// QdrantAPIKey is sent with every request when set.
	QdrantAPIKey string

	// Collection is the Qdrant collection holding chunk points.
	Collection string
}

// IndexingSettings controls ingestion.
type IndexingSettings struct {
	// RowsPerBlock is the number of data rows per tabular block.
	RowsPerBlock int

	// BatchSize is the number of texts per embedding call.
	BatchSize int

	// Concurrency bounds parallel embedding and scoring calls.
	Concurrency int
}

// TimeoutSettings bounds every external call.
type TimeoutSettings struct {
	Embedding  time.Duration
	Scoring    time.Duration
	Generation time.Duration
}

// RateLimitSettings caps request rates to external services.
// A rate of zero or less means unlimited.
type RateLimitSettings struct {
	EmbeddingRPS  float64
	ScoringRPS    float64
	GenerationRPS float64

	// Burst is the bucket size shared by every limiter (minimum 1).
	Burst int
}

// TracingSettings configures OpenTelemetry export.
type TracingSettings struct {
	// OTLPEndpoint is the collector gRPC endpoint. Empty disables tracing.
	OTLPEndpoint string

	// ServiceName is reported as the resource service name.
	ServiceName string
}

// Enabled returns true if spans should be exported.
func (t TracingSettings) Enabled() bool {
	return t.OTLPEndpoint != ""
}

// AppSettings holds all application settings.
type AppSettings struct {
	// Embedding holds embedding provider settings.
	Embedding EmbeddingSettings

	// LLM holds generation provider settings.
	LLM LLMSettings

	// Scoring holds cross-encoder settings.
	Scoring ScoringSettings

	// Vector holds vector index settings.
	Vector VectorSettings

	// Query holds default query options.
	Query QueryOptions

	// Indexing holds ingestion settings.
	Indexing IndexingSettings

	// Timeouts holds per-service call timeouts.
	Timeouts TimeoutSettings

	// RateLimits caps external request rates.
	RateLimits RateLimitSettings

	// Tracing holds tracing export settings.
	Tracing TracingSettings

	// Pipeline holds the chunk post-processor configuration.
	Pipeline PipelineConfig
}

// DefaultAppSettings returns settings with sensible defaults.
// AI providers default to a local Ollama instance.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider: AIProviderOllama,
			Model:    DefaultEmbeddingModels()[AIProviderOllama],
		},
		LLM: LLMSettings{
			Provider: AIProviderOllama,
			Model:    DefaultLLMModels()[AIProviderOllama],
		},
		Scoring: ScoringSettings{},
		Vector: VectorSettings{
			Backend:    VectorBackendSQLite,
			QdrantHost: "localhost",
			QdrantPort: 6334,
			Collection: "sercha_chunks",
		},
		Query: DefaultQueryOptions(),
		Indexing: IndexingSettings{
			RowsPerBlock: 20,
			BatchSize:    32,
			Concurrency:  4,
		},
		Timeouts: TimeoutSettings{
			Embedding:  60 * time.Second,
			Scoring:    30 * time.Second,
			Generation: 120 * time.Second,
		},
		RateLimits: RateLimitSettings{
			Burst: 1,
		},
		Tracing: TracingSettings{
			ServiceName: "sercha-rag",
		},
		Pipeline: DefaultPipelineConfig(),
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllLLMProviders returns providers that support text generation.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// AllVectorBackends returns all available vector backends.
func AllVectorBackends() []VectorBackend {
	return []VectorBackend{
		VectorBackendSQLite,
		VectorBackendMemory,
		VectorBackendQdrant,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-haiku-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config so new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// DefaultPipelineConfig returns the default pipeline configuration.
// Whitespace is normalised first so chunk sizes count meaningful characters.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Processors: []string{"whitespace", "chunker"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"chunk_size": 1000,
				"overlap":    200,
			},
		},
	}
}
