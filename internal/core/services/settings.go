package services

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider    = "embedding.provider"
	keyEmbedModel       = "embedding.model"
	keyEmbedBaseURL     = "embedding.base_url"
	keyEmbedAPIKey      = "embedding.api_key"
	keyLLMProvider      = "llm.provider"
	keyLLMModel         = "llm.model"
	keyLLMBaseURL       = "llm.base_url"
	keyLLMAPIKey        = "llm.api_key"
	keyScoringBaseURL   = "scoring.base_url"
	keyScoringModel     = "scoring.model"
	keyScoringAPIKey    = "scoring.api_key"
	keyVectorBackend    = "vector.backend"
	keyQdrantHost       = "vector.qdrant_host"
	keyQdrantPort       = "vector.qdrant_port"
	keyQdrantAPIKey     = "vector.qdrant_api_key"
	keyVectorCollection = "vector.collection"
	keyNRetrieve        = "query.n_retrieve"
	keyNSelect          = "query.n_select"
	keyStrategy         = "query.strategy"
	keyMinScore         = "query.min_score"
	keyUseRefinement    = "query.use_refinement"
	keyRowsPerBlock     = "indexing.rows_per_block"
	keyBatchSize        = "indexing.batch_size"
	keyConcurrency      = "indexing.concurrency"
	keyTimeoutEmbedding = "timeouts.embedding"
	keyTimeoutScoring   = "timeouts.scoring"
	keyTimeoutGenerate  = "timeouts.generation"
	keyEmbeddingRPS     = "ratelimit.embedding_rps"
	keyScoringRPS       = "ratelimit.scoring_rps"
	keyGenerationRPS    = "ratelimit.generation_rps"
	keyRateBurst        = "ratelimit.burst"
	keyOTLPEndpoint     = "tracing.otlp_endpoint"
	keyServiceName      = "tracing.service_name"
	keyProcessors       = "pipeline.processors"
	keyChunkSize        = "pipeline.chunker.chunk_size"
	keyChunkOverlap     = "pipeline.chunker.overlap"
)

// Environment variables consulted when the config file leaves a value empty.
//
//nolint:gosec // G101: These are variable names, not credentials.
const (
	envScoringKey   = "SERCHA_SCORING_API_KEY"
	envQdrantKey    = "QDRANT_API_KEY"
	envOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	getenv      func(string) string
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings. Missing keys take defaults;
// API keys and the tracing endpoint may come from the environment.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	embedProvider := s.getProvider(keyEmbedProvider, defaults.Embedding.Provider)
	if !embedProvider.SupportsEmbeddings() {
		embedProvider = defaults.Embedding.Provider
	}
	llmProvider := s.getProvider(keyLLMProvider, defaults.LLM.Provider)

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider: embedProvider,
			Model:    s.getString(keyEmbedModel, domain.DefaultEmbeddingModels()[embedProvider]),
			BaseURL:  s.configStore.GetString(keyEmbedBaseURL), // No default - empty is valid for cloud providers
			APIKey:   s.apiKey(keyEmbedAPIKey, embedProvider),
		},
		LLM: domain.LLMSettings{
			Provider: llmProvider,
			Model:    s.getString(keyLLMModel, domain.DefaultLLMModels()[llmProvider]),
			BaseURL:  s.configStore.GetString(keyLLMBaseURL),
			APIKey:   s.apiKey(keyLLMAPIKey, llmProvider),
		},
		Scoring: domain.ScoringSettings{
			BaseURL: s.configStore.GetString(keyScoringBaseURL),
			Model:   s.configStore.GetString(keyScoringModel),
			APIKey:  s.getString(keyScoringAPIKey, s.getenv(envScoringKey)),
		},
		Vector: domain.VectorSettings{
			Backend:      s.getBackend(defaults.Vector.Backend),
			QdrantHost:   s.getString(keyQdrantHost, defaults.Vector.QdrantHost),
			QdrantPort:   s.getInt(keyQdrantPort, defaults.Vector.QdrantPort),
			QdrantAPIKey: s.getString(keyQdrantAPIKey, s.getenv(envQdrantKey)),
			Collection:   s.getString(keyVectorCollection, defaults.Vector.Collection),
		},
		Query: domain.QueryOptions{
			NRetrieve:     s.getInt(keyNRetrieve, defaults.Query.NRetrieve),
			NSelect:       s.getInt(keyNSelect, defaults.Query.NSelect),
			Strategy:      s.getStrategy(defaults.Query.Strategy),
			MinScore:      s.getFloat(keyMinScore, defaults.Query.MinScore),
			UseRefinement: s.getBool(keyUseRefinement, defaults.Query.UseRefinement),
		},
		Indexing: domain.IndexingSettings{
			RowsPerBlock: s.getInt(keyRowsPerBlock, defaults.Indexing.RowsPerBlock),
			BatchSize:    s.getInt(keyBatchSize, defaults.Indexing.BatchSize),
			Concurrency:  s.getInt(keyConcurrency, defaults.Indexing.Concurrency),
		},
		Timeouts: domain.TimeoutSettings{
			Embedding:  s.getDuration(keyTimeoutEmbedding, defaults.Timeouts.Embedding),
			Scoring:    s.getDuration(keyTimeoutScoring, defaults.Timeouts.Scoring),
			Generation: s.getDuration(keyTimeoutGenerate, defaults.Timeouts.Generation),
		},
		RateLimits: domain.RateLimitSettings{
			EmbeddingRPS:  s.getFloat(keyEmbeddingRPS, defaults.RateLimits.EmbeddingRPS),
			ScoringRPS:    s.getFloat(keyScoringRPS, defaults.RateLimits.ScoringRPS),
			GenerationRPS: s.getFloat(keyGenerationRPS, defaults.RateLimits.GenerationRPS),
			Burst:         s.getInt(keyRateBurst, defaults.RateLimits.Burst),
		},
		Tracing: domain.TracingSettings{
			OTLPEndpoint: s.getString(keyOTLPEndpoint, s.getenv(envOTLPEndpoint)),
			ServiceName:  s.getString(keyServiceName, defaults.Tracing.ServiceName),
		},
		Pipeline: s.getPipeline(defaults.Pipeline),
	}

	return settings, nil
}

// Save persists application settings. Secrets that are empty or equal to
// their environment variable are not written, so keys supplied through the
// environment never end up in the file.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key   string
		value any
		skip  bool
	}{
		{keyEmbedProvider, settings.Embedding.Provider.String(), false},
		{keyEmbedModel, settings.Embedding.Model, false},
		{keyEmbedBaseURL, settings.Embedding.BaseURL, false},
		{keyEmbedAPIKey, settings.Embedding.APIKey, s.fromEnv(settings.Embedding.APIKey, settings.Embedding.Provider.APIKeyEnvVar())},
		{keyLLMProvider, settings.LLM.Provider.String(), false},
		{keyLLMModel, settings.LLM.Model, false},
		{keyLLMBaseURL, settings.LLM.BaseURL, false},
		{keyLLMAPIKey, settings.LLM.APIKey, s.fromEnv(settings.LLM.APIKey, settings.LLM.Provider.APIKeyEnvVar())},
		{keyScoringBaseURL, settings.Scoring.BaseURL, false},
		{keyScoringModel, settings.Scoring.Model, false},
		{keyScoringAPIKey, settings.Scoring.APIKey, s.fromEnv(settings.Scoring.APIKey, envScoringKey)},
		{keyVectorBackend, settings.Vector.Backend.String(), false},
		{keyQdrantHost, settings.Vector.QdrantHost, false},
		{keyQdrantPort, settings.Vector.QdrantPort, false},
		{keyQdrantAPIKey, settings.Vector.QdrantAPIKey, s.fromEnv(settings.Vector.QdrantAPIKey, envQdrantKey)},
		{keyVectorCollection, settings.Vector.Collection, false},
		{keyNRetrieve, settings.Query.NRetrieve, false},
		{keyNSelect, settings.Query.NSelect, false},
		{keyStrategy, settings.Query.Strategy.String(), false},
		{keyMinScore, settings.Query.MinScore, false},
		{keyUseRefinement, settings.Query.UseRefinement, false},
		{keyRowsPerBlock, settings.Indexing.RowsPerBlock, false},
		{keyBatchSize, settings.Indexing.BatchSize, false},
		{keyConcurrency, settings.Indexing.Concurrency, false},
		{keyTimeoutEmbedding, settings.Timeouts.Embedding.String(), false},
		{keyTimeoutScoring, settings.Timeouts.Scoring.String(), false},
		{keyTimeoutGenerate, settings.Timeouts.Generation.String(), false},
		{keyEmbeddingRPS, settings.RateLimits.EmbeddingRPS, false},
		{keyScoringRPS, settings.RateLimits.ScoringRPS, false},
		{keyGenerationRPS, settings.RateLimits.GenerationRPS, false},
		{keyRateBurst, settings.RateLimits.Burst, false},
		{keyOTLPEndpoint, settings.Tracing.OTLPEndpoint, s.fromEnv(settings.Tracing.OTLPEndpoint, envOTLPEndpoint)},
		{keyServiceName, settings.Tracing.ServiceName, false},
		{keyProcessors, settings.Pipeline.Processors, false},
	}

	for _, v := range values {
		if v.skip {
			continue
		}
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	if chunker := settings.Pipeline.GetProcessorConfig("chunker"); chunker != nil {
		for key, cfgKey := range map[string]string{"chunk_size": keyChunkSize, "overlap": keyChunkOverlap} {
			if v, ok := chunker[key]; ok {
				if err := s.configStore.Set(cfgKey, v); err != nil {
					return fmt.Errorf("save %s: %w", cfgKey, err)
				}
			}
		}
	}

	return nil
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.SupportsEmbeddings() {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	if apiKey == "" {
		apiKey = s.keyFor(provider, settings.Embedding.Provider, settings.Embedding.APIKey)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings.Embedding.Provider = provider
	settings.Embedding.Model = modelOrDefault(model, domain.DefaultEmbeddingModels()[provider])
	settings.Embedding.BaseURL = baseURLFor(provider, settings.Embedding.BaseURL)
	settings.Embedding.APIKey = apiKey

	return s.Save(settings)
}

// SetLLMProvider configures the generation provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() || !slices.Contains(domain.AllLLMProviders(), provider) {
		return fmt.Errorf("invalid LLM provider: %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	if apiKey == "" {
		apiKey = s.keyFor(provider, settings.LLM.Provider, settings.LLM.APIKey)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings.LLM.Provider = provider
	settings.LLM.Model = modelOrDefault(model, domain.DefaultLLMModels()[provider])
	settings.LLM.BaseURL = baseURLFor(provider, settings.LLM.BaseURL)
	settings.LLM.APIKey = apiKey

	return s.Save(settings)
}

// SetQueryDefaults updates the default query options.
func (s *SettingsService) SetQueryDefaults(opts domain.QueryOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	settings.Query = opts
	return s.Save(settings)
}

// Validate checks the current settings are usable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %q", domain.ErrNotConfigured, settings.Embedding.Provider)
	}
	if !settings.LLM.IsConfigured() {
		return fmt.Errorf("%w: LLM provider %q", domain.ErrNotConfigured, settings.LLM.Provider)
	}
	if settings.Query.Strategy.RequiresScorer() && !settings.Scoring.IsConfigured() {
		return fmt.Errorf("%w: rerank strategy %q requires scoring.base_url", domain.ErrNotConfigured, settings.Query.Strategy)
	}
	if !settings.Vector.Backend.IsValid() {
		return fmt.Errorf("%w: vector backend %q", domain.ErrInvalidInput, settings.Vector.Backend)
	}
	return settings.Query.Validate()
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// ValidateScoringConfig validates the scoring endpoint by pinging it.
func (s *SettingsService) ValidateScoringConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateScoring(&settings.Scoring)
}

func modelOrDefault(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}

// baseURLFor keeps a custom endpoint for local providers and clears it for cloud ones.
func baseURLFor(provider domain.AIProvider, current string) string {
	if !provider.IsLocal() {
		return ""
	}
	if current == "" {
		return "http://localhost:11434"
	}
	return current
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// fromEnv reports whether a secret should be left out of the file.
func (s *SettingsService) fromEnv(value, envName string) bool {
	return value == "" || value == s.getenv(envName)
}

func (s *SettingsService) apiKey(key string, provider domain.AIProvider) string {
	if val := s.configStore.GetString(key); val != "" {
		return val
	}
	if env := provider.APIKeyEnvVar(); env != "" {
		return s.getenv(env)
	}
	return ""
}

// keyFor keeps the stored key only while the provider stays the same.
func (s *SettingsService) keyFor(provider, current domain.AIProvider, currentKey string) string {
	if provider == current {
		return currentKey
	}
	if env := provider.APIKeyEnvVar(); env != "" {
		return s.getenv(env)
	}
	return ""
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	provider := domain.AIProvider(s.configStore.GetString(key))
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getBackend(defaultVal domain.VectorBackend) domain.VectorBackend {
	backend := domain.VectorBackend(s.configStore.GetString(keyVectorBackend))
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}

func (s *SettingsService) getStrategy(defaultVal domain.RerankStrategy) domain.RerankStrategy {
	strategy := domain.RerankStrategy(s.configStore.GetString(keyStrategy))
	if !strategy.IsValid() {
		return defaultVal
	}
	return strategy
}

func (s *SettingsService) getPipeline(defaultVal domain.PipelineConfig) domain.PipelineConfig {
	cfg := domain.PipelineConfig{
		Processors:       defaultVal.Processors,
		ProcessorConfigs: map[string]map[string]any{"chunker": {}},
	}
	if procs := s.configStore.GetStringSlice(keyProcessors); len(procs) > 0 {
		cfg.Processors = procs
	}
	chunker := defaultVal.GetProcessorConfig("chunker")
	cfg.ProcessorConfigs["chunker"]["chunk_size"] = s.getInt(keyChunkSize, chunker["chunk_size"].(int))
	overlap := chunker["overlap"].(int)
	if _, exists := s.configStore.Get(keyChunkOverlap); exists {
		overlap = s.configStore.GetInt(keyChunkOverlap)
	}
	cfg.ProcessorConfigs["chunker"]["overlap"] = overlap
	return cfg
}
