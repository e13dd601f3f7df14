package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storemem "github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// mockValidator records which validations ran.
type mockValidator struct {
	err     error
	checked []string
}

func (m *mockValidator) ValidateEmbedding(*domain.EmbeddingSettings) error {
	m.checked = append(m.checked, "embedding")
	return m.err
}

func (m *mockValidator) ValidateLLM(*domain.LLMSettings) error {
	m.checked = append(m.checked, "llm")
	return m.err
}

func (m *mockValidator) ValidateScoring(*domain.ScoringSettings) error {
	m.checked = append(m.checked, "scoring")
	return m.err
}

func newSettingsService(env map[string]string) (*SettingsService, *storemem.ConfigStore) {
	store := storemem.NewConfigStore()
	svc := NewSettingsService(store, nil)
	svc.getenv = func(k string) string { return env[k] }
	return svc, store
}

func TestSettingsService_Defaults(t *testing.T) {
	svc, _ := newSettingsService(nil)

	settings, err := svc.Get()
	require.NoError(t, err)

	defaults := domain.DefaultAppSettings()
	assert.Equal(t, defaults.Embedding, settings.Embedding)
	assert.Equal(t, defaults.Query, settings.Query)
	assert.Equal(t, defaults.Vector, settings.Vector)
	assert.Equal(t, defaults.Timeouts, settings.Timeouts)
	assert.Equal(t, defaults.RateLimits, settings.RateLimits)
	assert.Equal(t, defaults.Pipeline, settings.Pipeline)
	assert.False(t, settings.Tracing.Enabled())
}

func TestSettingsService_SaveRoundTrip(t *testing.T) {
	svc, _ := newSettingsService(nil)

	settings := domain.DefaultAppSettings()
	settings.Query = domain.QueryOptions{
		NRetrieve:     40,
		NSelect:       4,
		Strategy:      domain.RerankNone,
		MinScore:      0,
		UseRefinement: true,
	}
	settings.Vector.Backend = domain.VectorBackendQdrant
	settings.Timeouts.Scoring = 5 * time.Second
	settings.RateLimits = domain.RateLimitSettings{EmbeddingRPS: 2.5, Burst: 3}
	settings.Scoring.BaseURL = "http://localhost:8080"
	require.NoError(t, svc.Save(&settings))

	got, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, settings.Query, got.Query)
	assert.Equal(t, domain.VectorBackendQdrant, got.Vector.Backend)
	assert.Equal(t, 5*time.Second, got.Timeouts.Scoring)
	assert.Equal(t, settings.RateLimits, got.RateLimits)
	assert.Equal(t, "http://localhost:8080", got.Scoring.BaseURL)
}

func TestSettingsService_EnvironmentFallbacks(t *testing.T) {
	svc, store := newSettingsService(map[string]string{
		"OPENAI_API_KEY":              "sk-env",
		"SERCHA_SCORING_API_KEY":      "score-env",
		"QDRANT_API_KEY":              "qdrant-env",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
	})
	require.NoError(t, store.Set("embedding.provider", "openai"))

	settings, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, "sk-env", settings.Embedding.APIKey)
	assert.Empty(t, settings.LLM.APIKey, "ollama takes no key")
	assert.Equal(t, "score-env", settings.Scoring.APIKey)
	assert.Equal(t, "qdrant-env", settings.Vector.QdrantAPIKey)
	assert.True(t, settings.Tracing.Enabled())

	// Keys from the environment are never written back.
	require.NoError(t, svc.Save(settings))
	_, stored := store.Get("embedding.api_key")
	assert.False(t, stored)
	_, stored = store.Get("tracing.otlp_endpoint")
	assert.False(t, stored)

	// A key in the file wins over the environment.
	require.NoError(t, store.Set("scoring.api_key", "score-file"))
	settings, err = svc.Get()
	require.NoError(t, err)
	assert.Equal(t, "score-file", settings.Scoring.APIKey)
}

func TestSettingsService_InvalidValuesFallBack(t *testing.T) {
	svc, store := newSettingsService(nil)
	require.NoError(t, store.Set("query.strategy", "bm25"))
	require.NoError(t, store.Set("vector.backend", "faiss"))
	require.NoError(t, store.Set("timeouts.embedding", "soon"))

	settings, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.RerankCrossEncoder, settings.Query.Strategy)
	assert.Equal(t, domain.VectorBackendSQLite, settings.Vector.Backend)
	assert.Equal(t, 60*time.Second, settings.Timeouts.Embedding)
}

func TestSettingsService_SetProviders(t *testing.T) {
	svc, _ := newSettingsService(nil)

	err := svc.SetEmbeddingProvider(domain.AIProviderOpenAI, "", "")
	assert.Error(t, err, "openai needs a key")

	require.NoError(t, svc.SetEmbeddingProvider(domain.AIProviderOpenAI, "", "sk-test"))
	settings, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOpenAI, settings.Embedding.Provider)
	assert.Equal(t, domain.DefaultEmbeddingModels()[domain.AIProviderOpenAI], settings.Embedding.Model)
	assert.Empty(t, settings.Embedding.BaseURL)

	require.NoError(t, svc.SetLLMProvider(domain.AIProviderOllama, "llama3.2", ""))
	settings, err = svc.Get()
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", settings.LLM.Model)
	assert.Equal(t, "http://localhost:11434", settings.LLM.BaseURL)

	assert.Error(t, svc.SetLLMProvider("cohere", "", "key"))
	assert.Error(t, svc.SetEmbeddingProvider(domain.AIProviderAnthropic, "", "key"))
}

func TestSettingsService_SwitchProviderDropsKey(t *testing.T) {
	svc, _ := newSettingsService(map[string]string{"ANTHROPIC_API_KEY": "sk-ant-env"})

	require.NoError(t, svc.SetLLMProvider(domain.AIProviderOpenAI, "", "sk-openai"))

	// The OpenAI key is not carried over; the Anthropic env key is used.
	require.NoError(t, svc.SetLLMProvider(domain.AIProviderAnthropic, "", ""))
	settings, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderAnthropic, settings.LLM.Provider)
	assert.Equal(t, "sk-ant-env", settings.LLM.APIKey)
	assert.Equal(t, domain.DefaultLLMModels()[domain.AIProviderAnthropic], settings.LLM.Model)

	// Same provider keeps its key.
	require.NoError(t, svc.SetLLMProvider(domain.AIProviderAnthropic, "claude-3-5-sonnet-latest", ""))
	settings, err = svc.Get()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-env", settings.LLM.APIKey)
	assert.Equal(t, "claude-3-5-sonnet-latest", settings.LLM.Model)
}

func TestSettingsService_EmbeddingProviderFallsBack(t *testing.T) {
	svc, store := newSettingsService(nil)
	require.NoError(t, store.Set("embedding.provider", "anthropic"))

	settings, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOllama, settings.Embedding.Provider)
}

func TestSettingsService_SetQueryDefaults(t *testing.T) {
	svc, _ := newSettingsService(nil)

	err := svc.SetQueryDefaults(domain.QueryOptions{NRetrieve: 5, NSelect: 10, Strategy: domain.RerankNone})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	opts := domain.ServerQueryOptions()
	require.NoError(t, svc.SetQueryDefaults(opts))
	settings, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, opts, settings.Query)
}

func TestSettingsService_Validate(t *testing.T) {
	svc, store := newSettingsService(nil)

	// Default strategy needs a scoring endpoint.
	assert.ErrorIs(t, svc.Validate(), domain.ErrNotConfigured)

	require.NoError(t, store.Set("scoring.base_url", "http://localhost:8080"))
	assert.NoError(t, svc.Validate())

	require.NoError(t, store.Set("llm.provider", "openai"))
	assert.ErrorIs(t, svc.Validate(), domain.ErrNotConfigured)
}

func TestSettingsService_ValidateWithAI(t *testing.T) {
	validator := &mockValidator{}
	svc := NewSettingsService(storemem.NewConfigStore(), validator)

	require.NoError(t, svc.ValidateEmbeddingConfig())
	require.NoError(t, svc.ValidateLLMConfig())
	require.NoError(t, svc.ValidateScoringConfig())
	assert.Equal(t, []string{"embedding", "llm", "scoring"}, validator.checked)

	validator.err = errors.New("unreachable")
	assert.Error(t, svc.ValidateEmbeddingConfig())

	noValidator, _ := newSettingsService(nil)
	assert.NoError(t, noValidator.ValidateLLMConfig())
}
