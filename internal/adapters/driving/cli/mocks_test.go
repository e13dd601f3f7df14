package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

var errService = errors.New("service unavailable")

var testTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

// mockIndexService records requests and returns a document derived from them.
type mockIndexService struct {
	requests []driving.IndexRequest
	err      error
}

func (m *mockIndexService) Index(_ context.Context, req driving.IndexRequest) (*domain.Document, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	docType := req.Type
	if docType == "" {
		docType, _ = domain.DetectDocumentType(req.Name)
	}
	return &domain.Document{
		Name:       req.Name,
		Type:       docType,
		Author:     req.Author,
		Comment:    req.Comment,
		Extent:     3,
		ChunkCount: 5,
		Size:       int64(len(req.Content)),
	}, nil
}

// mockQueryService returns a canned answer.
type mockQueryService struct {
	answer *domain.Answer
	err    error

	gotText string
	gotOpts domain.QueryOptions
}

func (m *mockQueryService) Query(_ context.Context, text string, opts domain.QueryOptions) (*domain.Answer, error) {
	m.gotText = text
	m.gotOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

// mockReferenceService returns content for known documents only.
type mockReferenceService struct {
	content *domain.ReferenceContent
}

func (m *mockReferenceService) GetReference(_ context.Context, docName string, pageFrom, pageTo int) *domain.ReferenceContent {
	if m.content == nil || m.content.DocName != docName {
		return nil
	}
	ref := *m.content
	ref.PageFrom = pageFrom
	ref.PageTo = pageTo
	return &ref
}

// mockDocumentService is an in-memory document list.
type mockDocumentService struct {
	documents []domain.Document
	deleted   []string
	err       error
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.documents, nil
}

func (m *mockDocumentService) Get(_ context.Context, name string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.documents {
		if m.documents[i].Name == name {
			return &m.documents[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) Delete(_ context.Context, name string) error {
	if m.err != nil {
		return m.err
	}
	for i := range m.documents {
		if m.documents[i].Name == name {
			m.documents = append(m.documents[:i], m.documents[i+1:]...)
			m.deleted = append(m.deleted, name)
			return nil
		}
	}
	return domain.ErrNotFound
}

// mockSettingsService keeps settings in memory.
type mockSettingsService struct {
	settings    domain.AppSettings
	validateErr error
	pingErr     error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultAppSettings()}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.AppSettings) error {
	m.settings = *settings
	return nil
}

func (m *mockSettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if provider.RequiresAPIKey() && apiKey == "" && m.settings.Embedding.APIKey == "" {
		return errors.New("API key required")
	}
	m.settings.Embedding.Provider = provider
	m.settings.Embedding.Model = model
	if apiKey != "" {
		m.settings.Embedding.APIKey = apiKey
	}
	return nil
}

func (m *mockSettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if provider.RequiresAPIKey() && apiKey == "" && m.settings.LLM.APIKey == "" {
		return errors.New("API key required")
	}
	m.settings.LLM.Provider = provider
	m.settings.LLM.Model = model
	if apiKey != "" {
		m.settings.LLM.APIKey = apiKey
	}
	return nil
}

func (m *mockSettingsService) SetQueryDefaults(opts domain.QueryOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	m.settings.Query = opts
	return nil
}

func (m *mockSettingsService) Validate() error { return m.validateErr }

func (m *mockSettingsService) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }

func (m *mockSettingsService) ValidateEmbeddingConfig() error { return m.pingErr }

func (m *mockSettingsService) ValidateLLMConfig() error { return m.pingErr }

func (m *mockSettingsService) ValidateScoringConfig() error { return m.pingErr }

var (
	_ driving.IndexService     = (*mockIndexService)(nil)
	_ driving.QueryService     = (*mockQueryService)(nil)
	_ driving.ReferenceService = (*mockReferenceService)(nil)
	_ driving.DocumentService  = (*mockDocumentService)(nil)
	_ driving.SettingsService  = (*mockSettingsService)(nil)
)

// testServices is the set of mocks installed by setupTestServices.
type testServices struct {
	index     *mockIndexService
	query     *mockQueryService
	reference *mockReferenceService
	document  *mockDocumentService
	settings  *mockSettingsService
}

// setupTestServices installs fresh mocks and returns them with a restore func.
func setupTestServices() (*testServices, func()) {
	old := Services{
		Index:     indexService,
		Query:     queryService,
		Reference: referenceService,
		Document:  documentService,
		Settings:  settingsService,
	}

	ts := &testServices{
		index: &mockIndexService{},
		query: &mockQueryService{answer: &domain.Answer{
			Query: "revenue",
			Text:  "Revenue grew under the warranty program.",
			References: domain.ReferenceTable{
				{DocName: "spec.pdf", PageFrom: 2, PageTo: 3, Score: 0.91},
			},
		}},
		reference: &mockReferenceService{content: &domain.ReferenceContent{
			DocName:   "spec.pdf",
			MediaType: domain.MediaTypePDF,
			Content:   []byte("%PDF-1.7"),
		}},
		document: &mockDocumentService{documents: []domain.Document{
			{
				Name:        "spec.pdf",
				Type:        domain.DocumentTypePDF,
				Author:      "ops",
				Extent:      3,
				ChunkCount:  4,
				Size:        2048,
				ContentHash: "abc123",
				CreatedAt:   testTime,
				UpdatedAt:   testTime,
			},
			{
				Name:       "table.xlsx",
				Type:       domain.DocumentTypeTabular,
				Extent:     2,
				ChunkCount: 2,
				UpdatedAt:  testTime,
			},
		}},
		settings: newMockSettingsService(),
	}

	SetServices(Services{
		Index:     ts.index,
		Query:     ts.query,
		Reference: ts.reference,
		Document:  ts.document,
		Settings:  ts.settings,
	})

	return ts, func() { SetServices(old) }
}

// resetFlags restores every flag to its default so tests do not leak state.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue) //nolint:errcheck // defaults always parse
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and optional stdin, returning combined output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), stdin, args...)
}

func executeContext(t *testing.T, ctx context.Context, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	})

	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}
