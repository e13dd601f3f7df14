// Command sercha-rag indexes PDF and XLSX documents and answers questions
// grounded in them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/observability"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/extractors"
	"github.com/custodia-labs/sercha-rag/internal/logger"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	args := os.Args[1:]
	logger.SetVerbose(slices.Contains(args, "--verbose") || slices.Contains(args, "-v"))
	loadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)

	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer a.close()

	cli.SetServices(a.services)
	if err := cli.Execute(ctx); err != nil {
		return 1
	}
	return 0
}

// loadEnv reads .env from the working directory and then ~/.sercha-rag/.env.
// Variables already set are not overridden; missing files are ignored.
func loadEnv() {
	files := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".sercha-rag", ".env"))
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("loading %s: %v", f, err)
		}
	}
}

// app owns every long-lived resource created at startup.
type app struct {
	services cli.Services
	closers  []func() error
	tracing  *observability.TracerProvider
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{}

	configStore, err := file.NewConfigStore("")
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	a.services.Settings = settingsService

	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	a.tracing, err = observability.InitTracing(ctx, settings.Tracing, version)
	if err != nil {
		logger.Warn("tracing disabled: %v", err)
	}

	prompts, err := file.NewPromptStore("")
	if err != nil {
		return nil, fmt.Errorf("opening prompts: %w", err)
	}

	store, err := sqlite.NewStore("")
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	index, err := ai.CreateVectorIndex(ctx, &settings.Vector, store.VectorIndex())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening vector index: %w", err)
	}
	if index != store.VectorIndex() {
		a.closers = append(a.closers, index.Close)
	}

	docStore := store.DocumentStore()
	extractorRegistry := extractors.NewDefaultRegistry(settings.Indexing.RowsPerBlock)
	locks := services.NewKeyedMutex()

	a.services.Document = services.NewDocumentService(docStore, index, locks)
	a.services.Reference = services.NewReferenceService(docStore, extractorRegistry)

	aiServices, err := ai.Initialise(ctx, settings, prompts)
	if err != nil {
		// Indexing and querying stay unavailable; the commands say so.
		logger.Warn("AI services unavailable: %v", err)
		return a, nil
	}
	a.closers = append(a.closers, func() error {
		aiServices.Close()
		return nil
	})

	processorRegistry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(processorRegistry)
	pipeline, err := processorRegistry.BuildPipeline(settings.Pipeline)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("building chunk pipeline: %w", err)
	}

	a.services.Index = services.NewIndexService(
		extractorRegistry,
		pipeline,
		aiServices.EmbeddingService,
		index,
		docStore,
		locks,
		services.IndexConfig{
			BatchSize:    settings.Indexing.BatchSize,
			Concurrency:  settings.Indexing.Concurrency,
			EmbedTimeout: settings.Timeouts.Embedding,
		},
	)
	a.services.Query = newQueryService(settings, aiServices, index, prompts)

	return a, nil
}

func newQueryService(
	settings *domain.AppSettings,
	aiServices *ai.InitResult,
	index driven.VectorIndex,
	prompts driven.PromptStore,
) *services.QueryService {
	retriever := services.NewRetriever(aiServices.EmbeddingService, index, settings.Timeouts.Embedding)

	var scorer driven.Scorer
	if aiServices.ScoringService != nil {
		scorer = aiServices.ScoringService
	}
	reranker := services.NewReranker(scorer, settings.Timeouts.Scoring, settings.Indexing.Concurrency)

	var (
		generator driven.Generator
		refiner   *services.Refiner
	)
	if aiServices.LLMService != nil {
		generator = aiServices.LLMService
		refiner = services.NewRefiner(aiServices.LLMService, settings.Timeouts.Generation, services.DefaultRefinePassages)
	}
	synthesizer := services.NewSynthesizer(generator, settings.Timeouts.Generation)
	synthesizer.SetPromptStore(prompts)

	return services.NewQueryService(retriever, reranker, refiner, synthesizer)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("closing: %v", err)
		}
	}
	a.closers = nil

	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracing.Shutdown(ctx); err != nil {
			logger.Warn("%v", err)
		}
	}
}
