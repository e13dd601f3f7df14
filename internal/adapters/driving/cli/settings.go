package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure AI providers, the vector index and query defaults.

Use subcommands to configure specific settings or run the interactive wizard.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive setup wizard",
	Long:  `Run an interactive wizard to configure all settings step by step.`,
	RunE:  runSettingsWizard,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long:  `Configure the embedding provider used for indexing and retrieval.`,
	RunE:  runSettingsEmbedding,
}

var settingsLLMCmd = &cobra.Command{
	Use:   "llm",
	Short: "Configure LLM provider",
	Long:  `Configure the LLM provider used for answer generation and query refinement.`,
	RunE:  runSettingsLLM,
}

var settingsScoringCmd = &cobra.Command{
	Use:   "scoring",
	Short: "Configure cross-encoder scoring endpoint",
	Long: `Configure the text-embeddings-inference compatible /rerank endpoint used by
the cross_encoder rerank strategy. Leave empty to rerank with "none".`,
	RunE: runSettingsScoring,
}

var settingsVectorCmd = &cobra.Command{
	Use:   "vector",
	Short: "Configure vector index backend",
	RunE:  runSettingsVector,
}

var settingsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Set default query options",
	Long: `Set the defaults used by 'sercha-rag query'. Only the flags given are changed.

Example:
  sercha-rag settings query --n-retrieve 100 --n-select 10 --min-score 0.2 --refine`,
	Args: cobra.NoArgs,
	RunE: runSettingsQuery,
}

func init() {
	defaults := domain.DefaultQueryOptions()
	settingsQueryCmd.Flags().Int("n-retrieve", defaults.NRetrieve, "number of candidate chunks to retrieve")
	settingsQueryCmd.Flags().Int("n-select", defaults.NSelect, "maximum number of chunks kept after reranking")
	settingsQueryCmd.Flags().String("strategy", defaults.Strategy.String(), "rerank strategy: cross_encoder or none")
	settingsQueryCmd.Flags().Float64("min-score", defaults.MinScore, "drop chunks scoring below this value")
	settingsQueryCmd.Flags().Bool("refine", defaults.UseRefinement, "run one query refinement pass")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsWizardCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsLLMCmd)
	settingsCmd.AddCommand(settingsScoringCmd)
	settingsCmd.AddCommand(settingsVectorCmd)
	settingsCmd.AddCommand(settingsQueryCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Embedding]")
	printProvider(cmd, settings.Embedding.Provider, settings.Embedding.Model,
		settings.Embedding.BaseURL, settings.Embedding.APIKey, settings.Embedding.IsConfigured())

	cmd.Println("[LLM]")
	printProvider(cmd, settings.LLM.Provider, settings.LLM.Model,
		settings.LLM.BaseURL, settings.LLM.APIKey, settings.LLM.IsConfigured())

	cmd.Println("[Scoring]")
	if settings.Scoring.IsConfigured() {
		cmd.Printf("  Base URL: %s\n", settings.Scoring.BaseURL)
		if settings.Scoring.Model != "" {
			cmd.Printf("  Model: %s\n", settings.Scoring.Model)
		}
		if settings.Scoring.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Scoring.APIKey))
		}
	} else {
		cmd.Println("  Status: not configured")
	}
	cmd.Println()

	cmd.Println("[Vector Index]")
	cmd.Printf("  Backend: %s\n", settings.Vector.Backend.Description())
	if settings.Vector.Backend == domain.VectorBackendQdrant {
		cmd.Printf("  Host: %s:%d\n", settings.Vector.QdrantHost, settings.Vector.QdrantPort)
		cmd.Printf("  Collection: %s\n", settings.Vector.Collection)
	}
	cmd.Println()

	cmd.Println("[Query Defaults]")
	cmd.Printf("  Retrieve: %d\n", settings.Query.NRetrieve)
	cmd.Printf("  Select: %d\n", settings.Query.NSelect)
	cmd.Printf("  Strategy: %s\n", settings.Query.Strategy.Description())
	cmd.Printf("  Min score: %.2f\n", settings.Query.MinScore)
	cmd.Printf("  Refinement: %t\n", settings.Query.UseRefinement)
	cmd.Println()

	cmd.Println("[Indexing]")
	cmd.Printf("  Rows per block: %d\n", settings.Indexing.RowsPerBlock)
	cmd.Printf("  Batch size: %d\n", settings.Indexing.BatchSize)
	cmd.Printf("  Concurrency: %d\n", settings.Indexing.Concurrency)
	cmd.Println()

	if settings.Tracing.Enabled() {
		cmd.Println("[Tracing]")
		cmd.Printf("  OTLP endpoint: %s\n", settings.Tracing.OTLPEndpoint)
		cmd.Println()
	}

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'sercha-rag settings wizard' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func printProvider(cmd *cobra.Command, provider domain.AIProvider, model, baseURL, apiKey string, configured bool) {
	cmd.Printf("  Provider: %s\n", provider.Description())
	cmd.Printf("  Model: %s\n", model)
	if provider.IsLocal() {
		cmd.Printf("  Base URL: %s\n", baseURL)
	}
	if provider.RequiresAPIKey() {
		if apiKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(apiKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	status := "configured"
	if !configured {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Println()
}

func runSettingsWizard(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	cmd.Println("sercha-rag Settings Wizard")
	cmd.Println("==========================")
	cmd.Println()

	reader := bufio.NewReader(cmd.InOrStdin())

	cmd.Println("Step 1: Embedding Provider")
	cmd.Println("--------------------------")
	if err := configureEmbeddingProvider(cmd, reader); err != nil {
		return err
	}

	cmd.Println("Step 2: LLM Provider")
	cmd.Println("--------------------")
	if err := configureLLMProvider(cmd, reader); err != nil {
		return err
	}

	cmd.Println("Step 3: Cross-encoder Scoring")
	cmd.Println("-----------------------------")
	if err := configureScoring(cmd, reader); err != nil {
		return err
	}

	cmd.Println("Step 4: Vector Index")
	cmd.Println("--------------------")
	if err := configureVector(cmd, reader); err != nil {
		return err
	}

	cmd.Println("Configuration Complete!")
	cmd.Println("=======================")
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("All settings are valid and saved.")
	}

	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return configureEmbeddingProvider(cmd, bufio.NewReader(cmd.InOrStdin()))
}

func runSettingsLLM(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return configureLLMProvider(cmd, bufio.NewReader(cmd.InOrStdin()))
}

func runSettingsScoring(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return configureScoring(cmd, bufio.NewReader(cmd.InOrStdin()))
}

func runSettingsVector(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return configureVector(cmd, bufio.NewReader(cmd.InOrStdin()))
}

func runSettingsQuery(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	opts := settings.Query

	flags := cmd.Flags()
	if flags.Changed("n-retrieve") {
		opts.NRetrieve, _ = flags.GetInt("n-retrieve") //nolint:errcheck // flag is registered
	}
	if flags.Changed("n-select") {
		opts.NSelect, _ = flags.GetInt("n-select") //nolint:errcheck // flag is registered
	}
	if flags.Changed("strategy") {
		strategy, _ := flags.GetString("strategy") //nolint:errcheck // flag is registered
		opts.Strategy = domain.RerankStrategy(strategy)
	}
	if flags.Changed("min-score") {
		opts.MinScore, _ = flags.GetFloat64("min-score") //nolint:errcheck // flag is registered
	}
	if flags.Changed("refine") {
		opts.UseRefinement, _ = flags.GetBool("refine") //nolint:errcheck // flag is registered
	}

	if err := settingsService.SetQueryDefaults(opts); err != nil {
		return fmt.Errorf("failed to set query defaults: %w", err)
	}

	cmd.Printf("Query defaults: retrieve %d, select %d, %s, min score %.2f, refinement %t\n",
		opts.NRetrieve, opts.NSelect, opts.Strategy, opts.MinScore, opts.UseRefinement)
	return nil
}

//nolint:dupl // Similar to configureLLMProvider but for embeddings
func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select Embedding Provider")
	providers := domain.AllEmbeddingProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(providers), 1)
	selectedProvider := providers[idx-1]

	defaultModel := domain.DefaultEmbeddingModels()[selectedProvider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	var apiKey string
	if selectedProvider.RequiresAPIKey() {
		cmd.Printf("Enter API key (empty keeps the current or %s): ", selectedProvider.APIKeyEnvVar())
		apiKey = readPassword(cmd.InOrStdin(), reader)
		cmd.Println()
	}

	if err := settingsService.SetEmbeddingProvider(selectedProvider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Embedding provider configured: %s (%s)\n", selectedProvider.Description(), model)
	cmd.Println("Changing the embedding model requires re-indexing existing documents.")
	cmd.Println()
	return nil
}

//nolint:dupl // Similar to configureEmbeddingProvider but for LLM
func configureLLMProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select LLM Provider")
	providers := domain.AllLLMProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(providers), 1)
	selectedProvider := providers[idx-1]

	defaultModel := domain.DefaultLLMModels()[selectedProvider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	var apiKey string
	if selectedProvider.RequiresAPIKey() {
		cmd.Printf("Enter API key (empty keeps the current or %s): ", selectedProvider.APIKeyEnvVar())
		apiKey = readPassword(cmd.InOrStdin(), reader)
		cmd.Println()
	}

	if err := settingsService.SetLLMProvider(selectedProvider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure LLM provider: %w", err)
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateLLMConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("LLM configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("LLM provider configured: %s (%s)\n\n", selectedProvider.Description(), model)
	return nil
}

func configureScoring(cmd *cobra.Command, reader *bufio.Reader) error {
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Printf("Enter rerank endpoint base URL, \"none\" to disable [%s]: ", settings.Scoring.BaseURL)
	baseURL := readLine(reader)
	switch baseURL {
	case "":
		baseURL = settings.Scoring.BaseURL
	case "none":
		baseURL = ""
	}

	settings.Scoring.BaseURL = strings.TrimRight(baseURL, "/")
	if settings.Scoring.BaseURL == "" {
		settings.Query.Strategy = domain.RerankNone
		if err := settingsService.Save(settings); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		cmd.Println("Scoring disabled; queries default to the \"none\" rerank strategy.")
		cmd.Println()
		return nil
	}

	cmd.Print("Enter API key (optional): ")
	if key := readPassword(cmd.InOrStdin(), reader); key != "" {
		settings.Scoring.APIKey = key
	}
	cmd.Println()

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateScoringConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("scoring configuration validation failed: %w", err)
	}
	cmd.Println("OK")
	cmd.Println()
	return nil
}

func configureVector(cmd *cobra.Command, reader *bufio.Reader) error {
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Select Vector Backend")
	backends := domain.AllVectorBackends()
	for i, b := range backends {
		cmd.Printf("  %d. %s\n", i+1, b.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(backends), 1)
	settings.Vector.Backend = backends[idx-1]

	if settings.Vector.Backend == domain.VectorBackendQdrant {
		cmd.Printf("Enter Qdrant host [%s]: ", settings.Vector.QdrantHost)
		if host := readLine(reader); host != "" {
			settings.Vector.QdrantHost = host
		}
		cmd.Printf("Enter Qdrant gRPC port [%d]: ", settings.Vector.QdrantPort)
		if port, err := strconv.Atoi(readLine(reader)); err == nil && port > 0 {
			settings.Vector.QdrantPort = port
		}
		cmd.Printf("Enter collection [%s]: ", settings.Vector.Collection)
		if collection := readLine(reader); collection != "" {
			settings.Vector.Collection = collection
		}
		cmd.Print("Enter API key (optional): ")
		if key := readPassword(cmd.InOrStdin(), reader); key != "" {
			settings.Vector.QdrantAPIKey = key
		}
		cmd.Println()
	}

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	cmd.Printf("Vector backend configured: %s\n\n", settings.Vector.Backend.Description())
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo when in is a terminal, otherwise a plain line.
func readPassword(in io.Reader, reader *bufio.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
