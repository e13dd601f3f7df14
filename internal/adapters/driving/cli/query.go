package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var (
	queryNRetrieve int
	queryNSelect   int
	queryStrategy  string
	queryMinScore  float64
	queryRefine    bool
	queryJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question about the indexed documents",
	Long: `Retrieves candidate chunks, reranks them, optionally refines the query once,
and generates an answer grounded in the selected chunks. The answer is
followed by a table of the cited pages (pdf) or row blocks (tabular).

Flags not given fall back to the query defaults in settings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	defaults := domain.DefaultQueryOptions()
	queryCmd.Flags().IntVarP(&queryNRetrieve, "n-retrieve", "r", defaults.NRetrieve, "number of candidate chunks to retrieve")
	queryCmd.Flags().IntVarP(&queryNSelect, "n-select", "n", defaults.NSelect, "maximum number of chunks kept after reranking")
	queryCmd.Flags().StringVarP(&queryStrategy, "strategy", "s", defaults.Strategy.String(), "rerank strategy: cross_encoder or none")
	queryCmd.Flags().Float64Var(&queryMinScore, "min-score", defaults.MinScore, "drop chunks scoring below this value")
	queryCmd.Flags().BoolVar(&queryRefine, "refine", defaults.UseRefinement, "rewrite the query and run one more retrieval pass")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured. Run 'sercha-rag settings' to configure providers")
	}

	opts := resolveQueryOptions(cmd)
	if err := opts.Validate(); err != nil {
		return err
	}

	question := strings.Join(args, " ")
	answer, err := queryService.Query(cmd.Context(), question, opts)
	if err != nil {
		cmd.PrintErrln(domain.CouldNotAnswer)
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return outputAnswerJSON(cmd, answer)
	}

	cmd.Println(answer.Text)
	cmd.Println()
	if answer.RefinedQuery != "" {
		cmd.Printf("Refined query: %s\n\n", answer.RefinedQuery)
	}
	cmd.Print(answer.References.Markdown())
	return nil
}

// resolveQueryOptions starts from the saved defaults and applies flags the user set.
func resolveQueryOptions(cmd *cobra.Command) domain.QueryOptions {
	opts := domain.DefaultQueryOptions()
	if settingsService != nil {
		if settings, err := settingsService.Get(); err == nil {
			opts = settings.Query
		}
	}

	flags := cmd.Flags()
	if flags.Changed("n-retrieve") {
		opts.NRetrieve = queryNRetrieve
	}
	if flags.Changed("n-select") {
		opts.NSelect = queryNSelect
	}
	if flags.Changed("strategy") {
		opts.Strategy = domain.RerankStrategy(queryStrategy)
	}
	if flags.Changed("min-score") {
		opts.MinScore = queryMinScore
	}
	if flags.Changed("refine") {
		opts.UseRefinement = queryRefine
	}
	return opts
}

type answerJSON struct {
	Query        string          `json:"query"`
	RefinedQuery string          `json:"refined_query,omitempty"`
	Answer       string          `json:"answer"`
	References   []referenceJSON `json:"references"`
}

type referenceJSON struct {
	DocName  string  `json:"doc_name"`
	PageFrom int     `json:"page_from"`
	PageTo   int     `json:"page_to"`
	Score    float64 `json:"score"`
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.Answer) error {
	out := answerJSON{
		Query:        answer.Query,
		RefinedQuery: answer.RefinedQuery,
		Answer:       answer.Text,
		References:   make([]referenceJSON, len(answer.References)),
	}
	for i, ref := range answer.References {
		out.References[i] = referenceJSON(ref)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
