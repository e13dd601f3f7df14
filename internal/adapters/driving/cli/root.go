// Package cli implements the sercha-rag command line interface.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// version is set at build time via SetVersion.
var version = "dev"

var verbose bool

// Driving ports used by the commands. Nil ports make their commands
// report that the service is not configured.
var (
	indexService     driving.IndexService
	queryService     driving.QueryService
	referenceService driving.ReferenceService
	documentService  driving.DocumentService
	settingsService  driving.SettingsService
)

var rootCmd = &cobra.Command{
	Use:   "sercha-rag",
	Short: "Grounded question answering over your PDFs and spreadsheets",
	Long: `sercha-rag indexes PDF and XLSX documents into a vector index and answers
questions from them, citing the pages or row blocks each answer was drawn from.

Get started:
  sercha-rag settings wizard
  sercha-rag index report.pdf
  sercha-rag query "what drove revenue growth?"`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print pipeline diagnostics to stderr")
}

// Services bundles the driving ports injected by main.
type Services struct {
	Index     driving.IndexService
	Query     driving.QueryService
	Reference driving.ReferenceService
	Document  driving.DocumentService
	Settings  driving.SettingsService
}

// SetServices injects the driving ports.
func SetServices(s Services) {
	indexService = s.Index
	queryService = s.Query
	referenceService = s.Reference
	documentService = s.Document
	settingsService = s.Settings
}

// SetVersion sets the version reported by the version command and MCP server.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command with the given context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
