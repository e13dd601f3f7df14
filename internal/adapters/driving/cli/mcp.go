package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/mcp"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

Tools:
  query           answer a question and cite pages or row blocks
  get_reference   fetch a cited range as a standalone PDF or XLSX
  list_documents  list indexed documents

By default the server communicates over stdio. Use --port to serve
streamable HTTP instead.

Tool calls default to n_retrieve=100, n_select=10, min score 0.2 with
refinement enabled. Use --settings-defaults to apply the saved query
defaults instead.

Examples:
  sercha-rag mcp serve
  sercha-rag mcp serve --port 8080

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "sercha-rag": {
        "command": "/path/to/sercha-rag",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpServeCmd.Flags().Bool("settings-defaults", false, "use the saved query defaults for tool calls")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}
	useSettings, err := cmd.Flags().GetBool("settings-defaults")
	if err != nil {
		return fmt.Errorf("getting settings-defaults flag: %w", err)
	}

	if queryService == nil {
		return errors.New("query service not configured. Run 'sercha-rag settings' to configure providers")
	}

	ports := &mcp.Ports{
		Query:     queryService,
		Reference: referenceService,
		Document:  documentService,
	}
	if useSettings {
		ports.Defaults, err = savedQueryDefaults()
		if err != nil {
			return err
		}
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		cmd.PrintErrf("MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}

func savedQueryDefaults() (*domain.QueryOptions, error) {
	if settingsService == nil {
		return nil, errors.New("settings service not configured")
	}
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	opts := settings.Query
	return &opts, nil
}
