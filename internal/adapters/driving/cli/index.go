package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

var (
	indexType    string
	indexName    string
	indexAuthor  string
	indexComment string
)

var indexCmd = &cobra.Command{
	Use:   "index [file...]",
	Short: "Index PDF or XLSX documents",
	Long: `Parses, embeds and indexes each file. Re-indexing a file with the same
name atomically replaces its previous chunks.

The document type is detected from the file extension (.pdf, .xlsx)
unless --type is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexType, "type", "t", "", "document type: pdf or tabular (default: from extension)")
	indexCmd.Flags().StringVar(&indexName, "name", "", "document name (default: file name, single file only)")
	indexCmd.Flags().StringVar(&indexAuthor, "author", "", "author recorded with the document")
	indexCmd.Flags().StringVar(&indexComment, "comment", "", "comment recorded with the document")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured. Run 'sercha-rag settings' to configure an embedding provider")
	}
	if indexName != "" && len(args) > 1 {
		return errors.New("--name can only be used with a single file")
	}

	docType := domain.DocumentType(indexType)
	if indexType != "" && !docType.IsValid() {
		return fmt.Errorf("unknown document type %q (want pdf or tabular)", indexType)
	}

	var failed int
	for _, path := range args {
		name := indexName
		if name == "" {
			name = filepath.Base(path)
		}

		if err := indexFile(cmd, path, name, docType); err != nil {
			cmd.PrintErrf("Failed to index %s: %v\n", path, err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed to index", failed, len(args))
	}
	return nil
}

func indexFile(cmd *cobra.Command, path, name string, docType domain.DocumentType) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	doc, err := indexService.Index(cmd.Context(), driving.IndexRequest{
		Name:    name,
		Content: content,
		Type:    docType,
		Author:  indexAuthor,
		Comment: indexComment,
	})
	if err != nil {
		return err
	}

	cmd.Printf("Indexed %s (%s): %d %s, %d chunks\n",
		doc.Name, doc.Type, doc.Extent, unitName(doc.Type), doc.ChunkCount)
	return nil
}

func unitName(t domain.DocumentType) string {
	if t == domain.DocumentTypeTabular {
		return "row blocks"
	}
	return "pages"
}
