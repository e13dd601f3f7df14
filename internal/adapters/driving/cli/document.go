package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

const timeFormat = "2006-01-02 15:04:05"

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage indexed documents",
	Long:  `List, inspect, or delete indexed documents.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-name]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-name]",
	Short: "Delete a document and its index entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
}

func init() {
	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	docs, err := documentService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents indexed.")
		return nil
	}

	cmd.Println("Documents:")
	cmd.Println()
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].Name)
		cmd.Printf("    Type: %s, %d %s, %d chunks\n",
			docs[i].Type, docs[i].Extent, unitName(docs[i].Type), docs[i].ChunkCount)
		cmd.Printf("    Updated: %s\n", docs[i].UpdatedAt.Format(timeFormat))
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.Name)
	cmd.Printf("  Type:     %s\n", doc.Type)
	cmd.Printf("  Extent:   %d %s (%d-%d)\n", doc.Extent, unitName(doc.Type), doc.Type.FirstUnit(), doc.LastUnit())
	cmd.Printf("  Chunks:   %d\n", doc.ChunkCount)
	cmd.Printf("  Size:     %d bytes\n", doc.Size)
	cmd.Printf("  SHA-256:  %s\n", doc.ContentHash)
	if doc.Author != "" {
		cmd.Printf("  Author:   %s\n", doc.Author)
	}
	if doc.Comment != "" {
		cmd.Printf("  Comment:  %s\n", doc.Comment)
	}
	cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format(timeFormat))
	cmd.Printf("  Updated:  %s\n", doc.UpdatedAt.Format(timeFormat))

	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	if err := documentService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Document %s deleted.\n", args[0])
	return nil
}
