package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var referenceOutput string

var referenceCmd = &cobra.Command{
	Use:   "reference [doc-name] [from] [to]",
	Short: "Extract a cited page or row block range",
	Long: `Writes the inclusive range of a document as a standalone file: a PDF of
the cited pages (1-based) or an XLSX of the cited row blocks (0-based).
When [to] is omitted the range is a single page or block.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runReference,
}

func init() {
	referenceCmd.Flags().StringVarP(&referenceOutput, "output", "o", "", "output file (default: <name>_<from>-<to>.<ext>)")
	rootCmd.AddCommand(referenceCmd)
}

func runReference(cmd *cobra.Command, args []string) error {
	if referenceService == nil {
		return errors.New("reference service not configured")
	}

	docName := args[0]
	from, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid page %q: %w", args[1], err)
	}
	to := from
	if len(args) == 3 {
		if to, err = strconv.Atoi(args[2]); err != nil {
			return fmt.Errorf("invalid page %q: %w", args[2], err)
		}
	}

	ref := referenceService.GetReference(cmd.Context(), docName, from, to)
	if ref == nil {
		return fmt.Errorf("no preview available for %s %d-%d", docName, from, to)
	}

	path := referenceOutput
	if path == "" {
		path = referenceFileName(ref)
	}
	if err := os.WriteFile(path, ref.Content, 0o600); err != nil {
		return fmt.Errorf("failed to write reference: %w", err)
	}

	cmd.Printf("Wrote %s (%s, %d bytes)\n", path, ref.MediaType, len(ref.Content))
	return nil
}

// referenceFileName derives report_2-3.pdf from report.pdf and its range.
func referenceFileName(ref *domain.ReferenceContent) string {
	base := filepath.Base(ref.DocName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	ext := ".pdf"
	if ref.MediaType == domain.MediaTypeXLSX {
		ext = ".xlsx"
	}
	return fmt.Sprintf("%s_%d-%d%s", stem, ref.PageFrom, ref.PageTo, ext)
}
