package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/watcher"
)

var (
	watchDebounce time.Duration
	watchDelete   bool
	watchAuthor   string
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Index documents dropped into a folder",
	Long: `Indexes every PDF and XLSX file in the folder, then keeps watching it.
New or modified files are re-indexed once writes settle. With --delete,
removing a file also deletes its document.

Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before a changed file is indexed")
	watchCmd.Flags().BoolVar(&watchDelete, "delete", false, "delete documents whose files are removed")
	watchCmd.Flags().StringVar(&watchAuthor, "author", "", "author recorded with indexed documents")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured. Run 'sercha-rag settings' to configure an embedding provider")
	}
	if watchDelete && documentService == nil {
		return errors.New("document service not configured")
	}

	w := watcher.New(indexService, documentService, watcher.Config{
		Dir:            args[0],
		Debounce:       watchDebounce,
		DeleteOnRemove: watchDelete,
		Author:         watchAuthor,
	})

	cmd.PrintErrf("Watching %s (Ctrl+C to stop)\n", args[0])
	return w.Run(cmd.Context())
}
