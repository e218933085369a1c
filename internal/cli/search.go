package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ForkIt369/ragpipe/internal/service"
)

var (
	searchLimit    int
	searchAlpha    float64
	searchDocument string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid search over indexed chunks",
	Long: `Search indexed chunks with fused vector + keyword ranking.

Alpha balances the two signals: 1.0 is pure vector similarity, 0.0 is
pure keyword matching.

Examples:
  ragpipe search "connection pooling"
  ragpipe search "retry policy" --limit 5 --alpha 0.5
  ragpipe search "setup" --document ab12cd34`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "max results")
	searchCmd.Flags().Float64Var(&searchAlpha, "alpha", -1, "vector/keyword balance in [0,1]")
	searchCmd.Flags().StringVar(&searchDocument, "document", "", "restrict to one document ID")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := getApp(true)
	if err != nil {
		return err
	}

	results, err := a.search.Search(context.Background(), service.SearchOptions{
		Query:      args[0],
		K:          searchLimit,
		Alpha:      searchAlpha,
		DocumentID: searchDocument,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results")
		return nil
	}

	for i, res := range results {
		fmt.Printf("%d. [%.3f] doc=%s chunk=%d", i+1, res.Score, res.DocumentID, res.Chunk.Index)
		if res.Chunk.Metadata.HeadingPath != "" {
			fmt.Printf("  (%s)", res.Chunk.Metadata.HeadingPath)
		}
		fmt.Println()
		fmt.Printf("   %s\n\n", snippet(res.Chunk.Content, 160))
	}
	return nil
}

// snippet returns a single-line preview of content.
func snippet(content string, max int) string {
	s := strings.Join(strings.Fields(content), " ")
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
