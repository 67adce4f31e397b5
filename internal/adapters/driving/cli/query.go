package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/strata-search/strata/internal/adapters/driven/config/file"
	"github.com/strata-search/strata/internal/core/domain"
)

var (
	queryK          int
	queryMinScore   float64
	queryCategories []string
	queryTags       []string
	queryFrom       string
	queryTo         string
	queryJSON       bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Retrieve chunks similar to a query",
	Long: `Embeds the query text and returns the most similar chunks,
optionally constrained by category, tags and publication date range.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryK, "limit", "n", 10, "maximum number of results")
	queryCmd.Flags().Float64Var(&queryMinScore, "min-score", 0, "minimum similarity score")
	queryCmd.Flags().StringSliceVar(&queryCategories, "category", nil, "restrict to categories")
	queryCmd.Flags().StringSliceVar(&queryTags, "tag", nil, "require at least one of these tags")
	queryCmd.Flags().StringVar(&queryFrom, "from", "", "earliest publication date (YYYY-MM-DD)")
	queryCmd.Flags().StringVar(&queryTo, "to", "", "latest publication date (YYYY-MM-DD)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	applyRetrievalDefaults(cmd, a.cfg)

	opts, err := queryOptions()
	if err != nil {
		return err
	}

	results, err := a.retrieval.Retrieve(ctx, args[0], opts)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, r := range results {
		cmd.Printf("%d. [%.3f] %s (%s, doc %s)\n", i+1, r.Score, snippet(r.Chunk.Content, 120),
			r.Chunk.Type, shortID(r.Chunk.DocumentID))
	}
	return nil
}

// applyRetrievalDefaults overrides flag defaults the user did not set with
// the configured retrieval defaults.
func applyRetrievalDefaults(cmd *cobra.Command, cfg *file.Config) {
	if cfg.Retrieval.K > 0 && !cmd.Flags().Changed("limit") {
		queryK = cfg.Retrieval.K
	}
	// ask has no min-score flag; the configured threshold still applies.
	if f := cmd.Flags().Lookup("min-score"); (f == nil || !f.Changed) && cfg.Retrieval.MinSimilarity > 0 {
		queryMinScore = cfg.Retrieval.MinSimilarity
	}
}

// queryOptions assembles QueryOptions from the command flags.
func queryOptions() (domain.QueryOptions, error) {
	opts := domain.QueryOptions{
		K:             queryK,
		MinSimilarity: queryMinScore,
	}

	pred := &domain.Predicate{
		Categories: queryCategories,
		Tags:       queryTags,
	}
	var err error
	if pred.PublishedFrom, err = parseDateFlag(queryFrom); err != nil {
		return opts, err
	}
	if pred.PublishedTo, err = parseDateFlag(queryTo); err != nil {
		return opts, err
	}
	if !pred.IsEmpty() {
		opts.Predicate = pred
	}
	return opts, nil
}

// parseDateFlag parses a YYYY-MM-DD flag value.
func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// snippet truncates content for terminal display without splitting a rune.
func snippet(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

// shortID abbreviates a document id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
