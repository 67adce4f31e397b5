package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed corpus",
	Long: `Retrieves the most relevant chunks for the question and hands
them to the configured generation model. Requires generation to be enabled
in the config.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&queryK, "limit", "n", 10, "context chunks to retrieve")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	answer, err := a.retrieval.Answer(ctx, args[0], opts)
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	cmd.Println(answer.Text)
	cmd.Printf("\n(%d context chunks, generation took %s)\n",
		len(answer.Context), answer.GenerationLatency.Round(time.Millisecond))
	return nil
}
