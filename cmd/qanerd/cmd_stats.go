package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statsFormat string

// statsCmd shows store statistics
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show intent store statistics",
	RunE:  runStats,
}

// reembedCmd recomputes embeddings after an engine change
var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Recompute all embeddings with the configured engine",
	Long: `Re-embeds every stored intent summary. Run this after changing the
embedding provider, model or dimensions; queries refuse to mix vectors from
different engines.`,
	RunE: runReembed,
}

func init() {
	statsCmd.Flags().StringVar(&statsFormat, "format", formatText, "Output format: text or json")
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := commandContext()
	defer cancel()

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	if statsFormat == formatJSON {
		return writeJSON(cmd.OutOrStdout(), stats)
	}
	writeStats(cmd.OutOrStdout(), stats)
	return nil
}

func runReembed(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := commandContext()
	defer cancel()

	n, err := st.Reembed(ctx)
	if err != nil {
		return err
	}
	logger.Info("Re-embedded intents", zap.Int("count", n), zap.String("engine", st.Engine().Name()))
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Re-embedded %d intents with %s\n", n, st.Engine().Name())
	return nil
}
