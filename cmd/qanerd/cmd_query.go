package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	queryK      int
	queryFormat string
)

// queryCmd searches stored intents by similarity
var queryCmd = &cobra.Command{
	Use:   "query <text...>",
	Short: "Find the stored intents most similar to a text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryK, "k", "k", 0, "Number of results (default: planner.default_k)")
	queryCmd.Flags().StringVar(&queryFormat, "format", formatText, "Output format: text or json")
}

func runQuery(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := commandContext()
	defer cancel()

	results, err := st.Query(ctx, joinArgs(args), defaultK(queryK))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return writeResults(cmd.OutOrStdout(), results, queryFormat)
}
