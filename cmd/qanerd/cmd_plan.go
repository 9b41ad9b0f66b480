package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qanerd/internal/intent"
)

var (
	planK         int
	planThreshold float64
	planFormat    string
)

// planCmd produces a regression plan for a change
var planCmd = &cobra.Command{
	Use:   "plan <change description...>",
	Short: "Recommend tests to rerun and gaps to cover for a change",
	Long: `Retrieves the manual-test intents most similar to the change description
and derives a regression plan:

  - tests to rerun: intents at or above the relevance threshold
  - risk focus:     risk areas of those tests
  - new tests:      features and risks the change mentions that nothing covers

Example:
  qanerd plan "login fails with wrong password"
  qanerd plan --format json -k 5 "checkout button moved to header"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().IntVarP(&planK, "k", "k", 0, "Number of intents to retrieve (default: planner.default_k)")
	planCmd.Flags().Float64Var(&planThreshold, "threshold", -1, "Relevance threshold in [0,1] (default: planner.relevance_threshold)")
	planCmd.Flags().StringVar(&planFormat, "format", formatText, "Output format: text, markdown or json")
}

func runPlan(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	a, err := newAgent(st, planThreshold, cmd.Flags().Changed("threshold"))
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	report, err := a.Run(ctx, intent.ChangeDescription{RawText: joinArgs(args)}, defaultK(planK))
	if err != nil {
		return err
	}
	logger.Debug("Plan produced",
		zap.String("request_id", report.RequestID),
		zap.Strings("rerun", report.Plan.RerunTests),
		zap.Duration("duration", report.Duration))

	return writeReport(cmd.OutOrStdout(), report, planFormat)
}
