package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var intentsFormat string

// intentsCmd manages stored intents
var intentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "List, show and delete stored intents",
}

var intentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored intents",
	RunE:  runIntentsList,
}

var intentsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one intent",
	Args:  cobra.ExactArgs(1),
	RunE:  runIntentsShow,
}

var intentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one intent",
	Args:  cobra.ExactArgs(1),
	RunE:  runIntentsDelete,
}

func init() {
	intentsCmd.PersistentFlags().StringVar(&intentsFormat, "format", formatText, "Output format: text or json")
	intentsCmd.AddCommand(intentsListCmd)
	intentsCmd.AddCommand(intentsShowCmd)
	intentsCmd.AddCommand(intentsDeleteCmd)
}

func runIntentsList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := commandContext()
	defer cancel()

	intents, err := st.List(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if intentsFormat == formatJSON {
		return writeJSON(out, intents)
	}
	if len(intents) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No intents stored."))
		return nil
	}
	for _, in := range intents {
		fmt.Fprintf(out, "%s  %s\n", idStyle.Render(in.ID), in.Summary)
	}
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d intents", len(intents))))
	return nil
}

func runIntentsShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := commandContext()
	defer cancel()

	in, err := st.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if intentsFormat == formatJSON {
		return writeJSON(cmd.OutOrStdout(), in)
	}
	writeIntent(cmd.OutOrStdout(), in)
	return nil
}

func runIntentsDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if err := st.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", args[0])
	return nil
}
