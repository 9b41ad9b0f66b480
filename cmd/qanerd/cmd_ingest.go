package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qanerd/internal/config"
	"qanerd/internal/ingest"
)

var ingestWatch bool

// ingestCmd loads manual-test intents into the store
var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Ingest manual-test catalogs and markdown files",
	Long: `Loads intents from YAML catalogs (intents: [...]) and from the front matter
of manual-test markdown files, then upserts them into the intent store.

Without arguments the ingest.paths from config are used. With --watch the
command keeps running and re-ingests files as they change.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "Keep watching and re-ingest changed files")
}

func runIngest(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	c, err := currentConfig()
	if err != nil {
		return err
	}
	ws := resolveWorkspace()

	paths := args
	if len(paths) == 0 {
		for _, p := range c.Ingest.Paths {
			paths = append(paths, config.ResolvePath(ws, p))
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("no paths to ingest (pass paths or set ingest.paths)")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := commandContext()
	defer cancel()

	intents, err := ingest.NewLoader(c.Ingest.Parallelism).Load(ctx, paths...)
	if err != nil {
		return err
	}
	res, err := ingest.Ingest(ctx, st, intents)
	if err != nil {
		return err
	}
	logger.Info("Ingest complete", zap.Int("upserted", res.Upserted), zap.Strings("paths", paths))
	fmt.Fprintf(out, "✓ Ingested %d intents\n", res.Upserted)

	if !ingestWatch {
		return nil
	}

	// Watch mode runs until interrupted rather than until --timeout.
	watchCtx, stop := signalContext()
	defer stop()

	w, err := ingest.NewWatcher(st)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			w.Stop()
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}
	w.OnIngest(func(path string, res ingest.Result, err error) {
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", path, err)
			return
		}
		fmt.Fprintf(out, "✓ %s: %d intents\n", path, res.Upserted)
	})
	w.Start(watchCtx)
	fmt.Fprintln(out, mutedStyle.Render("Watching for changes (Ctrl+C to stop)..."))

	<-watchCtx.Done()
	w.Stop()
	return nil
}
