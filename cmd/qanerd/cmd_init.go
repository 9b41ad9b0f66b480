package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qanerd/internal/config"
	"qanerd/internal/ingest"
)

// initCmd initializes qanerd in the current workspace
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize qanerd in the current workspace",
	Long: `Creates the .qanerd/ directory with a default config.yaml, writes a
sample manual-test catalog to manual-tests/catalog.yaml and ingests it.

Existing files are left untouched.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ws := resolveWorkspace()

	cfgPath := config.DefaultPath(ws)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.DefaultConfig().Save(cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Wrote %s\n", cfgPath)
	} else {
		fmt.Fprintf(out, "• Keeping existing %s\n", cfgPath)
	}

	c, err := currentConfig()
	if err != nil {
		return err
	}

	catalogDir := filepath.Join(ws, "manual-tests")
	if len(c.Ingest.Paths) > 0 {
		catalogDir = config.ResolvePath(ws, c.Ingest.Paths[0])
	}
	catalogPath := filepath.Join(catalogDir, "catalog.yaml")
	if _, err := os.Stat(catalogPath); os.IsNotExist(err) {
		if err := ingest.SaveCatalog(catalogPath, ingest.SampleCatalog()); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Wrote sample catalog %s\n", catalogPath)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := commandContext()
	defer cancel()

	intents, err := ingest.NewLoader(c.Ingest.Parallelism).Load(ctx, catalogPath)
	if err != nil {
		return err
	}
	n, err := st.UpsertBatch(ctx, intents)
	if err != nil {
		return err
	}
	logger.Info("Workspace initialized", zap.String("workspace", ws), zap.Int("intents", n))
	fmt.Fprintf(out, "✓ Ingested %d intents into %s\n", n, config.ResolvePath(ws, c.Store.DatabasePath))
	return nil
}
