package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"qanerd/internal/agent"
	"qanerd/internal/config"
	"qanerd/internal/embedding"
	"qanerd/internal/logging"
	"qanerd/internal/planner"
	"qanerd/internal/retrieval"
	"qanerd/internal/store"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration

	// Loaded in PersistentPreRunE
	cfg *config.Config

	// Logger
	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "qanerd",
	Short: "qanerd - semantic regression planning from manual test history",
	Long: `qanerd remembers what your manual tests verify and, given a description
of a new change, recommends which existing tests to rerun, which risk areas to
focus on and where new tests are needed.

Intents are stored with vector embeddings in .qanerd/intents.db and matched
by semantic similarity.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := resolveWorkspace()
		cfg, err = config.Load(config.DefaultPath(ws))
		if err != nil {
			return err
		}
		if err := logging.Initialize(ws, cfg.LoggingSettings()); err != nil {
			logger.Warn("File logging disabled", zap.Error(err))
		}
		logging.Boot("qanerd %s starting in %s", cmd.Name(), ws)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(intentsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reembedCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveWorkspace returns the --workspace flag or the working directory.
func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// currentConfig returns the loaded config, loading it when a command runs
// without the root pre-run (tests).
func currentConfig() (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := config.Load(config.DefaultPath(resolveWorkspace()))
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

// commandContext returns a context bounded by --timeout and cancelled on
// SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	d := timeout
	if d <= 0 {
		d = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return sigCtx, func() {
		stop()
		cancel()
	}
}

// openStore builds the embedding engine from config and opens the store.
func openStore() (*store.IntentStore, error) {
	c, err := currentConfig()
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	engine, err := embedding.NewEngine(c.EmbeddingEngineConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding engine: %w", err)
	}
	path := config.ResolvePath(resolveWorkspace(), c.Store.DatabasePath)
	logger.Debug("Opening intent store", zap.String("path", path), zap.String("engine", engine.Name()))
	return store.Open(path, engine, store.WithQueryTimeout(c.GetQueryTimeout()))
}

// newAgent wires retriever and planner over st. When override is set the
// threshold replaces the configured one; planner.New validates it either way.
func newAgent(st *store.IntentStore, threshold float64, override bool) (*agent.Agent, error) {
	c, err := currentConfig()
	if err != nil {
		return nil, err
	}
	pcfg := c.PlannerConfig()
	if override {
		pcfg.RelevanceThreshold = threshold
	}
	p, err := planner.New(pcfg)
	if err != nil {
		return nil, err
	}
	return agent.New(retrieval.New(st), p), nil
}

// defaultK returns k, or the configured default when k <= 0.
func defaultK(k int) int {
	if k > 0 {
		return k
	}
	if c, err := currentConfig(); err == nil && c.Planner.DefaultK > 0 {
		return c.Planner.DefaultK
	}
	return retrieval.DefaultK
}

// joinArgs joins command arguments into one string.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
