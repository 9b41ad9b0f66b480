package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qanerd/internal/api"
)

var serveAddr string

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the intent store and planner over HTTP",
	Long: `Starts an HTTP API:

  GET    /healthz
  GET    /v1/intents
  PUT    /v1/intents/:id
  GET    /v1/intents/:id
  DELETE /v1/intents/:id
  POST   /v1/query   {"text": "...", "k": 3}
  POST   /v1/plan    {"change": "...", "k": 3}
  GET    /v1/stats`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr)")
}

// signalContext is cancelled on SIGINT/SIGTERM only.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := currentConfig()
	if err != nil {
		return err
	}
	addr := serveAddr
	if addr == "" {
		addr = c.Server.Addr
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	a, err := newAgent(st, 0, false)
	if err != nil {
		return err
	}

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signalContext()
	defer stop()

	logger.Info("Serving HTTP API", zap.String("addr", addr))
	return api.Serve(ctx, addr, api.NewHandler(st, a))
}
