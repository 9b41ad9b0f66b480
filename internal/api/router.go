package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qanerd/internal/logging"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog())

	r.GET("/healthz", h.Health)

	v1 := r.Group("/v1")
	IntentRouter(v1.Group("/intents"), h)
	v1.POST("/query", h.Query)
	v1.POST("/plan", h.Plan)
	v1.GET("/stats", h.Stats)
	return r
}

// IntentRouter registers the intent CRUD routes.
func IntentRouter(rg *gin.RouterGroup, h *Handler) {
	rg.GET("", h.ListIntents)
	rg.PUT("/:id", h.PutIntent)
	rg.GET("/:id", h.GetIntent)
	rg.DELETE("/:id", h.DeleteIntent)
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.APIDebug("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, h *Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.API("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logging.API("Shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}
