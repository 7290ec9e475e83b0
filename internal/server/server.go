// Package server exposes the local HTTP surface: health and metrics reads
// for devtools inspection, plus the WebSocket bridge mount.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zackkatz/freescout-gpt-assistant/internal/bridge"
	"github.com/zackkatz/freescout-gpt-assistant/internal/manager"
)

// New assembles the gin engine. diag is the long-lived diagnostics manager
// serving /health and /metrics; per-tab managers live inside bridge
// sessions.
func New(diag *manager.Manager, ws *bridge.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, diag.HealthCheck(c.Request.Context()))
	})
	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, diag.Metrics())
	})
	r.GET("/ws", gin.WrapH(ws))
	return r
}

// Run starts the server on addr and blocks until ctx is canceled or the
// listener fails.
func Run(ctx context.Context, addr string, engine *gin.Engine) error {
	srv := &http.Server{Addr: addr, Handler: engine}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
