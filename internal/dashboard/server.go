// Package dashboard serves the read-only operations view: work orders,
// repair requests, status counts and Prometheus metrics.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/logging"
	"github.com/yazid-hub/GMOA/internal/repair"
	"github.com/yazid-hub/GMOA/internal/workorder"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	DB       *gorm.DB
	Orders   *workorder.Service
	Repairs  *repair.Service
	Workflow config.WorkflowConfig
	Addr     string
	Out      io.Writer
	Log      *zap.Logger
}

func (o StartOpts) check() error {
	if o.DB == nil {
		return fmt.Errorf("dashboard: db is required")
	}
	if o.Orders == nil || o.Repairs == nil {
		return fmt.Errorf("dashboard: work order and repair services are required")
	}
	return nil
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if err := opts.check(); err != nil {
		return err
	}
	if opts.Addr == "" {
		opts.Addr = ":8090"
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard listening on %s\n", opts.Addr)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with every dashboard route registered.
func NewRouter(opts StartOpts) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLog(logging.OrNop(opts.Log)))
	registerRoutes(router, opts)
	return router
}

func requestLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("dashboard request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
