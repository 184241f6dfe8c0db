// Package httpapi serves the read-only HTTP side of the backend: audit
// exports, share links, seal verification, the public seal key and metrics.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/export"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/dmitrijs2005/fieldseal/internal/server/auth"
	"github.com/gin-gonic/gin"
)

type exportSvc interface {
	Export(ctx context.Context, p auth.Principal) ([]export.Record, error)
}

type sealSvc interface {
	VerifyPublic(ctx context.Context, jobID string) (evidence.VerifyResult, error)
	PublicKeyPEM() (algorithm string, pem []byte, err error)
}

type tokenSvc interface {
	Authenticate(token, deviceID string) (auth.Principal, error)
	ResolveShare(ctx context.Context, token string) (*domain.Job, error)
}

type Dependencies struct {
	Exports exportSvc
	Seals   sealSvc
	Tokens  tokenSvc
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  logging.Logger
}

type Server struct {
	address string
	deps    Dependencies
	logger  logging.Logger
	engine  *gin.Engine
}

func NewServer(address string, deps Dependencies) *Server {
	s := &Server{address: address, deps: deps, logger: deps.Logger.With("module", "http_server")}
	s.engine = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/seal-key", s.sealKey)
		v1.GET("/share/:token", s.share)
		v1.GET("/jobs/:id/verify", s.verify)

		authed := v1.Group("", deviceAuth(s.deps.Tokens))
		authed.GET("/export.csv", s.exportCSV)
		authed.GET("/export.json", s.exportJSON)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down within a short grace
// period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
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

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
