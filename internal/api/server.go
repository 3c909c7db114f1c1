// Package api exposes the generation gateway over HTTP: a native surface
// plus an OpenAI-compatible one, guarded by static bearer keys.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/zcc135820/imagebridge/internal/config"
	"github.com/zcc135820/imagebridge/internal/gateway"
)

// Server owns the gin engine and the HTTP listener.
type Server struct {
	engine *gin.Engine
	gw     *gateway.Gateway
	cfg    atomic.Pointer[config.Config]
	srv    *http.Server
}

// New builds the server and registers all routes. The gin mode is expected
// to be set by the caller; the config pointer held by the server can be
// swapped at runtime via UpdateConfig.
func New(cfg *config.Config, gw *gateway.Gateway) *Server {
	s := &Server{
		engine: gin.New(),
		gw:     gw,
	}
	s.cfg.Store(cfg)

	s.engine.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Health and generated files stay reachable without a key.
	s.engine.GET("/health", s.handleHealth)
	s.engine.Static("/images/files", s.gw.Gallery().Dir())

	authed := s.engine.Group("/", s.authMiddleware())
	authed.POST("/generate", s.handleGenerate)
	authed.GET("/images", s.handleListImages)
	authed.GET("/options", s.handleOptions)
	authed.GET("/session", s.handleSessionInfo)
	authed.POST("/session", s.handleSessionUpdate)
	authed.POST("/session/refresh", s.handleSessionRefresh)

	v1 := s.engine.Group("/v1", s.authMiddleware())
	v1.GET("/models", s.handleModels)
	v1.POST("/images/generations", s.handleImageGenerations)
}

// UpdateConfig swaps the active configuration; the auth middleware picks up
// new api-keys on the next request.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.cfg.Store(cfg)
	log.Info("api: configuration reloaded")
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the listener and blocks until ctx is cancelled, then shuts the
// server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.cfg.Load()
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("api: listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
