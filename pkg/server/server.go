// Package server exposes the dispatcher over HTTP with gin.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/entrhq/hammer/pkg/config"
	"github.com/entrhq/hammer/pkg/lifecycle"
	"github.com/entrhq/hammer/pkg/logging"
)

//go:embed templates/*.html
var templates embed.FS

// Server is the HTTP boundary in front of a lifecycle.Manager.
type Server struct {
	engine  *gin.Engine
	http    *http.Server
	manager *lifecycle.Manager
	logger  *logging.Logger
	version string
	addr    string

	listener net.Listener
}

// New builds the gin engine and registers every route.
func New(cfg *config.Config, manager *lifecycle.Manager, version string) (*Server, error) {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	tmpl, err := template.ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	logger := logging.NewLogger("server")
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), cors())
	engine.SetHTMLTemplate(tmpl)

	s := &Server{
		engine:  engine,
		manager: manager,
		logger:  logger,
		version: version,
		addr:    cfg.Address(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleIndex)

	api := s.engine.Group("/api")
	api.POST("/playwright", s.handleAction)
	api.GET("/health", s.handleHealth)
	api.GET("/sessions", s.handleSessions)
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listener and serves in the background. Bind errors are
// returned immediately; later serve errors are sent on the returned channel.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.http = &http.Server{Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Infof("Listening on %s", ln.Addr())
	return errCh, nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
