package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/api/types"
	"github.com/killallgit/sensitive-data-api/pkg/config"
)

// Server represents the HTTP server
type Server struct {
	engine             *gin.Engine
	httpServer         *http.Server
	cfg                *config.Config
	log                *zap.Logger
	rateLimiters       *sync.Map
	cleanupInitialized sync.Once
	cleanupStop        chan struct{}
	stopOnce           sync.Once

	// Dependencies for handlers
	dependencies  *types.Dependencies
	authenticator TokenValidator
}

// NewServer creates a new HTTP server from the server section of cfg
func NewServer(cfg *config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	maxHeader := cfg.Server.MaxHeaderBytes
	if maxHeader <= 0 {
		maxHeader = 1 << 20
	}

	return &Server{
		engine:       engine,
		cfg:          cfg,
		log:          log,
		rateLimiters: &sync.Map{},
		cleanupStop:  make(chan struct{}),
		httpServer: &http.Server{
			Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:        engine,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			IdleTimeout:    cfg.Server.ReadTimeout,
			MaxHeaderBytes: maxHeader,
		},
	}
}

// SetDependencies sets all handler dependencies
func (s *Server) SetDependencies(deps *types.Dependencies) {
	s.dependencies = deps
}

// SetAuthenticator guards /api/v1 with bearer token authentication
func (s *Server) SetAuthenticator(v TokenValidator) {
	s.authenticator = v
}

// Engine returns the Gin engine for testing
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Initialize sets up middleware and routes
func (s *Server) Initialize() {
	s.setupMiddleware()
	RegisterRoutes(s.engine, s.dependencies, RouteOptions{
		RateLimiting: s.cfg.RateLimiting,
		Monitoring:   s.cfg.Monitoring,
		Auth:         s.authenticator,
	}, s.rateLimiters, s.cleanupStop, &s.cleanupInitialized)
}

// setupMiddleware configures global middleware
func (s *Server) setupMiddleware() {
	s.engine.Use(RequestLogger(s.log))

	if s.cfg.Security.EnableCORS {
		s.engine.Use(CORS(s.cfg.Security.CORSOrigins...))
	}

	if s.cfg.Server.MaxBodyBytes > 0 {
		s.engine.Use(RequestSizeLimitWithSize(s.cfg.Server.MaxBodyBytes))
	} else {
		s.engine.Use(RequestSizeLimit())
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stop the rate limiter cleanup goroutine
	s.stopOnce.Do(func() { close(s.cleanupStop) })

	return s.httpServer.Shutdown(ctx)
}
