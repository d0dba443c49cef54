package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-server/auth"
	"github.com/jrsteele09/go-session-server/internal/config"
	"github.com/jrsteele09/go-session-server/internal/metrics"
	"github.com/jrsteele09/go-session-server/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TokenVerifier checks bearer tokens presented to the API. *token.Issuer
// satisfies it.
type TokenVerifier interface {
	Verify(raw string) (*token.Claims, error)
	Decode(raw string) (*token.Claims, error)
}

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	manager *auth.Manager
	tokens  TokenVerifier
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithLogger replaces the global zerolog logger for request logging.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics shares a metrics set, for example with the sweeper.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func New(cfg config.Config, manager *auth.Manager, tokens TokenVerifier, options ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("[Server New] config is required")
	}
	if manager == nil {
		return nil, fmt.Errorf("[Server New] session manager is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("[Server New] token verifier is required")
	}

	s := &Server{
		env:     cfg.GetEnv(),
		mux:     http.NewServeMux(),
		config:  cfg,
		manager: manager,
		tokens:  tokens,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

// Metrics exposes the collectors the server records into.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	s.logger.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}
