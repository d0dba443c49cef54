package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	// Session lifecycle
	s.RegisterRouteHandler("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefreshToken, ChainMiddleware(s.RefreshTokenHandler(), s.APIMiddleware()...))

	// Bearer protected
	s.RegisterRouteHandler("GET "+RouteAuthHealthCheck, ChainMiddleware(s.HealthCheckHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteAuthRevoke, ChainMiddleware(s.RevokeHandler(), s.APIMiddleware(s.RequireAuth())...))

	// CORS preflight for every auth route
	s.RegisterRouteHandler("OPTIONS /auth/", ChainMiddleware(notFoundHandler, s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteHealthz, ChainMiddleware(s.HealthzHandler(), s.LoggingMiddleware, s.RecoverMiddleware))
	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusNotFound, "route not found", nil)
}
