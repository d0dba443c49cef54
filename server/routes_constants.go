package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteAuthRegister     = "/auth/register"
	RouteAuthLogin        = "/auth/login"
	RouteAuthRefreshToken = "/auth/refresh-token"
	RouteAuthHealthCheck  = "/auth/health-check"
	RouteAuthRevoke       = "/auth/revoke"

	// Operational Routes
	RouteHealthz = "/healthz"
	RouteMetrics = "/metrics"
)
