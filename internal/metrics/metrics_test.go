package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-server/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation(t *testing.T) {
	m := metrics.New()

	m.ObserveOperation("login", "", 10*time.Millisecond)
	m.ObserveOperation("login", "InvalidCredentials", time.Millisecond)
	m.ObserveOperation("login", "InvalidCredentials", time.Millisecond)

	expected := `
# HELP session_server_operations_total Session manager operations by operation and outcome.
# TYPE session_server_operations_total counter
session_server_operations_total{operation="login",outcome="InvalidCredentials"} 2
session_server_operations_total{operation="login",outcome="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "session_server_operations_total"))
}

func TestRecordsSwept(t *testing.T) {
	m := metrics.New()
	m.RecordsSwept(3)
	m.RecordsSwept(0)

	count, err := testutil.GatherAndCount(m.Registry(), "session_server_session_records_swept_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

// TestHandler_Exposition serves request counters in text format
func TestHandler_Exposition(t *testing.T) {
	m := metrics.New()
	m.ObserveRequest(http.MethodPost, "/auth/login", http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `session_server_http_requests_total{method="POST",route="/auth/login",status="200"} 1`)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
