package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-session-server/auth"
	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
)

// Envelope wraps every API response, success or failure.
type Envelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Data       any      `json:"data,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// StatusFor maps an error kind to the HTTP status reported to callers.
func StatusFor(kind auth.Kind) int {
	switch kind {
	case "":
		return http.StatusOK
	case auth.KindInvalidCredentials,
		auth.KindAccountInactive,
		auth.KindBadInput,
		auth.KindTokenNotExpired,
		auth.KindTokenExpired,
		auth.KindConflict:
		return http.StatusBadRequest
	case auth.KindWriteError, auth.KindRevokeFailed:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data any, errs ...string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		StatusCode: status,
		Message:    message,
		Data:       data,
		Errors:     errs,
	})
}

// writeError renders a manager failure. Only the caller-safe message and kind
// are exposed; causes of unexpected failures go to the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.KindOf(err)
	status := StatusFor(kind)

	message := auth.ErrInternal.Message
	var authErr *auth.Error
	if apperrors.As(err, &authErr) {
		message = authErr.Message
	}

	if kind == auth.KindInternal || kind == auth.KindTimeout {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Str("kind", string(kind)).Msg("request failed")
	}
	writeEnvelope(w, status, message, nil, string(kind))
}
