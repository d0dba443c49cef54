package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-server/auth"
)

const maxBodyBytes = 1 << 20

// Operation names recorded in metrics.
const (
	opRegister     = "register"
	opLogin        = "login"
	opRefreshToken = "refresh_token"
	opHealthCheck  = "health_check"
	opRevoke       = "revoke"
)

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshTokenRequest is the optional body of refresh-token. The header
// bearer token is used when AccessToken is empty.
type RefreshTokenRequest struct {
	AccessToken string `json:"accessToken"`
}

// RegisterHandler creates an account. It does not log the caller in.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CredentialsRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeEnvelope(w, http.StatusBadRequest, "invalid request body", nil, string(auth.KindBadInput))
			return
		}

		start := time.Now()
		result, err := s.manager.Register(r.Context(), req.Email, req.Password)
		s.observe(opRegister, err, start)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeEnvelope(w, http.StatusCreated, "registered", result)
	}
}

// LoginHandler verifies credentials and hands out a token pair.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CredentialsRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeEnvelope(w, http.StatusBadRequest, "invalid request body", nil, string(auth.KindBadInput))
			return
		}

		start := time.Now()
		result, err := s.manager.Login(r.Context(), req.Email, req.Password)
		s.observe(opLogin, err, start)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeEnvelope(w, http.StatusOK, "logged in", result)
	}
}

// RefreshTokenHandler swaps an expired access token for a new one. A token
// sent as a bearer header must carry a valid signature; its expiry is
// expected to have passed.
func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshTokenRequest
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeEnvelope(w, http.StatusBadRequest, "invalid request body", nil, string(auth.KindBadInput))
			return
		}

		if req.AccessToken == "" {
			if raw, ok := bearerToken(r); ok {
				if _, err := s.tokens.Decode(raw); err != nil {
					writeEnvelope(w, http.StatusUnauthorized, "invalid token", nil)
					return
				}
				req.AccessToken = raw
			}
		}

		start := time.Now()
		result, err := s.manager.RefreshToken(r.Context(), req.AccessToken)
		s.observe(opRefreshToken, err, start)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeEnvelope(w, http.StatusOK, "token refreshed", result)
	}
}

// HealthCheckHandler reports whether the caller's latest session is live.
func (s *Server) HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeEnvelope(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}

		start := time.Now()
		err := s.manager.HealthCheck(r.Context(), claims.SubjectID)
		s.observe(opHealthCheck, err, start)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeEnvelope(w, http.StatusOK, "session is active", nil)
	}
}

// RevokeHandler deletes the caller's latest session.
func (s *Server) RevokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeEnvelope(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}

		start := time.Now()
		err := s.manager.Revoke(r.Context(), claims.SubjectID)
		s.observe(opRevoke, err, start)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeEnvelope(w, http.StatusOK, "session revoked", nil)
	}
}

// HealthzHandler is the process liveness probe.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, "ok", map[string]string{"app": s.config.GetAppName()})
	}
}

func (s *Server) observe(operation string, err error, start time.Time) {
	s.metrics.ObserveOperation(operation, string(auth.KindOf(err)), time.Since(start))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
