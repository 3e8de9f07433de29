package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sandai/pkbattle/src/domain/shared"
)

type contextKey string

const (
	correlationKey contextKey = "correlation_id"
	subjectKey     contextKey = "subject"
)

func (s *Server) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = generateCorrelationID()
			w.Header().Set("X-Request-Id", reqID)
		}
		ctx := context.WithValue(r.Context(), correlationKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func generateCorrelationID() string {
	return uuid.Must(uuid.NewV4()).String()
}

func correlationIDFromContext(ctx context.Context) string {
	if value, ok := ctx.Value(correlationKey).(string); ok {
		return value
	}
	return ""
}

var errUnauthorized = errors.New("missing or invalid bearer token")

// authMiddleware resolves the caller from an HS256 bearer token. With no
// secret configured every request passes and callers name themselves in
// the body. With a secret, writes require a valid token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.cfg.JWTSecret) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if header == "" {
			if r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			s.writeError(w, http.StatusUnauthorized, errUnauthorized)
			return
		}
		subject, err := s.parseSubject(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, errUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) parseSubject(raw string) (shared.PlayerID, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return s.cfg.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	id := shared.PlayerID(subject)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// requester returns the authenticated caller, falling back to the id the
// request body names when auth is disabled.
func requester(ctx context.Context, fallback string) shared.PlayerID {
	if value, ok := ctx.Value(subjectKey).(shared.PlayerID); ok {
		return value
	}
	return shared.PlayerID(fallback)
}
