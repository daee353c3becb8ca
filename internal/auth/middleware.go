// Package auth adapts the session store into the request-scoped Actor the
// authorization gate consumes. Credential checks and session issuance live in
// the login service and are not part of this package.
package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/agromart/agromart/internal/shared"
)

// SessionLoader is the subset of shared.SessionManager the middleware needs.
type SessionLoader interface {
	Load(ctx context.Context, r *http.Request) (*shared.Session, error)
}

// Middleware resolves the actor for each request.
type Middleware struct {
	Sessions SessionLoader
	Logger   *slog.Logger
}

// NewMiddleware builds the actor loader.
func NewMiddleware(sessions SessionLoader, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{Sessions: sessions, Logger: logger}
}

// LoadActor attaches the session and, when the session is authenticated, the
// actor to the request context. Anonymous requests pass through untouched so
// the gate can answer with an unauthenticated refusal.
func (m *Middleware) LoadActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil || m.Sessions == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		sess, err := m.Sessions.Load(ctx, r)
		if err != nil {
			m.Logger.Error("failed to load session", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		ctx = shared.ContextWithSession(ctx, sess)
		if actor, ok := sess.Actor(); ok {
			ctx = shared.ContextWithActor(ctx, actor)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
