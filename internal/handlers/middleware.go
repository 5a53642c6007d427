package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/sand/whitetriangle/backend/internal/entities"
	"github.com/sand/whitetriangle/backend/internal/usecases"
)

type ctxKey int

const (
	userKey ctxKey = iota
	sessionKey
)

func withUser(ctx context.Context, user *entities.User, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, sessionKey, sessionID)
}

// UserFromContext returns the authenticated user, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *entities.User {
	user, _ := ctx.Value(userKey).(*entities.User)
	return user
}

func SessionFromContext(ctx context.Context) string {
	sessionID, _ := ctx.Value(sessionKey).(string)
	return sessionID
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// identify attaches the caller when a valid token is present. Requests without
// a token pass through anonymously; a bad token is rejected.
func (h *HTTPHandler) identify(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next(w, r)
			return
		}

		user, sessionID, err := h.authService.Authenticate(r.Context(), token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(withUser(r.Context(), user, sessionID)))
	}
}

func (h *HTTPHandler) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return h.identify(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			h.writeError(w, r, usecases.ErrUnauthenticated)
			return
		}
		next(w, r)
	})
}

func (h *HTTPHandler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return h.requireUser(func(w http.ResponseWriter, r *http.Request) {
		if !UserFromContext(r.Context()).IsAdmin() {
			h.writeError(w, r, usecases.ErrForbidden)
			return
		}
		next(w, r)
	})
}
