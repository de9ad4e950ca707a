package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/kestrelworks/beacon/internal/models"
	"github.com/kestrelworks/beacon/internal/session"
	pkghttp "github.com/kestrelworks/beacon/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing the active session in context
	SessionContextKey contextKey = "session"
)

// SessionContext carries the resolved session plus its token so handlers
// can destroy or promote it.
type SessionContext struct {
	Token   string
	Session *session.Session
}

// UserRepository is the read surface the role guard needs.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// RequireAuth validates the session cookie and injects the session into
// context. Sessions still awaiting two-factor verification are rejected;
// only /api/auth/2fa/verify accepts those, and it reads the cookie itself.
func RequireAuth(sessions *session.Manager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := GetSessionCookie(r)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Unauthorized")
				return
			}

			sess, ok := sessions.Get(token)
			if !ok || sess.PendingTwoFactor {
				pkghttp.WriteUnauthorized(w, "Unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, &SessionContext{Token: token, Session: sess})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin enforces the admin role. The role is read from the database
// on every request so demotions take effect without waiting for session
// expiry. Must be mounted after RequireAuth.
func RequireAdmin(userRepo UserRepository) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := authorizeAdmin(r, userRepo); err != nil {
				switch {
				case errors.Is(err, models.ErrUnauthorized):
					pkghttp.WriteUnauthorized(w, "Unauthorized")
				case errors.Is(err, models.ErrForbidden):
					pkghttp.WriteForbidden(w, "Forbidden")
				default:
					pkghttp.WriteInternalError(w)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// authorizeAdmin resolves the session user and checks the admin role.
func authorizeAdmin(r *http.Request, userRepo UserRepository) error {
	sc := GetSessionFromContext(r)
	if sc == nil {
		return models.ErrUnauthorized
	}

	user, err := userRepo.GetByID(r.Context(), sc.Session.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		return err
	}

	if !user.IsAdmin() {
		return models.ErrForbidden
	}

	return nil
}

// GetSessionFromContext extracts the active session from request context
func GetSessionFromContext(r *http.Request) *SessionContext {
	sc, ok := r.Context().Value(SessionContextKey).(*SessionContext)
	if !ok {
		return nil
	}
	return sc
}
