package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kestrelworks/beacon/internal/auth"
	pkghttp "github.com/kestrelworks/beacon/pkg/http"
)

// safeMethods need no CSRF validation; they only trigger token issuance.
// Kept as an explicit set rather than string comparisons at call sites.
var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// CSRFProtection implements the double-submit-cookie pattern. Every request
// without a csrf-token cookie gets one issued; state-changing requests must
// echo the cookie value in the x-csrf-token header.
func CSRFProtection(tokenTTL time.Duration, cookieConfig auth.CookieConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookieToken, err := auth.GetCSRFTokenCookie(r)
			if err != nil || cookieToken == "" {
				// No cookie yet: mint one. The new token cannot validate the
				// current request, but safe methods don't need it. The request
				// copy of the cookie lets downstream handlers reuse the token
				// instead of issuing a second one.
				freshToken, genErr := auth.GenerateCSRFToken()
				if genErr != nil {
					logger.Error("failed to generate csrf token", slog.Any("error", genErr))
					pkghttp.WriteInternalError(w)
					return
				}
				auth.SetCSRFTokenCookie(w, freshToken, tokenTTL, cookieConfig)
				r.AddCookie(&http.Cookie{Name: auth.CSRFCookieName, Value: freshToken})
				cookieToken = ""
			}

			if safeMethods[r.Method] {
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get(auth.CSRFHeaderName)
			if headerToken == "" || cookieToken == "" || !auth.CSRFTokensEqual(headerToken, cookieToken) {
				logger.Warn("csrf validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				pkghttp.WriteForbidden(w, "CSRF token validation failed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
