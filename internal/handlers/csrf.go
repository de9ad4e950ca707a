package handlers

import (
	"net/http"
	"time"

	"github.com/kestrelworks/beacon/internal/auth"
	pkghttp "github.com/kestrelworks/beacon/pkg/http"
)

// CSRFHandler hands the double-submit token to clients that cannot read the
// cookie before their first mutating request (fresh page loads).
type CSRFHandler struct {
	tokenTTL     time.Duration
	cookieConfig auth.CookieConfig
}

// NewCSRFHandler creates a new CSRFHandler
func NewCSRFHandler(tokenTTL time.Duration, cookieConfig auth.CookieConfig) *CSRFHandler {
	return &CSRFHandler{tokenTTL: tokenTTL, cookieConfig: cookieConfig}
}

// CSRFTokenResponse carries the token the client must echo in the
// x-csrf-token header.
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// Token returns the current CSRF token, minting and setting the cookie when
// the request does not carry one yet.
func (h *CSRFHandler) Token(w http.ResponseWriter, r *http.Request) {
	token, err := auth.GetCSRFTokenCookie(r)
	if err != nil || token == "" {
		token, err = auth.GenerateCSRFToken()
		if err != nil {
			pkghttp.WriteInternalError(w)
			return
		}
		auth.SetCSRFTokenCookie(w, token, h.tokenTTL, h.cookieConfig)
	}

	pkghttp.WriteJSON(w, http.StatusOK, CSRFTokenResponse{CSRFToken: token})
}
