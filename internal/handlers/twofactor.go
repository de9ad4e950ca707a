package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kestrelworks/beacon/internal/auth"
	"github.com/kestrelworks/beacon/internal/models"
	"github.com/kestrelworks/beacon/internal/services"
	"github.com/kestrelworks/beacon/internal/session"
	pkghttp "github.com/kestrelworks/beacon/pkg/http"
)

// TwoFactorServiceInterface defines the interface for 2FA business logic
type TwoFactorServiceInterface interface {
	GenerateSecret(ctx context.Context, userID int64) (*services.TwoFactorSetup, error)
	VerifyAndEnable(ctx context.Context, userID int64, code string) ([]string, error)
	VerifyCode(ctx context.Context, userID int64, code string) (bool, error)
	Disable(ctx context.Context, userID int64) error
	IsEnabled(ctx context.Context, userID int64) (bool, error)
}

// TwoFactorHandler handles TOTP enrollment, login verification, and disable.
type TwoFactorHandler struct {
	service  TwoFactorServiceInterface
	sessions *session.Manager
	userRepo auth.UserRepository
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(service TwoFactorServiceInterface, sessions *session.Manager, userRepo auth.UserRepository) *TwoFactorHandler {
	return &TwoFactorHandler{
		service:  service,
		sessions: sessions,
		userRepo: userRepo,
	}
}

// TwoFactorCodeRequest carries a TOTP or backup code
type TwoFactorCodeRequest struct {
	Code string `json:"code" validate:"required,min=6,max=16"`
}

// TwoFactorStatusResponse reports whether 2FA is enabled for the user
type TwoFactorStatusResponse struct {
	Enabled bool `json:"enabled"`
}

// TwoFactorSetupResponse carries the enrollment payload
type TwoFactorSetupResponse struct {
	Secret    string `json:"secret"`
	QRCodeURL string `json:"qrCodeUrl"`
}

// TwoFactorEnableResponse returns the one-time backup codes
type TwoFactorEnableResponse struct {
	Success     bool     `json:"success"`
	BackupCodes []string `json:"backupCodes"`
}

// Status returns whether the authenticated user has 2FA enabled
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	sc := auth.GetSessionFromContext(r)
	if sc == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	enabled, err := h.service.IsEnabled(r.Context(), sc.Session.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TwoFactorStatusResponse{Enabled: enabled})
}

// Setup generates a pending TOTP secret and returns the enrollment payload
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	sc := auth.GetSessionFromContext(r)
	if sc == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	setup, err := h.service.GenerateSecret(r.Context(), sc.Session.UserID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "Unauthorized")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TwoFactorSetupResponse{
		Secret:    setup.Secret,
		QRCodeURL: setup.QRCodeURL,
	})
}

// Enable confirms the pending secret with a first code and activates 2FA.
// The backup codes in the response are shown exactly once.
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	sc := auth.GetSessionFromContext(r)
	if sc == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	backupCodes, err := h.service.VerifyAndEnable(r.Context(), sc.Session.UserID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidTwoFactorCode):
			pkghttp.WriteBadRequest(w, "Invalid verification code")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TwoFactorEnableResponse{
		Success:     true,
		BackupCodes: backupCodes,
	})
}

// Disable turns 2FA off. A valid current code is required so a hijacked
// session cannot silently weaken the account.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	sc := auth.GetSessionFromContext(r)
	if sc == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ok, err := h.service.VerifyCode(r.Context(), sc.Session.UserID, req.Code)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}
	if !ok {
		pkghttp.WriteBadRequest(w, "Invalid verification code")
		return
	}

	if err := h.service.Disable(r.Context(), sc.Session.UserID); err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Verify completes a pending two-factor login. It is mounted outside the
// session guard because the session it operates on is not yet fully
// authenticated; the cookie is read directly instead.
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token, sess, err := h.pendingSession(r)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTwoFactorNotPending):
			pkghttp.WriteBadRequest(w, "No pending 2FA verification")
		default:
			pkghttp.WriteUnauthorized(w, "Unauthorized")
		}
		return
	}

	var req TwoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	valid, err := h.service.VerifyCode(r.Context(), sess.UserID, req.Code)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}
	if !valid {
		pkghttp.WriteBadRequest(w, "Invalid verification code")
		return
	}

	if !h.sessions.Promote(token) {
		// Session expired or was promoted concurrently
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	user, err := h.userRepo.GetByID(r.Context(), sess.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{User: NewUserResponse(user)})
}

// pendingSession resolves the session cookie to a session still awaiting
// two-factor verification.
func (h *TwoFactorHandler) pendingSession(r *http.Request) (string, *session.Session, error) {
	token, err := auth.GetSessionCookie(r)
	if err != nil {
		return "", nil, models.ErrUnauthorized
	}

	sess, ok := h.sessions.Get(token)
	if !ok {
		return "", nil, models.ErrUnauthorized
	}
	if !sess.PendingTwoFactor {
		return "", nil, models.ErrTwoFactorNotPending
	}

	return token, sess, nil
}
