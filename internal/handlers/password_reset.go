package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kestrelworks/beacon/internal/models"
	pkghttp "github.com/kestrelworks/beacon/pkg/http"
)

// PasswordResetServiceInterface defines the interface for the reset flow
type PasswordResetServiceInterface interface {
	CreateResetToken(ctx context.Context, email string) (string, error)
	ValidateResetToken(ctx context.Context, token string) (int64, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// PasswordResetHandler handles the forgot-password / reset-password flow.
type PasswordResetHandler struct {
	service PasswordResetServiceInterface
}

// NewPasswordResetHandler creates a new PasswordResetHandler
func NewPasswordResetHandler(service PasswordResetServiceInterface) *PasswordResetHandler {
	return &PasswordResetHandler{service: service}
}

// ForgotPasswordRequest represents the request body for a reset request
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest represents the request body for redeeming a token
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ValidateTokenResponse reports whether a reset link is still usable
type ValidateTokenResponse struct {
	Valid bool `json:"valid"`
}

const forgotPasswordMessage = "If an account with that email exists, a password reset link has been sent."

// ForgotPassword issues a reset token. The response is identical whether or
// not the email matches an account.
func (h *PasswordResetHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := h.service.CreateResetToken(r.Context(), req.Email); err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": forgotPasswordMessage})
}

// ValidateToken is the read-only probe the reset page calls before showing
// the new-password form. It never consumes the token.
func (h *PasswordResetHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	_, err := h.service.ValidateResetToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, models.ErrInvalidResetToken) {
			pkghttp.WriteJSON(w, http.StatusOK, ValidateTokenResponse{Valid: false})
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ValidateTokenResponse{Valid: true})
}

// ResetPassword redeems a token and sets the new password
func (h *PasswordResetHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidResetToken):
			pkghttp.WriteBadRequest(w, "Invalid or expired reset token")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset. Please log in."})
}
