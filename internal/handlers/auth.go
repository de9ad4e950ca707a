package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kestrelworks/beacon/internal/auth"
	"github.com/kestrelworks/beacon/internal/models"
	"github.com/kestrelworks/beacon/internal/session"
	pkghttp "github.com/kestrelworks/beacon/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.User, bool, error)
}

// AuthHandler handles registration, login, logout, and the current-user probe.
type AuthHandler struct {
	service      AuthServiceInterface
	sessions     *session.Manager
	userRepo     auth.UserRepository
	sessionTTL   time.Duration
	cookieConfig auth.CookieConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	service AuthServiceInterface,
	sessions *session.Manager,
	userRepo auth.UserRepository,
	sessionTTL time.Duration,
	cookieConfig auth.CookieConfig,
) *AuthHandler {
	return &AuthHandler{
		service:      service,
		sessions:     sessions,
		userRepo:     userRepo,
		sessionTTL:   sessionTTL,
		cookieConfig: cookieConfig,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration. There is no
// role field: elevation never comes from a client payload, and unknown JSON
// keys are ignored on decode.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserResponse is the public shape of a user record. The password hash and
// two-factor secret never leave the server.
type UserResponse struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

// LoginResponse represents the response body for login
type LoginResponse struct {
	User              *UserResponse `json:"user,omitempty"`
	TwoFactorRequired bool          `json:"twoFactorRequired"`
}

// NewUserResponse converts a user model to its public representation
func NewUserResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:               user.ID,
		Username:         user.Username,
		Email:            user.Email,
		Role:             user.Role,
		TwoFactorEnabled: user.TwoFactorEnabled,
		CreatedAt:        user.CreatedAt,
	}
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Username or email already in use")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, NewUserResponse(user))
}

// Login handles user login. On success a session cookie is set; when the
// account has 2FA enabled the session starts in a pending state and the
// client must call the 2FA verify endpoint before it is usable.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, twoFactorRequired, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Invalid username or password")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	token, err := h.sessions.Create(user.ID, twoFactorRequired)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	auth.SetSessionCookie(w, token, h.sessionTTL, h.cookieConfig)

	if twoFactorRequired {
		// Withhold the user payload until the code is verified
		pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{TwoFactorRequired: true})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{User: NewUserResponse(user)})
}

// Logout destroys the current session and clears the cookie. Pending
// sessions may also log out, so the cookie is read directly.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, err := auth.GetSessionCookie(r); err == nil {
		h.sessions.Delete(token)
	}

	auth.ClearSessionCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user's public profile
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sc := auth.GetSessionFromContext(r)
	if sc == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	user, err := h.userRepo.GetByID(r.Context(), sc.Session.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "Unauthorized")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, NewUserResponse(user))
}
