package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kestrelworks/beacon/internal/models"
	pkghttp "github.com/kestrelworks/beacon/pkg/http"
)

// AdminUserRepository is the read surface the admin listing needs
type AdminUserRepository interface {
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// AdminHandler serves the administrative user listing.
type AdminHandler struct {
	userRepo AdminUserRepository
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(userRepo AdminUserRepository) *AdminHandler {
	return &AdminHandler{userRepo: userRepo}
}

// ListUsers returns registered users. Admin only; password hashes and 2FA
// secrets are never included.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 50)

	users, err := h.userRepo.List(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	resp := make([]*UserResponse, 0, len(users))
	for _, user := range users {
		resp = append(resp, NewUserResponse(user))
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// parsePagination reads limit/offset query params with sane bounds
func parsePagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
