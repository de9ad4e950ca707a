package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/beacon/internal/models"
	pkghttp "github.com/kestrelworks/beacon/pkg/http"
)

// ContactRepositoryInterface defines the persistence surface for contact messages
type ContactRepositoryInterface interface {
	Create(ctx context.Context, msg *models.ContactMessage) (*models.ContactMessage, error)
	List(ctx context.Context, limit, offset int) ([]*models.ContactMessage, error)
}

// ContactHandler handles contact-form intake and the admin message listing.
type ContactHandler struct {
	repo ContactRepositoryInterface
}

// NewContactHandler creates a new ContactHandler
func NewContactHandler(repo ContactRepositoryInterface) *ContactHandler {
	return &ContactHandler{repo: repo}
}

// ContactRequest represents the contact form payload
type ContactRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required,min=1,max=200"`
	Body    string `json:"body" validate:"required,min=1,max=5000"`
}

// ContactMessageResponse is the admin-facing shape of a stored message
type ContactMessageResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Submit stores a contact-form message
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	msg := &models.ContactMessage{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Subject: strings.TrimSpace(req.Subject),
		Body:    req.Body,
	}

	if _, err := h.repo.Create(r.Context(), msg); err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, map[string]string{"message": "Thanks for reaching out. We'll get back to you soon."})
}

// List returns stored contact messages, newest first. Admin only.
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 50)

	messages, err := h.repo.List(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	resp := make([]*ContactMessageResponse, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, &ContactMessageResponse{
			ID:        msg.ID,
			Name:      msg.Name,
			Email:     msg.Email,
			Subject:   msg.Subject,
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
