package models

import (
	"time"

	"github.com/google/uuid"
)

// ContactMessage is a contact-form submission from the public site.
type ContactMessage struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Subject   string
	Body      string
	CreatedAt time.Time
}
