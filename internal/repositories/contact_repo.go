package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kestrelworks/beacon/internal/database"
	"github.com/kestrelworks/beacon/internal/models"
)

type ContactRepository struct {
	pool *pgxpool.Pool
}

func NewContactRepository(db *database.DB) *ContactRepository {
	return &ContactRepository{pool: db.Pool}
}

func (r *ContactRepository) Create(ctx context.Context, msg *models.ContactMessage) (*models.ContactMessage, error) {
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()

	query := `
		INSERT INTO contact_messages (id, name, email, subject, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := r.pool.Exec(ctx, query, msg.ID, msg.Name, msg.Email, msg.Subject, msg.Body, msg.CreatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return msg, nil
}

func (r *ContactRepository) List(ctx context.Context, limit, offset int) ([]*models.ContactMessage, error) {
	query := `
		SELECT id, name, email, subject, body, created_at
		FROM contact_messages ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.ContactMessage, 0)

	for rows.Next() {
		var msg models.ContactMessage
		if err := rows.Scan(&msg.ID, &msg.Name, &msg.Email, &msg.Subject, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact message: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return messages, nil
}
