package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kestrelworks/beacon/internal/database"
	"github.com/kestrelworks/beacon/internal/models"
	"github.com/lib/pq"
)

const userColumns = `id, username, email, password_hash, role, reset_token, reset_token_expiry,
	two_factor_secret, two_factor_enabled, backup_codes, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning user rows (single row or rows iteration)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role,
		&user.ResetToken, &user.ResetTokenExpiry,
		&user.TwoFactorSecret, &user.TwoFactorEnabled, pq.Array(&user.BackupCodes),
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

// GetByResetToken looks up a user by pending reset token. Expiry is not
// checked here; callers decide what an expired token means.
func (r *UserRepository) GetByResetToken(ctx context.Context, token string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_token = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, token))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	return scanUserRows(rows)
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = models.RoleUser
	}

	query := `
		INSERT INTO users (username, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.Role,
		user.CreatedAt, user.UpdatedAt,
	))
}

func (r *UserRepository) UpdateRole(ctx context.Context, id int64, role string) error {
	query := `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, role)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetResetToken stores a pending reset token and its expiry, overwriting any
// prior pending token for the user.
func (r *UserRepository) SetResetToken(ctx context.Context, id int64, token string, expiry time.Time) error {
	query := `UPDATE users SET reset_token = $2, reset_token_expiry = $3, updated_at = now() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, token, expiry)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RedeemResetToken sets a new password digest and clears the reset token in a
// single conditional update. Returns false when the token no longer matches
// or has expired, so concurrent redemptions of the same token cannot both
// succeed.
func (r *UserRepository) RedeemResetToken(ctx context.Context, token, passwordHash string) (bool, error) {
	query := `
		UPDATE users
		SET password_hash = $2, reset_token = NULL, reset_token_expiry = NULL, updated_at = now()
		WHERE reset_token = $1 AND reset_token_expiry > now()
	`

	result, err := r.pool.Exec(ctx, query, token, passwordHash)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return result.RowsAffected() > 0, nil
}

// ClearExpiredResetTokens removes stale pending tokens (background sweep).
func (r *UserRepository) ClearExpiredResetTokens(ctx context.Context) (int64, error) {
	query := `
		UPDATE users
		SET reset_token = NULL, reset_token_expiry = NULL, updated_at = now()
		WHERE reset_token IS NOT NULL AND reset_token_expiry <= now()
	`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

// SetTwoFactorSecret stores a pending TOTP secret without enabling 2FA.
// Calling it again before enabling overwrites the pending secret.
func (r *UserRepository) SetTwoFactorSecret(ctx context.Context, id int64, secret string) error {
	query := `UPDATE users SET two_factor_secret = $2, updated_at = now() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, secret)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// EnableTwoFactor flips the enabled flag and stores the hashed backup codes.
// The update only applies while a pending secret exists, so enabling cannot
// race with a concurrent disable.
func (r *UserRepository) EnableTwoFactor(ctx context.Context, id int64, hashedBackupCodes []string) (bool, error) {
	query := `
		UPDATE users
		SET two_factor_enabled = TRUE, backup_codes = $2, updated_at = now()
		WHERE id = $1 AND two_factor_secret IS NOT NULL
	`

	result, err := r.pool.Exec(ctx, query, id, pq.Array(hashedBackupCodes))
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return result.RowsAffected() > 0, nil
}

// DisableTwoFactor clears the enabled flag, secret, and backup codes in one
// update. Idempotent.
func (r *UserRepository) DisableTwoFactor(ctx context.Context, id int64) error {
	query := `
		UPDATE users
		SET two_factor_enabled = FALSE, two_factor_secret = NULL, backup_codes = NULL, updated_at = now()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ReplaceBackupCodes swaps the stored backup-code set with a compare-and-set
// update: the write only applies if the row still holds oldCodes. Returns
// false when another request consumed a code first, which prevents the
// lost-update race between two simultaneous backup-code redemptions.
func (r *UserRepository) ReplaceBackupCodes(ctx context.Context, id int64, oldCodes, newCodes []string) (bool, error) {
	query := `
		UPDATE users
		SET backup_codes = $3, updated_at = now()
		WHERE id = $1 AND backup_codes = $2
	`

	result, err := r.pool.Exec(ctx, query, id, pq.Array(oldCodes), pq.Array(newCodes))
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
