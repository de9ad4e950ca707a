package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/beacon/internal/models"
	"github.com/kestrelworks/beacon/internal/session"
)

func newTestResetService(repo UserRepository, email *MockEmailService, sessions *session.Manager) *PasswordResetService {
	if email == nil {
		email = &MockEmailService{}
	}
	if sessions == nil {
		sessions = session.NewManager(time.Hour)
	}
	return NewPasswordResetService(repo, email, sessions, slog.Default(), time.Hour)
}

func TestPasswordResetService_CreateResetToken(t *testing.T) {
	t.Run("issues token and sends email", func(t *testing.T) {
		var storedToken string
		var storedExpiry time.Time
		repo := &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return &models.User{ID: 1, Email: email}, nil
			},
			SetResetTokenFunc: func(ctx context.Context, id int64, token string, expiry time.Time) error {
				storedToken = token
				storedExpiry = expiry
				return nil
			},
		}
		email := &MockEmailService{}

		service := newTestResetService(repo, email, nil)
		token, err := service.CreateResetToken(context.Background(), "alice@example.com")

		require.NoError(t, err)
		assert.Len(t, token, 64)
		assert.Equal(t, token, storedToken)
		assert.WithinDuration(t, time.Now().Add(time.Hour), storedExpiry, 5*time.Second)
		require.Len(t, email.SentTo, 1)
		assert.Equal(t, "alice@example.com", email.SentTo[0])
		assert.Equal(t, token, email.SentTokens[0])
	})

	t.Run("unknown email returns success without sending", func(t *testing.T) {
		email := &MockEmailService{}

		service := newTestResetService(&MockUserRepository{}, email, nil)
		token, err := service.CreateResetToken(context.Background(), "nobody@example.com")

		require.NoError(t, err)
		assert.Empty(t, token)
		assert.Empty(t, email.SentTo)
	})

	t.Run("delivery failure is swallowed", func(t *testing.T) {
		repo := &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return &models.User{ID: 1, Email: email}, nil
			},
		}
		email := &MockEmailService{
			SendPasswordResetEmailFunc: func(ctx context.Context, email, token string, expiresAt time.Time) error {
				return assert.AnError
			},
		}

		service := newTestResetService(repo, email, nil)
		token, err := service.CreateResetToken(context.Background(), "alice@example.com")

		require.NoError(t, err)
		assert.NotEmpty(t, token)
	})
}

func TestPasswordResetService_ValidateResetToken(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		token := "sometoken"
		expiry := time.Now().Add(time.Hour)
		repo := &MockUserRepository{
			GetByResetTokenFunc: func(ctx context.Context, got string) (*models.User, error) {
				return &models.User{ID: 5, ResetToken: &token, ResetTokenExpiry: &expiry}, nil
			},
		}

		service := newTestResetService(repo, nil, nil)
		userID, err := service.ValidateResetToken(context.Background(), token)

		require.NoError(t, err)
		assert.Equal(t, int64(5), userID)
	})

	t.Run("empty token", func(t *testing.T) {
		service := newTestResetService(&MockUserRepository{}, nil, nil)

		_, err := service.ValidateResetToken(context.Background(), "")

		assert.ErrorIs(t, err, models.ErrInvalidResetToken)
	})

	t.Run("unknown token", func(t *testing.T) {
		service := newTestResetService(&MockUserRepository{}, nil, nil)

		_, err := service.ValidateResetToken(context.Background(), "missing")

		assert.ErrorIs(t, err, models.ErrInvalidResetToken)
	})

	t.Run("expired token", func(t *testing.T) {
		token := "sometoken"
		expiry := time.Now().Add(-time.Minute)
		repo := &MockUserRepository{
			GetByResetTokenFunc: func(ctx context.Context, got string) (*models.User, error) {
				return &models.User{ID: 5, ResetToken: &token, ResetTokenExpiry: &expiry}, nil
			},
		}

		service := newTestResetService(repo, nil, nil)
		_, err := service.ValidateResetToken(context.Background(), token)

		assert.ErrorIs(t, err, models.ErrInvalidResetToken)
	})
}

func TestPasswordResetService_ResetPassword(t *testing.T) {
	token := "sometoken"

	validRepo := func(redeemed *bool, storedHash *string) *MockUserRepository {
		expiry := time.Now().Add(time.Hour)
		return &MockUserRepository{
			GetByResetTokenFunc: func(ctx context.Context, got string) (*models.User, error) {
				return &models.User{ID: 5, ResetToken: &token, ResetTokenExpiry: &expiry}, nil
			},
			RedeemResetTokenFunc: func(ctx context.Context, got, passwordHash string) (bool, error) {
				if redeemed != nil {
					*redeemed = true
				}
				if storedHash != nil {
					*storedHash = passwordHash
				}
				return true, nil
			},
		}
	}

	t.Run("redeems token and destroys sessions", func(t *testing.T) {
		var redeemed bool
		var storedHash string
		sessions := session.NewManager(time.Hour)
		sessionToken, err := sessions.Create(5, false)
		require.NoError(t, err)
		otherToken, err := sessions.Create(6, false)
		require.NoError(t, err)

		service := newTestResetService(validRepo(&redeemed, &storedHash), nil, sessions)
		err = service.ResetPassword(context.Background(), token, "Brand-New-Passw0rd")

		require.NoError(t, err)
		assert.True(t, redeemed)
		assert.NotEqual(t, "Brand-New-Passw0rd", storedHash)

		_, ok := sessions.Get(sessionToken)
		assert.False(t, ok, "target user's session should be destroyed")
		_, ok = sessions.Get(otherToken)
		assert.True(t, ok, "other users' sessions should survive")
	})

	t.Run("rejects weak replacement password", func(t *testing.T) {
		var redeemed bool

		service := newTestResetService(validRepo(&redeemed, nil), nil, nil)
		err := service.ResetPassword(context.Background(), token, "short")

		assert.ErrorIs(t, err, models.ErrBadRequest)
		assert.False(t, redeemed)
	})

	t.Run("invalid token", func(t *testing.T) {
		service := newTestResetService(&MockUserRepository{}, nil, nil)

		err := service.ResetPassword(context.Background(), "missing", "Brand-New-Passw0rd")

		assert.ErrorIs(t, err, models.ErrInvalidResetToken)
	})

	t.Run("lost redemption race maps to invalid token", func(t *testing.T) {
		expiry := time.Now().Add(time.Hour)
		repo := &MockUserRepository{
			GetByResetTokenFunc: func(ctx context.Context, got string) (*models.User, error) {
				return &models.User{ID: 5, ResetToken: &token, ResetTokenExpiry: &expiry}, nil
			},
			RedeemResetTokenFunc: func(ctx context.Context, got, passwordHash string) (bool, error) {
				return false, nil
			},
		}

		service := newTestResetService(repo, nil, nil)
		err := service.ResetPassword(context.Background(), token, "Brand-New-Passw0rd")

		assert.ErrorIs(t, err, models.ErrInvalidResetToken)
	})
}
