package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/beacon/internal/auth"
	"github.com/kestrelworks/beacon/internal/models"
	pkgauth "github.com/kestrelworks/beacon/pkg/auth"
)

func newTestTwoFactorService(repo UserRepository) *TwoFactorService {
	return NewTwoFactorService(repo, auth.NewTwoFactorManager("Beacon Test"), slog.Default(), 10)
}

func currentTOTPCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

func TestTwoFactorService_GenerateSecret(t *testing.T) {
	t.Run("stores pending secret and returns enrollment payload", func(t *testing.T) {
		var storedSecret string
		repo := &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
				return &models.User{ID: id, Username: "alice"}, nil
			},
			SetTwoFactorSecretFunc: func(ctx context.Context, id int64, secret string) error {
				storedSecret = secret
				return nil
			},
		}

		service := newTestTwoFactorService(repo)
		setup, err := service.GenerateSecret(context.Background(), 1)

		require.NoError(t, err)
		assert.Equal(t, storedSecret, setup.Secret)
		assert.NotEmpty(t, setup.Secret)
		assert.Contains(t, setup.QRCodeURL, "data:image/png;base64,")
	})

	t.Run("rejected while already enabled", func(t *testing.T) {
		repo := &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
				return &models.User{ID: id, Username: "alice", TwoFactorEnabled: true}, nil
			},
		}

		service := newTestTwoFactorService(repo)
		_, err := service.GenerateSecret(context.Background(), 1)

		assert.ErrorIs(t, err, models.ErrConflict)
	})
}

func TestTwoFactorService_VerifyAndEnable(t *testing.T) {
	setupRepo := func(secret string, enabled *[]string) *MockUserRepository {
		return &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
				return &models.User{ID: id, Username: "alice", TwoFactorSecret: &secret}, nil
			},
			EnableTwoFactorFunc: func(ctx context.Context, id int64, hashedBackupCodes []string) (bool, error) {
				if enabled != nil {
					*enabled = hashedBackupCodes
				}
				return true, nil
			},
		}
	}

	t.Run("valid code enables and returns backup codes", func(t *testing.T) {
		manager := auth.NewTwoFactorManager("Beacon Test")
		secret, _, _, err := manager.GenerateSecret("alice")
		require.NoError(t, err)

		var storedHashes []string
		service := newTestTwoFactorService(setupRepo(secret, &storedHashes))

		codes, err := service.VerifyAndEnable(context.Background(), 1, currentTOTPCode(t, secret))

		require.NoError(t, err)
		require.Len(t, codes, 10)
		require.Len(t, storedHashes, 10)
		for i, code := range codes {
			assert.Len(t, code, auth.BackupCodeLength)
			assert.True(t, pkgauth.VerifyPassword(code, storedHashes[i]),
				"stored hash must match the plaintext code handed to the user")
		}
	})

	t.Run("wrong code rejected", func(t *testing.T) {
		manager := auth.NewTwoFactorManager("Beacon Test")
		secret, _, _, err := manager.GenerateSecret("alice")
		require.NoError(t, err)

		service := newTestTwoFactorService(setupRepo(secret, nil))
		_, err = service.VerifyAndEnable(context.Background(), 1, "000000")

		assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)
	})

	t.Run("no pending secret", func(t *testing.T) {
		repo := &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
				return &models.User{ID: id, Username: "alice"}, nil
			},
		}

		service := newTestTwoFactorService(repo)
		_, err := service.VerifyAndEnable(context.Background(), 1, "123456")

		assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)
	})

	t.Run("already enabled", func(t *testing.T) {
		secret := "JBSWY3DPEHPK3PXP"
		repo := &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
				return &models.User{ID: id, TwoFactorEnabled: true, TwoFactorSecret: &secret}, nil
			},
		}

		service := newTestTwoFactorService(repo)
		_, err := service.VerifyAndEnable(context.Background(), 1, "123456")

		assert.ErrorIs(t, err, models.ErrConflict)
	})
}

func TestTwoFactorService_VerifyCode(t *testing.T) {
	t.Run("accepts current TOTP code", func(t *testing.T) {
		manager := auth.NewTwoFactorManager("Beacon Test")
		secret, _, _, err := manager.GenerateSecret("alice")
		require.NoError(t, err)

		repo := &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
				return &models.User{ID: id, TwoFactorEnabled: true, TwoFactorSecret: &secret}, nil
			},
		}

		service := newTestTwoFactorService(repo)
		ok, err := service.VerifyCode(context.Background(), 1, currentTOTPCode(t, secret))

		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("false when two-factor not enabled", func(t *testing.T) {
		repo := &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
				return &models.User{ID: id}, nil
			},
		}

		service := newTestTwoFactorService(repo)
		ok, err := service.VerifyCode(context.Background(), 1, "123456")

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("backup code is consumed on use", func(t *testing.T) {
		secret := "JBSWY3DPEHPK3PXP"
		hash, err := pkgauth.HashPassword("ABCD2345")
		require.NoError(t, err)
		otherHash, err := pkgauth.HashPassword("WXYZ6789")
		require.NoError(t, err)

		var replacedWith []string
		repo := &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
				return &models.User{
					ID:               id,
					TwoFactorEnabled: true,
					TwoFactorSecret:  &secret,
					BackupCodes:      []string{hash, otherHash},
				}, nil
			},
			ReplaceBackupCodesFunc: func(ctx context.Context, id int64, oldCodes, newCodes []string) (bool, error) {
				replacedWith = newCodes
				return true, nil
			},
		}

		service := newTestTwoFactorService(repo)
		ok, err := service.VerifyCode(context.Background(), 1, "abcd2345")

		require.NoError(t, err)
		assert.True(t, ok, "backup codes are matched case-insensitively")
		require.Len(t, replacedWith, 1)
		assert.Equal(t, otherHash, replacedWith[0], "only the used code is removed")
	})

	t.Run("lost consumption race fails closed", func(t *testing.T) {
		secret := "JBSWY3DPEHPK3PXP"
		hash, err := pkgauth.HashPassword("ABCD2345")
		require.NoError(t, err)

		repo := &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
				return &models.User{
					ID:               id,
					TwoFactorEnabled: true,
					TwoFactorSecret:  &secret,
					BackupCodes:      []string{hash},
				}, nil
			},
			ReplaceBackupCodesFunc: func(ctx context.Context, id int64, oldCodes, newCodes []string) (bool, error) {
				return false, nil
			},
		}

		service := newTestTwoFactorService(repo)
		ok, err := service.VerifyCode(context.Background(), 1, "ABCD2345")

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown backup code rejected", func(t *testing.T) {
		secret := "JBSWY3DPEHPK3PXP"
		hash, err := pkgauth.HashPassword("ABCD2345")
		require.NoError(t, err)

		repo := &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
				return &models.User{
					ID:               id,
					TwoFactorEnabled: true,
					TwoFactorSecret:  &secret,
					BackupCodes:      []string{hash},
				}, nil
			},
		}

		service := newTestTwoFactorService(repo)
		ok, err := service.VerifyCode(context.Background(), 1, "NOPE9999")

		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestTwoFactorService_Disable(t *testing.T) {
	called := false
	repo := &MockUserRepository{
		DisableTwoFactorFunc: func(ctx context.Context, id int64) error {
			called = true
			return nil
		},
	}

	service := newTestTwoFactorService(repo)
	err := service.Disable(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, called)
}
