package services

import (
	"context"
	"time"

	"github.com/kestrelworks/beacon/internal/models"
)

// MockUserRepository implements UserRepository with overridable behavior
type MockUserRepository struct {
	GetByIDFunc                 func(ctx context.Context, id int64) (*models.User, error)
	GetByUsernameFunc           func(ctx context.Context, username string) (*models.User, error)
	GetByEmailFunc              func(ctx context.Context, email string) (*models.User, error)
	GetByResetTokenFunc         func(ctx context.Context, token string) (*models.User, error)
	ListFunc                    func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc                  func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateRoleFunc              func(ctx context.Context, id int64, role string) error
	SetResetTokenFunc           func(ctx context.Context, id int64, token string, expiry time.Time) error
	RedeemResetTokenFunc        func(ctx context.Context, token, passwordHash string) (bool, error)
	ClearExpiredResetTokensFunc func(ctx context.Context) (int64, error)
	SetTwoFactorSecretFunc      func(ctx context.Context, id int64, secret string) error
	EnableTwoFactorFunc         func(ctx context.Context, id int64, hashedBackupCodes []string) (bool, error)
	DisableTwoFactorFunc        func(ctx context.Context, id int64) error
	ReplaceBackupCodesFunc      func(ctx context.Context, id int64, oldCodes, newCodes []string) (bool, error)
	UpdatePasswordFunc          func(ctx context.Context, id int64, passwordHash string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByResetToken(ctx context.Context, token string) (*models.User, error) {
	if m.GetByResetTokenFunc != nil {
		return m.GetByResetTokenFunc(ctx, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return nil, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return user, nil
}

func (m *MockUserRepository) UpdateRole(ctx context.Context, id int64, role string) error {
	if m.UpdateRoleFunc != nil {
		return m.UpdateRoleFunc(ctx, id, role)
	}
	return nil
}

func (m *MockUserRepository) SetResetToken(ctx context.Context, id int64, token string, expiry time.Time) error {
	if m.SetResetTokenFunc != nil {
		return m.SetResetTokenFunc(ctx, id, token, expiry)
	}
	return nil
}

func (m *MockUserRepository) RedeemResetToken(ctx context.Context, token, passwordHash string) (bool, error) {
	if m.RedeemResetTokenFunc != nil {
		return m.RedeemResetTokenFunc(ctx, token, passwordHash)
	}
	return false, nil
}

func (m *MockUserRepository) ClearExpiredResetTokens(ctx context.Context) (int64, error) {
	if m.ClearExpiredResetTokensFunc != nil {
		return m.ClearExpiredResetTokensFunc(ctx)
	}
	return 0, nil
}

func (m *MockUserRepository) SetTwoFactorSecret(ctx context.Context, id int64, secret string) error {
	if m.SetTwoFactorSecretFunc != nil {
		return m.SetTwoFactorSecretFunc(ctx, id, secret)
	}
	return nil
}

func (m *MockUserRepository) EnableTwoFactor(ctx context.Context, id int64, hashedBackupCodes []string) (bool, error) {
	if m.EnableTwoFactorFunc != nil {
		return m.EnableTwoFactorFunc(ctx, id, hashedBackupCodes)
	}
	return false, nil
}

func (m *MockUserRepository) DisableTwoFactor(ctx context.Context, id int64) error {
	if m.DisableTwoFactorFunc != nil {
		return m.DisableTwoFactorFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) ReplaceBackupCodes(ctx context.Context, id int64, oldCodes, newCodes []string) (bool, error) {
	if m.ReplaceBackupCodesFunc != nil {
		return m.ReplaceBackupCodesFunc(ctx, id, oldCodes, newCodes)
	}
	return false, nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

// MockEmailService records sent emails instead of delivering them
type MockEmailService struct {
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string, expiresAt time.Time) error

	SentTo     []string
	SentTokens []string
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.SentTo = append(m.SentTo, email)
	m.SentTokens = append(m.SentTokens, token)
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token, expiresAt)
	}
	return nil
}
