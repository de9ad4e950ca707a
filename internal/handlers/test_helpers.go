package handlers

import (
	"context"

	"github.com/kestrelworks/beacon/internal/models"
	"github.com/kestrelworks/beacon/internal/services"
)

// Mock services with overridable behavior, used across handler tests.

type MockAuthService struct {
	RegisterFunc func(ctx context.Context, username, email, password string) (*models.User, error)
	LoginFunc    func(ctx context.Context, username, password string) (*models.User, bool, error)
}

func (m *MockAuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, username, email, password)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (*models.User, bool, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, username, password)
	}
	return nil, false, models.ErrInternalServer
}

type MockPasswordResetService struct {
	CreateResetTokenFunc   func(ctx context.Context, email string) (string, error)
	ValidateResetTokenFunc func(ctx context.Context, token string) (int64, error)
	ResetPasswordFunc      func(ctx context.Context, token, newPassword string) error
}

func (m *MockPasswordResetService) CreateResetToken(ctx context.Context, email string) (string, error) {
	if m.CreateResetTokenFunc != nil {
		return m.CreateResetTokenFunc(ctx, email)
	}
	return "", nil
}

func (m *MockPasswordResetService) ValidateResetToken(ctx context.Context, token string) (int64, error) {
	if m.ValidateResetTokenFunc != nil {
		return m.ValidateResetTokenFunc(ctx, token)
	}
	return 0, models.ErrInvalidResetToken
}

func (m *MockPasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, token, newPassword)
	}
	return models.ErrInvalidResetToken
}

type MockTwoFactorService struct {
	GenerateSecretFunc  func(ctx context.Context, userID int64) (*services.TwoFactorSetup, error)
	VerifyAndEnableFunc func(ctx context.Context, userID int64, code string) ([]string, error)
	VerifyCodeFunc      func(ctx context.Context, userID int64, code string) (bool, error)
	DisableFunc         func(ctx context.Context, userID int64) error
	IsEnabledFunc       func(ctx context.Context, userID int64) (bool, error)
}

func (m *MockTwoFactorService) GenerateSecret(ctx context.Context, userID int64) (*services.TwoFactorSetup, error) {
	if m.GenerateSecretFunc != nil {
		return m.GenerateSecretFunc(ctx, userID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockTwoFactorService) VerifyAndEnable(ctx context.Context, userID int64, code string) ([]string, error) {
	if m.VerifyAndEnableFunc != nil {
		return m.VerifyAndEnableFunc(ctx, userID, code)
	}
	return nil, models.ErrInvalidTwoFactorCode
}

func (m *MockTwoFactorService) VerifyCode(ctx context.Context, userID int64, code string) (bool, error) {
	if m.VerifyCodeFunc != nil {
		return m.VerifyCodeFunc(ctx, userID, code)
	}
	return false, nil
}

func (m *MockTwoFactorService) Disable(ctx context.Context, userID int64) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, userID)
	}
	return nil
}

func (m *MockTwoFactorService) IsEnabled(ctx context.Context, userID int64) (bool, error) {
	if m.IsEnabledFunc != nil {
		return m.IsEnabledFunc(ctx, userID)
	}
	return false, nil
}

type MockUserGetter struct {
	GetByIDFunc func(ctx context.Context, id int64) (*models.User, error)
}

func (m *MockUserGetter) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}
