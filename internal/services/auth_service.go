package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kestrelworks/beacon/internal/auth"
	"github.com/kestrelworks/beacon/internal/models"
	pkgauth "github.com/kestrelworks/beacon/pkg/auth"
	pkglogger "github.com/kestrelworks/beacon/pkg/logger"
)

// UserRepository defines the persistence surface the auth services need.
// Implemented by repositories.UserRepository; mocked in tests.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByResetToken(ctx context.Context, token string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateRole(ctx context.Context, id int64, role string) error
	SetResetToken(ctx context.Context, id int64, token string, expiry time.Time) error
	RedeemResetToken(ctx context.Context, token, passwordHash string) (bool, error)
	ClearExpiredResetTokens(ctx context.Context) (int64, error)
	SetTwoFactorSecret(ctx context.Context, id int64, secret string) error
	EnableTwoFactor(ctx context.Context, id int64, hashedBackupCodes []string) (bool, error)
	DisableTwoFactor(ctx context.Context, id int64) error
	ReplaceBackupCodes(ctx context.Context, id int64, oldCodes, newCodes []string) (bool, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// AuthService handles registration and credential verification.
type AuthService struct {
	userRepo UserRepository
	timing   *auth.TimingDelay
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo UserRepository, timing *auth.TimingDelay, logger *slog.Logger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		timing:   timing,
		logger:   logger,
	}
}

// Register creates a new user account. The role is always "user": elevation
// happens only through the environment bootstrap or administrative action,
// never through a registration payload.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, models.ErrBadRequest
	}

	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	passwordHash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.userRepo.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.String("email", pkglogger.SanitizedEmail(user.Email)))

	return user, nil
}

// Login verifies a username/password pair. twoFactorRequired is true when
// the account has 2FA enabled and the caller must complete a code
// verification before the session becomes fully authenticated.
func (s *AuthService) Login(ctx context.Context, username, password string) (user *models.User, twoFactorRequired bool, err error) {
	user, err = s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Pad the miss so it is not distinguishable from a wrong password
			s.timing.Wait(false)
			return nil, false, models.ErrUnauthorized
		}
		s.logger.Error("failed to fetch user for login", slog.Any("error", err))
		return nil, false, models.ErrInternalServer
	}

	if !pkgauth.VerifyPassword(password, user.PasswordHash) {
		s.logger.Warn("failed login attempt", slog.Int64("user_id", user.ID))
		return nil, false, models.ErrUnauthorized
	}

	return user, user.TwoFactorEnabled, nil
}

// EnsureAdminUser provisions or promotes the bootstrap admin account. The
// promotion is idempotent: a role mismatch on an existing account is
// corrected on every boot.
func (s *AuthService) EnsureAdminUser(ctx context.Context, username, password, email string) error {
	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err == nil {
		if existing.Role != models.RoleAdmin {
			if err := s.userRepo.UpdateRole(ctx, existing.ID, models.RoleAdmin); err != nil {
				return err
			}
			s.logger.Info("promoted bootstrap account to admin", slog.Int64("user_id", existing.ID))
		}
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	passwordHash, err := pkgauth.HashPassword(password)
	if err != nil {
		return err
	}

	user, err := s.userRepo.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         models.RoleAdmin,
	})
	if err != nil {
		return err
	}

	s.logger.Info("admin user created", slog.Int64("user_id", user.ID))
	return nil
}
