package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kestrelworks/beacon/internal/auth"
	"github.com/kestrelworks/beacon/internal/models"
	pkgauth "github.com/kestrelworks/beacon/pkg/auth"
)

// TwoFactorSetup is returned by GenerateSecret for authenticator enrollment.
type TwoFactorSetup struct {
	Secret    string
	QRCodeURL string
}

// TwoFactorService manages the per-user TOTP state machine:
// disabled -> secret generated -> enabled -> disabled.
type TwoFactorService struct {
	userRepo        UserRepository
	manager         *auth.TwoFactorManager
	logger          *slog.Logger
	backupCodeCount int
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(userRepo UserRepository, manager *auth.TwoFactorManager, logger *slog.Logger, backupCodeCount int) *TwoFactorService {
	return &TwoFactorService{
		userRepo:        userRepo,
		manager:         manager,
		logger:          logger,
		backupCodeCount: backupCodeCount,
	}
}

// GenerateSecret creates a pending TOTP secret and enrollment payload.
// Calling it again before enabling overwrites the pending secret; it is
// rejected while 2FA is enabled (disable first to re-enroll).
func (s *TwoFactorService) GenerateSecret(ctx context.Context, userID int64) (*TwoFactorSetup, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled {
		return nil, models.ErrConflict
	}

	secret, _, qrDataURL, err := s.manager.GenerateSecret(user.Username)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.userRepo.SetTwoFactorSecret(ctx, userID, secret); err != nil {
		return nil, err
	}

	s.logger.Info("two-factor secret generated", slog.Int64("user_id", userID))

	return &TwoFactorSetup{Secret: secret, QRCodeURL: qrDataURL}, nil
}

// VerifyAndEnable validates the first code against the pending secret and,
// on success, enables 2FA and returns the plaintext backup codes. The codes
// are hashed before storage and are never retrievable again.
func (s *TwoFactorService) VerifyAndEnable(ctx context.Context, userID int64, code string) ([]string, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled {
		return nil, models.ErrConflict
	}
	if user.TwoFactorSecret == nil {
		// Verifying before a secret exists fails closed
		return nil, models.ErrInvalidTwoFactorCode
	}

	if !s.manager.ValidateCode(*user.TwoFactorSecret, code) {
		return nil, models.ErrInvalidTwoFactorCode
	}

	backupCodes, err := s.manager.GenerateBackupCodes(s.backupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashedCodes := make([]string, len(backupCodes))
	for i, backupCode := range backupCodes {
		hash, err := pkgauth.HashPassword(backupCode)
		if err != nil {
			s.logger.Error("failed to hash backup code", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		hashedCodes[i] = hash
	}

	enabled, err := s.userRepo.EnableTwoFactor(ctx, userID, hashedCodes)
	if err != nil {
		return nil, err
	}
	if !enabled {
		// The pending secret disappeared between the check and the update
		return nil, models.ErrInvalidTwoFactorCode
	}

	s.logger.Info("two-factor authentication enabled", slog.Int64("user_id", userID))

	return backupCodes, nil
}

// VerifyCode checks a login-time code: TOTP first, then the backup-code set.
// A matched backup code is removed in the same conditional update that
// validates it, so no code can be used twice even under concurrent logins.
func (s *TwoFactorService) VerifyCode(ctx context.Context, userID int64, code string) (bool, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}

	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return false, nil
	}

	if s.manager.ValidateCode(*user.TwoFactorSecret, code) {
		return true, nil
	}

	return s.verifyBackupCode(ctx, user, code)
}

func (s *TwoFactorService) verifyBackupCode(ctx context.Context, user *models.User, code string) (bool, error) {
	normalized := auth.NormalizeBackupCode(code)
	if normalized == "" || len(user.BackupCodes) == 0 {
		return false, nil
	}

	for i, hash := range user.BackupCodes {
		if !pkgauth.VerifyPassword(normalized, hash) {
			continue
		}

		remaining := make([]string, 0, len(user.BackupCodes)-1)
		remaining = append(remaining, user.BackupCodes[:i]...)
		remaining = append(remaining, user.BackupCodes[i+1:]...)

		replaced, err := s.userRepo.ReplaceBackupCodes(ctx, user.ID, user.BackupCodes, remaining)
		if err != nil {
			return false, err
		}
		if !replaced {
			// A concurrent login consumed a code first; fail closed rather
			// than risk accepting the same code twice.
			s.logger.Warn("backup code consumption lost a concurrent update", slog.Int64("user_id", user.ID))
			return false, nil
		}

		s.logger.Info("backup code consumed",
			slog.Int64("user_id", user.ID),
			slog.Int("codes_remaining", len(remaining)))

		return true, nil
	}

	return false, nil
}

// Disable clears the enabled flag, secret, and backup codes. Idempotent.
func (s *TwoFactorService) Disable(ctx context.Context, userID int64) error {
	if err := s.userRepo.DisableTwoFactor(ctx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return err
	}

	s.logger.Info("two-factor authentication disabled", slog.Int64("user_id", userID))
	return nil
}

// IsEnabled reports whether 2FA is active for the user.
func (s *TwoFactorService) IsEnabled(ctx context.Context, userID int64) (bool, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.TwoFactorEnabled, nil
}
