package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelworks/beacon/internal/models"
	"github.com/kestrelworks/beacon/internal/session"
	pkgauth "github.com/kestrelworks/beacon/pkg/auth"
	pkglogger "github.com/kestrelworks/beacon/pkg/logger"
)

// PasswordResetService manages the reset-token lifecycle: issue, probe,
// redeem. Tokens are single-use and expire after tokenTTL.
type PasswordResetService struct {
	userRepo     UserRepository
	emailService EmailService
	sessions     *session.Manager
	logger       *slog.Logger
	tokenTTL     time.Duration
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(
	userRepo UserRepository,
	emailService EmailService,
	sessions *session.Manager,
	logger *slog.Logger,
	tokenTTL time.Duration,
) *PasswordResetService {
	return &PasswordResetService{
		userRepo:     userRepo,
		emailService: emailService,
		sessions:     sessions,
		logger:       logger,
		tokenTTL:     tokenTTL,
	}
}

// CreateResetToken issues a reset token for the account matching email and
// triggers delivery of the reset link. Returns ("", nil) when no account
// matches: the caller must report generic success either way so responses
// cannot be used to enumerate accounts.
func (s *PasswordResetService) CreateResetToken(ctx context.Context, email string) (string, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("reset requested for unknown email",
				slog.String("email", pkglogger.SanitizedEmail(email)))
			return "", nil
		}
		return "", err
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	expiry := time.Now().Add(s.tokenTTL)

	// Overwrites any prior pending token for this user
	if err := s.userRepo.SetResetToken(ctx, user.ID, token, expiry); err != nil {
		return "", err
	}

	if err := s.emailService.SendPasswordResetEmail(ctx, user.Email, token, expiry); err != nil {
		// Delivery failure must not surface to the client; the response
		// stays generic either way.
		s.logger.Error("failed to send password reset email",
			slog.Int64("user_id", user.ID),
			slog.Any("error", err))
	}

	s.logger.Info("password reset token issued", slog.Int64("user_id", user.ID))

	return token, nil
}

// ValidateResetToken is the read-only probe behind the "is this link still
// valid" UI check. It does not consume the token.
func (s *PasswordResetService) ValidateResetToken(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, models.ErrInvalidResetToken
	}

	user, err := s.userRepo.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, models.ErrInvalidResetToken
		}
		return 0, err
	}

	if !user.HasValidResetToken(time.Now()) {
		return 0, models.ErrInvalidResetToken
	}

	return user.ID, nil
}

// ResetPassword redeems a token: re-hashes the new password and clears the
// token in one conditional update, so the token is consumed exactly once.
// All of the user's sessions are destroyed on success.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, err := s.ValidateResetToken(ctx, token)
	if err != nil {
		return err
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return models.ErrBadRequest
	}

	passwordHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	redeemed, err := s.userRepo.RedeemResetToken(ctx, token, passwordHash)
	if err != nil {
		return err
	}
	if !redeemed {
		// A concurrent redemption or expiry won the race
		return models.ErrInvalidResetToken
	}

	s.sessions.DeleteForUser(userID)

	s.logger.Info("password reset completed", slog.Int64("user_id", userID))

	return nil
}
