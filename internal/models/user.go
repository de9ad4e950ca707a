package models

import (
	"time"
)

// Role values for User.Role
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID               int64
	Username         string
	Email            string
	PasswordHash     string
	Role             string // "user" or "admin"
	ResetToken       *string
	ResetTokenExpiry *time.Time
	TwoFactorSecret  *string
	TwoFactorEnabled bool
	BackupCodes      []string // scrypt digests, one per unused backup code
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasValidResetToken reports whether a reset token is pending and unexpired.
func (u *User) HasValidResetToken(now time.Time) bool {
	return u.ResetToken != nil && u.ResetTokenExpiry != nil && now.Before(*u.ResetTokenExpiry)
}
