package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod = 30
	totpSkew   = 1 // ±1 time step for clock drift

	// BackupCodeLength is the length of a single backup code.
	BackupCodeLength = 8

	// Charset excludes ambiguous characters (0/O, 1/I/L)
	backupCodeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
)

// TwoFactorManager handles TOTP secret generation, code validation, and
// backup-code generation.
type TwoFactorManager struct {
	issuer string
}

// NewTwoFactorManager creates a new two-factor manager. issuer is the app
// name shown in authenticator apps.
func NewTwoFactorManager(issuer string) *TwoFactorManager {
	return &TwoFactorManager{issuer: issuer}
}

// GenerateSecret creates a new TOTP secret for an account and returns the
// base32 secret, the otpauth enrollment URL, and a scannable QR code as a
// PNG data URL.
func (tm *TwoFactorManager) GenerateSecret(accountName string) (secret, otpauthURL, qrDataURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  32,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to create QR code: %w", err)
	}

	qrImage, err := qr.PNG(200)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	qrDataURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage)

	return key.Secret(), key.URL(), qrDataURL, nil
}

// ValidateCode checks a submitted TOTP code against the stored base32
// secret, tolerating ±1 time step of clock drift.
func (tm *TwoFactorManager) ValidateCode(secret, code string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

// GenerateBackupCodes generates count random backup codes. Codes are
// human-typable and avoid ambiguous characters.
func (tm *TwoFactorManager) GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := 0; i < count; i++ {
		code := make([]byte, BackupCodeLength)
		randomBytes := make([]byte, BackupCodeLength)
		if _, err := rand.Read(randomBytes); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		for j, b := range randomBytes {
			code[j] = backupCodeCharset[int(b)%len(backupCodeCharset)]
		}
		codes[i] = string(code)
	}
	return codes, nil
}

// NormalizeBackupCode uppercases and strips whitespace so user-typed codes
// match the generated form.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
