package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/beacon/internal/models"
	"github.com/kestrelworks/beacon/internal/repositories"
	pkgauth "github.com/kestrelworks/beacon/pkg/auth"
)

func setupRepoTest(t *testing.T) (*TestDB, *repositories.UserRepository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testDB.Teardown(context.Background())
	})

	return testDB, repositories.NewUserRepository(testDB.DB)
}

func TestResetTokenLifecycle(t *testing.T) {
	testDB, userRepo := setupRepoTest(t)
	ctx := context.Background()

	user, err := SeedUser(ctx, testDB.Pool, "alice", "alice@example.com", "Sturdy-Passw0rd", models.RoleUser)
	require.NoError(t, err)

	t.Run("token redeems exactly once", func(t *testing.T) {
		token := "integration-reset-token"
		require.NoError(t, userRepo.SetResetToken(ctx, user.ID, token, time.Now().Add(time.Hour)))

		newHash, err := pkgauth.HashPassword("Brand-New-Passw0rd")
		require.NoError(t, err)

		redeemed, err := userRepo.RedeemResetToken(ctx, token, newHash)
		require.NoError(t, err)
		assert.True(t, redeemed)

		// Second redemption of the same token must fail
		redeemed, err = userRepo.RedeemResetToken(ctx, token, newHash)
		require.NoError(t, err)
		assert.False(t, redeemed)

		updated, err := userRepo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, updated.ResetToken)
		assert.Nil(t, updated.ResetTokenExpiry)
		assert.True(t, pkgauth.VerifyPassword("Brand-New-Passw0rd", updated.PasswordHash))
	})

	t.Run("expired token cannot redeem", func(t *testing.T) {
		token := "expired-reset-token"
		require.NoError(t, userRepo.SetResetToken(ctx, user.ID, token, time.Now().Add(-time.Minute)))

		hash, err := pkgauth.HashPassword("Another-Passw0rd1")
		require.NoError(t, err)

		redeemed, err := userRepo.RedeemResetToken(ctx, token, hash)
		require.NoError(t, err)
		assert.False(t, redeemed)
	})

	t.Run("sweep clears expired tokens", func(t *testing.T) {
		require.NoError(t, userRepo.SetResetToken(ctx, user.ID, "stale-token", time.Now().Add(-time.Minute)))

		cleared, err := userRepo.ClearExpiredResetTokens(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, cleared, int64(1))

		_, err = userRepo.GetByResetToken(ctx, "stale-token")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestTwoFactorLifecycle(t *testing.T) {
	testDB, userRepo := setupRepoTest(t)
	ctx := context.Background()

	user, err := SeedUser(ctx, testDB.Pool, "bob", "bob@example.com", "Sturdy-Passw0rd", models.RoleUser)
	require.NoError(t, err)

	t.Run("enable requires a pending secret", func(t *testing.T) {
		enabled, err := userRepo.EnableTwoFactor(ctx, user.ID, []string{"hash1", "hash2"})
		require.NoError(t, err)
		assert.False(t, enabled, "enabling without a pending secret must fail")

		require.NoError(t, userRepo.SetTwoFactorSecret(ctx, user.ID, "JBSWY3DPEHPK3PXP"))

		enabled, err = userRepo.EnableTwoFactor(ctx, user.ID, []string{"hash1", "hash2"})
		require.NoError(t, err)
		assert.True(t, enabled)

		stored, err := userRepo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, stored.TwoFactorEnabled)
		assert.Equal(t, []string{"hash1", "hash2"}, stored.BackupCodes)
	})

	t.Run("backup code replacement is compare-and-set", func(t *testing.T) {
		replaced, err := userRepo.ReplaceBackupCodes(ctx, user.ID, []string{"hash1", "hash2"}, []string{"hash2"})
		require.NoError(t, err)
		assert.True(t, replaced)

		// A second consumer holding the stale set loses the race
		replaced, err = userRepo.ReplaceBackupCodes(ctx, user.ID, []string{"hash1", "hash2"}, []string{"hash1"})
		require.NoError(t, err)
		assert.False(t, replaced)

		stored, err := userRepo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"hash2"}, stored.BackupCodes)
	})

	t.Run("disable clears everything and is idempotent", func(t *testing.T) {
		require.NoError(t, userRepo.DisableTwoFactor(ctx, user.ID))

		stored, err := userRepo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, stored.TwoFactorEnabled)
		assert.Nil(t, stored.TwoFactorSecret)
		assert.Empty(t, stored.BackupCodes)

		require.NoError(t, userRepo.DisableTwoFactor(ctx, user.ID))
	})
}

func TestUserUniqueness(t *testing.T) {
	testDB, userRepo := setupRepoTest(t)
	ctx := context.Background()

	_, err := SeedUser(ctx, testDB.Pool, "carol", "carol@example.com", "Sturdy-Passw0rd", models.RoleUser)
	require.NoError(t, err)

	_, err = userRepo.Create(ctx, &models.User{
		Username:     "carol",
		Email:        "other@example.com",
		PasswordHash: "irrelevant",
	})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = userRepo.Create(ctx, &models.User{
		Username:     "carol2",
		Email:        "carol@example.com",
		PasswordHash: "irrelevant",
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}
