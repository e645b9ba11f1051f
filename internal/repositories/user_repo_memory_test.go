package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/bastion/internal/models"
)

func TestMemoryUserRepository_CreateAndLookup(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.User{Email: " Alice@Example.com ", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.Equal(t, models.RoleUser, created.Role)

	byEmail, err := repo.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)

	_, err = repo.Create(ctx, &models.User{Email: "alice@example.com"})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryUserRepository_TOTPLifecycle(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	user, err := repo.Create(ctx, &models.User{Email: "bob@example.com"})
	require.NoError(t, err)

	err = repo.EnableTOTP(ctx, user.ID, time.Now())
	assert.ErrorIs(t, err, models.ErrNotFound, "enabling without a secret must fail")

	require.NoError(t, repo.SaveTOTPSecret(ctx, user.ID, []byte("cipher"), []byte("nonce")))
	usedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.EnableTOTP(ctx, user.ID, usedAt))

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.TOTPEnabled)
	assert.Equal(t, []byte("cipher"), stored.TOTPSecret)
	require.NotNil(t, stored.TOTPLastUsedAt)
	assert.Equal(t, usedAt, *stored.TOTPLastUsedAt)

	assert.ErrorIs(t, repo.MarkTOTPUsed(ctx, "missing", usedAt), models.ErrNotFound)
}
