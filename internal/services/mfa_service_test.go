package services_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/bastion/internal/models"
)

func TestMFAService_SetupAndEnable(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, testEmail, models.RoleUser)
	ctx := context.Background()

	setup, err := f.mfa.InitiateSetup(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))
	assert.Contains(t, setup.URL, "otpauth://totp/")

	stored, err := f.repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.TOTPEnabled)
	assert.NotEmpty(t, stored.TOTPSecret)

	require.NoError(t, f.mfa.Enable(ctx, user.ID, testIP, currentCode(t, setup.Secret)))

	stored, err = f.repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.TOTPEnabled)

	_, err = f.mfa.InitiateSetup(ctx, user.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMFAService_Enable_WrongCodeCountsAsFailure(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, testEmail, models.RoleUser)
	ctx := context.Background()

	setup, err := f.mfa.InitiateSetup(ctx, user.ID)
	require.NoError(t, err)

	err = f.mfa.Enable(ctx, user.ID, testIP, wrongCode(t, setup.Secret))
	assert.ErrorIs(t, err, models.ErrInvalidTOTP)

	status, err := f.limiter.StatusFor(ctx, testEmail, testIP)
	require.NoError(t, err)
	assert.Equal(t, 1, status.User.Attempts)
	assert.Equal(t, 1, status.IP.Attempts)
}

func TestMFAService_Enable_RefusedWhileLocked(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, testEmail, models.RoleUser)
	ctx := context.Background()

	setup, err := f.mfa.InitiateSetup(ctx, user.ID)
	require.NoError(t, err)

	failN(t, f.limiter, testEmail, testIP, 6)

	err = f.mfa.Enable(ctx, user.ID, testIP, currentCode(t, setup.Secret))
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)
}

func TestMFAService_Enable_WithoutSetup(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, testEmail, models.RoleUser)

	err := f.mfa.Enable(context.Background(), user.ID, testIP, "123456")
	assert.ErrorIs(t, err, models.ErrTOTPUnavailable)
}

func TestMFAService_UnknownUser(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.mfa.InitiateSetup(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
