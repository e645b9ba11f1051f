package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"strong", "Correct-Horse-9", false},
		{"too short", "Ab1!", true},
		{"too long", "Aa1!" + strings.Repeat("x", MaxPasswordLen), true},
		{"no upper", "lowercase-only-9", true},
		{"no lower", "UPPERCASE-ONLY-9", true},
		{"no digit", "No-Digits-Here", true},
		{"no special", "NoSpecial123", true},
		{"common", "Password123!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var pve *PasswordValidationError
			require.True(t, errors.As(err, &pve))
			assert.NotEmpty(t, pve.Errors)
		})
	}
}

func TestHashAndComparePassword(t *testing.T) {
	hash, err := HashPasswordWithCost("Correct-Horse-9", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "Correct-Horse-9", hash)

	assert.NoError(t, ComparePassword(hash, "Correct-Horse-9"))
	assert.ErrorIs(t, ComparePassword(hash, "wrong"), ErrMismatchedPassword)

	err = ComparePassword("not-a-hash", "Correct-Horse-9")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMismatchedPassword)
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}
