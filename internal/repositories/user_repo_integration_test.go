//go:build integration

package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/BradenHooton/bastion/internal/database/dbtest"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
)

type UserRepositorySuite struct {
	suite.Suite
	db   *dbtest.TestDB
	repo *repositories.UserRepository
}

func TestUserRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(UserRepositorySuite))
}

func (s *UserRepositorySuite) SetupSuite() {
	s.db = dbtest.Setup(s.T())
	s.repo = repositories.NewUserRepository(s.db.DB)
}

func (s *UserRepositorySuite) SetupTest() {
	s.db.Truncate(s.T(), "users")
}

func (s *UserRepositorySuite) TestCreateAndLookup() {
	ctx := context.Background()

	created, err := s.repo.Create(ctx, &models.User{
		Email:        "Alice@Example.com",
		PasswordHash: "hash",
		Name:         "Alice",
	})
	s.Require().NoError(err)
	s.Equal("alice@example.com", created.Email)
	s.Equal(models.RoleUser, created.Role)

	byEmail, err := s.repo.GetByEmail(ctx, "ALICE@example.com")
	s.Require().NoError(err)
	s.Equal(created.ID, byEmail.ID)

	byID, err := s.repo.GetByID(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal("Alice", byID.Name)

	_, err = s.repo.Create(ctx, &models.User{Email: "alice@example.com", PasswordHash: "hash", Name: "Dup"})
	s.ErrorIs(err, models.ErrConflict)

	_, err = s.repo.GetByEmail(ctx, "nobody@example.com")
	s.ErrorIs(err, models.ErrNotFound)
}

func (s *UserRepositorySuite) TestTOTPLifecycle() {
	ctx := context.Background()
	user, err := s.repo.Create(ctx, &models.User{Email: "bob@example.com", PasswordHash: "hash", Name: "Bob"})
	s.Require().NoError(err)

	s.Require().NoError(s.repo.SaveTOTPSecret(ctx, user.ID, []byte("ciphertext"), []byte("nonce-123456")))

	pending, err := s.repo.GetByID(ctx, user.ID)
	s.Require().NoError(err)
	s.False(pending.TOTPEnabled)
	s.Equal([]byte("ciphertext"), pending.TOTPSecret)

	usedAt := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.repo.EnableTOTP(ctx, user.ID, usedAt))

	enabled, err := s.repo.GetByID(ctx, user.ID)
	s.Require().NoError(err)
	s.True(enabled.TOTPEnabled)
	s.Require().NotNil(enabled.TOTPLastUsedAt)
	s.True(enabled.TOTPLastUsedAt.Equal(usedAt))

	later := usedAt.Add(time.Minute)
	s.Require().NoError(s.repo.MarkTOTPUsed(ctx, user.ID, later))

	s.ErrorIs(s.repo.MarkTOTPUsed(ctx, "00000000-0000-0000-0000-000000000000", later), models.ErrNotFound)
}
