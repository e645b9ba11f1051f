package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/auth"
)

// UserService handles user business logic
type UserService struct {
	repo       UserRepository
	logger     *slog.Logger
	bcryptCost int
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, logger *slog.Logger) *UserService {
	return &UserService{
		repo:       repo,
		logger:     logger,
		bcryptCost: auth.BcryptCost,
	}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", id))
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return user, nil
}

// EnsureUser creates the account unless one already exists for email.
// It reports whether a new account was created.
func (s *UserService) EnsureUser(ctx context.Context, email, password, name string, role models.Role) (*models.User, bool, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, false, models.ErrBadRequest
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up user", slog.Any("error", err))
		return nil, false, models.ErrInternalServer
	}

	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, false, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, false, err
	}

	hash, err := auth.HashPasswordWithCost(password, s.bcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, false, models.ErrInternalServer
	}

	created, err := s.repo.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Lost a race with another instance bootstrapping the same account
			existing, getErr := s.repo.GetByEmail(ctx, email)
			if getErr == nil {
				return existing, false, nil
			}
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, false, models.ErrInternalServer
	}

	s.logger.Info("user created", slog.String("user_id", created.ID), slog.String("role", string(created.Role)))
	return created, true, nil
}
