package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// UserRepository defines the user storage operations the services need
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	SaveTOTPSecret(ctx context.Context, id string, secret, nonce []byte) error
	EnableTOTP(ctx context.Context, id string, usedAt time.Time) error
	MarkTOTPUsed(ctx context.Context, id string, usedAt time.Time) error
}

// LoginLimiter is the part of the limiter the login paths consult
type LoginLimiter interface {
	CheckAllowed(ctx context.Context, email, address string) models.Decision
	OnFailedLogin(ctx context.Context, email, address string) (models.FailureOutcome, error)
	OnSuccessfulLogin(ctx context.Context, email, address string) error
}

// LoginRequest carries one login attempt
type LoginRequest struct {
	Email     string
	Password  string
	TOTPCode  string
	IPAddress string
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	TOTPEnabled bool   `json:"totp_enabled"`
}

// AuthResponse represents a successful login
type AuthResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int64         `json:"expires_in"`
	User        *UserResponse `json:"user"`
}

// AuthService handles authentication business logic
type AuthService struct {
	repo        UserRepository
	limiter     LoginLimiter
	tm          *auth.TokenManager
	totp        *auth.TOTPManager
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	tokenExpiry time.Duration
	now         func() time.Time
}

// NewAuthService creates a new AuthService. totp may be nil when two-factor
// login is not configured.
func NewAuthService(
	repo UserRepository,
	limiter LoginLimiter,
	tm *auth.TokenManager,
	totp *auth.TOTPManager,
	timing *auth.TimingDelay,
	tokenExpiry time.Duration,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		repo:        repo,
		limiter:     limiter,
		tm:          tm,
		totp:        totp,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
		tokenExpiry: tokenExpiry,
		now:         time.Now,
	}
}

// Login authenticates a user. A locked email or address is refused with a
// *models.LockedError before credentials are checked. Wrong credentials are
// counted against both keys and answered with models.ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := models.NormalizeEmail(req.Email)
	if email == "" {
		return nil, models.ErrBadRequest
	}

	decision := s.limiter.CheckAllowed(ctx, email, req.IPAddress)
	if !decision.Allowed {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_blocked",
			Email:         email,
			IPAddress:     req.IPAddress,
			FailureReason: string(decision.Reason),
		})
		return nil, &models.LockedError{Decision: decision}
	}

	start := s.now()

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.fail(ctx, start, email, req.IPAddress, "", "invalid_credentials")
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, pkgauth.ErrMismatchedPassword) {
			s.logger.Error("stored password hash is unusable", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		return nil, s.fail(ctx, start, email, req.IPAddress, user.ID, "invalid_credentials")
	}

	if user.TOTPEnabled {
		if err := s.checkSecondFactor(ctx, user, req.TOTPCode); err != nil {
			if !errors.Is(err, models.ErrInvalidTOTP) {
				return nil, err
			}
			return nil, s.fail(ctx, start, email, req.IPAddress, user.ID, "invalid_totp")
		}
	}

	if err := s.limiter.OnSuccessfulLogin(ctx, email, req.IPAddress); err != nil {
		s.logger.Warn("login succeeded but attempt records were not cleared", slog.Any("error", err))
	}

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: req.IPAddress,
		Success:   true,
	})

	return &AuthResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokenExpiry.Seconds()),
		User:        userModelToResponse(user),
	}, nil
}

// checkSecondFactor returns ErrTOTPRequired when no code was sent, so the
// client can prompt without the attempt counting as a failure
func (s *AuthService) checkSecondFactor(ctx context.Context, user *models.User, code string) error {
	if s.totp == nil {
		s.logger.Error("user has 2FA enabled but TOTP_ENCRYPTION_KEY is not set", slog.String("user_id", user.ID))
		return models.ErrTOTPUnavailable
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return models.ErrTOTPRequired
	}

	now := s.now()
	if err := s.totp.ValidateUser(user, code, now); err != nil {
		if errors.Is(err, models.ErrInvalidTOTP) {
			return err
		}
		s.logger.Error("failed to validate TOTP code", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.repo.MarkTOTPUsed(ctx, user.ID, now); err != nil {
		s.logger.Error("failed to record TOTP use", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// fail counts a failed attempt and pads the response time
func (s *AuthService) fail(ctx context.Context, start time.Time, email, address, userID, reason string) error {
	if _, err := s.limiter.OnFailedLogin(ctx, email, address); err != nil {
		s.logger.Error("failed to record failed login", slog.Any("error", err))
	}

	s.logger.Info("login failed", slog.String("reason", reason))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		UserID:        userID,
		Email:         email,
		IPAddress:     address,
		FailureReason: reason,
	})

	if s.timing != nil {
		s.timing.WaitFrom(start)
	}
	return models.ErrUnauthorized
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        string(user.Role),
		TOTPEnabled: user.TOTPEnabled,
	}
}
