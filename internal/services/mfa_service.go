package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// TOTPSetupResponse is returned to the user once when enrollment starts
type TOTPSetupResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
	QRCode string `json:"qr_code"`
}

// MFAService handles two-factor enrollment
type MFAService struct {
	userRepo    UserRepository
	limiter     LoginLimiter
	totpMgr     *auth.TOTPManager
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewMFAService creates a new MFA service
func NewMFAService(
	userRepo UserRepository,
	limiter LoginLimiter,
	totpMgr *auth.TOTPManager,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *MFAService {
	return &MFAService{
		userRepo:    userRepo,
		limiter:     limiter,
		totpMgr:     totpMgr,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// InitiateSetup generates and stores a fresh secret for the user. Calling it
// again before enabling replaces the pending secret.
func (s *MFAService) InitiateSetup(ctx context.Context, userID string) (*TOTPSetupResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TOTPEnabled {
		return nil, models.ErrConflict
	}

	setup, err := s.totpMgr.GenerateSetup(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.userRepo.SaveTOTPSecret(ctx, user.ID, setup.EncryptedSecret, setup.Nonce); err != nil {
		s.logger.Error("failed to store TOTP secret", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("2FA setup initiated", slog.String("user_id", user.ID))

	return &TOTPSetupResponse{
		Secret: setup.Secret,
		URL:    setup.URL,
		QRCode: setup.QRCode,
	}, nil
}

// Enable verifies the first code and turns on 2FA. A wrong code counts as a
// failed login for the user's email and the caller's address.
func (s *MFAService) Enable(ctx context.Context, userID, address, code string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPEnabled {
		return models.ErrConflict
	}
	if len(user.TOTPSecret) == 0 {
		return models.ErrTOTPUnavailable
	}

	decision := s.limiter.CheckAllowed(ctx, user.Email, address)
	if !decision.Allowed {
		return &models.LockedError{Decision: decision}
	}

	now := s.now()
	if err := s.totpMgr.ValidateUser(user, code, now); err != nil {
		if !errors.Is(err, models.ErrInvalidTOTP) {
			s.logger.Error("failed to validate TOTP code", slog.String("user_id", user.ID), slog.Any("error", err))
			return models.ErrInternalServer
		}

		if _, recErr := s.limiter.OnFailedLogin(ctx, user.Email, address); recErr != nil {
			s.logger.Error("failed to record failed 2FA code", slog.Any("error", recErr))
		}
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "2fa_enable_failed",
			UserID:        user.ID,
			IPAddress:     address,
			FailureReason: "invalid_totp",
		})
		return models.ErrInvalidTOTP
	}

	if err := s.userRepo.EnableTOTP(ctx, user.ID, now); err != nil {
		s.logger.Error("failed to enable 2FA", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("2FA enabled", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "2fa_enabled",
		UserID:    user.ID,
		IPAddress: address,
		Success:   true,
	})
	return nil
}

func (s *MFAService) getUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}
