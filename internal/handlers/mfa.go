package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// MFAServiceInterface defines the two-factor enrollment operations
type MFAServiceInterface interface {
	InitiateSetup(ctx context.Context, userID string) (*services.TOTPSetupResponse, error)
	Enable(ctx context.Context, userID, address, code string) error
}

// MFAHandler handles two-factor enrollment requests
type MFAHandler struct {
	service  MFAServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(service MFAServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *MFAHandler {
	return &MFAHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// EnableTOTPRequest represents the request body for enabling 2FA
type EnableTOTPRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// Setup starts 2FA enrollment for the authenticated user
// @Router /auth/2fa/setup [post]
func (h *MFAHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil || claims.Type != auth.TokenTypeAccess {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	setup, err := h.service.InitiateSetup(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, setup)
}

// Enable verifies the first code and turns 2FA on
// @Router /auth/2fa/enable [post]
func (h *MFAHandler) Enable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil || claims.Type != auth.TokenTypeAccess {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req EnableTOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.Enable(r.Context(), claims.UserID, pkghttp.ExtractClientIP(r, h.ipConfig), req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidTOTP):
			pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_totp", "Invalid two-factor code")
		case errors.Is(err, models.ErrTOTPUnavailable):
			pkghttp.WriteBadRequest(w, "Call /auth/2fa/setup before enabling two-factor authentication")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
		default:
			writeServiceError(w, h.logger, err)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, pkghttp.SuccessResponse{Success: true})
}
