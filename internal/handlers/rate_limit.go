package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// Dev reset actions
const (
	ActionResetAll  = "reset-all"
	ActionResetIP   = "reset-ip"
	ActionResetUser = "reset-user"
)

// RateLimitServiceInterface defines the limiter operations exposed over HTTP
type RateLimitServiceInterface interface {
	StatusFor(ctx context.Context, email, address string) (*models.RateLimitStatus, error)
	Reset(ctx context.Context, actorID string, key models.AttemptKey) error
	Unblock(ctx context.Context, actorID string, key models.AttemptKey) (bool, error)
	ResetAll(ctx context.Context, actorID string) error
}

// RateLimitHandler exposes lockout status and administration
type RateLimitHandler struct {
	service      RateLimitServiceInterface
	ipConfig     *pkghttp.IPConfig
	isProduction bool
	logger       *slog.Logger
}

// NewRateLimitHandler creates a new RateLimitHandler
func NewRateLimitHandler(service RateLimitServiceInterface, ipConfig *pkghttp.IPConfig, isProduction bool, logger *slog.Logger) *RateLimitHandler {
	return &RateLimitHandler{
		service:      service,
		ipConfig:     ipConfig,
		isProduction: isProduction,
		logger:       logger,
	}
}

// DevResetRequest represents the request body for the development reset endpoint
type DevResetRequest struct {
	Action string `json:"action" validate:"required,oneof=reset-all reset-ip reset-user"`
	IP     string `json:"ip,omitempty" validate:"omitempty,ip"`
	Email  string `json:"email,omitempty" validate:"omitempty,email"`
}

// DevResetResponse echoes the action performed
type DevResetResponse struct {
	Action string `json:"action"`
}

// UnblockRequest represents the request body for lifting a lock
type UnblockRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Type       string `json:"type" validate:"required,oneof=ip user"`
}

// UnblockResponse reports whether a record existed for the key
type UnblockResponse struct {
	Success bool `json:"success"`
}

// Status reports the caller's address status and, when ?email= is given,
// that user's status
// @Router /auth/rate-limit [get]
func (h *RateLimitHandler) Status(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email != "" {
		if err := validate.Var(email, "email,max=254"); err != nil {
			pkghttp.WriteBadRequest(w, "validation failed: email: must be a valid email address")
			return
		}
	}

	status, err := h.service.StatusFor(r.Context(), email, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, status)
}

// DevReset clears attempt records. It is never served in production.
// @Router /dev/reset-rate-limit [post]
func (h *RateLimitHandler) DevReset(w http.ResponseWriter, r *http.Request) {
	if h.isProduction {
		pkghttp.WriteNotFound(w, "Not found")
		return
	}

	var req DevResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	var err error
	switch req.Action {
	case ActionResetAll:
		err = h.service.ResetAll(ctx, "dev-reset")
	case ActionResetIP:
		address := req.IP
		if address == "" {
			address = pkghttp.ExtractClientIP(r, h.ipConfig)
		}
		err = h.service.Reset(ctx, "dev-reset", models.IPKey(address))
	case ActionResetUser:
		if strings.TrimSpace(req.Email) == "" {
			pkghttp.WriteBadRequest(w, "validation failed: email: this field is required for this action")
			return
		}
		err = h.service.Reset(ctx, "dev-reset", models.UserKey(req.Email))
	}
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, DevResetResponse{Action: req.Action})
}

// Unblock lifts an active lock and keeps the attempt count. Requires a
// bearer token whose role may unblock.
// @Router /security/unblock [post]
func (h *RateLimitHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req UnblockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	key, err := models.ParseAttemptKey(req.Type, req.Identifier)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	existed, err := h.service.Unblock(r.Context(), claims.Subject, key)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UnblockResponse{Success: existed})
}
