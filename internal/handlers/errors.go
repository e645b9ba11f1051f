package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// writeServiceError maps service errors onto HTTP responses. Unknown errors
// are logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var locked *models.LockedError
	switch {
	case errors.As(err, &locked):
		writeLocked(w, locked.Decision)
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication required")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Insufficient permissions")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")
	default:
		logger.Error("request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// writeLocked answers a refused attempt with 429, a Retry-After header in
// whole seconds and a human-readable wait
func writeLocked(w http.ResponseWriter, decision models.Decision) {
	seconds := int64((decision.RetryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	pkghttp.WriteErrorWithDetails(w, http.StatusTooManyRequests, "rate_limit_exceeded",
		"Too many failed login attempts. Try again in "+models.FormatRetryAfter(decision.RetryAfter)+".",
		string(decision.Reason))
}
