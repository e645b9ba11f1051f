package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

const defaultAlertTimeout = 10 * time.Second

// LockoutAlertService emails account owners when their account is first
// locked. Sends run in the background so login latency is unaffected.
type LockoutAlertService struct {
	sender  EmailSender
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewLockoutAlertService creates a new LockoutAlertService
func NewLockoutAlertService(sender EmailSender, logger *slog.Logger) *LockoutAlertService {
	return &LockoutAlertService{
		sender:  sender,
		logger:  logger,
		timeout: defaultAlertTimeout,
		now:     time.Now,
	}
}

// NotifyLockout queues an alert for email. The request context only
// contributes its values; cancellation of the login does not stop the send.
func (s *LockoutAlertService) NotifyLockout(ctx context.Context, email string, lockedUntil time.Time) {
	message := lockoutEmail(email, lockedUntil, s.now())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		if err := s.sender.Send(sendCtx, message); err != nil {
			s.logger.Error("failed to send lockout alert",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.Any("error", err))
		}
	}()
}

// Wait blocks until queued alerts finish, for shutdown and tests
func (s *LockoutAlertService) Wait() {
	s.wg.Wait()
}

func lockoutEmail(email string, lockedUntil, now time.Time) Email {
	remaining := models.FormatRetryAfter(lockedUntil.Sub(now))
	until := lockedUntil.UTC().Format("15:04 MST on Jan 2")

	text := fmt.Sprintf(`Your account was temporarily locked

We blocked sign-in to your account after several failed login attempts.
You can try again in %s (at %s).

If these attempts were not you, consider changing your password once the lock expires.

This is an automated message. Please do not reply to this email.
`, remaining, until)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h2>Your account was temporarily locked</h2>
  <p>We blocked sign-in to your account after several failed login attempts.</p>
  <p>You can try again in <strong>%s</strong> (at %s).</p>
  <p>If these attempts were not you, consider changing your password once the lock expires.</p>
  <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
</body>
</html>
`, html.EscapeString(remaining), html.EscapeString(until))

	return Email{
		To:       email,
		Subject:  "Your account was temporarily locked",
		HTMLBody: htmlBody,
		TextBody: text,
	}
}
