package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BradenHooton/bastion/internal/metrics"
	"github.com/BradenHooton/bastion/internal/models"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// AttemptStore persists failure counts and lock state per attempt key.
// Get returns nil for unknown keys; errors mean the backend is unavailable.
type AttemptStore interface {
	RecordFailure(ctx context.Context, key models.AttemptKey, policy models.LockoutPolicy, now time.Time) (*models.AttemptRecord, error)
	Get(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error)
	Reset(ctx context.Context, keys ...models.AttemptKey) error
	Unblock(ctx context.Context, key models.AttemptKey) (bool, error)
	ResetAll(ctx context.Context) error
	DeleteIdle(ctx context.Context, cutoff, now time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// LockoutNotifier is told when an account first enters a lock tier
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, email string, lockedUntil time.Time)
}

// RateLimitService combines the per-user and per-address limiters for the login flow
type RateLimitService struct {
	store      AttemptStore
	userPolicy models.LockoutPolicy
	ipPolicy   models.LockoutPolicy
	logger     *slog.Logger
	audit      *pkglogger.AuditLogger
	metrics    *metrics.Metrics
	notifier   LockoutNotifier
	tracer     trace.Tracer
	now        func() time.Time
}

// RateLimitOption configures optional collaborators of RateLimitService
type RateLimitOption func(*RateLimitService)

// WithClock replaces time.Now, for tests that simulate lock expiry
func WithClock(now func() time.Time) RateLimitOption {
	return func(s *RateLimitService) {
		s.now = now
	}
}

func WithMetrics(m *metrics.Metrics) RateLimitOption {
	return func(s *RateLimitService) {
		s.metrics = m
	}
}

func WithAuditLogger(audit *pkglogger.AuditLogger) RateLimitOption {
	return func(s *RateLimitService) {
		s.audit = audit
	}
}

func WithLockoutNotifier(n LockoutNotifier) RateLimitOption {
	return func(s *RateLimitService) {
		s.notifier = n
	}
}

func WithTracer(t trace.Tracer) RateLimitOption {
	return func(s *RateLimitService) {
		s.tracer = t
	}
}

// NewRateLimitService creates a limiter over store with one policy per key type
func NewRateLimitService(store AttemptStore, userPolicy, ipPolicy models.LockoutPolicy, logger *slog.Logger, opts ...RateLimitOption) (*RateLimitService, error) {
	if store == nil {
		return nil, fmt.Errorf("attempt store is required")
	}
	if err := userPolicy.Validate(); err != nil {
		return nil, fmt.Errorf("user policy: %w", err)
	}
	if err := ipPolicy.Validate(); err != nil {
		return nil, fmt.Errorf("ip policy: %w", err)
	}

	s := &RateLimitService{
		store:      store,
		userPolicy: userPolicy,
		ipPolicy:   ipPolicy,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("bastion/ratelimit")
	}

	return s, nil
}

// Policy returns the lockout policy applied to keyType
func (s *RateLimitService) Policy(keyType models.KeyType) models.LockoutPolicy {
	switch keyType {
	case models.KeyTypeUser:
		return s.userPolicy
	case models.KeyTypeIP:
		return s.ipPolicy
	default:
		return s.ipPolicy
	}
}

// CheckAllowed reports whether a login for email from address may proceed.
// Both keys must be unlocked. When both are locked the later expiry wins,
// since the attempt cannot succeed before it. Store faults fail open.
func (s *RateLimitService) CheckAllowed(ctx context.Context, email, address string) models.Decision {
	ctx, span := s.tracer.Start(ctx, "ratelimit.check_allowed")
	defer span.End()

	now := s.now()
	decision := models.Decision{Allowed: true}

	for _, key := range s.keysFor(email, address) {
		record, err := s.store.Get(ctx, key)
		if err != nil {
			s.storeError(ctx, span, "get", key, err)
			continue
		}
		if !record.IsLocked(now) {
			continue
		}
		if decision.Allowed || record.LockedUntil.After(*decision.LockedUntil) {
			lockedUntil := *record.LockedUntil
			decision = models.Decision{
				Allowed:     false,
				Reason:      denyReason(key.Type),
				RetryAfter:  lockedUntil.Sub(now),
				LockedUntil: &lockedUntil,
			}
		}
	}

	span.SetAttributes(attribute.Bool("allowed", decision.Allowed))
	if !decision.Allowed {
		span.SetAttributes(attribute.String("reason", string(decision.Reason)))
		s.logger.Warn("login attempt blocked",
			slog.String("reason", string(decision.Reason)),
			slog.Duration("retry_after", decision.RetryAfter),
		)
		if s.metrics != nil {
			s.metrics.IncrementDenied(string(decision.Reason))
		}
	}

	return decision
}

// OnFailedLogin records a failure against both keys, even one that is already
// locked, so counts stay monotonic. Both keys are attempted before any error
// is returned.
func (s *RateLimitService) OnFailedLogin(ctx context.Context, email, address string) (models.FailureOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "ratelimit.on_failed_login")
	defer span.End()

	now := s.now()
	var outcome models.FailureOutcome
	var errs []error

	for _, key := range s.keysFor(email, address) {
		policy := s.Policy(key.Type)
		record, err := s.store.RecordFailure(ctx, key, policy, now)
		if err != nil {
			s.storeError(ctx, span, "record_failure", key, err)
			errs = append(errs, fmt.Errorf("record failure for %s key: %w", key.Type, err))
			continue
		}

		switch key.Type {
		case models.KeyTypeUser:
			outcome.User = record
		case models.KeyTypeIP:
			outcome.IP = record
		}

		if s.metrics != nil {
			s.metrics.IncrementFailures(string(key.Type))
		}
		span.SetAttributes(attribute.Int(string(key.Type)+".attempts", record.Attempts))

		if policy.LockDuration(record.Attempts) > 0 {
			s.onLocked(ctx, key, policy, record)
		}
	}

	if err := errors.Join(errs...); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}
	return outcome, nil
}

// onLocked reports a key that has just been (re)locked by a failure
func (s *RateLimitService) onLocked(ctx context.Context, key models.AttemptKey, policy models.LockoutPolicy, record *models.AttemptRecord) {
	s.logger.Warn("attempt key locked",
		slog.String("key_type", string(key.Type)),
		slog.String("identifier", pkglogger.MaskIdentifier(string(key.Type), key.Identifier)),
		slog.Int("attempts", record.Attempts),
		slog.Time("locked_until", *record.LockedUntil),
	)
	if s.metrics != nil {
		s.metrics.IncrementLockouts(string(key.Type))
	}
	if s.audit != nil {
		s.audit.LogLockout(string(key.Type), key.Identifier, record.Attempts, *record.LockedUntil)
	}

	// Alert only on the transition into the first tier, not on every escalation
	if key.Type == models.KeyTypeUser && s.notifier != nil && record.Attempts == policy.MaxAttempts+1 {
		s.notifier.NotifyLockout(ctx, key.Identifier, *record.LockedUntil)
	}
}

// OnSuccessfulLogin clears both keys
func (s *RateLimitService) OnSuccessfulLogin(ctx context.Context, email, address string) error {
	keys := s.keysFor(email, address)
	if err := s.store.Reset(ctx, keys...); err != nil {
		s.logger.Error("failed to reset attempt records after login", slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.IncrementStoreErrors("reset")
		}
		return fmt.Errorf("reset after successful login: %w", err)
	}
	return nil
}

// Status returns the read model for one key. Unknown keys are fresh and unlocked.
func (s *RateLimitService) Status(ctx context.Context, key models.AttemptKey) (*models.AttemptStatus, error) {
	record, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get status for %s key: %w", key.Type, err)
	}
	return s.buildStatus(record, s.Policy(key.Type), s.now()), nil
}

// StatusFor returns the statuses a login from email and address would be
// checked against. User is nil when email is empty.
func (s *RateLimitService) StatusFor(ctx context.Context, email, address string) (*models.RateLimitStatus, error) {
	status := &models.RateLimitStatus{}

	ipStatus, err := s.Status(ctx, models.IPKey(address))
	if err != nil {
		return nil, err
	}
	status.IP = ipStatus

	if userKey := models.UserKey(email); !userKey.IsZero() {
		userStatus, err := s.Status(ctx, userKey)
		if err != nil {
			return nil, err
		}
		status.User = userStatus
	}

	return status, nil
}

// Reset deletes the record for key, clearing attempts and lock
func (s *RateLimitService) Reset(ctx context.Context, actorID string, key models.AttemptKey) error {
	if err := s.store.Reset(ctx, key); err != nil {
		return fmt.Errorf("reset %s key: %w", key.Type, err)
	}

	s.logger.Info("attempt record reset",
		slog.String("key_type", string(key.Type)),
		slog.String("identifier", pkglogger.MaskIdentifier(string(key.Type), key.Identifier)),
	)
	if s.metrics != nil {
		s.metrics.IncrementResets(string(key.Type))
	}
	if s.audit != nil {
		s.audit.LogAdminAction("key_reset", actorID, string(key.Type), key.Identifier, nil)
	}
	return nil
}

// Unblock lifts the lock on key and keeps its attempt count, so the next
// failure escalates from where the key left off. Returns whether a record existed.
func (s *RateLimitService) Unblock(ctx context.Context, actorID string, key models.AttemptKey) (bool, error) {
	existed, err := s.store.Unblock(ctx, key)
	if err != nil {
		return false, fmt.Errorf("unblock %s key: %w", key.Type, err)
	}

	s.logger.Info("attempt key unblocked",
		slog.String("key_type", string(key.Type)),
		slog.String("identifier", pkglogger.MaskIdentifier(string(key.Type), key.Identifier)),
		slog.Bool("existed", existed),
	)
	if s.metrics != nil {
		s.metrics.IncrementUnblocks(string(key.Type))
	}
	if s.audit != nil {
		s.audit.LogAdminAction("key_unblocked", actorID, string(key.Type), key.Identifier,
			map[string]string{"existed": fmt.Sprintf("%t", existed)})
	}
	return existed, nil
}

// ResetAll clears every record in the store
func (s *RateLimitService) ResetAll(ctx context.Context, actorID string) error {
	if err := s.store.ResetAll(ctx); err != nil {
		return fmt.Errorf("reset all attempt records: %w", err)
	}

	s.logger.Warn("all attempt records reset")
	if s.metrics != nil {
		s.metrics.IncrementResets("all")
	}
	if s.audit != nil {
		s.audit.LogAdminAction("all_reset", actorID, "", "", nil)
	}
	return nil
}

// DeleteIdle evicts unlocked records with no failure within idleTTL
func (s *RateLimitService) DeleteIdle(ctx context.Context, idleTTL time.Duration) (int64, error) {
	now := s.now()
	return s.store.DeleteIdle(ctx, now.Add(-idleTTL), now)
}

// Ping checks the attempt store backend
func (s *RateLimitService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *RateLimitService) keysFor(email, address string) []models.AttemptKey {
	keys := make([]models.AttemptKey, 0, 2)
	if userKey := models.UserKey(email); !userKey.IsZero() {
		keys = append(keys, userKey)
	}
	if ipKey := models.IPKey(address); !ipKey.IsZero() {
		keys = append(keys, ipKey)
	}
	return keys
}

func (s *RateLimitService) buildStatus(record *models.AttemptRecord, policy models.LockoutPolicy, now time.Time) *models.AttemptStatus {
	attempts := 0
	if record != nil {
		attempts = record.Attempts
	}

	status := &models.AttemptStatus{
		Attempts:    attempts,
		Remaining:   policy.Remaining(attempts),
		MaxAttempts: policy.MaxAttempts,
	}

	if record.IsLocked(now) {
		lockedUntil := *record.LockedUntil
		retryAfter := record.RetryAfter(now)
		status.Locked = true
		status.LockUntil = &lockedUntil
		status.RetryAfterMs = retryAfter.Milliseconds()
		status.RetryAfter = models.FormatRetryAfter(retryAfter)
	}

	return status
}

func (s *RateLimitService) storeError(ctx context.Context, span trace.Span, operation string, key models.AttemptKey, err error) {
	span.RecordError(err)
	s.logger.ErrorContext(ctx, "attempt store failure",
		slog.String("operation", operation),
		slog.String("key_type", string(key.Type)),
		slog.Any("error", err),
	)
	if s.metrics != nil {
		s.metrics.IncrementStoreErrors(operation)
	}
}

func denyReason(keyType models.KeyType) models.DenyReason {
	switch keyType {
	case models.KeyTypeUser:
		return models.ReasonUserLocked
	case models.KeyTypeIP:
		return models.ReasonIPLocked
	default:
		return models.ReasonIPLocked
	}
}
