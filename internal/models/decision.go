package models

import "time"

// DenyReason names the limiter dimension that blocked an attempt
type DenyReason string

const (
	ReasonUserLocked DenyReason = "user_locked"
	ReasonIPLocked   DenyReason = "ip_locked"
)

// Decision is the outcome of checking whether a login attempt may proceed
type Decision struct {
	Allowed     bool
	Reason      DenyReason
	RetryAfter  time.Duration
	LockedUntil *time.Time
}

// FailureOutcome carries both records updated by one failed login
type FailureOutcome struct {
	User *AttemptRecord
	IP   *AttemptRecord
}

// LockedError is returned when a login is refused because a key is locked.
// It matches ErrRateLimitExceeded under errors.Is.
type LockedError struct {
	Decision Decision
}

func (e *LockedError) Error() string {
	return ErrRateLimitExceeded.Error() + ": " + string(e.Decision.Reason)
}

func (e *LockedError) Unwrap() error {
	return ErrRateLimitExceeded
}
