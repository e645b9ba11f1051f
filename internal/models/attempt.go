package models

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// KeyType identifies which limiter dimension an attempt key belongs to
type KeyType string

const (
	KeyTypeUser KeyType = "user"
	KeyTypeIP   KeyType = "ip"
)

// Valid reports whether t is one of the known key types
func (t KeyType) Valid() bool {
	switch t {
	case KeyTypeUser, KeyTypeIP:
		return true
	default:
		return false
	}
}

// AttemptKey is the identifier under which failures and lock state are tracked
type AttemptKey struct {
	Type       KeyType
	Identifier string
}

// UserKey builds a per-user key from an email, normalizing case and whitespace
func UserKey(email string) AttemptKey {
	return AttemptKey{Type: KeyTypeUser, Identifier: NormalizeEmail(email)}
}

// IPKey builds a per-address key. Parseable addresses are canonicalized so
// "::ffff:10.0.0.1" and "10.0.0.1" share one record.
func IPKey(address string) AttemptKey {
	address = strings.TrimSpace(address)
	if ip := net.ParseIP(address); ip != nil {
		address = ip.String()
	}
	return AttemptKey{Type: KeyTypeIP, Identifier: address}
}

// ParseAttemptKey builds a key from an explicit type and identifier
func ParseAttemptKey(keyType, identifier string) (AttemptKey, error) {
	switch KeyType(keyType) {
	case KeyTypeUser:
		key := UserKey(identifier)
		if key.Identifier == "" {
			return AttemptKey{}, fmt.Errorf("%w: identifier is required", ErrBadRequest)
		}
		return key, nil
	case KeyTypeIP:
		key := IPKey(identifier)
		if key.Identifier == "" {
			return AttemptKey{}, fmt.Errorf("%w: identifier is required", ErrBadRequest)
		}
		return key, nil
	default:
		return AttemptKey{}, fmt.Errorf("%w: unknown key type %q", ErrBadRequest, keyType)
	}
}

// String returns the storage form "<type>:<identifier>"
func (k AttemptKey) String() string {
	return string(k.Type) + ":" + k.Identifier
}

// IsZero reports whether the key carries no identifier
func (k AttemptKey) IsZero() bool {
	return k.Identifier == ""
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AttemptRecord holds consecutive failure state for one key
type AttemptRecord struct {
	Key           AttemptKey
	Attempts      int
	LockedUntil   *time.Time
	LastFailureAt time.Time
}

// IsLocked reports whether the record is locked at now
func (r *AttemptRecord) IsLocked(now time.Time) bool {
	if r == nil || r.LockedUntil == nil {
		return false
	}
	return now.Before(*r.LockedUntil)
}

// RetryAfter returns the time left on an active lock, or zero
func (r *AttemptRecord) RetryAfter(now time.Time) time.Duration {
	if !r.IsLocked(now) {
		return 0
	}
	return r.LockedUntil.Sub(now)
}

// AttemptStatus is the read model returned to clients
type AttemptStatus struct {
	Attempts     int        `json:"attempts"`
	Remaining    int        `json:"remaining"`
	MaxAttempts  int        `json:"max_attempts"`
	Locked       bool       `json:"locked"`
	LockUntil    *time.Time `json:"lock_until,omitempty"`
	RetryAfterMs int64      `json:"retry_after_ms,omitempty"`
	RetryAfter   string     `json:"retry_after,omitempty"`
}

// RateLimitStatus pairs the per-user and per-address statuses of one caller
type RateLimitStatus struct {
	User *AttemptStatus `json:"user,omitempty"`
	IP   *AttemptStatus `json:"ip"`
}
