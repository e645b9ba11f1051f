package models

import (
	"fmt"
	"time"
)

// Default lockout schedule shared by both key types
var DefaultLockTiers = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
}

const (
	DefaultUserMaxAttempts = 5
	DefaultIPMaxAttempts   = 10
)

// LockoutPolicy maps a consecutive failure count to a lock duration.
// MaxAttempts failures are free; each failure beyond that locks the key for
// the next tier, staying on the last tier once the schedule is exhausted.
type LockoutPolicy struct {
	MaxAttempts int
	Tiers       []time.Duration
}

// DefaultUserPolicy returns the per-user policy (5 free attempts)
func DefaultUserPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: DefaultUserMaxAttempts, Tiers: append([]time.Duration(nil), DefaultLockTiers...)}
}

// DefaultIPPolicy returns the per-address policy (10 free attempts)
func DefaultIPPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: DefaultIPMaxAttempts, Tiers: append([]time.Duration(nil), DefaultLockTiers...)}
}

// Validate rejects schedules that would make lock durations shrink
func (p LockoutPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must not be negative (got %d)", p.MaxAttempts)
	}
	if len(p.Tiers) == 0 {
		return fmt.Errorf("at least one lock tier is required")
	}
	for i, tier := range p.Tiers {
		if tier <= 0 {
			return fmt.Errorf("lock tier %d must be positive (got %s)", i+1, tier)
		}
		if i > 0 && tier < p.Tiers[i-1] {
			return fmt.Errorf("lock tier %d (%s) is shorter than tier %d (%s)", i+1, tier, i, p.Tiers[i-1])
		}
	}
	return nil
}

// TierIndex returns the zero-based tier for attempts, or -1 when not locked
func (p LockoutPolicy) TierIndex(attempts int) int {
	over := attempts - p.MaxAttempts
	if over <= 0 || len(p.Tiers) == 0 {
		return -1
	}
	return min(over, len(p.Tiers)) - 1
}

// LockDuration returns how long a key with attempts failures stays locked
func (p LockoutPolicy) LockDuration(attempts int) time.Duration {
	idx := p.TierIndex(attempts)
	if idx < 0 {
		return 0
	}
	return p.Tiers[idx]
}

// Remaining returns the free attempts left before the first lock
func (p LockoutPolicy) Remaining(attempts int) int {
	return max(0, p.MaxAttempts-attempts)
}

// MaxLockDuration is the ceiling of the schedule
func (p LockoutPolicy) MaxLockDuration() time.Duration {
	if len(p.Tiers) == 0 {
		return 0
	}
	return p.Tiers[len(p.Tiers)-1]
}

// TiersMillis returns the schedule in milliseconds, as stored by script-based backends
func (p LockoutPolicy) TiersMillis() []int64 {
	ms := make([]int64, len(p.Tiers))
	for i, tier := range p.Tiers {
		ms[i] = tier.Milliseconds()
	}
	return ms
}
