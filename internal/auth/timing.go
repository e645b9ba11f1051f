package auth

import (
	"crypto/rand"
	"math/big"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelay   time.Duration
	RandomDelay time.Duration
}

// DefaultTimingConfig pads failed logins to roughly 250-350ms
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		BaseDelay:   250 * time.Millisecond,
		RandomDelay: 100 * time.Millisecond,
	}
}

// TimingDelay pads failed authentication so that an unknown email, a wrong
// password and a wrong second factor take about the same time
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
	now    func() time.Time
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// target returns base plus a crypto-random jitter in [0, RandomDelay)
func (td *TimingDelay) target() time.Duration {
	target := td.config.BaseDelay
	if td.config.RandomDelay > 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(td.config.RandomDelay)))
		if err == nil {
			target += time.Duration(n.Int64())
		}
	}
	return target
}

// WaitFrom sleeps until at least the target delay has elapsed since start
func (td *TimingDelay) WaitFrom(start time.Time) {
	elapsed := td.now().Sub(start)
	if remaining := td.target() - elapsed; remaining > 0 {
		td.sleep(remaining)
	}
}
