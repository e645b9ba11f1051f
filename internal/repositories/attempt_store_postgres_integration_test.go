//go:build integration

package repositories_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/BradenHooton/bastion/internal/database/dbtest"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
)

type PostgresAttemptStoreSuite struct {
	suite.Suite
	db    *dbtest.TestDB
	store *repositories.PostgresAttemptStore
}

func TestPostgresAttemptStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAttemptStoreSuite))
}

func (s *PostgresAttemptStoreSuite) SetupSuite() {
	s.db = dbtest.Setup(s.T())
	s.store = repositories.NewPostgresAttemptStore(s.db.DB)
}

func (s *PostgresAttemptStoreSuite) SetupTest() {
	s.db.Truncate(s.T(), "attempt_records")
}

func (s *PostgresAttemptStoreSuite) TestProgressiveLock() {
	ctx := context.Background()
	key := models.UserKey("alice@example.com")
	policy := models.DefaultUserPolicy()
	now := time.Now().UTC().Truncate(time.Microsecond)

	for i := 1; i <= 5; i++ {
		record, err := s.store.RecordFailure(ctx, key, policy, now)
		s.Require().NoError(err)
		s.Equal(i, record.Attempts)
		s.Nil(record.LockedUntil)
	}

	record, err := s.store.RecordFailure(ctx, key, policy, now)
	s.Require().NoError(err)
	s.Require().NotNil(record.LockedUntil)
	s.True(record.LockedUntil.Equal(now.Add(time.Minute)))

	stored, err := s.store.Get(ctx, key)
	s.Require().NoError(err)
	s.Equal(6, stored.Attempts)
	s.True(stored.LockedUntil.Equal(now.Add(time.Minute)))
}

func (s *PostgresAttemptStoreSuite) TestUnblockResetAndResetAll() {
	ctx := context.Background()
	user := models.UserKey("bob@example.com")
	ip := models.IPKey("10.0.0.1")
	lockNow := models.LockoutPolicy{MaxAttempts: 0, Tiers: []time.Duration{time.Minute}}
	now := time.Now()

	_, err := s.store.RecordFailure(ctx, user, lockNow, now)
	s.Require().NoError(err)
	_, err = s.store.RecordFailure(ctx, ip, lockNow, now)
	s.Require().NoError(err)

	existed, err := s.store.Unblock(ctx, user)
	s.Require().NoError(err)
	s.True(existed)

	record, err := s.store.Get(ctx, user)
	s.Require().NoError(err)
	s.Equal(1, record.Attempts)
	s.Nil(record.LockedUntil)

	s.Require().NoError(s.store.Reset(ctx, user, ip))
	record, err = s.store.Get(ctx, ip)
	s.Require().NoError(err)
	s.Nil(record)

	_, err = s.store.RecordFailure(ctx, ip, lockNow, now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.ResetAll(ctx))
	record, err = s.store.Get(ctx, ip)
	s.Require().NoError(err)
	s.Nil(record)
}

func (s *PostgresAttemptStoreSuite) TestDeleteIdle() {
	ctx := context.Background()
	now := time.Now()
	old := now.Add(-48 * time.Hour)
	longLock := models.LockoutPolicy{MaxAttempts: 0, Tiers: []time.Duration{72 * time.Hour}}

	_, err := s.store.RecordFailure(ctx, models.IPKey("10.0.0.1"), models.DefaultIPPolicy(), old)
	s.Require().NoError(err)
	_, err = s.store.RecordFailure(ctx, models.IPKey("10.0.0.2"), longLock, old)
	s.Require().NoError(err)
	_, err = s.store.RecordFailure(ctx, models.IPKey("10.0.0.3"), models.DefaultIPPolicy(), now)
	s.Require().NoError(err)

	deleted, err := s.store.DeleteIdle(ctx, now.Add(-24*time.Hour), now)
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)
}

func (s *PostgresAttemptStoreSuite) TestConcurrentFailures() {
	ctx := context.Background()
	key := models.IPKey("10.0.0.9")
	policy := models.DefaultIPPolicy()
	const goroutines = 50

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.RecordFailure(ctx, key, policy, time.Now()); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(0), failures.Load())
	record, err := s.store.Get(ctx, key)
	s.Require().NoError(err)
	s.Equal(goroutines, record.Attempts)
}
