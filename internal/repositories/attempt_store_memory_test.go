package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/bastion/internal/models"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryAttemptStore_RecordFailure_ProgressiveLock(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()
	key := models.UserKey("alice@example.com")
	policy := models.DefaultUserPolicy()

	for i := 1; i <= 5; i++ {
		record, err := store.RecordFailure(ctx, key, policy, baseTime)
		require.NoError(t, err)
		assert.Equal(t, i, record.Attempts)
		assert.Nil(t, record.LockedUntil, "attempt %d should not lock", i)
	}

	record, err := store.RecordFailure(ctx, key, policy, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 6, record.Attempts)
	require.NotNil(t, record.LockedUntil)
	assert.Equal(t, baseTime.Add(time.Minute), *record.LockedUntil)

	record, err = store.RecordFailure(ctx, key, policy, baseTime)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(5*time.Minute), *record.LockedUntil)
}

func TestMemoryAttemptStore_GetUnknownKey(t *testing.T) {
	store := NewMemoryAttemptStore()

	record, err := store.Get(context.Background(), models.IPKey("10.0.0.1"))

	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestMemoryAttemptStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()
	key := models.UserKey("alice@example.com")
	policy := models.LockoutPolicy{MaxAttempts: 0, Tiers: []time.Duration{time.Minute}}

	_, err := store.RecordFailure(ctx, key, policy, baseTime)
	require.NoError(t, err)

	record, err := store.Get(ctx, key)
	require.NoError(t, err)
	record.Attempts = 100
	*record.LockedUntil = baseTime.Add(time.Hour)

	again, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Attempts)
	assert.Equal(t, baseTime.Add(time.Minute), *again.LockedUntil)
}

func TestMemoryAttemptStore_Reset(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()
	user := models.UserKey("alice@example.com")
	ip := models.IPKey("10.0.0.1")
	other := models.IPKey("10.0.0.2")

	for _, key := range []models.AttemptKey{user, ip, other} {
		_, err := store.RecordFailure(ctx, key, models.DefaultIPPolicy(), baseTime)
		require.NoError(t, err)
	}

	require.NoError(t, store.Reset(ctx, user, ip))

	record, err := store.Get(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, record)
	record, err = store.Get(ctx, ip)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Equal(t, 1, trackedKeys(store))
}

func TestMemoryAttemptStore_UnblockKeepsAttempts(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()
	key := models.UserKey("alice@example.com")
	policy := models.DefaultUserPolicy()

	for i := 0; i < 6; i++ {
		_, err := store.RecordFailure(ctx, key, policy, baseTime)
		require.NoError(t, err)
	}

	existed, err := store.Unblock(ctx, key)
	require.NoError(t, err)
	assert.True(t, existed)

	record, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 6, record.Attempts)
	assert.False(t, record.IsLocked(baseTime))

	existed, err = store.Unblock(ctx, models.UserKey("nobody@example.com"))
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestMemoryAttemptStore_ResetAll(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()

	_, err := store.RecordFailure(ctx, models.UserKey("a@example.com"), models.DefaultUserPolicy(), baseTime)
	require.NoError(t, err)
	_, err = store.RecordFailure(ctx, models.IPKey("10.0.0.1"), models.DefaultIPPolicy(), baseTime)
	require.NoError(t, err)

	require.NoError(t, store.ResetAll(ctx))
	assert.Equal(t, 0, trackedKeys(store))
}

func TestMemoryAttemptStore_DeleteIdle(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()
	lockNow := models.LockoutPolicy{MaxAttempts: 0, Tiers: []time.Duration{48 * time.Hour}}

	stale := models.IPKey("10.0.0.1")
	staleLocked := models.IPKey("10.0.0.2")
	fresh := models.IPKey("10.0.0.3")

	_, err := store.RecordFailure(ctx, stale, models.DefaultIPPolicy(), baseTime)
	require.NoError(t, err)
	_, err = store.RecordFailure(ctx, staleLocked, lockNow, baseTime)
	require.NoError(t, err)
	_, err = store.RecordFailure(ctx, fresh, models.DefaultIPPolicy(), baseTime.Add(23*time.Hour))
	require.NoError(t, err)

	now := baseTime.Add(25 * time.Hour)
	deleted, err := store.DeleteIdle(ctx, now.Add(-24*time.Hour), now)

	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, 2, trackedKeys(store))

	record, err := store.Get(ctx, stale)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestMemoryAttemptStore_ConcurrentFailures(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()
	key := models.IPKey("10.0.0.1")
	policy := models.DefaultIPPolicy()
	const goroutines = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.RecordFailure(ctx, key, policy, baseTime)
		}()
	}
	wg.Wait()

	record, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, goroutines, record.Attempts, "no increments should be lost")
	require.NotNil(t, record.LockedUntil)
	assert.Equal(t, baseTime.Add(policy.MaxLockDuration()), *record.LockedUntil)
}

func trackedKeys(s *MemoryAttemptStore) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
