package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// MemoryAttemptStore keeps attempt records in process memory.
// State is lost on restart and is not shared between instances.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	records map[string]*models.AttemptRecord
}

// NewMemoryAttemptStore creates an empty in-memory store
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		records: make(map[string]*models.AttemptRecord),
	}
}

// RecordFailure increments the failure count for key and applies the policy
func (s *MemoryAttemptStore) RecordFailure(_ context.Context, key models.AttemptKey, policy models.LockoutPolicy, now time.Time) (*models.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[key.String()]
	if !exists {
		record = &models.AttemptRecord{Key: key}
		s.records[key.String()] = record
	}

	record.Attempts++
	record.LastFailureAt = now
	if lock := policy.LockDuration(record.Attempts); lock > 0 {
		lockedUntil := now.Add(lock)
		record.LockedUntil = &lockedUntil
	}

	return copyRecord(record), nil
}

// Get returns a copy of the record for key, or nil if none exists
func (s *MemoryAttemptStore) Get(_ context.Context, key models.AttemptKey) (*models.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[key.String()]
	if !exists {
		return nil, nil
	}
	return copyRecord(record), nil
}

// Reset deletes the records for keys
func (s *MemoryAttemptStore) Reset(_ context.Context, keys ...models.AttemptKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.records, key.String())
	}
	return nil
}

// Unblock clears the lock on key but keeps its attempt count
func (s *MemoryAttemptStore) Unblock(_ context.Context, key models.AttemptKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[key.String()]
	if !exists {
		return false, nil
	}
	record.LockedUntil = nil
	return true, nil
}

// ResetAll drops every record
func (s *MemoryAttemptStore) ResetAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*models.AttemptRecord)
	return nil
}

// DeleteIdle removes unlocked records whose last failure is older than cutoff
func (s *MemoryAttemptStore) DeleteIdle(_ context.Context, cutoff, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for k, record := range s.records {
		if record.LastFailureAt.Before(cutoff) && !record.IsLocked(now) {
			delete(s.records, k)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryAttemptStore) Ping(_ context.Context) error {
	return nil
}

func copyRecord(r *models.AttemptRecord) *models.AttemptRecord {
	out := *r
	if r.LockedUntil != nil {
		lockedUntil := *r.LockedUntil
		out.LockedUntil = &lockedUntil
	}
	return &out
}
