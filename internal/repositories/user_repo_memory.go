package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/google/uuid"
)

// MemoryUserRepository keeps accounts in process memory for single-instance
// deployments and tests
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyUser(user), nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyUser(r.byID[id]), nil
}

func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := models.NormalizeEmail(user.Email)
	if _, exists := r.byEmail[email]; exists {
		return nil, models.ErrConflict
	}

	created := copyUser(user)
	created.ID = uuid.New().String()
	created.Email = email
	if created.Role == "" {
		created.Role = models.RoleUser
	}
	now := time.Now()
	created.CreatedAt = now
	created.UpdatedAt = now

	r.byID[created.ID] = created
	r.byEmail[email] = created.ID
	return copyUser(created), nil
}

func (r *MemoryUserRepository) SaveTOTPSecret(_ context.Context, id string, secret, nonce []byte) error {
	return r.update(id, func(u *models.User) error {
		u.TOTPSecret = append([]byte(nil), secret...)
		u.TOTPNonce = append([]byte(nil), nonce...)
		u.TOTPEnabled = false
		u.TOTPLastUsedAt = nil
		return nil
	})
}

func (r *MemoryUserRepository) EnableTOTP(_ context.Context, id string, usedAt time.Time) error {
	return r.update(id, func(u *models.User) error {
		if u.TOTPSecret == nil {
			return models.ErrNotFound
		}
		u.TOTPEnabled = true
		u.TOTPLastUsedAt = &usedAt
		return nil
	})
}

func (r *MemoryUserRepository) MarkTOTPUsed(_ context.Context, id string, usedAt time.Time) error {
	return r.update(id, func(u *models.User) error {
		u.TOTPLastUsedAt = &usedAt
		return nil
	})
}

func (r *MemoryUserRepository) update(id string, fn func(*models.User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	if err := fn(user); err != nil {
		return err
	}
	user.UpdatedAt = time.Now()
	return nil
}

func copyUser(u *models.User) *models.User {
	out := *u
	out.TOTPSecret = append([]byte(nil), u.TOTPSecret...)
	out.TOTPNonce = append([]byte(nil), u.TOTPNonce...)
	if u.TOTPLastUsedAt != nil {
		usedAt := *u.TOTPLastUsedAt
		out.TOTPLastUsedAt = &usedAt
	}
	return &out
}
