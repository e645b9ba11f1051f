package services_test

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/services"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

const (
	testPassword = "Correct-Horse-9"
	testSecret   = "test-secret-32-characters-long!!"
)

// MockUserRepository wraps a memory repository and lets tests override single methods
type MockUserRepository struct {
	*repositories.MemoryUserRepository
	GetByEmailFunc   func(ctx context.Context, email string) (*models.User, error)
	MarkTOTPUsedFunc func(ctx context.Context, id string, usedAt time.Time) error
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return m.MemoryUserRepository.GetByEmail(ctx, email)
}

func (m *MockUserRepository) MarkTOTPUsed(ctx context.Context, id string, usedAt time.Time) error {
	if m.MarkTOTPUsedFunc != nil {
		return m.MarkTOTPUsedFunc(ctx, id, usedAt)
	}
	return m.MemoryUserRepository.MarkTOTPUsed(ctx, id, usedAt)
}

// recordingSender captures outgoing emails
type recordingSender struct {
	mu   sync.Mutex
	sent []services.Email
	err  error
}

func (s *recordingSender) Send(_ context.Context, email services.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, email)
	return s.err
}

func (s *recordingSender) Sent() []services.Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]services.Email(nil), s.sent...)
}

type authFixture struct {
	repo    *MockUserRepository
	limiter *services.RateLimitService
	clock   *fakeClock
	tm      *auth.TokenManager
	totp    *auth.TOTPManager
	auth    *services.AuthService
	mfa     *services.MFAService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	limiter, clock, _ := newLimiter(t)

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	totpMgr, err := auth.NewTOTPManager(key, "Bastion")
	require.NoError(t, err)

	repo := &MockUserRepository{MemoryUserRepository: repositories.NewMemoryUserRepository()}
	tm := auth.NewTokenManager(testSecret, 15*time.Minute)
	logger := discardLogger()
	audit := pkglogger.NewAuditLogger(logger)

	return &authFixture{
		repo:    repo,
		limiter: limiter,
		clock:   clock,
		tm:      tm,
		totp:    totpMgr,
		auth:    services.NewAuthService(repo, limiter, tm, totpMgr, nil, 15*time.Minute, logger, audit),
		mfa:     services.NewMFAService(repo, limiter, totpMgr, logger, audit),
	}
}

func (f *authFixture) createUser(t *testing.T, email string, role models.Role) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPasswordWithCost(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	user, err := f.repo.Create(context.Background(), &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test User",
		Role:         role,
	})
	require.NoError(t, err)
	return user
}

// enableTOTP enrolls user directly through the repository and returns the plain secret
func (f *authFixture) enableTOTP(t *testing.T, user *models.User) string {
	t.Helper()
	setup, err := f.totp.GenerateSetup(user.Email)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, f.repo.SaveTOTPSecret(ctx, user.ID, setup.EncryptedSecret, setup.Nonce))
	require.NoError(t, f.repo.EnableTOTP(ctx, user.ID, time.Now().Add(-time.Hour)))
	return setup.Secret
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// wrongCode returns a well-formed code that differs from every accepted one
func wrongCode(t *testing.T, secret string) string {
	t.Helper()
	accepted := map[string]bool{}
	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := totp.GenerateCodeCustom(secret, time.Now().Add(offset), totp.ValidateOpts{
			Period:    30,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		require.NoError(t, err)
		accepted[code] = true
	}
	for _, candidate := range []string{"000000", "111111", "222222", "333333"} {
		if !accepted[candidate] {
			return candidate
		}
	}
	t.Fatal("no wrong code available")
	return ""
}
