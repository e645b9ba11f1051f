package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

const (
	testEmail = "alice@example.com"
	testIP    = "203.0.113.7"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestRequest creates an HTTP request with JSON body from testIP
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = testIP + ":52100"
	return req
}

// WithClaims adds token claims to the request context as the bearer middleware would
func WithClaims(req *http.Request, userID string, role models.Role) *http.Request {
	claims := &models.TokenClaims{
		Type:   auth.TokenTypeAccess,
		UserID: userID,
		Email:  testEmail,
		Role:   role,
	}
	claims.Subject = userID
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response and returns it
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.False(t, resp.Success)
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc func(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error)
}

func (m *MockAuthService) Login(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return nil, models.ErrInternalServer
}

// MockMFAService implements MFAServiceInterface for testing
type MockMFAService struct {
	InitiateSetupFunc func(ctx context.Context, userID string) (*services.TOTPSetupResponse, error)
	EnableFunc        func(ctx context.Context, userID, address, code string) error
}

func (m *MockMFAService) InitiateSetup(ctx context.Context, userID string) (*services.TOTPSetupResponse, error) {
	if m.InitiateSetupFunc != nil {
		return m.InitiateSetupFunc(ctx, userID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockMFAService) Enable(ctx context.Context, userID, address, code string) error {
	if m.EnableFunc != nil {
		return m.EnableFunc(ctx, userID, address, code)
	}
	return models.ErrInternalServer
}

// newRateLimitService builds a limiter on a memory store with a fixed clock
func newRateLimitService(t *testing.T) *services.RateLimitService {
	t.Helper()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, err := services.NewRateLimitService(
		repositories.NewMemoryAttemptStore(),
		models.DefaultUserPolicy(),
		models.DefaultIPPolicy(),
		discardLogger(),
		services.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)
	return svc
}

func failN(t *testing.T, svc *services.RateLimitService, email, ip string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := svc.OnFailedLogin(context.Background(), email, ip)
		require.NoError(t, err)
	}
}
