package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inkwell-app/inkwell/internal/auth"
	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/inkwell-app/inkwell/internal/services"
	pkghttp "github.com/inkwell-app/inkwell/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error envelope
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc          func(ctx context.Context, identifier, password, ip string) (*services.AuthResponse, error)
	RegisterFunc       func(ctx context.Context, input services.RegisterInput, ip string) (*services.RegisterResult, error)
	VerifySignupFunc   func(ctx context.Context, email, code string) (*services.AuthResponse, error)
	ResendOTPFunc      func(ctx context.Context, email, purpose, ip string) error
	ForgotPasswordFunc func(ctx context.Context, email, ip string) error
	VerifyResetOTPFunc func(ctx context.Context, email, code string) error
	ResetPasswordFunc  func(ctx context.Context, email, code, newPassword string) error
	ChangePasswordFunc func(ctx context.Context, userID, currentPassword, newPassword string) error
	SetPasswordFunc    func(ctx context.Context, userID, newPassword string) error
	VerifyPasswordFunc func(ctx context.Context, userID, password string) error
}

func (m *MockAuthService) Login(ctx context.Context, identifier, password, ip string) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, identifier, password, ip)
}

func (m *MockAuthService) Register(ctx context.Context, input services.RegisterInput, ip string) (*services.RegisterResult, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.RegisterFunc(ctx, input, ip)
}

func (m *MockAuthService) VerifySignup(ctx context.Context, email, code string) (*services.AuthResponse, error) {
	if m.VerifySignupFunc == nil {
		return nil, models.ErrOTPExpired
	}
	return m.VerifySignupFunc(ctx, email, code)
}

func (m *MockAuthService) ResendOTP(ctx context.Context, email, purpose, ip string) error {
	if m.ResendOTPFunc == nil {
		return nil
	}
	return m.ResendOTPFunc(ctx, email, purpose, ip)
}

func (m *MockAuthService) ForgotPassword(ctx context.Context, email, ip string) error {
	if m.ForgotPasswordFunc == nil {
		return nil
	}
	return m.ForgotPasswordFunc(ctx, email, ip)
}

func (m *MockAuthService) VerifyResetOTP(ctx context.Context, email, code string) error {
	if m.VerifyResetOTPFunc == nil {
		return nil
	}
	return m.VerifyResetOTPFunc(ctx, email, code)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if m.ResetPasswordFunc == nil {
		return nil
	}
	return m.ResetPasswordFunc(ctx, email, code, newPassword)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword)
}

func (m *MockAuthService) SetPassword(ctx context.Context, userID, newPassword string) error {
	if m.SetPasswordFunc == nil {
		return nil
	}
	return m.SetPasswordFunc(ctx, userID, newPassword)
}

func (m *MockAuthService) VerifyPassword(ctx context.Context, userID, password string) error {
	if m.VerifyPasswordFunc == nil {
		return nil
	}
	return m.VerifyPasswordFunc(ctx, userID, password)
}
