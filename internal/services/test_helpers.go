package services

import (
	"context"
	"time"

	"github.com/inkwell-app/inkwell/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc          func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc       func(ctx context.Context, email string) (*models.User, error)
	GetByUsernameFunc    func(ctx context.Context, username string) (*models.User, error)
	CreateFunc           func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateLoginStateFunc func(ctx context.Context, id string, attempts int, blockExpires *time.Time) error
	SetEmailVerifiedFunc func(ctx context.Context, id string, verified bool) error
	UpdatePasswordFunc   func(ctx context.Context, id, passwordHash string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdateLoginState(ctx context.Context, id string, attempts int, blockExpires *time.Time) error {
	if m.UpdateLoginStateFunc != nil {
		return m.UpdateLoginStateFunc(ctx, id, attempts, blockExpires)
	}
	return nil
}

func (m *MockUserRepository) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	if m.SetEmailVerifiedFunc != nil {
		return m.SetEmailVerifiedFunc(ctx, id, verified)
	}
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

// MockOTPRepository implements OTPRepository for testing
type MockOTPRepository struct {
	ReplaceFunc           func(ctx context.Context, otp *models.OTP) (*models.OTP, error)
	GetFunc               func(ctx context.Context, email, purpose string) (*models.OTP, error)
	IncrementAttemptsFunc func(ctx context.Context, id string) (int, error)
	MarkVerifiedFunc      func(ctx context.Context, id string) error
	DeleteFunc            func(ctx context.Context, id string) error
}

func (m *MockOTPRepository) Replace(ctx context.Context, otp *models.OTP) (*models.OTP, error) {
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, otp)
	}
	stored := *otp
	stored.ID = "otp_test"
	stored.CreatedAt = time.Now()
	return &stored, nil
}

func (m *MockOTPRepository) Get(ctx context.Context, email, purpose string) (*models.OTP, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, email, purpose)
	}
	return nil, models.ErrNotFound
}

func (m *MockOTPRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	if m.IncrementAttemptsFunc != nil {
		return m.IncrementAttemptsFunc(ctx, id)
	}
	return 1, nil
}

func (m *MockOTPRepository) MarkVerified(ctx context.Context, id string) error {
	if m.MarkVerifiedFunc != nil {
		return m.MarkVerifiedFunc(ctx, id)
	}
	return nil
}

func (m *MockOTPRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendOTPFunc func(ctx context.Context, email, code, purpose, requesterIP string) error
}

func (m *MockEmailService) SendOTP(ctx context.Context, email, code, purpose, requesterIP string) error {
	if m.SendOTPFunc != nil {
		return m.SendOTPFunc(ctx, email, code, purpose, requesterIP)
	}
	return nil
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	GenerateFunc func(user *models.User) (string, error)
}

func (m *MockTokenIssuer) Generate(user *models.User) (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(user)
	}
	return "token_" + user.ID, nil
}

// NewTestUser creates a verified local user for testing
func NewTestUser(id, email, username string) *models.User {
	now := time.Now()
	return &models.User{
		ID:            id,
		Name:          "Test User",
		Username:      username,
		Email:         email,
		AuthMethod:    models.AuthMethodLocal,
		EmailVerified: true,
		Age:           30,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewTestUserWithPassword creates a user with the given password hash
func NewTestUserWithPassword(id, email, username, passwordHash string) *models.User {
	user := NewTestUser(id, email, username)
	user.PasswordHash = passwordHash
	return user
}

// NewTestUserUnverified creates a user with unverified email
func NewTestUserUnverified(id, email, username, passwordHash string) *models.User {
	user := NewTestUserWithPassword(id, email, username, passwordHash)
	user.EmailVerified = false
	return user
}

// NewTestUserLocked creates a user inside an active lockout window
func NewTestUserLocked(id, email, username string, retryAfter time.Duration) *models.User {
	user := NewTestUser(id, email, username)
	blockExpires := time.Now().Add(retryAfter)
	user.LoginAttempts = 5
	user.BlockExpires = &blockExpires
	return user
}

// NewTestUserFederated creates a federated user with no local password
func NewTestUserFederated(id, email, username string) *models.User {
	user := NewTestUser(id, email, username)
	user.AuthMethod = models.AuthMethodFederated
	user.PasswordHash = ""
	return user
}

// NewTestOTP creates a live OTP record
func NewTestOTP(id, email, code, purpose string) *models.OTP {
	return &models.OTP{
		ID:        id,
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		IssuerIP:  "203.0.113.7",
		Attempts:  0,
		CreatedAt: time.Now(),
	}
}

// NewTestOTPExpired creates an OTP past its time bound
func NewTestOTPExpired(id, email, code, purpose string) *models.OTP {
	otp := NewTestOTP(id, email, code, purpose)
	otp.CreatedAt = time.Now().Add(-models.OTPTTL - time.Second)
	return otp
}

// NewTestOTPExhausted creates an OTP with no attempt budget left
func NewTestOTPExhausted(id, email, code, purpose string) *models.OTP {
	otp := NewTestOTP(id, email, code, purpose)
	otp.Attempts = models.OTPMaxAttempts
	return otp
}
