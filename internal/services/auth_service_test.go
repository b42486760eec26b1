package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-app/inkwell/internal/auth"
	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/inkwell-app/inkwell/internal/ratelimit"
	pkglogger "github.com/inkwell-app/inkwell/pkg/logger"
)

type authServiceDeps struct {
	users  *MockUserRepository
	otps   *MockOTPRepository
	email  *MockEmailService
	tokens *MockTokenIssuer

	loginLimiter *ratelimit.MemoryLimiter
	otpLimiter   *ratelimit.MemoryLimiter
}

func newTestAuthService(deps *authServiceDeps) *AuthService {
	logger := slog.Default()

	if deps.users == nil {
		deps.users = &MockUserRepository{}
	}
	if deps.otps == nil {
		deps.otps = &MockOTPRepository{}
	}
	if deps.email == nil {
		deps.email = &MockEmailService{}
	}
	if deps.tokens == nil {
		deps.tokens = &MockTokenIssuer{}
	}
	if deps.loginLimiter == nil {
		deps.loginLimiter = ratelimit.NewMemoryLimiter(ratelimit.Config{
			Points: 100, Window: time.Minute, Block: time.Minute,
		})
	}
	if deps.otpLimiter == nil {
		deps.otpLimiter = ratelimit.NewMemoryLimiter(ratelimit.Config{
			Points: 100, Window: time.Minute, Block: time.Minute,
		})
	}

	creds := newTestCredentialService(deps.users)
	otps := NewOTPService(deps.otps, logger)
	timing := auth.NewTimingDelay(auth.TimingConfig{})

	return NewAuthService(
		deps.users,
		creds,
		otps,
		deps.tokens,
		deps.email,
		deps.loginLimiter,
		deps.otpLimiter,
		timing,
		logger,
		pkglogger.NewAuditLogger(logger),
	)
}

// ============================================================================
// Login Tests
// ============================================================================

func TestAuthService_Login_Success(t *testing.T) {
	hash := mustHash(t, "CorrectHorse1")
	user := NewTestUserWithPassword("user123", "user@example.com", "someuser", hash)

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	resp, err := svc.Login(context.Background(), "user@example.com", "CorrectHorse1", "203.0.113.7")

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "token_user123", resp.Token)
	require.NotNil(t, resp.User)
	assert.Equal(t, "user123", resp.User.ID)
}

func TestAuthService_Login_RateLimited(t *testing.T) {
	deps := &authServiceDeps{
		loginLimiter: ratelimit.NewMemoryLimiter(ratelimit.Config{
			Points: 1, Window: time.Minute, Block: 5 * time.Minute,
		}),
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return nil, models.ErrNotFound
			},
		},
	}

	svc := newTestAuthService(deps)

	_, _ = svc.Login(context.Background(), "user@example.com", "pw", "203.0.113.7")
	_, err := svc.Login(context.Background(), "user@example.com", "pw", "203.0.113.7")

	var rl *models.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.Seconds(), 0)
}

func TestAuthService_Login_UnverifiedTriggersSignupOTP(t *testing.T) {
	hash := mustHash(t, "CorrectHorse1")
	user := NewTestUserUnverified("user123", "user@example.com", "someuser", hash)

	var issuedPurpose, sentCode string
	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
		otps: &MockOTPRepository{
			ReplaceFunc: func(ctx context.Context, otp *models.OTP) (*models.OTP, error) {
				issuedPurpose = otp.Purpose
				return otp, nil
			},
		},
		email: &MockEmailService{
			SendOTPFunc: func(ctx context.Context, email, code, purpose, requesterIP string) error {
				sentCode = code
				return nil
			},
		},
	}

	svc := newTestAuthService(deps)

	resp, err := svc.Login(context.Background(), "user@example.com", "CorrectHorse1", "203.0.113.7")

	var vr *models.VerificationRequiredError
	require.ErrorAs(t, err, &vr)
	assert.Equal(t, "user@example.com", vr.Email)
	assert.Nil(t, resp)
	assert.Equal(t, models.OTPPurposeSignup, issuedPurpose)
	assert.Len(t, sentCode, 6)
}

func TestAuthService_Login_WrongPasswordNoOTPSideEffect(t *testing.T) {
	hash := mustHash(t, "CorrectHorse1")
	user := NewTestUserUnverified("user123", "user@example.com", "someuser", hash)

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
		otps: &MockOTPRepository{
			ReplaceFunc: func(ctx context.Context, otp *models.OTP) (*models.OTP, error) {
				t.Fatal("no code should be issued for a wrong password")
				return nil, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	_, err := svc.Login(context.Background(), "user@example.com", "wrong", "203.0.113.7")

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

// ============================================================================
// Register Tests
// ============================================================================

func validRegisterInput() RegisterInput {
	return RegisterInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Username:  "ada_l",
		Email:     "Ada@Example.com",
		Password:  "SecurePass1",
		Age:       30,
	}
}

func TestAuthService_Register_Success(t *testing.T) {
	var created *models.User
	deps := &authServiceDeps{
		users: &MockUserRepository{
			CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
				user.ID = "user123"
				created = user
				return user, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	result, err := svc.Register(context.Background(), validRegisterInput(), "203.0.113.7")

	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", result.Email)
	assert.True(t, result.Delivered)
	require.NotNil(t, created)
	assert.Equal(t, "Ada Lovelace", created.Name)
	assert.Equal(t, "ada_l", created.Username)
	assert.Equal(t, models.AuthMethodLocal, created.AuthMethod)
	assert.False(t, created.EmailVerified)
	assert.NotEqual(t, "SecurePass1", created.PasswordHash)
}

func TestAuthService_Register_VerifiedDuplicateEmail(t *testing.T) {
	existing := NewTestUser("user123", "ada@example.com", "other")

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return existing, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	_, err := svc.Register(context.Background(), validRegisterInput(), "203.0.113.7")

	assert.ErrorIs(t, err, models.ErrEmailTaken)
}

func TestAuthService_Register_UnverifiedDuplicateEmailDistinct(t *testing.T) {
	existing := NewTestUserUnverified("user123", "ada@example.com", "other", "hash")

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return existing, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	_, err := svc.Register(context.Background(), validRegisterInput(), "203.0.113.7")

	assert.ErrorIs(t, err, models.ErrEmailTakenUnverified)
}

func TestAuthService_Register_UsernameTaken(t *testing.T) {
	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByUsernameFunc: func(ctx context.Context, username string) (*models.User, error) {
				return NewTestUser("user999", "other@example.com", username), nil
			},
		},
	}

	svc := newTestAuthService(deps)

	_, err := svc.Register(context.Background(), validRegisterInput(), "203.0.113.7")

	assert.ErrorIs(t, err, models.ErrUsernameTaken)
}

func TestAuthService_Register_DeliveryFailureKeepsAccount(t *testing.T) {
	created := false
	deps := &authServiceDeps{
		users: &MockUserRepository{
			CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
				user.ID = "user123"
				created = true
				return user, nil
			},
		},
		email: &MockEmailService{
			SendOTPFunc: func(ctx context.Context, email, code, purpose, requesterIP string) error {
				return errors.New("ses unavailable")
			},
		},
	}

	svc := newTestAuthService(deps)

	result, err := svc.Register(context.Background(), validRegisterInput(), "203.0.113.7")

	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, result.Delivered)
}

// ============================================================================
// VerifySignup Tests
// ============================================================================

func TestAuthService_VerifySignup_Success(t *testing.T) {
	user := NewTestUserUnverified("user123", "user@example.com", "someuser", "hash")

	var verifiedID string
	var otpDeleted bool
	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
			SetEmailVerifiedFunc: func(ctx context.Context, id string, verified bool) error {
				verifiedID = id
				return nil
			},
		},
		otps: &MockOTPRepository{
			GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
				return NewTestOTP("otp1", email, "123456", purpose), nil
			},
			DeleteFunc: func(ctx context.Context, id string) error {
				otpDeleted = true
				return nil
			},
		},
	}

	svc := newTestAuthService(deps)

	resp, err := svc.VerifySignup(context.Background(), "user@example.com", "123456")

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "token_user123", resp.Token)
	assert.Equal(t, "user123", verifiedID)
	assert.True(t, otpDeleted)
}

func TestAuthService_VerifySignup_WrongCode(t *testing.T) {
	deps := &authServiceDeps{
		otps: &MockOTPRepository{
			GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
				return NewTestOTP("otp1", email, "123456", purpose), nil
			},
		},
	}

	svc := newTestAuthService(deps)

	_, err := svc.VerifySignup(context.Background(), "user@example.com", "654321")

	assert.ErrorIs(t, err, models.ErrOTPInvalid)
}

func TestAuthService_VerifySignup_ExpiredCode(t *testing.T) {
	deps := &authServiceDeps{
		otps: &MockOTPRepository{
			GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
				return NewTestOTPExpired("otp1", email, "123456", purpose), nil
			},
		},
	}

	svc := newTestAuthService(deps)

	_, err := svc.VerifySignup(context.Background(), "user@example.com", "123456")

	assert.ErrorIs(t, err, models.ErrOTPExpired)
}

func TestAuthService_VerifySignup_ExhaustedCode(t *testing.T) {
	deps := &authServiceDeps{
		otps: &MockOTPRepository{
			GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
				return NewTestOTPExhausted("otp1", email, "123456", purpose), nil
			},
		},
	}

	svc := newTestAuthService(deps)

	_, err := svc.VerifySignup(context.Background(), "user@example.com", "123456")

	assert.ErrorIs(t, err, models.ErrOTPExhausted)
}

// ============================================================================
// ResendOTP Tests
// ============================================================================

func TestAuthService_ResendOTP_SignupForVerifiedAccountRejected(t *testing.T) {
	user := NewTestUser("user123", "user@example.com", "someuser")

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	err := svc.ResendOTP(context.Background(), "user@example.com", models.OTPPurposeSignup, "203.0.113.7")

	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAuthService_ResendOTP_ResetForUnverifiedAccountRejected(t *testing.T) {
	user := NewTestUserUnverified("user123", "user@example.com", "someuser", "hash")

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	err := svc.ResendOTP(context.Background(), "user@example.com", models.OTPPurposeReset, "203.0.113.7")

	assert.ErrorIs(t, err, models.ErrEmailNotVerified)
}

func TestAuthService_ResendOTP_UnknownEmail(t *testing.T) {
	deps := &authServiceDeps{}

	svc := newTestAuthService(deps)

	err := svc.ResendOTP(context.Background(), "ghost@example.com", models.OTPPurposeSignup, "203.0.113.7")

	assert.ErrorIs(t, err, models.ErrNoSuchEmail)
}

func TestAuthService_ResendOTP_RateLimitedPerPurpose(t *testing.T) {
	user := NewTestUserUnverified("user123", "user@example.com", "someuser", "hash")

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
		otpLimiter: ratelimit.NewMemoryLimiter(ratelimit.Config{
			Points: 1, Window: time.Minute, Block: 5 * time.Minute,
		}),
	}

	svc := newTestAuthService(deps)

	require.NoError(t, svc.ResendOTP(context.Background(), "user@example.com", models.OTPPurposeSignup, "203.0.113.7"))

	err := svc.ResendOTP(context.Background(), "user@example.com", models.OTPPurposeSignup, "203.0.113.7")
	var rl *models.RateLimitError
	assert.ErrorAs(t, err, &rl)
}

// ============================================================================
// ForgotPassword Tests
// ============================================================================

func TestAuthService_ForgotPassword_Success(t *testing.T) {
	user := NewTestUser("user123", "user@example.com", "someuser")

	var sentPurpose string
	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
		email: &MockEmailService{
			SendOTPFunc: func(ctx context.Context, email, code, purpose, requesterIP string) error {
				sentPurpose = purpose
				return nil
			},
		},
	}

	svc := newTestAuthService(deps)

	require.NoError(t, svc.ForgotPassword(context.Background(), "user@example.com", "203.0.113.7"))
	assert.Equal(t, models.OTPPurposeReset, sentPurpose)
}

func TestAuthService_ForgotPassword_UnknownEmail(t *testing.T) {
	svc := newTestAuthService(&authServiceDeps{})

	err := svc.ForgotPassword(context.Background(), "ghost@example.com", "203.0.113.7")

	assert.ErrorIs(t, err, models.ErrNoSuchEmail)
}

func TestAuthService_ForgotPassword_UnverifiedEmail(t *testing.T) {
	user := NewTestUserUnverified("user123", "user@example.com", "someuser", "hash")

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	err := svc.ForgotPassword(context.Background(), "user@example.com", "203.0.113.7")

	assert.ErrorIs(t, err, models.ErrEmailNotVerified)
}

// ============================================================================
// ResetPassword Tests
// ============================================================================

func TestAuthService_ResetPassword_Success(t *testing.T) {
	hash := mustHash(t, "OldPassword1")
	user := NewTestUserWithPassword("user123", "user@example.com", "someuser", hash)

	var newHash string
	var otpDeleted bool
	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
			UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string) error {
				newHash = passwordHash
				return nil
			},
		},
		otps: &MockOTPRepository{
			GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
				return NewTestOTP("otp1", email, "123456", purpose), nil
			},
			DeleteFunc: func(ctx context.Context, id string) error {
				otpDeleted = true
				return nil
			},
		},
	}

	svc := newTestAuthService(deps)

	err := svc.ResetPassword(context.Background(), "user@example.com", "123456", "NewPassword1")

	require.NoError(t, err)
	assert.True(t, otpDeleted)
	assert.NotEmpty(t, newHash)
	assert.NotEqual(t, hash, newHash)
}

func TestAuthService_ResetPassword_PolicyCheckedBeforeConsumingCode(t *testing.T) {
	user := NewTestUserWithPassword("user123", "user@example.com", "someuser", "hash")

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
		otps: &MockOTPRepository{
			GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
				t.Fatal("a weak password must not touch the otp record")
				return nil, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	err := svc.ResetPassword(context.Background(), "user@example.com", "123456", "weak")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrOTPExpired)
}

func TestAuthService_ResetPassword_SamePasswordRejectedAfterConsume(t *testing.T) {
	hash := mustHash(t, "SamePassword1")
	user := NewTestUserWithPassword("user123", "user@example.com", "someuser", hash)

	var otpDeleted bool
	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
		otps: &MockOTPRepository{
			GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
				return NewTestOTP("otp1", email, "123456", purpose), nil
			},
			DeleteFunc: func(ctx context.Context, id string) error {
				otpDeleted = true
				return nil
			},
		},
	}

	svc := newTestAuthService(deps)

	err := svc.ResetPassword(context.Background(), "user@example.com", "123456", "SamePassword1")

	assert.ErrorIs(t, err, models.ErrSamePassword)
	// The code is spent either way.
	assert.True(t, otpDeleted)
}

func TestAuthService_ResetPassword_ConsumedCodeCannotBeReplayed(t *testing.T) {
	hash := mustHash(t, "OldPassword1")
	user := NewTestUserWithPassword("user123", "user@example.com", "someuser", hash)

	otpGone := false
	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
		otps: &MockOTPRepository{
			GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
				if otpGone {
					return nil, models.ErrNotFound
				}
				return NewTestOTP("otp1", email, "123456", purpose), nil
			},
			DeleteFunc: func(ctx context.Context, id string) error {
				otpGone = true
				return nil
			},
		},
	}

	svc := newTestAuthService(deps)

	require.NoError(t, svc.ResetPassword(context.Background(), "user@example.com", "123456", "NewPassword1"))

	err := svc.ResetPassword(context.Background(), "user@example.com", "123456", "AnotherPassword1")
	assert.ErrorIs(t, err, models.ErrOTPExpired)
}

// ============================================================================
// ChangePassword / SetPassword Tests
// ============================================================================

func TestAuthService_ChangePassword_Success(t *testing.T) {
	hash := mustHash(t, "OldPassword1")
	user := NewTestUserWithPassword("user123", "user@example.com", "someuser", hash)

	var updated bool
	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
				return user, nil
			},
			UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string) error {
				updated = true
				return nil
			},
		},
	}

	svc := newTestAuthService(deps)

	require.NoError(t, svc.ChangePassword(context.Background(), "user123", "OldPassword1", "NewPassword1"))
	assert.True(t, updated)
}

func TestAuthService_ChangePassword_WrongCurrentPassword(t *testing.T) {
	hash := mustHash(t, "OldPassword1")
	user := NewTestUserWithPassword("user123", "user@example.com", "someuser", hash)

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
				return user, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	err := svc.ChangePassword(context.Background(), "user123", "wrong", "NewPassword1")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAuthService_ChangePassword_SamePassword(t *testing.T) {
	hash := mustHash(t, "OldPassword1")
	user := NewTestUserWithPassword("user123", "user@example.com", "someuser", hash)

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
				return user, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	err := svc.ChangePassword(context.Background(), "user123", "OldPassword1", "OldPassword1")
	assert.ErrorIs(t, err, models.ErrSamePassword)
}

func TestAuthService_ChangePassword_FederatedAccount(t *testing.T) {
	user := NewTestUserFederated("user123", "user@example.com", "someuser")

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
				return user, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	err := svc.ChangePassword(context.Background(), "user123", "anything", "NewPassword1")
	assert.ErrorIs(t, err, models.ErrNoLocalPassword)
}

func TestAuthService_SetPassword_FederatedSuccess(t *testing.T) {
	user := NewTestUserFederated("user123", "user@example.com", "someuser")

	var updated bool
	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
				return user, nil
			},
			UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string) error {
				updated = true
				return nil
			},
		},
	}

	svc := newTestAuthService(deps)

	require.NoError(t, svc.SetPassword(context.Background(), "user123", "NewPassword1"))
	assert.True(t, updated)
}

func TestAuthService_SetPassword_AlreadyHasLocalPassword(t *testing.T) {
	user := NewTestUserWithPassword("user123", "user@example.com", "someuser", "hash")

	deps := &authServiceDeps{
		users: &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
				return user, nil
			},
		},
	}

	svc := newTestAuthService(deps)

	err := svc.SetPassword(context.Background(), "user123", "NewPassword1")
	assert.ErrorIs(t, err, models.ErrHasLocalPassword)
}
