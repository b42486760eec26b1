package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-app/inkwell/internal/models"
)

func newTestOTPService(repo *MockOTPRepository) *OTPService {
	return NewOTPService(repo, slog.Default())
}

// ============================================================================
// Issue Tests
// ============================================================================

func TestOTPService_Issue_GeneratesSixDigitCode(t *testing.T) {
	var stored *models.OTP
	mockRepo := &MockOTPRepository{
		ReplaceFunc: func(ctx context.Context, otp *models.OTP) (*models.OTP, error) {
			stored = otp
			return otp, nil
		},
	}

	svc := newTestOTPService(mockRepo)

	code, err := svc.Issue(context.Background(), "User@Example.com", models.OTPPurposeSignup, "203.0.113.7")

	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9')
	}
	require.NotNil(t, stored)
	assert.Equal(t, "user@example.com", stored.Email)
	assert.Equal(t, code, stored.Code)
	assert.Equal(t, "203.0.113.7", stored.IssuerIP)
}

func TestOTPService_Issue_SupersedesPriorCode(t *testing.T) {
	replaceCalls := 0
	mockRepo := &MockOTPRepository{
		ReplaceFunc: func(ctx context.Context, otp *models.OTP) (*models.OTP, error) {
			replaceCalls++
			return otp, nil
		},
	}

	svc := newTestOTPService(mockRepo)

	first, err := svc.Issue(context.Background(), "user@example.com", models.OTPPurposeReset, "")
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), "user@example.com", models.OTPPurposeReset, "")
	require.NoError(t, err)

	// Re-issuance never fails; the repository replace is what invalidates
	// the earlier code.
	assert.Equal(t, 2, replaceCalls)
	assert.Len(t, first, 6)
	assert.Len(t, second, 6)
}

// ============================================================================
// Verify Tests
// ============================================================================

func TestOTPService_Verify_NoRecordReportsExpired(t *testing.T) {
	mockRepo := &MockOTPRepository{}

	svc := newTestOTPService(mockRepo)

	result, err := svc.Verify(context.Background(), "user@example.com", "123456", models.OTPPurposeSignup)

	require.NoError(t, err)
	assert.Equal(t, VerifyExpired, result)
}

func TestOTPService_Verify_ExpiredRecordDeletedOnAccess(t *testing.T) {
	deleted := ""
	mockRepo := &MockOTPRepository{
		GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
			return NewTestOTPExpired("otp1", email, "123456", purpose), nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}

	svc := newTestOTPService(mockRepo)

	result, err := svc.Verify(context.Background(), "user@example.com", "123456", models.OTPPurposeSignup)

	require.NoError(t, err)
	assert.Equal(t, VerifyExpired, result)
	assert.Equal(t, "otp1", deleted)
}

func TestOTPService_Verify_ExactTTLBoundaryIsExpired(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mockRepo := &MockOTPRepository{
		GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
			otp := NewTestOTP("otp1", email, "123456", purpose)
			otp.CreatedAt = created
			return otp, nil
		},
	}

	svc := newTestOTPService(mockRepo)
	svc.now = func() time.Time { return created.Add(models.OTPTTL) }

	result, err := svc.Verify(context.Background(), "user@example.com", "123456", models.OTPPurposeSignup)

	require.NoError(t, err)
	assert.Equal(t, VerifyExpired, result)
}

func TestOTPService_Verify_MismatchIncrementsAttempts(t *testing.T) {
	incremented := ""
	mockRepo := &MockOTPRepository{
		GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
			return NewTestOTP("otp1", email, "123456", purpose), nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, id string) (int, error) {
			incremented = id
			return 1, nil
		},
	}

	svc := newTestOTPService(mockRepo)

	result, err := svc.Verify(context.Background(), "user@example.com", "654321", models.OTPPurposeSignup)

	require.NoError(t, err)
	assert.Equal(t, VerifyMismatch, result)
	assert.Equal(t, "otp1", incremented)
}

func TestOTPService_Verify_ExhaustedRecordDeletedEvenWithCorrectCode(t *testing.T) {
	deleted := ""
	mockRepo := &MockOTPRepository{
		GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
			return NewTestOTPExhausted("otp1", email, "123456", purpose), nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}

	svc := newTestOTPService(mockRepo)

	result, err := svc.Verify(context.Background(), "user@example.com", "123456", models.OTPPurposeSignup)

	require.NoError(t, err)
	assert.Equal(t, VerifyExhausted, result)
	assert.Equal(t, "otp1", deleted)
}

func TestOTPService_Verify_SignupMatchConsumesRecord(t *testing.T) {
	deleted := ""
	mockRepo := &MockOTPRepository{
		GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
			return NewTestOTP("otp1", email, "123456", purpose), nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}

	svc := newTestOTPService(mockRepo)

	result, err := svc.Verify(context.Background(), "user@example.com", "123456", models.OTPPurposeSignup)

	require.NoError(t, err)
	assert.Equal(t, VerifyOK, result)
	assert.Equal(t, "otp1", deleted)
}

func TestOTPService_Verify_ResetMatchMarksVerifiedAndSpendsBudget(t *testing.T) {
	marked := ""
	deleted := false
	mockRepo := &MockOTPRepository{
		GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
			return NewTestOTP("otp1", email, "123456", purpose), nil
		},
		MarkVerifiedFunc: func(ctx context.Context, id string) error {
			marked = id
			return nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}

	svc := newTestOTPService(mockRepo)

	result, err := svc.Verify(context.Background(), "user@example.com", "123456", models.OTPPurposeReset)

	require.NoError(t, err)
	assert.Equal(t, VerifyOK, result)
	// The reset record survives for the final consuming step; the
	// successful check still counts against the attempt budget.
	assert.Equal(t, "otp1", marked)
	assert.False(t, deleted)
}

func TestOTPService_Verify_ThreeMismatchesThenCorrectCodeFails(t *testing.T) {
	otp := NewTestOTP("otp1", "user@example.com", "123456", models.OTPPurposeReset)
	deleted := false
	mockRepo := &MockOTPRepository{
		GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
			if deleted {
				return nil, models.ErrNotFound
			}
			return otp, nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, id string) (int, error) {
			otp.Attempts++
			return otp.Attempts, nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}

	svc := newTestOTPService(mockRepo)

	for i := 0; i < models.OTPMaxAttempts; i++ {
		result, err := svc.Verify(context.Background(), "user@example.com", "000000", models.OTPPurposeReset)
		require.NoError(t, err)
		assert.Equal(t, VerifyMismatch, result)
	}

	result, err := svc.Verify(context.Background(), "user@example.com", "123456", models.OTPPurposeReset)
	require.NoError(t, err)
	assert.Equal(t, VerifyExhausted, result)
	assert.True(t, deleted)
}

// ============================================================================
// ConsumeForReset Tests
// ============================================================================

func TestOTPService_ConsumeForReset_DeletesRecordOnSuccess(t *testing.T) {
	deleted := ""
	mockRepo := &MockOTPRepository{
		GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
			return NewTestOTP("otp1", email, "123456", purpose), nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}

	svc := newTestOTPService(mockRepo)

	ok, err := svc.ConsumeForReset(context.Background(), "user@example.com", "123456")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "otp1", deleted)
}

func TestOTPService_ConsumeForReset_DeletesRecordEvenOnMismatch(t *testing.T) {
	deleted := ""
	mockRepo := &MockOTPRepository{
		GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
			return NewTestOTP("otp1", email, "123456", purpose), nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}

	svc := newTestOTPService(mockRepo)

	ok, err := svc.ConsumeForReset(context.Background(), "user@example.com", "999999")

	require.NoError(t, err)
	assert.False(t, ok)
	// A failed final step still burns the record: the same code can never
	// be tried twice.
	assert.Equal(t, "otp1", deleted)
}

func TestOTPService_ConsumeForReset_ExpiredRecordRejected(t *testing.T) {
	mockRepo := &MockOTPRepository{
		GetFunc: func(ctx context.Context, email, purpose string) (*models.OTP, error) {
			return NewTestOTPExpired("otp1", email, "123456", purpose), nil
		},
	}

	svc := newTestOTPService(mockRepo)

	ok, err := svc.ConsumeForReset(context.Background(), "user@example.com", "123456")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOTPService_ConsumeForReset_NoRecord(t *testing.T) {
	mockRepo := &MockOTPRepository{}

	svc := newTestOTPService(mockRepo)

	ok, err := svc.ConsumeForReset(context.Background(), "user@example.com", "123456")

	require.NoError(t, err)
	assert.False(t, ok)
}
