package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inkwell-app/inkwell/internal/auth"
	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/inkwell-app/inkwell/internal/ratelimit"
	pkgauth "github.com/inkwell-app/inkwell/pkg/auth"
	pkglogger "github.com/inkwell-app/inkwell/pkg/logger"
)

// AuthResponse is returned by every flow that ends in a minted token.
type AuthResponse struct {
	Success bool               `json:"success"`
	Token   string             `json:"token"`
	User    *models.PublicUser `json:"user"`
}

// RegisterResult reports a completed registration. Delivered is false when
// the account was created but the OTP email could not be sent; the client
// is offered the resend path in that case.
type RegisterResult struct {
	Email     string
	Delivered bool
}

// RegisterInput carries the already shape-validated registration fields.
type RegisterInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Password  string
	Age       int
}

// AuthService orchestrates the authentication flows: login, registration
// with email verification, OTP resend, the three-step password reset, and
// the authenticated password operations. Each invocation is stateless; the
// only shared state is the rate limiters and the persistence layer.
type AuthService struct {
	users        UserRepository
	creds        *CredentialService
	otps         *OTPService
	tokens       TokenIssuer
	email        EmailService
	loginLimiter ratelimit.Limiter
	otpLimiter   ratelimit.Limiter
	timing       *auth.TimingDelay
	logger       *slog.Logger
	audit        *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users UserRepository,
	creds *CredentialService,
	otps *OTPService,
	tokens TokenIssuer,
	email EmailService,
	loginLimiter ratelimit.Limiter,
	otpLimiter ratelimit.Limiter,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		users:        users,
		creds:        creds,
		otps:         otps,
		tokens:       tokens,
		email:        email,
		loginLimiter: loginLimiter,
		otpLimiter:   otpLimiter,
		timing:       timing,
		logger:       logger,
		audit:        audit,
	}
}

// otpKey keys the send limiter by (purpose, email) so signup and reset
// budgets are independent.
func otpKey(purpose, email string) string {
	return purpose + ":" + strings.ToLower(email)
}

// Login authenticates an identifier+password pair and mints a bearer token.
// The limiter is consulted before any expensive work.
func (s *AuthService) Login(ctx context.Context, identifier, password, ip string) (*AuthResponse, error) {
	if res := s.loginLimiter.Consume(ip, 1); !res.Allowed {
		return nil, &models.RateLimitError{RetryAfter: res.RetryAfter}
	}

	user, err := s.creds.Authenticate(ctx, identifier, password)
	if err != nil {
		var vr *models.VerificationRequiredError
		if errors.As(err, &vr) {
			// Correct password against an unverified account: issue a
			// fresh signup code so the client can resume verification.
			// The send shares the resend budget for this email.
			if res := s.otpLimiter.Consume(otpKey(models.OTPPurposeSignup, vr.Email), 1); res.Allowed {
				s.sendOTP(ctx, vr.Email, models.OTPPurposeSignup, ip)
			}
			s.audit.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				UserID:        user.ID,
				Email:         vr.Email,
				IPAddress:     ip,
				FailureReason: "requires_verification",
			})
			return nil, err
		}

		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     ip,
			FailureReason: failureReason(err),
		})
		s.timing.Wait(false)
		return nil, err
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		s.logger.Error("failed to generate token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: ip,
		Success:   true,
	})

	return &AuthResponse{Success: true, Token: token, User: user.Public()}, nil
}

// Register creates an unverified account and issues the signup OTP. Email
// delivery failure does not roll back the account; it is reported through
// RegisterResult.Delivered so the handler can point at the resend path.
func (s *AuthService) Register(ctx context.Context, input RegisterInput, ip string) (*RegisterResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.ToLower(strings.TrimSpace(input.Username))

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email uniqueness: %w", err)
	}
	if existing != nil {
		// An unverified duplicate is reported distinctly: the right move
		// is to log in and resume verification, not to re-register.
		if existing.EmailVerified {
			return nil, models.ErrEmailTaken
		}
		return nil, models.ErrEmailTakenUnverified
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, models.ErrUsernameTaken
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to check username uniqueness: %w", err)
	}

	if res := s.otpLimiter.Consume(otpKey(models.OTPPurposeSignup, email), 1); !res.Allowed {
		return nil, &models.RateLimitError{RetryAfter: res.RetryAfter}
	}

	passwordHash, err := pkgauth.HashPassword(input.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		Name:         strings.TrimSpace(input.FirstName) + " " + strings.TrimSpace(input.LastName),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		AuthMethod:   models.AuthMethodLocal,
		Age:          input.Age,
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrEmailTaken
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAccountAction("user_registered", created.ID, ip, nil)

	delivered := s.sendOTP(ctx, email, models.OTPPurposeSignup, ip)

	return &RegisterResult{Email: email, Delivered: delivered}, nil
}

// VerifySignup checks a signup OTP; success flips the verification flag and
// mints a token immediately (auto-login after verification).
func (s *AuthService) VerifySignup(ctx context.Context, email, code string) (*AuthResponse, error) {
	result, err := s.otps.Verify(ctx, email, code, models.OTPPurposeSignup)
	if err != nil {
		s.logger.Error("signup verification check failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if result != VerifyOK {
		s.audit.LogOTPEvent("signup_verify", email, models.OTPPurposeSignup, "", false)
		return nil, otpResultError(result)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNoSuchEmail
		}
		return nil, fmt.Errorf("failed to load user for verification: %w", err)
	}

	if err := s.users.SetEmailVerified(ctx, user.ID, true); err != nil {
		s.logger.Error("failed to set email verified", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	user.EmailVerified = true

	token, err := s.tokens.Generate(user)
	if err != nil {
		s.logger.Error("failed to generate token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogOTPEvent("signup_verify", email, models.OTPPurposeSignup, "", true)

	return &AuthResponse{Success: true, Token: token, User: user.Public()}, nil
}

// ResendOTP re-issues a code for (email, purpose), superseding the previous
// one. The limiter is keyed by the pair.
func (s *AuthService) ResendOTP(ctx context.Context, email, purpose, ip string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNoSuchEmail
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	switch purpose {
	case models.OTPPurposeSignup:
		if user.EmailVerified {
			return fmt.Errorf("email is already verified: %w", models.ErrBadRequest)
		}
	case models.OTPPurposeReset:
		if !user.EmailVerified {
			return models.ErrEmailNotVerified
		}
	default:
		return fmt.Errorf("unknown otp purpose %q: %w", purpose, models.ErrBadRequest)
	}

	if res := s.otpLimiter.Consume(otpKey(purpose, email), 1); !res.Allowed {
		return &models.RateLimitError{RetryAfter: res.RetryAfter}
	}

	if !s.sendOTP(ctx, email, purpose, ip) {
		return models.ErrEmailDelivery
	}

	return nil
}

// ForgotPassword starts the reset flow: the account must already be email
// verified, and sends are rate limited per email.
func (s *AuthService) ForgotPassword(ctx context.Context, email, ip string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNoSuchEmail
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	if !user.EmailVerified {
		return models.ErrEmailNotVerified
	}

	if res := s.otpLimiter.Consume(otpKey(models.OTPPurposeReset, email), 1); !res.Allowed {
		return &models.RateLimitError{RetryAfter: res.RetryAfter}
	}

	if !s.sendOTP(ctx, email, models.OTPPurposeReset, ip) {
		return models.ErrEmailDelivery
	}

	return nil
}

// VerifyResetOTP is step two of the reset flow. A successful check marks
// the record verified and still spends attempt budget: the combined
// verify+reset budget is capped at three checks total.
func (s *AuthService) VerifyResetOTP(ctx context.Context, email, code string) error {
	result, err := s.otps.Verify(ctx, email, code, models.OTPPurposeReset)
	if err != nil {
		s.logger.Error("reset otp check failed", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogOTPEvent("reset_verify", email, models.OTPPurposeReset, "", result == VerifyOK)

	if result != VerifyOK {
		return otpResultError(result)
	}

	return nil
}

// ResetPassword finishes the reset flow. The OTP record is consumed
// unconditionally once the input passes the password policy: a second
// attempt with the same code always fails, even when this one did.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNoSuchEmail
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	// Policy failures are locally recoverable and checked before the code
	// is spent, so a typo in the new password does not burn the OTP.
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	ok, err := s.otps.ConsumeForReset(ctx, email, code)
	if err != nil {
		s.logger.Error("failed to consume reset otp", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !ok {
		return models.ErrOTPExpired
	}

	if user.HasPassword() && pkgauth.ComparePassword(user.PasswordHash, newPassword) == nil {
		return models.ErrSamePassword
	}

	passwordHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	// UpdatePassword also clears login_attempts and block_expires.
	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		s.logger.Error("failed to persist new password", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogPasswordChange(user.ID, "", true)

	return nil
}

// ChangePassword rotates an authenticated user's password after checking
// the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !user.HasPassword() {
		return models.ErrNoLocalPassword
	}

	if pkgauth.ComparePassword(user.PasswordHash, currentPassword) != nil {
		s.audit.LogPasswordChange(userID, "", false)
		return models.ErrInvalidCredentials
	}

	if currentPassword == newPassword {
		return models.ErrSamePassword
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	passwordHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return models.ErrInternalServer
	}

	s.audit.LogPasswordChange(userID, "", true)

	return nil
}

// SetPassword adds a local credential to a federated account. No current
// password exists to check; only the policy applies.
func (s *AuthService) SetPassword(ctx context.Context, userID, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if user.HasPassword() {
		return models.ErrHasLocalPassword
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	passwordHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return models.ErrInternalServer
	}

	s.audit.LogPasswordChange(userID, "", true)

	return nil
}

// VerifyPassword confirms the authenticated user's current password.
func (s *AuthService) VerifyPassword(ctx context.Context, userID, password string) error {
	return s.creds.VerifyPassword(ctx, userID, password)
}

// sendOTP issues and delivers a code, reporting delivery success. Issue or
// delivery failures are logged; the surrounding state change stands either
// way.
func (s *AuthService) sendOTP(ctx context.Context, email, purpose, ip string) bool {
	code, err := s.otps.Issue(ctx, email, purpose, ip)
	if err != nil {
		s.logger.Error("failed to issue otp",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("purpose", purpose),
			slog.Any("error", err))
		return false
	}

	if err := s.email.SendOTP(ctx, email, code, purpose, ip); err != nil {
		s.logger.Error("failed to deliver otp email",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("purpose", purpose),
			slog.Any("error", err))
		return false
	}

	s.audit.LogOTPEvent("otp_sent", email, purpose, ip, true)

	return true
}

// otpResultError maps a non-OK verification result onto the error taxonomy.
func otpResultError(result VerifyResult) error {
	switch result {
	case VerifyMismatch:
		return models.ErrOTPInvalid
	case VerifyExhausted:
		return models.ErrOTPExhausted
	default:
		return models.ErrOTPExpired
	}
}

// failureReason renders an authentication error for the audit log.
func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrNoSuchEmail), errors.Is(err, models.ErrNoSuchUsername):
		return "no_such_account"
	case errors.Is(err, models.ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		var locked *models.AccountLockedError
		if errors.As(err, &locked) {
			return "locked"
		}
		return "error"
	}
}
