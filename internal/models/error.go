package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication failures
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSuchEmail        = errors.New("no account found with this email")
	ErrNoSuchUsername     = errors.New("no account found with this username")

	// Account state
	ErrEmailNotVerified = errors.New("email address not verified")
	ErrNoLocalPassword  = errors.New("account has no local password")
	ErrHasLocalPassword = errors.New("account already has a local password")

	// Registration conflicts. An unverified duplicate is reported distinctly
	// so the client can resume verification instead of retrying signup.
	ErrEmailTaken           = errors.New("email is already registered")
	ErrEmailTakenUnverified = errors.New("email is registered but not verified")
	ErrUsernameTaken        = errors.New("username is already taken")

	// OTP verification outcomes
	ErrOTPInvalid   = errors.New("invalid verification code")
	ErrOTPExpired   = errors.New("verification code has expired, request a new one")
	ErrOTPExhausted = errors.New("too many incorrect attempts, request a new code")

	// Password policy / reset
	ErrSamePassword = errors.New("new password must differ from current password")

	// Infra
	ErrEmailDelivery = errors.New("failed to deliver email")
)

// AccountLockedError reports an active lockout window in whole minutes.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is temporarily locked, try again in %d minutes", e.Minutes())
}

// Minutes returns the remaining lockout rounded up to whole minutes.
func (e *AccountLockedError) Minutes() int {
	m := int((e.RetryAfter + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}

// VerificationRequiredError signals a correct password against an unverified
// account. Email is carried so the client can resume the OTP step.
type VerificationRequiredError struct {
	Email string
}

func (e *VerificationRequiredError) Error() string {
	return "email verification required"
}

func (e *VerificationRequiredError) Unwrap() error {
	return ErrEmailNotVerified
}

// RateLimitError reports an exhausted rate-limit bucket.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests, retry after %d seconds", e.Seconds())
}

// Seconds returns the retry-after hint rounded up to whole seconds.
func (e *RateLimitError) Seconds() int {
	s := int((e.RetryAfter + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// ValidationError carries field-level input failures.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}
