package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/models"
	pkglogger "github.com/inkwell-app/inkwell/pkg/logger"
)

// VerifyResult is the outcome of a single OTP verification check.
type VerifyResult int

const (
	VerifyOK VerifyResult = iota
	VerifyMismatch
	VerifyExpired
	VerifyExhausted
)

func (r VerifyResult) String() string {
	switch r {
	case VerifyOK:
		return "ok"
	case VerifyMismatch:
		return "mismatch"
	case VerifyExpired:
		return "expired"
	case VerifyExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// OTPService manages the lifecycle of one-time passcodes: issue, verify,
// and the final consuming check of the password-reset flow.
type OTPService struct {
	repo   OTPRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewOTPService creates a new OTPService
func NewOTPService(repo OTPRepository, logger *slog.Logger) *OTPService {
	return &OTPService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Issue supersedes any prior code for (email, purpose) and returns a fresh
// uniformly random 6-digit code for delivery. Duplicate issuance never
// fails: last write wins and the old code stops being guessable as live.
func (s *OTPService) Issue(ctx context.Context, email, purpose, issuerIP string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}

	otp := &models.OTP{
		Email:    strings.ToLower(email),
		Code:     code,
		Purpose:  purpose,
		IssuerIP: issuerIP,
	}

	if _, err := s.repo.Replace(ctx, otp); err != nil {
		s.logger.Error("failed to persist otp",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("purpose", purpose),
			slog.Any("error", err))
		return "", fmt.Errorf("failed to persist otp: %w", err)
	}

	s.logger.Info("otp issued",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("purpose", purpose))

	return code, nil
}

// Verify performs one verification check against the live record for
// (email, purpose). Every check spends state: mismatches increment the
// attempt counter, a successful signup check deletes the record (single
// use), and a successful reset check marks it verified while still counting
// toward the attempt budget.
func (s *OTPService) Verify(ctx context.Context, email, code, purpose string) (VerifyResult, error) {
	otp, err := s.repo.Get(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return VerifyExpired, nil
		}
		return VerifyExpired, fmt.Errorf("failed to load otp: %w", err)
	}

	// Dead records are removed on access; the time bound is strict.
	if otp.IsExpired(s.now()) {
		if err := s.repo.Delete(ctx, otp.ID); err != nil {
			s.logger.Error("failed to delete expired otp", slog.Any("error", err))
		}
		return VerifyExpired, nil
	}

	if otp.IsExhausted() {
		if err := s.repo.Delete(ctx, otp.ID); err != nil {
			s.logger.Error("failed to delete exhausted otp", slog.Any("error", err))
		}
		return VerifyExhausted, nil
	}

	if otp.Code != code {
		if _, err := s.repo.IncrementAttempts(ctx, otp.ID); err != nil {
			return VerifyMismatch, fmt.Errorf("failed to record otp attempt: %w", err)
		}
		return VerifyMismatch, nil
	}

	switch purpose {
	case models.OTPPurposeSignup:
		// Signup codes are single-use: consumed on the spot.
		if err := s.repo.Delete(ctx, otp.ID); err != nil {
			return VerifyOK, fmt.Errorf("failed to consume otp: %w", err)
		}
	case models.OTPPurposeReset:
		// Reset codes are checked again at the final reset step. The
		// successful check still counts toward the attempt budget.
		if err := s.repo.MarkVerified(ctx, otp.ID); err != nil {
			return VerifyOK, fmt.Errorf("failed to mark otp verified: %w", err)
		}
	}

	return VerifyOK, nil
}

// ConsumeForReset is the final check of the password-reset flow. It requires
// a live, attempt-bounded record matching the code, and deletes the record
// unconditionally whenever one exists: a second attempt with the same code
// always fails, whatever the outcome here.
func (s *OTPService) ConsumeForReset(ctx context.Context, email, code string) (bool, error) {
	otp, err := s.repo.Get(ctx, email, models.OTPPurposeReset)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load otp: %w", err)
	}

	// The record's life ends on this call regardless of outcome.
	if err := s.repo.Delete(ctx, otp.ID); err != nil {
		return false, fmt.Errorf("failed to consume otp: %w", err)
	}

	if !otp.IsLive(s.now()) {
		return false, nil
	}

	if otp.Code != code {
		return false, nil
	}

	return true, nil
}

// generateCode draws a uniformly random 6-digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
