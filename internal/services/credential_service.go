package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/inkwell-app/inkwell/internal/models"
	pkgauth "github.com/inkwell-app/inkwell/pkg/auth"
)

// emailShape classifies identifiers; it is a shape test, not RFC validation.
var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CredentialConfig holds lockout tuning.
type CredentialConfig struct {
	MaxLoginFails   int           // failed attempts before lockout
	LockoutDuration time.Duration // window applied on the final failure
}

// CredentialService validates identifier+password pairs and maintains the
// lockout counters on the user record.
type CredentialService struct {
	users  UserRepository
	config CredentialConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(users UserRepository, config CredentialConfig, logger *slog.Logger) *CredentialService {
	return &CredentialService{
		users:  users,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Authenticate resolves the identifier (email shape or username), enforces
// the lockout window, verifies the password and maintains the failure
// counters. The not-found message discloses which field was searched but
// never whether a password would have matched; that asymmetry is deliberate.
func (s *CredentialService) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	var (
		user *models.User
		err  error
	)

	if emailShape.MatchString(identifier) {
		user, err = s.users.GetByEmail(ctx, identifier)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.ErrNoSuchEmail
			}
			return nil, fmt.Errorf("failed to look up user by email: %w", err)
		}
	} else {
		user, err = s.users.GetByUsername(ctx, identifier)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.ErrNoSuchUsername
			}
			return nil, fmt.Errorf("failed to look up user by username: %w", err)
		}
	}

	now := s.now()

	// A lockout window that has naturally expired resets the counters
	// before any password work.
	if user.BlockExpires != nil && !now.Before(*user.BlockExpires) {
		if err := s.users.UpdateLoginState(ctx, user.ID, 0, nil); err != nil {
			return nil, fmt.Errorf("failed to clear expired lockout: %w", err)
		}
		user.LoginAttempts = 0
		user.BlockExpires = nil
	}

	if user.IsLocked(now) {
		return nil, &models.AccountLockedError{RetryAfter: user.BlockExpires.Sub(now)}
	}

	// Unverified accounts still get a password check first, so a wrong
	// guesser learns nothing about verification status.
	if !user.EmailVerified {
		if pkgauth.ComparePassword(user.PasswordHash, password) != nil {
			return nil, models.ErrInvalidCredentials
		}
		return user, &models.VerificationRequiredError{Email: user.Email}
	}

	if pkgauth.ComparePassword(user.PasswordHash, password) != nil {
		attempts := user.LoginAttempts + 1

		if attempts >= s.config.MaxLoginFails {
			blockExpires := now.Add(s.config.LockoutDuration)
			if err := s.users.UpdateLoginState(ctx, user.ID, attempts, &blockExpires); err != nil {
				return nil, fmt.Errorf("failed to persist lockout: %w", err)
			}
			s.logger.Warn("account locked after repeated failures",
				slog.String("user_id", user.ID),
				slog.Int("attempts", attempts))
			return nil, &models.AccountLockedError{RetryAfter: s.config.LockoutDuration}
		}

		if err := s.users.UpdateLoginState(ctx, user.ID, attempts, nil); err != nil {
			return nil, fmt.Errorf("failed to persist login attempt: %w", err)
		}
		return nil, models.ErrInvalidCredentials
	}

	// Success resets the counters and clears any stale lock.
	if user.LoginAttempts > 0 || user.BlockExpires != nil {
		if err := s.users.UpdateLoginState(ctx, user.ID, 0, nil); err != nil {
			return nil, fmt.Errorf("failed to reset login attempts: %w", err)
		}
		user.LoginAttempts = 0
		user.BlockExpires = nil
	}

	return user, nil
}

// VerifyPassword confirms the given password against the user's current
// credential without touching the lockout counters.
func (s *CredentialService) VerifyPassword(ctx context.Context, userID, password string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !user.HasPassword() {
		return models.ErrNoLocalPassword
	}

	if pkgauth.ComparePassword(user.PasswordHash, password) != nil {
		return models.ErrInvalidCredentials
	}

	return nil
}
