package services

import (
	"context"
	"time"

	"github.com/inkwell-app/inkwell/internal/models"
)

// UserRepository defines the persistence operations the services need for
// user credential records. This subsystem never deletes users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateLoginState(ctx context.Context, id string, attempts int, blockExpires *time.Time) error
	SetEmailVerified(ctx context.Context, id string, verified bool) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// OTPRepository defines the persistence operations for one-time passcodes.
type OTPRepository interface {
	Replace(ctx context.Context, otp *models.OTP) (*models.OTP, error)
	Get(ctx context.Context, email, purpose string) (*models.OTP, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	MarkVerified(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// EmailService is the delivery contract: best-effort delivery of a code to
// an address, or an error the caller surfaces distinctly.
type EmailService interface {
	SendOTP(ctx context.Context, email, code, purpose, requesterIP string) error
}

// TokenIssuer mints bearer tokens for authenticated users.
type TokenIssuer interface {
	Generate(user *models.User) (string, error)
}
