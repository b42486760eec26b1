package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-app/inkwell/internal/database"
	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, name, username, email, password_hash, auth_method, email_verified, login_attempts, block_expires, age, about, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var passwordHash *string
	var blockExpires *time.Time

	err := scanner.Scan(
		&user.ID, &user.Name, &user.Username, &user.Email,
		&passwordHash, &user.AuthMethod, &user.EmailVerified,
		&user.LoginAttempts, &blockExpires,
		&user.Age, &user.About,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	user.BlockExpires = blockExpires

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`

	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1)`

	return scanUserRow(r.pool.QueryRow(ctx, query, username))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	user.Email = strings.ToLower(user.Email)
	user.Username = strings.ToLower(user.Username)

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.AuthMethod == "" {
		user.AuthMethod = models.AuthMethodLocal
	}

	query := `
		INSERT INTO users (id, name, username, email, password_hash, auth_method, email_verified, login_attempts, block_expires, age, about, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + userColumns

	var passwordHash *string
	if user.PasswordHash != "" {
		passwordHash = &user.PasswordHash
	}

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Name, user.Username, user.Email,
		passwordHash, user.AuthMethod, user.EmailVerified,
		user.LoginAttempts, user.BlockExpires,
		user.Age, user.About,
		user.CreatedAt, user.UpdatedAt,
	))
}

// UpdateLoginState persists the lockout counters. A nil blockExpires clears
// any existing lock.
func (r *UserRepository) UpdateLoginState(ctx context.Context, id string, attempts int, blockExpires *time.Time) error {
	query := `
		UPDATE users SET login_attempts = $1, block_expires = $2, updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.pool.Exec(ctx, query, attempts, blockExpires, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetEmailVerified flips the verification flag.
func (r *UserRepository) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	query := `UPDATE users SET email_verified = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, verified, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// UpdatePassword replaces the password hash and resets lockout counters in
// the same statement so a reset can never leave a stale lock behind.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $1, login_attempts = 0, block_expires = NULL, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.pool.Exec(ctx, query, passwordHash, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
