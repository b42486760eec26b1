package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/inkwell-app/inkwell/internal/database"
	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/jackc/pgx/v5"
)

const otpColumns = `id, email, code, purpose, issuer_ip, attempts, verified, created_at`

// OTPRepository handles one-time passcode persistence
type OTPRepository struct {
	db *database.DB
}

func NewOTPRepository(db *database.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

func scanOTPRow(scanner rowScanner) (*models.OTP, error) {
	var otp models.OTP

	err := scanner.Scan(
		&otp.ID, &otp.Email, &otp.Code, &otp.Purpose,
		&otp.IssuerIP, &otp.Attempts, &otp.Verified, &otp.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &otp, nil
}

// Replace deletes any existing record for (email, purpose) and inserts the
// fresh one in a single transaction, so two concurrent issues leave exactly
// one live code (last write wins).
func (r *OTPRepository) Replace(ctx context.Context, otp *models.OTP) (*models.OTP, error) {
	otp.ID = uuid.New().String()
	otp.Email = strings.ToLower(otp.Email)

	query := `
		INSERT INTO otps (id, email, code, purpose, issuer_ip, attempts, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING ` + otpColumns

	var created *models.OTP
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM otps WHERE email = $1 AND purpose = $2`, otp.Email, otp.Purpose); err != nil {
			return database.MapPostgresError(err)
		}

		var err error
		created, err = scanOTPRow(tx.QueryRow(ctx, query,
			otp.ID, otp.Email, otp.Code, otp.Purpose,
			otp.IssuerIP, otp.Attempts, otp.Verified,
		))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace otp: %w", err)
	}

	return created, nil
}

// Get returns the record for (email, purpose) if one exists.
func (r *OTPRepository) Get(ctx context.Context, email, purpose string) (*models.OTP, error) {
	query := `SELECT ` + otpColumns + ` FROM otps WHERE email = $1 AND purpose = $2`

	return scanOTPRow(r.db.Pool.QueryRow(ctx, query, strings.ToLower(email), purpose))
}

// IncrementAttempts bumps the attempt counter and returns the new value.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	query := `UPDATE otps SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`

	var attempts int
	if err := r.db.Pool.QueryRow(ctx, query, id).Scan(&attempts); err != nil {
		return 0, database.MapPostgresError(err)
	}

	return attempts, nil
}

// MarkVerified sets the verified flag and bumps the attempt counter in one
// statement; the successful check still spends attempt budget.
func (r *OTPRepository) MarkVerified(ctx context.Context, id string) error {
	query := `UPDATE otps SET verified = TRUE, attempts = attempts + 1 WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Delete removes the record by id. Deleting an already-removed record is not
// an error: concurrent cleanup may get there first.
func (r *OTPRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM otps WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// DeleteDead purges records that are expired by time or exhausted by
// attempts. Called by the background cleanup manager.
func (r *OTPRepository) DeleteDead(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM otps
		WHERE created_at <= NOW() - make_interval(secs => $1)
		   OR attempts >= $2
	`

	result, err := r.db.Pool.Exec(ctx, query, models.OTPTTL.Seconds(), models.OTPMaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead otps: %w", err)
	}

	return result.RowsAffected(), nil
}
