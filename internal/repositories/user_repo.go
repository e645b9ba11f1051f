package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, password_hash, name, role, totp_enabled, totp_secret, totp_nonce, totp_last_used_at, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning user rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Role,
		&user.TOTPEnabled, &user.TOTPSecret, &user.TOTPNonce, &user.TOTPLastUsedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, models.NormalizeEmail(email)))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	user.Email = models.NormalizeEmail(user.Email)

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = models.RoleUser
	}

	query := `
		INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Name, user.Role,
		user.CreatedAt, user.UpdatedAt,
	))
}

// SaveTOTPSecret stores a pending encrypted secret; 2FA stays disabled until enabled
func (r *UserRepository) SaveTOTPSecret(ctx context.Context, id string, secret, nonce []byte) error {
	query := `
		UPDATE users SET totp_secret = $1, totp_nonce = $2, totp_enabled = FALSE, totp_last_used_at = NULL, updated_at = NOW()
		WHERE id = $3
	`
	return r.execByID(ctx, query, secret, nonce, id)
}

// EnableTOTP turns on the second factor and records the verifying code's use
func (r *UserRepository) EnableTOTP(ctx context.Context, id string, usedAt time.Time) error {
	query := `
		UPDATE users SET totp_enabled = TRUE, totp_last_used_at = $1, updated_at = NOW()
		WHERE id = $2 AND totp_secret IS NOT NULL
	`
	return r.execByID(ctx, query, usedAt, id)
}

// MarkTOTPUsed records the last accepted code time for replay prevention
func (r *UserRepository) MarkTOTPUsed(ctx context.Context, id string, usedAt time.Time) error {
	query := `UPDATE users SET totp_last_used_at = $1 WHERE id = $2`
	return r.execByID(ctx, query, usedAt, id)
}

func (r *UserRepository) execByID(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
