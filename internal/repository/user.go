package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/linkden/linkden/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
)

// CreateUser inserts a new user.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `
		SELECT id, email, password_hash, role, created_at, last_login_at
		FROM users
		WHERE id = $1
	`

	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetUserByEmail retrieves a user by case-folded email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `
		SELECT id, email, password_hash, role, created_at, last_login_at
		FROM users
		WHERE lower(email) = $1
	`

	return scanUser(r.pool.QueryRow(ctx, query, foldEmail(email)))
}

// UpsertUserByEmail creates or updates a user keyed by case-folded email.
// Used by admin provisioning; idempotent. The conflict target is the
// unique expression index on lower(email), making the upsert atomic.
func (r *Repository) UpsertUserByEmail(ctx context.Context, user *model.User) (created bool, err error) {
	query := `
		INSERT INTO users (id, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ((lower(email))) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role
		RETURNING id = $1
	`

	err = r.pool.QueryRow(ctx, query,
		user.ID,
		foldEmail(user.Email),
		user.PasswordHash,
		string(user.Role),
		user.CreatedAt,
	).Scan(&created)

	if err != nil {
		return false, fmt.Errorf("failed to upsert user: %w", err)
	}

	return created, nil
}

// scanUser scans a single user row.
func scanUser(row pgx.Row) (*model.User, error) {
	var (
		user model.User
		role string
	)

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Role = model.UserRole(role)
	return &user, nil
}

// foldEmail normalizes an email for case-insensitive comparison.
func foldEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
