package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/pkg/database"
)

var (
	// ErrEmailTaken is returned when users_email_key rejects an insert.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUserNotFound is returned when no user matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserOwnsAgency is returned when deleting a user that still owns an agency.
	ErrUserOwnsAgency = errors.New("user still owns an agency")
)

// NormalizeEmail lower-cases and trims an address. Emails are stored this way.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository handles user persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates an auth repository over a pool or a transaction.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, email, password_hash, full_name, email_verified_at, created_at, updated_at`

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email))
}

func (r *Repository) getOne(ctx context.Context, q string, arg any) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// EmailExists reports whether a user is registered under email.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, NormalizeEmail(email)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return ok, nil
}

// CreateUserParams holds the fields of a new account.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	FullName     string
	// VerifiedAt marks the address as verified, e.g. when the user proved
	// ownership by following an invitation link.
	VerifiedAt *time.Time
}

// Create inserts a new user. A duplicate email yields ErrEmailTaken.
func (r *Repository) Create(ctx context.Context, p CreateUserParams) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, full_name, email_verified_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	var u models.User
	err := r.db.QueryRow(ctx, q, NormalizeEmail(p.Email), p.PasswordHash, strings.TrimSpace(p.FullName), p.VerifiedAt).
		Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "users_email_key") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", database.MapError(err))
	}
	return &u, nil
}

// List returns all users with their global roles, for the admin console.
func (r *Repository) List(ctx context.Context) ([]models.UserPublic, error) {
	const q = `SELECT u.id, u.email, u.full_name, u.email_verified_at IS NOT NULL, u.created_at,
			COALESCE(array_agg(ur.role ORDER BY ur.role) FILTER (WHERE ur.role IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		GROUP BY u.id
		ORDER BY u.full_name, u.email`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	list := []models.UserPublic{}
	for rows.Next() {
		var u models.UserPublic
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.EmailVerified, &u.CreatedAt, &u.Roles); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// Delete removes the account. Memberships and roles go with it; owned
// agencies block the deletion.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrUserOwnsAgency
		}
		return fmt.Errorf("delete user: %w", database.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
