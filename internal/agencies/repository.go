package agencies

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/pkg/database"
)

var (
	ErrNotFound       = errors.New("agency not found")
	ErrMemberNotFound = errors.New("membership not found")
	ErrSlugTaken      = errors.New("an agency with this slug already exists")
	ErrAlreadyMember  = errors.New("user is already a member of this agency")
)

// Repository handles agency and agency_members persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates an agencies repository over a pool or a transaction.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

const agencyColumns = `a.id, a.name, a.slug, a.owner_id, COALESCE(a.logo_key, ''), a.created_at, a.updated_at`

func scanAgency(row interface{ Scan(...any) error }) (*models.Agency, error) {
	var a models.Agency
	if err := row.Scan(&a.ID, &a.Name, &a.Slug, &a.OwnerID, &a.LogoKey, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts an agency and fills its generated fields.
func (r *Repository) Create(ctx context.Context, a *models.Agency) error {
	const q = `INSERT INTO agencies (name, slug, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, q, a.Name, a.Slug, a.OwnerID).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "agencies_slug_key") {
			return ErrSlugTaken
		}
		return fmt.Errorf("create agency: %w", database.MapError(err))
	}
	return nil
}

// GetByID returns an agency by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Agency, error) {
	a, err := scanAgency(r.db.QueryRow(ctx, `SELECT `+agencyColumns+` FROM agencies a WHERE a.id = $1`, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get agency: %w", err)
	}
	return a, nil
}

// GetBySlug returns an agency by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Agency, error) {
	a, err := scanAgency(r.db.QueryRow(ctx, `SELECT `+agencyColumns+` FROM agencies a WHERE a.slug = $1`, slug))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get agency: %w", err)
	}
	return a, nil
}

// ListForUser returns agencies the user owns or belongs to.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Agency, error) {
	const q = `SELECT ` + agencyColumns + `
		FROM agencies a
		WHERE a.owner_id = $1
		   OR EXISTS (SELECT 1 FROM agency_members m WHERE m.agency_id = a.id AND m.user_id = $1)
		ORDER BY a.name`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list agencies: %w", err)
	}
	defer rows.Close()
	list := []*models.Agency{}
	for rows.Next() {
		a, err := scanAgency(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// SetLogoKey records the S3 key of the agency logo.
func (r *Repository) SetLogoKey(ctx context.Context, id uuid.UUID, key string) error {
	tag, err := r.db.Exec(ctx, `UPDATE agencies SET logo_key = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`, id, key)
	if err != nil {
		return fmt.Errorf("set logo key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMember inserts a membership. A second membership for the same user and
// agency yields ErrAlreadyMember.
func (r *Repository) AddMember(ctx context.Context, m *models.AgencyMember) error {
	const q = `INSERT INTO agency_members (agency_id, user_id, role, rights)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	rights := m.Rights
	if rights == nil {
		rights = []string{}
	}
	err := r.db.QueryRow(ctx, q, m.AgencyID, m.UserID, m.Role, rights).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "agency_members_agency_user_key") {
			return ErrAlreadyMember
		}
		return fmt.Errorf("add member: %w", database.MapError(err))
	}
	return nil
}

// GetMember returns the user's membership in the agency.
func (r *Repository) GetMember(ctx context.Context, agencyID, userID uuid.UUID) (*models.AgencyMember, error) {
	const q = `SELECT id, agency_id, user_id, role, rights, created_at, updated_at
		FROM agency_members WHERE agency_id = $1 AND user_id = $2`
	var m models.AgencyMember
	err := r.db.QueryRow(ctx, q, agencyID, userID).
		Scan(&m.ID, &m.AgencyID, &m.UserID, &m.Role, &m.Rights, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

// Member is a membership joined with the user's details.
type Member struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	Rights   []string  `json:"rights"`
	IsOwner  bool      `json:"is_owner"`
	AddedAt  time.Time `json:"added_at"`
}

// ListMembers returns members of an agency, oldest first.
func (r *Repository) ListMembers(ctx context.Context, agencyID uuid.UUID) ([]Member, error) {
	const q = `SELECT m.id, m.user_id, u.email, u.full_name, m.role, m.rights, m.user_id = a.owner_id, m.created_at
		FROM agency_members m
		INNER JOIN users u ON u.id = m.user_id
		INNER JOIN agencies a ON a.id = m.agency_id
		WHERE m.agency_id = $1
		ORDER BY m.created_at ASC`
	rows, err := r.db.Query(ctx, q, agencyID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	list := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.UserID, &m.Email, &m.FullName, &m.Role, &m.Rights, &m.IsOwner, &m.AddedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// RemoveMember deletes the membership row only. The user account is untouched.
func (r *Repository) RemoveMember(ctx context.Context, agencyID, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM agency_members WHERE agency_id = $1 AND user_id = $2`, agencyID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// CountMemberships returns how many memberships with the given role the user holds.
func (r *Repository) CountMemberships(ctx context.Context, userID uuid.UUID, role string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM agency_members WHERE user_id = $1 AND role = $2`, userID, role).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count memberships: %w", err)
	}
	return n, nil
}
