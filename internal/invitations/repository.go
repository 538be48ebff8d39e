package invitations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wondershark/backend/internal/agencies"
	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/internal/rbac"
	"github.com/wondershark/backend/pkg/database"
)

// Repository handles agency_invitations persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates an invitations repository over a pool or a transaction.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

const invitationColumns = `id, agency_id, invited_by, name, email, role, rights, token,
	expires_at, accepted_at, accepted_by, created_at, updated_at`

func scanInvitation(row pgx.Row) (*models.Invitation, error) {
	var inv models.Invitation
	err := row.Scan(&inv.ID, &inv.AgencyID, &inv.InvitedBy, &inv.Name, &inv.Email, &inv.Role, &inv.Rights, &inv.Token,
		&inv.ExpiresAt, &inv.AcceptedAt, &inv.AcceptedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Create inserts an invitation and fills its generated fields.
func (r *Repository) Create(ctx context.Context, inv *models.Invitation) error {
	const q = `INSERT INTO agency_invitations (agency_id, invited_by, name, email, role, rights, token, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	rights := inv.Rights
	if rights == nil {
		rights = []string{}
	}
	err := r.db.QueryRow(ctx, q, inv.AgencyID, inv.InvitedBy, inv.Name, inv.Email, inv.Role, rights, inv.Token, inv.ExpiresAt).
		Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "agency_invitations_token_key") {
			return ErrTokenTaken
		}
		return fmt.Errorf("create invitation: %w", database.MapError(err))
	}
	return nil
}

// GetByID returns an invitation by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM agency_invitations WHERE id = $1`, id)
}

// GetByToken returns an invitation by exact token match.
func (r *Repository) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM agency_invitations WHERE token = $1`, token)
}

func (r *Repository) getOne(ctx context.Context, q string, arg any) (*models.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRow(ctx, q, arg))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

// ListByAgency returns the agency's invitations, newest first.
func (r *Repository) ListByAgency(ctx context.Context, agencyID uuid.UUID) ([]*models.Invitation, error) {
	return r.list(ctx, `SELECT `+invitationColumns+` FROM agency_invitations WHERE agency_id = $1 ORDER BY created_at DESC`, agencyID)
}

// ListAll returns every invitation, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]*models.Invitation, error) {
	return r.list(ctx, `SELECT `+invitationColumns+` FROM agency_invitations ORDER BY created_at DESC`)
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]*models.Invitation, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()
	list := []*models.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

// HasPending implements Store.
func (r *Repository) HasPending(ctx context.Context, agencyID uuid.UUID, email string, now time.Time) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM agency_invitations
		WHERE agency_id = $1 AND email = $2 AND accepted_at IS NULL AND expires_at > $3)`
	var ok bool
	if err := r.db.QueryRow(ctx, q, agencyID, email, now).Scan(&ok); err != nil {
		return false, fmt.Errorf("check pending invitation: %w", err)
	}
	return ok, nil
}

// ExtendExpiry implements Store.
func (r *Repository) ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE agency_invitations SET expires_at = $2, updated_at = NOW()
		WHERE id = $1 AND accepted_at IS NULL`, id, expiresAt)
	if err != nil {
		return false, fmt.Errorf("extend invitation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeletePending implements Store.
func (r *Repository) DeletePending(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM agency_invitations WHERE id = $1 AND accepted_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("delete invitation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Claim implements AcceptTx. The conditional update is the compare-and-set:
// a concurrent claimer blocks on the row lock, then re-evaluates the WHERE
// clause against the committed row and matches nothing.
func (r *Repository) Claim(ctx context.Context, token string, now time.Time) (*models.Invitation, error) {
	q := `UPDATE agency_invitations SET accepted_at = $2, updated_at = $2
		WHERE token = $1 AND accepted_at IS NULL AND expires_at > $2
		RETURNING ` + invitationColumns
	inv, err := scanInvitation(r.db.QueryRow(ctx, q, token, now))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim invitation: %w", err)
	}
	return inv, nil
}

// MarkAcceptedBy implements AcceptTx.
func (r *Repository) MarkAcceptedBy(ctx context.Context, invitationID, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE agency_invitations SET accepted_by = $2 WHERE id = $1 AND accepted_at IS NOT NULL`, invitationID, userID)
	if err != nil {
		return fmt.Errorf("mark invitation accepted: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("mark invitation accepted: %w", ErrNotFound)
	}
	return nil
}

// AuthorizerFunc builds the role backend bound to a query surface, so role
// grants join the acceptance transaction.
type AuthorizerFunc func(db database.DBTX) rbac.Authorizer

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	*Repository
	pool  *pgxpool.Pool
	users *auth.Repository
	authz AuthorizerFunc
}

// NewPostgresStore creates a Store backed by pool. A nil authz uses the
// Postgres role tables.
func NewPostgresStore(pool *pgxpool.Pool, authz AuthorizerFunc) *PostgresStore {
	if authz == nil {
		authz = func(db database.DBTX) rbac.Authorizer { return rbac.NewPostgres(db) }
	}
	return &PostgresStore{Repository: NewRepository(pool), pool: pool, users: auth.NewRepository(pool), authz: authz}
}

// EmailRegistered implements Store.
func (s *PostgresStore) EmailRegistered(ctx context.Context, email string) (bool, error) {
	return s.users.EmailExists(ctx, email)
}

// WithTx implements Store.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx AcceptTx) error) error {
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgAcceptTx{
			Repository: NewRepository(tx),
			users:      auth.NewRepository(tx),
			agencies:   agencies.NewRepository(tx),
			authz:      s.authz(tx),
		})
	})
}

type pgAcceptTx struct {
	*Repository
	users    *auth.Repository
	agencies *agencies.Repository
	authz    rbac.Authorizer
}

func (t *pgAcceptTx) EmailRegistered(ctx context.Context, email string) (bool, error) {
	return t.users.EmailExists(ctx, email)
}

func (t *pgAcceptTx) CreateUser(ctx context.Context, p auth.CreateUserParams) (*models.User, error) {
	return t.users.Create(ctx, p)
}

func (t *pgAcceptTx) AssignRole(ctx context.Context, userID uuid.UUID, role string) error {
	return t.authz.AssignRole(ctx, userID, role)
}

func (t *pgAcceptTx) AddMember(ctx context.Context, m *models.AgencyMember) error {
	return t.agencies.AddMember(ctx, m)
}
