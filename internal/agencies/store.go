package agencies

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/internal/rbac"
	"github.com/wondershark/backend/pkg/database"
)

// Store is the persistence used by Service.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agency, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Agency, error)
	GetMember(ctx context.Context, agencyID, userID uuid.UUID) (*models.AgencyMember, error)
	ListMembers(ctx context.Context, agencyID uuid.UUID) ([]Member, error)
	SetLogoKey(ctx context.Context, id uuid.UUID, key string) error
	// WithTx runs fn in one transaction; any error rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of writes that must commit together when creating an agency
// or adding and removing members.
type Tx interface {
	CreateAgency(ctx context.Context, a *models.Agency) error
	AddMember(ctx context.Context, m *models.AgencyMember) error
	RemoveMember(ctx context.Context, agencyID, userID uuid.UUID) error
	CountMemberships(ctx context.Context, userID uuid.UUID, role string) (int, error)
	EmailRegistered(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, p auth.CreateUserParams) (*models.User, error)
	AssignRole(ctx context.Context, userID uuid.UUID, role string) error
	RevokeRole(ctx context.Context, userID uuid.UUID, role string) error
}

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	*Repository
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Repository: NewRepository(pool), pool: pool}
}

// WithTx implements Store.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{
			agencies: NewRepository(tx),
			users:    auth.NewRepository(tx),
			authz:    rbac.NewPostgres(tx),
		})
	})
}

type pgTx struct {
	agencies *Repository
	users    *auth.Repository
	authz    rbac.Authorizer
}

func (t *pgTx) CreateAgency(ctx context.Context, a *models.Agency) error {
	return t.agencies.Create(ctx, a)
}

func (t *pgTx) AddMember(ctx context.Context, m *models.AgencyMember) error {
	return t.agencies.AddMember(ctx, m)
}

func (t *pgTx) RemoveMember(ctx context.Context, agencyID, userID uuid.UUID) error {
	return t.agencies.RemoveMember(ctx, agencyID, userID)
}

func (t *pgTx) CountMemberships(ctx context.Context, userID uuid.UUID, role string) (int, error) {
	return t.agencies.CountMemberships(ctx, userID, role)
}

func (t *pgTx) EmailRegistered(ctx context.Context, email string) (bool, error) {
	return t.users.EmailExists(ctx, email)
}

func (t *pgTx) CreateUser(ctx context.Context, p auth.CreateUserParams) (*models.User, error) {
	return t.users.Create(ctx, p)
}

func (t *pgTx) AssignRole(ctx context.Context, userID uuid.UUID, role string) error {
	return t.authz.AssignRole(ctx, userID, role)
}

func (t *pgTx) RevokeRole(ctx context.Context, userID uuid.UUID, role string) error {
	return t.authz.RevokeRole(ctx, userID, role)
}
