package invitations

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/internal/models"
)

// Store is the invitation persistence used by Service.
type Store interface {
	// Create inserts inv. A token collision yields ErrTokenTaken.
	Create(ctx context.Context, inv *models.Invitation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	GetByToken(ctx context.Context, token string) (*models.Invitation, error)
	ListByAgency(ctx context.Context, agencyID uuid.UUID) ([]*models.Invitation, error)
	ListAll(ctx context.Context) ([]*models.Invitation, error)
	// HasPending reports whether the agency has an unaccepted, unexpired
	// invitation for email at now.
	HasPending(ctx context.Context, agencyID uuid.UUID, email string, now time.Time) (bool, error)
	EmailRegistered(ctx context.Context, email string) (bool, error)
	// ExtendExpiry sets expires_at if the invitation is still unaccepted and
	// reports whether it did.
	ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) (bool, error)
	// DeletePending deletes the invitation if it is still unaccepted and
	// reports whether it did.
	DeletePending(ctx context.Context, id uuid.UUID) (bool, error)
	// WithTx runs fn in one transaction; any error rolls everything back.
	WithTx(ctx context.Context, fn func(tx AcceptTx) error) error
}

// AcceptTx is the set of writes that turn an invitation into an account.
type AcceptTx interface {
	// Claim marks the invitation accepted at now if, and only if, it is
	// unaccepted and unexpired at now. It returns nil when nothing was claimed.
	Claim(ctx context.Context, token string, now time.Time) (*models.Invitation, error)
	GetByToken(ctx context.Context, token string) (*models.Invitation, error)
	EmailRegistered(ctx context.Context, email string) (bool, error)
	// CreateUser returns auth.ErrEmailTaken when the email is already in use.
	CreateUser(ctx context.Context, p auth.CreateUserParams) (*models.User, error)
	AssignRole(ctx context.Context, userID uuid.UUID, role string) error
	AddMember(ctx context.Context, m *models.AgencyMember) error
	MarkAcceptedBy(ctx context.Context, invitationID, userID uuid.UUID) error
}
