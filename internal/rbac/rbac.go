// Package rbac grants and checks global roles and the permissions they carry.
// Agency-scoped rights live on memberships and are checked by package policy.
package rbac

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/pkg/database"
)

// Authorizer is the role/permission backend. The Postgres implementation is the
// default; anything satisfying this interface can replace it.
type Authorizer interface {
	AssignRole(ctx context.Context, userID uuid.UUID, role string) error
	RevokeRole(ctx context.Context, userID uuid.UUID, role string) error
	HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error)
	HasPermission(ctx context.Context, userID uuid.UUID, permission string) (bool, error)
	Roles(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// PermissionAdminConsole gates the platform admin endpoints.
const PermissionAdminConsole = "admin-console"

// KnownRoles lists the global roles in precedence order.
var KnownRoles = []string{models.RoleAdmin, models.RoleAgencyOwner, models.RoleAgencyMember}

// IsKnownRole reports whether role is a global role.
func IsKnownRole(role string) bool {
	return slices.Contains(KnownRoles, role)
}

// Postgres stores roles in user_roles and permissions in role_permissions.
type Postgres struct {
	db database.DBTX
}

// NewPostgres creates an Authorizer over a pool or a transaction.
func NewPostgres(db database.DBTX) *Postgres {
	return &Postgres{db: db}
}

// AssignRole grants role to the user. Granting a held role is a no-op.
func (p *Postgres) AssignRole(ctx context.Context, userID uuid.UUID, role string) error {
	if !IsKnownRole(role) {
		return fmt.Errorf("assign role %q: unknown role", role)
	}
	const q = `INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := p.db.Exec(ctx, q, userID, role); err != nil {
		return fmt.Errorf("assign role: %w", database.MapError(err))
	}
	return nil
}

// RevokeRole removes role from the user.
func (p *Postgres) RevokeRole(ctx context.Context, userID uuid.UUID, role string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, role); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return nil
}

// HasRole reports whether the user holds role.
func (p *Postgres) HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`
	var ok bool
	if err := p.db.QueryRow(ctx, q, userID, role).Scan(&ok); err != nil {
		return false, fmt.Errorf("has role: %w", err)
	}
	return ok, nil
}

// HasPermission reports whether any of the user's roles carries permission.
func (p *Postgres) HasPermission(ctx context.Context, userID uuid.UUID, permission string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM user_roles ur
		INNER JOIN role_permissions rp ON rp.role = ur.role
		WHERE ur.user_id = $1 AND rp.permission = $2)`
	var ok bool
	if err := p.db.QueryRow(ctx, q, userID, permission).Scan(&ok); err != nil {
		return false, fmt.Errorf("has permission: %w", err)
	}
	return ok, nil
}

// Roles returns the user's roles ordered by precedence.
func (p *Postgres) Roles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := p.db.Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortByPrecedence(roles)
	return roles, nil
}

// SortByPrecedence orders roles admin, agency_owner, agency_member, then unknown roles alphabetically.
func SortByPrecedence(roles []string) {
	rank := func(r string) int {
		if i := slices.Index(KnownRoles, r); i >= 0 {
			return i
		}
		return len(KnownRoles)
	}
	slices.SortStableFunc(roles, func(a, b string) int {
		ra, rb := rank(a), rank(b)
		if ra != rb {
			return ra - rb
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	})
}
