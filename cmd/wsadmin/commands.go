package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wondershark/backend/config"
	"github.com/wondershark/backend/internal/agencies"
	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/internal/emaillogs"
	"github.com/wondershark/backend/internal/invitations"
	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/internal/policy"
	"github.com/wondershark/backend/internal/rbac"
	"github.com/wondershark/backend/pkg/database"
	"github.com/wondershark/backend/pkg/mailer"
	"github.com/wondershark/backend/pkg/passwords"
)

// Globals is shared by every command.
type Globals struct {
	Config *config.Config
	Logger *zap.Logger
}

func (g *Globals) connect(ctx context.Context) (*pgxpool.Pool, error) {
	return database.NewPostgresPool(ctx, g.Config.Database.DSN(), database.PoolOptions{MaxConns: 2}, g.Logger)
}

// MigrateCmd applies the embedded migrations.
type MigrateCmd struct{}

func (m *MigrateCmd) Run(ctx context.Context, g *Globals) error {
	pool, err := g.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool, g.Logger); err != nil {
		return err
	}
	fmt.Println("migrations applied")
	return nil
}

// CreateAgencyCmd seeds an agency. The owner account is created when the
// email is not registered yet.
type CreateAgencyCmd struct {
	Name          string `help:"Agency name" required:""`
	Slug          string `help:"URL slug (derived from the name when empty)"`
	OwnerEmail    string `help:"Owner email" required:""`
	OwnerName     string `help:"Owner full name, for a new account"`
	OwnerPassword string `help:"Owner password, for a new account" env:"WSADMIN_OWNER_PASSWORD"`
}

func (c *CreateAgencyCmd) Run(ctx context.Context, g *Globals) error {
	pool, err := g.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := auth.NewRepository(pool)
	owner, err := users.GetByEmail(ctx, c.OwnerEmail)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		if err := passwords.Validate(c.OwnerPassword, c.OwnerPassword); err != nil {
			return fmt.Errorf("owner password: %w", err)
		}
		hash, err := passwords.Hash(c.OwnerPassword)
		if err != nil {
			return err
		}
		name := c.OwnerName
		if name == "" {
			name = c.OwnerEmail
		}
		now := time.Now()
		owner, err = users.Create(ctx, auth.CreateUserParams{Email: c.OwnerEmail, PasswordHash: hash, FullName: name, VerifiedAt: &now})
		if err != nil {
			return fmt.Errorf("create owner: %w", err)
		}
		fmt.Printf("created owner account %s\n", owner.ID)
	case err != nil:
		return err
	}

	svc := agencies.NewService(agencies.NewPostgresStore(pool), nil, g.Logger)
	agency, err := svc.Create(ctx, owner.ID, agencies.CreateInput{Name: c.Name, Slug: c.Slug})
	if err != nil {
		return err
	}
	fmt.Printf("created agency %s (%s) owned by %s\n", agency.ID, agency.Slug, owner.Email)
	return nil
}

// InviteCmd issues an invitation on behalf of the agency owner and sends it
// directly through the configured mailer.
type InviteCmd struct {
	Agency string   `help:"Agency ID or slug" required:""`
	Name   string   `help:"Invitee name" required:""`
	Email  string   `help:"Invitee email" required:""`
	Rights []string `help:"Membership rights" sep:","`
}

func (c *InviteCmd) Run(ctx context.Context, g *Globals) error {
	pool, err := g.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	agencySvc := agencies.NewService(agencies.NewPostgresStore(pool), nil, g.Logger)
	agency, err := findAgency(ctx, pool, c.Agency)
	if err != nil {
		return err
	}

	sender, err := mailer.New(mailer.Config{
		FromAddress: g.Config.Email.FromAddress,
		FromName:    g.Config.Email.FromName,
		Host:        g.Config.Email.SMTPHost,
		Port:        g.Config.Email.SMTPPort,
		Username:    g.Config.Email.SMTPUser,
		Password:    g.Config.Email.SMTPPass,
	}, g.Logger)
	if err != nil {
		return err
	}
	notifier := invitations.NewDirectNotifier(emaillogs.NewRepository(pool), sender, g.Logger)
	svc := invitations.NewService(invitations.NewPostgresStore(pool, nil), agencySvc, notifier, invitations.Config{
		BaseURL: g.Config.App.BaseURL,
		TTL:     g.Config.App.InvitationTTL,
	}, g.Logger)

	inv, err := svc.Issue(ctx, policy.Actor{UserID: agency.OwnerID}, agency, invitations.IssueInput{
		Name:   c.Name,
		Email:  c.Email,
		Rights: c.Rights,
	})
	if inv == nil {
		return err
	}
	if err != nil {
		g.Logger.Warn("invitation created but not delivered", zap.Error(err))
	}
	fmt.Printf("invitation %s expires %s\n%s\n", inv.ID, invitations.FormatExpiry(inv.ExpiresAt), svc.AcceptURL(inv.Token))
	return nil
}

func findAgency(ctx context.Context, pool *pgxpool.Pool, ref string) (*models.Agency, error) {
	repo := agencies.NewRepository(pool)
	if id, err := uuid.Parse(ref); err == nil {
		return repo.GetByID(ctx, id)
	}
	return repo.GetBySlug(ctx, ref)
}

// GrantRoleCmd grants a global role.
type GrantRoleCmd struct {
	Email string `help:"User email" required:""`
	Role  string `help:"Role to grant" required:"" enum:"admin,agency_owner,agency_member"`
}

func (c *GrantRoleCmd) Run(ctx context.Context, g *Globals) error {
	pool, err := g.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	user, err := auth.NewRepository(pool).GetByEmail(ctx, c.Email)
	if err != nil {
		return err
	}
	authz := rbac.NewPostgres(pool)
	if err := authz.AssignRole(ctx, user.ID, c.Role); err != nil {
		return err
	}
	roles, err := authz.Roles(ctx, user.ID)
	if err != nil {
		return err
	}
	fmt.Printf("%s now holds %v\n", user.Email, roles)
	return nil
}
