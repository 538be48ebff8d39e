package invitations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/internal/policy"
	"github.com/wondershark/backend/pkg/passwords"
	"github.com/wondershark/backend/pkg/tokens"
	"github.com/wondershark/backend/pkg/validation"
)

// DefaultTTL is how long an invitation stays usable after issue or resend.
const DefaultTTL = 48 * time.Hour

// AcceptPath is the frontend route that renders the acceptance page.
const AcceptPath = "/agency/invitation/accept/"

// tokenAttempts bounds retries on the practically impossible token collision.
const tokenAttempts = 3

// Agencies resolves the agency an invitation belongs to.
type Agencies interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Agency, error)
	LogoURL(ctx context.Context, agency *models.Agency) string
}

// Config holds invitation settings.
type Config struct {
	// BaseURL is the public frontend origin used in acceptance links.
	BaseURL string
	TTL     time.Duration
}

// Service implements the invitation lifecycle.
type Service struct {
	store    Store
	agencies Agencies
	notifier Notifier
	cfg      Config
	logger   *zap.Logger

	now      func() time.Time
	newToken func() (string, error)
}

// NewService creates the invitation service.
func NewService(store Store, agencies Agencies, notifier Notifier, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{
		store:    store,
		agencies: agencies,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newToken: tokens.New,
	}
}

// AcceptURL returns the link mailed to the invitee.
func (s *Service) AcceptURL(token string) string {
	return s.cfg.BaseURL + AcceptPath + url.PathEscape(token)
}

// IssueInput is the data for a new invitation.
type IssueInput struct {
	Name   string   `json:"name" validate:"required,max=255"`
	Email  string   `json:"email" validate:"required,email,max=254"`
	Role   string   `json:"role" validate:"required,oneof=agency_member"`
	Rights []string `json:"rights"`
}

// Issue creates an invitation and notifies the invitee. When only the
// notification fails, the created invitation is returned together with
// ErrDeliveryFailed; it can be resent later.
func (s *Service) Issue(ctx context.Context, actor policy.Actor, agency *models.Agency, in IssueInput) (*models.Invitation, error) {
	if !policy.Can(actor, policy.ActionIssueInvitation, agency) {
		return nil, ErrForbidden
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Email = auth.NormalizeEmail(in.Email)
	if in.Role == "" {
		in.Role = models.RoleAgencyMember
	}
	fields := validation.Struct(in)
	if fields == nil {
		fields = map[string]string{}
	}
	rights, bad := models.NormalizeRights(in.Rights)
	if bad != "" {
		fields["rights"] = fmt.Sprintf("Unknown right %q.", bad)
	}
	if err := validation.NewError(fields); err != nil {
		return nil, err
	}

	now := s.now()
	registered, err := s.store.EmailRegistered(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if registered {
		return nil, validation.Field("email", ErrEmailRegistered.Error())
	}
	pending, err := s.store.HasPending(ctx, agency.ID, in.Email, now)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, validation.Field("email", ErrPendingExists.Error())
	}

	inviter := actor.UserID
	inv := &models.Invitation{
		AgencyID:  agency.ID,
		InvitedBy: &inviter,
		Name:      in.Name,
		Email:     in.Email,
		Role:      in.Role,
		Rights:    rights,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	for attempt := 1; ; attempt++ {
		if inv.Token, err = s.newToken(); err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}
		err = s.store.Create(ctx, inv)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrTokenTaken) || attempt == tokenAttempts {
			return nil, err
		}
	}
	s.logger.Info("invitation issued",
		zap.String("invitation_id", inv.ID.String()),
		zap.String("agency_id", agency.ID.String()),
		zap.String("invited_by", inviter.String()),
	)

	if err := s.notify(ctx, inv, agency, false); err != nil {
		return inv, err
	}
	return inv, nil
}

func (s *Service) notify(ctx context.Context, inv *models.Invitation, agency *models.Agency, resend bool) error {
	err := s.notifier.Notify(ctx, Notification{
		Invitation: inv,
		AgencyName: agency.Name,
		AcceptURL:  s.AcceptURL(inv.Token),
		Resend:     resend,
	})
	if err != nil {
		s.logger.Error("invitation delivery failed",
			zap.String("invitation_id", inv.ID.String()),
			zap.Bool("resend", resend),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

// View is what the acceptance page shows.
type View struct {
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	AgencyName         string    `json:"agency_name"`
	AgencyLogoURL      string    `json:"agency_logo_url,omitempty"`
	Role               string    `json:"role"`
	Rights             []string  `json:"rights"`
	ExpiresAt          time.Time `json:"expires_at"`
	ExpiresAtFormatted string    `json:"expires_at_formatted"`
}

// Inspect validates token and returns the acceptance page data. Terminal
// states return their state error.
func (s *Service) Inspect(ctx context.Context, token string) (*View, error) {
	inv, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := Classify(inv, s.now()).Err(); err != nil {
		return nil, err
	}
	agency, err := s.agencies.Get(ctx, inv.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("load agency: %w", err)
	}
	return &View{
		Name:               inv.Name,
		Email:              inv.Email,
		AgencyName:         agency.Name,
		AgencyLogoURL:      s.agencies.LogoURL(ctx, agency),
		Role:               inv.Role,
		Rights:             inv.Rights,
		ExpiresAt:          inv.ExpiresAt,
		ExpiresAtFormatted: FormatExpiry(inv.ExpiresAt),
	}, nil
}

// lookup returns the invitation for token, nil when there is none.
func (s *Service) lookup(ctx context.Context, token string) (*models.Invitation, error) {
	if token == "" {
		return nil, nil
	}
	inv, err := s.store.GetByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return inv, err
}

// AcceptInput is the acceptance form.
type AcceptInput struct {
	Token                string `json:"token"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// AcceptResult is the account created by an acceptance.
type AcceptResult struct {
	User       *models.User
	Membership *models.AgencyMember
	Invitation *models.Invitation
	Roles      []string
}

// Accept turns a valid invitation into an account and a membership. Claiming
// the invitation, creating the user, granting the role, inserting the
// membership and recording who accepted all commit together or not at all.
// Of two concurrent acceptances of one token exactly one succeeds; the other
// gets ErrAlreadyAccepted. A dead link reports its state before any
// password error.
func (s *Service) Accept(ctx context.Context, in AcceptInput) (*AcceptResult, error) {
	if in.Token == "" {
		return nil, ErrInvalidLink
	}
	now := s.now()
	current, err := s.lookup(ctx, in.Token)
	if err != nil {
		return nil, err
	}
	if err := Classify(current, now).Err(); err != nil {
		return nil, err
	}
	if err := passwords.Validate(in.Password, in.PasswordConfirmation); err != nil {
		return nil, validation.Field("password", err.Error())
	}
	hash, err := passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var res AcceptResult
	err = s.store.WithTx(ctx, func(tx AcceptTx) error {
		inv, err := tx.Claim(ctx, in.Token, now)
		if err != nil {
			return err
		}
		if inv == nil {
			current, err := tx.GetByToken(ctx, in.Token)
			switch {
			case errors.Is(err, ErrNotFound):
				current = nil
			case err != nil:
				return err
			}
			if stErr := Classify(current, now).Err(); stErr != nil {
				return stErr
			}
			return ErrInvalidLink
		}

		taken, err := tx.EmailRegistered(ctx, inv.Email)
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailRegistered
		}
		user, err := tx.CreateUser(ctx, auth.CreateUserParams{
			Email:        inv.Email,
			PasswordHash: hash,
			FullName:     inv.Name,
			VerifiedAt:   &now,
		})
		if err != nil {
			if errors.Is(err, auth.ErrEmailTaken) {
				return ErrEmailRegistered
			}
			return err
		}
		if err := tx.AssignRole(ctx, user.ID, inv.Role); err != nil {
			return err
		}
		member := &models.AgencyMember{
			AgencyID: inv.AgencyID,
			UserID:   user.ID,
			Role:     inv.Role,
			Rights:   slices.Clone(inv.Rights),
		}
		if err := tx.AddMember(ctx, member); err != nil {
			return err
		}
		if err := tx.MarkAcceptedBy(ctx, inv.ID, user.ID); err != nil {
			return err
		}
		inv.AcceptedBy = &user.ID
		res = AcceptResult{User: user, Membership: member, Invitation: inv, Roles: []string{inv.Role}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invitation accepted",
		zap.String("invitation_id", res.Invitation.ID.String()),
		zap.String("agency_id", res.Invitation.AgencyID.String()),
		zap.String("user_id", res.User.ID.String()),
	)
	return &res, nil
}

// find loads an invitation of agency by ID.
func (s *Service) find(ctx context.Context, agency *models.Agency, id uuid.UUID) (*models.Invitation, error) {
	inv, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.AgencyID != agency.ID {
		return nil, ErrNotFound
	}
	return inv, nil
}

// Resend extends the expiry to now+TTL, never shortening it, then notifies
// again. The extension is committed before sending and is kept when the
// notification fails.
func (s *Service) Resend(ctx context.Context, actor policy.Actor, agency *models.Agency, id uuid.UUID) (*models.Invitation, error) {
	if !policy.Can(actor, policy.ActionResendInvitation, agency) {
		return nil, ErrForbidden
	}
	inv, err := s.find(ctx, agency, id)
	if err != nil {
		return nil, err
	}
	if inv.IsAccepted() {
		return nil, ErrResendAccepted
	}

	expiresAt := s.now().Add(s.cfg.TTL)
	if inv.ExpiresAt.After(expiresAt) {
		expiresAt = inv.ExpiresAt
	}
	ok, err := s.store.ExtendExpiry(ctx, inv.ID, expiresAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrResendAccepted
	}
	inv.ExpiresAt = expiresAt
	s.logger.Info("invitation resent", zap.String("invitation_id", inv.ID.String()), zap.Time("expires_at", expiresAt))

	if err := s.notify(ctx, inv, agency, true); err != nil {
		return inv, err
	}
	return inv, nil
}

// Cancel deletes a pending invitation. Accepted invitations are kept.
func (s *Service) Cancel(ctx context.Context, actor policy.Actor, agency *models.Agency, id uuid.UUID) error {
	if !policy.Can(actor, policy.ActionCancelInvitation, agency) {
		return ErrForbidden
	}
	inv, err := s.find(ctx, agency, id)
	if err != nil {
		return err
	}
	if inv.IsAccepted() {
		return ErrDeleteAccepted
	}
	ok, err := s.store.DeletePending(ctx, inv.ID)
	if err != nil {
		return err
	}
	if !ok {
		// Accepted or deleted since the read above.
		if _, err := s.store.GetByID(ctx, inv.ID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrDeleteAccepted
	}
	s.logger.Info("invitation cancelled", zap.String("invitation_id", inv.ID.String()), zap.String("by", actor.UserID.String()))
	return nil
}

// Summary is an invitation with its current state.
type Summary struct {
	*models.Invitation
	State State `json:"state"`
}

func (s *Service) summarize(list []*models.Invitation) []Summary {
	now := s.now()
	out := make([]Summary, 0, len(list))
	for _, inv := range list {
		out = append(out, Summary{Invitation: inv, State: Classify(inv, now)})
	}
	return out
}

// List returns the agency's invitations.
func (s *Service) List(ctx context.Context, actor policy.Actor, agency *models.Agency) ([]Summary, error) {
	if !policy.Can(actor, policy.ActionViewInvitations, agency) {
		return nil, ErrForbidden
	}
	list, err := s.store.ListByAgency(ctx, agency.ID)
	if err != nil {
		return nil, err
	}
	return s.summarize(list), nil
}

// ListAll returns every invitation, for the admin console.
func (s *Service) ListAll(ctx context.Context) ([]Summary, error) {
	list, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.summarize(list), nil
}
