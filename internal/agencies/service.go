// Package agencies manages tenants, their memberships and branding.
package agencies

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/internal/policy"
	"github.com/wondershark/backend/pkg/passwords"
	"github.com/wondershark/backend/pkg/storage"
	"github.com/wondershark/backend/pkg/validation"
)

var (
	ErrForbidden          = errors.New("you are not allowed to perform this action")
	ErrOwnerNotRemovable  = errors.New("the agency owner cannot be removed")
	ErrLogoStorageOff     = errors.New("logo storage is not configured")
	ErrEmailAlreadyExists = errors.New("This email address is already registered.")
)

// Slug must be lowercase alphanumeric and hyphens only, 2-64 chars.
var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a slug from an agency name.
func Slugify(name string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	s = strings.Trim(s, "-")
	if len(s) > 64 {
		s = strings.TrimRight(s[:64], "-")
	}
	return s
}

// LogoStore presigns browser uploads and downloads of agency logos.
type LogoStore interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	PresignExpire() time.Duration
	ObjectExists(ctx context.Context, key string) (bool, error)
}

// Service implements agency operations.
type Service struct {
	store  Store
	logos  LogoStore
	logger *zap.Logger
}

// NewService creates the agency service. logos may be nil when S3 is not configured.
func NewService(store Store, logos LogoStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logos: logos, logger: logger}
}

// CreateInput is the data for a new agency.
type CreateInput struct {
	Name string `json:"name" validate:"required,max=255"`
	Slug string `json:"slug"`
}

// Create makes ownerID the owner of a new agency: the agency row, an owner
// membership with every right and the agency_owner role commit together.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*models.Agency, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if in.Slug == "" {
		in.Slug = Slugify(in.Name)
	}
	fields := validation.Struct(in)
	if _, bad := fields["name"]; !bad && !slugRegex.MatchString(in.Slug) {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["slug"] = "The slug must be 2-64 characters: lowercase letters, numbers and hyphens."
	}
	if err := validation.NewError(fields); err != nil {
		return nil, err
	}

	agency := &models.Agency{Name: in.Name, Slug: in.Slug, OwnerID: ownerID}
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.CreateAgency(ctx, agency); err != nil {
			return err
		}
		owner := &models.AgencyMember{
			AgencyID: agency.ID,
			UserID:   ownerID,
			Role:     models.RoleAgencyOwner,
			Rights:   append([]string(nil), models.AllRights...),
		}
		if err := tx.AddMember(ctx, owner); err != nil {
			return err
		}
		return tx.AssignRole(ctx, ownerID, models.RoleAgencyOwner)
	})
	if err != nil {
		if errors.Is(err, ErrSlugTaken) {
			return nil, validation.Field("slug", ErrSlugTaken.Error())
		}
		return nil, fmt.Errorf("create agency: %w", err)
	}
	s.logger.Info("agency created", zap.String("agency_id", agency.ID.String()), zap.String("owner_id", ownerID.String()))
	return agency, nil
}

// Get returns an agency by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Agency, error) {
	return s.store.GetByID(ctx, id)
}

// GetMember returns the user's membership in the agency.
func (s *Service) GetMember(ctx context.Context, agencyID, userID uuid.UUID) (*models.AgencyMember, error) {
	return s.store.GetMember(ctx, agencyID, userID)
}

// ListForUser returns the agencies userID owns or belongs to.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Agency, error) {
	return s.store.ListForUser(ctx, userID)
}

// Actor resolves userID's standing in agency for policy checks.
func (s *Service) Actor(ctx context.Context, userID uuid.UUID, agency *models.Agency) (policy.Actor, error) {
	actor := policy.Actor{UserID: userID}
	m, err := s.store.GetMember(ctx, agency.ID, userID)
	switch {
	case err == nil:
		actor.Membership = m
	case errors.Is(err, ErrMemberNotFound):
	default:
		return actor, err
	}
	return actor, nil
}

// Members lists the agency's members.
func (s *Service) Members(ctx context.Context, actor policy.Actor, agency *models.Agency) ([]Member, error) {
	if !policy.Can(actor, policy.ActionViewAgency, agency) {
		return nil, ErrForbidden
	}
	return s.store.ListMembers(ctx, agency.ID)
}

// AddMemberInput creates an account with a known password and attaches it to
// the agency, bypassing the invitation flow.
type AddMemberInput struct {
	Name                 string   `json:"name" validate:"required,max=255"`
	Email                string   `json:"email" validate:"required,email,max=254"`
	Password             string   `json:"password"`
	PasswordConfirmation string   `json:"password_confirmation"`
	Rights               []string `json:"rights"`
}

// AddMember creates the user, grants agency_member and inserts the membership
// in one transaction.
func (s *Service) AddMember(ctx context.Context, actor policy.Actor, agency *models.Agency, in AddMemberInput) (*Member, error) {
	if !policy.Can(actor, policy.ActionManageMembers, agency) {
		return nil, ErrForbidden
	}
	in.Email = auth.NormalizeEmail(in.Email)
	fields := validation.Struct(in)
	if fields == nil {
		fields = map[string]string{}
	}
	if err := passwords.Validate(in.Password, in.PasswordConfirmation); err != nil {
		fields["password"] = err.Error()
	}
	rights, bad := models.NormalizeRights(in.Rights)
	if bad != "" {
		fields["rights"] = fmt.Sprintf("Unknown right %q.", bad)
	}
	if err := validation.NewError(fields); err != nil {
		return nil, err
	}

	hash, err := passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var member Member
	err = s.store.WithTx(ctx, func(tx Tx) error {
		taken, err := tx.EmailRegistered(ctx, in.Email)
		if err != nil {
			return err
		}
		if taken {
			return auth.ErrEmailTaken
		}
		user, err := tx.CreateUser(ctx, auth.CreateUserParams{Email: in.Email, PasswordHash: hash, FullName: in.Name})
		if err != nil {
			return err
		}
		if err := tx.AssignRole(ctx, user.ID, models.RoleAgencyMember); err != nil {
			return err
		}
		m := &models.AgencyMember{AgencyID: agency.ID, UserID: user.ID, Role: models.RoleAgencyMember, Rights: rights}
		if err := tx.AddMember(ctx, m); err != nil {
			return err
		}
		member = Member{
			ID: m.ID, UserID: user.ID, Email: user.Email, FullName: user.FullName,
			Role: m.Role, Rights: m.Rights, AddedAt: m.CreatedAt,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return nil, validation.Field("email", ErrEmailAlreadyExists.Error())
		}
		return nil, fmt.Errorf("add member: %w", err)
	}
	s.logger.Info("member added", zap.String("agency_id", agency.ID.String()), zap.String("user_id", member.UserID.String()))
	return &member, nil
}

// RemoveMember deletes the membership; the account survives. When it was the
// user's last member-role membership anywhere, the global agency_member role
// is revoked in the same transaction.
func (s *Service) RemoveMember(ctx context.Context, actor policy.Actor, agency *models.Agency, userID uuid.UUID) error {
	if !policy.Can(actor, policy.ActionManageMembers, agency) {
		return ErrForbidden
	}
	if userID == agency.OwnerID {
		return ErrOwnerNotRemovable
	}
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.RemoveMember(ctx, agency.ID, userID); err != nil {
			return err
		}
		left, err := tx.CountMemberships(ctx, userID, models.RoleAgencyMember)
		if err != nil {
			return err
		}
		if left > 0 {
			return nil
		}
		return tx.RevokeRole(ctx, userID, models.RoleAgencyMember)
	})
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return err
		}
		return fmt.Errorf("remove member: %w", err)
	}
	s.logger.Info("member removed", zap.String("agency_id", agency.ID.String()), zap.String("user_id", userID.String()))
	return nil
}

// LogoUploadInput describes the file the browser is about to upload.
type LogoUploadInput struct {
	FileName    string `json:"file_name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required"`
	Size        int64  `json:"size" validate:"required"`
}

// LogoUpload is a presigned PUT for a new agency logo.
type LogoUpload struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expires_in"`
}

// LogoUpload validates the file and presigns the upload. The agency keeps its
// current logo until ConfirmLogo is called with the returned key.
func (s *Service) LogoUpload(ctx context.Context, actor policy.Actor, agency *models.Agency, in LogoUploadInput) (*LogoUpload, error) {
	if !policy.Can(actor, policy.ActionManageBranding, agency) {
		return nil, ErrForbidden
	}
	if s.logos == nil {
		return nil, ErrLogoStorageOff
	}
	fields := validation.Struct(in)
	if fields == nil {
		fields = map[string]string{}
	}
	ext, ok := storage.LogoExtension(in.ContentType)
	if !ok {
		fields["content_type"] = "The logo must be a JPEG, PNG, WebP or SVG image."
	}
	if in.Size > storage.MaxLogoFileSize {
		fields["size"] = "The logo must not be larger than 2 MB."
	}
	if err := validation.NewError(fields); err != nil {
		return nil, err
	}

	key := storage.LogoKey(agency.ID.String(), uuid.NewString(), ext)
	url, err := s.logos.PresignUpload(ctx, key, in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("presign logo upload: %w", err)
	}
	return &LogoUpload{UploadURL: url, Key: key, ExpiresIn: int(s.logos.PresignExpire().Seconds())}, nil
}

// ConfirmLogoInput names an uploaded object to make the agency logo.
type ConfirmLogoInput struct {
	Key string `json:"key" validate:"required,max=1024"`
}

// ConfirmLogo makes key the agency logo once the browser upload has landed.
// It returns a presigned download URL for the new logo.
func (s *Service) ConfirmLogo(ctx context.Context, actor policy.Actor, agency *models.Agency, in ConfirmLogoInput) (string, error) {
	if !policy.Can(actor, policy.ActionManageBranding, agency) {
		return "", ErrForbidden
	}
	if s.logos == nil {
		return "", ErrLogoStorageOff
	}
	if err := validation.NewError(validation.Struct(in)); err != nil {
		return "", err
	}
	if !storage.IsLogoKey(agency.ID.String(), in.Key) {
		return "", validation.Field("key", "The logo key does not belong to this agency.")
	}
	ok, err := s.logos.ObjectExists(ctx, in.Key)
	if err != nil {
		return "", fmt.Errorf("check logo object: %w", err)
	}
	if !ok {
		return "", validation.Field("key", "The logo has not been uploaded yet.")
	}
	if err := s.store.SetLogoKey(ctx, agency.ID, in.Key); err != nil {
		return "", err
	}
	agency.LogoKey = in.Key
	s.logger.Info("agency logo updated", zap.String("agency_id", agency.ID.String()), zap.String("key", in.Key))
	return s.LogoURL(ctx, agency), nil
}

// LogoURL returns a presigned download URL for the agency logo, or "" when
// there is none or storage is off.
func (s *Service) LogoURL(ctx context.Context, agency *models.Agency) string {
	if s.logos == nil || agency == nil || agency.LogoKey == "" {
		return ""
	}
	url, err := s.logos.PresignDownload(ctx, agency.LogoKey)
	if err != nil {
		s.logger.Warn("presign logo download", zap.String("agency_id", agency.ID.String()), zap.Error(err))
		return ""
	}
	return url
}
