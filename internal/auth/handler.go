package auth

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/pkg/passwords"
	"github.com/wondershark/backend/pkg/response"
	"github.com/wondershark/backend/pkg/validation"
)

// UserStore is the user persistence used by the handlers.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, p CreateUserParams) (*models.User, error)
	List(ctx context.Context) ([]models.UserPublic, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RoleLister reads a user's global roles.
type RoleLister interface {
	Roles(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email,max=254"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users    UserStore
	roles    RoleLister
	sessions *Sessions
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users UserStore, roles RoleLister, sessions *Sessions, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, roles: roles, sessions: sessions, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	req.Email = NormalizeEmail(req.Email)

	fields := validation.Struct(req)
	if err := passwords.Validate(req.Password, req.PasswordConfirmation); err != nil {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["password"] = err.Error()
	}
	if fields != nil {
		response.ValidationFailed(c, fields)
		return
	}

	ctx := c.Request.Context()
	exists, err := h.users.EmailExists(ctx, req.Email)
	if err != nil {
		h.logger.Error("register: check email", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}
	if exists {
		response.Conflict(c, ErrEmailTaken.Error())
		return
	}

	hash, err := passwords.Hash(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}
	user, err := h.users.Create(ctx, CreateUserParams{Email: req.Email, PasswordHash: hash, FullName: req.Name})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			response.Conflict(c, ErrEmailTaken.Error())
			return
		}
		h.logger.Error("register: create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	token, err := h.sessions.Issue(c, user, nil)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic(nil)})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if fields := validation.Struct(req); fields != nil {
		response.ValidationFailed(c, fields)
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			h.logger.Error("login: get user", zap.Error(err))
		}
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !passwords.Check(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	roles, err := h.roles.Roles(ctx, user.ID)
	if err != nil {
		h.logger.Error("login: load roles", zap.Error(err))
		response.Internal(c, "failed to load roles")
		return
	}
	token, err := h.sessions.Issue(c, user, roles)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic(roles)})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	h.sessions.Clear(c)
	response.FlashRedirect(c, "You have been logged out.", "/login", nil)
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.users.GetByID(ctx, UserID(c))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.Unauthorized(c, "session user no longer exists")
			return
		}
		response.Internal(c, "failed to load user")
		return
	}
	roles, err := h.roles.Roles(ctx, user.ID)
	if err != nil {
		response.Internal(c, "failed to load roles")
		return
	}
	response.OK(c, user.ToPublic(roles))
}

// List handles GET /admin/users.
func (h *Handler) List(c *gin.Context) {
	list, err := h.users.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list users", zap.Error(err))
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, list)
}

// Delete handles DELETE /admin/users/:id. This is the only path that removes
// an account; removing a membership never does.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if id == UserID(c) {
		response.BadRequest(c, "you cannot delete your own account")
		return
	}
	switch err := h.users.Delete(c.Request.Context(), id); {
	case err == nil:
		h.logger.Info("user deleted", zap.String("user_id", id.String()), zap.String("by", UserID(c).String()))
		response.Flash(c, "User deleted.")
	case errors.Is(err, ErrUserNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrUserOwnsAgency):
		response.Conflict(c, "transfer or delete the user's agencies first")
	default:
		h.logger.Error("delete user", zap.Error(err))
		response.Internal(c, "failed to delete user")
	}
}
