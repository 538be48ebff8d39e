package invitations

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondershark/backend/internal/agencies"
	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/pkg/response"
	"github.com/wondershark/backend/pkg/validation"
)

// Where the frontend goes after acceptance or a dead link.
const (
	RedirectAfterAccept = "/dashboard"
	RedirectDeadLink    = "/login"
)

// Handler handles invitation HTTP endpoints.
type Handler struct {
	svc      *Service
	sessions *auth.Sessions
	logger   *zap.Logger
}

// NewHandler creates an invitations handler.
func NewHandler(svc *Service, sessions *auth.Sessions, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, sessions: sessions, logger: logger}
}

// Show handles GET /agency/invitation/accept/:token.
func (h *Handler) Show(c *gin.Context) {
	view, err := h.svc.Inspect(c.Request.Context(), c.Param("token"))
	if err != nil {
		if status, ok := terminalStatus(err); ok {
			response.FailRedirect(c, status, err.Error(), RedirectDeadLink)
			return
		}
		h.logger.Error("inspect invitation", zap.Error(err))
		response.Internal(c, "failed to load invitation")
		return
	}
	response.OK(c, view)
}

// AcceptResponse is returned after a successful acceptance.
type AcceptResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Accept handles POST /agency/invitation/accept.
func (h *Handler) Accept(c *gin.Context) {
	var body AcceptInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	res, err := h.svc.Accept(c.Request.Context(), body)
	if err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			response.ValidationFailed(c, verr.Fields)
			return
		}
		if status, ok := terminalStatus(err); ok {
			response.FailRedirect(c, status, err.Error(), RedirectDeadLink)
			return
		}
		h.logger.Error("accept invitation", zap.Error(err))
		response.Internal(c, "failed to accept invitation")
		return
	}

	token, err := h.sessions.Issue(c, res.User, res.Roles)
	if err != nil {
		h.logger.Error("issue session after acceptance", zap.String("user_id", res.User.ID.String()), zap.Error(err))
		response.FlashRedirect(c, "Your account has been created. Please log in.", RedirectDeadLink, nil)
		return
	}
	response.FlashRedirect(c, "Welcome! Your account has been created.", RedirectAfterAccept,
		AcceptResponse{Token: token, User: res.User.ToPublic(res.Roles)})
}

// List handles GET /agencies/:id/invitations.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), agencies.ActorFrom(c), agencies.AgencyFrom(c))
	if err != nil {
		h.fail(c, err, "failed to load invitations")
		return
	}
	response.OK(c, list)
}

// ListAll handles GET /admin/invitations.
func (h *Handler) ListAll(c *gin.Context) {
	list, err := h.svc.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to load invitations")
		return
	}
	response.OK(c, list)
}

// Issue handles POST /agencies/:id/invitations.
func (h *Handler) Issue(c *gin.Context) {
	var body IssueInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	inv, err := h.svc.Issue(c.Request.Context(), agencies.ActorFrom(c), agencies.AgencyFrom(c), body)
	if err != nil {
		if inv != nil && errors.Is(err, ErrDeliveryFailed) {
			c.JSON(http.StatusBadGateway, response.Body{
				Success: false,
				Error:   ErrDeliveryFailed.Error(),
				Message: "Invitation created.",
				Data:    inv,
			})
			return
		}
		h.fail(c, err, "failed to create invitation")
		return
	}
	c.JSON(http.StatusCreated, response.Body{Success: true, Message: "Invitation sent.", Data: inv})
}

// Resend handles POST /agencies/:id/invitations/:invitationId/resend.
func (h *Handler) Resend(c *gin.Context) {
	id, err := uuid.Parse(c.Param("invitationId"))
	if err != nil {
		response.BadRequest(c, "invalid invitation id")
		return
	}
	inv, err := h.svc.Resend(c.Request.Context(), agencies.ActorFrom(c), agencies.AgencyFrom(c), id)
	if err != nil {
		h.fail(c, err, "failed to resend invitation")
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Message: "Invitation resent.", Data: inv})
}

// Cancel handles DELETE /agencies/:id/invitations/:invitationId.
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("invitationId"))
	if err != nil {
		response.BadRequest(c, "invalid invitation id")
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), agencies.ActorFrom(c), agencies.AgencyFrom(c), id); err != nil {
		h.fail(c, err, "failed to delete invitation")
		return
	}
	response.Flash(c, "Invitation deleted.")
}

// terminalStatus maps errors an invitee can hit on the acceptance page.
func terminalStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, ErrInvalidLink):
		return http.StatusNotFound, true
	case errors.Is(err, ErrExpired):
		return http.StatusGone, true
	case errors.Is(err, ErrAlreadyAccepted), errors.Is(err, ErrEmailRegistered):
		return http.StatusConflict, true
	}
	return 0, false
}

func (h *Handler) fail(c *gin.Context, err error, internal string) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		response.ValidationFailed(c, verr.Fields)
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "Invitation not found.")
	case errors.Is(err, ErrResendAccepted), errors.Is(err, ErrDeleteAccepted):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrDeliveryFailed):
		response.BadGateway(c, ErrDeliveryFailed.Error())
	default:
		h.logger.Error(internal, zap.Error(err))
		response.Internal(c, internal)
	}
}
