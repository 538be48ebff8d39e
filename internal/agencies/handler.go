package agencies

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/pkg/response"
	"github.com/wondershark/backend/pkg/validation"
)

// Handler handles agency HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an agencies handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// AgencyView is an agency with its presigned logo URL.
type AgencyView struct {
	*models.Agency
	LogoURL string `json:"logo_url,omitempty"`
}

// Create handles POST /agencies. The caller becomes the owner.
func (h *Handler) Create(c *gin.Context) {
	var body CreateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	agency, err := h.svc.Create(c.Request.Context(), auth.UserID(c), body)
	if err != nil {
		h.fail(c, err, "failed to create agency")
		return
	}
	response.Created(c, AgencyView{Agency: agency})
}

// ListMine handles GET /agencies.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.svc.ListForUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err, "failed to load agencies")
		return
	}
	views := make([]AgencyView, 0, len(list))
	for _, a := range list {
		views = append(views, AgencyView{Agency: a, LogoURL: h.svc.LogoURL(c.Request.Context(), a)})
	}
	response.OK(c, views)
}

// Show handles GET /agencies/:id.
func (h *Handler) Show(c *gin.Context) {
	agency := AgencyFrom(c)
	response.OK(c, AgencyView{Agency: agency, LogoURL: h.svc.LogoURL(c.Request.Context(), agency)})
}

// ListMembers handles GET /agencies/:id/members.
func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.svc.Members(c.Request.Context(), ActorFrom(c), AgencyFrom(c))
	if err != nil {
		h.fail(c, err, "failed to load members")
		return
	}
	response.OK(c, members)
}

// AddMember handles POST /agencies/:id/members.
func (h *Handler) AddMember(c *gin.Context) {
	var body AddMemberInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	member, err := h.svc.AddMember(c.Request.Context(), ActorFrom(c), AgencyFrom(c), body)
	if err != nil {
		h.fail(c, err, "failed to add member")
		return
	}
	response.Created(c, member)
}

// RemoveMember handles DELETE /agencies/:id/members/:userId.
func (h *Handler) RemoveMember(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.svc.RemoveMember(c.Request.Context(), ActorFrom(c), AgencyFrom(c), userID); err != nil {
		h.fail(c, err, "failed to remove member")
		return
	}
	response.Flash(c, "Member removed.")
}

// LogoUploadURL handles POST /agencies/:id/logo/upload-url.
func (h *Handler) LogoUploadURL(c *gin.Context) {
	var body LogoUploadInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	upload, err := h.svc.LogoUpload(c.Request.Context(), ActorFrom(c), AgencyFrom(c), body)
	if err != nil {
		h.fail(c, err, "failed to prepare logo upload")
		return
	}
	response.OK(c, upload)
}

// ConfirmLogo handles POST /agencies/:id/logo.
func (h *Handler) ConfirmLogo(c *gin.Context) {
	var body ConfirmLogoInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	url, err := h.svc.ConfirmLogo(c.Request.Context(), ActorFrom(c), AgencyFrom(c), body)
	if err != nil {
		h.fail(c, err, "failed to update logo")
		return
	}
	response.OK(c, gin.H{"logo_key": body.Key, "logo_url": url})
}

func (h *Handler) fail(c *gin.Context, err error, internal string) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		response.ValidationFailed(c, verr.Fields)
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMemberNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrOwnerNotRemovable):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrLogoStorageOff):
		response.ServiceUnavailable(c, err.Error())
	default:
		h.logger.Error(internal, zap.Error(err))
		response.Internal(c, internal)
	}
}
