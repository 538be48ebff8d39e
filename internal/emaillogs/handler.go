package emaillogs

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondershark/backend/internal/agencies"
	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/internal/policy"
	"github.com/wondershark/backend/pkg/response"
)

// Lister reads delivery logs.
type Lister interface {
	ListByAgency(ctx context.Context, agencyID uuid.UUID) ([]*models.EmailLog, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	logs   Lister
	logger *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(logs Lister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logs: logs, logger: logger}
}

// ListByAgency handles GET /agencies/:id/emails. Mount it behind
// agencies.RequireAgencyAccess.
func (h *Handler) ListByAgency(c *gin.Context) {
	agency := agencies.AgencyFrom(c)
	if !policy.Can(agencies.ActorFrom(c), policy.ActionViewAgency, agency) {
		response.Forbidden(c, "forbidden")
		return
	}
	logs, err := h.logs.ListByAgency(c.Request.Context(), agency.ID)
	if err != nil {
		h.logger.Error("list email logs", zap.String("agency_id", agency.ID.String()), zap.Error(err))
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
