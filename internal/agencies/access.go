package agencies

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/internal/policy"
	"github.com/wondershark/backend/pkg/response"
)

// Context keys set by RequireAgencyAccess.
const (
	ContextAgency = "agency"
	ContextActor  = "agency_actor"
)

// RequireAgencyAccess loads the agency named by the :id param and the
// caller's membership. Only the owner and members get through; finer checks
// happen per action. Call after the session middleware.
func RequireAgencyAccess(svc *Service, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		agencyID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid agency id")
			c.Abort()
			return
		}
		ctx := c.Request.Context()
		agency, err := svc.Get(ctx, agencyID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				response.NotFound(c, err.Error())
			} else {
				logger.Error("load agency", zap.Error(err))
				response.Internal(c, "failed to load agency")
			}
			c.Abort()
			return
		}
		actor, err := svc.Actor(ctx, auth.UserID(c), agency)
		if err != nil {
			logger.Error("load membership", zap.Error(err))
			response.Internal(c, "failed to load membership")
			c.Abort()
			return
		}
		if !policy.Can(actor, policy.ActionViewAgency, agency) {
			response.Forbidden(c, "not authorized for this agency")
			c.Abort()
			return
		}
		c.Set(ContextAgency, agency)
		c.Set(ContextActor, actor)
		c.Next()
	}
}

// AgencyFrom returns the agency loaded by RequireAgencyAccess.
func AgencyFrom(c *gin.Context) *models.Agency {
	return c.MustGet(ContextAgency).(*models.Agency)
}

// ActorFrom returns the caller as resolved by RequireAgencyAccess.
func ActorFrom(c *gin.Context) policy.Actor {
	return c.MustGet(ContextActor).(policy.Actor)
}
