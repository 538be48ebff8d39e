package invitations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/pkg/mailer"
	"github.com/wondershark/backend/pkg/queue"
)

// Notification is one invitation email to deliver.
type Notification struct {
	Invitation *models.Invitation
	AgencyName string
	AcceptURL  string
	Resend     bool
}

func (n Notification) emailType() string {
	if n.Resend {
		return models.EmailTypeInvitationResend
	}
	return models.EmailTypeAgencyInvitation
}

// Notifier delivers invitation emails. A returned error means the invitee
// will not receive this message.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// DeliveryLog records outbound emails and their outcome.
type DeliveryLog interface {
	Create(ctx context.Context, l *models.EmailLog) error
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Enqueuer hands emails to the background worker.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) (string, error)
}

// record writes a pending delivery log row. Logging failures never block delivery.
func record(ctx context.Context, log DeliveryLog, logger *zap.Logger, n Notification, msg mailer.Message) uuid.UUID {
	if log == nil {
		return uuid.Nil
	}
	inv := n.Invitation
	row := &models.EmailLog{
		AgencyID:       &inv.AgencyID,
		InvitationID:   &inv.ID,
		EmailType:      n.emailType(),
		RecipientEmail: inv.Email,
		Subject:        msg.Subject,
		Status:         models.EmailLogStatusPending,
	}
	if err := log.Create(ctx, row); err != nil {
		logger.Warn("email log create failed", zap.String("invitation_id", inv.ID.String()), zap.Error(err))
		return uuid.Nil
	}
	return row.ID
}

// QueueNotifier renders the email and enqueues it for the worker. Only a
// failure to enqueue is reported; SMTP failures surface on the delivery log.
type QueueNotifier struct {
	log    DeliveryLog
	queue  Enqueuer
	logger *zap.Logger
}

// NewQueueNotifier creates a queue-backed notifier.
func NewQueueNotifier(log DeliveryLog, q Enqueuer, logger *zap.Logger) *QueueNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueNotifier{log: log, queue: q, logger: logger}
}

// Notify implements Notifier.
func (q *QueueNotifier) Notify(ctx context.Context, n Notification) error {
	msg, err := RenderEmail(n)
	if err != nil {
		return fmt.Errorf("render invitation email: %w", err)
	}
	logID := record(ctx, q.log, q.logger, n, msg)
	invID := n.Invitation.ID
	jobID, err := q.queue.EnqueueEmail(ctx, queue.EmailPayload{
		EmailLogID:     logID,
		EmailType:      n.emailType(),
		AgencyID:       n.Invitation.AgencyID,
		InvitationID:   &invID,
		RecipientEmail: msg.ToAddress,
		RecipientName:  msg.ToName,
		Subject:        msg.Subject,
		BodyHTML:       msg.HTML,
		BodyText:       msg.Text,
	})
	if err != nil {
		if logID != uuid.Nil {
			if mErr := q.log.MarkFailed(ctx, logID, err.Error()); mErr != nil {
				q.logger.Warn("email log update failed", zap.Error(mErr))
			}
		}
		return fmt.Errorf("enqueue invitation email: %w", err)
	}
	q.logger.Info("invitation email queued", zap.String("invitation_id", invID.String()), zap.String("job_id", jobID))
	return nil
}

// DirectNotifier sends the email inside the request.
type DirectNotifier struct {
	log    DeliveryLog
	sender mailer.Sender
	logger *zap.Logger
	now    func() time.Time
}

// NewDirectNotifier creates a notifier that sends synchronously.
func NewDirectNotifier(log DeliveryLog, sender mailer.Sender, logger *zap.Logger) *DirectNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectNotifier{log: log, sender: sender, logger: logger, now: time.Now}
}

// Notify implements Notifier.
func (d *DirectNotifier) Notify(ctx context.Context, n Notification) error {
	msg, err := RenderEmail(n)
	if err != nil {
		return fmt.Errorf("render invitation email: %w", err)
	}
	logID := record(ctx, d.log, d.logger, n, msg)
	sendErr := d.sender.Send(ctx, msg)
	if logID != uuid.Nil {
		var mErr error
		if sendErr != nil {
			mErr = d.log.MarkFailed(ctx, logID, sendErr.Error())
		} else {
			mErr = d.log.MarkSent(ctx, logID, d.now())
		}
		if mErr != nil {
			d.logger.Warn("email log update failed", zap.Error(mErr))
		}
	}
	if sendErr != nil {
		return fmt.Errorf("send invitation email: %w", sendErr)
	}
	return nil
}
