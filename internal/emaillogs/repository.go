package emaillogs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/pkg/database"
)

// Repository handles email_logs persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates an email logs repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// Create inserts l as pending and fills its ID and CreatedAt.
func (r *Repository) Create(ctx context.Context, l *models.EmailLog) error {
	if l.Status == "" {
		l.Status = models.EmailLogStatusPending
	}
	const q = `INSERT INTO email_logs (agency_id, invitation_id, email_type, recipient_email, subject, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id, created_at`
	return r.db.QueryRow(ctx, q, l.AgencyID, l.InvitationID, l.EmailType, l.RecipientEmail, l.Subject, l.Status).
		Scan(&l.ID, &l.CreatedAt)
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE email_logs SET status = $2, sent_at = $3, error_message = NULL WHERE id = $1`
	_, err := r.db.Exec(ctx, q, id, models.EmailLogStatusSent, at)
	return err
}

// MarkFailed records why delivery failed.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	const q = `UPDATE email_logs SET status = $2, error_message = $3 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, id, models.EmailLogStatusFailed, reason)
	return err
}

// ListByAgency returns the agency's email logs, newest first.
func (r *Repository) ListByAgency(ctx context.Context, agencyID uuid.UUID) ([]*models.EmailLog, error) {
	const q = `SELECT id, agency_id, invitation_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at
		FROM email_logs
		WHERE agency_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.AgencyID, &el.InvitationID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
