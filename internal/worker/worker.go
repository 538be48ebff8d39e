package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondershark/backend/pkg/mailer"
	"github.com/wondershark/backend/pkg/queue"
)

// DequeueTimeout is how long one poll blocks on Redis before checking ctx again.
const DequeueTimeout = 5 * time.Second

// JobQueue is the part of queue.Queue the worker consumes.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (dead bool, err error)
}

// DeliveryLog records the outcome of each email.
type DeliveryLog interface {
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// EmailProcessor delivers queued emails and records the result on the delivery log.
type EmailProcessor struct {
	queue   JobQueue
	sender  mailer.Sender
	log     DeliveryLog
	logger  *zap.Logger
	now     func() time.Time
	backoff time.Duration
}

// NewEmailProcessor creates an email job processor.
func NewEmailProcessor(q JobQueue, sender mailer.Sender, log DeliveryLog, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		queue:   q,
		sender:  sender,
		log:     log,
		logger:  logger,
		now:     time.Now,
		backoff: queue.RetryBackoff,
	}
}

// Process delivers one email job. A returned error means the job should be retried.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	payload, err := decode(job)
	if err != nil {
		return err
	}
	err = p.sender.Send(ctx, mailer.Message{
		ToName:    payload.RecipientName,
		ToAddress: payload.RecipientEmail,
		Subject:   payload.Subject,
		HTML:      payload.BodyHTML,
		Text:      payload.BodyText,
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if payload.EmailLogID != uuid.Nil {
		if err := p.log.MarkSent(ctx, payload.EmailLogID, p.now()); err != nil {
			// The mail is out; retrying would send it twice.
			p.logger.Warn("email log update failed", zap.String("email_log_id", payload.EmailLogID.String()), zap.Error(err))
		}
	}
	p.logger.Info("email delivered",
		zap.String("job_id", job.ID),
		zap.String("email_type", payload.EmailType),
		zap.String("email_log_id", payload.EmailLogID.String()),
	)
	return nil
}

func decode(job *queue.Job) (*queue.EmailPayload, error) {
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

// handle processes job and retries it on failure. Jobs that exhaust their
// retries are dead-lettered and marked failed on the delivery log. It reports
// whether the job failed.
func (p *EmailProcessor) handle(ctx context.Context, job *queue.Job) bool {
	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	procErr := p.Process(ctx, job)
	if procErr == nil {
		return false
	}
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(procErr))

	dead, err := p.queue.Retry(ctx, job)
	if err != nil {
		p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
		return true
	}
	if !dead {
		return true
	}
	payload, err := decode(job)
	if err != nil || payload.EmailLogID == uuid.Nil {
		return true
	}
	if err := p.log.MarkFailed(ctx, payload.EmailLogID, procErr.Error()); err != nil {
		p.logger.Warn("email log update failed", zap.String("email_log_id", payload.EmailLogID.String()), zap.Error(err))
	}
	return true
}

// Run starts the worker loop: dequeue, process, retry on error. It returns
// when ctx is cancelled.
func (p *EmailProcessor) Run(ctx context.Context) {
	p.logger.Info("email worker started")
	for {
		if ctx.Err() != nil {
			p.logger.Info("email worker stopping")
			return
		}

		job, err := p.queue.Dequeue(ctx, DequeueTimeout)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("dequeue error", zap.Error(err))
				p.sleep(ctx)
			}
			continue
		}
		if job == nil {
			continue
		}
		if failed := p.handle(ctx, job); failed {
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
