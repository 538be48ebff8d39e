package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueue(client, nil), mr
}

func TestQueue_EnqueueDequeueEmail(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	invitationID := uuid.New()
	payload := EmailPayload{
		EmailLogID:     uuid.New(),
		EmailType:      "agency_invitation",
		AgencyID:       uuid.New(),
		InvitationID:   &invitationID,
		RecipientEmail: "jane@acme.com",
		Subject:        "You're invited",
		BodyHTML:       "<p>hi</p>",
	}
	jobID, err := q.EnqueueEmail(ctx, payload)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	n, err := q.Len(ctx, QueueEmails)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, jobID, job.ID)
	require.Equal(t, JobTypeEmail, job.Type)

	var got EmailPayload
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	require.Equal(t, payload.RecipientEmail, got.RecipientEmail)
	require.Equal(t, invitationID, *got.InvitationID)
}

func TestQueue_DequeueSkipsGarbage(t *testing.T) {
	q, mr := newTestQueue(t)
	_, err := mr.Push(QueueEmails, "not-json")
	require.NoError(t, err)

	job, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestQueue_RetryMovesToDLQ(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := &Job{ID: "job-1", Type: JobTypeEmail, Payload: json.RawMessage(`{}`)}

	for i := 1; i < MaxRetries; i++ {
		dead, err := q.Retry(ctx, job)
		require.NoError(t, err)
		require.False(t, dead)
		require.Equal(t, i, job.Attempt)
	}

	dead, err := q.Retry(ctx, job)
	require.NoError(t, err)
	require.True(t, dead)

	dlq, err := q.Len(ctx, QueueDLQ)
	require.NoError(t, err)
	require.EqualValues(t, 1, dlq)

	pending, err := q.Len(ctx, QueueEmails)
	require.NoError(t, err)
	require.EqualValues(t, MaxRetries-1, pending)
}
