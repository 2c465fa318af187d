package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/events"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/voucher"
)

type captureQueue struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *captureQueue) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{ID: "1", Type: task.Type()}, nil
}

func issuedEvent(t *testing.T, email *string) store.DomainEvent {
	t.Helper()
	payload, err := json.Marshal(voucher.IssuedEvent{
		VoucherID:          uuid.New(),
		Code:               "E-ABCDE-FGHIJK",
		ClientID:           uuid.New(),
		AgencyID:           uuid.New(),
		AgencyName:         "Citizens Advice",
		AgencyContactEmail: email,
		IssueDate:          "2024-06-15",
		ExpiryDate:         "2024-06-22",
	})
	require.NoError(t, err)
	return store.DomainEvent{ID: uuid.New(), OrganizationID: uuid.New(), Topic: events.TopicVoucherIssued, AggregateID: uuid.New(), Payload: payload}
}

func TestNotifierEnqueuesIssuedEmail(t *testing.T) {
	q := &captureQueue{}
	n := IssuanceEmailNotifier{Queue: q, Enabled: true, QueueName: "default", MaxRetry: 5}
	email := " hub@example.org "
	ev := issuedEvent(t, &email)

	require.NoError(t, n.Notify(context.Background(), ev))
	require.Len(t, q.tasks, 1)
	require.Equal(t, TaskVoucherIssuedEmail, q.tasks[0].Type())
	require.Len(t, q.opts[0], 3)

	var payload VoucherIssuedEmailPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	require.Equal(t, "hub@example.org", payload.To)
	require.Equal(t, "E-ABCDE-FGHIJK", payload.Code)
	require.Equal(t, ev.OrganizationID.String(), payload.OrganizationID)
}

func TestNotifierSkips(t *testing.T) {
	q := &captureQueue{}
	email := "hub@example.org"

	disabled := IssuanceEmailNotifier{Queue: q}
	require.NoError(t, disabled.Notify(context.Background(), issuedEvent(t, &email)))

	n := IssuanceEmailNotifier{Queue: q, Enabled: true}
	require.NoError(t, n.Notify(context.Background(), issuedEvent(t, nil)))

	other := issuedEvent(t, &email)
	other.Topic = events.TopicVoucherRedeemed
	require.NoError(t, n.Notify(context.Background(), other))
	require.Empty(t, q.tasks)
}

func TestNotifierErrors(t *testing.T) {
	email := "hub@example.org"
	dup := IssuanceEmailNotifier{Queue: &captureQueue{err: asynq.ErrTaskIDConflict}, Enabled: true}
	require.NoError(t, dup.Notify(context.Background(), issuedEvent(t, &email)))

	down := IssuanceEmailNotifier{Queue: &captureQueue{err: errors.New("redis down")}, Enabled: true}
	require.Error(t, down.Notify(context.Background(), issuedEvent(t, &email)))

	bad := issuedEvent(t, &email)
	bad.Payload = json.RawMessage(`[1]`)
	require.Error(t, IssuanceEmailNotifier{Queue: &captureQueue{}, Enabled: true}.Notify(context.Background(), bad))
}

func TestEmailHandlerSends(t *testing.T) {
	mail := &common.InMemoryEmail{}
	h := EmailHandler{Mail: mail, Logger: zerolog.Nop()}
	task, err := NewVoucherIssuedEmailTask(VoucherIssuedEmailPayload{
		VoucherID:  uuid.NewString(),
		Code:       "E-ABCDE-FGHIJK",
		AgencyName: "Smith & Sons",
		To:         "hub@example.org",
		ExpiryDate: "2024-06-22",
	})
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	sent := mail.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "hub@example.org", sent[0].To)
	require.Equal(t, "Food bank voucher E-ABCDE-FGHIJK issued", sent[0].Subject)
	require.Contains(t, sent[0].HTML, "Smith &amp; Sons")
	require.Contains(t, sent[0].HTML, "Valid until: 2024-06-22")
}

func TestEmailHandlerBadPayloadSkipsRetry(t *testing.T) {
	h := EmailHandler{Mail: &common.InMemoryEmail{}, Logger: zerolog.Nop()}
	err := h.ProcessTask(context.Background(), asynq.NewTask(TaskVoucherIssuedEmail, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	empty, _ := NewVoucherIssuedEmailTask(VoucherIssuedEmailPayload{Code: "E-1"})
	require.NoError(t, h.ProcessTask(context.Background(), empty))
}
