package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/support-hubs/internal/events"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/voucher"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// IssuanceEmailNotifier enqueues an email to the referring agency for every
// issued voucher whose agency has a contact address.
type IssuanceEmailNotifier struct {
	Queue     Enqueuer
	Enabled   bool
	QueueName string
	MaxRetry  int
}

// Notify implements events.Notifier.
func (n IssuanceEmailNotifier) Notify(ctx context.Context, event store.DomainEvent) error {
	if !n.Enabled || n.Queue == nil || event.Topic != events.TopicVoucherIssued {
		return nil
	}
	var issued voucher.IssuedEvent
	if err := json.Unmarshal(event.Payload, &issued); err != nil {
		return fmt.Errorf("email notify: decode payload: %w", err)
	}
	if issued.AgencyContactEmail == nil || strings.TrimSpace(*issued.AgencyContactEmail) == "" {
		return nil
	}
	task, err := NewVoucherIssuedEmailTask(VoucherIssuedEmailPayload{
		EventID:        event.ID.String(),
		OrganizationID: event.OrganizationID.String(),
		VoucherID:      issued.VoucherID.String(),
		Code:           issued.Code,
		AgencyName:     issued.AgencyName,
		To:             strings.TrimSpace(*issued.AgencyContactEmail),
		IssueDate:      issued.IssueDate,
		ExpiryDate:     issued.ExpiryDate,
	})
	if err != nil {
		return fmt.Errorf("email notify: build task: %w", err)
	}
	opts := []asynq.Option{asynq.TaskID("voucher-issued:" + event.ID.String())}
	if n.QueueName != "" {
		opts = append(opts, asynq.Queue(n.QueueName))
	}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	if _, err := n.Queue.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("email notify: enqueue: %w", err)
	}
	return nil
}
