package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/support-hubs/internal/common"
)

// EmailHandler delivers TaskVoucherIssuedEmail tasks through Mail.
type EmailHandler struct {
	Mail   common.EmailSender
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h EmailHandler) ProcessTask(_ context.Context, task *asynq.Task) error {
	if h.Mail == nil {
		return fmt.Errorf("email worker: sender not configured: %w", asynq.SkipRetry)
	}
	var payload VoucherIssuedEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		h.Logger.Warn().Err(err).Str("task", task.Type()).Msg("email task payload invalid")
		return fmt.Errorf("email worker: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	to := strings.TrimSpace(payload.To)
	if to == "" || payload.Code == "" {
		h.Logger.Debug().Str("voucher_id", payload.VoucherID).Msg("email task skipped")
		return nil
	}
	if err := h.Mail.Send(to, subjectFor(payload), bodyFor(payload)); err != nil {
		return fmt.Errorf("email worker: send: %w", err)
	}
	h.Logger.Info().
		Str("tenant", payload.OrganizationID).
		Str("voucher_id", payload.VoucherID).
		Str("event_id", payload.EventID).
		Msg("voucher issued email sent")
	return nil
}

func subjectFor(p VoucherIssuedEmailPayload) string {
	return fmt.Sprintf("Food bank voucher %s issued", p.Code)
}

func bodyFor(p VoucherIssuedEmailPayload) string {
	var b strings.Builder
	b.WriteString("<p>A food bank voucher has been issued")
	if p.AgencyName != "" {
		b.WriteString(" on behalf of ")
		b.WriteString(html.EscapeString(p.AgencyName))
	}
	b.WriteString(".</p>")
	fmt.Fprintf(&b, "<p>Voucher code: <strong>%s</strong></p>", html.EscapeString(p.Code))
	if p.IssueDate != "" {
		fmt.Fprintf(&b, "<p>Issued: %s</p>", html.EscapeString(p.IssueDate))
	}
	if p.ExpiryDate != "" {
		fmt.Fprintf(&b, "<p>Valid until: %s</p>", html.EscapeString(p.ExpiryDate))
	}
	return b.String()
}
