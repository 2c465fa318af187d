package notify

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskVoucherIssuedEmail is the asynq task type that mails the referring agency.
const TaskVoucherIssuedEmail = "email:voucher_issued"

// VoucherIssuedEmailPayload is the body of a TaskVoucherIssuedEmail task.
type VoucherIssuedEmailPayload struct {
	EventID        string `json:"event_id"`
	OrganizationID string `json:"organization_id"`
	VoucherID      string `json:"voucher_id"`
	Code           string `json:"code"`
	AgencyName     string `json:"agency_name"`
	To             string `json:"to"`
	IssueDate      string `json:"issue_date"`
	ExpiryDate     string `json:"expiry_date"`
}

// NewVoucherIssuedEmailTask builds the task for payload.
func NewVoucherIssuedEmailTask(payload VoucherIssuedEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVoucherIssuedEmail, body), nil
}
