package webhook

import (
	"context"
	"time"
)

type AuditWebhookPayload struct {
	SessionID   string    `json:"session_id"`
	ThreadID    string    `json:"thread_id"`
	ApplicantID string    `json:"applicant_id"`
	Outcome     string    `json:"outcome"`
	Identity    string    `json:"mcid,omitempty"`
	Nationality string    `json:"nation,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	LogLines    []string  `json:"log_lines"`
}

type Sender interface {
	SendAudit(ctx context.Context, payload AuditWebhookPayload) error
}
