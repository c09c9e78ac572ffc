package repository

import (
	"context"
	"time"
)

type SaveAuditInput struct {
	SessionID   string
	ThreadID    string
	ApplicantID string
	Outcome     string
	StartedAt   time.Time
	EndedAt     time.Time
	LogLines    []string
}

type UpsertDenyListInput struct {
	Category DenyListCategory
	Value    string
	Reason   string
}

// UpsertResult reports what AddDenyListEntry did.
type UpsertResult string

const (
	UpsertAdded       UpsertResult = "added"
	UpsertReactivated UpsertResult = "reactivated"
	UpsertDuplicate   UpsertResult = "duplicate"
)

type AuditRepository interface {
	SaveAudit(ctx context.Context, input SaveAuditInput) error
	ListAuditsBySessionID(ctx context.Context, sessionID string) ([]AuditRecord, error)
}

type DenyListRepository interface {
	ListActiveDenyList(ctx context.Context) ([]DenyListEntry, error)
	AddDenyListEntry(ctx context.Context, input UpsertDenyListInput) (UpsertResult, error)
	// InvalidateDenyListEntry reports false when no active entry matched.
	InvalidateDenyListEntry(ctx context.Context, category DenyListCategory, value string) (bool, error)
}

type Repository interface {
	AuditRepository
	DenyListRepository
}
