package repository

import "time"

type DenyListCategory string

const (
	DenyListNationality DenyListCategory = "nationality"
	DenyListIdentity    DenyListCategory = "identity"
)

type DenyListStatus string

const (
	DenyListStatusActive  DenyListStatus = "active"
	DenyListStatusInvalid DenyListStatus = "invalid"
)

type DenyListEntry struct {
	ID        string
	Category  DenyListCategory
	Value     string
	Status    DenyListStatus
	Reason    string
	UpdatedAt time.Time
}

type AuditRecord struct {
	ID          string
	SessionID   string
	ThreadID    string
	ApplicantID string
	Outcome     string
	StartedAt   time.Time
	EndedAt     time.Time
	LogLines    []string
	CreatedAt   time.Time
}
