package denylist

import (
	"context"

	"github.com/foxseedlab/nyukoku/internal/repository"
)

type Category = repository.DenyListCategory

const (
	Nationality = repository.DenyListNationality
	Identity    = repository.DenyListIdentity
)

// Checker must be callable before its backing store finished loading.
type Checker interface {
	IsListed(ctx context.Context, category Category, value string) (bool, error)
}

type Admin interface {
	Add(ctx context.Context, category Category, value, reason string) (repository.UpsertResult, error)
	Remove(ctx context.Context, category Category, value string) (bool, error)
	ListActive(ctx context.Context) ([]repository.DenyListEntry, error)
}

func ParseCategory(s string) (Category, bool) {
	switch s {
	case "nationality", "country":
		return Nationality, true
	case "identity", "player":
		return Identity, true
	default:
		return "", false
	}
}
