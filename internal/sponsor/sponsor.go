package sponsor

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrRegistryUnavailable marks a transport or service failure. An empty match is not an error.
var ErrRegistryUnavailable = errors.New("sponsor registry unavailable")

// Registry resolves declared sponsor names to member ids, keyed by NormalizeName.
type Registry interface {
	Match(ctx context.Context, names []string) (map[string]string, error)
}

func NormalizeName(name string) string {
	return norm.NFKC.String(strings.TrimSpace(name))
}
