package extractor

import (
	"context"
	"errors"

	"github.com/foxseedlab/nyukoku/internal/application"
)

var ErrMalformedOutput = errors.New("malformed extraction output")

// Extractor normalizes the applicant's free-text answers into an Application.
type Extractor interface {
	Extract(ctx context.Context, rawText string) (*application.Application, error)
}
