package verifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/foxseedlab/nyukoku/internal/verifier"
)

const lookupTimeout = 10 * time.Second

// HTTPVerifier resolves java profiles by status code and bedrock gamertags by the
// success flag of the lookup payload.
type HTTPVerifier struct {
	javaURL    string
	bedrockURL string
	client     *http.Client
}

func NewHTTPVerifier(javaURL, bedrockURL string) *HTTPVerifier {
	return &HTTPVerifier{
		javaURL:    javaURL,
		bedrockURL: bedrockURL,
		client:     &http.Client{Timeout: lookupTimeout},
	}
}

type bedrockLookupResponse struct {
	Success bool `json:"success"`
}

func (v *HTTPVerifier) Exists(ctx context.Context, edition verifier.Edition, handle string) bool {
	if handle == "" {
		return false
	}
	base := v.javaURL
	if edition == verifier.EditionBedrock {
		base = v.bedrockURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+url.PathEscape(handle), nil)
	if err != nil {
		slog.Warn("identity lookup request build failed", "error", err, "edition", edition)
		return false
	}
	resp, err := v.client.Do(req)
	if err != nil {
		slog.Warn("identity lookup failed", "error", err, "edition", edition, "handle", handle)
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if edition != verifier.EditionBedrock {
		return resp.StatusCode == http.StatusOK
	}
	var payload bedrockLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		slog.Warn("identity lookup payload invalid", "error", err, "edition", edition, "handle", handle)
		return false
	}
	return payload.Success
}
