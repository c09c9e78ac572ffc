package sponsor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/nyukoku/internal/sponsor"
)

const (
	registryTimeout   = 15 * time.Second
	matchSponsorsVerb = "match_joiners_strict"
)

type HTTPRegistry struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHTTPRegistry(endpoint, token string) *HTTPRegistry {
	return &HTTPRegistry{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: registryTimeout},
	}
}

type matchRequest struct {
	Action  string   `json:"action"`
	Joiners []string `json:"joiners"`
}

type matchResponse struct {
	DiscordIDs map[string]json.RawMessage `json:"discord_ids"`
	Message    string                     `json:"message"`
}

func (r *HTTPRegistry) Match(ctx context.Context, names []string) (map[string]string, error) {
	b, err := json.Marshal(matchRequest{Action: matchSponsorsVerb, Joiners: names})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sponsor.ErrRegistryUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var payload matchResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&payload)
	if !isHTTPSuccessStatus(resp.StatusCode) {
		slog.Error("sponsor registry returned error", "status", resp.StatusCode, "message", payload.Message)
		return nil, fmt.Errorf("%w: status %d: %s", sponsor.ErrRegistryUnavailable, resp.StatusCode, payload.Message)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode response: %v", sponsor.ErrRegistryUnavailable, decodeErr)
	}

	matched := make(map[string]string, len(payload.DiscordIDs))
	for name, raw := range payload.DiscordIDs {
		id := decodeMemberID(raw)
		if id == "" {
			continue
		}
		matched[sponsor.NormalizeName(name)] = id
	}
	return matched, nil
}

// decodeMemberID accepts ids serialized either as JSON strings or numbers.
func decodeMemberID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
