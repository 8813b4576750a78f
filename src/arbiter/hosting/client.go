package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/recipe-arbiter/arbiter/src/arbiter/apperr"
	"github.com/recipe-arbiter/arbiter/src/arbiter/credentials"
)

// apiClient carries what GitHub and GitLab requests have in common.
type apiClient struct {
	baseURL string
	http    *http.Client
	creds   credentials.Provider
	log     *slog.Logger

	// authorize attaches credentials in the host's preferred way.
	authorize func(*http.Request, credentials.Credentials)
}

func newAPIClient(baseURL string, httpClient *http.Client, creds credentials.Provider, log *slog.Logger) apiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if creds == nil {
		creds = credentials.Static{}
	}
	if log == nil {
		log = slog.Default()
	}
	return apiClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      httpClient,
		creds:     creds,
		log:       log,
		authorize: func(r *http.Request, c credentials.Credentials) { c.Apply(r) },
	}
}

// do sends one request and decodes the response into out when out is not
// nil. Any status other than want, or a JSON object carrying an API error
// message, is a transport error.
func (c *apiClient) do(ctx context.Context, method, path string, payload, out any, want int) (http.Header, error) {
	op := method + " " + path

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving credentials: %w", err)
	}
	c.authorize(req, creds)

	c.log.Debug("API request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.Transport, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.New(apperr.Transport, op, err)
	}
	if resp.StatusCode != want {
		return nil, apperr.Transportf(op, "API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if msg := errorMessage(respBody); msg != "" {
		return nil, apperr.Transportf(op, "API returned the error message %q", msg)
	}
	if out != nil && method != http.MethodHead {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, apperr.Transportf(op, "parsing response: %v", err)
		}
	}
	return resp.Header, nil
}

// errorMessage extracts the "message" field of an object payload. Arrays
// and objects without it yield "".
func errorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(trimmed, &payload) != nil {
		return ""
	}
	return payload.Message
}

// dedupe drops repositories whose name was already seen.
func dedupe(log *slog.Logger, repos []Repository) []Repository {
	seen := make(map[string]bool, len(repos))
	out := repos[:0]
	for _, r := range repos {
		if seen[r.Name] {
			log.Debug("Ignoring duplicate repository in listing", "repo", r.Name)
			continue
		}
		seen[r.Name] = true
		out = append(out, r)
	}
	return out
}
