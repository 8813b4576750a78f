package credentials

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GitHubApp authenticates as a GitHub App installation: a short-lived RS256
// JWT signed with the app key is exchanged for an installation token.
type GitHubApp struct {
	AppID          string
	InstallationID int64
	Key            *rsa.PrivateKey
	APIBaseURL     string
	Client         *http.Client
	Now            func() time.Time
	Logger         *slog.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewGitHubApp loads the PEM-encoded private key from keyPath.
func NewGitHubApp(appID string, installationID int64, keyPath, apiBaseURL string, log *slog.Logger) (*GitHubApp, error) {
	pem, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading app key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parsing app key: %w", err)
	}
	return &GitHubApp{
		AppID:          appID,
		InstallationID: installationID,
		Key:            key,
		APIBaseURL:     apiBaseURL,
		Logger:         log,
	}, nil
}

func (a *GitHubApp) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *GitHubApp) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// AppToken signs the JWT identifying the app itself.
func (a *GitHubApp) AppToken() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer: a.AppID,
		// Backdated to tolerate clock drift on the API side.
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.Key)
	if err != nil {
		return "", fmt.Errorf("signing app token: %w", err)
	}
	return signed, nil
}

func (a *GitHubApp) Credentials(ctx context.Context) (Credentials, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.now().Add(time.Minute).Before(a.expires) {
		return Credentials{Username: TokenUsername, Token: a.token}, nil
	}
	if err := a.refresh(ctx); err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: TokenUsername, Token: a.token}, nil
}

func (a *GitHubApp) refresh(ctx context.Context) error {
	appToken, err := a.AppToken()
	if err != nil {
		return err
	}

	base := a.APIBaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	url := strings.TrimRight(base, "/") + "/app/installations/" + strconv.FormatInt(a.InstallationID, 10) + "/access_tokens"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting installation token: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parsing installation token: %w", err)
	}
	a.token, a.expires = result.Token, result.ExpiresAt
	a.logger().Debug("Installation token refreshed", "installation", a.InstallationID, "expires", result.ExpiresAt)
	return nil
}
