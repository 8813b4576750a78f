// Package credentials resolves the identity used against the hosting API
// and git remotes. Callers receive a Provider; nothing here is global.
package credentials

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// TokenUsername is the user name GitHub accepts alongside a token for git
// over HTTPS.
const TokenUsername = "x-access-token"

// Credentials is either a token or a username/password pair. The zero
// value means anonymous access.
type Credentials struct {
	Username string
	Password string
	Token    string
}

func (c Credentials) Empty() bool {
	return c.Token == "" && c.Password == ""
}

// Apply sets the Authorization header on an API request.
func (c Credentials) Apply(req *http.Request) {
	switch {
	case c.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.Token)
	case c.Password != "":
		req.SetBasicAuth(c.Username, c.Password)
	}
}

func (c Credentials) basic() (string, string) {
	if c.Token != "" {
		user := c.Username
		if user == "" {
			user = TokenUsername
		}
		return user, c.Token
	}
	return c.Username, c.Password
}

// GitAuth returns the go-git auth method for HTTPS remotes, or nil when
// anonymous.
func (c Credentials) GitAuth() transport.AuthMethod {
	if c.Empty() {
		return nil
	}
	user, pass := c.basic()
	return &githttp.BasicAuth{Username: user, Password: pass}
}

// GitHeader returns an "Authorization: Basic ..." value for git's
// http.extraHeader, or "" when anonymous.
func (c Credentials) GitHeader() string {
	if c.Empty() {
		return ""
	}
	user, pass := c.basic()
	return "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// Provider resolves credentials on demand.
type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Static always returns the same credentials.
type Static Credentials

func (s Static) Credentials(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

// Env reads a token from the first non-empty variable in Tokens, falling
// back to ARBITER_USERNAME / ARBITER_PASSWORD. No variables means anonymous.
type Env struct {
	Tokens []string
}

var defaultTokenVars = []string{"ARBITER_TOKEN", "GITHUB_TOKEN", "GITLAB_TOKEN"}

func (e Env) Credentials(context.Context) (Credentials, error) {
	vars := e.Tokens
	if len(vars) == 0 {
		vars = defaultTokenVars
	}
	user := os.Getenv("ARBITER_USERNAME")
	for _, v := range vars {
		if tok := os.Getenv(v); tok != "" {
			return Credentials{Username: user, Token: tok}, nil
		}
	}
	return Credentials{Username: user, Password: os.Getenv("ARBITER_PASSWORD")}, nil
}

// Cached resolves the wrapped provider once and reuses the result for the
// rest of the run. Errors are not remembered.
type Cached struct {
	Provider Provider

	mu    sync.Mutex
	done  bool
	creds Credentials
}

func NewCached(p Provider) *Cached {
	return &Cached{Provider: p}
}

func (c *Cached) Credentials(ctx context.Context) (Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return c.creds, nil
	}
	creds, err := c.Provider.Credentials(ctx)
	if err != nil {
		return Credentials{}, err
	}
	c.creds, c.done = creds, true
	return creds, nil
}
