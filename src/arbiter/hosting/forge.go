// Package hosting talks to the code hosting service that owns the public
// mirror organization and the internal repositories.
package hosting

import (
	"context"
	"time"
)

// Forge abstracts hosting operations (GitHub, GitLab, a local directory of
// repositories) so the loaders and the orchestrator never know which one
// they are talking to.
type Forge interface {
	// ListRepositories returns every repository owned by owner, following
	// pagination. Duplicate names are dropped.
	ListRepositories(ctx context.Context, owner string) ([]Repository, error)

	// Tree returns the full recursive file tree of repo at ref. A listing the
	// host reports as incomplete fails with apperr.ErrTruncated.
	Tree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error)

	// Commits returns the commits on ref touching path, newest first.
	Commits(ctx context.Context, owner, repo, ref, path string) ([]Commit, error)

	// CreatePullRequest opens a pull/merge request and returns its web URL.
	CreatePullRequest(ctx context.Context, owner, repo string, pr PullRequest) (string, error)

	// CloneURL returns the git remote URL for repo.
	CloneURL(owner, repo string) string
}

type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch,omitempty"`
}

type EntryType string

const (
	Blob    EntryType = "blob"
	SubTree EntryType = "tree"
)

type TreeEntry struct {
	Path string    `json:"path"`
	Type EntryType `json:"type"`
}

type Commit struct {
	SHA  string    `json:"sha"`
	Date time.Time `json:"date"`
}

type PullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}
