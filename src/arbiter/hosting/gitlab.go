package hosting

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/recipe-arbiter/arbiter/src/arbiter/apperr"
	"github.com/recipe-arbiter/arbiter/src/arbiter/credentials"
)

const defaultGitLabAPI = "https://gitlab.com/api/v4"

// GitLabForge implements Forge for GitLab (gitlab.com or self-hosted).
// Owners are group paths; repositories are project paths within them.
type GitLabForge struct {
	apiClient
	webURL string
}

type GitLabOptions struct {
	APIBaseURL string // defaults to "https://gitlab.com/api/v4"
	WebBaseURL string // derived from APIBaseURL when empty
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewGitLabForge(creds credentials.Provider, opts GitLabOptions) *GitLabForge {
	api := opts.APIBaseURL
	if api == "" {
		api = defaultGitLabAPI
	}
	web := opts.WebBaseURL
	if web == "" {
		// Self-hosted: strip /api/v4
		web = strings.TrimSuffix(strings.TrimRight(api, "/"), "/api/v4")
	}
	g := &GitLabForge{
		apiClient: newAPIClient(api, opts.HTTPClient, creds, opts.Logger),
		webURL:    strings.TrimRight(web, "/"),
	}
	g.authorize = func(req *http.Request, c credentials.Credentials) {
		if c.Token != "" {
			req.Header.Set("PRIVATE-TOKEN", c.Token)
			return
		}
		c.Apply(req)
	}
	return g
}

func projectID(owner, repo string) string {
	return url.PathEscape(owner + "/" + repo)
}

// totalPages reads the page count GitLab reports with the first page. It is
// absent for listings too large to count.
func totalPages(h http.Header) (int, bool, error) {
	v := h.Get("X-Total-Pages")
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false, apperr.Invariantf("pagination", apperr.ErrPagination, "X-Total-Pages %q", v)
	}
	return n, true, nil
}

// nextPage returns the page named by X-Next-Page, or 0 after the last.
func nextPage(h http.Header) int {
	n, err := strconv.Atoi(h.Get("X-Next-Page"))
	if err != nil {
		return 0
	}
	return n
}

// paginate fetches every page of path and concatenates the batches. The
// page count comes from the first response; without one the listing is
// followed through X-Next-Page.
func paginate[T any](ctx context.Context, c *apiClient, path string, q url.Values) ([]T, error) {
	var all []T
	total, counted := 0, false
	for page := 1; page != 0; {
		q.Set("page", strconv.Itoa(page))
		var batch []T
		header, err := c.do(ctx, http.MethodGet, path+"?"+q.Encode(), nil, &batch, http.StatusOK)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if page == 1 {
			if total, counted, err = totalPages(header); err != nil {
				return nil, err
			}
		}

		switch {
		case counted && page < total:
			page++
		case counted, len(batch) == 0:
			page = 0
		default:
			page = nextPage(header)
		}
	}
	return all, nil
}

func (g *GitLabForge) ListRepositories(ctx context.Context, owner string) ([]Repository, error) {
	type project struct {
		Path              string `json:"path"`
		PathWithNamespace string `json:"path_with_namespace"`
		DefaultBranch     string `json:"default_branch"`
	}
	q := url.Values{"per_page": {"100"}}
	projects, err := paginate[project](ctx, &g.apiClient, "/groups/"+url.PathEscape(owner)+"/projects", q)
	if err != nil {
		return nil, fmt.Errorf("listing projects of %s: %w", owner, err)
	}

	repos := make([]Repository, 0, len(projects))
	for _, p := range projects {
		repos = append(repos, Repository{Name: p.Path, FullName: p.PathWithNamespace, DefaultBranch: p.DefaultBranch})
	}
	return dedupe(g.log, repos), nil
}

func (g *GitLabForge) Tree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	q := url.Values{"recursive": {"true"}, "ref": {ref}, "per_page": {"100"}}
	entries, err := paginate[TreeEntry](ctx, &g.apiClient, "/projects/"+projectID(owner, repo)+"/repository/tree", q)
	if err != nil {
		return nil, fmt.Errorf("fetching tree of %s/%s: %w", owner, repo, err)
	}
	return entries, nil
}

func (g *GitLabForge) Commits(ctx context.Context, owner, repo, ref, p string) ([]Commit, error) {
	type commit struct {
		ID            string    `json:"id"`
		CommittedDate time.Time `json:"committed_date"`
	}
	q := url.Values{"ref_name": {ref}, "path": {p}, "per_page": {"100"}}
	raw, err := paginate[commit](ctx, &g.apiClient, "/projects/"+projectID(owner, repo)+"/repository/commits", q)
	if err != nil {
		return nil, fmt.Errorf("fetching commits of %s/%s for %s: %w", owner, repo, p, err)
	}

	commits := make([]Commit, 0, len(raw))
	for _, c := range raw {
		commits = append(commits, Commit{SHA: c.ID, Date: c.CommittedDate})
	}
	return commits, nil
}

func (g *GitLabForge) CreatePullRequest(ctx context.Context, owner, repo string, pr PullRequest) (string, error) {
	payload := map[string]string{
		"title":         pr.Title,
		"description":   pr.Body,
		"source_branch": pr.Head,
		"target_branch": pr.Base,
	}

	var result struct {
		WebURL string `json:"web_url"`
	}
	if _, err := g.do(ctx, http.MethodPost, "/projects/"+projectID(owner, repo)+"/merge_requests", payload, &result, http.StatusCreated); err != nil {
		return "", fmt.Errorf("creating MR: %w", err)
	}
	return result.WebURL, nil
}

func (g *GitLabForge) CloneURL(owner, repo string) string {
	return fmt.Sprintf("%s/%s/%s.git", g.webURL, owner, repo)
}
