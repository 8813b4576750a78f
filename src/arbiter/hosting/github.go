package hosting

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/recipe-arbiter/arbiter/src/arbiter/apperr"
	"github.com/recipe-arbiter/arbiter/src/arbiter/credentials"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubForge implements Forge for GitHub and GitHub Enterprise.
type GitHubForge struct {
	apiClient
	webURL string
}

type GitHubOptions struct {
	APIBaseURL string // defaults to "https://api.github.com"
	WebBaseURL string // derived from APIBaseURL when empty
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewGitHubForge(creds credentials.Provider, opts GitHubOptions) *GitHubForge {
	api := opts.APIBaseURL
	if api == "" {
		api = defaultGitHubAPI
	}
	web := opts.WebBaseURL
	if web == "" {
		web = githubWebURL(api)
	}
	g := &GitHubForge{
		apiClient: newAPIClient(api, opts.HTTPClient, creds, opts.Logger),
		webURL:    strings.TrimRight(web, "/"),
	}
	g.authorize = func(req *http.Request, c credentials.Credentials) {
		req.Header.Set("Accept", "application/vnd.github+json")
		c.Apply(req)
	}
	return g
}

// githubWebURL maps an API base URL to the web host: api.github.com to
// github.com, and Enterprise "https://host/api/v3" to "https://host".
func githubWebURL(api string) string {
	api = strings.TrimRight(api, "/")
	if api == defaultGitHubAPI {
		return "https://github.com"
	}
	return strings.TrimSuffix(api, "/api/v3")
}

type githubRepo struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

func (g *GitHubForge) ListRepositories(ctx context.Context, owner string) ([]Repository, error) {
	path := fmt.Sprintf("/orgs/%s/repos", url.PathEscape(owner))

	// The page count comes from the rel="last" link of the first page.
	header, err := g.do(ctx, http.MethodHead, path+"?per_page=100&page=1", nil, nil, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("listing repositories of %s: %w", owner, err)
	}
	pages, err := lastPage(header)
	if err != nil {
		return nil, fmt.Errorf("listing repositories of %s: %w", owner, err)
	}

	var repos []Repository
	for page := 1; page <= pages; page++ {
		var batch []githubRepo
		if _, err := g.do(ctx, http.MethodGet, fmt.Sprintf("%s?per_page=100&page=%d", path, page), nil, &batch, http.StatusOK); err != nil {
			return nil, fmt.Errorf("listing repositories of %s: %w", owner, err)
		}
		for _, r := range batch {
			repos = append(repos, Repository{Name: r.Name, FullName: r.FullName, DefaultBranch: r.DefaultBranch})
		}
	}
	return dedupe(g.log, repos), nil
}

func (g *GitHubForge) Tree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(ref))

	var result struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	if _, err := g.do(ctx, http.MethodGet, path, nil, &result, http.StatusOK); err != nil {
		return nil, fmt.Errorf("fetching tree of %s/%s: %w", owner, repo, err)
	}
	if result.Truncated {
		return nil, apperr.Invariantf("tree", apperr.ErrTruncated, "%s/%s at %s", owner, repo, ref)
	}

	entries := make([]TreeEntry, 0, len(result.Tree))
	for _, e := range result.Tree {
		entries = append(entries, TreeEntry{Path: e.Path, Type: EntryType(e.Type)})
	}
	return entries, nil
}

func (g *GitHubForge) Commits(ctx context.Context, owner, repo, ref, p string) ([]Commit, error) {
	q := url.Values{}
	q.Set("sha", ref)
	q.Set("path", p)
	q.Set("per_page", "100")
	base := fmt.Sprintf("/repos/%s/%s/commits", url.PathEscape(owner), url.PathEscape(repo))

	var commits []Commit
	for page := 1; ; page++ {
		q.Set("page", strconv.Itoa(page))
		var batch []struct {
			SHA    string `json:"sha"`
			Commit struct {
				Committer struct {
					Date time.Time `json:"date"`
				} `json:"committer"`
			} `json:"commit"`
		}
		header, err := g.do(ctx, http.MethodGet, base+"?"+q.Encode(), nil, &batch, http.StatusOK)
		if err != nil {
			return nil, fmt.Errorf("fetching commits of %s/%s for %s: %w", owner, repo, p, err)
		}
		for _, c := range batch {
			commits = append(commits, Commit{SHA: c.SHA, Date: c.Commit.Committer.Date})
		}
		if _, ok := parseLinks(header.Get("Link"))["next"]; !ok || len(batch) == 0 {
			return commits, nil
		}
	}
}

func (g *GitHubForge) CreatePullRequest(ctx context.Context, owner, repo string, pr PullRequest) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls", url.PathEscape(owner), url.PathEscape(repo))
	payload := map[string]string{
		"title": pr.Title,
		"body":  pr.Body,
		"head":  pr.Head,
		"base":  pr.Base,
	}

	var result struct {
		HTMLURL string `json:"html_url"`
	}
	if _, err := g.do(ctx, http.MethodPost, path, payload, &result, http.StatusCreated); err != nil {
		return "", fmt.Errorf("creating PR: %w", err)
	}
	return result.HTMLURL, nil
}

func (g *GitHubForge) CloneURL(owner, repo string) string {
	return fmt.Sprintf("%s/%s/%s.git", g.webURL, owner, repo)
}

var linkRE = regexp.MustCompile(`<([^>]*)>\s*;\s*rel="([^"]+)"`)

// parseLinks maps each rel of an RFC 8288 Link header to its URL.
func parseLinks(header string) map[string]string {
	links := make(map[string]string)
	for _, m := range linkRE.FindAllStringSubmatch(header, -1) {
		for _, rel := range strings.Fields(m[2]) {
			links[rel] = m[1]
		}
	}
	return links
}

// lastPage reads the page count from the rel="last" link. A response
// without a Link header, or without a "last" relation, is a single page.
func lastPage(header http.Header) (int, error) {
	raw := header.Get("Link")
	if raw == "" {
		return 1, nil
	}
	last, ok := parseLinks(raw)["last"]
	if !ok {
		return 1, nil
	}
	u, err := url.Parse(last)
	if err != nil {
		return 0, apperr.Invariantf("pagination", apperr.ErrPagination, "last link %q: %v", last, err)
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil || n < 1 {
		return 0, apperr.Invariantf("pagination", apperr.ErrPagination, "last link %q has no page number", last)
	}
	return n, nil
}
