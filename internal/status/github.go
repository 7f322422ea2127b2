package status

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/hochfrequenz/pep8bot/internal/domain"
)

// GitHubConfig configures the GitHub reporter
type GitHubConfig struct {
	// APIURL overrides the REST API root, e.g. https://ghe.example/api/v3/
	APIURL string
	// Context is the status context; defaults to DefaultContext
	Context string
	// TargetURL is an optional link template; {owner}, {repo} and {sha} are substituted
	TargetURL string
	// HTTPClient is the base transport; defaults to http.DefaultClient
	HTTPClient *http.Client
}

// GitHub posts commit statuses through the GitHub REST API
type GitHub struct {
	apiURL    *url.URL
	context   string
	targetURL string
	base      *http.Client
}

// NewGitHub creates a GitHub reporter
func NewGitHub(cfg GitHubConfig) (*GitHub, error) {
	g := &GitHub{
		context:   cfg.Context,
		targetURL: cfg.TargetURL,
		base:      cfg.HTTPClient,
	}
	if g.context == "" {
		g.context = DefaultContext
	}
	if g.base == nil {
		g.base = http.DefaultClient
	}
	if cfg.APIURL != "" {
		raw := cfg.APIURL
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing github api url: %w", err)
		}
		g.apiURL = u
	}
	return g, nil
}

// client builds an API client authenticated with token. Tokens differ per
// repository owner so a client is made per call.
func (g *GitHub) client(ctx context.Context, token string) *github.Client {
	httpClient := g.base
	if token != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.base)
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(ctx, ts)
	}

	client := github.NewClient(httpClient)
	if g.apiURL != nil {
		client.BaseURL = g.apiURL
	}
	return client
}

// PostStatus creates a commit status on owner/repo@sha
func (g *GitHub) PostStatus(ctx context.Context, owner, repo, sha string, st domain.Status, token, description string) error {
	status := &github.RepoStatus{
		State:       github.String(string(st)),
		Description: github.String(description),
		Context:     github.String(g.context),
	}
	if target := g.target(owner, repo, sha); target != "" {
		status.TargetURL = github.String(target)
	}

	if _, _, err := g.client(ctx, token).Repositories.CreateStatus(ctx, owner, repo, sha, status); err != nil {
		return &StatusReportError{Owner: owner, Repo: repo, SHA: sha, Status: st, Err: err}
	}
	return nil
}

func (g *GitHub) target(owner, repo, sha string) string {
	if g.targetURL == "" {
		return ""
	}
	return strings.NewReplacer("{owner}", owner, "{repo}", repo, "{sha}", sha).Replace(g.targetURL)
}
