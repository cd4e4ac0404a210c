// Package github validates repository URLs and creates pull requests through
// the GitHub REST API.
package github

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// repoURLPattern accepts only HTTPS GitHub repository URLs. Anything else is
// rejected before it can reach a git invocation.
var repoURLPattern = regexp.MustCompile(`^https://github\.com/[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+(\.git)?$`)

// ValidateRepoURL rejects any URL not of the form
// https://github.com/<owner>/<repo>[.git].
func ValidateRepoURL(repoURL string) error {
	if !repoURLPattern.MatchString(repoURL) {
		return fmt.Errorf("invalid or unsupported repo URL: %q", repoURL)
	}
	return nil
}

// ParseRepoURL extracts owner and repo from a validated GitHub HTTPS URL.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	if err := ValidateRepoURL(repoURL); err != nil {
		return "", "", err
	}
	trimmed := strings.TrimSuffix(repoURL, ".git")
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// Client creates pull requests against the GitHub API.
type Client struct {
	client  *github.Client
	limiter *rate.Limiter
}

// New creates an authenticated GitHub client. API calls are throttled to stay
// clear of GitHub's secondary rate limits.
func New(token string) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return &Client{
		client:  github.NewClient(tc),
		limiter: rate.NewLimiter(rate.Limit(1), 3),
	}
}

// CreatePR opens a pull request. Any API failure, including a non-2xx
// response, is returned as an error carrying the response details.
func (c *Client) CreatePR(ctx context.Context, owner, repo, title, body, head, base string) (*github.PullRequest, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pr, _, err := c.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(title),
		Body:  github.String(body),
		Head:  github.String(head),
		Base:  github.String(base),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create PR: %w", err)
	}

	return pr, nil
}
