// Package git drives the git CLI for the clone-to-push half of the workflow.
package git

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// opTimeout bounds the quick local operations (config, checkout, status,
// add, commit). Clone and push carry their own configured timeouts.
const opTimeout = 60 * time.Second

// remoteShowTimeout bounds default-branch detection, which talks to the
// remote.
const remoteShowTimeout = 30 * time.Second

// Runner executes an external command. Satisfied by *run.Runner.
type Runner interface {
	Run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (string, error)
}

// Client wraps git CLI invocations for a single authenticated remote.
type Client struct {
	runner       Runner
	token        string
	cloneTimeout time.Duration
	pushTimeout  time.Duration
}

// New creates a git client. The token is embedded into clone URLs for
// authentication and never logged.
func New(runner Runner, token string, cloneTimeout, pushTimeout time.Duration) *Client {
	return &Client{
		runner:       runner,
		token:        token,
		cloneTimeout: cloneTimeout,
		pushTimeout:  pushTimeout,
	}
}

// authedURL embeds the token into an HTTPS GitHub URL. The URL has already
// passed validation, so the prefix is known to be present.
func (c *Client) authedURL(repoURL string) string {
	return strings.Replace(repoURL, "https://", "https://x-access-token:"+c.token+"@", 1)
}

// Clone performs a shallow clone of repoURL into dest.
func (c *Client) Clone(ctx context.Context, repoURL, dest string) error {
	if _, err := c.runner.Run(ctx, "", c.cloneTimeout, "git", "clone", "--depth", "1", c.authedURL(repoURL), dest); err != nil {
		return fmt.Errorf("cloning repository: %w", err)
	}
	return nil
}

// SetIdentity configures the local commit author in the clone at dir.
func (c *Client) SetIdentity(ctx context.Context, dir, name, email string) error {
	if _, err := c.runner.Run(ctx, dir, opTimeout, "git", "config", "user.name", name); err != nil {
		return fmt.Errorf("setting user.name: %w", err)
	}
	if _, err := c.runner.Run(ctx, dir, opTimeout, "git", "config", "user.email", email); err != nil {
		return fmt.Errorf("setting user.email: %w", err)
	}
	return nil
}

// CreateBranch creates and checks out a new branch from the current tip.
func (c *Client) CreateBranch(ctx context.Context, dir, branch string) error {
	if _, err := c.runner.Run(ctx, dir, opTimeout, "git", "checkout", "-b", branch); err != nil {
		return fmt.Errorf("creating branch %s: %w", branch, err)
	}
	return nil
}

// Status returns the porcelain status of the working tree. An empty string
// means no modifications.
func (c *Client) Status(ctx context.Context, dir string) (string, error) {
	out, err := c.runner.Run(ctx, dir, opTimeout, "git", "status", "--porcelain")
	if err != nil {
		return "", fmt.Errorf("checking status: %w", err)
	}
	return out, nil
}

// AddAll stages every change in the working tree.
func (c *Client) AddAll(ctx context.Context, dir string) error {
	if _, err := c.runner.Run(ctx, dir, opTimeout, "git", "add", "-A"); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}
	return nil
}

// Commit records the staged changes with the given message.
func (c *Client) Commit(ctx context.Context, dir, message string) error {
	if _, err := c.runner.Run(ctx, dir, opTimeout, "git", "commit", "-m", message); err != nil {
		return fmt.Errorf("committing changes: %w", err)
	}
	return nil
}

// Push pushes branch to origin.
func (c *Client) Push(ctx context.Context, dir, branch string) error {
	if _, err := c.runner.Run(ctx, dir, c.pushTimeout, "git", "push", "origin", branch); err != nil {
		return fmt.Errorf("pushing branch %s: %w", branch, err)
	}
	return nil
}

// DefaultBranch asks the remote which branch HEAD points at. Falls back to
// "main" when the remote output carries no HEAD line.
func (c *Client) DefaultBranch(ctx context.Context, dir string) (string, error) {
	out, err := c.runner.Run(ctx, dir, remoteShowTimeout, "git", "remote", "show", "origin")
	if err != nil {
		return "", fmt.Errorf("querying remote: %w", err)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "HEAD branch") {
			parts := strings.Split(line, ":")
			return strings.TrimSpace(parts[len(parts)-1]), nil
		}
	}
	return "main", nil
}
