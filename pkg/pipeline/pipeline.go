// Package pipeline orchestrates the bugfix-to-pull-request workflow: validate
// the repository URL, clone, branch, run the agent, and either report a no-op
// or commit, push, and open a pull request. Each request runs in its own
// temporary workspace, removed on every exit path.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v57/github"

	"github.com/chainguard-dev/clog"

	"github.com/codexagent/codexagent/pkg/github"
)

// commitMsgMaxLen bounds the description portion of the commit message and PR
// title.
const commitMsgMaxLen = 72

// commitPrefix starts every generated commit message and PR title.
const commitPrefix = "Auto Fix: "

// GitClient covers the git CLI operations the pipeline needs.
type GitClient interface {
	Clone(ctx context.Context, repoURL, dest string) error
	SetIdentity(ctx context.Context, dir, name, email string) error
	CreateBranch(ctx context.Context, dir, branch string) error
	Status(ctx context.Context, dir string) (string, error)
	AddAll(ctx context.Context, dir string) error
	Commit(ctx context.Context, dir, message string) error
	Push(ctx context.Context, dir, branch string) error
	DefaultBranch(ctx context.Context, dir string) (string, error)
}

// AgentInvoker runs the AI code-editing tool against a clone.
type AgentInvoker interface {
	Fix(ctx context.Context, workspace, repoDir, description string, image []byte) (string, error)
}

// PRCreator opens a pull request.
type PRCreator interface {
	CreatePR(ctx context.Context, owner, repo, title, body, head, base string) (*gogithub.PullRequest, error)
}

// Request is one fix request crossing the HTTP boundary.
type Request struct {
	RepoURL     string
	Description string
	Image       []byte
}

// Result is the success outcome of a pipeline run. Status is "ok" when a pull
// request was opened and "no_changes" when the agent modified nothing.
type Result struct {
	Status string `json:"status"`
	PRURL  string `json:"pr_url,omitempty"`
	Branch string `json:"branch"`
}

// Pipeline executes fix requests sequentially, one isolated workspace per
// request.
type Pipeline struct {
	git   GitClient
	agent AgentInvoker
	prs   PRCreator

	authorName  string
	authorEmail string
	maxSize     int64

	// now is injectable for deterministic branch names in tests.
	now func() time.Time
}

// New wires a pipeline from its collaborators. maxSizeBytes caps the on-disk
// size of a clone.
func New(git GitClient, agent AgentInvoker, prs PRCreator, authorName, authorEmail string, maxSizeBytes int64) *Pipeline {
	return &Pipeline{
		git:         git,
		agent:       agent,
		prs:         prs,
		authorName:  authorName,
		authorEmail: authorEmail,
		maxSize:     maxSizeBytes,
		now:         time.Now,
	}
}

// Run executes the full workflow for one request. The returned error, when
// non-nil, is always a *Error carrying its taxonomy kind.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	log := clog.FromContext(ctx)

	if err := github.ValidateRepoURL(req.RepoURL); err != nil {
		return nil, &Error{Kind: KindValidation, Err: err}
	}
	owner, repo, err := github.ParseRepoURL(req.RepoURL)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Err: err}
	}

	workspace, err := os.MkdirTemp("", "codexagent_")
	if err != nil {
		return nil, executionErrorf(err, "creating workspace")
	}
	defer func() {
		os.RemoveAll(workspace)
		log.Debugf("workspace %s cleaned up", workspace)
	}()
	log.Infof("workspace=%s repo=%s", workspace, req.RepoURL)

	repoDir := filepath.Join(workspace, "repo")
	log.Infof("cloning %s", req.RepoURL)
	if err := p.git.Clone(ctx, req.RepoURL, repoDir); err != nil {
		return nil, executionErrorf(err, "clone")
	}

	if err := p.checkSize(repoDir); err != nil {
		return nil, err
	}

	if err := p.git.SetIdentity(ctx, repoDir, p.authorName, p.authorEmail); err != nil {
		return nil, executionErrorf(err, "configuring identity")
	}

	branch := fmt.Sprintf("auto/fix-%d", p.now().Unix())
	if err := p.git.CreateBranch(ctx, repoDir, branch); err != nil {
		return nil, executionErrorf(err, "branching")
	}
	log.Infof("branch=%s", branch)

	out, err := p.agent.Fix(ctx, workspace, repoDir, req.Description, req.Image)
	if err != nil {
		return nil, executionErrorf(err, "agent")
	}
	log.Debugf("opencode output:\n%s", out)

	status, err := p.git.Status(ctx, repoDir)
	if err != nil {
		return nil, executionErrorf(err, "status")
	}
	if status == "" {
		log.Warnf("opencode produced no file changes, nothing to commit")
		return &Result{Status: "no_changes", Branch: branch}, nil
	}

	if err := p.git.AddAll(ctx, repoDir); err != nil {
		return nil, executionErrorf(err, "staging")
	}
	message := commitMessage(req.Description)
	if err := p.git.Commit(ctx, repoDir, message); err != nil {
		return nil, executionErrorf(err, "commit")
	}

	log.Infof("pushing branch %s", branch)
	if err := p.git.Push(ctx, repoDir, branch); err != nil {
		return nil, executionErrorf(err, "push")
	}

	base, err := p.git.DefaultBranch(ctx, repoDir)
	if err != nil {
		return nil, executionErrorf(err, "detecting default branch")
	}

	pr, err := p.prs.CreatePR(ctx, owner, repo, message, prBody(req.Description), branch, base)
	if err != nil {
		return nil, executionErrorf(err, "opening pull request")
	}

	log.Infof("PR created: %s", pr.GetHTMLURL())
	return &Result{Status: "ok", PRURL: pr.GetHTMLURL(), Branch: branch}, nil
}

// checkSize walks the clone and fails when the summed file sizes exceed the
// configured cap.
func (p *Pipeline) checkSize(repoDir string) error {
	var total int64
	err := filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return executionErrorf(err, "measuring repository size")
	}
	if total > p.maxSize {
		return &Error{
			Kind: KindSizeLimit,
			Err: fmt.Errorf("repository size %.1f MB exceeds limit of %d MB",
				float64(total)/(1024*1024), p.maxSize/(1024*1024)),
		}
	}
	return nil
}

// commitMessage builds the commit message and PR title: the fixed prefix plus
// the description truncated to 72 runes.
func commitMessage(description string) string {
	return commitPrefix + truncate(description, commitMsgMaxLen)
}

// prBody builds the pull-request body with the full, untruncated description.
func prBody(description string) string {
	var b strings.Builder
	b.WriteString("## Automated Fix\n\n")
	b.WriteString("**Bug description:**\n")
	b.WriteString(description)
	b.WriteString("\n\n_This PR was created automatically by codexagent._")
	return b.String()
}

// truncate cuts s to at most n runes, never splitting a multi-byte character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
