// Package run executes external commands with timeouts and captured output.
//
// Two invocation shapes are supported: Run takes an argument vector and never
// involves a shell; Shell hands a composed command string to /bin/sh and is
// reserved for the one collaborator (the opencode CLI) whose invocation needs
// shell-level file substitution. Every dynamic value interpolated into a Shell
// command must be escaped with Quote.
package run

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/chainguard-dev/clog"
)

// CommandError is returned when an external command exits non-zero or its
// timeout elapses. Output carries the combined stdout/stderr captured up to
// the failure.
type CommandError struct {
	Name   string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("command %q failed: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("command %q failed: %v\noutput: %s", e.Name, e.Err, e.Output)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Runner executes external processes.
type Runner struct{}

// New creates a Runner.
func New() *Runner {
	return &Runner{}
}

// Run executes name with args in dir, bounded by timeout. It returns the
// trimmed combined output, or a CommandError on non-zero exit or timeout.
func (r *Runner) Run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clog.FromContext(ctx).Debugf("exec: %s %s (dir=%s)", name, strings.Join(args, " "), dir)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &CommandError{Name: name, Output: strings.TrimSpace(string(out)), Err: wrapTimeout(ctx, err)}
	}
	return strings.TrimSpace(string(out)), nil
}

// Shell executes a command string via /bin/sh -c in dir, bounded by timeout.
// The caller is responsible for quoting every interpolated value with Quote.
func (r *Runner) Shell(ctx context.Context, dir string, timeout time.Duration, script string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clog.FromContext(ctx).Debugf("shell: %s (dir=%s)", script, dir)

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &CommandError{Name: "sh", Output: strings.TrimSpace(string(out)), Err: wrapTimeout(ctx, err)}
	}
	return strings.TrimSpace(string(out)), nil
}

// Quote escapes a single value for safe interpolation into a Shell command.
func Quote(s string) string {
	return shellescape.Quote(s)
}

// wrapTimeout surfaces a deadline hit over the raw "signal: killed" error the
// process reports when its context expires.
func wrapTimeout(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("timed out: %w", ctx.Err())
	}
	return err
}
