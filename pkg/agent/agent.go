// Package agent stages the prompt and screenshot on disk and invokes the
// opencode CLI against a cloned repository.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/codexagent/codexagent/pkg/run"
)

// ScreenshotName is the filename the optional bug screenshot is written to
// inside the repository working tree. It is removed again before the working
// tree is inspected for changes, so it can never be committed.
const ScreenshotName = ".codexagent_screenshot.jpg"

// promptName is the prompt filename inside the workspace (outside the
// repository, so it never shows up in the working tree).
const promptName = "prompt.txt"

// Runner executes a shell command string. Satisfied by *run.Runner.
type Runner interface {
	Shell(ctx context.Context, dir string, timeout time.Duration, script string) (string, error)
}

// Invoker runs the opencode CLI against a working tree.
type Invoker struct {
	runner  Runner
	bin     string
	model   string
	timeout time.Duration
}

// New creates an Invoker for the given opencode binary and model.
func New(runner Runner, bin, model string, timeout time.Duration) *Invoker {
	return &Invoker{
		runner:  runner,
		bin:     bin,
		model:   model,
		timeout: timeout,
	}
}

// Fix writes the bug description to a prompt file in workspace (the
// description goes through a file to stay clear of ARG_MAX), persists the
// optional screenshot inside repoDir, and runs opencode in repoDir. The
// screenshot is removed before returning on every path.
func (i *Invoker) Fix(ctx context.Context, workspace, repoDir, description string, image []byte) (string, error) {
	log := clog.FromContext(ctx)

	promptFile := filepath.Join(workspace, promptName)
	if err := os.WriteFile(promptFile, []byte(description), 0o644); err != nil {
		return "", fmt.Errorf("writing prompt file: %w", err)
	}

	imageFile := ""
	if len(image) > 0 {
		imageFile = filepath.Join(repoDir, ScreenshotName)
		if err := os.WriteFile(imageFile, image, 0o644); err != nil {
			return "", fmt.Errorf("writing screenshot: %w", err)
		}
		defer os.Remove(imageFile)
		log.Infof("screenshot saved to %s (%d bytes)", imageFile, len(image))
	}

	script := Command(i.bin, i.model, promptFile, imageFile)
	log.Infof("running opencode: %s", script)

	out, err := i.runner.Shell(ctx, repoDir, i.timeout, script)
	if err != nil {
		return "", fmt.Errorf("opencode run failed: %w", err)
	}
	return out, nil
}

// Command composes the opencode shell invocation. The prompt is substituted
// via $(cat ...) so arbitrarily long descriptions work; every interpolated
// value is strictly quoted. imageFile may be empty.
func Command(bin, model, promptFile, imageFile string) string {
	script := fmt.Sprintf(`%s run --model %s "$(cat %s)"`,
		run.Quote(bin), run.Quote(model), run.Quote(promptFile))
	if imageFile != "" {
		script += " -f " + run.Quote(imageFile)
	}
	return script
}
