// codexagent is an HTTP service that turns bug reports into pull requests:
// it clones the target repository, runs the opencode CLI against it, and
// pushes whatever the tool changed as a new branch with an open PR.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"

	"github.com/codexagent/codexagent/pkg/agent"
	"github.com/codexagent/codexagent/pkg/config"
	"github.com/codexagent/codexagent/pkg/git"
	"github.com/codexagent/codexagent/pkg/github"
	"github.com/codexagent/codexagent/pkg/pipeline"
	"github.com/codexagent/codexagent/pkg/run"
	"github.com/codexagent/codexagent/pkg/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := clog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	ctx = clog.WithLogger(ctx, logger)

	runner := run.New()
	gitClient := git.New(runner, cfg.GitHubToken, cfg.CloneTimeout(), cfg.GitPushTimeout())
	invoker := agent.New(runner, cfg.OpencodeBin, cfg.OpencodeModel, cfg.OpencodeTimeout())
	ghClient := github.New(cfg.GitHubToken)

	pipe := pipeline.New(gitClient, invoker, ghClient, cfg.GitAuthorName, cfg.GitAuthorEmail, cfg.MaxRepoSizeBytes())

	srv, err := server.New(pipe)
	if err != nil {
		clog.FatalContextf(ctx, "creating server: %v", err)
	}

	clog.InfoContextf(ctx, "starting codexagent (model=%s, max repo size=%d MB)", cfg.OpencodeModel, cfg.MaxRepoSizeMB)
	if err := srv.Start(ctx, cfg.Port); err != nil {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
}
