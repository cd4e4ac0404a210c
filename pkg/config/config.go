package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all environment-provided settings. It is processed once at
// startup and passed by reference into the components that need it; nothing
// else in the tree reads the process environment.
type Config struct {
	Port  int  `env:"PORT,default=8000"`
	Debug bool `env:"DEBUG,default=false"`

	// GitHub authentication and commit identity.
	GitHubToken    string `env:"GITHUB_TOKEN,required"`
	GitAuthorName  string `env:"GIT_AUTHOR_NAME,default=codex-agent"`
	GitAuthorEmail string `env:"GIT_AUTHOR_EMAIL,default=codex-agent@example.com"`

	// Agent tool configuration.
	OpencodeBin   string `env:"OPENCODE_BIN,default=opencode"`
	OpencodeModel string `env:"OPENCODE_MODEL,default=gpt-4o"`

	// Limits and timeouts. Timeouts are expressed in seconds to match the
	// deployment environment's conventions.
	MaxRepoSizeMB      int64 `env:"MAX_REPO_SIZE_MB,default=500"`
	CloneTimeoutSec    int   `env:"CLONE_TIMEOUT,default=120"`
	OpencodeTimeoutSec int   `env:"OPENCODE_TIMEOUT,default=600"`
	GitPushTimeoutSec  int   `env:"GIT_PUSH_TIMEOUT,default=120"`
}

// Load processes the environment into a Config. A missing GITHUB_TOKEN is a
// fatal configuration error surfaced here, before the server starts serving.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CloneTimeout returns the clone timeout as a duration.
func (c *Config) CloneTimeout() time.Duration {
	return time.Duration(c.CloneTimeoutSec) * time.Second
}

// OpencodeTimeout returns the agent invocation timeout as a duration.
func (c *Config) OpencodeTimeout() time.Duration {
	return time.Duration(c.OpencodeTimeoutSec) * time.Second
}

// GitPushTimeout returns the push timeout as a duration.
func (c *Config) GitPushTimeout() time.Duration {
	return time.Duration(c.GitPushTimeoutSec) * time.Second
}

// MaxRepoSizeBytes returns the repository size cap in bytes.
func (c *Config) MaxRepoSizeBytes() int64 {
	return c.MaxRepoSizeMB * 1024 * 1024
}
