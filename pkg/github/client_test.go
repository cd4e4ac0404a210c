package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRepoURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantError bool
	}{
		{name: "plain HTTPS URL", url: "https://github.com/acme/widgets"},
		{name: "with .git suffix", url: "https://github.com/acme/widgets.git"},
		{name: "dots and dashes", url: "https://github.com/some-org/repo.name-v2"},
		{name: "ftp scheme", url: "ftp://github.com/acme/widgets", wantError: true},
		{name: "http scheme", url: "http://github.com/acme/widgets", wantError: true},
		{name: "SSH URL", url: "git@github.com:acme/widgets.git", wantError: true},
		{name: "wrong host", url: "https://gitlab.com/acme/widgets", wantError: true},
		{name: "missing repo", url: "https://github.com/acme", wantError: true},
		{name: "extra path segment", url: "https://github.com/acme/widgets/tree/main", wantError: true},
		{name: "shell metacharacters", url: "https://github.com/acme/widgets;rm -rf /", wantError: true},
		{name: "embedded credentials", url: "https://evil@github.com/acme/widgets", wantError: true},
		{name: "empty", url: "", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRepoURL(tt.url)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantError bool
	}{
		{name: "plain URL", url: "https://github.com/acme/widgets", wantOwner: "acme", wantRepo: "widgets"},
		{name: "git suffix stripped", url: "https://github.com/acme/widgets.git", wantOwner: "acme", wantRepo: "widgets"},
		{name: "invalid URL", url: "not-a-url", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRepoURL(tt.url)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestNew(t *testing.T) {
	client := New("test-token")
	require.NotNil(t, client)
	assert.NotNil(t, client.client)
	assert.NotNil(t, client.limiter)
}
