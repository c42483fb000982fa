package vcs

import (
	"context"
	"fmt"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// GitProvider implements port.VCSProvider using go-git.
type GitProvider struct{}

// NewGitProvider creates a new Git VCS provider.
func NewGitProvider() *GitProvider {
	return &GitProvider{}
}

// Clone clones a repository into dest. Username and token are optional; when
// present they are passed as HTTP basic auth, which covers GitHub/GitLab
// personal access tokens. The clone is shallow since ingestion only reads
// the working tree.
func (g *GitProvider) Clone(ctx context.Context, url, dest, username, token string) error {
	opts := &git.CloneOptions{
		URL:   url,
		Depth: 1,
	}
	if username != "" || token != "" {
		opts.Auth = &http.BasicAuth{Username: username, Password: token}
	}

	if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
		return fmt.Errorf("git clone %s: %w", url, err)
	}
	return nil
}
