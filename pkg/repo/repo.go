// Package repo is the bridge to the version-control engine: an opened git
// working tree driven through the git binary. Every operation takes the
// repository handle and a context explicitly; nothing reads ambient process
// state beyond the handle's root directory.
package repo

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Repo represents an opened repository rooted at a git working tree.
type Repo struct {
	RootDir string // working tree root, absolute

	log *zap.Logger
}

// Option configures a Repo at Open time.
type Option func(*Repo)

// WithLogger attaches a logger used to trace engine invocations at debug
// level. The default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Repo) {
		if log != nil {
			r.log = log
		}
	}
}

// Open resolves dir to its enclosing working tree root and returns a handle
// to it. dir may be any path inside the working tree.
func Open(ctx context.Context, dir string, opts ...Option) (*Repo, error) {
	r := &Repo{log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	out, err := r.gitIn(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("open repository at %q: %w", dir, err)
	}
	root := strings.TrimSpace(string(out))
	if root == "" {
		return nil, fmt.Errorf("open repository at %q: engine returned no root", dir)
	}
	r.RootDir = root
	return r, nil
}

// CurrentBranch returns the bare name of the checked-out branch. A detached
// HEAD yields ErrDetachedHead.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDetachedHead, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// IsClean reports whether the working tree and index carry no uncommitted
// changes. Untracked files count as dirty: they make an exported range
// ambiguous from the operator's point of view.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	out, err := r.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return len(strings.TrimSpace(string(out))) == 0, nil
}

// ResolveCommit resolves a revision expression to a full commit identifier.
func (r *Repo) ResolveCommit(ctx context.Context, rev string) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--verify", rev+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
