package repo

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Head is one ref recorded in a bundle artifact.
type Head struct {
	Commit string
	Ref    string // full ref path, e.g. refs/heads/feature
}

// CreateBundle writes a bundle at path covering the given revision
// arguments (a "base..head" range, or a bare ref for a full history; either
// form records the head ref in the bundle). The engine refuses empty
// ranges; callers are expected to check RangeCount first for a typed error.
func (r *Repo) CreateBundle(ctx context.Context, path string, revs ...string) error {
	args := append([]string{"bundle", "create", path}, revs...)
	if err := r.gitStreaming(ctx, io.Discard, io.Discard, args...); err != nil {
		return fmt.Errorf("create bundle %q: %w", path, err)
	}
	return nil
}

// VerifyBundle checks that the bundle at path is well-formed and that its
// prerequisite commits are present locally.
func (r *Repo) VerifyBundle(ctx context.Context, path string) error {
	if _, err := r.git(ctx, "bundle", "verify", path); err != nil {
		return err
	}
	return nil
}

// BundleHeads lists the refs a bundle carries, without importing anything.
func (r *Repo) BundleHeads(ctx context.Context, path string) ([]Head, error) {
	out, err := r.git(ctx, "bundle", "list-heads", path)
	if err != nil {
		return nil, err
	}
	var heads []Head
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		commit, ref, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("bundle list-heads: malformed line %q", line)
		}
		heads = append(heads, Head{Commit: commit, Ref: strings.TrimSpace(ref)})
	}
	return heads, nil
}

// FetchBundle imports the bundle's objects for ref into the object store
// under FETCH_HEAD, altering no local branch, and returns the fetched commit
// identifier. Re-fetching an already-imported bundle is a no-op that yields
// the same commit.
func (r *Repo) FetchBundle(ctx context.Context, path, ref string) (string, error) {
	if err := r.gitStreaming(ctx, io.Discard, io.Discard, "fetch", path, ref); err != nil {
		return "", fmt.Errorf("fetch bundle %q: %w", path, err)
	}
	commit, err := r.ResolveCommit(ctx, "FETCH_HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve fetched head: %w", err)
	}
	return commit, nil
}

// MergeFetched merges a fetched commit into the checked-out branch with the
// engine's standard three-way merge. On conflict the branch ref is left
// unchanged, the working tree holds the conflict markers, and
// ErrMergeConflict is returned for the operator to resolve by hand.
func (r *Repo) MergeFetched(ctx context.Context, commit string) error {
	_, err := r.git(ctx, "merge", "--no-edit", commit)
	if err == nil {
		return nil
	}
	unmerged, lsErr := r.git(ctx, "ls-files", "--unmerged")
	if lsErr == nil && len(strings.TrimSpace(string(unmerged))) > 0 {
		return fmt.Errorf("%w: %v", ErrMergeConflict, err)
	}
	return fmt.Errorf("merge %s: %w", commit, err)
}
