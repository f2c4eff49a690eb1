package repo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// BranchExists reports whether a local branch of the given bare name exists.
func (r *Repo) BranchExists(ctx context.Context, name string) (bool, error) {
	out, err := r.git(ctx, "branch", "--list", "--format=%(refname:short)", name)
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

// Checkout switches the working tree to an existing branch.
func (r *Repo) Checkout(ctx context.Context, name string) error {
	if _, err := r.git(ctx, "checkout", name); err != nil {
		return fmt.Errorf("checkout %q: %w", name, err)
	}
	return nil
}

// CheckoutNew creates a branch at the current checkout state and switches to
// it. First writer of a branch name wins the create path; later loads of the
// same name go through Checkout instead.
func (r *Repo) CheckoutNew(ctx context.Context, name string) error {
	if _, err := r.git(ctx, "checkout", "-b", name); err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// RangeCount returns the number of commits reachable from head but not from
// base. When base == head the range is the entire history of head: saving
// the trunk itself has no meaningful exclusion set.
func (r *Repo) RangeCount(ctx context.Context, base, head string) (int, error) {
	out, err := r.git(ctx, "rev-list", "--count", rangeSpec(base, head))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("parse commit count: %w", err)
	}
	return n, nil
}

// RangeCommits lists the commit identifiers in the same range as RangeCount,
// newest first.
func (r *Repo) RangeCommits(ctx context.Context, base, head string) ([]string, error) {
	out, err := r.git(ctx, "rev-list", rangeSpec(base, head))
	if err != nil {
		return nil, err
	}
	var commits []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			commits = append(commits, line)
		}
	}
	return commits, nil
}

func rangeSpec(base, head string) string {
	if base == head {
		return head
	}
	return base + ".." + head
}
