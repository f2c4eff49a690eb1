// Package bundle is the change-set codec: it turns a branch's unique history
// into a single self-contained artifact file and imports such artifacts back
// into a repository. The artifact body is the engine's bundle format,
// optionally wrapped in zstd for transport over bandwidth-constrained
// channels.
package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/packflow/pkg/repo"
)

// Artifact filename extensions.
const (
	Ext           = "bundle"
	CompressedExt = "bundle.zst"
)

// refHierarchyPrefix is stripped from an artifact's recorded ref path to
// recover the bare branch name.
const refHierarchyPrefix = "refs/heads/"

// Encode exports the commits reachable from head but not from base into a
// self-contained artifact at destPath. When head == base the artifact covers
// head's entire history. An empty range yields ErrEmptyRange and no file; a
// dirty working tree yields ErrRepositoryState before anything is written.
func Encode(ctx context.Context, r *repo.Repo, base, head, destPath string, compress bool) error {
	clean, err := r.IsClean(ctx)
	if err != nil {
		return err
	}
	if !clean {
		return fmt.Errorf("%w: commit or stash before saving", ErrRepositoryState)
	}

	n, err := r.RangeCount(ctx, base, head)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w (%s has no commits beyond %s)", ErrEmptyRange, head, base)
	}

	// A range argument both limits the commit set and records the head ref
	// in the artifact; a bare ref exports the full history.
	revs := []string{head}
	if base != head {
		revs = []string{base + ".." + head}
	}

	if !compress {
		return r.CreateBundle(ctx, destPath, revs...)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".packflow-encode-*")
	if err != nil {
		return fmt.Errorf("stage artifact: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := r.CreateBundle(ctx, tmpPath, revs...); err != nil {
		return err
	}
	if err := compressFile(tmpPath, destPath); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("compress artifact: %w", err)
	}
	return nil
}

// PeekTargetRef inspects an artifact without importing it and returns the
// bare branch name it targets.
func PeekTargetRef(ctx context.Context, r *repo.Repo, artifactPath string) (string, error) {
	staged, cleanup, err := stage(artifactPath)
	if err != nil {
		return "", err
	}
	defer cleanup()

	heads, err := r.BundleHeads(ctx, staged)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	if len(heads) == 0 {
		return "", fmt.Errorf("%w: artifact records no refs", ErrCorruptArtifact)
	}
	return strings.TrimPrefix(heads[0].Ref, refHierarchyPrefix), nil
}

// Verify checks an artifact end to end without importing it: the engine
// confirms the bundle is well-formed and its prerequisite commits are
// locally satisfied, and the target branch name is returned. An artifact
// that fails here would fail a load the same way.
func Verify(ctx context.Context, r *repo.Repo, artifactPath string) (string, error) {
	staged, cleanup, err := stage(artifactPath)
	if err != nil {
		return "", err
	}
	defer cleanup()

	if err := r.VerifyBundle(ctx, staged); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	heads, err := r.BundleHeads(ctx, staged)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	if len(heads) == 0 {
		return "", fmt.Errorf("%w: artifact records no refs", ErrCorruptArtifact)
	}
	return strings.TrimPrefix(heads[0].Ref, refHierarchyPrefix), nil
}

// DecodeInto verifies the artifact and imports its commits into the
// repository's object store under a transient head, altering no local
// branch. It returns the imported head commit identifier. Re-importing an
// already-imported artifact is a no-op that returns the same commit.
func DecodeInto(ctx context.Context, r *repo.Repo, artifactPath string) (string, error) {
	staged, cleanup, err := stage(artifactPath)
	if err != nil {
		return "", err
	}
	defer cleanup()

	if err := r.VerifyBundle(ctx, staged); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	heads, err := r.BundleHeads(ctx, staged)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	if len(heads) == 0 {
		return "", fmt.Errorf("%w: artifact records no refs", ErrCorruptArtifact)
	}
	commit, err := r.FetchBundle(ctx, staged, heads[0].Ref)
	if err != nil {
		return "", err
	}
	return commit, nil
}

// stage makes an artifact readable by the engine: compressed artifacts are
// unwrapped into a temp file, plain ones are used in place. cleanup is
// always safe to call.
func stage(artifactPath string) (string, func(), error) {
	compressed, err := isCompressed(artifactPath)
	if err != nil {
		return "", func() {}, fmt.Errorf("read artifact %q: %w", artifactPath, err)
	}
	if !compressed {
		return artifactPath, func() {}, nil
	}

	tmp, err := os.CreateTemp("", "packflow-stage-*."+Ext)
	if err != nil {
		return "", func() {}, fmt.Errorf("stage artifact: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	if err := decompressFile(artifactPath, tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", func() {}, fmt.Errorf("%w: bad compression envelope: %v", ErrCorruptArtifact, err)
	}
	return tmpPath, func() { os.Remove(tmpPath) }, nil
}
