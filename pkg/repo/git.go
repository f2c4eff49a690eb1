package repo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// streamingTimeout bounds long-running engine calls (bundle creation over a
// big history, fetches). Capture calls are short and rely on the caller's
// context alone.
const streamingTimeout = 5 * time.Minute

// git runs a git subcommand rooted at the repository and captures stdout.
// Stderr is folded into the returned error.
func (r *Repo) git(ctx context.Context, args ...string) ([]byte, error) {
	return r.gitIn(ctx, r.RootDir, args...)
}

func (r *Repo) gitIn(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	start := time.Now()
	err := cmd.Run()
	r.log.Debug("git",
		zap.Strings("args", args),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.Bytes(), nil
}

// gitStreaming runs a git subcommand with stdout/stderr streamed to the
// given writers, under streamingTimeout.
func (r *Repo) gitStreaming(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	cctx, cancel := context.WithTimeout(ctx, streamingTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "git", append([]string{"-C", r.RootDir}, args...)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	start := time.Now()
	err := cmd.Run()
	r.log.Debug("git stream",
		zap.Strings("args", args),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		return fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
