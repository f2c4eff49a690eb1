// Package session orchestrates one save or load against an opened
// repository. A Session is ephemeral: constructed at command start,
// discarded at command end, and it persists nothing beyond what the
// repository itself records.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/odvcencio/packflow/pkg/bundle"
	"github.com/odvcencio/packflow/pkg/config"
	"github.com/odvcencio/packflow/pkg/refname"
	"github.com/odvcencio/packflow/pkg/repo"
	"github.com/odvcencio/packflow/pkg/signing"
)

// Session drives one save or load.
type Session struct {
	repo  *repo.Repo
	cfg   *config.Config
	log   *zap.Logger
	now   func() time.Time
	state State
}

// Option configures a Session.
type Option func(*Session)

// WithLogger attaches a logger tracing state transitions at debug level.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the timestamp source used for artifact names.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a session over an opened repository. A nil cfg means defaults.
func New(r *repo.Repo, cfg *config.Config, opts ...Option) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Session{
		repo:  r,
		cfg:   cfg,
		log:   zap.NewNop(),
		now:   time.Now,
		state: StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the session's current lifecycle state.
func (s *Session) State() State { return s.state }

func (s *Session) transition(to State) {
	s.log.Debug("session state",
		zap.Stringer("from", s.state),
		zap.Stringer("to", to),
	)
	s.state = to
}

func (s *Session) fail(err error) error {
	s.transition(StateFailed)
	return err
}

// SaveResult reports a completed save.
type SaveResult struct {
	Branch  string
	Path    string
	SigPath string // empty when signing is not configured
}

// LoadResult reports a completed load.
type LoadResult struct {
	Branch  string
	Commit  string // merged head commit identifier
	Created bool   // the target branch did not exist before this load
	Signer  string // verified signer principal, empty when unverified
}

// Save exports the current branch's commits beyond the configured trunk
// into a new artifact under outDir and returns its path. Saving the trunk
// itself exports its full history. When a signing key is configured the
// artifact gets a detached signature beside it.
func (s *Session) Save(ctx context.Context, outDir string) (*SaveResult, error) {
	branch, err := s.repo.CurrentBranch(ctx)
	if err != nil {
		return nil, s.fail(err)
	}

	ext := bundle.Ext
	if s.cfg.Compress {
		ext = bundle.CompressedExt
	}
	name := refname.ArtifactName(branch, refname.Timestamp(s.now()), ext)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, s.fail(fmt.Errorf("output directory: %w", err))
	}
	path := filepath.Join(outDir, name)

	s.transition(StateEncoding)
	if err := bundle.Encode(ctx, s.repo, s.cfg.Trunk, branch, path, s.cfg.Compress); err != nil {
		return nil, s.fail(err)
	}

	result := &SaveResult{Branch: branch, Path: path}
	if s.cfg.Signing.Key != "" {
		// A failed save must not leave a shareable unsigned artifact at a
		// path it never reported.
		signer, err := signing.NewSigner(s.cfg.Signing.Key)
		if err != nil {
			os.Remove(path)
			return nil, s.fail(err)
		}
		sigPath, err := signer.SignFile(path)
		if err != nil {
			os.Remove(path)
			return nil, s.fail(err)
		}
		result.SigPath = sigPath
	}

	s.transition(StateDone)
	return result, nil
}

// Load imports an artifact: verify its signature per policy, resolve the
// target branch, create or select that branch, fetch the artifact's commits,
// and merge them into the checked-out branch. A merge conflict surfaces as
// repo.ErrMergeConflict with the working tree left for manual resolution.
func (s *Session) Load(ctx context.Context, artifactPath string) (*LoadResult, error) {
	result := &LoadResult{}

	principal, err := s.checkSignature(artifactPath)
	if err != nil {
		return nil, s.fail(err)
	}
	result.Signer = principal

	s.transition(StateResolving)
	branch, err := bundle.PeekTargetRef(ctx, s.repo, artifactPath)
	if err != nil {
		return nil, s.fail(err)
	}
	result.Branch = branch

	exists, err := s.repo.BranchExists(ctx, branch)
	if err != nil {
		return nil, s.fail(err)
	}
	if exists {
		s.transition(StateSelecting)
		if err := s.repo.Checkout(ctx, branch); err != nil {
			return nil, s.fail(err)
		}
	} else {
		s.transition(StateCreating)
		if err := s.repo.CheckoutNew(ctx, branch); err != nil {
			return nil, s.fail(err)
		}
		result.Created = true
	}

	s.transition(StateFetching)
	commit, err := bundle.DecodeInto(ctx, s.repo, artifactPath)
	if err != nil {
		return nil, s.fail(err)
	}

	s.transition(StateMerging)
	if err := s.repo.MergeFetched(ctx, commit); err != nil {
		return nil, s.fail(err)
	}
	result.Commit = commit

	s.transition(StateDone)
	return result, nil
}

// checkSignature applies the configured verification policy to the
// artifact's detached signature, returning the signer principal when one
// was verified.
func (s *Session) checkSignature(artifactPath string) (string, error) {
	sigPath := artifactPath + signing.SigExt
	_, err := os.Stat(sigPath)
	sigExists := err == nil

	if !sigExists {
		if s.cfg.Signing.Require {
			return "", fmt.Errorf("artifact %q carries no signature and signing.require is set", artifactPath)
		}
		return "", nil
	}
	if s.cfg.Signing.AllowedSigners == "" {
		if s.cfg.Signing.Require {
			return "", fmt.Errorf("signing.require is set but no allowed_signers list is configured")
		}
		s.log.Debug("signature present but no allowed_signers configured; skipping verification",
			zap.String("artifact", artifactPath))
		return "", nil
	}
	principal, err := signing.VerifyFile(artifactPath, sigPath, s.cfg.Signing.AllowedSigners)
	if err != nil {
		return "", err
	}
	return principal, nil
}
