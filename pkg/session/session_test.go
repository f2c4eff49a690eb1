package session

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/packflow/pkg/bundle"
	"github.com/odvcencio/packflow/pkg/config"
	"github.com/odvcencio/packflow/pkg/refname"
	"github.com/odvcencio/packflow/pkg/repo"
	"github.com/odvcencio/packflow/pkg/signing"
)

func newGitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	dir := t.TempDir()
	mustGit(t, dir, "init", "-b", "main")
	mustGit(t, dir, "config", "user.name", "packflow-test")
	mustGit(t, dir, "config", "user.email", "test@packflow.invalid")
	mustGit(t, dir, "config", "commit.gpgsign", "false")
	return dir
}

func mustGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func commitFile(t *testing.T, dir, name, content, msg string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	mustGit(t, dir, "add", name)
	mustGit(t, dir, "commit", "-m", msg)
	return mustGit(t, dir, "rev-parse", "HEAD")
}

func openRepo(t *testing.T, dir string) *repo.Repo {
	t.Helper()
	r, err := repo.Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("repo.Open(%q): %v", dir, err)
	}
	return r
}

func cloneTrunkOnly(t *testing.T, src string) string {
	t.Helper()
	dst := t.TempDir()
	mustGit(t, src, "checkout", "main")
	cmd := exec.Command("git", "clone", "--no-local", "--branch", "main", "--single-branch", src, dst)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git clone: %v\n%s", err, out)
	}
	mustGit(t, dst, "config", "user.name", "packflow-test")
	mustGit(t, dst, "config", "user.email", "test@packflow.invalid")
	mustGit(t, dst, "config", "commit.gpgsign", "false")
	return dst
}

// saveFeatureArtifact builds a sender with feature ahead of main, saves it,
// and returns the sender dir, artifact path, and the feature head commit.
func saveFeatureArtifact(t *testing.T, outDir string) (src, artifact, head string) {
	t.Helper()
	src = newGitRepo(t)
	commitFile(t, src, "base.txt", "base\n", "A")
	mustGit(t, src, "checkout", "-b", "feature")
	commitFile(t, src, "f1.txt", "one\n", "B")
	head = commitFile(t, src, "f2.txt", "two\n", "C")

	s := New(openRepo(t, src), config.Default())
	res, err := s.Save(context.Background(), outDir)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return src, res.Path, head
}

func TestSaveArtifactNaming(t *testing.T) {
	outDir := t.TempDir()
	fixed := time.Date(2024, 3, 9, 22, 5, 6, 0, time.UTC)

	src := newGitRepo(t)
	commitFile(t, src, "base.txt", "base\n", "A")
	mustGit(t, src, "checkout", "-b", "feature/foo")
	commitFile(t, src, "f.txt", "f\n", "B")

	s := New(openRepo(t, src), config.Default(), WithClock(func() time.Time { return fixed }))
	res, err := s.Save(context.Background(), outDir)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.Branch != "feature/foo" {
		t.Fatalf("Branch = %q, want feature/foo", res.Branch)
	}
	wantName := refname.ArtifactName("feature/foo", refname.Timestamp(fixed), bundle.Ext)
	if filepath.Base(res.Path) != wantName {
		t.Fatalf("artifact name = %q, want %q", filepath.Base(res.Path), wantName)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if s.State() != StateDone {
		t.Fatalf("state = %v, want done", s.State())
	}
}

func TestSaveEmptyRange(t *testing.T) {
	src := newGitRepo(t)
	commitFile(t, src, "base.txt", "base\n", "A")
	mustGit(t, src, "checkout", "-b", "feature")

	outDir := t.TempDir()
	s := New(openRepo(t, src), config.Default())
	_, err := s.Save(context.Background(), outDir)
	if !errors.Is(err, bundle.ErrEmptyRange) {
		t.Fatalf("Save = %v, want ErrEmptyRange", err)
	}
	entries, readErr := os.ReadDir(outDir)
	if readErr != nil {
		t.Fatalf("ReadDir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("artifact written despite empty range: %v", entries)
	}
	if s.State() != StateFailed {
		t.Fatalf("state = %v, want failed", s.State())
	}
}

func TestSaveTrunkSelf(t *testing.T) {
	src := newGitRepo(t)
	commitFile(t, src, "a.txt", "a\n", "A")
	commitFile(t, src, "b.txt", "b\n", "B")

	s := New(openRepo(t, src), config.Default())
	res, err := s.Save(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Save on trunk: %v", err)
	}
	if res.Branch != "main" {
		t.Fatalf("Branch = %q, want main", res.Branch)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
}

func TestLoadCreatesBranch(t *testing.T) {
	src, artifact, head := saveFeatureArtifact(t, t.TempDir())
	dst := cloneTrunkOnly(t, src)
	r := openRepo(t, dst)
	ctx := context.Background()

	s := New(r, config.Default())
	res, err := s.Load(ctx, artifact)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Branch != "feature" {
		t.Fatalf("Branch = %q, want feature", res.Branch)
	}
	if !res.Created {
		t.Fatal("Created = false for an unknown branch, want true")
	}
	if res.Commit != head {
		t.Fatalf("Commit = %s, want %s", res.Commit, head)
	}
	if branch, _ := r.CurrentBranch(ctx); branch != "feature" {
		t.Fatalf("checked-out branch = %q, want feature", branch)
	}
	if got := mustGit(t, dst, "rev-parse", "refs/heads/feature"); got != head {
		t.Fatalf("feature = %s, want %s", got, head)
	}
	if s.State() != StateDone {
		t.Fatalf("state = %v, want done", s.State())
	}
}

func TestLoadSelectsExistingBranch(t *testing.T) {
	src, artifact, head := saveFeatureArtifact(t, t.TempDir())
	dst := cloneTrunkOnly(t, src)
	r := openRepo(t, dst)
	ctx := context.Background()

	first := New(r, config.Default())
	if _, err := first.Load(ctx, artifact); err != nil {
		t.Fatalf("Load (first): %v", err)
	}
	mustGit(t, dst, "checkout", "main")

	second := New(r, config.Default())
	res, err := second.Load(ctx, artifact)
	if err != nil {
		t.Fatalf("Load (second): %v", err)
	}
	if res.Created {
		t.Fatal("Created = true for an existing branch, want false")
	}
	if res.Branch != "feature" || res.Commit != head {
		t.Fatalf("result = %+v, want feature at %s", res, head)
	}
	// No duplicate branch: exactly main and feature.
	branches := mustGit(t, dst, "for-each-ref", "--format=%(refname:short)", "refs/heads")
	if got := strings.Fields(branches); len(got) != 2 {
		t.Fatalf("branches = %v, want exactly [feature main]", got)
	}
}

func TestLoadMergeConflict(t *testing.T) {
	// Sender edits base.txt on feature; receiver edits the same line on
	// main. Loading creates feature from the receiver's main, so the merge
	// must conflict.
	src := newGitRepo(t)
	commitFile(t, src, "base.txt", "shared line\n", "A")
	dst := cloneTrunkOnly(t, src)

	mustGit(t, src, "checkout", "-b", "feature")
	commitFile(t, src, "base.txt", "sender edit\n", "B")
	sSave := New(openRepo(t, src), config.Default())
	saveRes, err := sSave.Save(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	receiverHead := commitFile(t, dst, "base.txt", "receiver edit\n", "C")

	r := openRepo(t, dst)
	s := New(r, config.Default())
	_, err = s.Load(context.Background(), saveRes.Path)
	if !errors.Is(err, repo.ErrMergeConflict) {
		t.Fatalf("Load = %v, want ErrMergeConflict", err)
	}
	if s.State() != StateFailed {
		t.Fatalf("state = %v, want failed", s.State())
	}
	// The target ref must not move and no merge commit may exist.
	if got := mustGit(t, dst, "rev-parse", "refs/heads/feature"); got != receiverHead {
		t.Fatalf("feature = %s after conflict, want %s", got, receiverHead)
	}
}

func TestLoadRequireSignedRejectsUnsigned(t *testing.T) {
	src, artifact, _ := saveFeatureArtifact(t, t.TempDir())
	dst := cloneTrunkOnly(t, src)

	cfg := config.Default()
	cfg.Signing.Require = true
	s := New(openRepo(t, dst), cfg)
	if _, err := s.Load(context.Background(), artifact); err == nil {
		t.Fatal("Load of unsigned artifact with signing.require succeeded, want error")
	}
}

func TestSaveSignedLoadVerified(t *testing.T) {
	keyDir := t.TempDir()
	keyPath, signersPath := writeKeyAndSigners(t, keyDir, "alice@example.com")

	src := newGitRepo(t)
	commitFile(t, src, "base.txt", "base\n", "A")
	dst := cloneTrunkOnly(t, src)
	mustGit(t, src, "checkout", "-b", "feature")
	commitFile(t, src, "f.txt", "f\n", "B")

	saveCfg := config.Default()
	saveCfg.Signing.Key = keyPath
	sSave := New(openRepo(t, src), saveCfg)
	saveRes, err := sSave.Save(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saveRes.SigPath != saveRes.Path+signing.SigExt {
		t.Fatalf("SigPath = %q, want %q", saveRes.SigPath, saveRes.Path+signing.SigExt)
	}

	loadCfg := config.Default()
	loadCfg.Signing.AllowedSigners = signersPath
	loadCfg.Signing.Require = true
	sLoad := New(openRepo(t, dst), loadCfg)
	res, err := sLoad.Load(context.Background(), saveRes.Path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Signer != "alice@example.com" {
		t.Fatalf("Signer = %q, want alice@example.com", res.Signer)
	}
}

func TestSaveSigningFailureRemovesArtifact(t *testing.T) {
	src := newGitRepo(t)
	commitFile(t, src, "base.txt", "base\n", "A")
	mustGit(t, src, "checkout", "-b", "feature")
	commitFile(t, src, "f.txt", "f\n", "B")

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, []byte("not an ssh key\n"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	outDir := t.TempDir()
	cfg := config.Default()
	cfg.Signing.Key = keyPath
	s := New(openRepo(t, src), cfg)
	if _, err := s.Save(context.Background(), outDir); err == nil {
		t.Fatal("Save with an unparseable key succeeded, want error")
	}
	if s.State() != StateFailed {
		t.Fatalf("state = %v, want failed", s.State())
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed save left files behind: %v", entries)
	}
}

func TestLoadRejectsTamperedSignedArtifact(t *testing.T) {
	keyDir := t.TempDir()
	keyPath, signersPath := writeKeyAndSigners(t, keyDir, "alice@example.com")

	src := newGitRepo(t)
	commitFile(t, src, "base.txt", "base\n", "A")
	dst := cloneTrunkOnly(t, src)
	mustGit(t, src, "checkout", "-b", "feature")
	commitFile(t, src, "f.txt", "f\n", "B")

	saveCfg := config.Default()
	saveCfg.Signing.Key = keyPath
	saveRes, err := New(openRepo(t, src), saveCfg).Save(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Flip a byte well past the header.
	raw, err := os.ReadFile(saveRes.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	if err := os.WriteFile(saveRes.Path, raw, 0o644); err != nil {
		t.Fatalf("tamper artifact: %v", err)
	}

	loadCfg := config.Default()
	loadCfg.Signing.AllowedSigners = signersPath
	s := New(openRepo(t, dst), loadCfg)
	if _, err := s.Load(context.Background(), saveRes.Path); !errors.Is(err, signing.ErrBadSignature) {
		t.Fatalf("Load = %v, want ErrBadSignature", err)
	}
}

func writeKeyAndSigners(t *testing.T, dir, principal string) (keyPath, signersPath string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("MarshalPrivateKey: %v", err)
	}
	keyPath = filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	pub, err := ssh.NewPublicKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		t.Fatalf("NewPublicKey: %v", err)
	}
	signersPath = filepath.Join(dir, "allowed_signers")
	line := principal + " " + strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub))) + "\n"
	if err := os.WriteFile(signersPath, []byte(line), 0o644); err != nil {
		t.Fatalf("write allowed signers: %v", err)
	}
	return keyPath, signersPath
}
