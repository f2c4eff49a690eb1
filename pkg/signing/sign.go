// Package signing produces and checks detached SSH signatures over artifact
// bytes. The envelope is a single line:
//
//	sshsig-v1:<sig-format>:<base64 public key>:<base64 signature blob>
//
// Verification requires the embedded public key to appear in an
// OpenSSH-style allowed-signers list; possession of a valid signature from
// an unlisted key is not trust.
package signing

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// EnvelopePrefix tags the signature envelope format.
const EnvelopePrefix = "sshsig-v1"

// SigExt is appended to an artifact path to name its detached signature.
const SigExt = ".sig"

// Signer signs artifact bytes with an SSH private key.
type Signer struct {
	signer  ssh.Signer
	KeyPath string // resolved key path; empty for in-memory signers
}

// NewSigner loads an SSH private key. An empty keyPath falls back to the
// conventional ~/.ssh keys (ed25519, ecdsa, rsa, in that order).
func NewSigner(keyPath string) (*Signer, error) {
	resolved, err := resolveKeyPath(keyPath)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read signing key %q: %w", resolved, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse signing key %q: %w", resolved, err)
	}
	return &Signer{signer: signer, KeyPath: resolved}, nil
}

// FromSSHSigner wraps an already-parsed key.
func FromSSHSigner(s ssh.Signer) *Signer {
	return &Signer{signer: s}
}

// PublicKey returns the signer's public key.
func (s *Signer) PublicKey() ssh.PublicKey {
	return s.signer.PublicKey()
}

// Sign returns the envelope for payload.
func (s *Signer) Sign(payload []byte) (string, error) {
	sig, err := s.signer.Sign(rand.Reader, payload)
	if err != nil {
		return "", err
	}
	pubB64 := base64.StdEncoding.EncodeToString(s.signer.PublicKey().Marshal())
	sigB64 := base64.StdEncoding.EncodeToString(sig.Blob)
	return fmt.Sprintf("%s:%s:%s:%s", EnvelopePrefix, sig.Format, pubB64, sigB64), nil
}

// SignFile signs the file's bytes and writes the envelope beside it at
// path + SigExt, returning the signature path.
func (s *Signer) SignFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read artifact %q: %w", path, err)
	}
	envelope, err := s.Sign(data)
	if err != nil {
		return "", fmt.Errorf("sign artifact %q: %w", path, err)
	}
	sigPath := path + SigExt
	if err := os.WriteFile(sigPath, []byte(envelope+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write signature %q: %w", sigPath, err)
	}
	return sigPath, nil
}

func resolveKeyPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		return expandUserPath(path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	candidates := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
	for _, candidate := range candidates {
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no default SSH private key found in ~/.ssh (id_ed25519, id_ecdsa, id_rsa)")
}

func expandUserPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
