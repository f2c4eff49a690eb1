package signing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ErrBadEnvelope reports a signature that does not parse as an
// EnvelopePrefix envelope.
var ErrBadEnvelope = errors.New("malformed signature envelope")

// ErrUnknownSigner reports a structurally valid signature from a key absent
// from the allowed-signers list.
var ErrUnknownSigner = errors.New("signature from a key not in allowed signers")

// ErrBadSignature reports a signature that fails cryptographic verification
// against its embedded key.
var ErrBadSignature = errors.New("signature verification failed")

// AllowedSigner is one entry of an allowed-signers list.
type AllowedSigner struct {
	Principal string
	Key       ssh.PublicKey
}

// Verify checks envelope against payload and returns the matching signer's
// principal.
func Verify(payload []byte, envelope string, allowed []AllowedSigner) (string, error) {
	format, pub, sigBlob, err := parseEnvelope(envelope)
	if err != nil {
		return "", err
	}

	principal, ok := findSigner(pub, allowed)
	if !ok {
		return "", fmt.Errorf("%w (%s)", ErrUnknownSigner, ssh.FingerprintSHA256(pub))
	}

	sig := &ssh.Signature{Format: format, Blob: sigBlob}
	if err := pub.Verify(payload, sig); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return principal, nil
}

// VerifyFile verifies the detached signature at sigPath over the file at
// path, against the allowed-signers file.
func VerifyFile(path, sigPath, allowedSignersPath string) (string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read artifact %q: %w", path, err)
	}
	rawSig, err := os.ReadFile(sigPath)
	if err != nil {
		return "", fmt.Errorf("read signature %q: %w", sigPath, err)
	}
	allowed, err := LoadAllowedSigners(allowedSignersPath)
	if err != nil {
		return "", err
	}
	return Verify(payload, strings.TrimSpace(string(rawSig)), allowed)
}

// LoadAllowedSigners reads an OpenSSH-style allowed-signers file:
// one "principal [options] key-type base64-key [comment]" per line,
// '#' comments and blank lines ignored. Options are not enforced.
func LoadAllowedSigners(path string) ([]AllowedSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read allowed signers %q: %w", path, err)
	}
	signers, err := ParseAllowedSigners(data)
	if err != nil {
		return nil, fmt.Errorf("parse allowed signers %q: %w", path, err)
	}
	return signers, nil
}

// ParseAllowedSigners parses allowed-signers content.
func ParseAllowedSigners(data []byte) ([]AllowedSigner, error) {
	var signers []AllowedSigner
	for lineNo, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: want principal, key type, key", lineNo+1)
		}
		// The key starts at the first field that looks like a key type;
		// anything between the principal and it is options.
		keyAt := -1
		for i := 1; i < len(fields)-1; i++ {
			if isKeyType(fields[i]) {
				keyAt = i
				break
			}
		}
		if keyAt < 0 {
			return nil, fmt.Errorf("line %d: no key type found", lineNo+1)
		}
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.Join(fields[keyAt:], " ")))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		signers = append(signers, AllowedSigner{Principal: fields[0], Key: pub})
	}
	return signers, nil
}

func parseEnvelope(envelope string) (format string, pub ssh.PublicKey, sigBlob []byte, err error) {
	parts := strings.Split(strings.TrimSpace(envelope), ":")
	if len(parts) != 4 || parts[0] != EnvelopePrefix {
		return "", nil, nil, fmt.Errorf("%w: want %s:<format>:<key>:<sig>", ErrBadEnvelope, EnvelopePrefix)
	}
	pubRaw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: bad key encoding: %v", ErrBadEnvelope, err)
	}
	pub, err = ssh.ParsePublicKey(pubRaw)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: bad public key: %v", ErrBadEnvelope, err)
	}
	sigBlob, err = base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: bad signature encoding: %v", ErrBadEnvelope, err)
	}
	return parts[1], pub, sigBlob, nil
}

func findSigner(pub ssh.PublicKey, allowed []AllowedSigner) (string, bool) {
	marshaled := pub.Marshal()
	for _, a := range allowed {
		if bytes.Equal(marshaled, a.Key.Marshal()) {
			return a.Principal, true
		}
	}
	return "", false
}

func isKeyType(s string) bool {
	return strings.HasPrefix(s, "ssh-") ||
		strings.HasPrefix(s, "ecdsa-") ||
		strings.HasPrefix(s, "sk-")
}
