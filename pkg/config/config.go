// Package config reads and writes the repo-local packflow settings file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the settings file at the repository root.
const FileName = ".packflow.toml"

// DefaultTrunk is assumed when no config file names one.
const DefaultTrunk = "main"

// Config stores repository-local workflow settings.
type Config struct {
	// Trunk is the branch save ranges are computed against.
	Trunk string `toml:"trunk"`
	// Compress wraps saved artifacts in zstd.
	Compress bool `toml:"compress"`

	Signing Signing `toml:"signing"`
}

// Signing controls artifact signing and verification.
type Signing struct {
	// Key is the SSH private key used to sign saved artifacts. Empty
	// disables signing.
	Key string `toml:"key"`
	// AllowedSigners is the path of the allowed-signers list used to verify
	// loaded artifacts. Empty disables verification.
	AllowedSigners string `toml:"allowed_signers"`
	// Require rejects loading artifacts that carry no signature.
	Require bool `toml:"require"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{Trunk: DefaultTrunk}
}

// Load reads FileName under rootDir. A missing file is not an error: it
// yields Default.
func Load(rootDir string) (*Config, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if cfg.Trunk == "" {
		cfg.Trunk = DefaultTrunk
	}
	return cfg, nil
}

// Write atomically writes the config under rootDir.
func (c *Config) Write(rootDir string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}

	tmp, err := os.CreateTemp(rootDir, ".packflow-config-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(rootDir, FileName)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}
