// Copyright The Notary Project Authors.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides the ability to load and save config.json, the
// fixed configuration of git-timestamp: the timestamp authority, the trust
// anchor, the submission delay and the notes ref holding the proofs.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/notaryproject/git-timestamp/dir"
)

// Defaults used by NewConfig.
const (
	DefaultTSAURL        = "https://freetsa.org/tsr"
	DefaultDelay         = "5s"
	DefaultNotesRef      = "refs/notes/timestamp"
	DefaultRemote        = "origin"
	DefaultBackend       = BackendGit
	DefaultHashAlgorithm = "sha256"
)

// Supported git backends.
const (
	// BackendGit shells out to the git executable.
	BackendGit = "git"

	// BackendNative uses the pure Go implementation.
	BackendNative = "native"
)

const notesRefPrefix = "refs/notes/"

// Config reflects the config.json file.
//
// The file accepts // and /* */ comments and trailing commas.
type Config struct {
	// TSAURL is the RFC 3161 timestamp authority endpoint.
	TSAURL string `json:"tsaURL,omitempty"`

	// TrustAnchor is the PEM or DER certificate file used to verify proofs.
	// Relative paths are resolved against the config directory.
	TrustAnchor string `json:"trustAnchor,omitempty"`

	// Delay is the minimum interval between two submissions to the TSA in
	// one run, as a Go duration string. "0s" disables throttling.
	Delay string `json:"delay,omitempty"`

	// NotesRef is the notes ref holding the proofs. A bare name such as
	// "timestamp" means "refs/notes/timestamp".
	NotesRef string `json:"notesRef,omitempty"`

	// Remote is the remote used by push and fetch.
	Remote string `json:"remote,omitempty"`

	// Backend selects the git implementation: "git" or "native".
	Backend string `json:"backend,omitempty"`

	// HashAlgorithm hashes the commit id into the message imprint.
	HashAlgorithm string `json:"hashAlgorithm,omitempty"`

	// Revocation enables OCSP revocation checking of the TSA certificate
	// chain during verification.
	Revocation bool `json:"revocation,omitempty"`

	// ItemTimeout bounds the whole operation on one revision. Empty means
	// no timeout.
	ItemTimeout string `json:"itemTimeout,omitempty"`
}

// NewConfig creates a config populated with the defaults.
func NewConfig() *Config {
	return &Config{
		TSAURL:        DefaultTSAURL,
		TrustAnchor:   dir.PathTrustAnchor,
		Delay:         DefaultDelay,
		NotesRef:      DefaultNotesRef,
		Remote:        DefaultRemote,
		Backend:       DefaultBackend,
		HashAlgorithm: DefaultHashAlgorithm,
	}
}

// Save stores the config to file
func (c *Config) Save() error {
	path, err := dir.ConfigFS().SysPath(dir.PathConfigFile)
	if err != nil {
		return err
	}
	return save(path, c)
}

// LoadConfig reads the config from the config directory or returns the
// default config if not found.
func LoadConfig() (*Config, error) {
	path, err := dir.ConfigFS().SysPath(dir.PathConfigFile)
	if err != nil {
		return nil, err
	}
	config, err := LoadConfigFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewConfig(), nil
		}
		return nil, err
	}
	return config, nil
}

// LoadConfigFile reads the config from path. Keys missing from the file
// keep their defaults.
func LoadConfigFile(path string) (*Config, error) {
	config := NewConfig()
	if err := load(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks every value of the config.
func (c *Config) Validate() error {
	u, err := url.Parse(c.TSAURL)
	if err != nil {
		return InvalidConfigError{Key: "tsaURL", Msg: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return InvalidConfigError{Key: "tsaURL", Msg: "must be an absolute http or https URL"}
	}
	if c.TrustAnchor == "" {
		return InvalidConfigError{Key: "trustAnchor", Msg: "must not be empty"}
	}
	if _, err := c.DelayDuration(); err != nil {
		return err
	}
	if _, err := c.ItemTimeoutDuration(); err != nil {
		return err
	}
	ref := c.NotesRefName()
	if ref == notesRefPrefix || strings.ContainsAny(ref, " ~^:?*[\\") {
		return InvalidConfigError{Key: "notesRef", Msg: "not a valid notes ref: " + c.NotesRef}
	}
	if c.Remote == "" {
		return InvalidConfigError{Key: "remote", Msg: "must not be empty"}
	}
	switch c.Backend {
	case BackendGit, BackendNative:
	default:
		return InvalidConfigError{Key: "backend", Msg: "must be " + BackendGit + " or " + BackendNative}
	}
	switch c.HashAlgorithm {
	case "sha256", "sha384", "sha512":
	default:
		return InvalidConfigError{Key: "hashAlgorithm", Msg: "unsupported algorithm " + c.HashAlgorithm}
	}
	return nil
}

// DelayDuration parses Delay.
func (c *Config) DelayDuration() (time.Duration, error) {
	return parseDuration("delay", c.Delay)
}

// ItemTimeoutDuration parses ItemTimeout. Zero means no timeout.
func (c *Config) ItemTimeoutDuration() (time.Duration, error) {
	return parseDuration("itemTimeout", c.ItemTimeout)
}

// NotesRefName returns the fully qualified notes ref.
func (c *Config) NotesRefName() string {
	if strings.HasPrefix(c.NotesRef, "refs/") {
		return c.NotesRef
	}
	return notesRefPrefix + c.NotesRef
}

// TrustAnchorPath returns the trust anchor path, resolving relative paths
// against the config directory.
func (c *Config) TrustAnchorPath() (string, error) {
	if filepath.IsAbs(c.TrustAnchor) {
		return c.TrustAnchor, nil
	}
	return dir.ConfigFS().SysPath(filepath.FromSlash(c.TrustAnchor))
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, InvalidConfigError{Key: key, Msg: err.Error()}
	}
	if d < 0 {
		return 0, InvalidConfigError{Key: key, Msg: "must not be negative"}
	}
	return d, nil
}
