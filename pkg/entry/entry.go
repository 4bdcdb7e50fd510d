// Package entry defines the fetchable unit the engine operates on.
//
// An Entry is immutable once constructed: it exposes a stable cache key, the
// URL its payload is fetched from, and a fingerprint derived from its own
// declared fields. The fingerprint is what the engine compares across
// configuration reloads to decide whether a cached payload is stale — it is
// deliberately derived from configuration, not from fetched bytes.
package entry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrInvalidConfig wraps any failure to construct entries from external
// configuration: unreadable files, malformed documents, or entries missing
// required fields.
var ErrInvalidConfig = errors.New("entry: invalid configuration")

// Entry is the capability contract for anything the engine can fetch and
// cache. Implementations must be immutable and side-effect free.
type Entry interface {
	// Key returns a stable identifier, unique within one configuration.
	Key() string
	// URL returns the source the payload is fetched from.
	URL() string
	// Fingerprint returns a deterministic digest of the entry's declared
	// fields, used for change detection without re-fetching.
	Fingerprint() []byte
}

// validator is implemented by entry types that can check their own declared
// fields after decoding.
type validator interface {
	validate() error
}

// fingerprintOf hashes the given fields in order with a separator, so that
// ("ab","c") and ("a","bc") produce different digests.
func fingerprintOf(fields ...string) []byte {
	h := xxhash.New()
	for _, f := range fields {
		_, _ = h.WriteString(strconv.Itoa(len(f)))
		_, _ = h.WriteString("|")
		_, _ = h.WriteString(f)
	}
	return h.Sum(nil)
}

// Simple is the minimal entry: a name and the URL to fetch it from.
type Simple struct {
	Name    string `toml:"name" json:"name"`
	Address string `toml:"url" json:"url"`
}

// Key returns the declared name.
func (s Simple) Key() string { return s.Name }

// URL returns the declared source URL.
func (s Simple) URL() string { return s.Address }

// Fingerprint covers the name and URL.
func (s Simple) Fingerprint() []byte { return fingerprintOf(s.Name, s.Address) }

func (s Simple) validate() error {
	if s.Name == "" || s.Address == "" {
		return fmt.Errorf("%w: simple entry requires name and url", ErrInvalidConfig)
	}
	return nil
}

// Package is a versioned entry. Two configurations declaring the same name
// but different versions share a cache key and differ by fingerprint, which
// is what lets the engine detect an upgrade without re-downloading
// everything else.
type Package struct {
	Name    string `toml:"name" json:"name"`
	Version string `toml:"version" json:"version"`
	Address string `toml:"url" json:"url"`
}

// Key returns the package name. The version is deliberately excluded: a
// version bump is a changed value for the same key, not a new key.
func (p Package) Key() string { return p.Name }

// URL returns the declared source URL.
func (p Package) URL() string { return p.Address }

// Fingerprint covers name, version and URL.
func (p Package) Fingerprint() []byte { return fingerprintOf(p.Name, p.Version, p.Address) }

// ValidVersion reports whether the declared version looks like a semantic
// version (major.minor.patch with numeric components, optional pre-release
// or build suffix).
func (p Package) ValidVersion() bool {
	core := p.Version
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if _, err := strconv.ParseUint(part, 10, 64); err != nil {
			return false
		}
	}
	return true
}

func (p Package) validate() error {
	if p.Name == "" || p.Version == "" || p.Address == "" {
		return fmt.Errorf("%w: package entry requires name, version and url", ErrInvalidConfig)
	}
	return nil
}

// GithubRelease is an entry whose URL is derived from GitHub release asset
// conventions rather than declared directly.
type GithubRelease struct {
	Owner string `toml:"owner" json:"owner"`
	Repo  string `toml:"repo" json:"repo"`
	Tag   string `toml:"tag" json:"tag"`
	Asset string `toml:"asset" json:"asset"`
}

// Key identifies the asset within the repository, independent of the tag so
// that a tag bump is detected as a change rather than a new entry.
func (g GithubRelease) Key() string {
	return g.Owner + "/" + g.Repo + "/" + g.Asset
}

// URL derives the release asset download URL from the declared fields.
func (g GithubRelease) URL() string {
	return fmt.Sprintf("https://github.com/%s/%s/releases/download/%s/%s", g.Owner, g.Repo, g.Tag, g.Asset)
}

// Fingerprint covers every declared field, so changing the tag invalidates
// the cached asset.
func (g GithubRelease) Fingerprint() []byte {
	return fingerprintOf(g.Owner, g.Repo, g.Tag, g.Asset)
}

func (g GithubRelease) validate() error {
	if g.Owner == "" || g.Repo == "" || g.Tag == "" || g.Asset == "" {
		return fmt.Errorf("%w: github release entry requires owner, repo, tag and asset", ErrInvalidConfig)
	}
	return nil
}
