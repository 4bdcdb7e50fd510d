package entry_test

import (
	"testing"

	"github.com/illmade-knight/go-fetchcache/pkg/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackage_FingerprintIsDeterministic(t *testing.T) {
	a := entry.Package{Name: "zlib", Version: "1.3.1", Address: "https://example.com/zlib-1.3.1.tar.gz"}
	b := entry.Package{Name: "zlib", Version: "1.3.1", Address: "https://example.com/zlib-1.3.1.tar.gz"}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestPackage_FingerprintChangesWithVersion(t *testing.T) {
	old := entry.Package{Name: "zlib", Version: "1.3.0", Address: "https://example.com/zlib.tar.gz"}
	upgraded := entry.Package{Name: "zlib", Version: "1.3.1", Address: "https://example.com/zlib.tar.gz"}

	// Same key, different fingerprint: this is what drives change detection.
	assert.Equal(t, old.Key(), upgraded.Key())
	assert.NotEqual(t, old.Fingerprint(), upgraded.Fingerprint())
}

func TestFingerprint_FieldBoundariesMatter(t *testing.T) {
	a := entry.Simple{Name: "ab", Address: "c"}
	b := entry.Simple{Name: "a", Address: "bc"}

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestPackage_ValidVersion(t *testing.T) {
	cases := []struct {
		version string
		valid   bool
	}{
		{"1.2.3", true},
		{"0.0.1", true},
		{"1.2.3-rc.1", true},
		{"1.2.3+build5", true},
		{"1.2", false},
		{"v1.2.3", false},
		{"1.2.x", false},
		{"", false},
	}
	for _, tc := range cases {
		p := entry.Package{Name: "p", Version: tc.version, Address: "https://example.com/p"}
		assert.Equal(t, tc.valid, p.ValidVersion(), "version %q", tc.version)
	}
}

func TestGithubRelease_DerivesURLAndKey(t *testing.T) {
	g := entry.GithubRelease{Owner: "BurntSushi", Repo: "ripgrep", Tag: "14.1.0", Asset: "ripgrep-14.1.0-x86_64-unknown-linux-musl.tar.gz"}

	assert.Equal(t, "https://github.com/BurntSushi/ripgrep/releases/download/14.1.0/ripgrep-14.1.0-x86_64-unknown-linux-musl.tar.gz", g.URL())
	assert.Equal(t, "BurntSushi/ripgrep/ripgrep-14.1.0-x86_64-unknown-linux-musl.tar.gz", g.Key())
}

func TestGithubRelease_TagChangesFingerprintNotKey(t *testing.T) {
	old := entry.GithubRelease{Owner: "o", Repo: "r", Tag: "v1", Asset: "a.tar.gz"}
	upgraded := entry.GithubRelease{Owner: "o", Repo: "r", Tag: "v2", Asset: "a.tar.gz"}

	assert.Equal(t, old.Key(), upgraded.Key())
	assert.NotEqual(t, old.Fingerprint(), upgraded.Fingerprint())
}

func TestParse_TOMLPreservesOrder(t *testing.T) {
	doc := []byte(`
[[packages]]
name = "zlib"
version = "1.3.1"
url = "https://example.com/zlib.tar.gz"

[[packages]]
name = "openssl"
version = "3.3.0"
url = "https://example.com/openssl.tar.gz"
`)

	entries, err := entry.Parse[entry.Package](doc, entry.FormatTOML)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "zlib", entries[0].Key())
	assert.Equal(t, "openssl", entries[1].Key())
}

func TestParse_JSON(t *testing.T) {
	doc := []byte(`{"packages":[{"name":"zlib","version":"1.3.1","url":"https://example.com/zlib.tar.gz"}]}`)

	entries, err := entry.Parse[entry.Package](doc, entry.FormatJSON)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1.3.1", entries[0].Version)
}

func TestParse_MalformedDocumentFails(t *testing.T) {
	_, err := entry.Parse[entry.Package]([]byte("packages = ["), entry.FormatTOML)
	require.ErrorIs(t, err, entry.ErrInvalidConfig)

	_, err = entry.Parse[entry.Package]([]byte("{"), entry.FormatJSON)
	require.ErrorIs(t, err, entry.ErrInvalidConfig)
}

func TestParse_MissingFieldsFail(t *testing.T) {
	doc := []byte(`{"packages":[{"name":"zlib"}]}`)
	_, err := entry.Parse[entry.Package](doc, entry.FormatJSON)
	require.ErrorIs(t, err, entry.ErrInvalidConfig)
}

func TestParse_DuplicateKeysFail(t *testing.T) {
	doc := []byte(`{"packages":[
		{"name":"zlib","version":"1.0.0","url":"https://example.com/a"},
		{"name":"zlib","version":"2.0.0","url":"https://example.com/b"}
	]}`)
	_, err := entry.Parse[entry.Package](doc, entry.FormatJSON)
	require.ErrorIs(t, err, entry.ErrInvalidConfig)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := entry.Load[entry.Simple]("/does/not/exist.toml", entry.FormatTOML)
	require.ErrorIs(t, err, entry.ErrInvalidConfig)
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, entry.FormatJSON, entry.FormatForPath("packages.json"))
	assert.Equal(t, entry.FormatTOML, entry.FormatForPath("packages.toml"))
	assert.Equal(t, entry.FormatTOML, entry.FormatForPath("packages"))
}

func TestUpcast(t *testing.T) {
	entries := entry.Upcast([]entry.Simple{{Name: "a", Address: "https://example.com/a"}})
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Key())
}
