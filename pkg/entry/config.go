package entry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Format selects the configuration document encoding.
type Format int

const (
	// FormatTOML parses the document as TOML.
	FormatTOML Format = iota
	// FormatJSON parses the document as JSON.
	FormatJSON
)

// FormatForPath guesses the format from a file extension, defaulting to TOML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatTOML
}

// document is the on-disk shape shared by both formats: a single ordered
// list of entries under "packages".
type document[E Entry] struct {
	Packages []E `toml:"packages" json:"packages"`
}

// Parse decodes a configuration document into an ordered entry list.
// Document order is preserved. Each decoded entry is validated; any failure
// is reported as an ErrInvalidConfig wrap and no partial list is returned.
func Parse[E Entry](data []byte, format Format) ([]E, error) {
	var doc document[E]
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w: unknown format %d", ErrInvalidConfig, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	seen := make(map[string]struct{}, len(doc.Packages))
	for i, e := range doc.Packages {
		if v, ok := any(e).(validator); ok {
			if err := v.validate(); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
		}
		if _, dup := seen[e.Key()]; dup {
			return nil, fmt.Errorf("%w: duplicate entry key %q", ErrInvalidConfig, e.Key())
		}
		seen[e.Key()] = struct{}{}
	}
	return doc.Packages, nil
}

// Load reads and parses a configuration file.
func Load[E Entry](path string, format Format) ([]E, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, path, err)
	}
	return Parse[E](data, format)
}

// Upcast converts a concrete entry slice to the interface slice the engine
// consumes, preserving order.
func Upcast[E Entry](entries []E) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e
	}
	return out
}
