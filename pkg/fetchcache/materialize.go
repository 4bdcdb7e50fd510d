package fetchcache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// WriteAll materializes every current entry's cached payload into dir, one
// file per entry named after the last path segment of its URL. Sealed
// payloads are opened first. Missing or unreadable records are collected
// and reported together; every writable entry is still written. When two
// entries resolve to the same file name the first wins and the rest are
// reported as errors rather than silently overwritten.
func (f *Fetcher) WriteAll(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fetchcache: creating %s: %w", dir, err)
	}

	var errs []error
	written := make(map[string]string)
	for _, e := range f.snapshot() {
		payload, err := f.Get(ctx, e.Key())
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %q: %w", e.Key(), err))
			continue
		}

		name, err := fileNameForURL(e.URL())
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %q: %w", e.Key(), err))
			continue
		}
		if prev, ok := written[name]; ok {
			errs = append(errs, fmt.Errorf("entry %q: file name %q already written for entry %q", e.Key(), name, prev))
			continue
		}
		written[name] = e.Key()

		target := filepath.Join(dir, name)
		if err := os.WriteFile(target, payload, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("entry %q: writing %s: %w", e.Key(), target, err))
			continue
		}
		f.logger.Debug().Str("key", e.Key()).Str("file", target).Msg("Payload materialized.")
	}
	return errors.Join(errs...)
}

// fileNameForURL extracts the last path segment of a URL to use as a file
// name.
func fileNameForURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("fetchcache: parsing url %q: %w", raw, err)
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("fetchcache: url %q has no file name", raw)
	}
	return name, nil
}
