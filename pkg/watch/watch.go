// Package watch drives a Fetcher from filesystem events on a configuration
// file: a modification re-parses the configuration and reconciles the cache
// against it, a removal clears the cache, and anything else is ignored. The
// loop runs until its context is cancelled or the underlying watcher fails.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-fetchcache/pkg/entry"
	"github.com/illmade-knight/go-fetchcache/pkg/fetchcache"
)

// State is the watch loop's current activity, for introspection and logging.
type State int32

const (
	// StateIdle means the loop is waiting for the next filesystem event.
	StateIdle State = iota
	// StateReloading means a modify event is being handled: configuration
	// re-parse plus a full reconciliation run.
	StateReloading
	// StateClearing means a remove event is being handled.
	StateClearing
	// StateStopped is terminal: the loop has exited.
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReloading:
		return "reloading"
	case StateClearing:
		return "clearing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// LoadFunc re-parses the configuration file into an ordered entry sequence.
// It is called on every modify event.
type LoadFunc func(path string) ([]entry.Entry, error)

// Watcher observes one configuration file and keeps a Fetcher reconciled
// against it.
type Watcher struct {
	path    string
	fetcher *fetchcache.Fetcher
	load    LoadFunc
	logger  zerolog.Logger
	state   atomic.Int32
}

// New creates a Watcher for the configuration file at path.
func New(path string, fetcher *fetchcache.Fetcher, load LoadFunc, logger zerolog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch: path cannot be empty")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("watch: fetcher cannot be nil")
	}
	if load == nil {
		return nil, fmt.Errorf("watch: load func cannot be nil")
	}
	return &Watcher{
		path:    path,
		fetcher: fetcher,
		load:    load,
		logger:  logger.With().Str("component", "Watcher").Str("path", path).Logger(),
	}, nil
}

// State reports the loop's current state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

func (w *Watcher) setState(s State) {
	w.state.Store(int32(s))
}

// Run watches the configuration file until ctx is cancelled or the watcher
// subsystem fails. Reconciliation and config-level errors are logged and
// the loop keeps running; only a watcher fault (or cancellation) ends it.
// Each event is handled to completion before the next one is read, so
// reconciliation runs never overlap.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.setState(StateStopped)
		return fmt.Errorf("watch: failed to create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	// Watch the parent directory rather than the file itself: editors and
	// config writers commonly replace files atomically via rename, which
	// drops a watch registered on the file.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		w.setState(StateStopped)
		return fmt.Errorf("watch: failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	filename := filepath.Base(w.path)

	w.setState(StateIdle)
	w.logger.Info().Msg("Watch loop started.")

	for {
		select {
		case <-ctx.Done():
			w.setState(StateStopped)
			w.logger.Info().Msg("Watch loop stopped by caller.")
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				w.setState(StateStopped)
				return errors.New("watch: event channel closed")
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				w.handleModify(ctx)
			case event.Op&fsnotify.Remove != 0:
				w.handleRemove(ctx)
			default:
				w.logger.Debug().Str("op", event.Op.String()).Msg("Ignoring filesystem event.")
			}

		case err, ok := <-fsw.Errors:
			w.setState(StateStopped)
			if !ok {
				return errors.New("watch: error channel closed")
			}
			w.logger.Error().Err(err).Msg("Watcher subsystem failed.")
			return fmt.Errorf("watch: watcher error: %w", err)
		}
	}
}

// handleModify re-parses the configuration and reconciles. A parse failure
// leaves the previous entry sequence active.
func (w *Watcher) handleModify(ctx context.Context) {
	w.setState(StateReloading)
	defer w.setState(StateIdle)

	entries, err := w.load(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("Configuration reload failed, keeping previous entries.")
		return
	}
	w.fetcher.Reload(entries)

	report, err := w.fetcher.Fetch(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Reconciliation run failed.")
		return
	}
	w.logger.Info().
		Int("fetched", report.Fetched()).
		Int("skipped", report.Skipped()).
		Int("failed", report.Failed()).
		Msg("Reconciled after configuration change.")
}

// handleRemove clears the cache: with the configuration gone, no cached
// record can be trusted as still relevant.
func (w *Watcher) handleRemove(ctx context.Context) {
	w.setState(StateClearing)
	defer w.setState(StateIdle)

	w.logger.Info().Msg("Configuration removed, clearing cache store.")
	if err := w.fetcher.Clear(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Cache clear failed.")
	}
}
