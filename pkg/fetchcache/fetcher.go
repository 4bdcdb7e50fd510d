// Package fetchcache is the fetch-and-cache reconciliation engine: given an
// ordered set of entries it downloads each entry's payload under a bounded
// concurrency ceiling, persists it in a cache store keyed by entry identity,
// skips entries whose declared fingerprint is unchanged, and optionally
// seals payloads at rest.
//
// Two reconciliation strategies are provided: Fetch runs one task per entry
// and aggregates outcomes at the end, FetchChannel additionally streams each
// result through a bounded channel to a single consumer for incremental
// handling. Both honour the same per-entry decision algorithm and isolate
// per-entry failures.
package fetchcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/illmade-knight/go-fetchcache/pkg/cachestore"
	"github.com/illmade-knight/go-fetchcache/pkg/entry"
	"github.com/illmade-knight/go-fetchcache/pkg/seal"
)

// Config holds tuning for a Fetcher.
type Config struct {
	// MaxInFlight bounds concurrent HTTP fetches within one reconciliation
	// run. Defaults to 8.
	MaxInFlight int
	// ChannelCapacity bounds the producer→consumer channel used by
	// FetchChannel. Defaults to the entry count of the run.
	ChannelCapacity int
}

// Fetcher owns the engine state: the current entry sequence, the cache
// store, the optional sealer and the HTTP capability. One Fetcher instance
// runs at most one reconciliation at a time; Reload may be called
// concurrently (the watch loop does) and swaps the entry sequence
// wholesale, so an in-progress run finishes against the sequence it started
// with.
type Fetcher struct {
	cfg    Config
	store  cachestore.Store
	client Getter
	sealer seal.Sealer
	logger zerolog.Logger

	mu      sync.RWMutex
	entries []entry.Entry

	// runMu serializes reconciliation runs: a run triggered while another
	// is in flight waits for it rather than overlapping.
	runMu sync.Mutex
}

// New creates a Fetcher. The sealer may be nil, in which case payloads are
// stored raw.
func New(cfg Config, store cachestore.Store, client Getter, sealer seal.Sealer, logger zerolog.Logger) (*Fetcher, error) {
	if store == nil {
		return nil, fmt.Errorf("fetchcache: store cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("fetchcache: client cannot be nil")
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	return &Fetcher{
		cfg:    cfg,
		store:  store,
		client: client,
		sealer: sealer,
		logger: logger.With().Str("component", "Fetcher").Logger(),
	}, nil
}

// Reload replaces the entry sequence. The slice is copied, so the caller may
// reuse its own; readers mid-run keep iterating their old snapshot.
func (f *Fetcher) Reload(entries []entry.Entry) {
	snapshot := make([]entry.Entry, len(entries))
	copy(snapshot, entries)

	f.mu.Lock()
	f.entries = snapshot
	f.mu.Unlock()

	f.logger.Debug().Int("entries", len(snapshot)).Msg("Entry sequence replaced.")
}

// Len reports the current number of entries.
func (f *Fetcher) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// snapshot returns the current entry sequence for one run.
func (f *Fetcher) snapshot() []entry.Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.entries
}

// Clear removes every cached record.
func (f *Fetcher) Clear(ctx context.Context) error {
	return f.store.Clear(ctx)
}

// Fetch runs one reconciliation over the current entries with the
// concurrent strategy: one task per entry, HTTP calls gated by the permit
// pool, outcomes aggregated once every task has finished. Per-entry
// failures never abort siblings; the returned Report carries them.
func (f *Fetcher) Fetch(ctx context.Context) (Report, error) {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	entries := f.snapshot()
	log := f.logger.With().Str("run_id", uuid.NewString()).Logger()
	log.Info().Int("entries", len(entries)).Msg("Starting reconciliation run.")

	sem := semaphore.NewWeighted(int64(f.cfg.MaxInFlight))
	results := make(chan Result, len(entries))

	var wg sync.WaitGroup
	wg.Add(len(entries))
	for _, e := range entries {
		go func(e entry.Entry) {
			defer wg.Done()
			results <- f.processEntry(ctx, log, sem, e)
		}(e)
	}
	wg.Wait()
	close(results)

	report := make(Report, 0, len(entries))
	for res := range results {
		report = append(report, res)
	}

	log.Info().
		Int("fetched", report.Fetched()).
		Int("skipped", report.Skipped()).
		Int("failed", report.Failed()).
		Msg("Reconciliation run complete.")
	return report, nil
}

// processEntry applies the per-entry decision algorithm and, when a fetch is
// required, downloads and persists the payload.
func (f *Fetcher) processEntry(ctx context.Context, log zerolog.Logger, sem *semaphore.Weighted, e entry.Entry) Result {
	needsFetch, err := f.shouldFetch(ctx, log, e)
	if err != nil {
		log.Error().Err(err).Str("key", e.Key()).Msg("Cache lookup failed.")
		return Result{Key: e.Key(), Outcome: OutcomeFailed, Err: err}
	}
	if !needsFetch {
		log.Debug().Str("key", e.Key()).Msg("Cache hit, skipping fetch.")
		return Result{Key: e.Key(), Outcome: OutcomeSkipped}
	}

	payload, err := f.download(ctx, sem, e)
	if err != nil {
		log.Error().Err(err).Str("key", e.Key()).Msg("Fetch failed.")
		return Result{Key: e.Key(), Outcome: OutcomeFailed, Err: err}
	}

	if err := f.persist(ctx, e, payload); err != nil {
		log.Error().Err(err).Str("key", e.Key()).Msg("Persist failed.")
		return Result{Key: e.Key(), Outcome: OutcomeFailed, Err: err}
	}

	log.Info().Str("key", e.Key()).Int("bytes", len(payload)).Msg("Fetched and cached.")
	return Result{Key: e.Key(), Outcome: OutcomeFetched}
}

// shouldFetch decides fetch-vs-skip for one entry:
//
//  1. no record → fetch
//  2. stored fingerprint differs from the entry's → fetch (the declared
//     identity changed, e.g. a version bump under the same key)
//  3. sealed record that no longer authenticates → fetch (self-healing;
//     a corrupt record is treated as absent, never surfaced)
//  4. otherwise → skip
func (f *Fetcher) shouldFetch(ctx context.Context, log zerolog.Logger, e entry.Entry) (bool, error) {
	record, err := f.store.Get(ctx, e.Key())
	if err != nil {
		if errors.Is(err, cachestore.ErrNotFound) {
			return true, nil
		}
		return false, err
	}

	if len(record.Fingerprint) > 0 && !bytes.Equal(record.Fingerprint, e.Fingerprint()) {
		log.Debug().Str("key", e.Key()).Msg("Fingerprint changed, re-fetching.")
		return true, nil
	}

	if record.Encrypted && f.sealer != nil {
		if _, err := f.sealer.Open([]byte(e.Key()), record.Payload); err != nil {
			log.Warn().Str("key", e.Key()).Msg("Cached record failed authentication, re-fetching.")
			return true, nil
		}
	}
	return false, nil
}

// download performs the HTTP call under a permit. Only the call itself is
// gated: the ceiling bounds outbound fan-out, not local work.
func (f *Fetcher) download(ctx context.Context, sem *semaphore.Weighted, e entry.Entry) ([]byte, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("fetchcache: acquiring fetch permit for %q: %w", e.Key(), err)
	}
	payload, err := f.client.Get(ctx, e.URL())
	sem.Release(1)
	return payload, err
}

// persist seals (when a sealer is configured) and writes the record. A
// record is only ever written after both steps succeeded.
func (f *Fetcher) persist(ctx context.Context, e entry.Entry, payload []byte) error {
	record := cachestore.Record{
		Payload:     payload,
		Fingerprint: e.Fingerprint(),
		StoredAt:    time.Now().UTC(),
	}
	if f.sealer != nil {
		sealed, err := f.sealer.Seal([]byte(e.Key()), payload)
		if err != nil {
			return fmt.Errorf("fetchcache: sealing payload for %q: %w", e.Key(), err)
		}
		record.Payload = sealed
		record.Encrypted = true
	}
	return f.store.Put(ctx, e.Key(), record)
}

// Get returns the cached plaintext payload for key. A sealed record is
// opened first; a record that fails authentication is reported as a miss so
// the caller falls back to a fresh reconciliation.
func (f *Fetcher) Get(ctx context.Context, key string) ([]byte, error) {
	record, err := f.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !record.Encrypted {
		return record.Payload, nil
	}
	if f.sealer == nil {
		return nil, fmt.Errorf("fetchcache: record %q is sealed but no sealer is configured", key)
	}
	payload, err := f.sealer.Open([]byte(key), record.Payload)
	if err != nil {
		f.logger.Warn().Str("key", key).Msg("Sealed record failed authentication, reporting as miss.")
		return nil, fmt.Errorf("%w: record %q failed authentication", cachestore.ErrNotFound, key)
	}
	return payload, nil
}
