package fetchcache

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/illmade-knight/go-fetchcache/pkg/entry"
)

// Delivery is one entry's result as seen by the channel strategy's
// consumer. Fetched is false for cache hits, in which case Payload is nil —
// the message still arrives so the consumer's count of processed entries
// stays consistent.
type Delivery struct {
	Entry   entry.Entry
	Payload []byte
	Fetched bool
}

// DeliveryFunc handles one Delivery as it arrives, e.g. incremental
// materialization or progress rendering. Returning an error marks that
// entry failed in the run's Report; it does not stop the run.
type DeliveryFunc func(ctx context.Context, d Delivery) error

// producerMsg is what producers push through the bounded channel. Exactly
// one message is sent per entry, including failures, so the consumer can
// drain by count.
type producerMsg struct {
	entry   entry.Entry
	payload []byte
	fetched bool
	err     error
}

// FetchChannel runs one reconciliation with the channel strategy: one
// producer per entry (HTTP calls gated by the same permit pool as Fetch)
// feeding a bounded channel drained by a single consumer — this goroutine.
// The consumer performs the store write for fetched payloads, so there is
// exactly one write path, and invokes deliver (when non-nil) for every
// entry in arrival order. Producers block when the channel is full, which
// bounds buffered payload memory independently of the permit pool.
func (f *Fetcher) FetchChannel(ctx context.Context, deliver DeliveryFunc) (Report, error) {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	entries := f.snapshot()
	log := f.logger.With().Str("run_id", uuid.NewString()).Str("strategy", "channel").Logger()
	log.Info().Int("entries", len(entries)).Msg("Starting reconciliation run.")

	capacity := f.cfg.ChannelCapacity
	if capacity <= 0 {
		capacity = len(entries)
	}
	if capacity < 1 {
		capacity = 1
	}

	msgs := make(chan producerMsg, capacity)
	sem := semaphore.NewWeighted(int64(f.cfg.MaxInFlight))

	for _, e := range entries {
		go func(e entry.Entry) {
			needsFetch, err := f.shouldFetch(ctx, log, e)
			if err != nil {
				msgs <- producerMsg{entry: e, err: err}
				return
			}
			if !needsFetch {
				msgs <- producerMsg{entry: e}
				return
			}
			payload, err := f.download(ctx, sem, e)
			if err != nil {
				msgs <- producerMsg{entry: e, err: err}
				return
			}
			msgs <- producerMsg{entry: e, payload: payload, fetched: true}
		}(e)
	}

	// Single consumer: drain exactly one message per entry. No cross-entry
	// ordering is assumed.
	report := make(Report, 0, len(entries))
	for range entries {
		msg := <-msgs
		key := msg.entry.Key()

		if msg.err != nil {
			log.Error().Err(msg.err).Str("key", key).Msg("Fetch failed.")
			report = append(report, Result{Key: key, Outcome: OutcomeFailed, Err: msg.err})
			continue
		}

		outcome := OutcomeSkipped
		if msg.fetched {
			if err := f.persist(ctx, msg.entry, msg.payload); err != nil {
				log.Error().Err(err).Str("key", key).Msg("Persist failed.")
				report = append(report, Result{Key: key, Outcome: OutcomeFailed, Err: err})
				continue
			}
			outcome = OutcomeFetched
			log.Info().Str("key", key).Int("bytes", len(msg.payload)).Msg("Fetched and cached.")
		} else {
			log.Debug().Str("key", key).Msg("Cache hit, skipping fetch.")
		}

		if deliver != nil {
			if err := deliver(ctx, Delivery{Entry: msg.entry, Payload: msg.payload, Fetched: msg.fetched}); err != nil {
				log.Error().Err(err).Str("key", key).Msg("Delivery handler failed.")
				report = append(report, Result{Key: key, Outcome: OutcomeFailed, Err: err})
				continue
			}
		}
		report = append(report, Result{Key: key, Outcome: outcome})
	}

	log.Info().
		Int("fetched", report.Fetched()).
		Int("skipped", report.Skipped()).
		Int("failed", report.Failed()).
		Msg("Reconciliation run complete.")
	return report, nil
}
