package fetchcache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-fetchcache/pkg/entry"
	"github.com/illmade-knight/go-fetchcache/pkg/fetchcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchChannel_DeliversOneMessagePerEntry(t *testing.T) {
	ctx := context.Background()
	getter := newMockGetter()
	entries := testEntries(getter, 8)
	fetcher, store := newTestFetcher(t, fetchcache.Config{ChannelCapacity: 2}, entries, getter, nil)

	var mu sync.Mutex
	seen := make(map[string]int)
	deliver := func(_ context.Context, d fetchcache.Delivery) error {
		mu.Lock()
		defer mu.Unlock()
		seen[d.Entry.Key()]++
		return nil
	}

	report, err := fetcher.FetchChannel(ctx, deliver)
	require.NoError(t, err)

	// Exactly one delivery per distinct key, regardless of arrival order.
	require.Len(t, report, 8)
	assert.Equal(t, 8, report.Fetched())
	require.Len(t, seen, 8)
	for key, count := range seen {
		assert.Equal(t, 1, count, "entry %q delivered more than once", key)
	}
	assert.Equal(t, 8, store.Len())
}

func TestFetchChannel_SkipsStillArrive(t *testing.T) {
	ctx := context.Background()
	getter := newMockGetter()
	entries := testEntries(getter, 4)
	fetcher, _ := newTestFetcher(t, fetchcache.Config{}, entries, getter, nil)

	// Populate the cache, then run the channel strategy against an
	// unchanged configuration: every entry is a hit, yet the consumer must
	// still see all four.
	_, err := fetcher.Fetch(ctx)
	require.NoError(t, err)

	var deliveries int
	report, err := fetcher.FetchChannel(ctx, func(_ context.Context, d fetchcache.Delivery) error {
		deliveries++
		assert.False(t, d.Fetched)
		assert.Nil(t, d.Payload)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 4, deliveries)
	assert.Equal(t, 4, report.Skipped())
}

func TestFetchChannel_NilHandlerIsAllowed(t *testing.T) {
	ctx := context.Background()
	getter := newMockGetter()
	entries := testEntries(getter, 3)
	fetcher, store := newTestFetcher(t, fetchcache.Config{}, entries, getter, nil)

	report, err := fetcher.FetchChannel(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Fetched())
	assert.Equal(t, 3, store.Len())
}

func TestFetchChannel_FailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	getter := newMockGetter()

	good := entry.Package{Name: "good", Version: "1.0.0", Address: "https://example.com/good.tar.gz"}
	bad := entry.Package{Name: "bad", Version: "1.0.0", Address: "https://example.com/bad.tar.gz"}
	getter.respond(good.URL(), []byte("good bytes"))
	getter.fail(bad.URL(), errors.New("connection reset"))

	fetcher, store := newTestFetcher(t, fetchcache.Config{}, []entry.Entry{good, bad}, getter, nil)

	report, err := fetcher.FetchChannel(ctx, nil)
	require.NoError(t, err)
	require.Len(t, report, 2)

	assert.Equal(t, 1, report.Fetched())
	assert.Equal(t, 1, report.Failed())

	_, err = store.Get(ctx, "good")
	require.NoError(t, err)
}

func TestFetchChannel_DeliveryErrorMarksEntryFailed(t *testing.T) {
	ctx := context.Background()
	getter := newMockGetter()
	entries := testEntries(getter, 2)
	fetcher, _ := newTestFetcher(t, fetchcache.Config{}, entries, getter, nil)

	handlerErr := errors.New("disk full")
	var calls int
	report, err := fetcher.FetchChannel(ctx, func(_ context.Context, d fetchcache.Delivery) error {
		calls++
		if d.Entry.Key() == entries[0].Key() {
			return handlerErr
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, report.Failed())
	assert.ErrorIs(t, report.Errors()[entries[0].Key()], handlerErr)
}

func TestFetchChannel_HonoursConcurrencyCeiling(t *testing.T) {
	ctx := context.Background()
	getter := newMockGetter()
	getter.delay = 20 * time.Millisecond
	entries := testEntries(getter, 10)

	fetcher, _ := newTestFetcher(t, fetchcache.Config{MaxInFlight: 2, ChannelCapacity: 4}, entries, getter, nil)

	report, err := fetcher.FetchChannel(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 10, report.Fetched())
	assert.LessOrEqual(t, getter.maxInFlight.Load(), int32(2))
}

func TestFetchChannel_ConsumerWritesSingly(t *testing.T) {
	ctx := context.Background()
	getter := newMockGetter()
	entries := testEntries(getter, 1)
	fetcher, store := newTestFetcher(t, fetchcache.Config{}, entries, getter, nil)

	report, err := fetcher.FetchChannel(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Fetched())

	record, err := store.Get(ctx, entries[0].Key())
	require.NoError(t, err)
	assert.Equal(t, entries[0].Fingerprint(), record.Fingerprint)
	assert.False(t, record.StoredAt.IsZero())
}
