package fetchcache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-fetchcache/pkg/cachestore"
	"github.com/illmade-knight/go-fetchcache/pkg/entry"
	"github.com/illmade-knight/go-fetchcache/pkg/fetchcache"
	"github.com/illmade-knight/go-fetchcache/pkg/seal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// mockGetter is an instrumented Getter: it records total calls and the peak
// number of concurrent calls, and serves canned responses or errors per URL.
type mockGetter struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error

	delay       time.Duration
	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newMockGetter() *mockGetter {
	return &mockGetter{
		responses: make(map[string][]byte),
		errs:      make(map[string]error),
	}
}

func (g *mockGetter) respond(url string, payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses[url] = payload
}

func (g *mockGetter) fail(url string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[url] = err
}

func (g *mockGetter) Get(_ context.Context, url string) ([]byte, error) {
	g.calls.Add(1)
	current := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		max := g.maxInFlight.Load()
		if current <= max || g.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}

	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.errs[url]; ok {
		return nil, err
	}
	if payload, ok := g.responses[url]; ok {
		return payload, nil
	}
	return nil, &fetchcache.HTTPError{URL: url, StatusCode: 404, Status: "404 Not Found"}
}

// testEntries returns n packages with distinct keys, and registers a
// payload for each on the getter.
func testEntries(g *mockGetter, n int) []entry.Entry {
	entries := make([]entry.Entry, 0, n)
	for i := 0; i < n; i++ {
		p := entry.Package{
			Name:    "pkg-" + string(rune('a'+i)),
			Version: "1.0.0",
			Address: "https://example.com/pkg-" + string(rune('a'+i)) + ".tar.gz",
		}
		g.respond(p.URL(), []byte("payload of "+p.Name))
		entries = append(entries, p)
	}
	return entries
}

// newTestFetcher wires a Fetcher with a memory store and mock getter.
func newTestFetcher(t *testing.T, cfg fetchcache.Config, entries []entry.Entry, getter fetchcache.Getter, sealer seal.Sealer) (*fetchcache.Fetcher, *cachestore.MemoryStore) {
	t.Helper()

	store := cachestore.NewMemoryStore()
	fetcher, err := fetchcache.New(cfg, store, getter, sealer, zerolog.Nop())
	require.NoError(t, err)
	fetcher.Reload(entries)
	return fetcher, store
}
