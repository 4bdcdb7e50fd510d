package fetchcache

// Outcome classifies what a reconciliation run did for one entry.
type Outcome int

const (
	// OutcomeFetched means the payload was downloaded and stored.
	OutcomeFetched Outcome = iota
	// OutcomeSkipped means the cached record was current; no fetch happened.
	OutcomeSkipped
	// OutcomeFailed means the entry's fetch or persist failed; the error is
	// carried on the Result. Sibling entries are unaffected.
	OutcomeFailed
)

// String returns the lowercase outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeFetched:
		return "fetched"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the per-entry outcome of one reconciliation run.
type Result struct {
	Key     string
	Outcome Outcome
	Err     error
}

// Report aggregates every entry's Result for one reconciliation run. A run
// always completes: there is exactly one Result per input entry, whatever
// mix of outcomes occurred.
type Report []Result

func (r Report) count(o Outcome) int {
	n := 0
	for _, res := range r {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Fetched reports how many entries were downloaded.
func (r Report) Fetched() int { return r.count(OutcomeFetched) }

// Skipped reports how many entries were cache hits.
func (r Report) Skipped() int { return r.count(OutcomeSkipped) }

// Failed reports how many entries failed.
func (r Report) Failed() int { return r.count(OutcomeFailed) }

// Errors returns the failures, keyed by entry.
func (r Report) Errors() map[string]error {
	out := make(map[string]error)
	for _, res := range r {
		if res.Outcome == OutcomeFailed {
			out[res.Key] = res.Err
		}
	}
	return out
}
