// Package cachestore defines the durable key→record mapping the engine
// persists fetched payloads into, and provides interchangeable backends:
// in-memory (tests, ephemeral use), LevelDB (default durable embedded
// store), Redis, Firestore and Google Cloud Storage.
package cachestore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no record exists for a key.
var ErrNotFound = errors.New("cachestore: record not found")

// Record is the persisted value for one entry's key.
//
// Payload holds the fetched bytes, sealed when Encrypted is true.
// Fingerprint snapshots the entry's declared fingerprint at store time so a
// later reconciliation can detect configuration-level change without
// re-fetching. A Record is only ever written after a fetch (and, when
// enabled, encryption) completed successfully.
type Record struct {
	Payload     []byte    `json:"payload" firestore:"payload"`
	Encrypted   bool      `json:"encrypted" firestore:"encrypted"`
	Fingerprint []byte    `json:"fingerprint,omitempty" firestore:"fingerprint"`
	StoredAt    time.Time `json:"storedAt" firestore:"storedAt"`
}

// Store is the cache persistence contract. Implementations must be safe for
// concurrent use; callers never coordinate access themselves.
type Store interface {
	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)
	// Put overwrites the record for key. The write is atomic per key: a
	// concurrent Get observes either the old record or the new one, never a
	// mix.
	Put(ctx context.Context, key string, record Record) error
	// Clear removes every record, using the backend's native batch or
	// transaction primitive where one exists.
	Clear(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}
