package cachestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore-backed store.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// FirestoreStore is a Store keeping one Firestore document per cache key.
// Suitable for low-volume deployments that already run on GCP; use Redis or
// LevelDB where write volume is high.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewFirestoreStore creates a FirestoreStore around an injected client; the
// client's lifecycle is managed by the caller.
func NewFirestoreStore(cfg *FirestoreConfig, client *firestore.Client, logger zerolog.Logger) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("cachestore: firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("cachestore: firestore collection name cannot be empty")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("Firestore cache store initialized.")

	return &FirestoreStore{
		client:     client,
		collection: cfg.CollectionName,
		logger:     logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// Get returns the record for key, or ErrNotFound.
func (s *FirestoreStore) Get(ctx context.Context, key string) (Record, error) {
	snap, err := s.client.Collection(s.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("cachestore: firestore get %q: %w", key, err)
	}
	var record Record
	if err := snap.DataTo(&record); err != nil {
		return Record{}, fmt.Errorf("cachestore: decoding record %q: %w", key, err)
	}
	return record, nil
}

// Put overwrites the record for key. A document Set is atomic in Firestore.
func (s *FirestoreStore) Put(ctx context.Context, key string, record Record) error {
	if _, err := s.client.Collection(s.collection).Doc(key).Set(ctx, record); err != nil {
		return fmt.Errorf("cachestore: firestore set %q: %w", key, err)
	}
	return nil
}

// Clear deletes every document in the collection through a BulkWriter.
// Each delete's outcome is checked after End: enqueueing a delete says
// nothing about whether the write itself succeeded.
func (s *FirestoreStore) Clear(ctx context.Context) error {
	writer := s.client.BulkWriter(ctx)
	docs := s.client.Collection(s.collection).DocumentRefs(ctx)

	jobs := make(map[string]*firestore.BulkWriterJob)
	for {
		ref, err := docs.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("cachestore: firestore list documents: %w", err)
		}
		job, err := writer.Delete(ref)
		if err != nil {
			return fmt.Errorf("cachestore: firestore delete %q: %w", ref.ID, err)
		}
		jobs[ref.ID] = job
	}
	writer.End()

	var errs []error
	for id, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, fmt.Errorf("cachestore: firestore delete %q: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info().Int("records", len(jobs)).Msg("Cache store cleared.")
	return nil
}

// Close is a no-op; the injected Firestore client is closed by its owner.
func (s *FirestoreStore) Close() error {
	return nil
}
