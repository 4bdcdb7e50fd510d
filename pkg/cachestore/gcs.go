package cachestore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// Object metadata keys for the record fields that do not live in the object
// body.
const (
	metaEncrypted   = "fetchcache-encrypted"
	metaFingerprint = "fetchcache-fingerprint"
	metaStoredAt    = "fetchcache-stored-at"
)

// GCSConfig holds configuration for the Cloud Storage backed store.
type GCSConfig struct {
	BucketName string
	// ObjectPrefix namespaces this store's objects within the bucket.
	// Defaults to "fetchcache/".
	ObjectPrefix string
}

// GCSStore is a Store keeping one Cloud Storage object per cache key, with
// the payload as the object body and the remaining record fields in object
// metadata. It suits large payloads shared across hosts.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewGCSStore creates a GCSStore around an injected client; the client's
// lifecycle is managed by the caller.
func NewGCSStore(cfg *GCSConfig, client *storage.Client, logger zerolog.Logger) (*GCSStore, error) {
	if client == nil {
		return nil, fmt.Errorf("cachestore: storage client cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("cachestore: bucket name cannot be empty")
	}
	prefix := cfg.ObjectPrefix
	if prefix == "" {
		prefix = "fetchcache/"
	}

	logger.Info().Str("bucket", cfg.BucketName).Str("object_prefix", prefix).Msg("GCS cache store initialized.")

	return &GCSStore{
		client: client,
		bucket: cfg.BucketName,
		prefix: prefix,
		logger: logger.With().Str("component", "GCSStore").Logger(),
	}, nil
}

// getAttempts bounds the retries Get makes when a concurrent Put replaces
// the object between the metadata and payload reads.
const getAttempts = 3

// Get returns the record for key, or ErrNotFound.
//
// Metadata and payload are two separate RPCs, so the payload read is pinned
// to the generation the metadata came from; if that generation has been
// replaced in between, the pair is fetched again rather than mixing fields
// from two different records.
func (s *GCSStore) Get(ctx context.Context, key string) (Record, error) {
	obj := s.client.Bucket(s.bucket).Object(s.prefix + key)

	for attempt := 0; attempt < getAttempts; attempt++ {
		record, err := s.getGeneration(ctx, obj, key)
		if errors.Is(err, errGenerationGone) {
			continue
		}
		return record, err
	}
	return Record{}, fmt.Errorf("cachestore: gcs get %q: object kept changing across %d attempts", key, getAttempts)
}

// errGenerationGone signals that the generation observed by Attrs was
// replaced or deleted before its payload could be read.
var errGenerationGone = errors.New("cachestore: object generation gone")

func (s *GCSStore) getGeneration(ctx context.Context, obj *storage.ObjectHandle, key string) (Record, error) {
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("cachestore: gcs attrs %q: %w", key, err)
	}

	reader, err := obj.Generation(attrs.Generation).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return Record{}, errGenerationGone
		}
		return Record{}, fmt.Errorf("cachestore: gcs read %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return Record{}, fmt.Errorf("cachestore: gcs read %q: %w", key, err)
	}

	record := Record{Payload: payload}
	if attrs.Metadata != nil {
		record.Encrypted = attrs.Metadata[metaEncrypted] == "true"
		if fp := attrs.Metadata[metaFingerprint]; fp != "" {
			decoded, err := hex.DecodeString(fp)
			if err != nil {
				return Record{}, fmt.Errorf("cachestore: decoding fingerprint for %q: %w", key, err)
			}
			record.Fingerprint = decoded
		}
		if ts := attrs.Metadata[metaStoredAt]; ts != "" {
			storedAt, err := time.Parse(time.RFC3339Nano, ts)
			if err == nil {
				record.StoredAt = storedAt
			}
		}
	}
	return record, nil
}

// Put overwrites the object for key. GCS object writes are atomic: the new
// generation becomes visible only once the writer is closed successfully.
func (s *GCSStore) Put(ctx context.Context, key string, record Record) error {
	writer := s.client.Bucket(s.bucket).Object(s.prefix + key).NewWriter(ctx)
	writer.Metadata = map[string]string{
		metaEncrypted:   fmt.Sprintf("%t", record.Encrypted),
		metaFingerprint: hex.EncodeToString(record.Fingerprint),
		metaStoredAt:    record.StoredAt.Format(time.RFC3339Nano),
	}

	if _, err := writer.Write(record.Payload); err != nil {
		_ = writer.Close()
		return fmt.Errorf("cachestore: gcs write %q: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("cachestore: gcs close %q: %w", key, err)
	}
	return nil
}

// Clear lists every object under the store's prefix and deletes them.
func (s *GCSStore) Clear(ctx context.Context) error {
	bucket := s.client.Bucket(s.bucket)
	objects := bucket.Objects(ctx, &storage.Query{Prefix: s.prefix})

	deleted := 0
	for {
		attrs, err := objects.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("cachestore: gcs list: %w", err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("cachestore: gcs delete %q: %w", attrs.Name, err)
		}
		deleted++
	}
	s.logger.Info().Int("records", deleted).Msg("Cache store cleared.")
	return nil
}

// Close is a no-op; the injected storage client is closed by its owner.
func (s *GCSStore) Close() error {
	return nil
}
