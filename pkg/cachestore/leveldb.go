package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// recordPrefix namespaces cache records inside the LevelDB keyspace.
const recordPrefix = "r:"

// LevelStore is a Store backed by an embedded LevelDB database. It is the
// default durable backend: records survive process restarts and no external
// service is required.
type LevelStore struct {
	db     *leveldb.DB
	logger zerolog.Logger
}

// NewLevelStore opens (or creates) a LevelDB database at path.
func NewLevelStore(path string, logger zerolog.Logger) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("cachestore: failed to open leveldb at %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("LevelDB cache store opened.")
	return &LevelStore{
		db:     db,
		logger: logger.With().Str("component", "LevelStore").Logger(),
	}, nil
}

// Get returns the record for key, or ErrNotFound.
func (s *LevelStore) Get(_ context.Context, key string) (Record, error) {
	data, err := s.db.Get([]byte(recordPrefix+key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("cachestore: leveldb get %q: %w", key, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("cachestore: decoding record %q: %w", key, err)
	}
	return record, nil
}

// Put overwrites the record for key. LevelDB writes are atomic per call, so
// a concurrent reader never observes a partial record.
func (s *LevelStore) Put(_ context.Context, key string, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("cachestore: encoding record %q: %w", key, err)
	}
	if err := s.db.Put([]byte(recordPrefix+key), data, nil); err != nil {
		return fmt.Errorf("cachestore: leveldb put %q: %w", key, err)
	}
	return nil
}

// Clear removes every record in a single write batch, so concurrent readers
// observe either the full old state or the empty state.
func (s *LevelStore) Clear(_ context.Context) error {
	batch := new(leveldb.Batch)
	it := s.db.NewIterator(util.BytesPrefix([]byte(recordPrefix)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return fmt.Errorf("cachestore: leveldb clear iteration: %w", err)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("cachestore: leveldb clear write: %w", err)
	}
	s.logger.Info().Int("records", batch.Len()).Msg("Cache store cleared.")
	return nil
}

// Close closes the underlying database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}
