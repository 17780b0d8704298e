package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// KVEntry represents a key-value pair stored in BadgerDB. Key is a plain
// field (the record key duplicates it) so prefix queries can match on it.
type KVEntry struct {
	Key   string
	Value string
}

// KVStorage implements interfaces.KeyValueStore on a Store.
type KVStorage struct {
	store  *Store
	logger *common.Logger
}

// NewKVStorage creates a new KeyValueStore backed by BadgerHold.
func NewKVStorage(store *Store, logger *common.Logger) *KVStorage {
	return &KVStorage{store: store, logger: logger}
}

func (s *KVStorage) Get(_ context.Context, key string) (string, error) {
	var entry KVEntry
	if err := s.store.db.Get(key, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", fmt.Errorf("key '%s': %w", key, interfaces.ErrKeyNotFound)
		}
		return "", fmt.Errorf("failed to get key '%s': %w", key, err)
	}
	return entry.Value, nil
}

func (s *KVStorage) Set(_ context.Context, key, value string) error {
	entry := KVEntry{Key: key, Value: value}
	if err := s.store.db.Upsert(key, &entry); err != nil {
		return fmt.Errorf("failed to set key '%s': %w", key, err)
	}
	return nil
}

func (s *KVStorage) Delete(_ context.Context, key string) error {
	err := s.store.db.Delete(key, KVEntry{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete key '%s': %w", key, err)
	}
	return nil
}

func (s *KVStorage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return deleted, err
		}
		deleted++
	}
	s.logger.Debug().Str("prefix", prefix).Int("deleted", deleted).Msg("Deleted keys by prefix")
	return deleted, nil
}

func (s *KVStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	var entries []KVEntry
	var query *badgerhold.Query
	if prefix != "" {
		query = badgerhold.Where("Key").HasPrefix(prefix)
	}
	if err := s.store.db.Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix '%s': %w", prefix, err)
	}
	keys := make([]string, len(entries))
	for i, entry := range entries {
		keys[i] = entry.Key
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *KVStorage) Close() error {
	return s.store.Close()
}

var _ interfaces.KeyValueStore = (*KVStorage)(nil)
