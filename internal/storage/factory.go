// Package storage opens the client-local key-value store with a pluggable backend.
package storage

import (
	"fmt"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/interfaces"
	"github.com/bobmcallan/lectio/internal/storage/badger"
	"github.com/bobmcallan/lectio/internal/storage/sqlite"
)

// Backend type constants.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// NewKeyValueStore opens the store described by the [storage] section.
// Supported backends: "badger" (default), "sqlite", and "memory", an
// in-memory badger database for throwaway sessions.
func NewKeyValueStore(logger *common.Logger, config common.StorageConfig) (interfaces.KeyValueStore, error) {
	backend := config.Backend
	if backend == "" {
		backend = BackendBadger
	}

	switch backend {
	case BackendBadger:
		store, err := badger.NewStore(logger, config.Path)
		if err != nil {
			return nil, err
		}
		return badger.NewKVStorage(store, logger), nil

	case BackendSQLite:
		return sqlite.NewStore(logger, config.Path)

	case BackendMemory:
		store, err := badger.NewStore(logger, "", badger.InMemory())
		if err != nil {
			return nil, err
		}
		return badger.NewKVStorage(store, logger), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: badger, sqlite, memory)", backend)
	}
}
