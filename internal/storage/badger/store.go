// Package badger keeps the reader's analysis cache and resume point in a
// local BadgerHold database.
package badger

import (
	"fmt"
	"os"
	"sync"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/timshannon/badgerhold/v4"
)

// Store is one open database directory, or an in-memory database.
type Store struct {
	db       *badgerhold.Store
	path     string
	inMemory bool
	logger   *common.Logger

	closeOnce sync.Once
	closeErr  error
}

// StoreOption adjusts the BadgerHold options before the database opens.
type StoreOption func(*badgerhold.Options)

// InMemory keeps every entry in memory and ignores the path. Nothing
// survives Close.
func InMemory() StoreOption {
	return func(o *badgerhold.Options) {
		o.InMemory = true
		o.Dir = ""
		o.ValueDir = ""
	}
}

// NewStore opens the database under path, creating the directory.
func NewStore(logger *common.Logger, path string, opts ...StoreOption) (*Store, error) {
	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // badger's own logger would write over the reader UI
	for _, opt := range opts {
		opt(&options)
	}

	if !options.InMemory {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", path, err)
		}
	}

	db, err := badgerhold.Open(options)
	if err != nil {
		// Badger holds a directory lock, so a second reader on the same
		// data directory fails here.
		return nil, fmt.Errorf("failed to open cache at %s (is another lectio running?): %w", path, err)
	}

	s := &Store{db: db, path: path, inMemory: options.InMemory, logger: logger}

	entries, err := db.Count(&KVEntry{}, nil)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Could not count cache entries")
	}
	logger.Debug().
		Str("path", path).
		Bool("in_memory", s.inMemory).
		Uint64("entries", entries).
		Msg("Cache store opened")

	return s, nil
}

// Path returns the database directory, or "" when in memory.
func (s *Store) Path() string {
	if s.inMemory {
		return ""
	}
	return s.path
}

// Close closes the database. Later calls return the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.db == nil {
			return
		}
		s.closeErr = s.db.Close()
		if s.logger != nil {
			s.logger.Debug().Str("path", s.Path()).Msg("Cache store closed")
		}
	})
	return s.closeErr
}
