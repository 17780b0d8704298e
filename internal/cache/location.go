package cache

import (
	"context"
	"errors"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/interfaces"
)

// LocationKey holds the last visited path, used as the resume point.
const LocationKey = "reader_location"

// LocationStore persists the addressable location. It is the terminal
// stand-in for the browser address bar.
type LocationStore struct {
	store  interfaces.KeyValueStore
	logger *common.Logger
}

// NewLocationStore wraps store.
func NewLocationStore(store interfaces.KeyValueStore, logger *common.Logger) *LocationStore {
	return &LocationStore{store: store, logger: logger}
}

// SetLocation implements interfaces.LocationSink. Failures are logged only.
func (l *LocationStore) SetLocation(path string) {
	if err := l.store.Set(context.Background(), LocationKey, path); err != nil {
		l.logger.Warn().Err(err).Str("path", path).Msg("Failed to persist location")
	}
}

// Location returns the stored path, if any.
func (l *LocationStore) Location(ctx context.Context) (string, bool) {
	path, err := l.store.Get(ctx, LocationKey)
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			l.logger.Warn().Err(err).Msg("Failed to read stored location")
		}
		return "", false
	}
	return path, path != ""
}

var _ interfaces.LocationSink = (*LocationStore)(nil)
