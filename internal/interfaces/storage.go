package interfaces

import (
	"context"
	"errors"

	"github.com/bobmcallan/lectio/internal/models"
)

// ErrKeyNotFound is returned by KeyValueStore.Get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is the persistent client-local store. Writes replace whole
// entries, so concurrent writers to different keys never conflict.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix and returns the count.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Keys lists keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// AnalysisCache is the per-verse analysis cache. None of its methods return
// errors: a lookup is a hit, a miss, or a (self-healed) corrupt entry.
type AnalysisCache interface {
	Load(ctx context.Context, pos models.Position) (*models.AnalysisSnapshot, models.CacheOutcome)
	Save(ctx context.Context, pos models.Position, raw *models.AnalysisResponse)
	// Invalidate removes one entry by reference, or all entries when ref is "".
	Invalidate(ctx context.Context, ref string) int
}

// LocationSink receives the addressable location on every position change.
type LocationSink interface {
	SetLocation(path string)
}
