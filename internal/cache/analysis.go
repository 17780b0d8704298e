// Package cache persists verse analysis and reader state in the client-local store.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/interfaces"
	"github.com/bobmcallan/lectio/internal/models"
)

// AnalysisPrefix namespaces analysis entries in the shared store.
const AnalysisPrefix = "verse_analysis_"

// ErrQuotaExceeded is logged when an entry is larger than the configured limit.
var ErrQuotaExceeded = errors.New("cache entry exceeds storage quota")

// Key returns the store key for a verse reference such as "Gn 1:1".
func Key(ref string) string {
	return AnalysisPrefix + ref
}

// AnalysisCache is the Cache Manager. It stores the raw service response and
// rebuilds snapshots from it, so a hit never needs the network.
type AnalysisCache struct {
	store         interfaces.KeyValueStore
	logger        *common.Logger
	maxEntryBytes int
}

// NewAnalysisCache wraps store. maxEntryBytes <= 0 disables the size quota.
func NewAnalysisCache(store interfaces.KeyValueStore, logger *common.Logger, maxEntryBytes int) *AnalysisCache {
	return &AnalysisCache{store: store, logger: logger, maxEntryBytes: maxEntryBytes}
}

// Load returns the cached snapshot for pos. An entry that fails to decode is
// deleted and reported as CacheCorrupt; the error itself never escapes.
func (c *AnalysisCache) Load(ctx context.Context, pos models.Position) (*models.AnalysisSnapshot, models.CacheOutcome) {
	key := Key(pos.Ref())

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, treating as miss")
		}
		return nil, models.CacheMiss
	}

	raw, err := decode(data)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Corrupt cache entry, removing")
		if delErr := c.store.Delete(ctx, key); delErr != nil {
			c.logger.Warn().Err(delErr).Str("key", key).Msg("Failed to remove corrupt cache entry")
		}
		return nil, models.CacheCorrupt
	}

	c.logger.Debug().Str("key", key).Msg("Cache hit")
	return models.BuildSnapshot(pos, raw, models.ProvenanceCache), models.CacheHit
}

func decode(data string) (*models.AnalysisResponse, error) {
	trimmed := bytes.TrimSpace([]byte(data))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("entry is not a JSON object")
	}
	var raw models.AnalysisResponse
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	return &raw, nil
}

// Save stores raw under pos's reference, replacing any previous entry.
// Failures are logged and swallowed: the cache is an optimisation only.
func (c *AnalysisCache) Save(ctx context.Context, pos models.Position, raw *models.AnalysisResponse) {
	if err := c.save(ctx, pos.Ref(), raw); err != nil {
		c.logger.Warn().Err(err).Str("ref", pos.Ref()).Msg("Cache write skipped")
	}
}

func (c *AnalysisCache) save(ctx context.Context, ref string, raw *models.AnalysisResponse) error {
	if raw == nil {
		return fmt.Errorf("nothing to cache")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	if c.maxEntryBytes > 0 && len(data) > c.maxEntryBytes {
		return fmt.Errorf("%d bytes > %d: %w", len(data), c.maxEntryBytes, ErrQuotaExceeded)
	}
	return c.store.Set(ctx, Key(ref), string(data))
}

// Invalidate removes the entry for ref, or every analysis entry when ref is "".
// It returns the number of entries removed.
func (c *AnalysisCache) Invalidate(ctx context.Context, ref string) int {
	if ref == "" {
		n, err := c.store.DeletePrefix(ctx, AnalysisPrefix)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Cache clear failed")
		}
		c.logger.Info().Int("removed", n).Msg("Analysis cache cleared")
		return n
	}

	key := Key(ref)
	if _, err := c.store.Get(ctx, key); err != nil {
		return 0
	}
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache invalidate failed")
		return 0
	}
	c.logger.Debug().Str("key", key).Msg("Cache entry invalidated")
	return 1
}

// Refs lists the verse references currently cached.
func (c *AnalysisCache) Refs(ctx context.Context) ([]string, error) {
	keys, err := c.store.Keys(ctx, AnalysisPrefix)
	if err != nil {
		return nil, err
	}
	refs := make([]string, len(keys))
	for i, k := range keys {
		refs[i] = k[len(AnalysisPrefix):]
	}
	return refs, nil
}

var _ interfaces.AnalysisCache = (*AnalysisCache)(nil)
