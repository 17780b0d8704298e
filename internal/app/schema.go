package app

import (
	"context"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/interfaces"
)

const cacheSchemaKey = "lectio_cache_schema"

// checkCacheSchema compares the stored cache schema against CacheSchemaVersion.
// On mismatch (or a store that predates versioning) every analysis entry is
// dropped and the new version recorded. Returns true if the cache was cleared.
func checkCacheSchema(ctx context.Context, kv interfaces.KeyValueStore, analyses interfaces.AnalysisCache, logger *common.Logger) bool {
	stored, err := kv.Get(ctx, cacheSchemaKey)
	if err == nil && stored == common.CacheSchemaVersion {
		logger.Debug().
			Str("version", common.CacheSchemaVersion).
			Msg("Cache schema matches")
		return false
	}

	if err != nil {
		logger.Info().
			Str("current", common.CacheSchemaVersion).
			Msg("Cache schema not found, initializing")
	} else {
		logger.Warn().
			Str("stored", stored).
			Str("current", common.CacheSchemaVersion).
			Msg("Cache schema mismatch, clearing analysis cache")
	}

	removed := analyses.Invalidate(ctx, "")
	logger.Info().
		Int("removed", removed).
		Str("new_version", common.CacheSchemaVersion).
		Msg("Cache schema migration complete")

	if err := kv.Set(ctx, cacheSchemaKey, common.CacheSchemaVersion); err != nil {
		logger.Error().Err(err).Msg("Failed to store cache schema version")
	}
	return true
}
