package app

import (
	"context"
	"os"
	"time"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/models"
	"github.com/bobmcallan/lectio/internal/services/analysis"
	"github.com/bobmcallan/lectio/internal/services/navigation"
)

// prefetchNext analyses the verse after pos into the cache so the next
// step forward is served locally. It stays within the current chapter.
func prefetchNext(ctx context.Context, svc *analysis.Service, nav *navigation.Controller, pos models.Position, logger *common.Logger) {
	if os.Getenv("LECTIO_PREFETCH") == "off" {
		logger.Debug().Msg("Prefetch: disabled via LECTIO_PREFETCH=off")
		return
	}

	if cur := nav.Position(); cur.Book != pos.Book || cur.Chapter != pos.Chapter {
		return
	}
	next, ok := nextVerse(nav.Verses(), pos.Verse)
	if !ok {
		logger.Debug().Str("ref", pos.Ref()).Msg("Prefetch: last verse of chapter, skipping")
		return
	}

	start := time.Now()
	target := pos.WithVerse(next.VerseNumber)
	if err := svc.Prefetch(ctx, target, next.Text); err != nil {
		logger.Debug().Err(err).Str("ref", target.Ref()).Msg("Prefetch: failed")
		return
	}
	logger.Debug().
		Str("ref", target.Ref()).
		Dur("elapsed", time.Since(start)).
		Msg("Prefetch: complete")
}

func nextVerse(verses []models.Verse, current int) (models.Verse, bool) {
	for i, v := range verses {
		if v.VerseNumber == current && i+1 < len(verses) {
			return verses[i+1], true
		}
	}
	return models.Verse{}, false
}
