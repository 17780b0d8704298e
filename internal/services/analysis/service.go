// Package analysis resolves the word-by-word analysis of the verse on screen.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bobmcallan/lectio/internal/clients/lectio"
	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/interfaces"
	"github.com/bobmcallan/lectio/internal/models"
)

// ErrStale is returned when the reader moved on before a result arrived.
// The result is dropped; a valid raw response is still cached.
var ErrStale = errors.New("analysis result is stale")

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// Service owns the live AnalysisSnapshot and its status.
type Service struct {
	client      interfaces.AnalysisClient
	cache       interfaces.AnalysisCache
	logger      *common.Logger
	languages   []string
	maxAttempts int
	baseDelay   time.Duration
	current     func() models.Position
	sleep       func(ctx context.Context, d time.Duration) error // injectable for testing

	mu        sync.Mutex
	snapshot  *models.AnalysisSnapshot
	status    models.AnalysisStatus
	observers []func()

	backfill sync.WaitGroup
}

// Option configures the service
type Option func(*Service)

// WithLanguages sets the translation languages every snapshot should carry
func WithLanguages(langs []string) Option {
	return func(s *Service) {
		s.languages = append([]string(nil), langs...)
	}
}

// WithRetry sets the 429 policy. Non-positive values keep the defaults.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			s.baseDelay = baseDelay
		}
	}
}

// WithCurrent sets the source of truth for the displayed position.
// Without it every result is treated as current.
func WithCurrent(current func() models.Position) Option {
	return func(s *Service) {
		s.current = current
	}
}

// NewService creates a new analysis orchestrator.
func NewService(client interfaces.AnalysisClient, cache interfaces.AnalysisCache, logger *common.Logger, opts ...Option) *Service {
	s := &Service{
		client:      client,
		cache:       cache,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snapshot returns a copy of the live snapshot, or nil before the first resolve.
func (s *Service) Snapshot() *models.AnalysisSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// Status returns the live status line.
func (s *Service) Status() models.AnalysisStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnChange registers fn to run after every snapshot or status change.
func (s *Service) OnChange(fn func()) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Service) notify() {
	s.mu.Lock()
	observers := append([]func(){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

func (s *Service) isCurrent(pos models.Position) bool {
	if s.current == nil {
		return true
	}
	return s.current().SameVerse(pos)
}

// Resolve makes the analysis of pos live, from the cache when possible.
// text is the verse display text sent to the service on a miss.
func (s *Service) Resolve(ctx context.Context, pos models.Position, text string) (*models.AnalysisSnapshot, error) {
	if !s.begin(pos) {
		return nil, ErrStale
	}

	snap, outcome := s.cache.Load(ctx, pos)
	if outcome == models.CacheHit {
		s.logger.Debug().Str("ref", pos.Ref()).Msg("Analysis served from cache")
		if !s.commit(pos, snap) {
			return nil, ErrStale
		}
		s.startBackfill(ctx, pos, text, snap)
		return snap.Clone(), nil
	}
	if outcome == models.CacheCorrupt {
		s.logger.Info().Str("ref", pos.Ref()).Msg("Discarded corrupt cache entry, re-analysing")
	}

	return s.fetch(ctx, pos, text)
}

// ForceReanalyze drops the cached entry for pos and always asks the service.
func (s *Service) ForceReanalyze(ctx context.Context, pos models.Position, text string) (*models.AnalysisSnapshot, error) {
	if !s.begin(pos) {
		return nil, ErrStale
	}
	s.cache.Invalidate(ctx, pos.Ref())
	s.logger.Info().Str("ref", pos.Ref()).Msg("Forcing re-analysis")
	return s.fetch(ctx, pos, text)
}

// begin marks pos as loading. The live snapshot is replaced with a
// placeholder only when it belongs to another verse.
func (s *Service) begin(pos models.Position) bool {
	if !s.isCurrent(pos) {
		return false
	}
	s.mu.Lock()
	if s.snapshot == nil || !s.snapshot.Position.SameVerse(pos) {
		s.snapshot = models.PendingSnapshot(pos)
	}
	s.status = models.AnalysisStatus{State: models.AnalysisLoading, Message: "Analysing " + pos.Ref()}
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *Service) fetch(ctx context.Context, pos models.Position, text string) (*models.AnalysisSnapshot, error) {
	ref := pos.Ref()

	var raw *models.AnalysisResponse
	var err error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		raw, err = s.client.AnalyzeVerse(ctx, text, ref)
		if err == nil || !lectio.IsRateLimited(err) || attempt == s.maxAttempts-1 {
			break
		}

		delay := s.baseDelay * time.Duration(1<<attempt)
		s.logger.Warn().Str("ref", ref).Int("attempt", attempt+1).Dur("delay", delay).Msg("Analysis rate limited, backing off")
		if !s.setStatus(pos, models.AnalysisStatus{
			State:   models.AnalysisRetrying,
			Message: fmt.Sprintf("Rate limited, retrying in %ds (attempt %d/%d)", int(delay.Seconds()), attempt+2, s.maxAttempts),
			Attempt: attempt + 1,
			RetryIn: delay,
		}) {
			return nil, ErrStale
		}
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			err = sleepErr
			break
		}
	}

	if err != nil {
		msg := "Analysis failed"
		if lectio.IsRateLimited(err) {
			msg = fmt.Sprintf("Rate limited, gave up after %d attempts", s.maxAttempts)
		}
		s.logger.Error().Err(err).Str("ref", ref).Msg("Verse analysis failed")
		if !s.setStatus(pos, models.AnalysisStatus{State: models.AnalysisError, Message: msg, Attempt: s.maxAttempts}) {
			return nil, ErrStale
		}
		return nil, fmt.Errorf("analyse %s: %w", ref, err)
	}

	// Valid for its own verse whether or not the reader is still there.
	s.cache.Save(ctx, pos, raw)

	snap := models.BuildSnapshot(pos, raw, models.ProvenanceNetwork)
	if !s.commit(pos, snap) {
		s.logger.Debug().Str("ref", ref).Msg("Dropping stale analysis result")
		return nil, ErrStale
	}
	s.logger.Info().Str("ref", ref).Int("words", len(snap.Grammar)).Msg("Verse analysed")

	s.startBackfill(ctx, pos, text, snap)
	return snap.Clone(), nil
}

// commit installs snap as the live analysis. The reader may move between
// the position check and the lock, so the live snapshot must also still
// belong to pos: begin for another verse has already replaced it.
func (s *Service) commit(pos models.Position, snap *models.AnalysisSnapshot) bool {
	if !s.isCurrent(pos) {
		return false
	}
	s.mu.Lock()
	if !s.ownsLocked(pos) {
		s.mu.Unlock()
		return false
	}
	s.snapshot = snap.Clone()
	s.status = models.AnalysisStatus{State: models.AnalysisReady}
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *Service) setStatus(pos models.Position, status models.AnalysisStatus) bool {
	if !s.isCurrent(pos) {
		return false
	}
	s.mu.Lock()
	if !s.ownsLocked(pos) {
		s.mu.Unlock()
		return false
	}
	s.status = status
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *Service) ownsLocked(pos models.Position) bool {
	return s.snapshot != nil && s.snapshot.Position.SameVerse(pos)
}

// startBackfill requests every missing language concurrently. It never
// blocks; a failed language stays absent.
func (s *Service) startBackfill(ctx context.Context, pos models.Position, text string, snap *models.AnalysisSnapshot) {
	missing := snap.MissingLanguages(s.languages)
	if len(missing) == 0 {
		return
	}
	s.logger.Debug().Str("ref", pos.Ref()).Strs("languages", missing).Msg("Backfilling translations")

	bg := context.WithoutCancel(ctx)
	for _, lang := range missing {
		s.safeGo("translate-"+lang, func() {
			translation, err := s.client.Translate(bg, text, lang)
			if err != nil {
				s.logger.Warn().Err(err).Str("ref", pos.Ref()).Str("language", lang).Msg("Translation failed")
				return
			}
			s.mergeTranslation(pos, lang, translation)
		})
	}
}

func (s *Service) mergeTranslation(pos models.Position, lang, translation string) {
	s.mu.Lock()
	if !s.ownsLocked(pos) {
		s.mu.Unlock()
		return
	}
	s.snapshot.Translations[lang] = translation
	s.mu.Unlock()
	s.notify()
}

// safeGo launches a tracked goroutine with panic recovery and logging.
func (s *Service) safeGo(name string, fn func()) {
	s.backfill.Add(1)
	go func() {
		defer s.backfill.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in analysis goroutine")
			}
		}()
		fn()
	}()
}

// WaitBackfill blocks until every in-flight translation request has finished.
func (s *Service) WaitBackfill() {
	s.backfill.Wait()
}

// RelatedVerses lists other verses containing key. Not found is an empty list.
func (s *Service) RelatedVerses(ctx context.Context, key string) ([]models.RelatedVerse, error) {
	if key == "" {
		return nil, nil
	}
	verses, err := s.client.RelatedVerses(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("related verses for %q: %w", key, err)
	}
	return verses, nil
}

// Prefetch analyses pos into the cache without touching the live snapshot.
// It makes a single attempt and never retries a rate limit.
func (s *Service) Prefetch(ctx context.Context, pos models.Position, text string) error {
	if _, outcome := s.cache.Load(ctx, pos); outcome == models.CacheHit {
		return nil
	}
	raw, err := s.client.AnalyzeVerse(ctx, text, pos.Ref())
	if err != nil {
		return fmt.Errorf("prefetch %s: %w", pos.Ref(), err)
	}
	s.cache.Save(ctx, pos, raw)
	s.logger.Debug().Str("ref", pos.Ref()).Msg("Analysis prefetched")
	return nil
}
