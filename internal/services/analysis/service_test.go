package analysis

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/lectio/internal/cache"
	"github.com/bobmcallan/lectio/internal/clients/lectio"
	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/models"
	"github.com/bobmcallan/lectio/internal/storage/storagetest"
)

// --- Fakes ---

type fakeClient struct {
	mu           sync.Mutex
	analyzeCalls int
	translations []string
	// analyze answers each call in order; the last entry repeats.
	analyze   []func() (*models.AnalysisResponse, error)
	translate func(text, lang string) (string, error)
	related   []models.RelatedVerse
	onAnalyze func()
}

func (f *fakeClient) AnalyzeVerse(_ context.Context, _, _ string) (*models.AnalysisResponse, error) {
	f.mu.Lock()
	i := f.analyzeCalls
	f.analyzeCalls++
	hook := f.onAnalyze
	var answer func() (*models.AnalysisResponse, error)
	if len(f.analyze) > 0 {
		if i >= len(f.analyze) {
			i = len(f.analyze) - 1
		}
		answer = f.analyze[i]
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if answer == nil {
		return genesisResponse(), nil
	}
	return answer()
}

func (f *fakeClient) Translate(_ context.Context, text, lang string) (string, error) {
	f.mu.Lock()
	f.translations = append(f.translations, lang)
	fn := f.translate
	f.mu.Unlock()
	if fn == nil {
		return "translated " + lang, nil
	}
	return fn(text, lang)
}

func (f *fakeClient) RelatedVerses(_ context.Context, _ string) ([]models.RelatedVerse, error) {
	return f.related, nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analyzeCalls
}

func succeed() (*models.AnalysisResponse, error) { return genesisResponse(), nil }

func rateLimited() (*models.AnalysisResponse, error) {
	return nil, &lectio.APIError{StatusCode: http.StatusTooManyRequests, Message: "Too Many Requests", Endpoint: "/dictionary/analyze/verse"}
}

func genesisResponse() *models.AnalysisResponse {
	return &models.AnalysisResponse{
		FullAnalysis: models.FullAnalysis{
			WordAnalysis: []models.WordAnalysisItem{
				{Latin: "In", Definition: "in, into", PartOfSpeech: "preposition"},
				{Latin: "prīncipiō", Definition: "beginning", PartOfSpeech: "noun"},
				{Latin: "creāvit", Definition: "created", PartOfSpeech: "verb"},
				{Latin: "Deus", Definition: "God", PartOfSpeech: "noun"},
			},
			Translations:     map[string]string{"en": "In the beginning God created"},
			TheologicalLayer: models.Layer{"Creation ex nihilo"},
		},
	}
}

func genesis(verse int) models.Position {
	return models.Position{Source: models.DefaultSource, Book: "Gn", Chapter: 1, Verse: verse}
}

type harness struct {
	svc    *Service
	client *fakeClient
	store  *storagetest.MemoryStore
	sleeps []time.Duration

	mu  sync.Mutex
	pos models.Position
}

func (h *harness) setCurrent(p models.Position) {
	h.mu.Lock()
	h.pos = p
	h.mu.Unlock()
}

func (h *harness) current() models.Position {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

func newHarness(client *fakeClient, store *storagetest.MemoryStore, langs ...string) *harness {
	if store == nil {
		store = storagetest.NewMemoryStore()
	}
	h := &harness{client: client, store: store, pos: genesis(1)}
	logger := common.NewSilentLogger()
	h.svc = NewService(client, cache.NewAnalysisCache(store, logger, 0), logger,
		WithLanguages(langs),
		WithCurrent(h.current),
	)
	h.svc.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

// --- Tests ---

func TestResolve_FreshLoadAnalysesAndCaches(t *testing.T) {
	h := newHarness(&fakeClient{}, nil)

	snap, err := h.svc.Resolve(context.Background(), genesis(1), "In prīncipiō creāvit Deus")
	require.NoError(t, err)
	assert.Equal(t, 1, h.client.calls())

	_, found := snap.Lookup("in")
	assert.True(t, found, "first token must be indexed by its WordKey")
	require.NotEmpty(t, snap.Grammar)
	assert.Equal(t, "In", snap.Grammar[0].Word)
	assert.True(t, snap.Done)
	assert.Equal(t, models.ProvenanceNetwork, snap.Provenance)
	assert.True(t, h.store.Has(cache.Key("Gn 1:1")))

	assert.Equal(t, models.AnalysisReady, h.svc.Status().State)
	assert.Equal(t, snap.Grammar, h.svc.Snapshot().Grammar)
}

func TestResolve_CachedReloadIssuesNoRequests(t *testing.T) {
	store := storagetest.NewMemoryStore()
	first := newHarness(&fakeClient{}, store)
	original, err := first.svc.Resolve(context.Background(), genesis(1), "In principio")
	require.NoError(t, err)

	reload := newHarness(&fakeClient{}, store)
	snap, err := reload.svc.Resolve(context.Background(), genesis(1), "In principio")
	require.NoError(t, err)

	assert.Equal(t, 0, reload.client.calls())
	assert.Equal(t, models.ProvenanceCache, snap.Provenance)
	assert.Equal(t, original.Grammar, snap.Grammar)
}

func TestResolve_CorruptCacheFallsThroughToNetwork(t *testing.T) {
	store := storagetest.NewMemoryStore()
	store.Put(cache.Key("Gn 1:1"), "{truncated")
	h := newHarness(&fakeClient{}, store)

	_, err := h.svc.Resolve(context.Background(), genesis(1), "In principio")
	require.NoError(t, err)
	assert.Equal(t, 1, h.client.calls())
}

func TestResolve_RetryBoundIsThreeAttempts(t *testing.T) {
	client := &fakeClient{analyze: []func() (*models.AnalysisResponse, error){rateLimited}}
	h := newHarness(client, nil)

	_, err := h.svc.Resolve(context.Background(), genesis(1), "In principio")
	require.Error(t, err)
	assert.True(t, lectio.IsRateLimited(err))

	assert.Equal(t, 3, client.calls(), "never a fourth attempt")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, h.sleeps)

	status := h.svc.Status()
	assert.Equal(t, models.AnalysisError, status.State)
	assert.Contains(t, status.Message, "gave up after 3 attempts")
	assert.False(t, h.store.Has(cache.Key("Gn 1:1")))
}

func TestResolve_RetryThenSuccess(t *testing.T) {
	client := &fakeClient{analyze: []func() (*models.AnalysisResponse, error){rateLimited, succeed}}
	h := newHarness(client, nil)

	var mu sync.Mutex
	var messages []string
	h.svc.OnChange(func() {
		st := h.svc.Status()
		if st.State == models.AnalysisRetrying {
			mu.Lock()
			messages = append(messages, st.Message)
			mu.Unlock()
		}
	})

	snap, err := h.svc.Resolve(context.Background(), genesis(1), "In principio")
	require.NoError(t, err)
	assert.Len(t, snap.Grammar, 4)
	assert.Equal(t, 2, client.calls())
	assert.Equal(t, []string{"Rate limited, retrying in 2s (attempt 2/3)"}, messages)
	assert.Equal(t, models.AnalysisReady, h.svc.Status().State)
}

func TestResolve_NonRateLimitErrorIsNotRetried(t *testing.T) {
	client := &fakeClient{analyze: []func() (*models.AnalysisResponse, error){
		func() (*models.AnalysisResponse, error) {
			return nil, &lectio.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
		},
	}}
	h := newHarness(client, nil)

	_, err := h.svc.Resolve(context.Background(), genesis(1), "In principio")
	require.Error(t, err)
	assert.Equal(t, 1, client.calls())
	assert.Empty(t, h.sleeps)
	assert.Equal(t, models.AnalysisError, h.svc.Status().State)
}

func TestResolve_StaleResultIsDropped(t *testing.T) {
	client := &fakeClient{}
	h := newHarness(client, nil)
	// The reader moves to verse 2 while verse 1 is in flight.
	client.onAnalyze = func() { h.setCurrent(genesis(2)) }

	_, err := h.svc.Resolve(context.Background(), genesis(1), "In principio")
	assert.ErrorIs(t, err, ErrStale)

	snap := h.svc.Snapshot()
	require.NotNil(t, snap)
	assert.False(t, snap.Done, "verse 1's analysis must not become live")
	assert.True(t, h.store.Has(cache.Key("Gn 1:1")), "the raw response is still valid for its own verse")
}

func TestResolve_StaleErrorLeavesStatusAlone(t *testing.T) {
	client := &fakeClient{analyze: []func() (*models.AnalysisResponse, error){
		func() (*models.AnalysisResponse, error) { return nil, errors.New("connection reset") },
	}}
	h := newHarness(client, nil)
	client.onAnalyze = func() { h.setCurrent(genesis(2)) }

	_, err := h.svc.Resolve(context.Background(), genesis(1), "In principio")
	assert.ErrorIs(t, err, ErrStale)
	assert.Equal(t, models.AnalysisLoading, h.svc.Status().State)
}

func TestResolve_LateCommitCannotOverwriteNewerVerse(t *testing.T) {
	client := &fakeClient{}
	h := newHarness(client, nil)
	ctx := context.Background()
	h.svc.cache.Save(ctx, genesis(2), genesisResponse())

	// Verse 1 passes the position check on commit, then the reader moves to
	// verse 2 and resolves it from cache before verse 1 takes the lock.
	var moved atomic.Bool
	client.onAnalyze = func() { moved.Store(true) }
	h.svc.current = func() models.Position {
		pos := h.current()
		if moved.CompareAndSwap(true, false) {
			h.setCurrent(genesis(2))
			_, err := h.svc.Resolve(ctx, genesis(2), "terra autem")
			assert.NoError(t, err)
		}
		return pos
	}

	_, err := h.svc.Resolve(ctx, genesis(1), "In principio")
	assert.ErrorIs(t, err, ErrStale)

	snap := h.svc.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "Gn 1:2", snap.Position.Ref())
	assert.True(t, snap.Done)
	assert.Equal(t, models.AnalysisReady, h.svc.Status().State)
	assert.True(t, h.store.Has(cache.Key("Gn 1:1")), "verse 1 is still cached for later")
}

func TestResolve_NotCurrentIsRejectedUpFront(t *testing.T) {
	client := &fakeClient{}
	h := newHarness(client, nil)
	h.setCurrent(genesis(5))

	_, err := h.svc.Resolve(context.Background(), genesis(1), "In principio")
	assert.ErrorIs(t, err, ErrStale)
	assert.Equal(t, 0, client.calls())
}

func TestForceReanalyze_BypassesCache(t *testing.T) {
	h := newHarness(&fakeClient{}, nil)
	ctx := context.Background()

	_, err := h.svc.Resolve(ctx, genesis(1), "In principio")
	require.NoError(t, err)
	_, err = h.svc.Resolve(ctx, genesis(1), "In principio")
	require.NoError(t, err)
	assert.Equal(t, 1, h.client.calls())

	snap, err := h.svc.ForceReanalyze(ctx, genesis(1), "In principio")
	require.NoError(t, err)
	assert.Equal(t, 2, h.client.calls())
	assert.Equal(t, models.ProvenanceNetwork, snap.Provenance)
}

func TestForceReanalyze_NotCurrentKeepsCacheEntry(t *testing.T) {
	client := &fakeClient{}
	h := newHarness(client, nil)
	ctx := context.Background()
	h.svc.cache.Save(ctx, genesis(1), genesisResponse())
	h.setCurrent(genesis(2))

	_, err := h.svc.ForceReanalyze(ctx, genesis(1), "In principio")
	assert.ErrorIs(t, err, ErrStale)
	assert.Equal(t, 0, client.calls())
	assert.True(t, h.store.Has(cache.Key("Gn 1:1")))
}

func TestForceReanalyze_FailureKeepsPriorSnapshot(t *testing.T) {
	client := &fakeClient{analyze: []func() (*models.AnalysisResponse, error){
		succeed,
		func() (*models.AnalysisResponse, error) { return nil, errors.New("connection reset") },
	}}
	h := newHarness(client, nil)
	ctx := context.Background()

	_, err := h.svc.Resolve(ctx, genesis(1), "In principio")
	require.NoError(t, err)

	_, err = h.svc.ForceReanalyze(ctx, genesis(1), "In principio")
	require.Error(t, err)

	snap := h.svc.Snapshot()
	assert.True(t, snap.Done)
	assert.Len(t, snap.Grammar, 4)
	assert.Equal(t, models.AnalysisError, h.svc.Status().State)
}

func TestBackfill_ConcurrentAndIsolated(t *testing.T) {
	entered := make(chan string, 3)
	release := make(chan struct{})
	client := &fakeClient{
		translate: func(_, lang string) (string, error) {
			entered <- lang
			<-release
			if lang == "fr" {
				return "", errors.New("translation unavailable")
			}
			return "translated " + lang, nil
		},
	}
	h := newHarness(client, nil, "en", "es", "fr")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := h.svc.Resolve(context.Background(), genesis(1), "In principio")
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Resolve blocked on translation backfill")
	}

	// Both missing languages must be in flight at once.
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatal("translations were not issued concurrently")
		}
	}
	close(release)
	h.svc.WaitBackfill()

	snap := h.svc.Snapshot()
	assert.Equal(t, "In the beginning God created", snap.Translations["en"])
	assert.Equal(t, "translated es", snap.Translations["es"])
	_, hasFrench := snap.Translations["fr"]
	assert.False(t, hasFrench, "a failed language stays absent")
	assert.ElementsMatch(t, []string{"es", "fr"}, client.translations)
}

func TestBackfill_DoesNotMergeIntoAnotherVerse(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{
		translate: func(text, lang string) (string, error) {
			<-release
			return text + "/" + lang, nil
		},
	}
	h := newHarness(client, nil, "es")
	ctx := context.Background()

	_, err := h.svc.Resolve(ctx, genesis(1), "In principio")
	require.NoError(t, err)

	h.setCurrent(genesis(2))
	_, err = h.svc.Resolve(ctx, genesis(2), "terra autem")
	require.NoError(t, err)

	close(release)
	h.svc.WaitBackfill()

	snap := h.svc.Snapshot()
	assert.Equal(t, "Gn 1:2", snap.Ref)
	assert.Equal(t, "terra autem/es", snap.Translations["es"])
	assert.ElementsMatch(t, []string{"es", "es"}, client.translations)
}

func TestBackfill_SkippedWhenComplete(t *testing.T) {
	client := &fakeClient{}
	h := newHarness(client, nil, "en")

	_, err := h.svc.Resolve(context.Background(), genesis(1), "In principio")
	require.NoError(t, err)
	h.svc.WaitBackfill()
	assert.Empty(t, client.translations)
}

func TestRelatedVerses(t *testing.T) {
	client := &fakeClient{related: []models.RelatedVerse{{Book: "Jn", Chapter: 1, Verse: 1}}}
	h := newHarness(client, nil)

	verses, err := h.svc.RelatedVerses(context.Background(), "deus")
	require.NoError(t, err)
	assert.Len(t, verses, 1)

	verses, err = h.svc.RelatedVerses(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, verses)
}

func TestPrefetch_FillsCacheWithoutTouchingSnapshot(t *testing.T) {
	client := &fakeClient{}
	h := newHarness(client, nil)
	ctx := context.Background()

	require.NoError(t, h.svc.Prefetch(ctx, genesis(2), "terra autem"))
	assert.True(t, h.store.Has(cache.Key("Gn 1:2")))
	assert.Nil(t, h.svc.Snapshot())
	assert.Equal(t, models.AnalysisIdle, h.svc.Status().State)

	require.NoError(t, h.svc.Prefetch(ctx, genesis(2), "terra autem"))
	assert.Equal(t, 1, client.calls(), "a cached verse is not fetched again")
}

func TestPrefetch_SingleAttempt(t *testing.T) {
	client := &fakeClient{analyze: []func() (*models.AnalysisResponse, error){rateLimited}}
	h := newHarness(client, nil)

	err := h.svc.Prefetch(context.Background(), genesis(2), "terra autem")
	require.Error(t, err)
	assert.Equal(t, 1, client.calls())
	assert.Empty(t, h.sleeps)
	assert.False(t, h.store.Has(cache.Key("Gn 1:2")))
}
