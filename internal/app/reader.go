package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/models"
	"github.com/bobmcallan/lectio/internal/services/analysis"
	"github.com/bobmcallan/lectio/internal/services/audio"
	"github.com/bobmcallan/lectio/internal/services/keyboard"
	"github.com/bobmcallan/lectio/internal/services/navigation"
	"github.com/bobmcallan/lectio/internal/services/recording"
)

// Reader ties navigation, analysis, audio and recording together. It owns the
// selected word and the selected translation language, and implements the
// keyboard actions. Actions never block: anything that waits on the network
// runs on a tracked goroutine.
type Reader struct {
	nav       *navigation.Controller
	analysis  *analysis.Service
	audio     *audio.Synchronizer
	recording *recording.Service
	logger    *common.Logger
	preferred []string
	prefetch  bool

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	word      int
	language  string
	observers []func()

	wg sync.WaitGroup
}

// ReaderOption configures the reader
type ReaderOption func(*Reader)

// WithPreferredLanguages orders the translation languages. Languages outside
// the list follow in alphabetical order.
func WithPreferredLanguages(langs []string) ReaderOption {
	return func(r *Reader) {
		r.preferred = append([]string(nil), langs...)
	}
}

// WithPrefetch enables background analysis of the next verse
func WithPrefetch(enabled bool) ReaderOption {
	return func(r *Reader) {
		r.prefetch = enabled
	}
}

// NewReader subscribes to every peer. recording may be nil.
func NewReader(nav *navigation.Controller, svc *analysis.Service, player *audio.Synchronizer, rec *recording.Service, logger *common.Logger, opts ...ReaderOption) *Reader {
	r := &Reader{
		nav:       nav,
		analysis:  svc,
		audio:     player,
		recording: rec,
		logger:    logger,
		ctx:       context.Background(),
		cancel:    func() {},
	}
	for _, opt := range opts {
		opt(r)
	}

	nav.OnChange(r.onPosition)
	svc.OnChange(r.notify)
	player.OnChange(r.notify)
	if rec != nil {
		rec.OnChange(r.notify)
	}
	return r
}

// Start places the reader at pos and begins resolving its analysis.
// ctx bounds every background request the reader makes afterwards.
func (r *Reader) Start(ctx context.Context, pos models.Position) error {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.ctx, r.cancel = ctx, cancel
	r.mu.Unlock()

	if err := r.nav.Load(ctx, pos); err != nil {
		return fmt.Errorf("failed to open %s: %w", pos.Ref(), err)
	}
	return nil
}

// Close cancels background work, stops audio and waits for goroutines.
func (r *Reader) Close() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	cancel()
	r.audio.Stop()
	r.Wait()
}

// Wait blocks until every background action and translation has finished.
func (r *Reader) Wait() {
	r.wg.Wait()
	r.analysis.WaitBackfill()
}

// OnChange registers fn to run after any change the screen shows.
func (r *Reader) OnChange(fn func()) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

func (r *Reader) notify() {
	r.mu.Lock()
	observers := append([]func(){}, r.observers...)
	r.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

func (r *Reader) context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx
}

// onPosition runs on every committed move.
func (r *Reader) onPosition(pos models.Position) {
	r.mu.Lock()
	r.word = 0
	r.mu.Unlock()

	r.audio.Stop()
	r.notify()
	r.safeGo("resolve", func() { r.resolve(pos) })
}

func (r *Reader) resolve(pos models.Position) {
	verse, ok := r.verseAt(pos)
	if !ok {
		r.logger.Warn().Str("ref", pos.Ref()).Msg("No verse text, analysis skipped")
		return
	}

	ctx := r.context()
	_, err := r.analysis.Resolve(ctx, pos, verse.DisplayText())
	switch {
	case errors.Is(err, analysis.ErrStale):
		r.logger.Debug().Str("ref", pos.Ref()).Msg("Analysis superseded by navigation")
		return
	case err != nil:
		r.logger.Warn().Err(err).Str("ref", pos.Ref()).Msg("Analysis failed")
		return
	}

	r.selectFirst(pos)
	if r.prefetch {
		r.safeGo("prefetch", func() { prefetchNext(ctx, r.analysis, r.nav, pos, r.logger) })
	}
}

// verseAt returns the verse for pos while it is still the one on screen.
func (r *Reader) verseAt(pos models.Position) (models.Verse, bool) {
	if !r.nav.Position().SameVerse(pos) {
		return models.Verse{}, false
	}
	return r.nav.CurrentVerse()
}

// PreviousVerse implements keyboard.Actions.
func (r *Reader) PreviousVerse() {
	r.safeGo("previous", func() { r.nav.Previous(r.context()) })
}

// NextVerse implements keyboard.Actions.
func (r *Reader) NextVerse() {
	r.safeGo("next", func() { r.nav.Next(r.context()) })
}

// GoToReference parses "Ex 3:14" and jumps there in the background.
func (r *Reader) GoToReference(ref string) error {
	pos, err := models.ParseReference(ref)
	if err != nil {
		return err
	}
	r.GoToPosition(pos)
	return nil
}

// GoToPosition jumps to pos in the background.
func (r *Reader) GoToPosition(pos models.Position) {
	r.safeGo("goto", func() {
		if err := r.nav.GoToPosition(r.context(), pos); err != nil {
			r.logger.Warn().Err(err).Str("ref", pos.Ref()).Msg("Jump failed")
		}
	})
}

// Languages returns the languages with a translation, preferred ones first.
func (r *Reader) Languages() []string {
	return orderLanguages(r.analysis.Snapshot().Languages(), r.preferred)
}

func orderLanguages(available, preferred []string) []string {
	have := make(map[string]bool, len(available))
	for _, l := range available {
		have[l] = true
	}
	out := make([]string, 0, len(available))
	for _, l := range preferred {
		if have[l] {
			out = append(out, l)
			delete(have, l)
		}
	}
	rest := make([]string, 0, len(have))
	for l := range have {
		rest = append(rest, l)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Language returns the selected translation language. It falls back to the
// first available language when the selection has no translation.
func (r *Reader) Language() string {
	langs := r.Languages()
	r.mu.Lock()
	defer r.mu.Unlock()
	return pickLanguage(langs, r.language)
}

func pickLanguage(langs []string, selected string) string {
	for _, l := range langs {
		if l == selected {
			return l
		}
	}
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

// Translation returns the selected language and its text.
func (r *Reader) Translation() (string, string) {
	snap := r.analysis.Snapshot()
	lang := r.Language()
	if snap == nil || lang == "" {
		return "", ""
	}
	return lang, snap.Translations[lang]
}

// CycleLanguage implements keyboard.Actions.
func (r *Reader) CycleLanguage(step int) {
	langs := r.Languages()
	if len(langs) == 0 {
		return
	}
	r.mu.Lock()
	cur := pickLanguage(langs, r.language)
	i := 0
	for j, l := range langs {
		if l == cur {
			i = j
		}
	}
	r.language = langs[wrap(i+step, len(langs))]
	r.mu.Unlock()
	r.notify()
}

// SelectedWord returns the selected grammar index, or -1 when the verse has
// no grammar yet.
func (r *Reader) SelectedWord() int {
	n := len(r.analysis.Snapshot().Entries())
	r.mu.Lock()
	defer r.mu.Unlock()
	if n == 0 {
		return -1
	}
	return wrap(r.word, n)
}

// SelectedEntry returns the selected grammar entry and its dictionary record.
func (r *Reader) SelectedEntry() (models.GrammarEntry, models.WordInfo, bool) {
	snap := r.analysis.Snapshot()
	i := r.SelectedWord()
	if snap == nil || i < 0 || i >= len(snap.Grammar) {
		return models.GrammarEntry{}, models.WordInfo{}, false
	}
	entry := snap.Grammar[i]
	info, _ := snap.Lookup(entry.Key)
	return entry, info, true
}

// StepWord implements keyboard.Actions.
func (r *Reader) StepWord(step int) {
	n := len(r.analysis.Snapshot().Entries())
	if n == 0 {
		return
	}
	r.mu.Lock()
	r.word = wrap(r.word+step, n)
	r.mu.Unlock()
	r.notify()
}

// SelectWord selects grammar index i directly.
func (r *Reader) SelectWord(i int) {
	n := len(r.analysis.Snapshot().Entries())
	if i < 0 || i >= n {
		return
	}
	r.mu.Lock()
	r.word = i
	r.mu.Unlock()
	r.notify()
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}

// Related lists other verses containing the selected word.
func (r *Reader) Related(ctx context.Context) ([]models.RelatedVerse, error) {
	entry, _, ok := r.SelectedEntry()
	if !ok {
		return nil, nil
	}
	return r.analysis.RelatedVerses(ctx, entry.Key)
}

// ToggleAudio implements keyboard.Actions.
func (r *Reader) ToggleAudio() {
	pos := r.nav.Position()
	words := len(r.analysis.Snapshot().Entries())
	r.safeGo("audio", func() { r.audio.Toggle(r.context(), pos, words) })
}

// ToggleRecording implements keyboard.Actions.
func (r *Reader) ToggleRecording() {
	if r.recording == nil {
		return
	}
	pos := r.nav.Position()
	r.safeGo("recording", func() { r.recording.Toggle(r.context(), pos) })
}

// Enhance implements keyboard.Actions. It re-requests the verse analysis,
// bypassing the cache.
func (r *Reader) Enhance() {
	pos := r.nav.Position()
	verse, ok := r.verseAt(pos)
	if !ok {
		return
	}
	r.safeGo("enhance", func() {
		_, err := r.analysis.ForceReanalyze(r.context(), pos, verse.DisplayText())
		switch {
		case err == nil:
			r.selectFirst(pos)
		case !errors.Is(err, analysis.ErrStale):
			r.logger.Warn().Err(err).Str("ref", pos.Ref()).Msg("Re-analysis failed")
		}
	})
}

// selectFirst moves the selection to the first word once an analysis of pos
// has gone live.
func (r *Reader) selectFirst(pos models.Position) {
	if !r.nav.Position().SameVerse(pos) {
		return
	}
	r.mu.Lock()
	changed := r.word != 0
	r.word = 0
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}

// safeGo launches a tracked goroutine with panic recovery and logging.
func (r *Reader) safeGo(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", rec)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in reader goroutine")
			}
		}()
		fn()
	}()
}

var _ keyboard.Actions = (*Reader)(nil)
