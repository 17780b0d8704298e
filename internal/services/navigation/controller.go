// Package navigation moves the reader between verses, chapters and books.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/interfaces"
	"github.com/bobmcallan/lectio/internal/models"
)

// ErrBusy is returned when a navigation is already in flight. The request
// is dropped, not queued.
var ErrBusy = errors.New("navigation in progress")

const (
	DefaultCommitDelay = 50 * time.Millisecond
	DefaultSettleDelay = 450 * time.Millisecond
)

// Controller owns the current Position and the transition state machine.
// Every move goes through navigate, and every Position write goes through
// updateLocation.
type Controller struct {
	catalog     interfaces.CatalogClient
	sink        interfaces.LocationSink
	logger      *common.Logger
	crossBooks  bool
	commitDelay time.Duration
	settleDelay time.Duration
	afterFunc   func(d time.Duration, f func()) // injectable for testing

	mu        sync.Mutex
	pos       models.Position
	book      models.Book
	verses    []models.Verse
	state     models.TransitionState
	books     []models.Book // catalog order, fetched on first book crossing
	listeners []func(models.Position)
}

// Option configures the controller
type Option func(*Controller)

// WithDelays sets the commit and settle delays of an animated move
func WithDelays(commit, settle time.Duration) Option {
	return func(c *Controller) {
		c.commitDelay = commit
		c.settleDelay = settle
	}
}

// WithCrossBooks lets next/previous run past the ends of a book
func WithCrossBooks(enabled bool) Option {
	return func(c *Controller) {
		c.crossBooks = enabled
	}
}

// WithLocationSink publishes every committed location to sink
func WithLocationSink(sink interfaces.LocationSink) Option {
	return func(c *Controller) {
		c.sink = sink
	}
}

// NewController creates a navigation controller. It holds no position
// until Load succeeds.
func NewController(catalog interfaces.CatalogClient, logger *common.Logger, opts ...Option) *Controller {
	c := &Controller{
		catalog:     catalog,
		logger:      logger,
		commitDelay: DefaultCommitDelay,
		settleDelay: DefaultSettleDelay,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Position returns the current position.
func (c *Controller) Position() models.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// State returns the transition state.
func (c *Controller) State() models.TransitionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Book returns the current book record.
func (c *Controller) Book() models.Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.book
}

// Verses returns the verses of the current chapter.
func (c *Controller) Verses() []models.Verse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Verse(nil), c.verses...)
}

// CurrentVerse returns the verse on screen. It is false when the chapter's
// verse list could not be fetched.
func (c *Controller) CurrentVerse() (models.Verse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := indexOf(c.verses, c.pos.Verse); i >= 0 {
		return c.verses[i], true
	}
	return models.Verse{}, false
}

// OnChange registers fn to run after every committed position change.
func (c *Controller) OnChange(fn func(models.Position)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Load places the reader at pos without animation, fetching the book and
// chapter. It is the initial placement and the resume path.
func (c *Controller) Load(ctx context.Context, pos models.Position) error {
	_, err := c.navigate(ctx, models.DirectionNone, false, func(ctx context.Context, _ view) (*target, error) {
		return c.planJump(ctx, pos, true)
	})
	return err
}

// Next moves one verse forward. It reports whether a move started.
func (c *Controller) Next(ctx context.Context) bool {
	ok, _ := c.navigate(ctx, models.DirectionDown, true, c.planNext)
	return ok
}

// Previous moves one verse back. It reports whether a move started.
func (c *Controller) Previous(ctx context.Context) bool {
	ok, _ := c.navigate(ctx, models.DirectionUp, true, c.planPrevious)
	return ok
}

// GoTo jumps to a verse of the current chapter without animation.
func (c *Controller) GoTo(ctx context.Context, verse int) bool {
	ok, _ := c.navigate(ctx, models.DirectionNone, false, func(_ context.Context, cur view) (*target, error) {
		if verse < 1 || verse == cur.pos.Verse || (len(cur.verses) > 0 && indexOf(cur.verses, verse) < 0) {
			return nil, nil
		}
		return &target{pos: cur.pos.WithVerse(verse)}, nil
	})
	return ok
}

// GoToPosition jumps anywhere in the catalog without animation, as the verse
// picker and related-verse links do.
func (c *Controller) GoToPosition(ctx context.Context, pos models.Position) error {
	_, err := c.navigate(ctx, models.DirectionNone, false, func(ctx context.Context, _ view) (*target, error) {
		return c.planJump(ctx, pos, false)
	})
	return err
}

// view is the state a plan is computed from.
type view struct {
	pos    models.Position
	book   models.Book
	verses []models.Verse
}

// target is where a move lands. chapter is nil when it stays in the same one.
type target struct {
	pos     models.Position
	chapter *chapter
}

type chapter struct {
	book   models.Book
	verses []models.Verse
}

type planFunc func(ctx context.Context, cur view) (*target, error)

// navigate is the single entry point for every move. It claims the guard,
// computes the target (fetching in the locked phase), then either commits
// at once or runs the two-stage animation. A nil target is a no-op.
func (c *Controller) navigate(ctx context.Context, dir models.Direction, animate bool, plan planFunc) (bool, error) {
	c.mu.Lock()
	if c.state.Busy() {
		phase := c.state.Phase
		c.mu.Unlock()
		c.logger.Debug().Str("phase", phase.String()).Msg("Navigation dropped, transition in progress")
		return false, ErrBusy
	}
	c.state = models.TransitionState{Phase: models.PhaseLocked}
	cur := view{pos: c.pos, book: c.book, verses: append([]models.Verse(nil), c.verses...)}
	c.mu.Unlock()

	tgt, err := plan(ctx, cur)
	if err != nil || tgt == nil {
		c.transition(models.PhaseIdle, models.DirectionNone)
		return false, err
	}

	if !animate {
		c.commit(tgt)
		c.transition(models.PhaseIdle, models.DirectionNone)
		return true, nil
	}

	c.transition(models.PhaseAnimating, dir)
	c.afterFunc(c.commitDelay, func() {
		c.commit(tgt)
		c.afterFunc(c.settleDelay, func() {
			c.transition(models.PhaseIdle, models.DirectionNone)
		})
	})
	return true, nil
}

func (c *Controller) transition(to models.Phase, dir models.Direction) {
	c.mu.Lock()
	from := c.state.Phase
	if !models.CanTransition(from, to) {
		c.mu.Unlock()
		c.logger.Error().Str("from", from.String()).Str("to", to.String()).Msg("Illegal navigation transition")
		return
	}
	c.state = models.TransitionState{Phase: to, Direction: dir}
	c.mu.Unlock()
}

func (c *Controller) commit(tgt *target) {
	c.mu.Lock()
	if tgt.chapter != nil {
		c.book = tgt.chapter.book
		c.verses = tgt.chapter.verses
	}
	c.mu.Unlock()
	c.updateLocation(tgt.pos)
}

// updateLocation is the only writer of the Position. It keeps the position,
// the published location and the listeners consistent.
func (c *Controller) updateLocation(pos models.Position) {
	c.mu.Lock()
	c.pos = pos
	listeners := append([]func(models.Position){}, c.listeners...)
	c.mu.Unlock()

	c.logger.Debug().Str("ref", pos.Ref()).Msg("Location updated")
	if c.sink != nil {
		c.sink.SetLocation(pos.Path())
	}
	for _, fn := range listeners {
		fn(pos)
	}
}

func (c *Controller) planNext(ctx context.Context, cur view) (*target, error) {
	reloaded, ok := c.reloadChapter(ctx, &cur)
	if !ok {
		// Verse count unknown: step within the chapter rather than skip it.
		return &target{pos: cur.pos.WithVerse(cur.pos.Verse + 1)}, nil
	}
	if i := indexOf(cur.verses, cur.pos.Verse); i >= 0 && i+1 < len(cur.verses) {
		return &target{pos: cur.pos.WithVerse(cur.verses[i+1].VerseNumber), chapter: reloaded}, nil
	}

	if cur.pos.Chapter < cur.book.ChapterCount {
		pos := cur.pos
		pos.Chapter++
		pos.Verse = 1
		return &target{pos: pos, chapter: &chapter{book: cur.book, verses: c.fetchVerses(ctx, pos)}}, nil
	}

	if !c.crossBooks {
		return nil, nil
	}
	next, ok := c.adjacentBook(ctx, cur.book.Abbreviation, 1)
	if !ok {
		return nil, nil
	}
	pos := models.Position{Source: cur.pos.Source, Book: next.Abbreviation, Chapter: 1, Verse: 1}
	return &target{pos: pos, chapter: &chapter{book: next, verses: c.fetchVerses(ctx, pos)}}, nil
}

func (c *Controller) planPrevious(ctx context.Context, cur view) (*target, error) {
	reloaded, ok := c.reloadChapter(ctx, &cur)
	if !ok && cur.pos.Verse > 1 {
		return &target{pos: cur.pos.WithVerse(cur.pos.Verse - 1)}, nil
	}
	if i := indexOf(cur.verses, cur.pos.Verse); i > 0 {
		return &target{pos: cur.pos.WithVerse(cur.verses[i-1].VerseNumber), chapter: reloaded}, nil
	}

	book := cur.book
	pos := cur.pos
	switch {
	case cur.pos.Chapter > 1:
		pos.Chapter--
	case c.crossBooks:
		prev, ok := c.adjacentBook(ctx, cur.book.Abbreviation, -1)
		if !ok {
			return nil, nil
		}
		book = prev
		pos = models.Position{Source: cur.pos.Source, Book: prev.Abbreviation, Chapter: max(1, prev.ChapterCount)}
	default:
		return nil, nil
	}

	// Land on the last verse; without the verse list, fall back to verse 1.
	verses := c.fetchVerses(ctx, pos)
	pos.Verse = 1
	if n := len(verses); n > 0 {
		pos.Verse = verses[n-1].VerseNumber
	}
	return &target{pos: pos, chapter: &chapter{book: book, verses: verses}}, nil
}

// planJump resolves an arbitrary position. The current chapter's data is
// reused unless refetch is set or the chapter differs.
func (c *Controller) planJump(ctx context.Context, pos models.Position, refetch bool) (*target, error) {
	if pos.Source == "" {
		pos.Source = models.DefaultSource
	}
	if err := pos.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	cur := view{pos: c.pos, book: c.book, verses: c.verses}
	c.mu.Unlock()

	if !refetch && cur.book.Abbreviation == pos.Book && cur.pos.Chapter == pos.Chapter {
		if len(cur.verses) > 0 && indexOf(cur.verses, pos.Verse) < 0 {
			return nil, fmt.Errorf("verse %s not found", pos.Ref())
		}
		return &target{pos: pos}, nil
	}

	book := cur.book
	if refetch || book.Abbreviation != pos.Book {
		b, err := c.catalog.GetBook(ctx, pos.Book)
		if err != nil {
			return nil, fmt.Errorf("failed to load book %s: %w", pos.Book, err)
		}
		book = *b
	}
	if book.ChapterCount > 0 && pos.Chapter > book.ChapterCount {
		return nil, fmt.Errorf("%s has %d chapters, got %d", book.Abbreviation, book.ChapterCount, pos.Chapter)
	}

	verses, err := c.catalog.GetVerses(ctx, pos.Book, pos.Chapter)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %d: %w", pos.Book, pos.Chapter, err)
	}
	if len(verses) > 0 && indexOf(verses, pos.Verse) < 0 {
		return nil, fmt.Errorf("verse %s not found", pos.Ref())
	}

	c.logger.Info().Str("ref", pos.Ref()).Int("verses", len(verses)).Msg("Chapter loaded")
	return &target{pos: pos, chapter: &chapter{book: book, verses: verses}}, nil
}

// reloadChapter retries the current chapter's verse list when an earlier
// fetch failed. It returns the chapter to install with the move, and false
// when the list is still unknown.
func (c *Controller) reloadChapter(ctx context.Context, cur *view) (*chapter, bool) {
	if len(cur.verses) > 0 {
		return nil, true
	}
	verses := c.fetchVerses(ctx, cur.pos)
	if len(verses) == 0 {
		return nil, false
	}
	cur.verses = verses
	return &chapter{book: cur.book, verses: verses}, true
}

// fetchVerses returns nil on failure; the move still happens.
func (c *Controller) fetchVerses(ctx context.Context, pos models.Position) []models.Verse {
	verses, err := c.catalog.GetVerses(ctx, pos.Book, pos.Chapter)
	if err != nil {
		c.logger.Warn().Err(err).Str("book", pos.Book).Int("chapter", pos.Chapter).Msg("Failed to fetch chapter verses")
		return nil
	}
	return verses
}

// adjacentBook returns the book step places away from abbr in catalog order.
func (c *Controller) adjacentBook(ctx context.Context, abbr string, step int) (models.Book, bool) {
	c.mu.Lock()
	books := c.books
	c.mu.Unlock()

	if books == nil {
		fetched, err := c.catalog.ListBooks(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to list books")
			return models.Book{}, false
		}
		books = fetched
		c.mu.Lock()
		c.books = fetched
		c.mu.Unlock()
	}

	for i, b := range books {
		if b.Abbreviation != abbr {
			continue
		}
		j := i + step
		if j < 0 || j >= len(books) {
			return models.Book{}, false
		}
		return books[j], true
	}
	return models.Book{}, false
}

func indexOf(verses []models.Verse, number int) int {
	for i, v := range verses {
		if v.VerseNumber == number {
			return i
		}
	}
	return -1
}
