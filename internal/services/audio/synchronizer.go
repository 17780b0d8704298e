// Package audio plays recorded verse audio and keeps the highlighted word
// in step with it.
package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/interfaces"
	"github.com/bobmcallan/lectio/internal/models"
)

// ErrAudioUnavailable marks a verse with no playable clip.
var ErrAudioUnavailable = errors.New("audio unavailable")

// Ticker is the part of time.Ticker the synchronizer uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// session is one playback and its highlight ticker.
type session struct {
	ref      string
	playback Playback
	ticker   Ticker
	words    int
	stop     chan struct{}
}

// Synchronizer owns the single system-wide playback.
type Synchronizer struct {
	client    interfaces.AudioClient
	player    Player
	logger    *common.Logger
	newTicker func(d time.Duration) Ticker // injectable for testing

	mu        sync.Mutex
	gen       uint64 // bumped by every Play and Stop
	state     models.PlaybackState
	current   *session
	available map[string]bool
	observers []func()
}

// NewSynchronizer creates a synchronizer that plays clips through player.
func NewSynchronizer(client interfaces.AudioClient, player Player, logger *common.Logger) *Synchronizer {
	return &Synchronizer{
		client:    client,
		player:    player,
		logger:    logger,
		newTicker: func(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} },
		state:     models.PlaybackState{WordIndex: -1},
		available: make(map[string]bool),
	}
}

// State returns the playback state.
func (s *Synchronizer) State() models.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnChange registers fn to run after every state change.
func (s *Synchronizer) OnChange(fn func()) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Synchronizer) notify() {
	s.mu.Lock()
	observers := append([]func(){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

// Available reports whether pos has a clip. Answers are cached per verse;
// a lookup error is treated as unavailable and not cached.
func (s *Synchronizer) Available(ctx context.Context, pos models.Position) bool {
	ref := pos.Ref()
	s.mu.Lock()
	ok, known := s.available[ref]
	s.mu.Unlock()
	if known {
		return ok
	}

	ok, err := s.client.AudioExists(ctx, pos)
	if err != nil {
		s.logger.Warn().Err(err).Str("ref", ref).Msg("Audio availability check failed")
		return false
	}
	s.mu.Lock()
	s.available[ref] = ok
	s.mu.Unlock()
	return ok
}

// Invalidate forgets the cached availability of ref, e.g. after an upload.
func (s *Synchronizer) Invalidate(ref string) {
	s.mu.Lock()
	delete(s.available, ref)
	s.mu.Unlock()
}

// Toggle stops a running clip, or plays pos when idle.
func (s *Synchronizer) Toggle(ctx context.Context, pos models.Position, words int) {
	if s.State().Playing {
		s.Stop()
		return
	}
	s.Play(ctx, pos, words)
}

// Play fetches and plays the clip for pos, advancing the highlighted word
// every duration/words. Failures are reported through State only. A Stop or
// another Play issued while the clip is being fetched cancels this one.
func (s *Synchronizer) Play(ctx context.Context, pos models.Position, words int) {
	ref := pos.Ref()
	gen := s.interrupt()

	data, err := s.client.GetAudio(ctx, pos)
	if err != nil {
		s.fail(gen, ref, err)
		return
	}
	clip, err := Decode(data)
	if err != nil {
		s.fail(gen, ref, err)
		return
	}

	n := max(1, words)
	interval := clip.Duration / time.Duration(n)
	if interval <= 0 {
		s.fail(gen, ref, ErrAudioUnavailable)
		return
	}

	if !s.live(gen) {
		s.logger.Debug().Str("ref", ref).Msg("Audio playback cancelled before start")
		return
	}
	pb, err := s.player.Start(ctx, clip)
	if err != nil {
		s.fail(gen, ref, err)
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		pb.Stop()
		s.logger.Debug().Str("ref", ref).Msg("Audio playback cancelled before start")
		return
	}
	sess := &session{
		ref:      ref,
		playback: pb,
		ticker:   s.newTicker(interval),
		words:    n,
		stop:     make(chan struct{}),
	}
	s.current = sess
	s.state = models.PlaybackState{Playing: true, WordIndex: 0}
	s.available[ref] = true
	s.mu.Unlock()

	s.logger.Info().
		Str("ref", ref).
		Str("format", string(clip.Format)).
		Dur("duration", clip.Duration).
		Dur("interval", interval).
		Msg("Audio playback started")
	s.notify()

	go s.run(sess)
}

// Stop ends the current playback and clears the highlight.
func (s *Synchronizer) Stop() {
	s.interrupt()
}

// interrupt halts the current session, cancels any Play still fetching and
// returns the new generation.
func (s *Synchronizer) interrupt() uint64 {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	sess := s.current
	s.current = nil
	changed := s.state.Playing || s.state.WordIndex != -1
	s.state.Playing = false
	s.state.WordIndex = -1
	s.mu.Unlock()

	if sess != nil {
		sess.halt()
	}
	if changed {
		s.notify()
	}
	return gen
}

func (s *Synchronizer) live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (sess *session) halt() {
	close(sess.stop)
	sess.ticker.Stop()
	sess.playback.Stop()
}

// fail records ref as unavailable. The state only changes when no Stop or
// Play has superseded the attempt.
func (s *Synchronizer) fail(gen uint64, ref string, err error) {
	s.logger.Warn().Err(err).Str("ref", ref).Msg("Audio unavailable")
	s.mu.Lock()
	s.available[ref] = false
	current := s.gen == gen
	if current {
		s.state = models.PlaybackState{WordIndex: -1, Unavailable: true}
	}
	s.mu.Unlock()
	if current {
		s.notify()
	}
}

// run advances the highlight on each tick until the last word has had its
// interval, and clears everything when playback ends.
func (s *Synchronizer) run(sess *session) {
	tick := sess.ticker.C()
	for {
		select {
		case <-sess.stop:
			return

		case <-tick:
			s.mu.Lock()
			if s.current != sess {
				s.mu.Unlock()
				return
			}
			next := s.state.WordIndex + 1
			if next >= sess.words {
				sess.ticker.Stop()
				tick = nil
				s.state.WordIndex = -1
			} else {
				s.state.WordIndex = next
			}
			s.mu.Unlock()
			s.notify()

		case <-sess.playback.Done():
			sess.ticker.Stop()
			s.mu.Lock()
			if s.current != sess {
				s.mu.Unlock()
				return
			}
			s.current = nil
			s.state.Playing = false
			s.state.WordIndex = -1
			s.mu.Unlock()
			s.logger.Debug().Str("ref", sess.ref).Msg("Audio playback finished")
			s.notify()
			return
		}
	}
}
