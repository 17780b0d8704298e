// Package keyboard maps global key chords to reader commands.
package keyboard

import (
	"unicode"

	"github.com/gdamore/tcell/v2"

	"github.com/bobmcallan/lectio/internal/common"
)

// Actions are the commands a key chord can trigger. Implementations must
// not block: the dispatcher runs on the UI event loop.
type Actions interface {
	PreviousVerse()
	NextVerse()
	// CycleLanguage moves the selected translation by step (-1 or +1).
	CycleLanguage(step int)
	// StepWord moves the selected word by step, wrapping at both ends.
	StepWord(step int)
	ToggleAudio()
	ToggleRecording()
	Enhance()
}

// Dispatcher is installed as the application's input capture.
type Dispatcher struct {
	actions       Actions
	inputFocused  func() bool
	transitioning func() bool
	logger        *common.Logger
}

// Option configures the dispatcher
type Option func(*Dispatcher)

// WithInputFocused sets the check for a focused text input
func WithInputFocused(fn func() bool) Option {
	return func(d *Dispatcher) {
		d.inputFocused = fn
	}
}

// WithTransitioning sets the check for a navigation in flight
func WithTransitioning(fn func() bool) Option {
	return func(d *Dispatcher) {
		d.transitioning = fn
	}
}

// NewDispatcher creates a dispatcher for actions.
func NewDispatcher(actions Actions, logger *common.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		actions:       actions,
		inputFocused:  func() bool { return false },
		transitioning: func() bool { return false },
		logger:        logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleEvent consumes mapped chords (returning nil) and passes everything
// else through unchanged. Plain arrows are left to the focused widget.
func (d *Dispatcher) HandleEvent(event *tcell.EventKey) *tcell.EventKey {
	if event == nil || d.inputFocused() || d.transitioning() {
		return event
	}

	action := d.match(event)
	if action == nil {
		return event
	}
	d.logger.Debug().Str("key", event.Name()).Msg("Key command")
	action()
	return nil
}

func (d *Dispatcher) match(event *tcell.EventKey) func() {
	mod := event.Modifiers()

	switch event.Key() {
	case tcell.KeyLeft:
		switch {
		case mod&tcell.ModAlt != 0:
			return d.actions.PreviousVerse
		case mod&tcell.ModShift != 0:
			return func() { d.actions.CycleLanguage(-1) }
		}
		return nil

	case tcell.KeyRight:
		switch {
		case mod&tcell.ModAlt != 0:
			return d.actions.NextVerse
		case mod&tcell.ModShift != 0:
			return func() { d.actions.CycleLanguage(1) }
		}
		return nil

	case tcell.KeyRune:
		if mod&(tcell.ModAlt|tcell.ModCtrl) != 0 {
			return nil
		}
		return d.matchRune(event.Rune(), mod&tcell.ModShift != 0)
	}
	return nil
}

// matchRune handles terminals that report Shift+, as '<' and those that
// report it as ',' with the shift modifier.
func (d *Dispatcher) matchRune(r rune, shift bool) func() {
	switch unicode.ToLower(r) {
	case '<':
		return func() { d.actions.StepWord(-1) }
	case '>':
		return func() { d.actions.StepWord(1) }
	case ',':
		if shift {
			return func() { d.actions.StepWord(-1) }
		}
	case '.':
		if shift {
			return func() { d.actions.StepWord(1) }
		}
	case 'p':
		return d.actions.ToggleAudio
	case 'r':
		return d.actions.ToggleRecording
	case 'g':
		return d.actions.Enhance
	}
	return nil
}
