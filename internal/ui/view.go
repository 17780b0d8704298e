// Package ui is the terminal screen: a thin tview layout over app.Reader.
package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/bobmcallan/lectio/internal/app"
	"github.com/bobmcallan/lectio/internal/services/keyboard"
)

// View owns the tview application and its widgets.
type View struct {
	app        *app.App
	tui        *tview.Application
	dispatcher *keyboard.Dispatcher

	header      *tview.TextView
	verse       *tview.TextView
	word        *tview.TextView
	grammar     *tview.TextView
	translation *tview.TextView
	layers      *tview.TextView
	status      *tview.TextView
	picker      *tview.InputField

	mu        sync.Mutex
	audioRef  string
	audioOK   bool
	pickerErr string
}

// New builds the screen for a and installs the keyboard dispatcher.
func New(a *app.App) *View {
	v := &View{
		app: a,
		tui: tview.NewApplication(),
	}

	v.header = tview.NewTextView().SetDynamicColors(true)
	v.header.SetBackgroundColor(tcell.ColorLightGray)
	v.header.SetTextColor(tcell.ColorBlack)

	v.verse = newPanel("Verse")
	v.word = newPanel("Word")
	v.grammar = newPanel("Grammar")
	v.translation = newPanel("Translation")
	v.layers = newPanel("Commentary")
	v.layers.SetScrollable(true)

	v.status = tview.NewTextView().SetDynamicColors(true)
	help := tview.NewTextView().SetText(helpText).SetTextColor(tcell.ColorBlack)
	help.SetBackgroundColor(tcell.ColorLightGray)

	v.picker = tview.NewInputField().SetLabel("Go to: ").SetFieldWidth(16).SetPlaceholder("Ex 3:14")
	v.picker.SetDoneFunc(v.onPickerDone)

	v.dispatcher = keyboard.NewDispatcher(a.Reader, a.Logger,
		keyboard.WithInputFocused(func() bool { return v.tui.GetFocus() == v.picker }),
		keyboard.WithTransitioning(func() bool { return a.Navigation.State().Busy() }),
	)
	v.tui.SetInputCapture(v.handleKey)

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(v.verse, 0, 2, false).
		AddItem(v.translation, 0, 1, false).
		AddItem(v.layers, 0, 2, false)
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(v.word, 0, 1, false).
		AddItem(v.grammar, 0, 1, false)
	body := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(left, 0, 2, false).
		AddItem(right, 0, 1, false)
	footer := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(v.status, 0, 1, false).
		AddItem(v.picker, 26, 0, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(v.header, 1, 0, false).
		AddItem(body, 0, 1, false).
		AddItem(footer, 1, 0, false).
		AddItem(help, 1, 0, false)
	v.tui.SetRoot(root, true).SetFocus(v.verse)

	a.Reader.OnChange(func() {
		go v.tui.QueueUpdateDraw(v.render)
	})
	return v
}

func newPanel(title string) *tview.TextView {
	tv := tview.NewTextView().SetDynamicColors(true).SetWrap(true).SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" " + title + " ")
	return tv
}

// Run draws the screen and blocks until the reader quits.
func (v *View) Run() error {
	v.render()
	return v.tui.Run()
}

// Stop ends Run from any goroutine.
func (v *View) Stop() {
	v.tui.Stop()
}

// handleKey is the global input capture. Reader chords go to the dispatcher
// first; the view only keeps quit and the picker shortcut.
func (v *View) handleKey(event *tcell.EventKey) *tcell.EventKey {
	event = v.dispatcher.HandleEvent(event)
	if event == nil || v.tui.GetFocus() == v.picker {
		return event
	}

	switch {
	case event.Key() == tcell.KeyEsc, event.Key() == tcell.KeyCtrlC:
		v.tui.Stop()
		return nil
	case event.Key() == tcell.KeyRune && event.Rune() == '/':
		v.tui.SetFocus(v.picker)
		return nil
	}
	return event
}

func (v *View) onPickerDone(key tcell.Key) {
	defer v.tui.SetFocus(v.verse)
	if key != tcell.KeyEnter {
		v.picker.SetText("")
		return
	}

	ref := strings.TrimSpace(v.picker.GetText())
	v.picker.SetText("")
	err := v.app.Reader.GoToReference(ref)

	v.mu.Lock()
	v.pickerErr = ""
	if err != nil {
		v.pickerErr = err.Error()
	}
	v.mu.Unlock()
	v.render()
}

// render repaints every widget from current state. It runs on the UI goroutine.
func (v *View) render() {
	reader := v.app.Reader
	nav := v.app.Navigation
	pos := nav.Position()
	snap := v.app.Analysis.Snapshot()
	if snap != nil && !snap.Position.SameVerse(pos) {
		snap = nil
	}

	book := nav.Book()
	title := book.Name
	if book.LatinName != "" {
		title = book.LatinName
	}
	v.header.SetText(fmt.Sprintf(" lectio  %s  [::b]%s[::-]  %s", tview.Escape(title), pos.Ref(), pos.Path()))

	selectedKey, playingKey := "", ""
	entry, info, hasEntry := reader.SelectedEntry()
	if hasEntry {
		selectedKey = entry.Key
	}
	playback := v.app.Audio.State()
	if playback.Playing && snap != nil && playback.WordIndex >= 0 && playback.WordIndex < len(snap.Grammar) {
		playingKey = snap.Grammar[playback.WordIndex].Key
	}

	if verse, ok := nav.CurrentVerse(); ok {
		v.verse.SetText(verseMarkup(verse.DisplayText(), selectedKey, playingKey))
	} else {
		v.verse.SetText("[red]Verse text unavailable[-]")
	}

	if hasEntry && snap != nil {
		v.word.SetText(wordMarkup(entry, info, reader.SelectedWord(), len(snap.Grammar)))
		v.grammar.SetText(grammarMarkup(snap.Grammar, reader.SelectedWord()))
	} else {
		v.word.SetText("")
		v.grammar.SetText("")
	}

	lang, text := reader.Translation()
	v.translation.SetTitle(" Translation " + langLabel(lang, reader.Languages()) + " ")
	v.translation.SetText(tview.Escape(text))
	v.layers.SetText(layersMarkup(snap))

	status := statusMarkup(v.app.Analysis.Status(), playback, v.app.Recording.State(), v.audioAvailable(pos.Ref()))
	v.mu.Lock()
	if v.pickerErr != "" {
		status = "[red]" + tview.Escape(v.pickerErr) + "[-]  " + status
	}
	v.mu.Unlock()
	v.status.SetText(status)
}

func langLabel(lang string, all []string) string {
	if lang == "" {
		return ""
	}
	return fmt.Sprintf("(%s, %d available)", lang, len(all))
}

// audioAvailable answers from the last check and starts a new one in the
// background when the verse changed.
func (v *View) audioAvailable(ref string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.audioRef == ref {
		return v.audioOK
	}
	v.audioRef, v.audioOK = ref, false

	pos := v.app.Navigation.Position()
	go func() {
		ok := v.app.Audio.Available(context.Background(), pos)
		v.mu.Lock()
		changed := v.audioRef == ref && ok != v.audioOK
		if changed {
			v.audioOK = ok
		}
		v.mu.Unlock()
		if changed {
			v.tui.QueueUpdateDraw(v.render)
		}
	}()
	return false
}
