package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/bobmcallan/lectio/internal/models"
	"github.com/bobmcallan/lectio/internal/wordkey"
)

// Highlight colours for the verse line.
const (
	selectedTag = "[black:yellow]"
	playingTag  = "[black:green]"
	resetTag    = "[-:-]"
)

// verseMarkup renders the display text with the selected word and the word
// under the audio cursor highlighted. Words are matched by WordKey, so every
// occurrence of a repeated word lights up.
func verseMarkup(text, selectedKey, playingKey string) string {
	tokens := wordkey.Tokens(text)
	if len(tokens) == 0 {
		return tview.Escape(text)
	}

	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		word := tview.Escape(tok.Text)
		switch {
		case playingKey != "" && tok.Key == playingKey:
			word = playingTag + word + resetTag
		case selectedKey != "" && tok.Key == selectedKey:
			word = selectedTag + word + resetTag
		}
		parts = append(parts, word)
	}
	return strings.Join(parts, " ")
}

// wordMarkup renders the dictionary panel for one grammar entry.
func wordMarkup(entry models.GrammarEntry, info models.WordInfo, index, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]%s[::-]  [gray](%d/%d)[-]\n", tview.Escape(entry.Word), index+1, total)
	if entry.PartOfSpeech != "" {
		fmt.Fprintf(&b, "[gray]%s[-]", tview.Escape(entry.PartOfSpeech))
		if entry.Morphology != "" {
			fmt.Fprintf(&b, " [gray]· %s[-]", tview.Escape(entry.Morphology))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if entry.Meaning != "" {
		b.WriteString(tview.Escape(entry.Meaning) + "\n")
	}
	if info.Definition != "" && info.Definition != entry.Meaning {
		b.WriteString(tview.Escape(info.Definition) + "\n")
	}
	if info.Etymology != "" {
		fmt.Fprintf(&b, "\n[::i]Etymology[::-] %s\n", tview.Escape(info.Etymology))
	}
	if info.Pronunciation != "" {
		fmt.Fprintf(&b, "[::i]Pronunciation[::-] %s\n", tview.Escape(info.Pronunciation))
	}
	if !info.Found {
		b.WriteString("\n[red]not in dictionary[-]\n")
	}
	return b.String()
}

// grammarMarkup lists every token with its meaning, marking the selection.
func grammarMarkup(grammar []models.GrammarEntry, selected int) string {
	var b strings.Builder
	for i, g := range grammar {
		marker := "  "
		if i == selected {
			marker = "[yellow]>[-] "
		}
		fmt.Fprintf(&b, "%s%-16s [gray]%s[-]\n", marker, tview.Escape(g.Word), tview.Escape(g.Meaning))
	}
	return b.String()
}

// layersMarkup renders the three commentary layers, skipping empty ones.
func layersMarkup(snap *models.AnalysisSnapshot) string {
	if snap == nil {
		return ""
	}
	sections := []struct {
		title string
		layer models.Layer
	}{
		{"Theological", snap.Theological},
		{"Symbolic", snap.Symbolic},
		{"Cosmological", snap.Cosmological},
	}

	var b strings.Builder
	for _, s := range sections {
		if len(s.layer) == 0 {
			continue
		}
		fmt.Fprintf(&b, "[::b]%s[::-]\n", s.title)
		for _, p := range s.layer {
			b.WriteString(tview.Escape(p) + "\n\n")
		}
	}
	return b.String()
}

// statusMarkup is the footer: analysis status first, then audio and recording.
func statusMarkup(status models.AnalysisStatus, playback models.PlaybackState, rec models.RecordingState, audioAvailable bool) string {
	var parts []string

	switch status.State {
	case models.AnalysisLoading:
		parts = append(parts, "[yellow]Analysing…[-]")
	case models.AnalysisRetrying:
		parts = append(parts, "[yellow]"+tview.Escape(status.Message)+"[-]")
	case models.AnalysisError:
		parts = append(parts, "[red]"+tview.Escape(status.Message)+"[-]")
	}

	switch {
	case playback.Playing:
		parts = append(parts, "[green]♪ playing[-]")
	case playback.Unavailable:
		parts = append(parts, "[gray]no audio[-]")
	case audioAvailable:
		parts = append(parts, "♪ P to play")
	}

	if rec.Recording {
		parts = append(parts, "[red]● "+tview.Escape(rec.Message)+"[-]")
	} else if rec.Message != "" {
		parts = append(parts, tview.Escape(rec.Message))
	}

	return strings.Join(parts, "  |  ")
}

const helpText = "Alt+←/→ verse  Shift+←/→ language  </> word  P audio  R record  G enhance  / go to  Esc quit"
