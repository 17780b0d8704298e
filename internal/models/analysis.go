package models

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bobmcallan/lectio/internal/wordkey"
)

// AnalysisResponse is the raw body of POST /dictionary/analyze/verse.
// It is cached verbatim, so snapshots can always be rebuilt from it offline.
type AnalysisResponse struct {
	Analysis     json.RawMessage `json:"analysis,omitempty"`
	FullAnalysis FullAnalysis    `json:"full_analysis"`
}

// FullAnalysis carries the per-word breakdown, translations and commentary layers.
type FullAnalysis struct {
	WordAnalysis      []WordAnalysisItem `json:"word_analysis"`
	Translations      map[string]string  `json:"translations,omitempty"`
	TheologicalLayer  Layer              `json:"theological_layer,omitempty"`
	SymbolicLayer     Layer              `json:"symbolic_layer,omitempty"`
	CosmologicalLayer Layer              `json:"cosmological_layer,omitempty"`
}

// WordAnalysisItem is one token of the server's word_analysis array.
type WordAnalysisItem struct {
	Latin         string   `json:"latin"`
	Meaning       string   `json:"meaning,omitempty"`
	Definition    string   `json:"definition,omitempty"`
	Etymology     string   `json:"etymology,omitempty"`
	PartOfSpeech  string   `json:"part_of_speech,omitempty"`
	Morphology    string   `json:"morphology,omitempty"`
	Pronunciation string   `json:"pronunciation,omitempty"`
	Source        string   `json:"source,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	Found         *bool    `json:"found,omitempty"`
}

// Layer is an ordered list of commentary paragraphs. The service has sent
// both a bare string and a list for the same field, so both decode.
type Layer []string

// UnmarshalJSON accepts null, a string, or an array whose non-string
// elements are kept as compact JSON.
func (l *Layer) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*l = nil
		} else {
			*l = Layer{s}
		}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("cannot unmarshal %s into layer", string(data))
	}
	out := make(Layer, 0, len(raw))
	for _, item := range raw {
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			out = append(out, str)
			continue
		}
		out = append(out, string(item))
	}
	*l = out
	return nil
}

// WordInfo is the dictionary record for one distinct WordKey in the verse.
type WordInfo struct {
	Latin         string
	Definition    string
	Etymology     string
	PartOfSpeech  string
	Morphology    string
	Pronunciation string
	Source        string
	Confidence    *float64
	Found         bool
}

// GrammarEntry is one token position in reading order.
type GrammarEntry struct {
	Word         string
	Key          string
	Meaning      string
	PartOfSpeech string
	Morphology   string
	Definition   string
}

// Provenance records where a live snapshot came from.
type Provenance string

const (
	ProvenanceNone    Provenance = ""
	ProvenanceCache   Provenance = "cache"
	ProvenanceNetwork Provenance = "network"
)

// AnalysisSnapshot is everything known about the verse on screen.
type AnalysisSnapshot struct {
	Position     Position
	Ref          string
	Analysis     map[string]WordInfo
	Grammar      []GrammarEntry
	Translations map[string]string
	Theological  Layer
	Symbolic     Layer
	Cosmological Layer
	Done         bool
	Provenance   Provenance
}

// PendingSnapshot is the placeholder shown while a verse is being resolved.
func PendingSnapshot(pos Position) *AnalysisSnapshot {
	return &AnalysisSnapshot{
		Position:     pos,
		Ref:          pos.Ref(),
		Analysis:     map[string]WordInfo{},
		Translations: map[string]string{},
	}
}

// BuildSnapshot derives a snapshot purely from a raw response; no I/O.
// When several tokens share a key the first occurrence defines the WordInfo.
func BuildSnapshot(pos Position, raw *AnalysisResponse, provenance Provenance) *AnalysisSnapshot {
	snap := PendingSnapshot(pos)
	snap.Provenance = provenance
	if raw == nil {
		return snap
	}

	full := raw.FullAnalysis
	snap.Grammar = make([]GrammarEntry, 0, len(full.WordAnalysis))
	for _, item := range full.WordAnalysis {
		key := wordkey.Normalize(item.Latin)

		meaning := item.Meaning
		if meaning == "" {
			meaning = item.Definition
		}
		snap.Grammar = append(snap.Grammar, GrammarEntry{
			Word:         item.Latin,
			Key:          key,
			Meaning:      meaning,
			PartOfSpeech: item.PartOfSpeech,
			Morphology:   item.Morphology,
			Definition:   item.Definition,
		})

		if key == "" {
			continue
		}
		if _, seen := snap.Analysis[key]; seen {
			continue
		}
		found := true
		if item.Found != nil {
			found = *item.Found
		}
		snap.Analysis[key] = WordInfo{
			Latin:         item.Latin,
			Definition:    item.Definition,
			Etymology:     item.Etymology,
			PartOfSpeech:  item.PartOfSpeech,
			Morphology:    item.Morphology,
			Pronunciation: item.Pronunciation,
			Source:        item.Source,
			Confidence:    item.Confidence,
			Found:         found,
		}
	}

	for lang, text := range full.Translations {
		if text != "" {
			snap.Translations[lang] = text
		}
	}
	snap.Theological = append(Layer(nil), full.TheologicalLayer...)
	snap.Symbolic = append(Layer(nil), full.SymbolicLayer...)
	snap.Cosmological = append(Layer(nil), full.CosmologicalLayer...)
	snap.Done = true
	return snap
}

// Clone returns a deep copy safe to hand to readers outside the owner's lock.
func (s *AnalysisSnapshot) Clone() *AnalysisSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Analysis = make(map[string]WordInfo, len(s.Analysis))
	for k, v := range s.Analysis {
		c.Analysis[k] = v
	}
	c.Translations = make(map[string]string, len(s.Translations))
	for k, v := range s.Translations {
		c.Translations[k] = v
	}
	c.Grammar = append([]GrammarEntry(nil), s.Grammar...)
	c.Theological = append(Layer(nil), s.Theological...)
	c.Symbolic = append(Layer(nil), s.Symbolic...)
	c.Cosmological = append(Layer(nil), s.Cosmological...)
	return &c
}

// Languages returns the languages that currently have a translation, sorted.
func (s *AnalysisSnapshot) Languages() []string {
	if s == nil {
		return nil
	}
	langs := make([]string, 0, len(s.Translations))
	for lang, text := range s.Translations {
		if text != "" {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return langs
}

// MissingLanguages returns the entries of required with no translation yet.
func (s *AnalysisSnapshot) MissingLanguages(required []string) []string {
	var missing []string
	for _, lang := range required {
		if s == nil || s.Translations[lang] == "" {
			missing = append(missing, lang)
		}
	}
	return missing
}

// Entries returns the grammar in reading order; nil for a nil snapshot.
func (s *AnalysisSnapshot) Entries() []GrammarEntry {
	if s == nil {
		return nil
	}
	return s.Grammar
}

// Lookup returns the WordInfo for a grammar entry's key.
func (s *AnalysisSnapshot) Lookup(key string) (WordInfo, bool) {
	if s == nil {
		return WordInfo{}, false
	}
	info, ok := s.Analysis[key]
	return info, ok
}
