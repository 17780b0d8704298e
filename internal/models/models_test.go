package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation_Defaults(t *testing.T) {
	for _, in := range []string{"", "/", "  //  "} {
		pos, err := ParseLocation(in)
		require.NoError(t, err)
		assert.Equal(t, DefaultPosition(), pos, "input %q", in)
	}
}

func TestParseLocation_RoundTrip(t *testing.T) {
	p := Position{Source: DefaultSource, Book: "Ex", Chapter: 20, Verse: 3}
	got, err := ParseLocation(p.Path())
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, "/Ex/20/3", p.Path())
	assert.Equal(t, "Ex 20:3", p.Ref())
}

func TestParseLocation_Errors(t *testing.T) {
	for _, in := range []string{"/Gn", "/Gn/1", "/Gn/x/1", "/Gn/1/y", "/Gn/0/1", "/Gn/1/0", "/a/b/c/d"} {
		_, err := ParseLocation(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseReference(t *testing.T) {
	pos, err := ParseReference("Jn 3:16")
	require.NoError(t, err)
	assert.Equal(t, "Jn", pos.Book)
	assert.Equal(t, 3, pos.Chapter)
	assert.Equal(t, 16, pos.Verse)

	_, err = ParseReference("Jn316")
	assert.Error(t, err)
	_, err = ParseReference("Jn 3")
	assert.Error(t, err)
}

func TestVerse_DisplayText(t *testing.T) {
	assert.Equal(t, "In principio", Verse{Text: "In principio"}.DisplayText())
	assert.Equal(t, "In prīncipiō", Verse{Text: "In principio", MacronizedText: "In prīncipiō"}.DisplayText())
}

func TestLayer_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Layer
	}{
		{"null", `null`, nil},
		{"empty string", `""`, nil},
		{"string", `"Creation ex nihilo"`, Layer{"Creation ex nihilo"}},
		{"list", `["a","b"]`, Layer{"a", "b"}},
		{"mixed", `["a",{"k":1}]`, Layer{"a", `{"k":1}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l Layer
			require.NoError(t, json.Unmarshal([]byte(tt.in), &l))
			assert.Equal(t, tt.want, l)
		})
	}

	var l Layer
	assert.Error(t, json.Unmarshal([]byte(`42`), &l))
}

const genesisResponse = `{
  "analysis": {"summary": "ok"},
  "full_analysis": {
    "word_analysis": [
      {"latin": "In", "definition": "in, on", "part_of_speech": "preposition"},
      {"latin": "prīncipiō", "meaning": "beginning", "definition": "a beginning, origin", "part_of_speech": "noun", "morphology": "abl. sg.", "confidence": 0.9},
      {"latin": "creāvit", "definition": "created", "part_of_speech": "verb", "found": false},
      {"latin": "in", "definition": "into", "part_of_speech": "preposition"},
      {"latin": "—", "definition": ""}
    ],
    "translations": {"en": "In the beginning God created", "es": ""},
    "theological_layer": "Creation",
    "symbolic_layer": ["light", "order"]
  }
}`

func TestBuildSnapshot(t *testing.T) {
	var raw AnalysisResponse
	require.NoError(t, json.Unmarshal([]byte(genesisResponse), &raw))

	pos := DefaultPosition()
	snap := BuildSnapshot(pos, &raw, ProvenanceNetwork)

	assert.True(t, snap.Done)
	assert.Equal(t, "Gn 1:1", snap.Ref)
	assert.Equal(t, ProvenanceNetwork, snap.Provenance)

	require.Len(t, snap.Grammar, len(raw.FullAnalysis.WordAnalysis))
	assert.Equal(t, "In", snap.Grammar[0].Word)
	assert.Equal(t, "in", snap.Grammar[0].Key)
	assert.Equal(t, "beginning", snap.Grammar[1].Meaning)
	assert.Equal(t, "created", snap.Grammar[2].Meaning, "meaning falls back to definition")

	info, ok := snap.Lookup("in")
	require.True(t, ok)
	assert.Equal(t, "in, on", info.Definition, "first occurrence wins")
	assert.True(t, info.Found, "found defaults to true when absent")

	info, ok = snap.Lookup("creavit")
	require.True(t, ok)
	assert.False(t, info.Found)

	info, ok = snap.Lookup("principio")
	require.True(t, ok)
	require.NotNil(t, info.Confidence)
	assert.InDelta(t, 0.9, *info.Confidence, 1e-9)

	assert.Len(t, snap.Analysis, 3, "punctuation-only tokens are not keyed")
	assert.Equal(t, []string{"en"}, snap.Languages())
	assert.Equal(t, Layer{"Creation"}, snap.Theological)
	assert.Equal(t, Layer{"light", "order"}, snap.Symbolic)
	assert.Empty(t, snap.Cosmological)
}

func TestBuildSnapshot_NilRaw(t *testing.T) {
	snap := BuildSnapshot(DefaultPosition(), nil, ProvenanceCache)
	assert.False(t, snap.Done)
	assert.Empty(t, snap.Grammar)
}

func TestSnapshot_CloneIsDeep(t *testing.T) {
	snap := PendingSnapshot(DefaultPosition())
	snap.Translations["en"] = "x"
	snap.Grammar = []GrammarEntry{{Word: "In"}}

	c := snap.Clone()
	c.Translations["de"] = "y"
	c.Grammar[0].Word = "Ex"

	assert.NotContains(t, snap.Translations, "de")
	assert.Equal(t, "In", snap.Grammar[0].Word)
}

func TestSnapshot_MissingLanguages(t *testing.T) {
	snap := PendingSnapshot(DefaultPosition())
	snap.Translations["en"] = "x"
	snap.Translations["fr"] = ""
	assert.Equal(t, []string{"fr", "de"}, snap.MissingLanguages([]string{"en", "fr", "de"}))

	var nilSnap *AnalysisSnapshot
	assert.Equal(t, []string{"en"}, nilSnap.MissingLanguages([]string{"en"}))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(PhaseIdle, PhaseAnimating))
	assert.True(t, CanTransition(PhaseIdle, PhaseLocked))
	assert.True(t, CanTransition(PhaseLocked, PhaseAnimating))
	assert.True(t, CanTransition(PhaseLocked, PhaseIdle))
	assert.True(t, CanTransition(PhaseAnimating, PhaseIdle))

	assert.False(t, CanTransition(PhaseAnimating, PhaseLocked))
	assert.False(t, CanTransition(PhaseAnimating, PhaseAnimating))
	assert.False(t, CanTransition(PhaseIdle, PhaseIdle))
}
