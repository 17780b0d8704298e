package wordkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"In", "in"},
		{"AMORE", "amore"},
		{"Amōre,", "amore"},
		{"prīncipiō", "principio"},
		{"cælum", "caelum"},
		{"CÆLUM", "caelum"},
		{"cœna", "coena"},
		{"ſpiritus", "spiritus"},
		{"Dĕus", "deus"},
		{"terram.", "terram"},
		{"«lux»", "lux"},
		{"3", ""},
		{"qui-que", "quique"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"Amōre,", "Cælum", "ſpiritū", "ÆTERNUS", "fiat lux", "", "—"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "Normalize not idempotent for %q", in)
	}
}

func TestNormalize_CaseAndDiacriticInsensitive(t *testing.T) {
	assert.Equal(t, Normalize("Amōre,"), Normalize("AMORE"))
	assert.Equal(t, Normalize("Dóminus"), Normalize("dominus"))
}

func TestTrimPunctuation(t *testing.T) {
	assert.Equal(t, "terram", TrimPunctuation("terram,"))
	assert.Equal(t, "lux", TrimPunctuation("(lux)"))
	assert.Equal(t, "", TrimPunctuation("..."))
}

func TestTokens(t *testing.T) {
	tokens := Tokens("In prīncipiō creāvit Deus cælum et terram. —")
	keys := make([]string, len(tokens))
	for i, tok := range tokens {
		keys[i] = tok.Key
	}
	assert.Equal(t, []string{"in", "principio", "creavit", "deus", "caelum", "et", "terram"}, keys)
	assert.Equal(t, "terram.", tokens[6].Text)
}
