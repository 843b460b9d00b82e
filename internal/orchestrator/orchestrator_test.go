package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShapeConfidenceShortAnswerNoBoost(t *testing.T) {
	got := shapeConfidence(0.5, "Oui.", "xyzzy ?")
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestShapeConfidenceLengthBrackets(t *testing.T) {
	raw := 0.4
	a120 := strings.Repeat("x", 120)
	a250 := strings.Repeat("x", 250)
	a600 := strings.Repeat("x", 600)

	assert.InDelta(t, 0.45, shapeConfidence(raw, a120, "q"), 1e-9)
	assert.InDelta(t, 0.50, shapeConfidence(raw, a250, "q"), 1e-9)
	assert.InDelta(t, 0.55, shapeConfidence(raw, a600, "q"), 1e-9)
}

func TestShapeConfidenceKeywordBoost(t *testing.T) {
	question := "Que produit la photosynthèse ?"
	answer := "La photosynthèse produit du glucose."

	// Two question keywords land in the answer: +0.12, no length bracket.
	got := shapeConfidence(0.3, answer, question)
	assert.InDelta(t, 0.42, got, 1e-9)
}

func TestShapeConfidenceKeywordBoostCapped(t *testing.T) {
	question := "glucose oxygène chlorophylle lumière carbone"
	answer := "glucose oxygène chlorophylle lumière carbone"

	// Five matches would be +0.30; the boost caps at +0.20.
	got := shapeConfidence(0.1, answer, question)
	assert.InDelta(t, 0.30, got, 1e-9)
}

func TestShapeConfidenceClamped(t *testing.T) {
	long := strings.Repeat("mot ", 200)
	assert.Equal(t, 1.0, shapeConfidence(0.95, long, "mot"))
	assert.Equal(t, 0.0, shapeConfidence(-0.5, "x", "q"))
}

func TestStripPreamble(t *testing.T) {
	cases := map[string]string{
		"Voici le résumé : Le texte parle de Camus.": "Le texte parle de Camus.",
		"Réponse: Quarante-deux.":                    "Quarante-deux.",
		"Texte reformulé : Une autre version.":       "Une autre version.",
		"Pas de préambule ici.":                      "Pas de préambule ici.",
		"  entouré d'espaces  ":                      "entouré d'espaces",
	}
	for in, want := range cases {
		assert.Equal(t, want, stripPreamble(in), "input %q", in)
	}
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, wordCount(""))
	assert.Equal(t, 3, wordCount("un  deux\ntrois"))
}
