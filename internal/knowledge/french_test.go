package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeDropsStopWordsAndElisions(t *testing.T) {
	toks := Tokenize("L'étudiant analyse la structure de l'argument.")
	assert.Equal(t, []string{"étudiant", "analyse", "structure", "argument"}, toks)
}

func TestTokenizeEmpty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("le la les de du"))
}

func TestJaccardIdenticalTexts(t *testing.T) {
	s := "La photosynthèse transforme la lumière en énergie chimique."
	assert.InDelta(t, 1.0, Jaccard(s, s), 1e-9)
}

func TestJaccardDisjointTexts(t *testing.T) {
	assert.Zero(t, Jaccard("volcan islandais", "symphonie baroque"))
}

func TestJaccardEmptyCases(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard("", ""))
	assert.Zero(t, Jaccard("volcan", ""))
}

func TestJaccardPartialOverlap(t *testing.T) {
	got := Jaccard("analyse critique du texte", "analyse rapide du texte")
	// intersection {analyse, texte}, union {analyse, critique, texte, rapide}
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestKeywordOverlapAsymmetric(t *testing.T) {
	assert.InDelta(t, 1.0, KeywordOverlap("analyse texte", "analyse complète du texte original"), 1e-9)
	assert.InDelta(t, 0.25, KeywordOverlap("analyse complète texte original", "analyse seulement"), 1e-9)
}
