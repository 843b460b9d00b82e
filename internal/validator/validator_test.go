package validator

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// mapEmbedder returns a fixed vector per text. Texts absent from the map get
// an error, simulating a backend failure.
type mapEmbedder struct {
	vectors map[string][]float32
}

func (m *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return nil, assert.AnError
}

// vecAt builds a unit vector whose cosine against [1,0] equals sim.
func vecAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

var baseVec = []float32{1, 0}

func pairEmbedder(a, b string, sim float64) *mapEmbedder {
	return &mapEmbedder{vectors: map[string][]float32{
		a: baseVec,
		b: vecAt(sim),
	}}
}

const tenWords = "un deux trois quatre cinq six sept huit neuf dix"

func TestValidateSummaryTooShort(t *testing.T) {
	v := New(nil)
	res := v.ValidateSummary(context.Background(), "original", "trop court")
	assert.False(t, res.Valid)
	assert.Equal(t, "résumé trop court", res.Reason)
}

func TestValidateSummaryInRange(t *testing.T) {
	v := New(pairEmbedder("original", tenWords, 0.55))
	res := v.ValidateSummary(context.Background(), "original", tenWords)
	assert.True(t, res.Valid)
	assert.InDelta(t, 0.55, res.Score, 1e-6)
	assert.Empty(t, res.Reason)
}

func TestValidateSummaryTooFar(t *testing.T) {
	v := New(pairEmbedder("original", tenWords, 0.10))
	res := v.ValidateSummary(context.Background(), "original", tenWords)
	assert.False(t, res.Valid)
	assert.Equal(t, "résumé trop éloigné du texte original", res.Reason)
}

func TestValidateSummaryTooClose(t *testing.T) {
	v := New(pairEmbedder("original", tenWords, 0.95))
	res := v.ValidateSummary(context.Background(), "original", tenWords)
	assert.False(t, res.Valid)
	assert.Equal(t, "résumé trop proche du texte original", res.Reason)
}

func TestValidateSummaryEmbedderDownPassesThrough(t *testing.T) {
	v := New(nil)
	res := v.ValidateSummary(context.Background(), "original", tenWords)
	assert.True(t, res.Valid)
	assert.Equal(t, "validateur indisponible", res.Reason)
}

func TestValidateSummaryEmbedErrorPassesThrough(t *testing.T) {
	v := New(&mapEmbedder{vectors: map[string][]float32{}})
	res := v.ValidateSummary(context.Background(), "original", tenWords)
	assert.True(t, res.Valid)
	assert.Equal(t, "validateur indisponible", res.Reason)
}

func TestValidateReformulationUnchanged(t *testing.T) {
	v := New(pairEmbedder("orig", "reform", 0.99))
	res := v.ValidateReformulation(context.Background(), "orig", "reform", "paraphrase")
	assert.False(t, res.Valid)
	assert.Equal(t, "texte inchangé", res.Reason)
}

func TestValidateReformulationLowDiversity(t *testing.T) {
	v := New(pairEmbedder("orig", "reform", 0.90))
	res := v.ValidateReformulation(context.Background(), "orig", "reform", "paraphrase")
	assert.False(t, res.Valid)
	assert.Equal(t, "reformulation trop proche de l'original", res.Reason)
}

func TestValidateReformulationValid(t *testing.T) {
	v := New(pairEmbedder("orig", "reform", 0.60))
	res := v.ValidateReformulation(context.Background(), "orig", "reform", "paraphrase")
	assert.True(t, res.Valid)
	assert.False(t, res.Warning)
}

func TestValidateReformulationAcademicWarning(t *testing.T) {
	reform := "Une version remaniée du texte sans connecteur."
	v := New(pairEmbedder("orig", reform, 0.60))
	res := v.ValidateReformulation(context.Background(), "orig", reform, "academic")
	assert.True(t, res.Valid)
	assert.True(t, res.Warning)
	assert.Equal(t, "aucun marqueur de registre académique détecté", res.Reason)
}

func TestValidateReformulationAcademicMarkerPresent(t *testing.T) {
	reform := "En effet, cette version remaniée conserve le sens."
	v := New(pairEmbedder("orig", reform, 0.60))
	res := v.ValidateReformulation(context.Background(), "orig", reform, "academic")
	assert.True(t, res.Valid)
	assert.False(t, res.Warning)
}

func TestValidateAnswerIrrelevant(t *testing.T) {
	v := New(pairEmbedder("question", "réponse", 0.10))
	res := v.ValidateAnswer(context.Background(), "question", "réponse", "")
	assert.False(t, res.Valid)
	assert.Equal(t, "réponse sans rapport avec la question", res.Reason)
}

func TestValidateAnswerUngrounded(t *testing.T) {
	v := New(&mapEmbedder{vectors: map[string][]float32{
		"question": baseVec,
		"réponse":  vecAt(0.60),
		"contexte": []float32{0, 1},
	}})
	// réponse vs contexte: cos([0.6, 0.8], [0, 1]) = 0.8, grounded.
	res := v.ValidateAnswer(context.Background(), "question", "réponse", "contexte")
	assert.True(t, res.Valid)

	// Now an answer orthogonal to the context fails grounding.
	v = New(&mapEmbedder{vectors: map[string][]float32{
		"question": baseVec,
		"réponse":  baseVec,
		"contexte": []float32{0, 1},
	}})
	res = v.ValidateAnswer(context.Background(), "question", "réponse", "contexte")
	assert.False(t, res.Valid)
	assert.Equal(t, "réponse non fondée sur le contexte", res.Reason)
}

func TestValidateAnswerNoContextSkipsGrounding(t *testing.T) {
	v := New(pairEmbedder("question", "réponse", 0.60))
	res := v.ValidateAnswer(context.Background(), "question", "réponse", "")
	assert.True(t, res.Valid)
	assert.InDelta(t, 0.60, res.Score, 1e-6)
}

func TestSimilarityMonotonicInvalidation(t *testing.T) {
	// Raising similarity past the ceiling can only flip a summary from valid
	// to invalid, never back.
	wasInvalid := false
	for _, sim := range []float64{0.40, 0.60, 0.79, 0.85, 0.95} {
		v := New(pairEmbedder("original", tenWords, sim))
		res := v.ValidateSummary(context.Background(), "original", tenWords)
		if wasInvalid {
			assert.False(t, res.Valid, "sim=%v", sim)
		}
		if !res.Valid {
			wasInvalid = true
		}
	}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{1, 0}, []float32{1}))
	assert.Zero(t, cosine(nil, nil))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 1}))
}
