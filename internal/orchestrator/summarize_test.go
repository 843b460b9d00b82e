package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func repeatWords(word string, n int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

func TestScoreSummaryIdenticalTextScoresZero(t *testing.T) {
	original := repeatWords("mot", 200)
	assert.Zero(t, scoreSummary(original, original, lengthStyles["short"]))
}

func TestScoreSummaryGoodCandidate(t *testing.T) {
	original := "La photosynthèse est le processus par lequel les plantes convertissent " +
		repeatWords("lumière", 100) + " en énergie chimique stockée sous forme de glucose."
	summary := "Les plantes convertissent la lumière en énergie chimique, " +
		repeatWords("glucose", 30) + " processus fondamental."

	score := scoreSummary(original, summary, lengthStyles["short"])

	// Word range and compression ratio hold, and the summary differs from
	// the original. Noun retention may or may not add its tenth.
	assert.GreaterOrEqual(t, score, 0.6)
	assert.LessOrEqual(t, score, 0.7)
}

func TestScoreSummaryOutOfWordRange(t *testing.T) {
	original := repeatWords("soleil", 200)
	tiny := "bref"

	score := scoreSummary(original, tiny, lengthStyles["short"])
	assert.Less(t, score, 0.3)
}

func TestNounRetentionAllKept(t *testing.T) {
	original := "Le glucose alimente la cellule."
	retention := nounRetention(original, original)
	if retention > 0 {
		assert.InDelta(t, 1.0, retention, 1e-9)
	}
}

func TestNounRetentionEmptyOriginal(t *testing.T) {
	assert.Zero(t, nounRetention("", "un résumé quelconque"))
}
