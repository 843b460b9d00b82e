package knowledge

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentenceOf builds a sentence of exactly n words.
func sentenceOf(n int, seed string) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", seed, i)
	}
	words[0] = "Phrase" + words[0]
	return strings.Join(words, " ") + "."
}

func TestSplitSentencesBasic(t *testing.T) {
	sents := SplitSentences("Le chat dort. Le chien aboie. Qui passe? Personne.")
	require.Len(t, sents, 4)
	assert.Equal(t, "Le chat dort.", sents[0])
}

func TestSplitSentencesEmpty(t *testing.T) {
	assert.Empty(t, SplitSentences(""))
	assert.Empty(t, SplitSentences("   "))
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	text := "Une phrase courte. Une autre phrase courte."
	chunks := ChunkText(text)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "Une phrase courte.")
}

func TestChunkExactBudgetSingleChunk(t *testing.T) {
	// Four 100-word sentences land exactly on the budget and must not split.
	var sents []string
	for i := 0; i < 4; i++ {
		sents = append(sents, sentenceOf(100, fmt.Sprintf("mot%d", i)))
	}
	chunks := ChunkText(strings.Join(sents, " "))
	assert.Len(t, chunks, 1)
}

func TestChunkRespectsSentenceBoundaries(t *testing.T) {
	var sents []string
	for i := 0; i < 10; i++ {
		sents = append(sents, sentenceOf(90, fmt.Sprintf("mot%d", i)))
	}
	chunks := ChunkText(strings.Join(sents, " "))
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, strings.HasSuffix(c, "."), "chunk cut mid-sentence: %q", c[len(c)-20:])
		assert.LessOrEqual(t, wordCount(c), chunkMaxWords)
	}
}

func TestChunkOverlapCarriesTrailingSentence(t *testing.T) {
	var sents []string
	for i := 0; i < 12; i++ {
		sents = append(sents, sentenceOf(45, fmt.Sprintf("mot%d", i)))
	}
	chunks := ChunkText(strings.Join(sents, " "))
	require.Greater(t, len(chunks), 1)

	// The last sentence of a chunk fits the overlap budget and reappears at
	// the head of the next chunk.
	firstSents := SplitSentences(chunks[0])
	last := firstSents[len(firstSents)-1]
	assert.True(t, strings.HasPrefix(chunks[1], last))
}

func TestChunkOversizedSentenceOwnChunk(t *testing.T) {
	big := sentenceOf(chunkMaxWords+50, "long")
	chunks := ChunkText("Petite phrase d'amorce. " + big)
	require.Len(t, chunks, 2)
	assert.Equal(t, big, chunks[1])
}
