package knowledge

import (
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
)

const (
	chunkMaxWords     = 400
	chunkOverlapWords = 50
)

var sentenceFallback = regexp.MustCompile(`[^.!?…]+[.!?…]*\s*`)

// SplitSentences segments text into sentences, never cutting one mid-way.
func SplitSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err == nil {
		sents := doc.Sentences()
		out := make([]string, 0, len(sents))
		for _, s := range sents {
			if t := strings.TrimSpace(s.Text); t != "" {
				out = append(out, t)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	var out []string
	for _, m := range sentenceFallback.FindAllString(text, -1) {
		if t := strings.TrimSpace(m); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ChunkText accumulates whole sentences into chunks of at most chunkMaxWords
// words, carrying roughly chunkOverlapWords words of trailing sentences into
// the next chunk. A single oversized sentence still becomes its own chunk.
func ChunkText(text string) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentWords := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		// Seed the next chunk with the trailing sentences that fit the
		// overlap budget.
		var carry []string
		carryWords := 0
		for i := len(current) - 1; i >= 0; i-- {
			w := wordCount(current[i])
			if carryWords+w > chunkOverlapWords {
				break
			}
			carry = append([]string{current[i]}, carry...)
			carryWords += w
		}
		current = carry
		currentWords = carryWords
	}

	for _, sentence := range sentences {
		w := wordCount(sentence)
		if currentWords+w > chunkMaxWords && len(current) > 0 {
			flush()
			// The overlap alone may already exceed the budget for a big
			// incoming sentence; drop it rather than oversize the chunk.
			if currentWords+w > chunkMaxWords {
				current = nil
				currentWords = 0
			}
		}
		current = append(current, sentence)
		currentWords += w
	}

	if len(current) > 0 {
		// Avoid emitting a pure-overlap tail that adds no new sentence.
		tail := strings.Join(current, " ")
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], tail) {
			chunks = append(chunks, tail)
		}
	}

	return chunks
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
