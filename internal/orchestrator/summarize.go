package orchestrator

import (
	"context"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/plume-ai/backend/internal/backend"
	"github.com/plume-ai/backend/internal/domain"
	"github.com/plume-ai/backend/internal/knowledge"
	"github.com/plume-ai/backend/internal/preferences"
	"github.com/plume-ai/backend/internal/validator"
)

const (
	summarizeMinInputChars = 50

	// inputs longer than this are summarized chunk by chunk.
	chunkingThresholdWords = 800

	recordRatioMin = 0.10
	recordRatioMax = 0.80
)

type lengthStyle struct {
	minWords int
	maxWords int
	ratioLo  float64
	ratioHi  float64
}

var lengthStyles = map[string]lengthStyle{
	"short":    {minWords: 20, maxWords: 100, ratioLo: 0.02, ratioHi: 0.15},
	"medium":   {minWords: 50, maxWords: 150, ratioLo: 0.10, ratioHi: 0.30},
	"long":     {minWords: 100, maxWords: 250, ratioLo: 0.20, ratioHi: 0.45},
	"detailed": {minWords: 150, maxWords: 400, ratioLo: 0.30, ratioHi: 0.60},
}

// SummaryEnvelope is the result of one summarization task.
type SummaryEnvelope struct {
	Summary          string           `json:"summary"`
	LengthStyle      string           `json:"length_style"`
	WordCount        int              `json:"word_count"`
	CompressionRatio float64          `json:"compression_ratio"`
	Backend          string           `json:"backend"`
	Validation       validator.Result `json:"validation"`
}

// Summarize condenses a text under a length style, running up to two
// backends and keeping the best-scoring candidate.
func (o *Orchestrator) Summarize(ctx context.Context, text, style, userID string) (*SummaryEnvelope, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errInputEmpty()
	}
	if len(text) < summarizeMinInputChars {
		return nil, errInputTooShort(summarizeMinInputChars)
	}

	ls, ok := lengthStyles[style]
	if !ok {
		style = "medium"
		ls = lengthStyles[style]
	}

	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	inputWords := wordCount(text)
	if inputWords > chunkingThresholdWords {
		return o.summarizeChunked(ctx, text, style, ls, userID)
	}

	params := backend.Params{
		"temperature": 0.3,
		"max_length":  ls.maxWords * 2,
	}
	if o.prefs != nil {
		params = o.prefs.AdaptParameters(userID, "summarize", params)
	}

	prompt := func() string {
		examples := o.examples.Select("summarize", "", "")
		return domain.BuildSummarizePrompt(text, ls.minWords, ls.maxWords, examples)
	}

	type candidate struct {
		text    string
		backend string
		score   float64
	}

	var candidates []candidate
	for _, id := range []string{backend.IDOllama, backend.IDSeq2Seq} {
		res, err := o.backends.Generate(ctx, id, prompt(), params)
		if err != nil {
			continue
		}
		summary := stripPreamble(res.Text)
		if summary == "" {
			continue
		}
		score := scoreSummary(text, summary, ls)
		val := o.validator.ValidateSummary(ctx, text, summary)
		if val.Score > 0 {
			score = score*0.7 + val.Score*0.3
		}
		candidates = append(candidates, candidate{text: summary, backend: res.Backend, score: score})
		if len(candidates) == 2 {
			break
		}
	}

	if len(candidates) == 0 {
		if ctx.Err() != nil {
			return nil, errTimeout()
		}
		return nil, errServiceDegraded()
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}

	ratio := float64(wordCount(best.text)) / float64(inputWords)
	validation := o.validator.ValidateSummary(ctx, text, best.text)

	if o.prefs != nil && userID != "" && ratio >= recordRatioMin && ratio <= recordRatioMax {
		o.prefs.RecordFeedback(preferences.Feedback{
			UserID:    userID,
			Task:      "summarize",
			Kind:      preferences.KindPositive,
			Params:    params,
			BackendID: best.backend,
		})
	}

	return &SummaryEnvelope{
		Summary:          best.text,
		LengthStyle:      style,
		WordCount:        wordCount(best.text),
		CompressionRatio: ratio,
		Backend:          best.backend,
		Validation:       validation,
	}, nil
}

// summarizeChunked handles inputs past the context window: each sentence
// chunk is summarized proportionally and the pieces are concatenated.
func (o *Orchestrator) summarizeChunked(ctx context.Context, text, style string, ls lengthStyle, userID string) (*SummaryEnvelope, error) {
	chunks := knowledge.ChunkText(text)
	if len(chunks) == 0 {
		return nil, errInputTooShort(summarizeMinInputChars)
	}

	totalWords := wordCount(text)
	params := backend.Params{"temperature": 0.3}
	if o.prefs != nil {
		params = o.prefs.AdaptParameters(userID, "summarize", params)
	}

	var parts []string
	usedBackend := ""
	for _, chunk := range chunks {
		share := float64(wordCount(chunk)) / float64(totalWords)
		minW := int(float64(ls.minWords) * share)
		maxW := int(float64(ls.maxWords) * share)
		if minW < 5 {
			minW = 5
		}
		if maxW <= minW {
			maxW = minW + 10
		}

		prompt := domain.BuildSummarizePrompt(chunk, minW, maxW, nil)
		res, err := o.runChain(ctx, []genStep{
			{backendID: backend.IDOllama, prompt: func() string { return prompt }, params: params},
			{backendID: backend.IDSeq2Seq, prompt: func() string { return prompt }, params: params},
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return nil, convert(err)
		}
		parts = append(parts, stripPreamble(res.Text))
		usedBackend = res.Backend
	}

	if len(parts) == 0 {
		if ctx.Err() != nil {
			return nil, errTimeout()
		}
		return nil, errServiceDegraded()
	}

	summary := strings.Join(parts, " ")
	ratio := float64(wordCount(summary)) / float64(totalWords)
	validation := o.validator.ValidateSummary(ctx, text, summary)

	if o.prefs != nil && userID != "" && ratio >= recordRatioMin && ratio <= recordRatioMax {
		o.prefs.RecordFeedback(preferences.Feedback{
			UserID:    userID,
			Task:      "summarize",
			Kind:      preferences.KindPositive,
			Params:    params,
			BackendID: usedBackend,
		})
	}

	return &SummaryEnvelope{
		Summary:          summary,
		LengthStyle:      style,
		WordCount:        wordCount(summary),
		CompressionRatio: ratio,
		Backend:          usedBackend,
		Validation:       validation,
	}, nil
}

// scoreSummary rates one candidate: +0.3 for landing in the word range,
// +0.2 for a compression ratio in [0.10, 0.50], +0.1 for differing from the
// original, +0.1 for key-noun retention in [0.30, 0.70].
func scoreSummary(original, summary string, ls lengthStyle) float64 {
	score := 0.0
	words := wordCount(summary)

	if words >= ls.minWords && words <= ls.maxWords {
		score += 0.3
	}

	ratio := float64(words) / float64(wordCount(original))
	if ratio >= 0.10 && ratio <= 0.50 {
		score += 0.2
	}

	if knowledge.Jaccard(original, summary) < 0.95 {
		score += 0.1
	}

	retention := nounRetention(original, summary)
	if retention >= 0.30 && retention <= 0.70 {
		score += 0.1
	}

	return score
}

// nounRetention measures how many of the original's nouns survive in the
// summary. POS tagging when it works, long-word overlap otherwise.
func nounRetention(original, summary string) float64 {
	nouns := extractNouns(original)
	if len(nouns) == 0 {
		return 0
	}
	summaryTokens := knowledge.TokenSet(summary)
	kept := 0
	for noun := range nouns {
		if _, ok := summaryTokens[noun]; ok {
			kept++
		}
	}
	return float64(kept) / float64(len(nouns))
}

func extractNouns(text string) map[string]struct{} {
	nouns := make(map[string]struct{})

	doc, err := prose.NewDocument(text, prose.WithExtraction(false), prose.WithSegmentation(false))
	if err == nil {
		for _, tok := range doc.Tokens() {
			if strings.HasPrefix(tok.Tag, "NN") {
				nouns[strings.ToLower(tok.Text)] = struct{}{}
			}
		}
	}
	if len(nouns) > 0 {
		return nouns
	}

	for _, tok := range knowledge.Tokenize(text) {
		if len([]rune(tok)) > 6 {
			nouns[tok] = struct{}{}
		}
	}
	return nouns
}
