package orchestrator

import (
	"context"
	"strings"

	"github.com/plume-ai/backend/internal/backend"
	"github.com/plume-ai/backend/internal/domain"
	"github.com/plume-ai/backend/internal/knowledge"
	"github.com/plume-ai/backend/internal/preferences"
	"github.com/plume-ai/backend/internal/validator"
)

const (
	diversityThreshold           = 0.85
	paraphraseDiversityThreshold = 0.75

	recordSimilarityMin = 0.30
	recordSimilarityMax = 0.90
)

// Styles accepted by Reformulate.
var reformStyles = map[string]bool{
	"academic":       true,
	"formal":         true,
	"paraphrase":     true,
	"simplification": true,
	"simple":         true,
}

// ReformChanges quantifies what the rewrite did.
type ReformChanges struct {
	WordDelta          int     `json:"word_delta"`
	SimilarityEstimate float64 `json:"similarity_estimate"`
}

// ReformEnvelope is the result of one reformulation task.
type ReformEnvelope struct {
	Reformulated string           `json:"reformulated"`
	Original     string           `json:"original"`
	Style        string           `json:"style"`
	Changes      ReformChanges    `json:"changes"`
	Backend      string           `json:"backend"`
	Validation   validator.Result `json:"validation"`
}

func styleDefaults(style string) backend.Params {
	switch style {
	case "paraphrase":
		return backend.Params{
			"temperature":     0.9,
			"top_p":           0.95,
			"no_repeat_ngram": 4,
			"max_length":      400,
		}
	case "academic":
		return backend.Params{
			"temperature": 0.2,
			"num_beams":   4,
			"max_length":  400,
		}
	case "simplification", "simple":
		return backend.Params{
			"temperature": 0.4,
			"max_length":  250,
		}
	default:
		return backend.Params{
			"temperature": 0.5,
			"max_length":  400,
		}
	}
}

// Reformulate rewrites a text in the requested style, forcing lexical
// diversity through rule-based passes when the model output stays too close
// to the input.
func (o *Orchestrator) Reformulate(ctx context.Context, text, style, userID string) (*ReformEnvelope, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errInputEmpty()
	}
	if !reformStyles[style] {
		return nil, errInputInvalid("Style de reformulation inconnu.")
	}

	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	detected := domain.Detect(text)

	params := styleDefaults(style)
	if o.prefs != nil {
		params = o.prefs.AdaptParameters(userID, "reformulate", params)
	}

	prompt := func() string {
		examples := o.examples.Select("reformulate", style, detected)
		return domain.BuildReformulatePrompt(text, style, examples)
	}

	res, err := o.runChain(ctx, []genStep{
		{backendID: backend.IDOllama, prompt: prompt, params: params},
		{backendID: backend.IDSeq2Seq, prompt: prompt, params: params},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, errTimeout()
		}
		return nil, convert(err)
	}

	reformulated := stripPreamble(res.Text)
	usedBackend := res.Backend

	if usedBackend == backend.IDSeq2Seq && o.backends.IsAvailable(ctx, backend.IDOllama, false) {
		refinePrompt := domain.BuildReformulatePrompt(reformulated, style, nil)
		if refined, rerr := o.backends.Generate(ctx, backend.IDOllama, refinePrompt, params); rerr == nil {
			if cleaned := stripPreamble(refined.Text); cleaned != "" {
				reformulated = cleaned
				usedBackend = backend.IDOllama
			}
		}
	}

	threshold := diversityThreshold
	if style == "paraphrase" {
		threshold = paraphraseDiversityThreshold
	}

	if knowledge.Jaccard(text, reformulated) > threshold {
		reformulated = rewritePass(reformulated, detected)
		usedBackend = "rule-based-rewrite"
	}
	if knowledge.Jaccard(text, reformulated) > threshold {
		reformulated = aggressiveRewrite(reformulated, detected)
	}

	reformulated = stripPreamble(reformulated)
	similarity := knowledge.Jaccard(text, reformulated)

	validation := o.validator.ValidateReformulation(ctx, text, reformulated, style)

	if o.prefs != nil && userID != "" &&
		similarity >= recordSimilarityMin && similarity <= recordSimilarityMax {
		o.prefs.RecordFeedback(preferences.Feedback{
			UserID:    userID,
			Task:      "reformulate",
			Kind:      preferences.KindPositive,
			Params:    params,
			BackendID: usedBackend,
		})
	}

	return &ReformEnvelope{
		Reformulated: reformulated,
		Original:     text,
		Style:        style,
		Changes: ReformChanges{
			WordDelta:          wordCount(reformulated) - wordCount(text),
			SimilarityEstimate: similarity,
		},
		Backend:    usedBackend,
		Validation: validation,
	}, nil
}
