package orchestrator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/plume-ai/backend/internal/backend"
	"github.com/plume-ai/backend/internal/domain"
	"github.com/plume-ai/backend/pkg/logger"
)

// enhanced correction output must stay within this share of the grammar
// checker's text length, otherwise the model likely dropped content.
const correctionLengthTolerance = 0.7

// CorrectionEnvelope is the result of one correction task.
type CorrectionEnvelope struct {
	Corrected   string               `json:"corrected"`
	Corrections []backend.Correction `json:"corrections"`
	Backend     string               `json:"backend"`
}

// misspelled or spaced greetings normalized without touching the grammar
// backend at all.
var greetingFixes = map[string]string{
	"bo njour": "bonjour",
	"bonj our": "bonjour",
	"bon jour": "bonjour",
	"bonjou r": "bonjour",
	"bonsoi r": "bonsoir",
	"bon soir": "bonsoir",
	"sal ut":   "salut",
	"s alut":   "salut",
}

// Correct runs the grammar pipeline: a greeting shortcut, the grammar
// backend, then an optional LLM pass for residual issues.
func (o *Orchestrator) Correct(ctx context.Context, text string) (*CorrectionEnvelope, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errInputEmpty()
	}

	if canonical, ok := greetingFixes[strings.ToLower(text)]; ok {
		return &CorrectionEnvelope{
			Corrected: canonical,
			Corrections: []backend.Correction{{
				Original:    text,
				Corrected:   canonical,
				Explanation: "Salutation normalisée : espace ou orthographe corrigée.",
			}},
			Backend: "rule-based",
		}, nil
	}

	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	result, err := o.backends.GrammarCheck(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errTimeout()
		}
		return nil, convert(err)
	}

	corrected := result.Corrected
	usedBackend := backend.IDGrammar

	if o.backends.IsAvailable(ctx, backend.IDOllama, false) {
		prompt := domain.BuildCorrectionPrompt(text, corrected)
		res, gerr := o.backends.Generate(ctx, backend.IDOllama, prompt, backend.Params{
			"temperature": 0.1,
		})
		if gerr == nil {
			enhanced := stripPreamble(res.Text)
			if withinLengthTolerance(enhanced, corrected) {
				corrected = enhanced
				usedBackend = backend.IDOllama
			}
		} else {
			logger.Warn("correction enhancement failed", zap.Error(gerr))
		}
	}

	return &CorrectionEnvelope{
		Corrected:   corrected,
		Corrections: result.Corrections,
		Backend:     usedBackend,
	}, nil
}

func withinLengthTolerance(candidate, reference string) bool {
	if candidate == "" || reference == "" {
		return false
	}
	lo := int(float64(len(reference)) * correctionLengthTolerance)
	hi := int(float64(len(reference)) / correctionLengthTolerance)
	return len(candidate) >= lo && len(candidate) <= hi
}
