package orchestrator

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plume-ai/backend/internal/assembler"
	"github.com/plume-ai/backend/internal/backend"
	"github.com/plume-ai/backend/internal/domain"
	"github.com/plume-ai/backend/internal/knowledge"
	"github.com/plume-ai/backend/internal/preferences"
	"github.com/plume-ai/backend/internal/validator"
	"github.com/plume-ai/backend/pkg/config"
	"github.com/plume-ai/backend/pkg/logger"
)

const defaultDeadline = 120 * time.Second

// WebSearcher is the outward-facing web augmentation dependency.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchHit, error)
}

// SearchHit is one web result passed down to the context assembler.
type SearchHit struct {
	Title   string
	URL     string
	Snippet string
}

// Orchestrator is the decision engine behind every task type. It owns no
// persistent state; it reads from and writes through its collaborators.
type Orchestrator struct {
	cfg       *config.Config
	backends  *backend.Registry
	examples  *domain.ExampleStore
	assembler *assembler.Assembler
	validator *validator.Validator
	prefs     *preferences.Store
	web       WebSearcher
	deadline  time.Duration
}

func New(
	cfg *config.Config,
	backends *backend.Registry,
	examples *domain.ExampleStore,
	asm *assembler.Assembler,
	val *validator.Validator,
	prefs *preferences.Store,
	web WebSearcher,
) *Orchestrator {
	deadline := defaultDeadline
	if cfg.Tasks.DeadlineSec > 0 {
		deadline = time.Duration(cfg.Tasks.DeadlineSec) * time.Second
	}
	return &Orchestrator{
		cfg:       cfg,
		backends:  backends,
		examples:  examples,
		assembler: asm,
		validator: val,
		prefs:     prefs,
		web:       web,
		deadline:  deadline,
	}
}

// withDeadline bounds one task call by the soft deadline.
func (o *Orchestrator) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.deadline)
}

// genStep is one link of a declarative generation chain: a backend plus the
// prompt builder for it. Chains advance to the next step on unavailability.
type genStep struct {
	backendID string
	prompt    func() string
	params    backend.Params
}

// runChain tries each step in order, advancing on BackendUnavailable, and
// returns the first successful generation. It never retries a failed step.
func (o *Orchestrator) runChain(ctx context.Context, steps []genStep) (*backend.GenerateResult, error) {
	var lastErr error
	for _, step := range steps {
		res, err := o.backends.Generate(ctx, step.backendID, step.prompt(), step.params)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, backend.ErrModelNotAvailable) {
			return nil, err
		}
		logger.Warn("generation step failed, advancing chain",
			zap.String("backend", step.backendID),
			zap.Error(err))
	}
	if lastErr == nil {
		lastErr = backend.ErrUnavailable
	}
	return nil, lastErr
}

// generativeChain orders the generate-capable backends for one request,
// putting the user's preferred backend first when the preference store
// favors one.
func (o *Orchestrator) generativeChain(userID, task string) []string {
	candidates := []string{backend.IDOllama, backend.IDSeq2Seq}
	preferred := ""
	if o.prefs != nil {
		preferred = o.prefs.PreferredBackend(userID, task, candidates)
	}
	if preferred == "" || preferred == candidates[0] {
		return candidates
	}
	return []string{preferred, backend.IDOllama}
}

// shapeConfidence applies the answer-confidence rules: the raw score is
// boosted by +0.05 per answer-length bracket (100, 200, 500 chars) and
// +0.06 per question keyword found in the answer (capped at +0.20), then
// clamped to [0,1]. Pure function.
func shapeConfidence(raw float64, answer, question string) float64 {
	conf := raw

	for _, bracket := range []int{100, 200, 500} {
		if len(answer) >= bracket {
			conf += 0.05
		}
	}

	answerTokens := knowledge.TokenSet(answer)
	boost := 0.0
	for _, kw := range knowledge.Tokenize(question) {
		if _, ok := answerTokens[kw]; ok {
			boost += 0.06
		}
	}
	conf += math.Min(boost, 0.20)

	return math.Max(0, math.Min(1, conf))
}

// stripPreamble removes instructional lead-ins models tend to emit before
// the actual output.
func stripPreamble(text string) string {
	trimmed := strings.TrimSpace(text)
	lowered := strings.ToLower(trimmed)

	prefixes := []string{
		"voici le texte reformulé :", "voici le texte reformulé:",
		"voici la reformulation :", "voici la reformulation:",
		"voici le texte corrigé :", "voici le texte corrigé:",
		"voici le résumé :", "voici le résumé:",
		"texte reformulé :", "texte reformulé:",
		"réécriture :", "réécriture:",
		"résumé :", "résumé:",
		"réponse :", "réponse:",
		"here is the reformulated text:",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(lowered, p) {
			return strings.TrimSpace(trimmed[len(p):])
		}
	}
	return trimmed
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
