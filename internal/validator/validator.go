package validator

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/plume-ai/backend/pkg/logger"
)

const (
	summaryMinSimilarity = 0.30
	summaryMaxSimilarity = 0.80
	summaryMinWords      = 10

	reformMaxSimilarity = 0.95
	reformMinDiversity  = 0.20

	answerMinRelevance = 0.30
	answerMinGrounding = 0.20

	reasonUnavailable = "validateur indisponible"
)

// Result is the outcome of one semantic check. Warning marks a soft issue on
// an otherwise valid output.
type Result struct {
	Valid   bool    `json:"valid"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason,omitempty"`
	Warning bool    `json:"warning,omitempty"`
}

// Embedder is the slice of the backend registry the validator needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Validator scores model outputs by embedding similarity. It never blocks
// the pipeline: when the embedder is down every check passes with a
// diagnostic reason.
type Validator struct {
	embedder Embedder
}

func New(embedder Embedder) *Validator {
	return &Validator{embedder: embedder}
}

var academicMarkers = []string{
	"en effet", "par conséquent", "ainsi", "néanmoins", "toutefois",
	"en outre", "il convient", "notamment", "dès lors", "de surcroît",
}

func (v *Validator) similarity(ctx context.Context, a, b string) (float64, bool) {
	if v.embedder == nil {
		return 0, false
	}
	va, err := v.embedder.Embed(ctx, a)
	if err != nil {
		logger.Warn("validator embedding failed", zap.Error(err))
		return 0, false
	}
	vb, err := v.embedder.Embed(ctx, b)
	if err != nil {
		logger.Warn("validator embedding failed", zap.Error(err))
		return 0, false
	}
	return cosine(va, vb), true
}

// ValidateSummary checks that a summary stays on topic without quoting the
// original: similarity must land in (0.30, 0.80) and the summary must have
// at least ten words.
func (v *Validator) ValidateSummary(ctx context.Context, original, summary string) Result {
	if len(strings.Fields(summary)) < summaryMinWords {
		return Result{Valid: false, Reason: "résumé trop court"}
	}

	sim, ok := v.similarity(ctx, original, summary)
	if !ok {
		return Result{Valid: true, Reason: reasonUnavailable}
	}
	if sim < summaryMinSimilarity {
		return Result{Valid: false, Score: sim, Reason: "résumé trop éloigné du texte original"}
	}
	if sim > summaryMaxSimilarity {
		return Result{Valid: false, Score: sim, Reason: "résumé trop proche du texte original"}
	}
	return Result{Valid: true, Score: sim}
}

// ValidateReformulation checks that a rewrite actually changed the text
// while preserving its meaning. For the academic style, missing discourse
// markers raise a warning without invalidating the result.
func (v *Validator) ValidateReformulation(ctx context.Context, original, reformulated, style string) Result {
	sim, ok := v.similarity(ctx, original, reformulated)
	if !ok {
		return Result{Valid: true, Reason: reasonUnavailable}
	}
	if sim > reformMaxSimilarity {
		return Result{Valid: false, Score: sim, Reason: "texte inchangé"}
	}
	if 1-sim < reformMinDiversity {
		return Result{Valid: false, Score: sim, Reason: "reformulation trop proche de l'original"}
	}

	res := Result{Valid: true, Score: sim}
	if style == "academic" && !hasAcademicMarker(reformulated) {
		res.Warning = true
		res.Reason = "aucun marqueur de registre académique détecté"
	}
	return res
}

// ValidateAnswer checks that an answer addresses the question and, when
// context was supplied, that it is grounded in it.
func (v *Validator) ValidateAnswer(ctx context.Context, question, answer, context string) Result {
	rel, ok := v.similarity(ctx, question, answer)
	if !ok {
		return Result{Valid: true, Reason: reasonUnavailable}
	}
	if rel < answerMinRelevance {
		return Result{Valid: false, Score: rel, Reason: "réponse sans rapport avec la question"}
	}

	if context != "" {
		grounding, ok := v.similarity(ctx, answer, context)
		if ok && grounding < answerMinGrounding {
			return Result{Valid: false, Score: grounding, Reason: "réponse non fondée sur le contexte"}
		}
	}
	return Result{Valid: true, Score: rel}
}

func hasAcademicMarker(text string) bool {
	lowered := strings.ToLower(text)
	for _, m := range academicMarkers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
