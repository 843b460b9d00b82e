package orchestrator

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/plume-ai/backend/internal/assembler"
	"github.com/plume-ai/backend/internal/backend"
	"github.com/plume-ai/backend/internal/domain"
	"github.com/plume-ai/backend/internal/knowledge"
	"github.com/plume-ai/backend/internal/preferences"
	"github.com/plume-ai/backend/internal/validator"
	"github.com/plume-ai/backend/pkg/logger"
)

const (
	lowConfidenceFloor  = 0.20
	recordableThreshold = 0.50

	extractedConfidenceCap = 0.85
	paragraphConfidenceCap = 0.55

	enhancerMinLengthRatio = 0.5
)

// AnswerRequest is one question-answering call.
type AnswerRequest struct {
	Question        string
	UserID          string
	ExplicitContext string
	ForceWeb        bool
}

// AnswerEnvelope is the result of one answer task.
type AnswerEnvelope struct {
	Answer     string             `json:"answer"`
	Confidence float64            `json:"confidence"`
	Sources    []assembler.Source `json:"sources"`
	Domain     string             `json:"domain"`
	Backend    string             `json:"backend"`
	Validation validator.Result   `json:"validation"`
	Timeout    bool               `json:"timeout,omitempty"`
}

var timeSensitiveMarkers = []string{
	"récent", "récente", "récemment", "actuel", "actuelle", "actuellement",
	"aujourd'hui", "cette année", "ce mois", "cette semaine", "dernières nouvelles",
}

var yearPattern = regexp.MustCompile(`\b20\d{2}\b`)

func isTimeSensitive(question string) bool {
	lowered := strings.ToLower(question)
	for _, m := range timeSensitiveMarkers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return yearPattern.MatchString(question)
}

// Answer runs the full question-answering pipeline: domain detection,
// context assembly, a primary backend call with an optional enhancement
// pass, confidence shaping, semantic validation and preference recording.
func (o *Orchestrator) Answer(ctx context.Context, req AnswerRequest) (*AnswerEnvelope, error) {
	return o.answer(ctx, req, nil)
}

// AnswerStream is Answer with incremental delivery: when the local LLM
// produces the primary answer, each token batch is forwarded to onDelta as
// it arrives. Fallback paths produce no deltas and the caller replays the
// final text itself.
func (o *Orchestrator) AnswerStream(ctx context.Context, req AnswerRequest, onDelta func(string)) (*AnswerEnvelope, error) {
	return o.answer(ctx, req, onDelta)
}

func (o *Orchestrator) answer(ctx context.Context, req AnswerRequest, onDelta func(string)) (*AnswerEnvelope, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errInputEmpty()
	}

	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	detected := domain.Detect(question)

	var webResults []assembler.WebResult
	if o.web != nil && (req.ForceWeb || isTimeSensitive(question)) {
		hits, err := o.web.Search(ctx, question, o.cfg.Search.MaxResults)
		if err != nil {
			logger.Warn("web search failed, answering without it", zap.Error(err))
		}
		for _, h := range hits {
			webResults = append(webResults, assembler.WebResult{
				Title:   h.Title,
				URL:     h.URL,
				Snippet: h.Snippet,
			})
		}
	}

	assembled, err := o.assembler.Assemble(ctx, question, assembler.Request{
		UserID:          req.UserID,
		Domain:          detected,
		MaxChunks:       o.cfg.Tasks.MaxContextChunks,
		MaxChars:        o.cfg.Tasks.MaxContextChars,
		ExplicitContext: req.ExplicitContext,
		WebResults:      webResults,
	})
	if err != nil {
		return nil, errServiceDegraded()
	}

	defaults := backend.Params{
		"top_k":           3,
		"max_length":      200,
		"allow_no_answer": true,
		"temperature":     0.3,
	}
	params := defaults
	if o.prefs != nil {
		params = o.prefs.AdaptParameters(req.UserID, "answer", defaults)
	}

	answer, raw, usedBackend, err := o.answerPrimary(ctx, req.UserID, question, assembled.Context, detected, params, onDelta)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errTimeout()
		}
		return nil, convert(err)
	}

	timedOut := false
	if usedBackend == backend.IDQA {
		enhanced, ok := o.enhanceAnswer(ctx, question, assembled.Context, answer, params)
		if ok {
			answer = enhanced
			usedBackend = backend.IDOllama
		}
		if ctx.Err() != nil {
			timedOut = true
		}
	}

	confidence := shapeConfidence(raw, answer, question)

	if strings.TrimSpace(answer) == "" || confidence < lowConfidenceFloor {
		extracted, extractedConf := extractFromContext(question, assembled.Context)
		if extracted != "" {
			answer = extracted
			confidence = extractedConf
			usedBackend = "context-extract"
		}
	}

	validation := o.validator.ValidateAnswer(ctx, question, answer, assembled.Context)
	if !validation.Valid && !timedOut {
		retryParams := params.Clone()
		retryParams["temperature"] = params.Float("temperature", 0.3) + 0.2
		if enhanced, ok := o.enhanceAnswer(ctx, question, assembled.Context, answer, retryParams); ok {
			revalidated := o.validator.ValidateAnswer(ctx, question, enhanced, assembled.Context)
			if revalidated.Valid {
				answer = enhanced
				usedBackend = backend.IDOllama
				confidence = shapeConfidence(raw, answer, question)
				validation = revalidated
			}
		}
		// second failure: annotate rather than error
	}

	if o.prefs != nil && req.UserID != "" && confidence > recordableThreshold {
		o.prefs.RecordFeedback(preferences.Feedback{
			UserID:    req.UserID,
			Task:      "answer",
			Kind:      preferences.KindPositive,
			Params:    params,
			BackendID: usedBackend,
		})
	}

	return &AnswerEnvelope{
		Answer:     answer,
		Confidence: confidence,
		Sources:    assembled.Sources,
		Domain:     detected,
		Backend:    usedBackend,
		Validation: validation,
		Timeout:    timedOut,
	}, nil
}

// answerPrimary picks and calls the primary backend. The local LLM leads
// when the preference store favors it; otherwise the extractive model goes
// first with the generative backends as fallbacks.
func (o *Orchestrator) answerPrimary(ctx context.Context, userID, question, contextText, detected string, params backend.Params, onDelta func(string)) (string, float64, string, error) {
	preferred := ""
	if o.prefs != nil {
		preferred = o.prefs.PreferredBackend(userID, "answer", []string{backend.IDOllama, backend.IDQA})
	}

	prompt := func() string {
		examples := o.examples.Select("answer", "", detected)
		return domain.BuildAnswerPrompt(question, contextText, examples)
	}

	tryLLMFirst := preferred == backend.IDOllama

	if !tryLLMFirst && contextText != "" {
		qa, err := o.backends.AnswerExtractive(ctx, question, contextText, params)
		if err == nil && strings.TrimSpace(qa.Answer) != "" {
			return qa.Answer, qa.Score, backend.IDQA, nil
		}
		if err != nil && !errors.Is(err, backend.ErrUnavailable) {
			logger.Warn("extractive answer failed", zap.Error(err))
		}
	}

	if onDelta != nil {
		if text, ok := o.streamPrimary(ctx, prompt(), params, onDelta); ok {
			return stripPreamble(text), 0.6, backend.IDOllama, nil
		}
	}

	res, err := o.runChain(ctx, []genStep{
		{backendID: backend.IDOllama, prompt: prompt, params: params},
		{backendID: backend.IDSeq2Seq, prompt: prompt, params: params},
	})
	if err != nil {
		if tryLLMFirst && contextText != "" {
			qa, qaErr := o.backends.AnswerExtractive(ctx, question, contextText, params)
			if qaErr == nil && strings.TrimSpace(qa.Answer) != "" {
				return qa.Answer, qa.Score, backend.IDQA, nil
			}
		}
		return "", 0, "", err
	}

	raw := 0.6
	if res.Backend == backend.IDSeq2Seq {
		raw = 0.5
	}
	return stripPreamble(res.Text), raw, res.Backend, nil
}

// streamPrimary runs the local LLM in streaming mode, forwarding each delta
// and accumulating the full text. A failed or empty stream reports false so
// the caller can fall back to the non-streaming chain.
func (o *Orchestrator) streamPrimary(ctx context.Context, prompt string, params backend.Params, onDelta func(string)) (string, bool) {
	var b strings.Builder
	err := o.backends.GenerateStream(ctx, prompt, params, func(delta string) {
		b.WriteString(delta)
		onDelta(delta)
	})
	if err != nil {
		logger.Warn("streaming generation failed, falling back", zap.Error(err))
		return "", false
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", false
	}
	return b.String(), true
}

// enhanceAnswer asks the local LLM to validate and improve an answer. The
// enhanced text replaces the original only when it keeps at least half its
// length; shorter rewrites are treated as the model dropping content.
func (o *Orchestrator) enhanceAnswer(ctx context.Context, question, contextText, answer string, params backend.Params) (string, bool) {
	if !o.backends.IsAvailable(ctx, backend.IDOllama, false) {
		return "", false
	}

	var b strings.Builder
	b.WriteString("Vérifie et améliore la réponse ci-dessous en te fondant sur le contexte. Corrige les imprécisions, complète si nécessaire, et réponds uniquement avec la réponse améliorée.\n\n")
	if contextText != "" {
		b.WriteString("Contexte : " + contextText + "\n")
	}
	b.WriteString("Question : " + question + "\n")
	b.WriteString("Réponse : " + answer + "\n")
	b.WriteString("Réponse améliorée :")

	res, err := o.backends.Generate(ctx, backend.IDOllama, b.String(), params)
	if err != nil {
		logger.Warn("answer enhancement failed", zap.Error(err))
		return "", false
	}

	enhanced := stripPreamble(res.Text)
	if len(enhanced) < int(float64(len(answer))*enhancerMinLengthRatio) {
		return "", false
	}
	return enhanced, true
}

// extractFromContext is the rule-based fallback: the context sentence with
// the highest keyword overlap with the question, or the first paragraph
// when no sentence overlaps at all.
func extractFromContext(question, contextText string) (string, float64) {
	if strings.TrimSpace(contextText) == "" {
		return "", 0
	}

	best := ""
	bestOverlap := 0.0
	for _, sentence := range knowledge.SplitSentences(contextText) {
		overlap := knowledge.KeywordOverlap(question, sentence)
		if overlap > bestOverlap {
			best = strings.TrimSpace(sentence)
			bestOverlap = overlap
		}
	}
	if best != "" && bestOverlap > 0 {
		conf := bestOverlap
		if conf > extractedConfidenceCap {
			conf = extractedConfidenceCap
		}
		return best, conf
	}

	paragraph := strings.TrimSpace(strings.Split(contextText, "\n\n")[0])
	if paragraph == "" {
		return "", 0
	}
	return paragraph, paragraphConfidenceCap
}
