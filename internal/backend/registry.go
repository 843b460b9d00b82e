package backend

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plume-ai/backend/internal/metrics"
	"github.com/plume-ai/backend/pkg/config"
	"github.com/plume-ai/backend/pkg/logger"
)

// consecutive transport failures before a backend is parked unavailable.
const failuresUntilUnavailable = 3

// Registry owns every backend descriptor and client handle. Backends are
// discovered at construction but probed lazily on first use; a handle is
// created at most once. No call is retried here: the orchestrator decides
// what to do with a failed backend.
type Registry struct {
	ollama   *OllamaClient
	seq2seq  *Seq2SeqClient
	qa       *QAClient
	grammar  *GrammarClient
	embedder *EmbedderClient

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	desc     Descriptor
	health   Health
	failures int
	probe    func(context.Context) error
	probed   bool
}

func NewRegistry(cfg *config.Config) *Registry {
	callTimeout := time.Duration(cfg.Ollama.TimeoutSec * float64(time.Second))
	pullTimeout := time.Duration(cfg.Ollama.PullTimeoutSec) * time.Second
	tfTimeout := time.Duration(cfg.Transformers.TimeoutSec) * time.Second

	endpoints := cfg.Ollama.Endpoints
	if cfg.Ollama.URL != "" {
		deduped := []string{cfg.Ollama.URL}
		for _, e := range endpoints {
			if e != cfg.Ollama.URL {
				deduped = append(deduped, e)
			}
		}
		endpoints = deduped
	}

	r := &Registry{
		ollama:  NewOllamaClient(endpoints, cfg.Ollama.Model, callTimeout, pullTimeout),
		grammar: NewGrammarClient(cfg.Grammar.RemoteURL, cfg.Grammar.LocalCmd, cfg.Grammar.Language, time.Duration(cfg.Grammar.TimeoutSec)*time.Second),
		entries: make(map[string]*entry),
	}
	r.embedder = NewEmbedderClient(r.ollama, cfg.Transformers.EmbedModel, cfg.Transformers.EmbedDim, tfTimeout)

	r.register(Descriptor{
		ID:           IDOllama,
		Kind:         KindLocalLLM,
		Capabilities: []Capability{CapGenerate, CapReformulate, CapSummarize},
		Endpoint:     cfg.Ollama.URL,
	}, r.ollama.Probe)

	if cfg.Transformers.Seq2SeqURL != "" {
		r.seq2seq = NewSeq2SeqClient(cfg.Transformers.Seq2SeqURL, cfg.Transformers.Seq2SeqKey, cfg.Transformers.Seq2SeqModel, tfTimeout)
		r.register(Descriptor{
			ID:           IDSeq2Seq,
			Kind:         KindSeq2Seq,
			Capabilities: []Capability{CapGenerate, CapReformulate, CapSummarize},
			Endpoint:     cfg.Transformers.Seq2SeqURL,
		}, r.seq2seq.Probe)
	}

	if cfg.Transformers.QAURL != "" {
		r.qa = NewQAClient(cfg.Transformers.QAURL, tfTimeout)
		r.register(Descriptor{
			ID:           IDQA,
			Kind:         KindExtractiveQA,
			Capabilities: []Capability{CapAnswerExtractive},
			Endpoint:     cfg.Transformers.QAURL,
		}, r.qa.Probe)
	}

	r.register(Descriptor{
		ID:           IDGrammar,
		Kind:         KindGrammar,
		Capabilities: []Capability{CapGrammarCheck},
		Endpoint:     cfg.Grammar.RemoteURL,
	}, r.grammar.Probe)

	r.register(Descriptor{
		ID:           IDEmbedder,
		Kind:         KindEmbedder,
		Capabilities: []Capability{CapEmbed},
	}, r.embedder.Probe)

	return r
}

func (r *Registry) register(desc Descriptor, probe func(context.Context) error) {
	desc.Health = HealthUnknown
	r.entries[desc.ID] = &entry{desc: desc, health: HealthUnknown, probe: probe}
}

// Initialize is an explicit lifecycle hook. It performs no model loading:
// every backend is probed lazily on first request so startup never blocks.
func (r *Registry) Initialize() {
	logger.Info("backend registry initialized", zap.Int("backends", len(r.entries)))
}

// Shutdown releases nothing today; handles are plain HTTP clients. The hook
// exists so the lifecycle stays explicit.
func (r *Registry) Shutdown() {}

// List returns a snapshot of every descriptor.
func (r *Registry) List() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		d := e.desc
		d.Health = e.health
		if e.desc.ID == IDOllama {
			d.Models = r.ollama.Models()
		}
		out = append(out, d)
	}
	return out
}

// IsAvailable reports whether the backend can serve requests. With recheck,
// an unavailable backend is probed again.
func (r *Registry) IsAvailable(ctx context.Context, id string, recheck bool) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	needProbe := !e.probed || (recheck && e.health == HealthUnavailable)
	if needProbe {
		e.probed = true
	}
	health := e.health
	r.mu.Unlock()

	if !needProbe {
		return health == HealthReady || health == HealthDegraded
	}

	err := e.probe(ctx)
	r.recordOutcome(id, err)
	return err == nil
}

// HasReadyGenerative reports whether any generate-capable backend answers.
// Used by the readiness endpoint.
func (r *Registry) HasReadyGenerative(ctx context.Context) bool {
	for _, d := range r.List() {
		if d.Can(CapGenerate) && r.IsAvailable(ctx, d.ID, false) {
			return true
		}
	}
	return false
}

func (r *Registry) recordOutcome(id string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.BackendCalls.WithLabelValues(id, status).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}

	prev := e.health
	if err == nil {
		e.failures = 0
		e.health = HealthReady
	} else {
		e.failures++
		if e.failures >= failuresUntilUnavailable {
			e.health = HealthUnavailable
		} else {
			e.health = HealthDegraded
		}
	}

	if prev != e.health {
		logger.Info("backend health changed",
			zap.String("backend", id),
			zap.String("from", string(prev)),
			zap.String("to", string(e.health)))
	}
}

func (r *Registry) guard(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownBackend
	}
	health := e.health
	probed := e.probed
	r.mu.Unlock()

	if health == HealthUnavailable {
		return unavailable(id, nil)
	}
	if !probed && !r.IsAvailable(ctx, id, false) {
		return unavailable(id, nil)
	}
	return nil
}

// Generate dispatches a free-text generation to the named backend.
func (r *Registry) Generate(ctx context.Context, id, prompt string, params Params) (*GenerateResult, error) {
	if err := r.guard(ctx, id); err != nil {
		return nil, err
	}

	var gen generator
	switch id {
	case IDOllama:
		gen = r.ollama
	case IDSeq2Seq:
		if r.seq2seq == nil {
			return nil, ErrUnknownBackend
		}
		gen = r.seq2seq
	default:
		return nil, ErrUnknownBackend
	}

	start := time.Now()
	text, err := gen.Generate(ctx, prompt, params)
	r.recordOutcome(id, transportOnly(err))
	if err != nil {
		return nil, err
	}

	return &GenerateResult{
		Text:    strings.TrimSpace(text),
		Backend: id,
		Took:    time.Since(start),
	}, nil
}

// GenerateStream streams deltas from the local LLM.
func (r *Registry) GenerateStream(ctx context.Context, prompt string, params Params, onDelta func(string)) error {
	if err := r.guard(ctx, IDOllama); err != nil {
		return err
	}
	err := r.ollama.GenerateStream(ctx, prompt, params, onDelta)
	r.recordOutcome(IDOllama, transportOnly(err))
	return err
}

// AnswerExtractive dispatches to the extractive QA backend.
func (r *Registry) AnswerExtractive(ctx context.Context, question, contextText string, params Params) (*QAResult, error) {
	if r.qa == nil {
		return nil, unavailable(IDQA, nil)
	}
	if err := r.guard(ctx, IDQA); err != nil {
		return nil, err
	}
	res, err := r.qa.Answer(ctx, question, contextText, params)
	r.recordOutcome(IDQA, transportOnly(err))
	return res, err
}

// GrammarCheck runs the grammar backend (remote first, local fallback).
func (r *Registry) GrammarCheck(ctx context.Context, text string) (*GrammarResult, error) {
	if err := r.guard(ctx, IDGrammar); err != nil {
		return nil, err
	}
	res, err := r.grammar.Check(ctx, text)
	r.recordOutcome(IDGrammar, transportOnly(err))
	return res, err
}

// Embed encodes one text with the embedding backend.
func (r *Registry) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.guard(ctx, IDEmbedder); err != nil {
		return nil, err
	}
	vec, err := r.embedder.Embed(ctx, text)
	r.recordOutcome(IDEmbedder, transportOnly(err))
	return vec, err
}

// EmbedBatch encodes several texts.
func (r *Registry) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.guard(ctx, IDEmbedder); err != nil {
		return nil, err
	}
	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	r.recordOutcome(IDEmbedder, transportOnly(err))
	return vecs, err
}

// ResolveModel exposes model-name resolution for callers that label results.
func (r *Registry) ResolveModel(ctx context.Context, name string) (string, error) {
	return r.ollama.ResolveModel(ctx, name)
}

// transportOnly filters out non-transport failures so a model refusing a
// prompt does not degrade health accounting.
func transportOnly(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), ErrModelNotAvailable.Error()) {
		return nil
	}
	return err
}
