package backend

import (
	"context"
	"time"
)

// Kind identifies the protocol family of an inference backend.
type Kind string

const (
	KindLocalLLM     Kind = "local-llm"
	KindSeq2Seq      Kind = "hosted-transformer-seq2seq"
	KindExtractiveQA Kind = "hosted-transformer-extractive-qa"
	KindGrammar      Kind = "rule-based-grammar-checker"
	KindEmbedder     Kind = "embedding-encoder"
)

// Capability tags what a backend can be asked to do.
type Capability string

const (
	CapGenerate         Capability = "generate"
	CapAnswerExtractive Capability = "answer-extractive"
	CapReformulate      Capability = "reformulate"
	CapSummarize        Capability = "summarize"
	CapGrammarCheck     Capability = "grammar-check"
	CapEmbed            Capability = "embed"
)

// Health is the registry's view of one backend.
type Health string

const (
	HealthUnknown     Health = "unknown"
	HealthReady       Health = "ready"
	HealthDegraded    Health = "degraded"
	HealthUnavailable Health = "unavailable"
)

// Well-known backend identifiers.
const (
	IDOllama   = "ollama"
	IDSeq2Seq  = "seq2seq"
	IDQA       = "extractive-qa"
	IDGrammar  = "grammar"
	IDEmbedder = "embedder"
)

// Descriptor describes a registered backend.
type Descriptor struct {
	ID           string
	Kind         Kind
	Capabilities []Capability
	Health       Health
	Endpoint     string
	// Models lists installed sub-models for multi-variant backends.
	Models []string
}

func (d Descriptor) Can(cap Capability) bool {
	for _, c := range d.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Params carries generation parameters end to end: the orchestrator builds
// them, the preference store adapts the numeric scalars, the backend clients
// consume what they understand.
type Params map[string]any

func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	}
	return def
}

func (p Params) Int(key string, def int) int {
	return int(p.Float(key, float64(def)))
}

func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

func (p Params) String(key string, def string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Clone returns a shallow copy so per-request mutation never leaks.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// GenerateResult is the outcome of a generative call.
type GenerateResult struct {
	Text    string
	Backend string
	Took    time.Duration
}

// QAResult is the outcome of an extractive question-answering call.
type QAResult struct {
	Answer string
	Score  float64
}

// Correction is one grammar fix with its explanation.
type Correction struct {
	Original    string `json:"original"`
	Corrected   string `json:"corrected"`
	Explanation string `json:"explanation"`
	RuleID      string `json:"rule_id,omitempty"`
}

// GrammarResult is the outcome of a grammar-check call.
type GrammarResult struct {
	Corrected   string
	Corrections []Correction
}

// generator is implemented by backends that produce free text.
type generator interface {
	Generate(ctx context.Context, prompt string, params Params) (string, error)
}
